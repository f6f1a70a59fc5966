package llm

import (
	"strings"
)

// BuildSystemPrompt composes the system message with currency defaults and
// strict-but-practical formatting rules for freight invoices.
func BuildSystemPrompt(req ExtractRequest) string {
	defCur := strings.TrimSpace(req.DefaultCurrency)
	if defCur == "" {
		defCur = "USD"
	}

	parts := []string{
		"You are a freight invoice parser. Return ONLY JSON that matches the provided JSON Schema.",
		"Use ISO-8601 dates (YYYY-MM-DD).",
		"Currency must be a 3-letter ISO 4217 code; default to " + defCur + " if uncertain.",
		"All monetary values are decimal strings with a dot separator and no thousands separators.",
		"Copy invoice_number, bill_of_lading, and shipment_id exactly as printed, including dashes.",
		"Put each charge line in 'line_items' with quantity, unit_price, and total when visible.",
		"Taxes go in 'taxes' with their type and amount; fuel, security, and similar surcharges go in 'surcharges'.",
		"origin and destination are the shipment endpoints, not the parties' mailing addresses.",
		"Report your own certainty in 'extraction_confidence' between 0 and 1.",
		"Never output null. If a field is not present, omit it.",
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the OCR text with a filename hint.
func BuildUserPrompt(req ExtractRequest) string {
	var b strings.Builder
	if f := strings.TrimSpace(req.FileNameHint); f != "" {
		b.WriteString("Filename: ")
		b.WriteString(f)
		b.WriteString("\n")
	}
	b.WriteString("OCR text of the invoice follows.\n\n")
	b.WriteString(req.OCRText)
	return b.String()
}
