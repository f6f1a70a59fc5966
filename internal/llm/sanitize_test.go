package llm_test

import (
	"encoding/json"
	"testing"

	"github.com/freightscan/invoice-extract/internal/llm"
)

func sanitize(t *testing.T, raw string) map[string]any {
	t.Helper()
	out, _, err := llm.NormalizeAndSanitizeJSON([]byte(raw), nil)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestSanitizeRenamesSynonyms(t *testing.T) {
	m := sanitize(t, `{"invoice_no":"INV-1","total":"100.00","currency_code":"usd","confidence":0.9}`)
	if m["invoice_number"] != "INV-1" {
		t.Fatalf("invoice_no not renamed: %v", m)
	}
	if m["total_amount"] != "100.00" {
		t.Fatalf("total not renamed: %v", m)
	}
	if m["currency"] != "USD" {
		t.Fatalf("currency not renamed/uppercased: %v", m)
	}
	if m["extraction_confidence"] != 0.9 {
		t.Fatalf("confidence not renamed: %v", m)
	}
}

func TestSanitizeCoercesNumbersToDecimalStrings(t *testing.T) {
	m := sanitize(t, `{"total_amount":1250.5,"subtotal":1000,"taxes":[{"tax_type":"VAT","amount":250.5,"rate":20}]}`)
	if m["total_amount"] != "1250.50" {
		t.Fatalf("fractional number: got %v", m["total_amount"])
	}
	if m["subtotal"] != "1000" {
		t.Fatalf("integral number: got %v", m["subtotal"])
	}
	tax := m["taxes"].([]any)[0].(map[string]any)
	if tax["amount"] != "250.50" || tax["rate"] != "20" {
		t.Fatalf("nested coercion: got %v", tax)
	}
}

func TestSanitizeStripsThousandsSeparators(t *testing.T) {
	m := sanitize(t, `{"total_amount":"1,250.00"}`)
	if m["total_amount"] != "1250.00" {
		t.Fatalf("got %v", m["total_amount"])
	}
}

func TestSanitizeDropsNullsAndEmpties(t *testing.T) {
	m := sanitize(t, `{"invoice_number":"INV-1","vendor_address":null,"customer_name":"  ","due_date":"null"}`)
	for _, k := range []string{"vendor_address", "customer_name", "due_date"} {
		if _, ok := m[k]; ok {
			t.Fatalf("%s should have been dropped: %v", k, m)
		}
	}
	if m["invoice_number"] != "INV-1" {
		t.Fatalf("real value lost: %v", m)
	}
}

func TestSanitizeMovesUnknownKeysToExtra(t *testing.T) {
	m := sanitize(t, `{"invoice_number":"INV-1","po_number":"PO-9","driver":"J. Doe"}`)
	extra, ok := m["extra"].(map[string]any)
	if !ok {
		t.Fatalf("extra bucket missing: %v", m)
	}
	if extra["po_number"] != "PO-9" || extra["driver"] != "J. Doe" {
		t.Fatalf("unknown keys not preserved: %v", extra)
	}
	if _, ok := m["po_number"]; ok {
		t.Fatal("unknown key left at top level")
	}
}

func TestSanitizeMalformedJSONFails(t *testing.T) {
	if _, _, err := llm.NormalizeAndSanitizeJSON([]byte(`not json`), nil); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestSanitizedOutputPassesSchema(t *testing.T) {
	raw := `{
		"invoice_no": "INV-2024-001",
		"invoice_date": "2024-03-15",
		"vendor_name": "Acme Logistics",
		"currency_code": "usd",
		"total": 1250.5,
		"subtotal": 1000,
		"po_number": "PO-9",
		"taxes": [{"tax_type": "VAT", "amount": 250.5}]
	}`
	cleaned, _, err := llm.NormalizeAndSanitizeJSON([]byte(raw), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := llm.CheckAgainstSchema(llm.BuildInvoiceJSONSchema(), cleaned); err != nil {
		t.Fatalf("sanitized output should validate: %v", err)
	}
}
