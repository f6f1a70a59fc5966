package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

var moneyFields = []string{"total_amount", "subtotal", "weight"}

var knownKeys = map[string]struct{}{
	"invoice_number": {}, "invoice_date": {}, "vendor_name": {},
	"vendor_address": {}, "vendor_tax_id": {}, "customer_name": {},
	"customer_address": {}, "customer_tax_id": {}, "currency": {},
	"total_amount": {}, "subtotal": {}, "payment_terms": {}, "due_date": {},
	"bill_of_lading": {}, "shipment_id": {}, "origin": {}, "destination": {},
	"weight": {}, "weight_unit": {}, "taxes": {}, "surcharges": {},
	"line_items": {}, "extraction_confidence": {},
}

// NormalizeAndSanitizeJSON
// - Renames known synonyms (confidence -> extraction_confidence)
// - Drops null/empty optionals
// - Coerces numeric -> string for money-ish fields, top-level and nested
// - Moves unknown keys into the "extra" bucket instead of losing them
func NormalizeAndSanitizeJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	notes := make([]string, 0, 8)
	rename := func(from, to string) {
		if v, ok := m[from]; ok {
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
			notes = append(notes, from+"->"+to)
		}
	}
	rename("confidence", "extraction_confidence")
	rename("total", "total_amount")
	rename("invoice_no", "invoice_number")
	rename("currency_code", "currency")

	for _, k := range moneyFields {
		coerceDecimal(m, k, &notes)
	}
	for _, listKey := range []string{"taxes", "surcharges", "line_items"} {
		items, ok := m[listKey].([]any)
		if !ok {
			continue
		}
		for _, it := range items {
			obj, ok := it.(map[string]any)
			if !ok {
				continue
			}
			for _, k := range []string{"amount", "rate", "quantity", "unit_price", "total"} {
				coerceDecimal(obj, k, &notes)
			}
		}
	}

	if v, ok := m["currency"].(string); ok {
		m["currency"] = strings.ToUpper(strings.TrimSpace(v))
	}

	// Trim strings, drop empties, and route unknown keys to "extra" so review
	// still sees whatever the model volunteered.
	extra := map[string]any{}
	for k, v := range m {
		if s, ok := v.(string); ok {
			s = strings.TrimSpace(s)
			if s == "" || strings.EqualFold(s, "null") {
				delete(m, k)
				notes = append(notes, k+"(empty)")
				continue
			}
			m[k] = s
		}
		if v == nil {
			delete(m, k)
			notes = append(notes, k+"(null)")
			continue
		}
		if _, known := knownKeys[k]; !known && k != "extra" {
			extra[k] = m[k]
			delete(m, k)
			notes = append(notes, k+"(moved to extra)")
		}
	}
	if len(extra) > 0 {
		flat := map[string]string{}
		for k, v := range extra {
			flat[k] = fmt.Sprintf("%v", v)
		}
		m["extra"] = flat
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, notes, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(notes) > 0 {
		logger.Warn("llm.extract.normalize_sanitize", "changes", notes)
	}
	return out, notes, nil
}

func coerceDecimal(m map[string]any, k string, notes *[]string) {
	v, ok := m[k]
	if !ok {
		return
	}
	switch t := v.(type) {
	case float64:
		if t == float64(int64(t)) {
			m[k] = fmt.Sprintf("%d", int64(t))
		} else {
			m[k] = fmt.Sprintf("%.2f", t)
		}
		*notes = append(*notes, k+"(number)")
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			delete(m, k)
			*notes = append(*notes, k+"(empty)")
		} else {
			m[k] = strings.ReplaceAll(s, ",", "")
		}
	case nil:
		delete(m, k)
		*notes = append(*notes, k+"(null)")
	}
}
