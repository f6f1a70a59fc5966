package llm

// BuildInvoiceJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We pass this to the provider as a structured output constraint
// and also use it locally to validate the response.
func BuildInvoiceJSONSchema() map[string]any {
	lineItem := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"description":  map[string]any{"type": "string", "minLength": 1},
			"quantity":     decimalProp(),
			"unit":         map[string]any{"type": "string"},
			"unit_price":   decimalProp(),
			"total":        decimalProp(),
			"service_type": map[string]any{"type": "string"},
		},
		"required":             []string{"description", "total"},
		"additionalProperties": false,
	}
	taxItem := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tax_type": map[string]any{"type": "string", "minLength": 1},
			"rate":     decimalProp(),
			"amount":   decimalProp(),
		},
		"required":             []string{"tax_type", "amount"},
		"additionalProperties": false,
	}
	surchargeItem := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"charge_type": map[string]any{"type": "string", "minLength": 1},
			"amount":      decimalProp(),
		},
		"required":             []string{"charge_type", "amount"},
		"additionalProperties": false,
	}

	props := map[string]any{
		"invoice_number":        map[string]any{"type": "string", "minLength": 1},
		"invoice_date":          map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
		"vendor_name":           map[string]any{"type": "string", "minLength": 1},
		"vendor_address":        map[string]any{"type": "string"},
		"vendor_tax_id":         map[string]any{"type": "string"},
		"customer_name":         map[string]any{"type": "string"},
		"customer_address":      map[string]any{"type": "string"},
		"customer_tax_id":       map[string]any{"type": "string"},
		"currency":              map[string]any{"type": "string", "minLength": 3, "maxLength": 3},
		"total_amount":          decimalProp(),
		"subtotal":              decimalProp(),
		"payment_terms":         map[string]any{"type": "string"},
		"due_date":              map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
		"bill_of_lading":        map[string]any{"type": "string"},
		"shipment_id":           map[string]any{"type": "string"},
		"origin":                map[string]any{"type": "string"},
		"destination":           map[string]any{"type": "string"},
		"weight":                decimalProp(),
		"weight_unit":           map[string]any{"type": "string"},
		"taxes":                 map[string]any{"type": "array", "items": taxItem},
		"surcharges":            map[string]any{"type": "array", "items": surchargeItem},
		"line_items":            map[string]any{"type": "array", "items": lineItem},
		"extraction_confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		// bucket for keys the model volunteered that we do not model
		"extra": map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": "string"},
		},
	}

	return map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"properties":           props,
		"required":             []string{"invoice_number", "invoice_date", "vendor_name", "currency", "total_amount"},
		"additionalProperties": false,
	}
}

func decimalProp() map[string]any {
	return map[string]any{"type": "string", "pattern": `^-?\d+(\.\d{1,4})?$`}
}
