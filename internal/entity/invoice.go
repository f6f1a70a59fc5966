package entity

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/freightscan/invoice-extract/constants"
)

// LineItem is one charge line on a freight invoice. Monetary and quantity
// values are decimal strings so that validation can use exact arithmetic.
type LineItem struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity,omitempty"`
	Unit        string `json:"unit,omitempty"`
	UnitPrice   string `json:"unit_price,omitempty"`
	Total       string `json:"total"`
	ServiceType string `json:"service_type,omitempty"`
}

type TaxItem struct {
	TaxType string `json:"tax_type"`
	Rate    string `json:"rate,omitempty"`
	Amount  string `json:"amount"`
}

type SurchargeItem struct {
	ChargeType string `json:"charge_type"`
	Amount     string `json:"amount"`
}

// FreightInvoice is the normalized shape we want from the field extractor.
// Unrecognized keys from the provider land in Extra rather than being lost.
type FreightInvoice struct {
	InvoiceNumber   string          `json:"invoice_number"`
	InvoiceDate     string          `json:"invoice_date"` // YYYY-MM-DD
	VendorName      string          `json:"vendor_name"`
	VendorAddress   string          `json:"vendor_address,omitempty"`
	VendorTaxID     string          `json:"vendor_tax_id,omitempty"`
	CustomerName    string          `json:"customer_name,omitempty"`
	CustomerAddress string          `json:"customer_address,omitempty"`
	CustomerTaxID   string          `json:"customer_tax_id,omitempty"`
	Currency        string          `json:"currency"` // ISO 4217
	TotalAmount     string          `json:"total_amount"`
	Subtotal        string          `json:"subtotal,omitempty"`
	PaymentTerms    string          `json:"payment_terms,omitempty"`
	DueDate         string          `json:"due_date,omitempty"`
	BillOfLading    string          `json:"bill_of_lading,omitempty"`
	ShipmentID      string          `json:"shipment_id,omitempty"`
	Origin          string          `json:"origin,omitempty"`
	Destination     string          `json:"destination,omitempty"`
	Weight          string          `json:"weight,omitempty"`
	WeightUnit      string          `json:"weight_unit,omitempty"`
	Taxes           []TaxItem       `json:"taxes,omitempty"`
	Surcharges      []SurchargeItem `json:"surcharges,omitempty"`
	LineItems       []LineItem      `json:"line_items,omitempty"`

	ExtractionConfidence float64           `json:"extraction_confidence"`
	ExtractionTimestamp  time.Time         `json:"extraction_timestamp,omitzero"`
	SourceFile           string            `json:"source_file,omitempty"`
	Extra                map[string]string `json:"extra,omitempty"`
}

// FieldSource tells whether a field value came from extraction or review.
type FieldSource string

const (
	SourceExtracted FieldSource = "extracted"
	SourceCorrected FieldSource = "corrected"
)

// FieldValue is one named invoice field as a string, with its provenance.
type FieldValue struct {
	Name   string      `json:"name"`
	Value  string      `json:"value"`
	Source FieldSource `json:"source"`
}

// Fields flattens the invoice into named string values in a stable order:
// scalar header fields first, then per-line-item description and total.
// Empty fields are skipped; they have nothing to locate on the page.
func (inv *FreightInvoice) Fields() []FieldValue {
	out := make([]FieldValue, 0, 20+2*len(inv.LineItems))
	add := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		out = append(out, FieldValue{Name: name, Value: value, Source: SourceExtracted})
	}
	add(constants.FieldInvoiceNumber, inv.InvoiceNumber)
	add(constants.FieldInvoiceDate, inv.InvoiceDate)
	add(constants.FieldVendorName, inv.VendorName)
	add(constants.FieldVendorAddress, inv.VendorAddress)
	add(constants.FieldVendorTaxID, inv.VendorTaxID)
	add(constants.FieldCustomerName, inv.CustomerName)
	add(constants.FieldCustomerAddress, inv.CustomerAddress)
	add(constants.FieldCustomerTaxID, inv.CustomerTaxID)
	add(constants.FieldCurrency, inv.Currency)
	add(constants.FieldTotalAmount, inv.TotalAmount)
	add(constants.FieldSubtotal, inv.Subtotal)
	add(constants.FieldPaymentTerms, inv.PaymentTerms)
	add(constants.FieldDueDate, inv.DueDate)
	add(constants.FieldBillOfLading, inv.BillOfLading)
	add(constants.FieldShipmentID, inv.ShipmentID)
	add(constants.FieldOrigin, inv.Origin)
	add(constants.FieldDestination, inv.Destination)
	add(constants.FieldWeight, inv.Weight)
	add(constants.FieldWeightUnit, inv.WeightUnit)
	for i, li := range inv.LineItems {
		add(fmt.Sprintf("line_items[%d].description", i), li.Description)
		add(fmt.Sprintf("line_items[%d].total", i), li.Total)
	}
	return out
}

// SetField assigns a named field by its canonical name. Line-item fields use
// the "line_items[i].<field>" names that Fields emits. Unknown names go to the
// Extra bucket so that review corrections are never dropped.
func (inv *FreightInvoice) SetField(name, value string) {
	switch name {
	case constants.FieldInvoiceNumber:
		inv.InvoiceNumber = value
	case constants.FieldInvoiceDate:
		inv.InvoiceDate = value
	case constants.FieldVendorName:
		inv.VendorName = value
	case constants.FieldVendorAddress:
		inv.VendorAddress = value
	case constants.FieldVendorTaxID:
		inv.VendorTaxID = value
	case constants.FieldCustomerName:
		inv.CustomerName = value
	case constants.FieldCustomerAddress:
		inv.CustomerAddress = value
	case constants.FieldCustomerTaxID:
		inv.CustomerTaxID = value
	case constants.FieldCurrency:
		inv.Currency = value
	case constants.FieldTotalAmount:
		inv.TotalAmount = value
	case constants.FieldSubtotal:
		inv.Subtotal = value
	case constants.FieldPaymentTerms:
		inv.PaymentTerms = value
	case constants.FieldDueDate:
		inv.DueDate = value
	case constants.FieldBillOfLading:
		inv.BillOfLading = value
	case constants.FieldShipmentID:
		inv.ShipmentID = value
	case constants.FieldOrigin:
		inv.Origin = value
	case constants.FieldDestination:
		inv.Destination = value
	case constants.FieldWeight:
		inv.Weight = value
	case constants.FieldWeightUnit:
		inv.WeightUnit = value
	default:
		if inv.setLineItemField(name, value) {
			return
		}
		if inv.Extra == nil {
			inv.Extra = make(map[string]string)
		}
		inv.Extra[name] = value
	}
}

// setLineItemField applies a "line_items[i].<field>" name to the slice.
// Reports false when the name does not address an existing line item, in
// which case the caller keeps the value in Extra instead.
func (inv *FreightInvoice) setLineItemField(name, value string) bool {
	rest, ok := strings.CutPrefix(name, "line_items[")
	if !ok {
		return false
	}
	idx, field, ok := strings.Cut(rest, "].")
	if !ok {
		return false
	}
	i, err := strconv.Atoi(idx)
	if err != nil || i < 0 || i >= len(inv.LineItems) {
		return false
	}
	switch field {
	case "description":
		inv.LineItems[i].Description = value
	case "quantity":
		inv.LineItems[i].Quantity = value
	case "unit":
		inv.LineItems[i].Unit = value
	case "unit_price":
		inv.LineItems[i].UnitPrice = value
	case "total":
		inv.LineItems[i].Total = value
	case "service_type":
		inv.LineItems[i].ServiceType = value
	default:
		return false
	}
	return true
}

// Merged returns a copy of the invoice with every corrected annotation value
// applied over the extracted one. This is the view validation and export see.
func (inv *FreightInvoice) Merged(annotations []Annotation) FreightInvoice {
	out := *inv
	out.Taxes = append([]TaxItem(nil), inv.Taxes...)
	out.Surcharges = append([]SurchargeItem(nil), inv.Surcharges...)
	out.LineItems = append([]LineItem(nil), inv.LineItems...)
	if inv.Extra != nil {
		out.Extra = make(map[string]string, len(inv.Extra))
		for k, v := range inv.Extra {
			out.Extra[k] = v
		}
	}
	for _, a := range annotations {
		if a.CorrectedValue == nil {
			continue
		}
		out.SetField(a.FieldName, *a.CorrectedValue)
	}
	return out
}
