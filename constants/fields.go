package constants

// Canonical invoice field names. These are the names used for annotations,
// review corrections, and validation violations.
const (
	FieldInvoiceNumber   = "invoice_number"
	FieldInvoiceDate     = "invoice_date"
	FieldVendorName      = "vendor_name"
	FieldVendorAddress   = "vendor_address"
	FieldVendorTaxID     = "vendor_tax_id"
	FieldCustomerName    = "customer_name"
	FieldCustomerAddress = "customer_address"
	FieldCustomerTaxID   = "customer_tax_id"
	FieldCurrency        = "currency"
	FieldTotalAmount     = "total_amount"
	FieldSubtotal        = "subtotal"
	FieldPaymentTerms    = "payment_terms"
	FieldDueDate         = "due_date"
	FieldBillOfLading    = "bill_of_lading"
	FieldShipmentID      = "shipment_id"
	FieldOrigin          = "origin"
	FieldDestination     = "destination"
	FieldWeight          = "weight"
	FieldWeightUnit      = "weight_unit"
)

// RequiredFields must be present and non-empty for a clean validation pass.
var RequiredFields = []string{
	FieldInvoiceNumber,
	FieldInvoiceDate,
	FieldVendorName,
	FieldTotalAmount,
}
