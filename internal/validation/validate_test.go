package validation_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/freightscan/invoice-extract/internal/entity"
	"github.com/freightscan/invoice-extract/internal/validation"
)

var fixedNow = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T) *validation.Engine {
	t.Helper()
	return validation.NewEngine(validation.Config{
		Tolerance: decimal.NewFromFloat(0.01),
		Now:       func() time.Time { return fixedNow },
	}, nil)
}

func cleanInvoice() *entity.FreightInvoice {
	return &entity.FreightInvoice{
		InvoiceNumber:        "INV-2026-0042",
		InvoiceDate:          "2026-08-01",
		VendorName:           "Acme Logistics",
		Currency:             "USD",
		Subtotal:             "90.00",
		TotalAmount:          "100.00",
		Taxes:                []entity.TaxItem{{TaxType: "VAT", Rate: "10", Amount: "10.00"}},
		ExtractionConfidence: 0.91,
	}
}

func kinds(vs []validation.Violation) map[validation.ViolationKind]int {
	out := map[validation.ViolationKind]int{}
	for _, v := range vs {
		out[v.Kind]++
	}
	return out
}

func TestValidateCleanInvoice(t *testing.T) {
	ok, vs := newEngine(t).Validate(cleanInvoice())
	if !ok || len(vs) != 0 {
		t.Fatalf("expected clean invoice, got %v", vs)
	}
}

func TestValidateTotalMismatch(t *testing.T) {
	inv := cleanInvoice()
	inv.TotalAmount = "105.00"
	ok, vs := newEngine(t).Validate(inv)
	if ok {
		t.Fatal("expected a violation")
	}
	if len(vs) != 1 || vs[0].Kind != validation.TotalMismatch {
		t.Fatalf("expected exactly one total_mismatch, got %v", vs)
	}
}

func TestValidateTotalWithinTolerance(t *testing.T) {
	inv := cleanInvoice()
	inv.TotalAmount = "100.01"
	if ok, vs := newEngine(t).Validate(inv); !ok {
		t.Fatalf("0.01 drift should be tolerated, got %v", vs)
	}
}

func TestValidateSurchargesCountTowardTotal(t *testing.T) {
	inv := cleanInvoice()
	inv.Surcharges = []entity.SurchargeItem{{ChargeType: "fuel", Amount: "15.00"}}
	inv.TotalAmount = "115.00"
	if ok, vs := newEngine(t).Validate(inv); !ok {
		t.Fatalf("surcharge-inclusive total should pass, got %v", vs)
	}
}

func TestValidateMissingRequired(t *testing.T) {
	inv := cleanInvoice()
	inv.InvoiceNumber = ""
	inv.VendorName = ""
	_, vs := newEngine(t).Validate(inv)
	if kinds(vs)[validation.MissingRequired] != 2 {
		t.Fatalf("expected two missing_required, got %v", vs)
	}
}

func TestValidateMissingDateIsOnlyReportedOnce(t *testing.T) {
	inv := cleanInvoice()
	inv.InvoiceDate = ""
	_, vs := newEngine(t).Validate(inv)
	k := kinds(vs)
	if k[validation.MissingRequired] != 1 || k[validation.InvalidDate] != 0 {
		t.Fatalf("absent date should fire missing_required only, got %v", vs)
	}
}

func TestValidateMalformedDate(t *testing.T) {
	inv := cleanInvoice()
	inv.InvoiceDate = "15/03/2026"
	_, vs := newEngine(t).Validate(inv)
	if kinds(vs)[validation.InvalidDate] != 1 {
		t.Fatalf("expected invalid_date, got %v", vs)
	}
}

func TestValidateFutureDate(t *testing.T) {
	inv := cleanInvoice()
	inv.InvoiceDate = "2026-09-15"
	_, vs := newEngine(t).Validate(inv)
	if kinds(vs)[validation.InvalidDate] != 1 {
		t.Fatalf("expected invalid_date for future date, got %v", vs)
	}

	allowing := validation.NewEngine(validation.Config{
		AllowFuture: true,
		Now:         func() time.Time { return fixedNow },
	}, nil)
	if ok, vs := allowing.Validate(inv); !ok {
		t.Fatalf("future date should pass with AllowFuture, got %v", vs)
	}
}

func TestValidateDateOutsideWindow(t *testing.T) {
	inv := cleanInvoice()
	inv.InvoiceDate = "2024-01-01"
	_, vs := newEngine(t).Validate(inv)
	if kinds(vs)[validation.InvalidDate] != 1 {
		t.Fatalf("expected invalid_date for stale date, got %v", vs)
	}
}

func TestValidateMalformedAmount(t *testing.T) {
	inv := cleanInvoice()
	inv.Subtotal = "90,00"
	_, vs := newEngine(t).Validate(inv)
	k := kinds(vs)
	if k[validation.InvalidAmount] != 1 {
		t.Fatalf("expected invalid_amount, got %v", vs)
	}
	// The arithmetic rule must not also fire on an unparseable subtotal.
	if k[validation.TotalMismatch] != 0 {
		t.Fatalf("total_mismatch should not fire, got %v", vs)
	}
}

func TestValidateNegativeAmount(t *testing.T) {
	inv := cleanInvoice()
	inv.Taxes = []entity.TaxItem{{TaxType: "VAT", Amount: "-10.00"}}
	_, vs := newEngine(t).Validate(inv)
	if kinds(vs)[validation.InvalidAmount] == 0 {
		t.Fatalf("expected invalid_amount for negative tax, got %v", vs)
	}
}

func TestValidateLineItemArithmetic(t *testing.T) {
	inv := cleanInvoice()
	inv.LineItems = []entity.LineItem{
		{Description: "Ocean freight", Quantity: "2", UnitPrice: "10.00", Total: "20.00"},
		{Description: "Handling", Quantity: "3", UnitPrice: "5.00", Total: "14.00"},
	}
	_, vs := newEngine(t).Validate(inv)
	k := kinds(vs)
	if k[validation.LineItemMismatch] != 1 {
		t.Fatalf("expected one line_item_mismatch, got %v", vs)
	}
}

func TestValidateLineItemWithoutQuantityIsSkipped(t *testing.T) {
	inv := cleanInvoice()
	inv.LineItems = []entity.LineItem{{Description: "Flat fee", Total: "50.00"}}
	if ok, vs := newEngine(t).Validate(inv); !ok {
		t.Fatalf("incomplete line item should be skipped, got %v", vs)
	}
}

func TestValidateConfidenceOutOfRange(t *testing.T) {
	inv := cleanInvoice()
	inv.ExtractionConfidence = 1.5
	_, vs := newEngine(t).Validate(inv)
	if kinds(vs)[validation.ConfidenceOutOfRange] != 1 {
		t.Fatalf("expected confidence_out_of_range, got %v", vs)
	}
}

func TestValidateAccumulatesAcrossRules(t *testing.T) {
	inv := &entity.FreightInvoice{
		InvoiceDate:          "not-a-date",
		TotalAmount:          "abc",
		ExtractionConfidence: -0.2,
	}
	ok, vs := newEngine(t).Validate(inv)
	if ok {
		t.Fatal("expected violations")
	}
	k := kinds(vs)
	if k[validation.MissingRequired] == 0 || k[validation.InvalidDate] == 0 ||
		k[validation.InvalidAmount] == 0 || k[validation.ConfidenceOutOfRange] == 0 {
		t.Fatalf("expected all rules to report independently, got %v", vs)
	}
}
