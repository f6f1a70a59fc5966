// Package validation checks extracted invoices for missing fields, malformed
// values, and arithmetic inconsistencies. Violations are advisory: they are
// accumulated and reported, never raised, and never block job completion.
package validation

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/freightscan/invoice-extract/constants"
	"github.com/freightscan/invoice-extract/internal/entity"
)

// ViolationKind identifies one validation rule.
type ViolationKind string

const (
	MissingRequired      ViolationKind = "missing_required"
	InvalidDate          ViolationKind = "invalid_date"
	InvalidAmount        ViolationKind = "invalid_amount"
	TotalMismatch        ViolationKind = "total_mismatch"
	LineItemMismatch     ViolationKind = "line_item_mismatch"
	ConfidenceOutOfRange ViolationKind = "confidence_out_of_range"
)

// Violation is one detected inconsistency.
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	Field   string        `json:"field"`
	Message string        `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s(%s): %s", v.Kind, v.Field, v.Message)
}

// Config carries the policy constants. Both the arithmetic tolerance and the
// date window are policy, not domain law, so they are configurable.
type Config struct {
	Tolerance     decimal.Decimal // max allowed arithmetic drift, default 0.01
	MaxPastWindow time.Duration   // how old an invoice date may be, default 365 days
	AllowFuture   bool            // accept invoice dates after validation time
	Now           func() time.Time
}

// Engine runs all rules independently and accumulates violations.
type Engine struct {
	cfg Config
	log *slog.Logger
}

func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tolerance.IsZero() {
		cfg.Tolerance = decimal.NewFromFloat(0.01)
	}
	if cfg.MaxPastWindow == 0 {
		cfg.MaxPastWindow = 365 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{cfg: cfg, log: logger}
}

// Validate runs every rule and returns ok=true iff no rule fired.
func (e *Engine) Validate(inv *entity.FreightInvoice) (bool, []Violation) {
	var vs []Violation
	vs = append(vs, e.checkRequired(inv)...)
	vs = append(vs, e.checkDate(inv)...)
	vs = append(vs, e.checkAmounts(inv)...)
	vs = append(vs, e.checkTotal(inv)...)
	vs = append(vs, e.checkLineItems(inv)...)
	vs = append(vs, e.checkConfidence(inv)...)
	if len(vs) > 0 {
		e.log.Info("validation.violations", "count", len(vs))
	}
	return len(vs) == 0, vs
}

func (e *Engine) checkRequired(inv *entity.FreightInvoice) []Violation {
	present := map[string]string{
		constants.FieldInvoiceNumber: inv.InvoiceNumber,
		constants.FieldInvoiceDate:   inv.InvoiceDate,
		constants.FieldVendorName:    inv.VendorName,
		constants.FieldTotalAmount:   inv.TotalAmount,
	}
	var vs []Violation
	for _, name := range constants.RequiredFields {
		if present[name] == "" {
			vs = append(vs, Violation{
				Kind:    MissingRequired,
				Field:   name,
				Message: "required field is absent",
			})
		}
	}
	return vs
}

func (e *Engine) checkDate(inv *entity.FreightInvoice) []Violation {
	if inv.InvoiceDate == "" {
		return nil // MissingRequired already covers absence
	}
	d, err := time.Parse("2006-01-02", inv.InvoiceDate)
	if err != nil {
		return []Violation{{
			Kind:    InvalidDate,
			Field:   constants.FieldInvoiceDate,
			Message: fmt.Sprintf("not a calendar date: %q", inv.InvoiceDate),
		}}
	}
	now := e.cfg.Now().UTC()
	if !e.cfg.AllowFuture && d.After(now) {
		return []Violation{{
			Kind:    InvalidDate,
			Field:   constants.FieldInvoiceDate,
			Message: fmt.Sprintf("invoice date %s is in the future", inv.InvoiceDate),
		}}
	}
	if now.Sub(d) > e.cfg.MaxPastWindow {
		return []Violation{{
			Kind:    InvalidDate,
			Field:   constants.FieldInvoiceDate,
			Message: fmt.Sprintf("invoice date %s is outside the accepted window", inv.InvoiceDate),
		}}
	}
	return nil
}

// checkAmounts verifies that every monetary value parses as a non-negative
// decimal. Absent optionals are skipped.
func (e *Engine) checkAmounts(inv *entity.FreightInvoice) []Violation {
	var vs []Violation
	check := func(field, value string) {
		if value == "" {
			return
		}
		d, err := decimal.NewFromString(value)
		if err != nil {
			vs = append(vs, Violation{
				Kind:    InvalidAmount,
				Field:   field,
				Message: fmt.Sprintf("not a decimal amount: %q", value),
			})
			return
		}
		if d.IsNegative() {
			vs = append(vs, Violation{
				Kind:    InvalidAmount,
				Field:   field,
				Message: fmt.Sprintf("negative amount: %s", value),
			})
		}
	}
	check(constants.FieldTotalAmount, inv.TotalAmount)
	check(constants.FieldSubtotal, inv.Subtotal)
	for i, t := range inv.Taxes {
		check(fmt.Sprintf("taxes[%d].amount", i), t.Amount)
	}
	for i, s := range inv.Surcharges {
		check(fmt.Sprintf("surcharges[%d].amount", i), s.Amount)
	}
	for i, li := range inv.LineItems {
		check(fmt.Sprintf("line_items[%d].total", i), li.Total)
		check(fmt.Sprintf("line_items[%d].unit_price", i), li.UnitPrice)
	}
	return vs
}

// checkTotal verifies subtotal + taxes + surcharges == total within tolerance.
// The rule only fires when subtotal and total both parse; malformed values are
// InvalidAmount territory.
func (e *Engine) checkTotal(inv *entity.FreightInvoice) []Violation {
	if inv.Subtotal == "" || inv.TotalAmount == "" {
		return nil
	}
	subtotal, err := decimal.NewFromString(inv.Subtotal)
	if err != nil {
		return nil
	}
	total, err := decimal.NewFromString(inv.TotalAmount)
	if err != nil {
		return nil
	}
	sum := subtotal
	for _, t := range inv.Taxes {
		if d, err := decimal.NewFromString(t.Amount); err == nil {
			sum = sum.Add(d)
		}
	}
	for _, s := range inv.Surcharges {
		if d, err := decimal.NewFromString(s.Amount); err == nil {
			sum = sum.Add(d)
		}
	}
	if sum.Sub(total).Abs().GreaterThan(e.cfg.Tolerance) {
		return []Violation{{
			Kind:  TotalMismatch,
			Field: constants.FieldTotalAmount,
			Message: fmt.Sprintf("subtotal+taxes+surcharges=%s differs from total %s",
				sum.String(), total.String()),
		}}
	}
	return nil
}

func (e *Engine) checkLineItems(inv *entity.FreightInvoice) []Violation {
	var vs []Violation
	for i, li := range inv.LineItems {
		if li.Quantity == "" || li.UnitPrice == "" || li.Total == "" {
			continue
		}
		qty, err := decimal.NewFromString(li.Quantity)
		if err != nil {
			continue
		}
		price, err := decimal.NewFromString(li.UnitPrice)
		if err != nil {
			continue
		}
		total, err := decimal.NewFromString(li.Total)
		if err != nil {
			continue
		}
		if qty.Mul(price).Sub(total).Abs().GreaterThan(e.cfg.Tolerance) {
			vs = append(vs, Violation{
				Kind:  LineItemMismatch,
				Field: fmt.Sprintf("line_items[%d]", i),
				Message: fmt.Sprintf("quantity %s x unit_price %s differs from total %s",
					li.Quantity, li.UnitPrice, li.Total),
			})
		}
	}
	return vs
}

func (e *Engine) checkConfidence(inv *entity.FreightInvoice) []Violation {
	if inv.ExtractionConfidence < 0 || inv.ExtractionConfidence > 1 {
		return []Violation{{
			Kind:    ConfidenceOutOfRange,
			Field:   "extraction_confidence",
			Message: fmt.Sprintf("confidence %v is outside [0,1]", inv.ExtractionConfidence),
		}}
	}
	return nil
}
