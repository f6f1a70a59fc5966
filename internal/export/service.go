package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/freightscan/invoice-extract/constants"
	"github.com/freightscan/invoice-extract/internal/common"
	"github.com/freightscan/invoice-extract/internal/entity"
	"github.com/freightscan/invoice-extract/internal/repository"
	"github.com/freightscan/invoice-extract/internal/validation"
)

// Service is a tiny façade over repositories that renders a completed job's
// invoice as XLSX or JSON. Exports always apply reviewer corrections first.
type Service struct {
	jobs        repository.JobRepository
	invoices    repository.InvoiceRepository
	annotations repository.AnnotationRepository
	logger      *slog.Logger
}

func NewService(jobs repository.JobRepository, invoices repository.InvoiceRepository, annotations repository.AnnotationRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, invoices: invoices, annotations: annotations, logger: logger}
}

type merged struct {
	invoice    entity.FreightInvoice
	violations []validation.Violation
}

// load fetches the job's invoice with corrections applied and its recorded
// violations. Only completed jobs are exportable.
func (s *Service) load(ctx context.Context, jobID uuid.UUID) (*merged, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != constants.JobStatusCompleted {
		return nil, fmt.Errorf("job %s is %s, not %s: %w",
			jobID, job.Status, constants.JobStatusCompleted, common.ErrInvalidInput)
	}
	inv, err := s.invoices.GetByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	anns, err := s.annotations.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	out := &merged{invoice: inv.Merged(anns)}

	raw, err := s.jobs.GetViolations(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out.violations); err != nil {
			return nil, fmt.Errorf("recorded violations: %w", err)
		}
	}
	return out, nil
}

// JSONExport is the machine-readable export shape. Unverified marks invoices
// that completed with outstanding validation violations.
type JSONExport struct {
	Invoice    entity.FreightInvoice  `json:"invoice"`
	Unverified bool                   `json:"unverified"`
	Violations []validation.Violation `json:"violations,omitempty"`
}

// ExportInvoiceJSON returns the merged invoice plus its validation outcome.
func (s *Service) ExportInvoiceJSON(ctx context.Context, jobID uuid.UUID) ([]byte, error) {
	m, err := s.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	out := JSONExport{
		Invoice:    m.invoice,
		Unverified: len(m.violations) > 0,
		Violations: m.violations,
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	s.logger.Info("export.json.ok", "job_id", jobID.String(), "unverified", out.Unverified)
	return data, nil
}

// ExportInvoiceXLSX returns an XLSX workbook (as bytes) with one sheet for the
// invoice header and one per non-empty charge collection.
func (s *Service) ExportInvoiceXLSX(ctx context.Context, jobID uuid.UUID) ([]byte, error) {
	start := time.Now()
	m, err := s.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	inv := m.invoice

	f := excelize.NewFile()
	const headerSheet = "Invoice"
	if err := ensureSheet(f, headerSheet); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(headerSheet)
	f.SetActiveSheet(activeIndex)

	row := 1
	writePair := func(label, value string) {
		if value == "" {
			return
		}
		cellA, _ := excelize.CoordinatesToCellName(1, row)
		cellB, _ := excelize.CoordinatesToCellName(2, row)
		_ = f.SetCellValue(headerSheet, cellA, label)
		_ = f.SetCellValue(headerSheet, cellB, value)
		row++
	}
	writePair("Invoice Number", inv.InvoiceNumber)
	writePair("Invoice Date", inv.InvoiceDate)
	writePair("Vendor", inv.VendorName)
	writePair("Vendor Address", inv.VendorAddress)
	writePair("Customer", inv.CustomerName)
	writePair("Currency", inv.Currency)
	writePair("Subtotal", inv.Subtotal)
	writePair("Total Amount", inv.TotalAmount)
	writePair("Payment Terms", inv.PaymentTerms)
	writePair("Due Date", inv.DueDate)
	writePair("Bill of Lading", inv.BillOfLading)
	writePair("Shipment ID", inv.ShipmentID)
	writePair("Origin", inv.Origin)
	writePair("Destination", inv.Destination)
	if len(m.violations) > 0 {
		writePair("Verification", fmt.Sprintf("UNVERIFIED (%d violations)", len(m.violations)))
	} else {
		writePair("Verification", "OK")
	}
	_ = f.SetColWidth(headerSheet, "A", "A", 18)
	_ = f.SetColWidth(headerSheet, "B", "B", 48)

	if len(inv.LineItems) > 0 {
		if err := s.writeLineItems(f, inv.LineItems); err != nil {
			return nil, err
		}
	}
	if len(inv.Taxes) > 0 {
		if err := s.writeTaxes(f, inv.Taxes); err != nil {
			return nil, err
		}
	}
	if len(inv.Surcharges) > 0 {
		if err := s.writeSurcharges(f, inv.Surcharges); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok",
		"job_id", jobID.String(),
		"line_items", len(inv.LineItems),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func (s *Service) writeLineItems(f *excelize.File, items []entity.LineItem) error {
	const sheet = "Line Items"
	if err := ensureSheet(f, sheet); err != nil {
		return err
	}
	writeHeaders(f, sheet, []string{"Description", "Quantity", "Unit", "Unit Price", "Total", "Service Type"})
	for i, li := range items {
		writeRow(f, sheet, i+2, []any{li.Description, li.Quantity, li.Unit, li.UnitPrice, li.Total, li.ServiceType})
	}
	_ = f.SetColWidth(sheet, "A", "A", 48)
	_ = f.SetColWidth(sheet, "B", "F", 14)
	return nil
}

func (s *Service) writeTaxes(f *excelize.File, taxes []entity.TaxItem) error {
	const sheet = "Taxes"
	if err := ensureSheet(f, sheet); err != nil {
		return err
	}
	writeHeaders(f, sheet, []string{"Tax Type", "Rate", "Amount"})
	for i, t := range taxes {
		writeRow(f, sheet, i+2, []any{t.TaxType, t.Rate, t.Amount})
	}
	_ = f.SetColWidth(sheet, "A", "A", 24)
	return nil
}

func (s *Service) writeSurcharges(f *excelize.File, charges []entity.SurchargeItem) error {
	const sheet = "Surcharges"
	if err := ensureSheet(f, sheet); err != nil {
		return err
	}
	writeHeaders(f, sheet, []string{"Charge Type", "Amount"})
	for i, c := range charges {
		writeRow(f, sheet, i+2, []any{c.ChargeType, c.Amount})
	}
	_ = f.SetColWidth(sheet, "A", "A", 24)
	return nil
}

func ensureSheet(f *excelize.File, name string) error {
	if index, _ := f.GetSheetIndex(name); index == -1 {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}
	return nil
}

func writeHeaders(f *excelize.File, sheet string, headers []string) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}
