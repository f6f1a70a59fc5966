package llm

import (
	"context"

	"github.com/freightscan/invoice-extract/internal/entity"
)

type ExtractRequest struct {
	OCRText         string
	FileNameHint    string
	DefaultCurrency string
	OCRConfidence   float64 // quality score from the OCR stage, 0..1
}

// FieldExtractor is the interface the pipeline depends on. The raw provider
// JSON is returned alongside the parsed invoice for audit storage.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, req ExtractRequest) (entity.FreightInvoice, []byte, error)
}
