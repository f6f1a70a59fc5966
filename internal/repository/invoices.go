package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freightscan/invoice-extract/internal/common"
	"github.com/freightscan/invoice-extract/internal/entity"
)

type invoiceRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewInvoiceRepository(pool *pgxpool.Pool, log *slog.Logger) InvoiceRepository {
	return &invoiceRepo{pool: pool, log: log}
}

// Upsert stores the normalized invoice plus the raw provider JSON for audit.
// One invoice per job.
func (r *invoiceRepo) Upsert(ctx context.Context, jobID uuid.UUID, inv *entity.FreightInvoice, raw json.RawMessage) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO invoice_records (id, job_id, invoice_number, vendor_name, total_amount,
			currency, extraction_confidence, extracted_data, raw_response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (job_id) DO UPDATE SET
			invoice_number = EXCLUDED.invoice_number,
			vendor_name = EXCLUDED.vendor_name,
			total_amount = EXCLUDED.total_amount,
			currency = EXCLUDED.currency,
			extraction_confidence = EXCLUDED.extraction_confidence,
			extracted_data = EXCLUDED.extracted_data,
			raw_response = EXCLUDED.raw_response`,
		uuid.New(), jobID, inv.InvoiceNumber, inv.VendorName, inv.TotalAmount,
		inv.Currency, inv.ExtractionConfidence, data, raw, time.Now().UTC())
	if err != nil {
		r.log.Error("invoice upsert failed", "job_id", jobID, "err", err)
		return err
	}
	r.log.Info("invoice stored", "job_id", jobID, "invoice", inv.InvoiceNumber)
	return nil
}

func (r *invoiceRepo) GetByJob(ctx context.Context, jobID uuid.UUID) (*entity.FreightInvoice, error) {
	var data []byte
	err := r.pool.QueryRow(ctx,
		`SELECT extracted_data FROM invoice_records WHERE job_id = $1`, jobID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	var inv entity.FreightInvoice
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}
