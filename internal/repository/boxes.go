package repository

import (
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freightscan/invoice-extract/internal/entity"
)

type boxRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewBoxRepository(pool *pgxpool.Pool, log *slog.Logger) BoxRepository {
	return &boxRepo{pool: pool, log: log}
}

// ReplaceForJob writes the OCR output in one transaction so a cancelled or
// failed OCR pass never leaves a partial box set behind.
func (r *boxRepo) ReplaceForJob(ctx context.Context, jobID uuid.UUID, pages map[int][]entity.BoundingBox) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM ocr_boxes WHERE job_id = $1`, jobID); err != nil {
		return err
	}

	pageNums := make([]int, 0, len(pages))
	for p := range pages {
		pageNums = append(pageNums, p)
	}
	sort.Ints(pageNums)

	total := 0
	for _, p := range pageNums {
		for _, b := range pages[p] {
			_, err := tx.Exec(ctx, `
				INSERT INTO ocr_boxes (id, job_id, page_number, "left", top, width, height, text, confidence)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				uuid.New(), jobID, p, b.Left, b.Top, b.Width, b.Height, b.Text, b.Confidence)
			if err != nil {
				return err
			}
			total++
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	r.log.Info("ocr boxes stored", "job_id", jobID, "pages", len(pages), "boxes", total)
	return nil
}

func (r *boxRepo) ListByJob(ctx context.Context, jobID uuid.UUID) ([]entity.BoundingBox, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT page_number, "left", top, width, height, text, confidence
		FROM ocr_boxes WHERE job_id = $1
		ORDER BY page_number, top, "left"`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.BoundingBox
	for rows.Next() {
		var b entity.BoundingBox
		if err := rows.Scan(&b.Page, &b.Left, &b.Top, &b.Width, &b.Height, &b.Text, &b.Confidence); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
