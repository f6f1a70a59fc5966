package repository

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freightscan/invoice-extract/internal/common"
	"github.com/freightscan/invoice-extract/internal/entity"
)

type annotationRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewAnnotationRepository(pool *pgxpool.Pool, log *slog.Logger) AnnotationRepository {
	return &annotationRepo{pool: pool, log: log}
}

// ReplaceForJob rewrites the annotation set transactionally; re-running
// reconciliation must not duplicate field annotations.
func (r *annotationRepo) ReplaceForJob(ctx context.Context, jobID uuid.UUID, anns []entity.Annotation) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM annotations WHERE job_id = $1`, jobID); err != nil {
		return err
	}
	for _, a := range anns {
		regions, err := json.Marshal(a.Regions)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO annotations (id, job_id, field_name, extracted_value, corrected_value, confidence, regions, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			a.ID, jobID, a.FieldName, a.ExtractedValue, a.CorrectedValue, a.Confidence, regions, a.CreatedAt)
		if err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	r.log.Info("annotations stored", "job_id", jobID, "count", len(anns))
	return nil
}

func (r *annotationRepo) ListByJob(ctx context.Context, jobID uuid.UUID) ([]entity.Annotation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, job_id, field_name, extracted_value, corrected_value, confidence, regions, created_at
		FROM annotations WHERE job_id = $1 ORDER BY created_at, field_name`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.Annotation
	for rows.Next() {
		var a entity.Annotation
		var regions []byte
		if err := rows.Scan(&a.ID, &a.JobID, &a.FieldName, &a.ExtractedValue,
			&a.CorrectedValue, &a.Confidence, &regions, &a.CreatedAt); err != nil {
			return nil, err
		}
		if len(regions) > 0 {
			if err := json.Unmarshal(regions, &a.Regions); err != nil {
				return nil, err
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *annotationRepo) SetCorrectedValue(ctx context.Context, jobID uuid.UUID, fieldName, value string) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE annotations SET corrected_value = $3
		WHERE job_id = $1 AND field_name = $2`,
		jobID, fieldName, value)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	r.log.Info("annotation corrected", "job_id", jobID, "field", fieldName)
	return nil
}
