package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freightscan/invoice-extract/constants"
	"github.com/freightscan/invoice-extract/internal/common"
	"github.com/freightscan/invoice-extract/internal/entity"
)

type jobRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewJobRepository(pool *pgxpool.Pool, log *slog.Logger) JobRepository {
	return &jobRepo{pool: pool, log: log}
}

const jobColumns = `id, status, file_name, blob_key, ocr_provider, llm_provider,
	progress, quality_score, error_message, created_at, updated_at`

func scanJob(row pgx.Row) (*entity.Job, error) {
	var j entity.Job
	var status string
	err := row.Scan(&j.ID, &status, &j.FileName, &j.BlobKey, &j.OCRProvider,
		&j.LLMProvider, &j.Progress, &j.QualityScore, &j.ErrorMessage,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	j.Status = constants.JobStatus(status)
	return &j, nil
}

func (r *jobRepo) Create(ctx context.Context, fileName, blobKey, ocrProvider, llmProvider string) (*entity.Job, error) {
	id := uuid.New()
	now := time.Now().UTC()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO jobs (id, status, file_name, blob_key, ocr_provider, llm_provider, progress, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $7)
		RETURNING `+jobColumns,
		id, string(constants.JobStatusPending), fileName, blobKey, ocrProvider, llmProvider, now)
	job, err := scanJob(row)
	if err != nil {
		r.log.Error("job create failed", "file_name", fileName, "err", err)
		return nil, err
	}
	r.log.Info("job created", "job_id", job.ID, "file_name", fileName)
	return job, nil
}

func (r *jobRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
}

// ListPending returns the oldest pending jobs, for the intake poller.
func (r *jobRepo) ListPending(ctx context.Context, limit int) ([]*entity.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = $1 ORDER BY created_at LIMIT $2`,
		string(constants.JobStatusPending), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// Transition applies one status move atomically. The row is locked for the
// duration of the check so two workers can never race the same transition.
func (r *jobRepo) Transition(ctx context.Context, id uuid.UUID, from, to constants.JobStatus) (*entity.Job, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cur string
	var progress int
	err = tx.QueryRow(ctx, `SELECT status, progress FROM jobs WHERE id = $1 FOR UPDATE`, id).
		Scan(&cur, &progress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	current := constants.JobStatus(cur)
	if current.Terminal() {
		return nil, fmt.Errorf("job %s is %s: %w", id, current, common.ErrJobTerminal)
	}
	if current != from || !constants.CanTransition(from, to) {
		return nil, fmt.Errorf("job %s: %s -> %s (at %s): %w", id, from, to, current, common.ErrIllegalTransition)
	}
	newProgress := progress
	if p := constants.ProgressFor(to); p > newProgress {
		newProgress = p
	}
	row := tx.QueryRow(ctx, `
		UPDATE jobs SET status = $2, progress = $3, updated_at = $4
		WHERE id = $1
		RETURNING `+jobColumns,
		id, string(to), newProgress, time.Now().UTC())
	job, err := scanJob(row)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	r.log.Info("job transition", "job_id", id, "from", from, "to", to, "progress", job.Progress)
	return job, nil
}

// MarkFailed preserves the error message verbatim for diagnostics. Progress
// stays where it was. Terminal jobs are left untouched.
func (r *jobRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, error_message = $3, updated_at = $4
		WHERE id = $1 AND status NOT IN ($5, $2)`,
		id, string(constants.JobStatusFailed), reason, time.Now().UTC(),
		string(constants.JobStatusCompleted))
	if err != nil {
		r.log.Error("job mark failed errored", "job_id", id, "err", err)
		return err
	}
	if ct.RowsAffected() == 0 {
		return common.ErrJobTerminal
	}
	r.log.Warn("job failed", "job_id", id, "error", reason)
	return nil
}

func (r *jobRepo) SetQualityScore(ctx context.Context, id uuid.UUID, score float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE jobs SET quality_score = $2, updated_at = $3 WHERE id = $1`,
		id, score, time.Now().UTC())
	return err
}

func (r *jobRepo) RecordViolations(ctx context.Context, id uuid.UUID, violations json.RawMessage) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE jobs SET violations = $2, updated_at = $3 WHERE id = $1`,
		id, violations, time.Now().UTC())
	return err
}

func (r *jobRepo) GetViolations(ctx context.Context, id uuid.UUID) (json.RawMessage, error) {
	var v json.RawMessage
	err := r.pool.QueryRow(ctx, `SELECT violations FROM jobs WHERE id = $1`, id).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return v, nil
}
