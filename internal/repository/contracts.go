package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/freightscan/invoice-extract/constants"
	"github.com/freightscan/invoice-extract/internal/entity"
)

// JobRepository owns the job rows. Transition is the only way status moves:
// it applies "read job, check transition, write job" as an atomic unit per
// job id, enforcing legality, terminal-state immutability, and monotone
// progress.
type JobRepository interface {
	Create(ctx context.Context, fileName, blobKey, ocrProvider, llmProvider string) (*entity.Job, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	ListPending(ctx context.Context, limit int) ([]*entity.Job, error)
	Transition(ctx context.Context, id uuid.UUID, from, to constants.JobStatus) (*entity.Job, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	SetQualityScore(ctx context.Context, id uuid.UUID, score float64) error
	RecordViolations(ctx context.Context, id uuid.UUID, violations json.RawMessage) error
	GetViolations(ctx context.Context, id uuid.UUID) (json.RawMessage, error)
}

// BoxRepository stores the immutable OCR output per job.
type BoxRepository interface {
	ReplaceForJob(ctx context.Context, jobID uuid.UUID, pages map[int][]entity.BoundingBox) error
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]entity.BoundingBox, error)
}

// InvoiceRepository stores the extracted invoice and the raw provider JSON.
type InvoiceRepository interface {
	Upsert(ctx context.Context, jobID uuid.UUID, inv *entity.FreightInvoice, raw json.RawMessage) error
	GetByJob(ctx context.Context, jobID uuid.UUID) (*entity.FreightInvoice, error)
}

// AnnotationRepository stores the per-field review annotations.
type AnnotationRepository interface {
	ReplaceForJob(ctx context.Context, jobID uuid.UUID, anns []entity.Annotation) error
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]entity.Annotation, error)
	SetCorrectedValue(ctx context.Context, jobID uuid.UUID, fieldName, value string) error
}
