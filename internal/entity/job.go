package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/freightscan/invoice-extract/constants"
)

// Job represents one uploaded document moving through the pipeline.
type Job struct {
	ID           uuid.UUID           `json:"id"`
	Status       constants.JobStatus `json:"status"`
	FileName     string              `json:"file_name"`
	BlobKey      string              `json:"blob_key"`
	OCRProvider  string              `json:"ocr_provider"`
	LLMProvider  string              `json:"llm_provider"`
	Progress     int                 `json:"progress"` // 0..100, monotone while not FAILED
	QualityScore *float64            `json:"quality_score,omitempty"`
	ErrorMessage *string             `json:"error_message,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// Terminal reports whether the job may no longer be mutated.
func (j *Job) Terminal() bool { return j.Status.Terminal() }
