package entity

import (
	"time"

	"github.com/google/uuid"
)

// Annotation links one extracted field to its value(s) and highlight regions.
// Exactly one annotation exists per field per job. CorrectedValue is set only
// by human review; once set it wins for validation and export.
type Annotation struct {
	ID             uuid.UUID      `json:"id"`
	JobID          uuid.UUID      `json:"job_id"`
	FieldName      string         `json:"field_name"`
	ExtractedValue string         `json:"extracted_value"`
	CorrectedValue *string        `json:"corrected_value,omitempty"`
	Confidence     float64        `json:"confidence"`
	Regions        []MergedRegion `json:"regions"` // empty = not visually locatable
	CreatedAt      time.Time      `json:"created_at"`
}

// EffectiveValue returns the corrected value when present, else the extracted.
func (a *Annotation) EffectiveValue() string {
	if a.CorrectedValue != nil {
		return *a.CorrectedValue
	}
	return a.ExtractedValue
}
