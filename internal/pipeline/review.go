package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/freightscan/invoice-extract/constants"
	"github.com/freightscan/invoice-extract/internal/common"
	"github.com/freightscan/invoice-extract/internal/entity"
	"github.com/freightscan/invoice-extract/internal/validation"
)

// ReviewState is everything a reviewer needs: the extracted invoice and the
// per-field annotations with their highlight regions.
type ReviewState struct {
	Job         *entity.Job
	Invoice     *entity.FreightInvoice
	Annotations []entity.Annotation
}

// Review returns the review state for a job that reached REVIEW_READY.
func (p *Processor) Review(ctx context.Context, jobID uuid.UUID) (*ReviewState, error) {
	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != constants.JobStatusReviewReady {
		return nil, fmt.Errorf("job %s is %s, not %s: %w",
			jobID, job.Status, constants.JobStatusReviewReady, common.ErrInvalidInput)
	}
	inv, err := p.invoices.GetByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	anns, err := p.annotations.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &ReviewState{Job: job, Invoice: inv, Annotations: anns}, nil
}

// ApplyCorrections records reviewer overrides on the job's annotations.
// Corrections are keyed by canonical field name; an unknown field name is an
// input error and nothing is recorded past it. Holds the job lock so a
// correction can never land between Approve's validation and completion; the
// status check runs inside the lock.
func (p *Processor) ApplyCorrections(ctx context.Context, jobID uuid.UUID, corrections map[string]string) error {
	l := p.lockFor(jobID)
	l.Lock()
	defer l.Unlock()

	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != constants.JobStatusReviewReady {
		return fmt.Errorf("job %s is %s, not %s: %w",
			jobID, job.Status, constants.JobStatusReviewReady, common.ErrInvalidInput)
	}
	for field, value := range corrections {
		if err := p.annotations.SetCorrectedValue(ctx, jobID, field, value); err != nil {
			return fmt.Errorf("correction for %q: %w", field, err)
		}
		p.log.Info("pipeline.correction", "job_id", jobID, "field", field)
	}
	return nil
}

// Approve moves a reviewed job through validation to COMPLETED. Violations
// are advisory: they are recorded on the job, never block completion.
func (p *Processor) Approve(ctx context.Context, jobID uuid.UUID) ([]validation.Violation, error) {
	l := p.lockFor(jobID)
	l.Lock()
	defer l.Unlock()

	if _, err := p.jobs.Transition(ctx, jobID, constants.JobStatusReviewReady, constants.JobStatusValidating); err != nil {
		return nil, err
	}

	inv, err := p.invoices.GetByJob(ctx, jobID)
	if err != nil {
		return nil, p.failApproval(ctx, jobID, err)
	}
	anns, err := p.annotations.ListByJob(ctx, jobID)
	if err != nil {
		return nil, p.failApproval(ctx, jobID, err)
	}

	merged := inv.Merged(anns)
	ok, violations := p.validator.Validate(&merged)

	payload, err := json.Marshal(violations)
	if err != nil {
		return nil, p.failApproval(ctx, jobID, err)
	}
	if err := p.jobs.RecordViolations(ctx, jobID, payload); err != nil {
		return nil, p.failApproval(ctx, jobID, err)
	}
	if _, err := p.jobs.Transition(ctx, jobID, constants.JobStatusValidating, constants.JobStatusCompleted); err != nil {
		return nil, err
	}
	p.log.Info("pipeline.completed", "job_id", jobID, "clean", ok, "violations", len(violations))
	return violations, nil
}

func (p *Processor) failApproval(ctx context.Context, jobID uuid.UUID, err error) error {
	if mfErr := p.jobs.MarkFailed(context.WithoutCancel(ctx), jobID, err.Error()); mfErr != nil {
		p.log.Error("pipeline.mark_failed", "job_id", jobID, "err", mfErr)
	}
	return err
}
