// Package pipeline orchestrates a job through OCR, field extraction,
// reconciliation, review, and validation. The processor owns all status
// transitions; stage implementations never touch job state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/freightscan/invoice-extract/constants"
	"github.com/freightscan/invoice-extract/internal/blobstore"
	"github.com/freightscan/invoice-extract/internal/common"
	"github.com/freightscan/invoice-extract/internal/entity"
	"github.com/freightscan/invoice-extract/internal/llm"
	"github.com/freightscan/invoice-extract/internal/ocr"
	"github.com/freightscan/invoice-extract/internal/reconcile"
	"github.com/freightscan/invoice-extract/internal/repository"
	"github.com/freightscan/invoice-extract/internal/validation"
)

// Processor wires the stage implementations to the repositories and drives
// the status machine. One Processor serves all jobs; per-job mutual exclusion
// keeps concurrent workers off the same job.
type Processor struct {
	jobs        repository.JobRepository
	boxes       repository.BoxRepository
	invoices    repository.InvoiceRepository
	annotations repository.AnnotationRepository

	blobs      blobstore.Store
	recognizer ocr.TextRecognizer
	extractor  llm.FieldExtractor
	reconciler *reconcile.Reconciler
	validator  *validation.Engine

	retryBackoff time.Duration
	ocrTimeout   time.Duration
	llmTimeout   time.Duration
	log          *slog.Logger

	mu      sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
	cancels map[uuid.UUID]context.CancelCauseFunc
}

type Deps struct {
	Jobs        repository.JobRepository
	Boxes       repository.BoxRepository
	Invoices    repository.InvoiceRepository
	Annotations repository.AnnotationRepository
	Blobs       blobstore.Store
	Recognizer  ocr.TextRecognizer
	Extractor   llm.FieldExtractor
	Reconciler  *reconcile.Reconciler
	Validator   *validation.Engine

	// Per-call budgets for the external providers. Each recognize/extract
	// attempt runs under its own deadline so a hung call expires without
	// killing the job context, and the expiry is retryable.
	OCRTimeout time.Duration
	LLMTimeout time.Duration
}

func NewProcessor(deps Deps, retryBackoff time.Duration, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if retryBackoff <= 0 {
		retryBackoff = 5 * time.Second
	}
	if deps.OCRTimeout <= 0 {
		deps.OCRTimeout = 5 * time.Minute
	}
	if deps.LLMTimeout <= 0 {
		deps.LLMTimeout = 90 * time.Second
	}
	return &Processor{
		jobs:         deps.Jobs,
		boxes:        deps.Boxes,
		invoices:     deps.Invoices,
		annotations:  deps.Annotations,
		blobs:        deps.Blobs,
		recognizer:   deps.Recognizer,
		extractor:    deps.Extractor,
		reconciler:   deps.Reconciler,
		validator:    deps.Validator,
		retryBackoff: retryBackoff,
		ocrTimeout:   deps.OCRTimeout,
		llmTimeout:   deps.LLMTimeout,
		log:          logger,
	}
}

// lockFor returns the mutex guarding one job id. Locks are never reclaimed;
// the registry stays small because job ids are processed a handful of times.
func (p *Processor) lockFor(id uuid.UUID) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.locks == nil {
		p.locks = make(map[uuid.UUID]*sync.Mutex)
	}
	l, ok := p.locks[id]
	if !ok {
		l = &sync.Mutex{}
		p.locks[id] = l
	}
	return l
}

func (p *Processor) registerCancel(id uuid.UUID, cancel context.CancelCauseFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancels == nil {
		p.cancels = make(map[uuid.UUID]context.CancelCauseFunc)
	}
	p.cancels[id] = cancel
}

func (p *Processor) unregisterCancel(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cancels, id)
}

// Process runs a pending job up to REVIEW_READY. On failure the job lands in
// FAILED with the error message preserved; partial stage output written before
// the failure point stays replaceable, never half-written.
func (p *Processor) Process(ctx context.Context, jobID uuid.UUID) error {
	l := p.lockFor(jobID)
	l.Lock()
	defer l.Unlock()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	p.registerCancel(jobID, cancel)
	defer p.unregisterCancel(jobID)

	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != constants.JobStatusPending {
		return fmt.Errorf("job %s is %s, not %s: %w",
			jobID, job.Status, constants.JobStatusPending, common.ErrIllegalTransition)
	}

	start := time.Now()
	if err := p.run(ctx, job); err != nil {
		reason := err.Error()
		if cause := context.Cause(ctx); errors.Is(cause, common.ErrCancelled) {
			reason = cause.Error()
		}
		if mfErr := p.jobs.MarkFailed(context.WithoutCancel(ctx), jobID, reason); mfErr != nil {
			p.log.Error("pipeline.mark_failed", "job_id", jobID, "err", mfErr)
		}
		p.log.Warn("pipeline.failed", "job_id", jobID, "reason", reason,
			"elapsed_ms", time.Since(start).Milliseconds())
		return err
	}
	p.log.Info("pipeline.review_ready", "job_id", jobID,
		"elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

func (p *Processor) run(ctx context.Context, job *entity.Job) error {
	pages, err := p.runOCR(ctx, job)
	if err != nil {
		return err
	}
	inv, err := p.runExtraction(ctx, job, pages)
	if err != nil {
		return err
	}
	return p.runReconciliation(ctx, job, inv, pages)
}

func (p *Processor) runOCR(ctx context.Context, job *entity.Job) (map[int][]entity.BoundingBox, error) {
	if _, err := p.jobs.Transition(ctx, job.ID, constants.JobStatusPending, constants.JobStatusOCRRunning); err != nil {
		return nil, err
	}
	ok, err := p.blobs.Exists(ctx, job.BlobKey)
	if err != nil {
		return nil, fmt.Errorf("blob check %q: %w", job.BlobKey, err)
	}
	if !ok {
		return nil, fmt.Errorf("document %q: %w", job.BlobKey, common.ErrNotFound)
	}

	var pages map[int][]entity.BoundingBox
	err = p.withRetry(ctx, job.ID, "ocr", p.ocrTimeout, func(callCtx context.Context) error {
		var rerr error
		pages, rerr = p.recognizer.Recognize(callCtx, ocr.Document{
			Bucket: p.blobs.Bucket(),
			Key:    job.BlobKey,
		})
		return rerr
	})
	if err != nil {
		return nil, err
	}

	if err := p.boxes.ReplaceForJob(ctx, job.ID, pages); err != nil {
		return nil, err
	}
	score := ocr.QualityScore(pages)
	if err := p.jobs.SetQualityScore(ctx, job.ID, score); err != nil {
		return nil, err
	}
	if _, err := p.jobs.Transition(ctx, job.ID, constants.JobStatusOCRRunning, constants.JobStatusOCRDone); err != nil {
		return nil, err
	}
	p.log.Info("pipeline.ocr_done", "job_id", job.ID, "pages", len(pages), "quality", score)
	return pages, nil
}

func (p *Processor) runExtraction(ctx context.Context, job *entity.Job, pages map[int][]entity.BoundingBox) (*entity.FreightInvoice, error) {
	if _, err := p.jobs.Transition(ctx, job.ID, constants.JobStatusOCRDone, constants.JobStatusExtractionRunning); err != nil {
		return nil, err
	}

	req := llm.ExtractRequest{
		OCRText:       ocr.PlainText(pages),
		FileNameHint:  job.FileName,
		OCRConfidence: ocr.QualityScore(pages),
	}
	var inv entity.FreightInvoice
	var raw []byte
	err := p.withRetry(ctx, job.ID, "extraction", p.llmTimeout, func(callCtx context.Context) error {
		var rerr error
		inv, raw, rerr = p.extractor.ExtractFields(callCtx, req)
		return rerr
	})
	if err != nil {
		return nil, err
	}

	if err := p.invoices.Upsert(ctx, job.ID, &inv, raw); err != nil {
		return nil, err
	}
	if _, err := p.jobs.Transition(ctx, job.ID, constants.JobStatusExtractionRunning, constants.JobStatusExtractionDone); err != nil {
		return nil, err
	}
	p.log.Info("pipeline.extraction_done", "job_id", job.ID,
		"invoice", inv.InvoiceNumber, "confidence", inv.ExtractionConfidence)
	return &inv, nil
}

func (p *Processor) runReconciliation(ctx context.Context, job *entity.Job, inv *entity.FreightInvoice, pages map[int][]entity.BoundingBox) error {
	if _, err := p.jobs.Transition(ctx, job.ID, constants.JobStatusExtractionDone, constants.JobStatusReconciling); err != nil {
		return err
	}
	var all []entity.BoundingBox
	for _, boxes := range pages {
		all = append(all, boxes...)
	}
	anns := p.reconciler.Annotate(job.ID, inv, all)
	if err := p.annotations.ReplaceForJob(ctx, job.ID, anns); err != nil {
		return err
	}
	if _, err := p.jobs.Transition(ctx, job.ID, constants.JobStatusReconciling, constants.JobStatusReviewReady); err != nil {
		return err
	}
	return nil
}

// Cancel requests cooperative cancellation of a job. Pending jobs fail
// immediately; running jobs are interrupted at the next blocking call. Jobs
// past EXTRACTION_RUNNING are no longer cancellable.
func (p *Processor) Cancel(ctx context.Context, jobID uuid.UUID, reason string) error {
	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Status.Cancellable() {
		return fmt.Errorf("job %s is %s: %w", jobID, job.Status, common.ErrJobTerminal)
	}
	cause := fmt.Errorf("%w: %s", common.ErrCancelled, reason)

	p.mu.Lock()
	cancel, running := p.cancels[jobID]
	p.mu.Unlock()
	if running {
		cancel(cause)
		p.log.Info("pipeline.cancel_requested", "job_id", jobID, "reason", reason)
		return nil
	}
	return p.jobs.MarkFailed(ctx, jobID, cause.Error())
}
