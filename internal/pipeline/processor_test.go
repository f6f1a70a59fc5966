package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/freightscan/invoice-extract/constants"
	"github.com/freightscan/invoice-extract/internal/blobstore"
	"github.com/freightscan/invoice-extract/internal/common"
	"github.com/freightscan/invoice-extract/internal/entity"
	"github.com/freightscan/invoice-extract/internal/llm"
	"github.com/freightscan/invoice-extract/internal/ocr"
	"github.com/freightscan/invoice-extract/internal/pipeline"
	"github.com/freightscan/invoice-extract/internal/reconcile"
	"github.com/freightscan/invoice-extract/internal/repository"
	"github.com/freightscan/invoice-extract/internal/validation"
)

var fixedNow = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

type fakeRecognizer struct {
	mu         sync.Mutex
	pages      map[int][]entity.BoundingBox
	failures   int
	stallFirst bool // first call blocks until its context expires
	calls      int
}

func (f *fakeRecognizer) Recognize(ctx context.Context, _ ocr.Document) (map[int][]entity.BoundingBox, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if f.stallFirst && call == 1 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if call <= f.failures {
		return nil, &common.ProviderError{Provider: "fake-ocr", Message: "transient outage"}
	}
	return f.pages, nil
}

type fakeExtractor struct {
	mu       sync.Mutex
	invoice  entity.FreightInvoice
	failures int
	failWith error
	calls    int
}

func (f *fakeExtractor) ExtractFields(_ context.Context, _ llm.ExtractRequest) (entity.FreightInvoice, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		err := f.failWith
		if err == nil {
			err = &common.ProviderError{Provider: "fake-llm", Message: "transient outage"}
		}
		return entity.FreightInvoice{}, nil, err
	}
	return f.invoice, []byte(`{"ok":true}`), nil
}

func testInvoice() entity.FreightInvoice {
	return entity.FreightInvoice{
		InvoiceNumber:        "INV-1",
		InvoiceDate:          "2026-08-01",
		VendorName:           "Acme Logistics",
		Currency:             "USD",
		Subtotal:             "90.00",
		TotalAmount:          "999.00", // does not add up until corrected
		Taxes:                []entity.TaxItem{{TaxType: "VAT", Rate: "10", Amount: "10.00"}},
		ExtractionConfidence: 0.9,
	}
}

func testPages() map[int][]entity.BoundingBox {
	return map[int][]entity.BoundingBox{
		1: {
			{Page: 1, Left: 100, Top: 50, Width: 80, Height: 20, Text: "INV-1", Confidence: 0.95},
			{Page: 1, Left: 100, Top: 90, Width: 200, Height: 20, Text: "Acme Logistics", Confidence: 0.85},
		},
	}
}

type harness struct {
	store      *repository.MemoryStore
	proc       *pipeline.Processor
	recognizer *fakeRecognizer
	extractor  *fakeExtractor
	jobID      uuid.UUID
}

func newHarness(t *testing.T, rec *fakeRecognizer, ext *fakeExtractor) *harness {
	return newHarnessTimeouts(t, rec, ext, 0, 0)
}

func newHarnessTimeouts(t *testing.T, rec *fakeRecognizer, ext *fakeExtractor, ocrTimeout, llmTimeout time.Duration) *harness {
	t.Helper()
	ctx := context.Background()

	blobs := blobstore.NewLocalStore(t.TempDir())
	if err := blobs.Write(ctx, "uploads/test.pdf", []byte("%PDF-1.4"), "application/pdf"); err != nil {
		t.Fatal(err)
	}

	store := repository.NewMemoryStore()
	proc := pipeline.NewProcessor(pipeline.Deps{
		Jobs:        store.Jobs(),
		Boxes:       store.Boxes(),
		Invoices:    store.Invoices(),
		Annotations: store.Annotations(),
		Blobs:       blobs,
		Recognizer:  rec,
		Extractor:   ext,
		Reconciler:  reconcile.New(reconcile.Config{}, nil),
		Validator: validation.NewEngine(validation.Config{
			Tolerance: decimal.NewFromFloat(0.01),
			Now:       func() time.Time { return fixedNow },
		}, nil),
		OCRTimeout: ocrTimeout,
		LLMTimeout: llmTimeout,
	}, time.Millisecond, nil)

	job, err := store.Jobs().Create(ctx, "test.pdf", "uploads/test.pdf", "fake-ocr", "fake-llm")
	if err != nil {
		t.Fatal(err)
	}
	return &harness{store: store, proc: proc, recognizer: rec, extractor: ext, jobID: job.ID}
}

func (h *harness) job(t *testing.T) *entity.Job {
	t.Helper()
	job, err := h.store.Jobs().GetByID(context.Background(), h.jobID)
	if err != nil {
		t.Fatal(err)
	}
	return job
}

func TestProcessHappyPath(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeRecognizer{pages: testPages()}, &fakeExtractor{invoice: testInvoice()})

	if err := h.proc.Process(ctx, h.jobID); err != nil {
		t.Fatal(err)
	}

	job := h.job(t)
	if job.Status != constants.JobStatusReviewReady {
		t.Fatalf("status: got %s, want %s", job.Status, constants.JobStatusReviewReady)
	}
	if job.Progress != 85 {
		t.Fatalf("progress: got %d, want 85", job.Progress)
	}
	if job.QualityScore == nil || *job.QualityScore < 0.89 || *job.QualityScore > 0.91 {
		t.Fatalf("quality score: got %v, want ~0.90", job.QualityScore)
	}

	boxes, err := h.store.Boxes().ListByJob(ctx, h.jobID)
	if err != nil || len(boxes) != 2 {
		t.Fatalf("stored boxes: %d, err %v", len(boxes), err)
	}
	inv, err := h.store.Invoices().GetByJob(ctx, h.jobID)
	if err != nil || inv.InvoiceNumber != "INV-1" {
		t.Fatalf("stored invoice: %+v, err %v", inv, err)
	}
	anns, err := h.store.Annotations().ListByJob(ctx, h.jobID)
	if err != nil || len(anns) == 0 {
		t.Fatalf("stored annotations: %d, err %v", len(anns), err)
	}
}

func TestProcessAnnotatesUnlocatableFields(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeRecognizer{pages: testPages()}, &fakeExtractor{invoice: testInvoice()})

	if err := h.proc.Process(ctx, h.jobID); err != nil {
		t.Fatal(err)
	}
	anns, err := h.store.Annotations().ListByJob(ctx, h.jobID)
	if err != nil {
		t.Fatal(err)
	}
	var total *entity.Annotation
	for i := range anns {
		if anns[i].FieldName == "total_amount" {
			total = &anns[i]
		}
	}
	if total == nil {
		t.Fatal("total_amount annotation missing")
	}
	if len(total.Regions) != 0 {
		t.Fatalf("999.00 is nowhere on the page, got %d regions", len(total.Regions))
	}
	if total.Confidence != 0.9 {
		t.Fatalf("should fall back to extraction confidence, got %v", total.Confidence)
	}
}

func TestApproveWithCorrectionCompletesClean(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeRecognizer{pages: testPages()}, &fakeExtractor{invoice: testInvoice()})
	if err := h.proc.Process(ctx, h.jobID); err != nil {
		t.Fatal(err)
	}

	if err := h.proc.ApplyCorrections(ctx, h.jobID, map[string]string{"total_amount": "100.00"}); err != nil {
		t.Fatal(err)
	}
	violations, err := h.proc.Approve(ctx, h.jobID)
	if err != nil {
		t.Fatal(err)
	}
	if len(violations) != 0 {
		t.Fatalf("corrected invoice should validate clean, got %v", violations)
	}

	job := h.job(t)
	if job.Status != constants.JobStatusCompleted || job.Progress != 100 {
		t.Fatalf("got %s/%d, want COMPLETED/100", job.Status, job.Progress)
	}
}

func TestApproveRecordsAdvisoryViolations(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeRecognizer{pages: testPages()}, &fakeExtractor{invoice: testInvoice()})
	if err := h.proc.Process(ctx, h.jobID); err != nil {
		t.Fatal(err)
	}

	violations, err := h.proc.Approve(ctx, h.jobID)
	if err != nil {
		t.Fatal(err)
	}
	if len(violations) != 1 || violations[0].Kind != validation.TotalMismatch {
		t.Fatalf("expected one total_mismatch, got %v", violations)
	}

	// Violations never block completion.
	job := h.job(t)
	if job.Status != constants.JobStatusCompleted {
		t.Fatalf("got %s, want COMPLETED", job.Status)
	}
	recorded, err := h.store.Jobs().GetViolations(ctx, h.jobID)
	if err != nil || len(recorded) == 0 {
		t.Fatalf("violations not recorded: %s, err %v", recorded, err)
	}
}

func TestApplyCorrectionsUnknownFieldFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeRecognizer{pages: testPages()}, &fakeExtractor{invoice: testInvoice()})
	if err := h.proc.Process(ctx, h.jobID); err != nil {
		t.Fatal(err)
	}
	err := h.proc.ApplyCorrections(ctx, h.jobID, map[string]string{"no_such_field": "x"})
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestLineItemCorrectionReachesValidation(t *testing.T) {
	ctx := context.Background()
	inv := testInvoice()
	inv.TotalAmount = "100.00"
	inv.LineItems = []entity.LineItem{
		{Description: "Ocean freight", Quantity: "2", UnitPrice: "45.00", Total: "80.00"}, // 2 x 45 != 80
	}
	h := newHarness(t, &fakeRecognizer{pages: testPages()}, &fakeExtractor{invoice: inv})
	if err := h.proc.Process(ctx, h.jobID); err != nil {
		t.Fatal(err)
	}

	if err := h.proc.ApplyCorrections(ctx, h.jobID, map[string]string{"line_items[0].total": "90.00"}); err != nil {
		t.Fatal(err)
	}
	violations, err := h.proc.Approve(ctx, h.jobID)
	if err != nil {
		t.Fatal(err)
	}
	if len(violations) != 0 {
		t.Fatalf("corrected line item should validate clean, got %v", violations)
	}
}

func TestCorrectionsSerializeWithApprove(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeRecognizer{pages: testPages()}, &fakeExtractor{invoice: testInvoice()})
	if err := h.proc.Process(ctx, h.jobID); err != nil {
		t.Fatal(err)
	}

	var (
		wg         sync.WaitGroup
		applyErr   error
		approveErr error
		violations []validation.Violation
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		applyErr = h.proc.ApplyCorrections(ctx, h.jobID, map[string]string{"total_amount": "100.00"})
	}()
	go func() {
		defer wg.Done()
		violations, approveErr = h.proc.Approve(ctx, h.jobID)
	}()
	wg.Wait()

	if approveErr != nil {
		t.Fatal(approveErr)
	}
	if applyErr == nil {
		// The correction took the lock first, so validation must have seen it.
		if len(violations) != 0 {
			t.Fatalf("accepted correction not visible to validation: %v", violations)
		}
	} else if !errors.Is(applyErr, common.ErrInvalidInput) {
		t.Fatalf("late correction must be rejected, got %v", applyErr)
	}
	if got := h.job(t).Status; got != constants.JobStatusCompleted {
		t.Fatalf("got %s, want COMPLETED", got)
	}
}

func TestStageTimeoutCountsTowardRetry(t *testing.T) {
	ctx := context.Background()
	rec := &fakeRecognizer{pages: testPages(), stallFirst: true}
	h := newHarnessTimeouts(t, rec, &fakeExtractor{invoice: testInvoice()}, 20*time.Millisecond, 0)

	if err := h.proc.Process(ctx, h.jobID); err != nil {
		t.Fatal(err)
	}
	if rec.calls != 2 {
		t.Fatalf("recognizer called %d times, want a retry after the timed-out call", rec.calls)
	}
	if got := h.job(t).Status; got != constants.JobStatusReviewReady {
		t.Fatalf("got %s, want REVIEW_READY", got)
	}
}

func TestTransientFailureIsRetriedOnce(t *testing.T) {
	ctx := context.Background()
	ext := &fakeExtractor{invoice: testInvoice(), failures: 1}
	h := newHarness(t, &fakeRecognizer{pages: testPages()}, ext)

	if err := h.proc.Process(ctx, h.jobID); err != nil {
		t.Fatal(err)
	}
	if ext.calls != 2 {
		t.Fatalf("extractor called %d times, want 2", ext.calls)
	}
	if got := h.job(t).Status; got != constants.JobStatusReviewReady {
		t.Fatalf("got %s, want REVIEW_READY", got)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	ctx := context.Background()
	ext := &fakeExtractor{invoice: testInvoice(), failures: 2}
	h := newHarness(t, &fakeRecognizer{pages: testPages()}, ext)

	err := h.proc.Process(ctx, h.jobID)
	if err == nil {
		t.Fatal("expected failure")
	}
	if ext.calls != 2 {
		t.Fatalf("extractor called %d times, want 2", ext.calls)
	}

	job := h.job(t)
	if job.Status != constants.JobStatusFailed {
		t.Fatalf("got %s, want FAILED", job.Status)
	}
	if job.ErrorMessage == nil || !strings.Contains(*job.ErrorMessage, "transient outage") {
		t.Fatalf("error message not preserved: %v", job.ErrorMessage)
	}
	// Progress freezes where the job died: extraction was running.
	if job.Progress != 50 {
		t.Fatalf("progress: got %d, want 50", job.Progress)
	}
}

func TestNonRetryableFailureIsNotRetried(t *testing.T) {
	ctx := context.Background()
	ext := &fakeExtractor{failures: 99, failWith: errors.New("schema drift, giving up")}
	h := newHarness(t, &fakeRecognizer{pages: testPages()}, ext)

	if err := h.proc.Process(ctx, h.jobID); err == nil {
		t.Fatal("expected failure")
	}
	if ext.calls != 1 {
		t.Fatalf("extractor called %d times, want 1", ext.calls)
	}
	if got := h.job(t).Status; got != constants.JobStatusFailed {
		t.Fatalf("got %s, want FAILED", got)
	}
}

func TestParseErrorCountsAsRetryable(t *testing.T) {
	ctx := context.Background()
	ext := &fakeExtractor{
		invoice:  testInvoice(),
		failures: 1,
		failWith: &common.ParseError{Provider: "fake-llm", Cause: errors.New("bad json")},
	}
	h := newHarness(t, &fakeRecognizer{pages: testPages()}, ext)

	if err := h.proc.Process(ctx, h.jobID); err != nil {
		t.Fatal(err)
	}
	if ext.calls != 2 {
		t.Fatalf("extractor called %d times, want 2", ext.calls)
	}
}

func TestProcessRejectsNonPendingJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeRecognizer{pages: testPages()}, &fakeExtractor{invoice: testInvoice()})
	if err := h.proc.Process(ctx, h.jobID); err != nil {
		t.Fatal(err)
	}
	err := h.proc.Process(ctx, h.jobID)
	if !errors.Is(err, common.ErrIllegalTransition) {
		t.Fatalf("got %v, want ErrIllegalTransition", err)
	}
}

func TestCancelPendingJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeRecognizer{pages: testPages()}, &fakeExtractor{invoice: testInvoice()})

	if err := h.proc.Cancel(ctx, h.jobID, "duplicate upload"); err != nil {
		t.Fatal(err)
	}
	job := h.job(t)
	if job.Status != constants.JobStatusFailed {
		t.Fatalf("got %s, want FAILED", job.Status)
	}
	if job.ErrorMessage == nil || !strings.Contains(*job.ErrorMessage, "duplicate upload") {
		t.Fatalf("cancel reason not preserved: %v", job.ErrorMessage)
	}
}

func TestCancelPastCancellationWindow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeRecognizer{pages: testPages()}, &fakeExtractor{invoice: testInvoice()})
	if err := h.proc.Process(ctx, h.jobID); err != nil {
		t.Fatal(err)
	}
	err := h.proc.Cancel(ctx, h.jobID, "too late")
	if !errors.Is(err, common.ErrJobTerminal) {
		t.Fatalf("got %v, want ErrJobTerminal", err)
	}
	if got := h.job(t).Status; got != constants.JobStatusReviewReady {
		t.Fatalf("cancel must not touch the job, got %s", got)
	}
}

func TestMissingDocumentFailsJob(t *testing.T) {
	ctx := context.Background()
	rec := &fakeRecognizer{pages: testPages()}
	h := newHarness(t, rec, &fakeExtractor{invoice: testInvoice()})

	job, err := h.store.Jobs().Create(ctx, "ghost.pdf", "uploads/ghost.pdf", "fake-ocr", "fake-llm")
	if err != nil {
		t.Fatal(err)
	}
	if err := h.proc.Process(ctx, job.ID); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	got, err := h.store.Jobs().GetByID(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != constants.JobStatusFailed {
		t.Fatalf("got %s, want FAILED", got.Status)
	}
	if rec.calls != 0 {
		t.Fatalf("recognizer should not run without a document, calls=%d", rec.calls)
	}
}

func TestReviewExposesStateOnlyWhenReady(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeRecognizer{pages: testPages()}, &fakeExtractor{invoice: testInvoice()})

	if _, err := h.proc.Review(ctx, h.jobID); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("pending job should not be reviewable, got %v", err)
	}
	if err := h.proc.Process(ctx, h.jobID); err != nil {
		t.Fatal(err)
	}
	state, err := h.proc.Review(ctx, h.jobID)
	if err != nil {
		t.Fatal(err)
	}
	if state.Invoice.InvoiceNumber != "INV-1" || len(state.Annotations) == 0 {
		t.Fatalf("incomplete review state: %+v", state)
	}
}
