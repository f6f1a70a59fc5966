package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/freightscan/invoice-extract/constants"
	"github.com/freightscan/invoice-extract/internal/common"
	"github.com/freightscan/invoice-extract/internal/entity"
)

// MemoryStore backs every repository interface with in-process maps, keeping
// the same transition semantics as the Postgres store. Used by tests and
// local runs without a database.
type MemoryStore struct {
	mu          sync.Mutex
	jobs        map[uuid.UUID]*entity.Job
	violations  map[uuid.UUID]json.RawMessage
	boxes       map[uuid.UUID][]entity.BoundingBox
	invoices    map[uuid.UUID]*entity.FreightInvoice
	raw         map[uuid.UUID]json.RawMessage
	annotations map[uuid.UUID][]entity.Annotation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:        make(map[uuid.UUID]*entity.Job),
		violations:  make(map[uuid.UUID]json.RawMessage),
		boxes:       make(map[uuid.UUID][]entity.BoundingBox),
		invoices:    make(map[uuid.UUID]*entity.FreightInvoice),
		raw:         make(map[uuid.UUID]json.RawMessage),
		annotations: make(map[uuid.UUID][]entity.Annotation),
	}
}

func (m *MemoryStore) Jobs() JobRepository               { return (*memJobs)(m) }
func (m *MemoryStore) Boxes() BoxRepository              { return (*memBoxes)(m) }
func (m *MemoryStore) Invoices() InvoiceRepository       { return (*memInvoices)(m) }
func (m *MemoryStore) Annotations() AnnotationRepository { return (*memAnnotations)(m) }

type memJobs MemoryStore

func (m *memJobs) Create(_ context.Context, fileName, blobKey, ocrProvider, llmProvider string) (*entity.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	j := &entity.Job{
		ID:          uuid.New(),
		Status:      constants.JobStatusPending,
		FileName:    fileName,
		BlobKey:     blobKey,
		OCRProvider: ocrProvider,
		LLMProvider: llmProvider,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.jobs[j.ID] = j
	return cloneJob(j), nil
}

func (m *memJobs) GetByID(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return cloneJob(j), nil
}

func (m *memJobs) ListPending(_ context.Context, limit int) ([]*entity.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Job
	for _, j := range m.jobs {
		if j.Status == constants.JobStatusPending {
			out = append(out, cloneJob(j))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memJobs) Transition(_ context.Context, id uuid.UUID, from, to constants.JobStatus) (*entity.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	if j.Status.Terminal() {
		return nil, fmt.Errorf("job %s is %s: %w", id, j.Status, common.ErrJobTerminal)
	}
	if j.Status != from || !constants.CanTransition(from, to) {
		return nil, fmt.Errorf("job %s: %s -> %s (at %s): %w", id, from, to, j.Status, common.ErrIllegalTransition)
	}
	j.Status = to
	if p := constants.ProgressFor(to); p > j.Progress {
		j.Progress = p
	}
	j.UpdatedAt = time.Now().UTC()
	return cloneJob(j), nil
}

func (m *memJobs) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return common.ErrNotFound
	}
	if j.Status.Terminal() {
		return common.ErrJobTerminal
	}
	j.Status = constants.JobStatusFailed
	j.ErrorMessage = &reason
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memJobs) SetQualityScore(_ context.Context, id uuid.UUID, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return common.ErrNotFound
	}
	j.QualityScore = &score
	return nil
}

func (m *memJobs) RecordViolations(_ context.Context, id uuid.UUID, violations json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return common.ErrNotFound
	}
	m.violations[id] = append(json.RawMessage(nil), violations...)
	return nil
}

func (m *memJobs) GetViolations(_ context.Context, id uuid.UUID) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return nil, common.ErrNotFound
	}
	return append(json.RawMessage(nil), m.violations[id]...), nil
}

type memBoxes MemoryStore

func (m *memBoxes) ReplaceForJob(_ context.Context, jobID uuid.UUID, pages map[int][]entity.BoundingBox) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []entity.BoundingBox
	for _, boxes := range pages {
		all = append(all, boxes...)
	}
	m.boxes[jobID] = all
	return nil
}

func (m *memBoxes) ListByJob(_ context.Context, jobID uuid.UUID) ([]entity.BoundingBox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.BoundingBox(nil), m.boxes[jobID]...), nil
}

type memInvoices MemoryStore

func (m *memInvoices) Upsert(_ context.Context, jobID uuid.UUID, inv *entity.FreightInvoice, raw json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *inv
	m.invoices[jobID] = &cp
	m.raw[jobID] = append(json.RawMessage(nil), raw...)
	return nil
}

func (m *memInvoices) GetByJob(_ context.Context, jobID uuid.UUID) (*entity.FreightInvoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[jobID]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

type memAnnotations MemoryStore

func (m *memAnnotations) ReplaceForJob(_ context.Context, jobID uuid.UUID, anns []entity.Annotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.annotations[jobID] = append([]entity.Annotation(nil), anns...)
	return nil
}

func (m *memAnnotations) ListByJob(_ context.Context, jobID uuid.UUID) ([]entity.Annotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.Annotation(nil), m.annotations[jobID]...), nil
}

func (m *memAnnotations) SetCorrectedValue(_ context.Context, jobID uuid.UUID, fieldName, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	anns := m.annotations[jobID]
	for i := range anns {
		if anns[i].FieldName == fieldName {
			v := value
			anns[i].CorrectedValue = &v
			return nil
		}
	}
	return common.ErrNotFound
}

func cloneJob(j *entity.Job) *entity.Job {
	cp := *j
	return &cp
}
