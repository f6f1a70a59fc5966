package constants

// JobStatus is the canonical status for rows in jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusPending           JobStatus = "PENDING"
	JobStatusOCRRunning        JobStatus = "OCR_RUNNING"
	JobStatusOCRDone           JobStatus = "OCR_DONE"
	JobStatusExtractionRunning JobStatus = "EXTRACTION_RUNNING"
	JobStatusExtractionDone    JobStatus = "EXTRACTION_DONE"
	JobStatusReconciling       JobStatus = "RECONCILING"
	JobStatusReviewReady       JobStatus = "REVIEW_READY"
	JobStatusValidating        JobStatus = "VALIDATING"
	JobStatusCompleted         JobStatus = "COMPLETED"
	JobStatusFailed            JobStatus = "FAILED"
)

// JobStatuses lists every valid status value, for schema validators.
var JobStatuses = []string{
	string(JobStatusPending),
	string(JobStatusOCRRunning),
	string(JobStatusOCRDone),
	string(JobStatusExtractionRunning),
	string(JobStatusExtractionDone),
	string(JobStatusReconciling),
	string(JobStatusReviewReady),
	string(JobStatusValidating),
	string(JobStatusCompleted),
	string(JobStatusFailed),
}

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Cancellable reports whether the job may still be cancelled.
func (s JobStatus) Cancellable() bool {
	switch s {
	case JobStatusPending, JobStatusOCRRunning, JobStatusExtractionRunning:
		return true
	}
	return false
}

// next holds the single legal forward transition per state. FAILED is reachable
// from any non-terminal state and handled separately in CanTransition.
var next = map[JobStatus]JobStatus{
	JobStatusPending:           JobStatusOCRRunning,
	JobStatusOCRRunning:        JobStatusOCRDone,
	JobStatusOCRDone:           JobStatusExtractionRunning,
	JobStatusExtractionRunning: JobStatusExtractionDone,
	JobStatusExtractionDone:    JobStatusReconciling,
	JobStatusReconciling:       JobStatusReviewReady,
	JobStatusReviewReady:       JobStatusValidating,
	JobStatusValidating:        JobStatusCompleted,
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to JobStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == JobStatusFailed {
		return true
	}
	return next[from] == to
}

// progressByStatus maps each status to the orchestrator-owned percentage.
// The exact values are policy; monotonicity along the transition chain is not.
var progressByStatus = map[JobStatus]int{
	JobStatusPending:           0,
	JobStatusOCRRunning:        10,
	JobStatusOCRDone:           40,
	JobStatusExtractionRunning: 50,
	JobStatusExtractionDone:    70,
	JobStatusReconciling:       75,
	JobStatusReviewReady:       85,
	JobStatusValidating:        90,
	JobStatusCompleted:         100,
}

// ProgressFor returns the progress percentage for a status. FAILED keeps the
// last recorded progress, so it returns -1 (meaning "leave unchanged").
func ProgressFor(s JobStatus) int {
	if s == JobStatusFailed {
		return -1
	}
	return progressByStatus[s]
}
