package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/freightscan/invoice-extract/internal/common"
)

// withRetry runs fn and retries exactly once after a fixed backoff when the
// failure is transient. Every attempt gets its own deadline derived from the
// stage budget, so a timed-out call counts toward the retry while the job
// context stays alive. Non-retryable errors and a cancelled job context
// surface immediately.
func (p *Processor) withRetry(ctx context.Context, jobID uuid.UUID, stage string, timeout time.Duration, fn func(context.Context) error) error {
	err := p.attempt(ctx, timeout, fn)
	if err == nil {
		return nil
	}
	if !common.IsRetryable(err) || ctx.Err() != nil {
		return err
	}
	p.log.Warn("pipeline.retrying", "job_id", jobID, "stage", stage,
		"backoff", p.retryBackoff, "err", err)
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-time.After(p.retryBackoff):
	}
	return p.attempt(ctx, timeout, fn)
}

func (p *Processor) attempt(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}
