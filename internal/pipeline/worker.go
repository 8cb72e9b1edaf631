package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dgallion1/docmux/internal/document"
)

// run executes one job on the calling worker goroutine.
func (p *Pool) run(job *Job) {
	if job.ctx.Err() != nil || !job.start() {
		job.finish(nil, ErrCancelled)
		return
	}

	log := p.log.With("job_id", job.ID, "engine", job.Engine, "path", job.Path)
	log.Debug("job started", "queued_for", job.StartedAt.Sub(job.SubmittedAt))

	res, err := p.invokeWithRetry(job)
	job.finish(res, err)

	snap := job.Snapshot()
	if err != nil {
		log.Debug("job finished with error", "state", snap.State, "attempts", snap.Attempts, "error", err)
		return
	}
	log.Debug("job finished", "state", snap.State, "attempts", snap.Attempts, "blocks", snap.Blocks)
}

// invokeWithRetry calls the engine, retrying transient failures with
// backoff until the retry budget or the job context runs out.
func (p *Pool) invokeWithRetry(job *Job) (*document.RawResult, error) {
	for attempt := 0; ; attempt++ {
		job.incrAttempts()
		res, err := safeInvoke(job.ctx, job)
		if err == nil || !IsRetryable(err) || attempt >= p.maxRetries {
			return res, err
		}
		p.log.Warn("retryable engine error", "job_id", job.ID, "engine", job.Engine, "attempt", attempt, "error", err)
		t := time.NewTimer(p.backoff(attempt))
		select {
		case <-t.C:
		case <-job.ctx.Done():
			t.Stop()
			return nil, job.ctx.Err()
		}
	}
}

// safeInvoke turns an adapter panic into an ordinary engine failure so a
// single bad document cannot take down a worker.
func safeInvoke(ctx context.Context, job *Job) (res *document.RawResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("engine %s panicked: %v", job.Engine, r)
		}
	}()
	return job.invoke(ctx, job.Path)
}
