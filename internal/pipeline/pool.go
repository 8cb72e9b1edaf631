package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/docmux/internal/document"
	"github.com/dgallion1/docmux/internal/engine"
)

// Pool runs engine invocations on a fixed set of background workers
// drawing from a bounded queue.
type Pool struct {
	jobs  *JobStore
	queue chan *Job
	log   *slog.Logger

	workers      int
	maxRetries   int
	backoff      func(attempt int) time.Duration
	cleanupEvery time.Duration

	mu      sync.Mutex
	baseCtx context.Context
	cancel  context.CancelCauseFunc
	stopped bool
	wg      sync.WaitGroup
}

// Option configures a Pool.
type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.queue = make(chan *Job, n)
		}
	}
}

// WithMaxRetries sets how many times a retryable engine failure is retried
// after the first attempt.
func WithMaxRetries(n int) Option {
	return func(p *Pool) {
		if n >= 0 {
			p.maxRetries = n
		}
	}
}

func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(p *Pool) {
		if fn != nil {
			p.backoff = fn
		}
	}
}

// WithJobTTL sets how long resolved jobs stay queryable.
func WithJobTTL(ttl time.Duration) Option {
	return func(p *Pool) {
		if ttl > 0 {
			p.jobs = NewJobStore(ttl)
		}
	}
}

func WithCleanupInterval(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.cleanupEvery = d
		}
	}
}

// NewPool creates a pool. Call Start before submitting work.
func NewPool(log *slog.Logger, opts ...Option) *Pool {
	p := &Pool{
		jobs:         NewJobStore(time.Hour),
		queue:        make(chan *Job, 100),
		log:          log,
		workers:      4,
		maxRetries:   MaxRetries,
		backoff:      Backoff,
		cleanupEvery: 5 * time.Minute,
		baseCtx:      context.Background(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	workerCtx, cancel := context.WithCancelCause(ctx)
	p.baseCtx = workerCtx
	p.cancel = cancel
	p.mu.Unlock()

	for range p.workers {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-p.queue:
					if !ok {
						return
					}
					p.run(job)
				}
			}
		}()
	}

	// Start job store cleanup.
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.cleanupEvery)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				p.jobs.Cleanup()
			}
		}
	}()
}

// Stop cancels running jobs, waits for workers and resolves anything
// still queued as cancelled. Waiters on those jobs see ErrPoolStopped.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	if p.cancel != nil {
		p.cancel(ErrPoolStopped)
	}
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	for job := range p.queue {
		if job.resolve(StateCancelled) {
			job.finish(nil, ErrPoolStopped)
			continue
		}
		job.finish(nil, ErrCancelled)
	}
}

// Submit queues fn against path and returns immediately.
func (p *Pool) Submit(engineName string, fn engine.Invoke, path string) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return "", ErrPoolStopped
	}

	job := newJob(p.baseCtx, uuid.NewString(), engineName, fn, path)
	select {
	case p.queue <- job:
	default:
		job.cancel()
		return "", fmt.Errorf("%w (%d)", ErrQueueFull, cap(p.queue))
	}
	p.jobs.Put(job)
	return Handle(job.ID), nil
}

// Await blocks until the job resolves, timeout elapses or ctx is done.
// On timeout the job is marked timedOut and its context cancelled.
// A timeout of zero waits without a deadline.
func (p *Pool) Await(ctx context.Context, h Handle, timeout time.Duration) (*document.RawResult, error) {
	job := p.jobs.Get(string(h))
	if job == nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, h)
	}

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case <-job.done:
		return job.outcome()
	case <-expired:
		if job.resolve(StateTimedOut) {
			p.log.Warn("job timed out", "job_id", job.ID, "engine", job.Engine, "timeout", timeout)
		}
		return job.outcome()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Poll returns the current state of a job.
func (p *Pool) Poll(h Handle) (JobState, error) {
	job := p.jobs.Get(string(h))
	if job == nil {
		return "", fmt.Errorf("%w: %s", ErrJobNotFound, h)
	}
	return job.state(), nil
}

// Result returns a resolved job's outcome without blocking.
func (p *Pool) Result(h Handle) (*document.RawResult, error) {
	job := p.jobs.Get(string(h))
	if job == nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, h)
	}
	return job.outcome()
}

// Cancel abandons a job. It is a no-op for resolved jobs.
func (p *Pool) Cancel(h Handle) error {
	job := p.jobs.Get(string(h))
	if job == nil {
		return fmt.Errorf("%w: %s", ErrJobNotFound, h)
	}
	if job.resolve(StateCancelled) {
		p.log.Debug("job cancelled", "job_id", job.ID, "engine", job.Engine)
	}
	return nil
}

// Snapshot returns a copy of a job's state.
func (p *Pool) Snapshot(h Handle) (JobSnapshot, bool) {
	job := p.jobs.Get(string(h))
	if job == nil {
		return JobSnapshot{}, false
	}
	return job.Snapshot(), true
}

// QueueDepth returns current queue depth.
func (p *Pool) QueueDepth() int {
	return len(p.queue)
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}
