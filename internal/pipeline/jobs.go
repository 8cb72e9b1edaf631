package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgallion1/docmux/internal/document"
	"github.com/dgallion1/docmux/internal/engine"
)

// JobState represents the lifecycle of one engine invocation.
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
	StateTimedOut  JobState = "timedOut"
	StateCancelled JobState = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s JobState) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateTimedOut, StateCancelled:
		return true
	}
	return false
}

var (
	ErrTimeout     = errors.New("job timed out")
	ErrQueueFull   = errors.New("job queue is full")
	ErrJobNotFound = errors.New("job not found")
	ErrCancelled   = errors.New("job cancelled")
	ErrJobPending  = errors.New("job has not finished")
	ErrPoolStopped = errors.New("job pool stopped")
)

// Handle identifies a submitted job. It is the only thing callers hold.
type Handle string

// Job tracks one engine invocation against one document. Only the pool
// mutates it.
type Job struct {
	mu sync.Mutex

	ID     string
	Engine string
	Path   string

	State    JobState
	Attempts int

	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
	UpdatedAt   time.Time

	invoke engine.Invoke
	ctx    context.Context
	cancel context.CancelFunc

	result *document.RawResult
	err    error

	// done is closed when the invoke call has returned, whatever the state.
	done chan struct{}
}

func newJob(parent context.Context, id, name string, fn engine.Invoke, path string) *Job {
	ctx, cancel := context.WithCancel(parent)
	now := time.Now()
	return &Job{
		ID:          id,
		Engine:      name,
		Path:        path,
		State:       StatePending,
		SubmittedAt: now,
		UpdatedAt:   now,
		invoke:      fn,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// start moves a pending job to running. It returns false if the job was
// resolved while it sat in the queue.
func (j *Job) start() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.State != StatePending {
		return false
	}
	j.State = StateRunning
	j.StartedAt = time.Now()
	j.UpdatedAt = j.StartedAt
	return true
}

func (j *Job) incrAttempts() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Attempts++
	j.UpdatedAt = time.Now()
}

// finish records the invoke outcome and releases waiters. A job already
// timed out or cancelled keeps that state.
func (j *Job) finish(res *document.RawResult, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	select {
	case <-j.done:
		return
	default:
	}
	now := time.Now()
	j.FinishedAt = now
	j.UpdatedAt = now
	j.result, j.err = res, err
	if !j.State.Terminal() {
		switch {
		case err == nil:
			j.State = StateSucceeded
		case j.ctx.Err() != nil:
			j.State = StateCancelled
		default:
			j.State = StateFailed
		}
	}
	close(j.done)
	j.cancel()
}

// resolve moves an unfinished job into state and cancels its context.
// It returns false if the job had already reached a terminal state.
func (j *Job) resolve(state JobState) bool {
	j.mu.Lock()
	if j.State.Terminal() {
		j.mu.Unlock()
		return false
	}
	j.State = state
	j.UpdatedAt = time.Now()
	j.mu.Unlock()
	j.cancel()
	return true
}

// outcome converts the job state into what a waiter sees.
func (j *Job) outcome() (*document.RawResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch j.State {
	case StateSucceeded:
		return j.result, nil
	case StateFailed:
		return nil, j.err
	case StateTimedOut:
		return nil, fmt.Errorf("%w: %s", ErrTimeout, j.Engine)
	case StateCancelled:
		if errors.Is(j.err, ErrPoolStopped) || errors.Is(context.Cause(j.ctx), ErrPoolStopped) {
			return nil, fmt.Errorf("%w: %w: %s", ErrCancelled, ErrPoolStopped, j.Engine)
		}
		if j.err != nil && !errors.Is(j.err, ErrCancelled) {
			return nil, fmt.Errorf("%w: %s: %v", ErrCancelled, j.Engine, j.err)
		}
		return nil, fmt.Errorf("%w: %s", ErrCancelled, j.Engine)
	default:
		return nil, ErrJobPending
	}
}

func (j *Job) state() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.State
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string     `json:"job_id"`
	Engine      string     `json:"engine"`
	Path        string     `json:"path"`
	State       JobState   `json:"state"`
	Attempts    int        `json:"attempts"`
	Blocks      int        `json:"blocks"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := JobSnapshot{
		ID:          j.ID,
		Engine:      j.Engine,
		Path:        j.Path,
		State:       j.State,
		Attempts:    j.Attempts,
		SubmittedAt: j.SubmittedAt,
	}
	if j.result != nil {
		s.Blocks = len(j.result.Blocks)
	}
	if j.err != nil {
		s.Error = j.err.Error()
	}
	if !j.StartedAt.IsZero() {
		t := j.StartedAt
		s.StartedAt = &t
	}
	if !j.FinishedAt.IsZero() {
		t := j.FinishedAt
		s.FinishedAt = &t
	}
	return s
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes resolved jobs idle for longer than the TTL.
// Jobs still pending or running are never evicted.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := job.State.Terminal() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}
