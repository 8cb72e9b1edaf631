package fallback

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dgallion1/docmux/internal/document"
	"github.com/dgallion1/docmux/internal/engine"
	"github.com/dgallion1/docmux/internal/pipeline"
	"github.com/dgallion1/docmux/internal/stats"
)

// DefaultTimeout bounds each wait when a category has no configured timeout.
const DefaultTimeout = 180 * time.Second

// Executor runs engine invocations in the background. *pipeline.Pool satisfies it.
type Executor interface {
	Submit(engineName string, fn engine.Invoke, path string) (pipeline.Handle, error)
	Await(ctx context.Context, h pipeline.Handle, timeout time.Duration) (*document.RawResult, error)
	Cancel(h pipeline.Handle) error
}

// Status says whether any engine produced content.
type Status string

const (
	StatusAccepted  Status = "accepted"
	StatusExhausted Status = "exhausted"
)

// Attempt records what happened to one engine during an extraction.
type Attempt struct {
	Engine     string          `json:"engine"`
	Tier       engine.Mode     `json:"tier"`
	JobID      pipeline.Handle `json:"job_id,omitempty"`
	Result     stats.Outcome   `json:"result"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}

// Outcome is the detailed result of an extraction. Document is the empty
// sentinel when Status is StatusExhausted.
type Outcome struct {
	Document document.CanonicalDocument `json:"document"`
	Status   Status                     `json:"status"`
	Engine   string                     `json:"engine,omitempty"`
	Cached   bool                       `json:"cached,omitempty"`
	Attempts []Attempt                  `json:"attempts"`
}

// Controller picks engines for a document from the descriptor table, races
// the parallel tier and falls back through the sequential tier.
type Controller struct {
	table    *engine.Table
	exec     Executor
	log      *slog.Logger
	timeouts map[engine.Category]time.Duration
	stats    *stats.Engines
	cache    *Cache
}

// Option configures a Controller.
type Option func(*Controller)

// WithTimeouts sets the per-category wait budget. Table-level timeouts win.
func WithTimeouts(m map[engine.Category]time.Duration) Option {
	return func(c *Controller) {
		for k, v := range m {
			if v > 0 {
				c.timeouts[k] = v
			}
		}
	}
}

func WithStats(s *stats.Engines) Option {
	return func(c *Controller) { c.stats = s }
}

func WithCache(cache *Cache) Option {
	return func(c *Controller) { c.cache = cache }
}

func New(table *engine.Table, exec Executor, log *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		table:    table,
		exec:     exec,
		log:      log,
		timeouts: make(map[engine.Category]time.Duration),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Extract returns the canonical document for path. Engine failures are never
// returned: an empty document means every candidate failed or found nothing.
// The error is an *engine.ConfigError for an unknown category, the context
// error if ctx ends first, or pipeline.ErrPoolStopped if the executor shuts
// down mid-extraction.
func (c *Controller) Extract(ctx context.Context, path string, category engine.Category) (document.CanonicalDocument, error) {
	out, err := c.ExtractDetailed(ctx, path, category)
	return out.Document, err
}

// ExtractDetailed is Extract plus the per-engine attempt report.
func (c *Controller) ExtractDetailed(ctx context.Context, path string, category engine.Category) (Outcome, error) {
	out := Outcome{Document: document.Empty(path), Status: StatusExhausted, Attempts: []Attempt{}}

	ds, err := c.table.Descriptors(category)
	if err != nil {
		return out, err
	}
	log := c.log.With("path", path, "category", category)

	var hash string
	if c.cache != nil {
		if hash, err = document.FileHashHex(path); err != nil {
			log.Debug("skipping result cache", "error", err)
		} else if doc, name, ok := c.cache.Get(category, hash); ok {
			doc.FileName = filepath.Base(path)
			log.Debug("result cache hit", "engine", name)
			out.Document, out.Status, out.Engine, out.Cached = doc, StatusAccepted, name, true
			return out, nil
		}
	}

	timeout := c.timeout(category)
	parallel, sequential := engine.Partition(ds)

	start := time.Now()
	accepted, err := c.race(ctx, log, path, parallel, timeout, &out)
	if !accepted && err == nil {
		accepted, err = c.fallback(ctx, log, path, sequential, timeout, &out)
	}
	if err != nil {
		log.Warn("extraction aborted", "attempts", len(out.Attempts), "error", err)
		return out, err
	}

	if err := ctx.Err(); err != nil && !accepted {
		return out, err
	}
	if !accepted {
		log.Warn("all engines exhausted", "attempts", len(out.Attempts), "elapsed", time.Since(start))
		return out, nil
	}

	log.Info("extraction accepted", "engine", out.Engine, "blocks", len(out.Document.Blocks), "elapsed", time.Since(start))
	if c.cache != nil && hash != "" {
		c.cache.Add(category, hash, out.Engine, out.Document)
	}
	return out, nil
}

type raceResult struct {
	d   engine.Descriptor
	h   pipeline.Handle
	res *document.RawResult
	err error
	dur time.Duration
}

// race runs the parallel tier concurrently and accepts the first
// non-empty normalized result, cancelling the rest. It stops early with
// pipeline.ErrPoolStopped when the executor shuts down.
func (c *Controller) race(ctx context.Context, log *slog.Logger, path string, tier []engine.Descriptor, timeout time.Duration, out *Outcome) (bool, error) {
	if len(tier) == 0 {
		return false, nil
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan raceResult, len(tier))
	outstanding := make(map[pipeline.Handle]engine.Descriptor, len(tier))
	start := time.Now()

	for _, d := range tier {
		h, err := c.exec.Submit(d.Name, d.Invoke, path)
		if errors.Is(err, pipeline.ErrPoolStopped) {
			c.record(log, out, d, "", stats.Abandoned, err, 0)
			cancel()
			c.abandon(log, out, outstanding, start)
			return false, err
		}
		if err != nil {
			c.record(log, out, d, "", stats.Failed, err, 0)
			continue
		}
		outstanding[h] = d
		go func() {
			t0 := time.Now()
			res, err := c.exec.Await(raceCtx, h, timeout)
			results <- raceResult{d: d, h: h, res: res, err: err, dur: time.Since(t0)}
		}()
	}

	for len(outstanding) > 0 {
		r := <-results
		delete(outstanding, r.h)

		if r.err != nil {
			switch {
			case errors.Is(r.err, pipeline.ErrPoolStopped):
				c.record(log, out, r.d, r.h, stats.Abandoned, r.err, r.dur)
				cancel()
				c.abandon(log, out, outstanding, start)
				return false, r.err
			case raceCtx.Err() != nil:
				// Caller went away; stop the job rather than leave it running.
				_ = c.exec.Cancel(r.h)
				c.record(log, out, r.d, r.h, stats.Abandoned, r.err, r.dur)
			default:
				c.record(log, out, r.d, r.h, classify(r.err), r.err, r.dur)
			}
			continue
		}

		doc := document.Normalize(path, r.res)
		if doc.IsEmpty() {
			c.record(log, out, r.d, r.h, stats.Empty, nil, r.dur)
			continue
		}

		c.record(log, out, r.d, r.h, stats.Accepted, nil, r.dur)
		out.Document, out.Status, out.Engine = doc, StatusAccepted, r.d.Name

		cancel()
		c.abandon(log, out, outstanding, start)
		return true, nil
	}
	return false, nil
}

// abandon cancels every job still outstanding in a race.
func (c *Controller) abandon(log *slog.Logger, out *Outcome, outstanding map[pipeline.Handle]engine.Descriptor, since time.Time) {
	for h, d := range outstanding {
		_ = c.exec.Cancel(h)
		c.record(log, out, d, h, stats.Abandoned, nil, time.Since(since))
	}
}

// fallback tries the sequential tier strictly in table order.
func (c *Controller) fallback(ctx context.Context, log *slog.Logger, path string, tier []engine.Descriptor, timeout time.Duration, out *Outcome) (bool, error) {
	for _, d := range tier {
		if ctx.Err() != nil {
			return false, nil
		}

		h, err := c.exec.Submit(d.Name, d.Invoke, path)
		if errors.Is(err, pipeline.ErrPoolStopped) {
			c.record(log, out, d, "", stats.Abandoned, err, 0)
			return false, err
		}
		if err != nil {
			c.record(log, out, d, "", stats.Failed, err, 0)
			continue
		}

		t0 := time.Now()
		res, err := c.exec.Await(ctx, h, timeout)
		dur := time.Since(t0)
		if err != nil {
			if errors.Is(err, pipeline.ErrPoolStopped) {
				c.record(log, out, d, h, stats.Abandoned, err, dur)
				return false, err
			}
			if ctx.Err() != nil {
				_ = c.exec.Cancel(h)
				c.record(log, out, d, h, stats.Abandoned, err, dur)
				return false, nil
			}
			c.record(log, out, d, h, classify(err), err, dur)
			continue
		}

		doc := document.Normalize(path, res)
		if doc.IsEmpty() {
			c.record(log, out, d, h, stats.Empty, nil, dur)
			continue
		}

		c.record(log, out, d, h, stats.Accepted, nil, dur)
		out.Document, out.Status, out.Engine = doc, StatusAccepted, d.Name
		return true, nil
	}
	return false, nil
}

func (c *Controller) record(log *slog.Logger, out *Outcome, d engine.Descriptor, h pipeline.Handle, result stats.Outcome, err error, dur time.Duration) {
	a := Attempt{Engine: d.Name, Tier: d.Mode, JobID: h, Result: result, DurationMs: dur.Milliseconds()}
	if err != nil {
		a.Error = err.Error()
	}
	out.Attempts = append(out.Attempts, a)
	c.stats.Record(d.Name, result, dur)

	switch result {
	case stats.Accepted:
	case stats.Abandoned:
		log.Debug("engine abandoned", "engine", d.Name, "tier", d.Mode, "job_id", h)
	default:
		log.Warn("engine not accepted", "engine", d.Name, "tier", d.Mode, "job_id", h, "failure", result, "error", err, "duration", dur)
	}
}

func (c *Controller) timeout(category engine.Category) time.Duration {
	if d, ok := c.table.Timeout(category); ok {
		return d
	}
	if d, ok := c.timeouts[category]; ok {
		return d
	}
	return DefaultTimeout
}

// Timeout reports the wait budget used for category.
func (c *Controller) Timeout(category engine.Category) time.Duration {
	return c.timeout(category)
}

func classify(err error) stats.Outcome {
	switch {
	case errors.Is(err, pipeline.ErrTimeout):
		return stats.TimedOut
	case errors.Is(err, pipeline.ErrCancelled):
		return stats.Abandoned
	default:
		return stats.Failed
	}
}
