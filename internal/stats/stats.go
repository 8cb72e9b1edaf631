package stats

import (
	"sort"
	"sync"
	"time"
)

// Outcome classifies one engine attempt.
type Outcome string

const (
	Accepted  Outcome = "accepted"
	Empty     Outcome = "empty"
	Failed    Outcome = "error"
	TimedOut  Outcome = "timeout"
	Abandoned Outcome = "abandoned"
)

type sample struct {
	timestamp  time.Time
	durationMs int64
	outcome    Outcome
}

// LatencySnapshot is a point-in-time aggregate of attempt latencies.
type LatencySnapshot struct {
	Count int     `json:"count"`
	MinMs int64   `json:"min_ms"`
	MaxMs int64   `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// EngineSnapshot summarizes one engine over the rolling window.
type EngineSnapshot struct {
	Latency    LatencySnapshot `json:"latency"`
	Outcomes   map[Outcome]int `json:"outcomes"`
	AcceptRate float64         `json:"accept_rate"`
}

// Window tracks recent attempts for one engine.
type Window struct {
	mu      sync.Mutex
	samples []sample
	maxAge  time.Duration
}

func NewWindow(maxAge time.Duration) *Window {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Window{
		samples: make([]sample, 0, 256),
		maxAge:  maxAge,
	}
}

func (w *Window) Record(outcome Outcome, d time.Duration) {
	durationMs := d.Milliseconds()
	if durationMs < 0 {
		durationMs = 0
	}
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)
	w.samples = append(w.samples, sample{
		timestamp:  now,
		durationMs: durationMs,
		outcome:    outcome,
	})
}

func (w *Window) Snapshot() EngineSnapshot {
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)
	snap := EngineSnapshot{Outcomes: make(map[Outcome]int)}
	if len(w.samples) == 0 {
		return snap
	}

	values := make([]int64, 0, len(w.samples))
	var sum int64
	for _, sm := range w.samples {
		values = append(values, sm.durationMs)
		sum += sm.durationMs
		snap.Outcomes[sm.outcome]++
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	snap.Latency = LatencySnapshot{
		Count: len(values),
		MinMs: values[0],
		MaxMs: values[len(values)-1],
		AvgMs: float64(sum) / float64(len(values)),
		P50Ms: percentile(values, 50),
		P95Ms: percentile(values, 95),
		P99Ms: percentile(values, 99),
	}
	snap.AcceptRate = float64(snap.Outcomes[Accepted]) / float64(len(values))
	return snap
}

func (w *Window) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.maxAge)
	writeIdx := 0
	for _, sm := range w.samples {
		if !sm.timestamp.Before(cutoff) {
			w.samples[writeIdx] = sm
			writeIdx++
		}
	}
	w.samples = w.samples[:writeIdx]
}

// Engines keeps one Window per engine name.
type Engines struct {
	mu      sync.Mutex
	windows map[string]*Window
	maxAge  time.Duration
}

func NewEngines(maxAge time.Duration) *Engines {
	return &Engines{
		windows: make(map[string]*Window),
		maxAge:  maxAge,
	}
}

// Record adds one attempt. A nil receiver is a no-op.
func (e *Engines) Record(engine string, outcome Outcome, d time.Duration) {
	if e == nil {
		return
	}
	e.mu.Lock()
	w, ok := e.windows[engine]
	if !ok {
		w = NewWindow(e.maxAge)
		e.windows[engine] = w
	}
	e.mu.Unlock()
	w.Record(outcome, d)
}

// Snapshot returns per-engine aggregates keyed by engine name.
func (e *Engines) Snapshot() map[string]EngineSnapshot {
	if e == nil {
		return map[string]EngineSnapshot{}
	}
	e.mu.Lock()
	windows := make(map[string]*Window, len(e.windows))
	for name, w := range e.windows {
		windows[name] = w
	}
	e.mu.Unlock()

	out := make(map[string]EngineSnapshot, len(windows))
	for name, w := range windows {
		out[name] = w.Snapshot()
	}
	return out
}

func percentile(sortedValues []int64, pct float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sortedValues[0])
	}
	if pct >= 100 {
		return float64(sortedValues[len(sortedValues)-1])
	}

	index := (float64(len(sortedValues)-1) * pct) / 100.0
	lower := int(index)
	upper := lower + 1
	if upper >= len(sortedValues) {
		return float64(sortedValues[lower])
	}
	weight := index - float64(lower)
	lo := float64(sortedValues[lower])
	hi := float64(sortedValues[upper])
	return lo + ((hi - lo) * weight)
}
