package stats

import (
	"sync"
	"testing"
	"time"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func TestWindowSnapshotPercentiles(t *testing.T) {
	w := NewWindow(time.Hour)
	w.Record(Accepted, ms(100))
	w.Record(Empty, ms(200))
	w.Record(Failed, ms(300))
	w.Record(Accepted, ms(400))
	w.Record(TimedOut, ms(500))

	snap := w.Snapshot()
	if snap.Latency.Count != 5 {
		t.Fatalf("expected count=5, got %d", snap.Latency.Count)
	}
	if snap.Latency.MinMs != 100 {
		t.Fatalf("expected min=100, got %d", snap.Latency.MinMs)
	}
	if snap.Latency.MaxMs != 500 {
		t.Fatalf("expected max=500, got %d", snap.Latency.MaxMs)
	}
	if snap.Latency.AvgMs != 300 {
		t.Fatalf("expected avg=300, got %f", snap.Latency.AvgMs)
	}
	if snap.Latency.P50Ms != 300 {
		t.Fatalf("expected p50=300, got %f", snap.Latency.P50Ms)
	}
	if snap.Latency.P95Ms != 480 {
		t.Fatalf("expected p95=480, got %f", snap.Latency.P95Ms)
	}
	if snap.Latency.P99Ms != 496 {
		t.Fatalf("expected p99=496, got %f", snap.Latency.P99Ms)
	}
	if snap.Outcomes[Accepted] != 2 || snap.Outcomes[TimedOut] != 1 {
		t.Fatalf("unexpected outcome counts: %v", snap.Outcomes)
	}
	if snap.AcceptRate != 0.4 {
		t.Fatalf("expected accept rate 0.4, got %f", snap.AcceptRate)
	}
}

func TestWindowPrunesExpiredSamples(t *testing.T) {
	w := NewWindow(10 * time.Millisecond)
	w.Record(Accepted, ms(100))
	time.Sleep(25 * time.Millisecond)

	snap := w.Snapshot()
	if snap.Latency.Count != 0 {
		t.Fatalf("expected count=0 after prune, got %d", snap.Latency.Count)
	}
	if len(snap.Outcomes) != 0 {
		t.Fatalf("expected no outcomes after prune, got %v", snap.Outcomes)
	}

	w.Record(Empty, ms(200))
	snap = w.Snapshot()
	if snap.Latency.Count != 1 {
		t.Fatalf("expected count=1 for fresh sample, got %d", snap.Latency.Count)
	}
	if snap.Latency.MinMs != 200 || snap.Latency.MaxMs != 200 {
		t.Fatalf("expected min=max=200, got min=%d max=%d", snap.Latency.MinMs, snap.Latency.MaxMs)
	}
}

func TestWindowRecordClampsNegativeDuration(t *testing.T) {
	w := NewWindow(time.Hour)
	w.Record(Failed, -ms(10))
	snap := w.Snapshot()
	if snap.Latency.Count != 1 {
		t.Fatalf("expected count=1, got %d", snap.Latency.Count)
	}
	if snap.Latency.MinMs != 0 || snap.Latency.MaxMs != 0 {
		t.Fatalf("expected clamped duration=0, got min=%d max=%d", snap.Latency.MinMs, snap.Latency.MaxMs)
	}
}

func TestEnginesKeepsPerEngineWindows(t *testing.T) {
	e := NewEngines(time.Hour)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				e.Record("pdftext", Accepted, ms(10))
			} else {
				e.Record("tesseract", TimedOut, ms(1000))
			}
		}(i)
	}
	wg.Wait()

	snap := e.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 engines, got %d", len(snap))
	}
	if snap["pdftext"].Outcomes[Accepted] != 10 {
		t.Fatalf("expected 10 accepted pdftext attempts, got %v", snap["pdftext"].Outcomes)
	}
	if snap["tesseract"].AcceptRate != 0 {
		t.Fatalf("expected tesseract accept rate 0, got %f", snap["tesseract"].AcceptRate)
	}
}

func TestEnginesNilIsNoop(t *testing.T) {
	var e *Engines
	e.Record("pdftext", Accepted, ms(1))
	if got := e.Snapshot(); len(got) != 0 {
		t.Fatalf("expected empty snapshot, got %v", got)
	}
}
