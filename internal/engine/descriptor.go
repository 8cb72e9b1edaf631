package engine

import (
	"context"
	"fmt"

	"github.com/dgallion1/docmux/internal/document"
)

// Mode decides which tier an engine runs in.
type Mode string

const (
	Parallel   Mode = "parallel"
	Sequential Mode = "sequential"
)

// Speed is a hand-curated latency class.
type Speed string

const (
	Fast   Speed = "fast"
	Medium Speed = "medium"
	Slow   Speed = "slow"
)

// Invoke runs one engine against one document path.
type Invoke func(ctx context.Context, path string) (*document.RawResult, error)

// Descriptor describes one candidate engine for a category. Identity is Name.
type Descriptor struct {
	Name            string  `json:"name"`
	Mode            Mode    `json:"mode"`
	SuccessRateHint float64 `json:"success_rate"`
	Speed           Speed   `json:"speed"`
	Invoke          Invoke  `json:"-"`
}

func (d Descriptor) validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidDescriptor)
	}
	switch d.Mode {
	case Parallel, Sequential:
	default:
		return fmt.Errorf("%w: %s: mode %q", ErrInvalidDescriptor, d.Name, d.Mode)
	}
	switch d.Speed {
	case Fast, Medium, Slow:
	default:
		return fmt.Errorf("%w: %s: speed %q", ErrInvalidDescriptor, d.Name, d.Speed)
	}
	if d.SuccessRateHint < 0 || d.SuccessRateHint > 1 {
		return fmt.Errorf("%w: %s: success rate %v outside [0,1]", ErrInvalidDescriptor, d.Name, d.SuccessRateHint)
	}
	if d.Invoke == nil {
		return fmt.Errorf("%w: %s: no invoke function", ErrInvalidDescriptor, d.Name)
	}
	return nil
}

// Partition splits descriptors into the parallel and sequential tiers,
// preserving table order inside each.
func Partition(ds []Descriptor) (parallel, sequential []Descriptor) {
	for _, d := range ds {
		if d.Mode == Parallel {
			parallel = append(parallel, d)
		} else {
			sequential = append(sequential, d)
		}
	}
	return parallel, sequential
}
