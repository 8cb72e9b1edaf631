package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownCategory is returned when a category has no descriptor list.
	ErrUnknownCategory = errors.New("unknown document category")

	// ErrUnknownEngine is returned when a descriptor names an engine the registry does not know.
	ErrUnknownEngine = errors.New("unknown extraction engine")

	// ErrInvalidDescriptor is returned for descriptors with bad modes, hints or duplicate names.
	ErrInvalidDescriptor = errors.New("invalid engine descriptor")
)

// ConfigError reports a descriptor table or category problem. It is fatal
// and is the only error that crosses the extraction boundary.
type ConfigError struct {
	// Op is the operation that failed (e.g. "LoadTable", "Descriptors").
	Op string

	Err error

	Details string
}

func (e *ConfigError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("engine config: %s: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("engine config: %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is matches against the wrapped sentinel.
func (e *ConfigError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func configErr(op string, err error, details string) *ConfigError {
	return &ConfigError{Op: op, Err: err, Details: details}
}
