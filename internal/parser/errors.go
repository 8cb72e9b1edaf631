package parser

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrUnsupportedFormat is returned by an engine handed a file it cannot read.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrEngineUnavailable is returned by engines missing credentials or binaries.
	ErrEngineUnavailable = errors.New("extraction engine unavailable")
)

// RetryableError marks transient failures (rate limits, overloaded backends).
type RetryableError struct {
	Engine string
	Err    error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("%s: retryable: %v", e.Engine, e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Temporary reports true so the job pool retries the invocation.
func (e *RetryableError) Temporary() bool {
	return true
}

// rpcError wraps a cloud API error, marking transient gRPC codes retryable.
func rpcError(engine string, err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return &RetryableError{Engine: engine, Err: err}
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%s: %w: %v", engine, ErrEngineUnavailable, err)
	}
	return fmt.Errorf("%s: %w", engine, err)
}

// requireExt rejects paths whose extension is not in exts.
func requireExt(path string, exts ...string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if slices.Contains(exts, ext) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}
