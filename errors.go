package hotrun

import (
	"errors"
	"fmt"
)

// Common errors returned by hotrun operations
var (
	// ErrWatchSetup indicates the watch could not be placed on the entry file,
	// typically because its parent directory does not exist
	ErrWatchSetup = errors.New("hotrun: watch setup")

	// ErrWatchUnavailable indicates the OS notification facility could not be initialized
	ErrWatchUnavailable = errors.New("hotrun: watch unavailable")

	// ErrSpawn indicates a child process could not be started
	ErrSpawn = errors.New("hotrun: spawn")

	// ErrStopped indicates the supervisor has already been stopped
	ErrStopped = errors.New("hotrun: stopped")

	// ErrInvalidConfig indicates the supervisor options are unusable
	ErrInvalidConfig = errors.New("hotrun: invalid config")
)

// OpError represents an error from a hotrun operation
type OpError struct {
	// Op is the operation that failed
	Op Operation
	// Path is the file path involved in the operation
	Path string
	// Err is the underlying error
	Err error
}

// Error returns a formatted error message
func (e *OpError) Error() string {
	return fmt.Sprintf("hotrun %s %q: %v", e.Op.String(), e.Path, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *OpError) Unwrap() error {
	return e.Err
}

func opErr(op Operation, path string, kind, err error) error {
	if err == nil {
		return &OpError{Op: op, Path: path, Err: kind}
	}
	return &OpError{Op: op, Path: path, Err: fmt.Errorf("%w: %w", kind, err)}
}

// MultiError aggregates multiple errors, used when tearing down several resources
type MultiError struct {
	// Errors contains all accumulated errors
	Errors []error
}

// Error returns a summary of the accumulated errors
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred", len(m.Errors))
}

// Add appends an error to the collection if it's not nil
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Err returns nil if no errors occurred, otherwise returns the MultiError itself
func (m *MultiError) Err() error {
	if len(m.Errors) == 0 {
		return nil
	}
	return m
}

// Unwrap exposes the accumulated errors to errors.Is and errors.As
func (m *MultiError) Unwrap() []error {
	return m.Errors
}
