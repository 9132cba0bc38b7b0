package analyticserr

import (
	"errors"
	"fmt"
)

// Sentinels used with errors.Is across the analytics core. The concrete
// error types below unwrap to these so callers can branch on the class
// without caring about the details.
var (
	ErrValidation       = errors.New("validation failed")
	ErrInsufficientData = errors.New("insufficient data")
	ErrTransientStore   = errors.New("transient store failure")
	ErrModelUnavailable = errors.New("model unavailable")
)

// ValidationError reports malformed caller input. Surfaced synchronously,
// never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InsufficientDataError is the soft "not enough history" signal. Components
// degrade (skip an evaluation, flag a forecast low-confidence) instead of
// treating it as a hard failure.
type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: have %d, need %d", e.Have, e.Need)
}

func (e *InsufficientDataError) Unwrap() error { return ErrInsufficientData }

// TransientStoreError wraps a failed read/write against the persistence
// collaborator. Batch paths log and skip the affected user; realtime paths
// drop the update and rely on the next snapshot to re-trigger.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return ErrTransientStore }

func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientStoreError{Op: op, Err: err}
}

// ModelUnavailableError marks a single predictive submodel that could not
// be evaluated. The ensemble continues with the remaining submodels.
type ModelUnavailableError struct {
	Model string
	Err   error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("model %s unavailable: %v", e.Model, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error { return ErrModelUnavailable }

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

func IsInsufficientData(err error) bool { return errors.Is(err, ErrInsufficientData) }
