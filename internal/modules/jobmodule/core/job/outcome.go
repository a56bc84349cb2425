package job

import (
	joberrors "github.com/mantonx/remuxer/internal/modules/jobmodule/errors"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/types"
)

// Outcome is the terminal result of a job: either a value (Success) or an
// error (Error or Aborted), never both and never neither.
type Outcome[T any] struct {
	value T
	err   error
}

// Succeeded returns a successful outcome carrying v.
func Succeeded[T any](v T) Outcome[T] {
	return Outcome[T]{value: v}
}

// Failed returns a failed outcome. A nil err is replaced with a generic
// failure so the outcome always carries an error.
func Failed[T any](err error) Outcome[T] {
	if err == nil {
		err = joberrors.New(joberrors.ErrorTypeCommand, "job", joberrors.ErrCommandFailed)
	}
	return Outcome[T]{err: err}
}

// Status maps the outcome onto its terminal job status.
func (o Outcome[T]) Status() types.JobStatus {
	switch {
	case o.err == nil:
		return types.JobStatusSuccess
	case joberrors.IsAborted(o.err):
		return types.JobStatusAborted
	default:
		return types.JobStatusError
	}
}

// Value returns the result and whether the outcome succeeded.
func (o Outcome[T]) Value() (T, bool) {
	return o.value, o.err == nil
}

// Err returns the failure, nil on success.
func (o Outcome[T]) Err() error {
	return o.err
}

// Get returns the value or the error.
func (o Outcome[T]) Get() (T, error) {
	if o.err != nil {
		var zero T
		return zero, o.err
	}
	return o.value, nil
}
