// Package errors provides structured error handling for the job module.
// It defines error types, sentinel errors, and the classification used to
// decide whether a failed job ends Aborted or Error.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies job failures.
type ErrorType string

const (
	// ErrorTypeAborted indicates an explicit cancellation or a tool abort exit code
	ErrorTypeAborted ErrorType = "aborted"
	// ErrorTypeCommand indicates a tool exited with a failure code
	ErrorTypeCommand ErrorType = "command"
	// ErrorTypeSpawn indicates the tool could not be started
	ErrorTypeSpawn ErrorType = "spawn"
	// ErrorTypeOutput indicates the tool produced output that could not be decoded
	ErrorTypeOutput ErrorType = "output"
	// ErrorTypeUnsupported indicates a driver capability that is not configured
	ErrorTypeUnsupported ErrorType = "unsupported"
	// ErrorTypeValidation indicates invalid job input
	ErrorTypeValidation ErrorType = "validation"
)

// Sentinel errors for common scenarios
var (
	// ErrAborted indicates the job was cancelled
	ErrAborted = errors.New("aborted")

	// ErrCommandNotFound indicates the configured executable does not exist
	ErrCommandNotFound = errors.New("command not found")

	// ErrCommandFailed indicates a nonzero, non-abort exit
	ErrCommandFailed = errors.New("command failed")

	// ErrMalformedOutput indicates unparseable tool output
	ErrMalformedOutput = errors.New("malformed output")

	// ErrNotSupported indicates the driver lacks the requested capability
	ErrNotSupported = errors.New("not supported")

	// ErrNoProcess indicates a control request while no process is running
	ErrNoProcess = errors.New("no running process")

	// ErrRemovedFromQueue indicates a pending job was removed before it started
	ErrRemovedFromQueue = errors.New("removed from queue")

	// ErrInvalidInput indicates invalid job parameters
	ErrInvalidInput = errors.New("invalid input")
)

// JobError provides structured error information with context.
type JobError struct {
	Type  ErrorType // Error classification
	Op    string    // Operation that failed (e.g. "probe", "encode pass 2")
	JobID string    // Related job if known
	Err   error     // Underlying error
}

// Error implements the error interface. The message of the underlying error
// comes first since it is usually the tool's own diagnostic.
func (e *JobError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *JobError) Unwrap() error {
	return e.Err
}

// Is matches aborted errors against ErrAborted regardless of the wrapped cause.
func (e *JobError) Is(target error) bool {
	if target == ErrAborted && e.Type == ErrorTypeAborted {
		return true
	}
	return false
}

// New creates a new JobError.
func New(errType ErrorType, op string, err error) *JobError {
	return &JobError{Type: errType, Op: op, Err: err}
}

// WithJob adds job context to the error.
func (e *JobError) WithJob(jobID string) *JobError {
	e.JobID = jobID
	return e
}

// Aborted creates a cancellation error.
func Aborted(op string) *JobError {
	return New(ErrorTypeAborted, op, ErrAborted)
}

// CommandNotFound creates a spawn error naming the missing executable.
func CommandNotFound(path string, cause error) *JobError {
	return New(ErrorTypeSpawn, "", fmt.Errorf("%w: %s (%v)", ErrCommandNotFound, path, cause))
}

// CommandFailed creates an error carrying the tool's first diagnostic line.
// An empty message falls back to a generic one including the exit code.
func CommandFailed(command string, exitCode int, message string) *JobError {
	if message == "" {
		return New(ErrorTypeCommand, "", fmt.Errorf("%w: %s exited with code %d", ErrCommandFailed, command, exitCode))
	}
	return New(ErrorTypeCommand, "", fmt.Errorf("%w: %s", ErrCommandFailed, message))
}

// MalformedOutput creates an output error whose message is the raw output.
func MalformedOutput(raw string, cause error) *JobError {
	return New(ErrorTypeOutput, "", &rawOutputError{raw: raw, cause: cause})
}

// NotSupported creates an unsupported-capability error.
func NotSupported(command, capability string) *JobError {
	return New(ErrorTypeUnsupported, capability, fmt.Errorf("%w by %s", ErrNotSupported, command))
}

// Validation creates an input validation error.
func Validation(op, message string) *JobError {
	return New(ErrorTypeValidation, op, fmt.Errorf("%w: %s", ErrInvalidInput, message))
}

type rawOutputError struct {
	raw   string
	cause error
}

func (e *rawOutputError) Error() string { return e.raw }

func (e *rawOutputError) Unwrap() []error { return []error{ErrMalformedOutput, e.cause} }

// IsAborted reports whether err represents a cancellation.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted)
}

// GetType extracts the error type, defaulting to ErrorTypeCommand.
func GetType(err error) ErrorType {
	var jErr *JobError
	if errors.As(err, &jErr) {
		return jErr.Type
	}
	return ErrorTypeCommand
}

// Wrap adds operation context to err, keeping its classification.
func Wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	return New(GetType(err), op, err)
}
