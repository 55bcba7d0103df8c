package executor

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ExecutionPhase represents the phase of a run where an error occurred.
type ExecutionPhase int

const (
	// PhaseWalk represents errors while starting the directory walk.
	PhaseWalk ExecutionPhase = iota
	// PhaseTask represents errors while processing a single file.
	PhaseTask
)

// String returns the string representation of ExecutionPhase.
func (p ExecutionPhase) String() string {
	switch p {
	case PhaseWalk:
		return "walk"
	case PhaseTask:
		return "task"
	default:
		return "unknown"
	}
}

// TaskError represents an unexpected error while processing one file, such as
// a recovered panic. It is reported as that file's Failed outcome.
type TaskError struct {
	Path      string    // File whose processing failed
	Message   string    // Human-readable error message
	Err       error     // Underlying error (optional)
	Timestamp time.Time // When the error occurred
}

// NewTaskError creates a new TaskError with the current timestamp.
func NewTaskError(path, msg string, err error) *TaskError {
	return &TaskError{
		Path:      path,
		Message:   msg,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface for TaskError.
func (e *TaskError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s: %s", e.Path, e.Message))
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Err))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error wrapping support.
func (e *TaskError) Unwrap() error {
	return e.Err
}

// RunError is returned by Scheduler.Run when no work could be started at all.
type RunError struct {
	Phase ExecutionPhase
	Root  string
	Err   error
}

// Error implements the error interface for RunError.
func (e *RunError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Phase, e.Root, e.Err)
}

// Unwrap returns the underlying error.
func (e *RunError) Unwrap() error {
	return e.Err
}

// IsTaskError checks if the error is or wraps a TaskError.
func IsTaskError(err error) bool {
	if err == nil {
		return false
	}
	var te *TaskError
	return errors.As(err, &te)
}

// IsRunError checks if the error is or wraps a RunError.
func IsRunError(err error) bool {
	if err == nil {
		return false
	}
	var re *RunError
	return errors.As(err, &re)
}
