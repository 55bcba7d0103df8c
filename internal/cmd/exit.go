package cmd

import (
	"errors"
	"fmt"
)

// Process exit codes
const (
	ExitOK          = 0
	ExitFailures    = 1   // At least one file failed to convert
	ExitUsage       = 2   // Bad arguments, configuration or run lock
	ExitInterrupted = 130 // Stopped by SIGINT or SIGTERM
)

// ExitError carries the process exit code out of a command.
// Err is nil when the run itself already reported everything worth saying.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func usageError(format string, args ...interface{}) *ExitError {
	return &ExitError{Code: ExitUsage, Err: fmt.Errorf(format, args...)}
}

// ExitCode maps an error returned by Execute to a process exit code.
// Errors that are not ExitErrors come from cobra itself (unknown flags,
// bad arguments) and count as usage errors.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitUsage
}

// Message returns the text to print for err, or "" when there is nothing to add.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return ""
	}
	return err.Error()
}
