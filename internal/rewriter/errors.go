package rewriter

import "fmt"

// Rewrite phases reported in RewriteError.Op
const (
	OpStat  = "stat"
	OpRead  = "read"
	OpWrite = "write"
)

// RewriteError represents a failure to convert one file.
// The original file is never modified when a RewriteError is returned.
type RewriteError struct {
	Path string // File that could not be converted
	Op   string // Phase that failed: stat, read or write
	Err  error  // Underlying error
}

// NewRewriteError creates a RewriteError for the given phase.
func NewRewriteError(path, op string, err error) *RewriteError {
	return &RewriteError{Path: path, Op: op, Err: err}
}

// Error implements the error interface for RewriteError.
func (e *RewriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error for error wrapping support.
func (e *RewriteError) Unwrap() error {
	return e.Err
}
