package models

import (
	"time"

	"github.com/harrison/lf/internal/lineending"
)

// Outcome status constants
const (
	StatusConverted         = "CONVERTED"          // Line endings rewritten to LF
	StatusAlreadyNormalized = "ALREADY_NORMALIZED" // No CR found, file untouched
	StatusSkipped           = "SKIPPED"            // Not eligible for conversion
	StatusFailed            = "FAILED"             // Conversion attempted and failed
)

// Skip reasons attached to StatusSkipped outcomes
const (
	ReasonBinary     = "binary"
	ReasonUnreadable = "unreadable"
	ReasonDirectory  = "directory"
	ReasonSymlink    = "symlink"
	ReasonTooLarge   = "too-large"
	ReasonNotRegular = "not-regular"
)

// Outcome is the result of processing a single FileTask
type Outcome struct {
	Path   string // Path of the originating task
	Status string // One of the Status* constants
	Reason string // Skip reason (StatusSkipped only)
	Err    error  // Underlying error (StatusFailed, or StatusSkipped with ReasonUnreadable)
	Bytes  int64  // Size of the file contents that were read

	// Endings counts the terminators found in a converted file
	Endings lineending.Stats
}

// Converted builds a StatusConverted outcome
func Converted(path string, size int64) Outcome {
	return Outcome{Path: path, Status: StatusConverted, Bytes: size}
}

// AlreadyNormalized builds a StatusAlreadyNormalized outcome
func AlreadyNormalized(path string, size int64) Outcome {
	return Outcome{Path: path, Status: StatusAlreadyNormalized, Bytes: size}
}

// Skipped builds a StatusSkipped outcome with the given reason and optional cause
func Skipped(path, reason string, err error) Outcome {
	return Outcome{Path: path, Status: StatusSkipped, Reason: reason, Err: err}
}

// Failed builds a StatusFailed outcome
func Failed(path string, err error) Outcome {
	return Outcome{Path: path, Status: StatusFailed, Err: err}
}

// IsFailed returns true if the outcome is a failure
func (o Outcome) IsFailed() bool {
	return o.Status == StatusFailed
}

// Failure is a Failed outcome recorded in the aggregate
type Failure struct {
	Path string
	Err  error
}

// Warning is a non-fatal problem met while walking (unreadable directory, broken link)
type Warning struct {
	Path string
	Err  error
}

// Endings totals the line terminators replaced (or, in a dry run, to be
// replaced) across converted files.
type Endings struct {
	CRLF  int // CRLF pairs collapsed to LF
	CR    int // Lone CRs replaced by LF
	Mixed int // Converted files that mixed more than one terminator style
}

func (e *Endings) add(s lineending.Stats) {
	e.CRLF += s.CRLF
	e.CR += s.CR
	if s.Mixed() {
		e.Mixed++
	}
}

// Any returns true if at least one terminator was counted
func (e Endings) Any() bool {
	return e.CRLF > 0 || e.CR > 0
}

// AggregateResult is the run-wide summary of outcomes across all processed files
type AggregateResult struct {
	Root              string         // Root that was walked
	Converted         int            // Files rewritten
	AlreadyNormalized int            // Text files that needed no change
	Skipped           int            // Files not eligible for conversion
	Failed            int            // Files whose conversion failed
	SkipReasons       map[string]int // Skipped count per reason
	Failures          []Failure      // Failed entries in order of arrival
	Warnings          []Warning      // Walk warnings in order of discovery
	Abandoned         int            // Tasks discovered but never started (interrupted runs)
	Interrupted       bool           // Run stopped early by cancellation
	DryRun            bool           // No file was written
	BytesRead         int64          // Total bytes read by workers
	Endings           Endings        // Terminators found in converted files
	Duration          time.Duration  // Wall-clock run time
}

// NewAggregateResult returns an empty aggregate for the given root
func NewAggregateResult(root string) *AggregateResult {
	return &AggregateResult{
		Root:        root,
		SkipReasons: make(map[string]int),
	}
}

// Add records one outcome. It is not safe for concurrent use; a single
// collector owns the aggregate.
func (r *AggregateResult) Add(o Outcome) {
	r.BytesRead += o.Bytes
	switch o.Status {
	case StatusConverted:
		r.Converted++
		r.Endings.add(o.Endings)
	case StatusAlreadyNormalized:
		r.AlreadyNormalized++
	case StatusSkipped:
		r.Skipped++
		if r.SkipReasons == nil {
			r.SkipReasons = make(map[string]int)
		}
		r.SkipReasons[o.Reason]++
	default:
		r.Failed++
		r.Failures = append(r.Failures, Failure{Path: o.Path, Err: o.Err})
	}
}

// AddWarning records a non-fatal walk warning
func (r *AggregateResult) AddWarning(path string, err error) {
	r.Warnings = append(r.Warnings, Warning{Path: path, Err: err})
}

// Total returns the number of dispatched tasks, which equals the number of outcomes
func (r *AggregateResult) Total() int {
	return r.Converted + r.AlreadyNormalized + r.Skipped + r.Failed
}

// HasFailures returns true if at least one Failed entry was recorded
func (r *AggregateResult) HasFailures() bool {
	return r.Failed > 0
}
