// Package display renders the user-facing parts of an lf run: the start
// banner, walk warnings, the end-of-run summary and the list of failures.
//
// # Summary
//
// After a run, print the aggregate:
//
//	display.PrintSummary(os.Stdout, result)
//
// which produces colored counts per status, a breakdown of skip reasons and
// every failed path with its error.
//
// # Warnings
//
// Walk warnings (unreadable directories, broken links) are grouped into one
// block:
//
//	display.WarnWalk(result.Warnings).Display(os.Stderr)
//
// Colors come from fatih/color and are dropped automatically when the output
// is not a terminal or NO_COLOR is set. All functions accept an io.Writer.
package display
