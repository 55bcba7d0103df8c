package display

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/harrison/lf/internal/logger"
	"github.com/harrison/lf/internal/models"
)

// colorScheme defines consistent colors for the summary.
type colorScheme struct {
	success *color.Color
	fail    *color.Color
	warn    *color.Color
	label   *color.Color
	muted   *color.Color
}

func newColorScheme() *colorScheme {
	return &colorScheme{
		success: color.New(color.FgGreen),
		fail:    color.New(color.FgRed),
		warn:    color.New(color.FgYellow),
		label:   color.New(color.FgCyan),
		muted:   color.New(color.FgHiBlack),
	}
}

// PrintStart shows what is about to be processed.
func PrintStart(out io.Writer, root string, workers int, dryRun bool) {
	scheme := newColorScheme()
	mode := ""
	if dryRun {
		mode = scheme.warn.Sprint(" (dry run)")
	}
	fmt.Fprintf(out, "Normalizing line endings under %s with %d worker(s)%s\n",
		scheme.label.Sprint(root), workers, mode)
}

// PrintSummary writes the end-of-run counts, skip reasons and failures.
func PrintSummary(out io.Writer, result *models.AggregateResult) {
	if result == nil {
		return
	}
	scheme := newColorScheme()
	var b strings.Builder

	b.WriteString("\n")
	switch {
	case result.Interrupted:
		b.WriteString(scheme.warn.Sprint("Interrupted"))
	case result.HasFailures():
		b.WriteString(scheme.fail.Sprint("Completed with failures"))
	default:
		b.WriteString(scheme.success.Sprint("Done"))
	}
	b.WriteString(fmt.Sprintf(" in %s\n", logger.FormatDuration(result.Duration)))

	convertedLabel := "Converted"
	if result.DryRun {
		convertedLabel = "Would convert"
	}
	writeCount(&b, scheme, convertedLabel, result.Converted, scheme.success)
	writeCount(&b, scheme, "Already normalized", result.AlreadyNormalized, nil)
	writeCount(&b, scheme, "Skipped", result.Skipped, nil)
	if reasons := formatReasons(result.SkipReasons); reasons != "" {
		b.WriteString(scheme.muted.Sprintf("    (%s)\n", reasons))
	}
	writeCount(&b, scheme, "Failed", result.Failed, scheme.fail)
	if len(result.Warnings) > 0 {
		writeCount(&b, scheme, "Warnings", len(result.Warnings), scheme.warn)
	}
	if result.Interrupted {
		writeCount(&b, scheme, "Abandoned", result.Abandoned, scheme.warn)
	}
	if result.Endings.Any() {
		b.WriteString(fmt.Sprintf("  %s %s\n", scheme.label.Sprintf("%-19s", "Line endings:"), FormatEndings(result.Endings)))
	}
	if result.BytesRead > 0 {
		b.WriteString(fmt.Sprintf("  %s %s\n", scheme.label.Sprintf("%-19s", "Read:"), humanize.Bytes(uint64(result.BytesRead))))
	}

	fmt.Fprint(out, b.String())
	PrintFailures(out, result.Failures)
}

// writeCount writes one "label: n" line, coloring n with c when it is non-zero.
func writeCount(b *strings.Builder, scheme *colorScheme, label string, n int, c *color.Color) {
	value := fmt.Sprintf("%d", n)
	if c != nil && n > 0 {
		value = c.Sprint(value)
	}
	b.WriteString(fmt.Sprintf("  %s %s\n", scheme.label.Sprintf("%-19s", label+":"), value))
}

// FormatEndings renders terminator totals, e.g. "12 CRLF, 3 CR (1 mixed file)".
func FormatEndings(e models.Endings) string {
	s := fmt.Sprintf("%d CRLF, %d CR", e.CRLF, e.CR)
	switch e.Mixed {
	case 0:
	case 1:
		s += " (1 mixed file)"
	default:
		s += fmt.Sprintf(" (%d mixed files)", e.Mixed)
	}
	return s
}

// formatReasons renders skip reasons sorted by name, e.g. "binary: 3, too-large: 1".
func formatReasons(reasons map[string]int) string {
	if len(reasons) == 0 {
		return ""
	}
	keys := make([]string, 0, len(reasons))
	for k := range reasons {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %d", k, reasons[k]))
	}
	return strings.Join(parts, ", ")
}

// PrintFailures lists each failed path with its error.
func PrintFailures(out io.Writer, failures []models.Failure) {
	if len(failures) == 0 {
		return
	}
	scheme := newColorScheme()

	fmt.Fprintf(out, "\n%s\n", scheme.fail.Sprintf("Failures (%d):", len(failures)))
	for _, f := range failures {
		fmt.Fprintf(out, "  %s: %v\n", f.Path, f.Err)
	}
}
