// Package report renders the outcome of a run as a Markdown document, or as
// HTML converted from that Markdown, for archiving or CI artifacts.
package report

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/harrison/lf/internal/filelock"
	"github.com/harrison/lf/internal/logger"
	"github.com/harrison/lf/internal/models"
)

// Run is the input of a report: one aggregate plus identifying metadata.
type Run struct {
	ID        string
	StartedAt time.Time
	Result    *models.AggregateResult
}

// newMarkdown returns the converter used for HTML output; tables need GFM.
func newMarkdown() goldmark.Markdown {
	return goldmark.New(goldmark.WithExtensions(extension.GFM))
}

// Markdown builds the report document.
func Markdown(run Run) []byte {
	r := run.Result
	if r == nil {
		r = models.NewAggregateResult("")
	}

	var b bytes.Buffer
	b.WriteString("# lf run report\n\n")

	b.WriteString("| Field | Value |\n|---|---|\n")
	writeRow(&b, "Root", code(r.Root))
	if run.ID != "" {
		writeRow(&b, "Run ID", code(run.ID))
	}
	if !run.StartedAt.IsZero() {
		writeRow(&b, "Started", run.StartedAt.UTC().Format(time.RFC3339))
	}
	writeRow(&b, "Duration", logger.FormatDuration(r.Duration))
	writeRow(&b, "Status", status(r))
	b.WriteString("\n")

	b.WriteString("## Summary\n\n")
	b.WriteString("| Outcome | Files |\n|---|---:|\n")
	converted := "Converted"
	if r.DryRun {
		converted = "Would convert"
	}
	writeRow(&b, converted, fmt.Sprint(r.Converted))
	writeRow(&b, "Already normalized", fmt.Sprint(r.AlreadyNormalized))
	writeRow(&b, "Skipped", fmt.Sprint(r.Skipped))
	writeRow(&b, "Failed", fmt.Sprint(r.Failed))
	if r.Interrupted {
		writeRow(&b, "Abandoned", fmt.Sprint(r.Abandoned))
	}
	b.WriteString("\n")

	if r.Endings.Any() {
		b.WriteString("## Line endings\n\n")
		b.WriteString("| Terminator | Count |\n|---|---:|\n")
		writeRow(&b, "CRLF", fmt.Sprint(r.Endings.CRLF))
		writeRow(&b, "CR", fmt.Sprint(r.Endings.CR))
		writeRow(&b, "Mixed files", fmt.Sprint(r.Endings.Mixed))
		b.WriteString("\n")
	}

	if len(r.SkipReasons) > 0 {
		b.WriteString("## Skipped\n\n")
		b.WriteString("| Reason | Files |\n|---|---:|\n")
		reasons := make([]string, 0, len(r.SkipReasons))
		for reason := range r.SkipReasons {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			writeRow(&b, reason, fmt.Sprint(r.SkipReasons[reason]))
		}
		b.WriteString("\n")
	}

	if len(r.Failures) > 0 {
		b.WriteString("## Failures\n\n")
		b.WriteString("| Path | Error |\n|---|---|\n")
		for _, f := range r.Failures {
			msg := ""
			if f.Err != nil {
				msg = f.Err.Error()
			}
			writeRow(&b, code(f.Path), escape(msg))
		}
		b.WriteString("\n")
	}

	if len(r.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range r.Warnings {
			msg := w.Path
			if w.Err != nil {
				msg = w.Err.Error()
			}
			fmt.Fprintf(&b, "- %s\n", escape(msg))
		}
		b.WriteString("\n")
	}

	return b.Bytes()
}

// HTML renders the Markdown report as a standalone HTML page.
func HTML(run Run) ([]byte, error) {
	var body bytes.Buffer
	if err := newMarkdown().Convert(Markdown(run), &body); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}

	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>lf run report</title>\n</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

// Write renders the report to path. A .html or .htm extension selects HTML;
// anything else gets Markdown. The file is replaced atomically.
func Write(path string, run Run) error {
	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		html, err := HTML(run)
		if err != nil {
			return err
		}
		data = html
	default:
		data = Markdown(run)
	}

	if err := filelock.AtomicWrite(path, data); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

func status(r *models.AggregateResult) string {
	switch {
	case r.Interrupted:
		return "interrupted"
	case r.HasFailures():
		return "failed"
	case r.DryRun:
		return "dry run"
	default:
		return "ok"
	}
}

func writeRow(b *bytes.Buffer, cells ...string) {
	b.WriteString("| ")
	b.WriteString(strings.Join(cells, " | "))
	b.WriteString(" |\n")
}

// code wraps s in a code span, widening the fence if s contains backticks.
func code(s string) string {
	if s == "" {
		return ""
	}
	fence := "`"
	for strings.Contains(s, fence) {
		fence += "`"
	}
	pad := ""
	if strings.HasPrefix(s, "`") || strings.HasSuffix(s, "`") {
		pad = " "
	}
	return fence + pad + strings.ReplaceAll(s, "|", "\\|") + pad + fence
}

var escaper = strings.NewReplacer(
	"\\", "\\\\",
	"|", "\\|",
	"*", "\\*",
	"_", "\\_",
	"`", "\\`",
	"<", "&lt;",
	">", "&gt;",
	"\n", " ",
)

// escape makes s safe as inline Markdown table content.
func escape(s string) string {
	return escaper.Replace(s)
}
