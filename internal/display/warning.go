package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/harrison/lf/internal/models"
)

// Warning represents a user-facing warning message
type Warning struct {
	Title      string   // Main warning title
	Message    string   // Detailed explanation (optional)
	Files      []string // Related files (optional)
	Suggestion string   // Action to take (optional)
}

// Display shows a formatted warning in yellow
func (w Warning) Display(out io.Writer) {
	var b strings.Builder

	b.WriteString("Warning: ")
	b.WriteString(w.Title)
	b.WriteString("\n")

	if w.Message != "" {
		b.WriteString("    ")
		b.WriteString(w.Message)
		b.WriteString("\n")
	}

	if len(w.Files) > 0 {
		b.WriteString("    ")
		if len(w.Files) == 1 {
			b.WriteString("Affected path:\n")
		} else {
			b.WriteString("Affected paths:\n")
		}

		for i, file := range w.Files {
			b.WriteString(fmt.Sprintf("      %d. %s\n", i+1, file))
		}
	}

	if w.Suggestion != "" {
		b.WriteString("    Suggestion:\n")
		b.WriteString("    ")
		b.WriteString(w.Suggestion)
		b.WriteString("\n")
	}

	color.New(color.FgYellow).Fprint(out, b.String())
}

// WarnWalk builds one warning covering every path the walk could not read.
func WarnWalk(warnings []models.Warning) Warning {
	files := make([]string, 0, len(warnings))
	for _, w := range warnings {
		if w.Err != nil {
			files = append(files, w.Err.Error())
		} else {
			files = append(files, w.Path)
		}
	}

	title := "1 path could not be walked"
	if len(warnings) != 1 {
		title = fmt.Sprintf("%d paths could not be walked", len(warnings))
	}
	return Warning{
		Title:      title,
		Message:    "Files beneath these paths were not processed.",
		Files:      files,
		Suggestion: "Check permissions and dangling links, then run lf again.",
	}
}
