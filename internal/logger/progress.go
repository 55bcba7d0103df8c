package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/lf/internal/models"
)

// redrawInterval limits how often the status line is repainted.
const redrawInterval = 100 * time.Millisecond

// Progress is a live single-line counter of processed files. The total is
// unknown while the walk is still running, so it shows counts rather than a
// percentage. It only draws when its writer is a terminal.
type Progress struct {
	writer      io.Writer
	enabled     bool
	enableColor bool

	mu                sync.Mutex
	converted         int
	alreadyNormalized int
	skipped           int
	failed            int
	warnings          int
	lastWidth         int
	lastDraw          time.Time
	now               func() time.Time
}

// NewProgress creates a Progress that draws only when w is a terminal.
func NewProgress(w io.Writer) *Progress {
	return NewProgressWithTTY(w, isTTY(w))
}

// NewProgressWithTTY creates a Progress with terminal detection overridden.
func NewProgressWithTTY(w io.Writer, tty bool) *Progress {
	return &Progress{
		writer:      w,
		enabled:     tty && w != nil,
		enableColor: tty && !color.NoColor,
		now:         time.Now,
	}
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Enabled reports whether the status line is drawn.
func (p *Progress) Enabled() bool {
	return p.enabled
}

// OnOutcome counts one outcome and repaints the line if due.
func (p *Progress) OnOutcome(o models.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch o.Status {
	case models.StatusConverted:
		p.converted++
	case models.StatusAlreadyNormalized:
		p.alreadyNormalized++
	case models.StatusSkipped:
		p.skipped++
	default:
		p.failed++
	}
	p.drawIfDue()
}

// OnWarning counts one walk warning.
func (p *Progress) OnWarning(w models.Warning) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.warnings++
	p.drawIfDue()
}

// Current returns the number of outcomes counted so far.
func (p *Progress) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.converted + p.alreadyNormalized + p.skipped + p.failed
}

// Render generates the status line text.
func (p *Progress) Render() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.render()
}

func (p *Progress) render() string {
	total := p.converted + p.alreadyNormalized + p.skipped + p.failed
	line := fmt.Sprintf("Processed %d: %d converted, %d unchanged, %d skipped, %d failed",
		total, p.converted, p.alreadyNormalized, p.skipped, p.failed)
	if p.warnings > 0 {
		line += fmt.Sprintf(", %d warnings", p.warnings)
	}
	return line
}

func (p *Progress) drawIfDue() {
	if !p.enabled {
		return
	}
	now := p.now()
	if !p.lastDraw.IsZero() && now.Sub(p.lastDraw) < redrawInterval {
		return
	}
	p.lastDraw = now
	p.draw()
}

// draw overwrites the current terminal line. Callers hold p.mu.
func (p *Progress) draw() {
	line := p.render()
	width := len(line)

	if p.enableColor {
		if p.failed > 0 {
			line = color.New(color.FgYellow).Sprint(line)
		} else {
			line = color.New(color.FgCyan).Sprint(line)
		}
	}
	pad := ""
	if p.lastWidth > width {
		pad = strings.Repeat(" ", p.lastWidth-width)
	}
	fmt.Fprintf(p.writer, "\r%s%s", line, pad)
	p.lastWidth = width
}

// Clear erases the status line so other output can be written.
func (p *Progress) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled || p.lastWidth == 0 {
		return
	}
	fmt.Fprintf(p.writer, "\r%s\r", strings.Repeat(" ", p.lastWidth))
	p.lastWidth = 0
}

// Redraw repaints the status line after it was cleared.
func (p *Progress) Redraw() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled || p.lastDraw.IsZero() {
		return
	}
	p.draw()
}

// Finish erases the status line for good.
func (p *Progress) Finish() {
	p.Clear()
	p.mu.Lock()
	p.enabled = false
	p.mu.Unlock()
}
