package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/NamanBalaji/chunkdl/internal/progress"
)

const defaultWidth = 80

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func terminalWidth(f *os.File) int {
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}

	return width
}

// ProgressBar renders a bar of width cells for current out of total.
func ProgressBar(current, total int64, width int) string {
	if width <= 0 {
		width = 30
	}

	if total <= 0 {
		total = 1
	}

	current = max(0, min(current, total))
	percent := float64(current) / float64(total)
	filled := max(0, min(int(percent*float64(width)), width))

	bar := symbols["bullet"] + strings.Repeat(symbols["hline"], filled) + strings.Repeat(" ", width-filled) + symbols["bullet"]

	return mutedStyle.Render(fmt.Sprintf("%s %5.1f%%", bar, percent*100))
}

// LiveLine redraws a single status line on a terminal.
type LiveLine struct {
	out   io.Writer
	width int
}

// NewLiveLine returns a LiveLine for f, or nil when f is not a terminal.
func NewLiveLine(f *os.File) *LiveLine {
	if !IsTerminal(f) {
		return nil
	}

	return &LiveLine{out: f, width: terminalWidth(f)}
}

// Update redraws the line from a progress snapshot.
func (l *LiveLine) Update(s progress.Snapshot) {
	if l == nil {
		return
	}

	var line string
	if s.TotalSize >= 0 {
		barWidth := max(10, min(40, l.width-50))
		line = fmt.Sprintf("%s %s/%s %s/s ETA %s",
			ProgressBar(s.Downloaded, s.TotalSize, barWidth),
			progress.FormatSize(s.Downloaded), progress.FormatSize(s.TotalSize),
			progress.FormatSize(s.SpeedBPS), s.GetETA())
	} else {
		line = fmt.Sprintf("%s downloaded, %s/s", progress.FormatSize(s.Downloaded), progress.FormatSize(s.SpeedBPS))
	}

	fmt.Fprintf(l.out, "\r\033[K%s", line)
}

// Finish ends the live line so later output starts on a fresh line.
func (l *LiveLine) Finish() {
	if l == nil {
		return
	}

	fmt.Fprintln(l.out)
}
