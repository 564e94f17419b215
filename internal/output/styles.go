package output

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))             // green
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))             // red
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))            // yellow
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))            // cyan
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))           // light grey
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69")) // purple
)

var symbols = map[string]string{
	"pass":    "✓",
	"fail":    "✗",
	"warning": "!",
	"info":    "ℹ",
	"bullet":  "•",
	"hline":   "━",
}

// Printer writes styled one-line messages.
type Printer struct {
	w io.Writer
}

func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}

	return &Printer{w: w}
}

func (p *Printer) Success(format string, a ...any) {
	p.line(successStyle, "pass", format, a...)
}

func (p *Printer) Error(format string, a ...any) {
	p.line(errorStyle, "fail", format, a...)
}

func (p *Printer) Warning(format string, a ...any) {
	p.line(warningStyle, "warning", format, a...)
}

func (p *Printer) Info(format string, a ...any) {
	p.line(infoStyle, "info", format, a...)
}

// Raw writes s followed by a newline without styling.
func (p *Printer) Raw(s string) {
	fmt.Fprintln(p.w, s)
}

func (p *Printer) line(style lipgloss.Style, symbol, format string, a ...any) {
	fmt.Fprintln(p.w, style.Render(symbols[symbol]+" "+fmt.Sprintf(format, a...)))
}
