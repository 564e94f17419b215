package output

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/NamanBalaji/chunkdl/internal/progress"
)

// Summary is the final report of a download session.
type Summary struct {
	Path      string
	Size      int64
	Elapsed   time.Duration
	Chunks    int
	Resumed   bool
	Integrity string
	Workers   []progress.WorkerStats
}

// AverageSpeed returns bytes per second over the whole session.
func (s Summary) AverageSpeed() int64 {
	if secs := s.Elapsed.Seconds(); secs > 0 {
		return int64(float64(s.Size) / secs)
	}

	return 0
}

// Render formats the summary header and the per-worker table.
func (s Summary) Render() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("Download complete"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  %s %s\n", mutedStyle.Render("file    "), s.Path)
	fmt.Fprintf(&b, "  %s %s\n", mutedStyle.Render("size    "), progress.FormatSize(s.Size))
	fmt.Fprintf(&b, "  %s %s (%s/s)\n", mutedStyle.Render("time    "),
		progress.FormatDuration(s.Elapsed), progress.FormatSize(s.AverageSpeed()))
	fmt.Fprintf(&b, "  %s %d%s\n", mutedStyle.Render("chunks  "), s.Chunks, resumedNote(s.Resumed))

	if s.Integrity != "" {
		fmt.Fprintf(&b, "  %s %s\n", mutedStyle.Render("checksum"), s.Integrity)
	}

	if len(s.Workers) > 0 {
		b.WriteString(s.workerTable())
		b.WriteString("\n")
	}

	return b.String()
}

func (s Summary) workerTable() string {
	rows := make([][]string, 0, len(s.Workers))
	for _, w := range s.Workers {
		rows = append(rows, []string{
			strconv.Itoa(w.ID),
			strconv.Itoa(w.Chunks),
			progress.FormatSize(w.Bytes),
			progress.FormatDuration(w.Busy),
			progress.FormatSize(w.SpeedBPS) + "/s",
		})
	}

	return Table([]string{"WORKER", "CHUNKS", "BYTES", "TIME", "SPEED"}, rows)
}

// Table renders rows under headers with the shared border style.
func Table(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}

			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...).
		Rows(rows...).
		Render()
}

func resumedNote(resumed bool) string {
	if resumed {
		return " (resumed)"
	}

	return ""
}
