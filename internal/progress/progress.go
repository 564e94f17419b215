package progress

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Progress is a read-only view of download progress.
type Progress interface {
	GetTotalSize() int64
	GetDownloaded() int64
	GetPercentage() float64
	GetSpeedBPS() int64
	GetETA() string
}

type slot struct {
	size    int64
	written atomic.Int64
}

type workerSlot struct {
	bytes  atomic.Int64
	busy   atomic.Int64 // nanoseconds
	chunks atomic.Int32
}

// Tracker holds one counter per chunk and per worker. Each counter is written
// by a single worker at a time and read by the reporter without locking.
type Tracker struct {
	total   int64
	chunks  []slot
	workers []workerSlot
	started time.Time
}

// NewTracker creates a tracker for a resource of total bytes split into
// chunks of the given sizes. A negative total marks an unknown size.
func NewTracker(total int64, chunkSizes []int64, workers int) *Tracker {
	t := &Tracker{
		total:   total,
		chunks:  make([]slot, len(chunkSizes)),
		workers: make([]workerSlot, workers),
		started: time.Now(),
	}

	for i, size := range chunkSizes {
		t.chunks[i].size = size
	}

	return t
}

// Set records the absolute number of bytes persisted for chunk id.
func (t *Tracker) Set(id int, written int64) {
	t.chunks[id].written.Store(written)
}

// Add records n more bytes persisted for chunk id.
func (t *Tracker) Add(id int, n int64) int64 {
	return t.chunks[id].written.Add(n)
}

// Written returns the bytes persisted for chunk id.
func (t *Tracker) Written(id int) int64 {
	return t.chunks[id].written.Load()
}

// TotalSize returns the resource size, negative when unknown.
func (t *Tracker) TotalSize() int64 {
	return t.total
}

// Downloaded returns the sum of persisted bytes across all chunks.
func (t *Tracker) Downloaded() int64 {
	var sum int64
	for i := range t.chunks {
		sum += t.chunks[i].written.Load()
	}

	return sum
}

// Finished reports whether every byte of a known-size resource is persisted.
func (t *Tracker) Finished() bool {
	return t.total >= 0 && t.Downloaded() == t.total
}

// Elapsed returns the time since the tracker was created.
func (t *Tracker) Elapsed() time.Duration {
	return time.Since(t.started)
}

// WorkerTransferred credits worker w with n bytes.
func (t *Tracker) WorkerTransferred(w int, n int64) {
	t.workers[w].bytes.Add(n)
}

// WorkerBusy adds d to the time worker w spent fetching.
func (t *Tracker) WorkerBusy(w int, d time.Duration) {
	t.workers[w].busy.Add(int64(d))
}

// WorkerChunkDone counts a chunk retired by worker w.
func (t *Tracker) WorkerChunkDone(w int) {
	t.workers[w].chunks.Add(1)
}

// ChunkProgress is the state of one chunk at snapshot time.
type ChunkProgress struct {
	ID         int     `json:"id"`
	Written    int64   `json:"written"`
	Size       int64   `json:"size"`
	Percentage float64 `json:"percentage"`
}

// WorkerStats summarises what one worker transferred.
type WorkerStats struct {
	ID       int           `json:"id"`
	Bytes    int64         `json:"bytes"`
	Busy     time.Duration `json:"busy"`
	Chunks   int           `json:"chunks"`
	SpeedBPS int64         `json:"speedBps"`
}

// Snapshot is a point-in-time copy of the tracker.
type Snapshot struct {
	TotalSize  int64           `json:"totalSize"`
	Downloaded int64           `json:"downloaded"`
	Percentage float64         `json:"percentage"`
	SpeedBPS   int64           `json:"speedBps"`
	ETA        time.Duration   `json:"eta"`
	Elapsed    time.Duration   `json:"elapsed"`
	Chunks     []ChunkProgress `json:"chunks"`
	Workers    []WorkerStats   `json:"workers"`
}

// Snapshot computes per-chunk written/size percentages and worker totals.
func (t *Tracker) Snapshot() Snapshot {
	s := Snapshot{
		TotalSize: t.total,
		Elapsed:   t.Elapsed(),
		Chunks:    make([]ChunkProgress, len(t.chunks)),
		Workers:   t.Workers(),
	}

	for i := range t.chunks {
		written := t.chunks[i].written.Load()
		s.Downloaded += written
		s.Chunks[i] = ChunkProgress{
			ID:         i,
			Written:    written,
			Size:       t.chunks[i].size,
			Percentage: percent(written, t.chunks[i].size),
		}
	}

	s.Percentage = percent(s.Downloaded, t.total)

	return s
}

// Workers returns per-worker statistics.
func (t *Tracker) Workers() []WorkerStats {
	stats := make([]WorkerStats, len(t.workers))
	for i := range t.workers {
		ws := WorkerStats{
			ID:     i,
			Bytes:  t.workers[i].bytes.Load(),
			Busy:   time.Duration(t.workers[i].busy.Load()),
			Chunks: int(t.workers[i].chunks.Load()),
		}

		if secs := ws.Busy.Seconds(); secs > 0 {
			ws.SpeedBPS = int64(float64(ws.Bytes) / secs)
		}

		stats[i] = ws
	}

	return stats
}

func (s Snapshot) GetTotalSize() int64    { return s.TotalSize }
func (s Snapshot) GetDownloaded() int64   { return s.Downloaded }
func (s Snapshot) GetPercentage() float64 { return s.Percentage }
func (s Snapshot) GetSpeedBPS() int64     { return s.SpeedBPS }
func (s Snapshot) GetETA() string {
	if s.ETA <= 0 {
		return "-"
	}

	return FormatDuration(s.ETA)
}

// Describe renders p as a single status line. Percentage and ETA are left
// out when the total size is unknown.
func Describe(p Progress) string {
	if p.GetTotalSize() < 0 {
		return fmt.Sprintf("%s downloaded at %s/s", FormatSize(p.GetDownloaded()), FormatSize(p.GetSpeedBPS()))
	}

	return fmt.Sprintf("%.1f%% (%s of %s) at %s/s, ETA %s",
		p.GetPercentage(), FormatSize(p.GetDownloaded()), FormatSize(p.GetTotalSize()),
		FormatSize(p.GetSpeedBPS()), p.GetETA())
}

func percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}

	if part >= whole {
		return 100
	}

	return float64(part) / float64(whole) * 100
}

// FormatSize renders a byte count with decimal unit prefixes.
func FormatSize(bytes int64) string {
	const unit = 1000
	if bytes < 0 {
		return "Unknown"
	}

	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	d := float64(bytes)
	exp := 0

	for d >= unit && exp < 6 {
		d /= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", d, "kMGTPE"[exp-1])
}

// FormatDuration renders d rounded to seconds as "5s", "3m 2s" or "1h 4m".
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)

	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", d/time.Minute, (d%time.Minute)/time.Second)
	default:
		return fmt.Sprintf("%dh %dm", d/time.Hour, (d%time.Hour)/time.Minute)
	}
}
