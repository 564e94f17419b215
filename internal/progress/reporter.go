package progress

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/NamanBalaji/chunkdl/internal/logger"
)

const smoothingWindow = 5 * time.Second

// Reporter periodically snapshots a Tracker, derives a smoothed speed and ETA
// and logs the result.
type Reporter struct {
	tracker  *Tracker
	interval time.Duration
	onTick   func(Snapshot)

	mu      sync.RWMutex
	latest  Snapshot
	history []sample
}

type sample struct {
	t     time.Time
	bytes int64
}

// NewReporter creates a reporter ticking every interval. onTick, when not
// nil, receives every snapshot after it is logged.
func NewReporter(tracker *Tracker, interval time.Duration, onTick func(Snapshot)) *Reporter {
	return &Reporter{
		tracker:  tracker,
		interval: interval,
		onTick:   onTick,
		latest:   tracker.Snapshot(),
	}
}

// Run reports until ctx is done or the tracker is finished.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := r.Update()
			r.log(snap)

			if r.onTick != nil {
				r.onTick(snap)
			}

			if r.tracker.Finished() {
				return
			}
		}
	}
}

// Update takes a fresh snapshot and stores it as the latest one.
func (r *Reporter) Update() Snapshot {
	snap := r.tracker.Snapshot()
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = append(r.history, sample{t: now, bytes: snap.Downloaded})

	cutoff := now.Add(-smoothingWindow)
	for len(r.history) > 1 && r.history[0].t.Before(cutoff) {
		r.history = r.history[1:]
	}

	if len(r.history) >= 2 {
		oldest := r.history[0]
		if elapsed := now.Sub(oldest.t).Seconds(); elapsed > 0 {
			snap.SpeedBPS = int64(float64(snap.Downloaded-oldest.bytes) / elapsed)
		}
	}

	if snap.SpeedBPS > 0 && snap.TotalSize > 0 {
		if remaining := snap.TotalSize - snap.Downloaded; remaining > 0 {
			snap.ETA = time.Duration(float64(remaining) / float64(snap.SpeedBPS) * float64(time.Second))
		}
	}

	r.latest = snap

	return snap
}

// Latest returns the most recent snapshot.
func (r *Reporter) Latest() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.latest
}

func (r *Reporter) log(s Snapshot) {
	logger.Infof("Progress: %s", Describe(s))

	if logger.DebugEnabled && len(s.Chunks) > 1 {
		var b strings.Builder
		for i, c := range s.Chunks {
			if i > 0 {
				b.WriteString(" ")
			}

			b.WriteString(chunkLabel(c))
		}

		logger.Debugf("Chunks: %s", b.String())
	}
}

func chunkLabel(c ChunkProgress) string {
	return fmt.Sprintf("#%d:%.0f%%", c.ID, c.Percentage)
}
