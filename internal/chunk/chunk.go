package chunk

import (
	"fmt"

	"github.com/NamanBalaji/chunkdl/internal/logger"
	"github.com/NamanBalaji/chunkdl/internal/status"
)

// ByteRange is the closed interval [Start, End] of resource bytes.
type ByteRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Size returns the number of bytes covered by the range.
func (r ByteRange) Size() int64 {
	if r.End < r.Start {
		return 0
	}

	return r.End - r.Start + 1
}

func (r ByteRange) String() string {
	return fmt.Sprintf("[%d,%d]", r.Start, r.End)
}

// Partition splits [0, totalSize-1] into at most threads contiguous ranges of
// ceil(totalSize/threads) bytes, the last one clipped. When the computed size
// is below two bytes a single range covering the whole resource is returned.
func Partition(totalSize int64, threads int) ([]ByteRange, error) {
	if totalSize <= 0 {
		return nil, fmt.Errorf("%w: total size %d", ErrInvalidPartition, totalSize)
	}

	if threads < 1 {
		return nil, fmt.Errorf("%w: thread count %d", ErrInvalidPartition, threads)
	}

	chunkSize := (totalSize + int64(threads) - 1) / int64(threads)
	if chunkSize < 2 {
		logger.Warnf("Filesize %d too short for %d threads, using 1 thread", totalSize, threads)
		return []ByteRange{{Start: 0, End: totalSize - 1}}, nil
	}

	ranges := make([]ByteRange, 0, threads)
	for start := int64(0); start < totalSize; start += chunkSize {
		end := start + chunkSize - 1
		if end >= totalSize {
			end = totalSize - 1
		}

		ranges = append(ranges, ByteRange{Start: start, End: end})
	}

	logger.Debugf("Partitioned %d bytes into %d ranges of ~%d bytes", totalSize, len(ranges), chunkSize)

	return ranges, nil
}

// Job is one unit of work on the queue. Span is the range assigned at
// partition time and never changes. Range is what is still to be fetched; its
// start only moves forward when a job is resumed.
type Job struct {
	ID       int           `json:"id"`
	Span     ByteRange     `json:"span"`
	Range    ByteRange     `json:"range"`
	State    status.Status `json:"state"`
	Attempts int           `json:"attempts"`
}

// NewJobs creates one Fresh job per range, numbered from zero.
func NewJobs(ranges []ByteRange) []Job {
	jobs := make([]Job, len(ranges))
	for i, r := range ranges {
		jobs[i] = Job{ID: i, Span: r, Range: r, State: status.Fresh}
	}

	return jobs
}

// Resume returns a copy of the job marked Resuming whose range starts after
// the written bytes already persisted for it.
func (j Job) Resume(written int64) Job {
	if written < 0 {
		written = 0
	}

	if written > j.Span.Size() {
		written = j.Span.Size()
	}

	j.State = status.Resuming
	j.Range = ByteRange{Start: j.Span.Start + written, End: j.Span.End}

	return j
}

// Remaining returns the number of bytes the job still has to fetch.
func (j Job) Remaining() int64 {
	return j.Range.Size()
}

func (j Job) String() string {
	return fmt.Sprintf("chunk %d %s (%s, attempt %d)", j.ID, j.Range, status.String(j.State), j.Attempts)
}
