package fetch

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/NamanBalaji/chunkdl/internal/chunk"
	"github.com/NamanBalaji/chunkdl/internal/errors"
	"github.com/NamanBalaji/chunkdl/internal/logger"
	"github.com/NamanBalaji/chunkdl/internal/metrics"
	"github.com/NamanBalaji/chunkdl/internal/progress"
	"github.com/NamanBalaji/chunkdl/internal/queue"
	"github.com/NamanBalaji/chunkdl/internal/status"
	httpPkg "github.com/NamanBalaji/chunkdl/pkg/http"
)

const blockSize = 32 * 1024

// Recorder receives every job state change a worker makes: a job re-pushed
// as Resuming, retired as Done or Abandoned, or left Resuming by
// cancellation. err is set for Abandoned jobs.
type Recorder interface {
	Record(job chunk.Job, err error)
}

// Config holds the per-session settings shared by all workers.
type Config struct {
	URI         string
	Headers     map[string]string
	MaxAttempts int
	RetryDelay  time.Duration
}

// Worker pops chunk jobs, fetches their byte range into the chunk store and
// acknowledges them. Failed transfers are re-pushed as Resuming until the
// attempt bound is reached.
type Worker struct {
	id       int
	cfg      Config
	client   *httpPkg.Client
	queue    *queue.Queue[chunk.Job]
	store    *chunk.Store
	tracker  *progress.Tracker
	metrics  *metrics.Metrics
	recorder Recorder
	log      zerolog.Logger
}

func NewWorker(
	id int,
	cfg Config,
	client *httpPkg.Client,
	q *queue.Queue[chunk.Job],
	store *chunk.Store,
	tracker *progress.Tracker,
	m *metrics.Metrics,
	recorder Recorder,
) *Worker {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	return &Worker{
		id:       id,
		cfg:      cfg,
		client:   client,
		queue:    q,
		store:    store,
		tracker:  tracker,
		metrics:  m,
		recorder: recorder,
		log:      logger.With("fetch").With().Int("worker", id).Logger(),
	}
}

// Run processes jobs until the queue is closed or ctx is done. Transfer
// errors never escape Run.
func (w *Worker) Run(ctx context.Context) error {
	for {
		job, err := w.queue.Pop(ctx)
		if err != nil {
			if stderrors.Is(err, queue.ErrQueueClosed) {
				return nil
			}

			return err
		}

		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job chunk.Job) {
	defer w.ack()

	w.metrics.ActiveWorkers.Inc()
	defer w.metrics.ActiveWorkers.Dec()

	if job.State == status.Resuming && job.Attempts > 0 {
		delay := calculateBackoff(job.Attempts-1, w.cfg.RetryDelay)
		w.log.Debug().Int("chunk", job.ID).Dur("backoff", delay).Msg("waiting before resuming chunk")

		if err := sleep(ctx, delay); err != nil {
			w.recorder.Record(job, nil)
			return
		}
	}

	job.Attempts++

	job, appendMode, err := w.prepare(job)
	if err != nil {
		w.fail(ctx, job, err)
		return
	}

	started := time.Now()
	err = w.fetch(ctx, job, appendMode)
	w.tracker.WorkerBusy(w.id, time.Since(started))

	if err != nil {
		w.fail(ctx, job, err)
		return
	}

	job.State = status.Done
	w.tracker.WorkerChunkDone(w.id)
	w.metrics.ChunkResults.WithLabelValues(metrics.ResultDone).Inc()
	w.recorder.Record(job, nil)

	w.log.Debug().Int("chunk", job.ID).Int("attempt", job.Attempts).Msg("chunk completed")
}

// prepare settles the range to fetch and the write mode. A Resuming job with
// a chunk file on disk continues after the persisted bytes in append mode;
// anything else starts over from the original span.
func (w *Worker) prepare(job chunk.Job) (chunk.Job, bool, error) {
	if job.State != status.Resuming {
		job.Range = job.Span
		w.tracker.Set(job.ID, 0)

		return job, false, nil
	}

	// a missing chunk file reports zero bytes
	written, err := w.store.Size(job.ID)
	if err != nil {
		return job, false, errors.NewChunkTransferInterrupted(
			fmt.Errorf("%w: %w", httpPkg.ErrIOProblem, err), w.cfg.URI, job.ID, job.Span.Start, true)
	}

	if written == 0 {
		job.Range = job.Span
		w.tracker.Set(job.ID, 0)

		return job, false, nil
	}

	if written > job.Span.Size() {
		w.log.Warn().Int("chunk", job.ID).Int64("size", written).Msg("chunk file larger than its range, restarting")

		job.Range = job.Span
		w.tracker.Set(job.ID, 0)

		return job, false, nil
	}

	job = job.Resume(written)
	w.tracker.Set(job.ID, written)

	w.log.Debug().Int("chunk", job.ID).Int64("written", written).Str("range", job.Range.String()).Msg("resuming chunk")

	return job, true, nil
}

func (w *Worker) fetch(ctx context.Context, job chunk.Job, appendMode bool) error {
	if job.Remaining() == 0 {
		return nil
	}

	file, err := w.store.Open(job.ID, appendMode)
	if err != nil {
		return errors.NewChunkTransferInterrupted(
			fmt.Errorf("%w: %w", httpPkg.ErrIOProblem, err), w.cfg.URI, job.ID, job.Range.Start, true)
	}

	defer func() {
		if err := file.Close(); err != nil {
			logger.Errorf("Failed to close chunk file %s: %v", w.store.Path(job.ID), err)
		}
	}()

	resp, err := w.client.Range(ctx, w.cfg.URI, job.Range.Start, job.Range.End, w.cfg.Headers)
	if err != nil {
		return errors.NewChunkTransferInterrupted(err, w.cfg.URI, job.ID, job.Range.Start, httpPkg.IsRetryable(err))
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Debugf("Failed to close response body for chunk %d: %v", job.ID, err)
		}
	}()

	offset := job.Range.Start
	remaining := job.Remaining()

	n, err := copyBlocks(ctx, file, resp.Body, remaining, func(n int64) {
		w.tracker.Add(job.ID, n)
		w.tracker.WorkerTransferred(w.id, n)
		w.metrics.BytesTotal.Add(float64(n))
	})
	offset += n

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return errors.NewChunkTransferInterrupted(err, w.cfg.URI, job.ID, offset, httpPkg.IsRetryable(err))
	}

	return nil
}

// fail decides what happens to a job whose attempt did not complete.
func (w *Worker) fail(ctx context.Context, job chunk.Job, err error) {
	job.State = status.Resuming

	if ctx.Err() != nil {
		// chunk file stays on disk for a later run
		w.recorder.Record(job, nil)
		return
	}

	event := w.log.Warn().Int("chunk", job.ID).Int("attempt", job.Attempts).Err(err)

	if !errors.IsRetryable(err) || job.Attempts >= w.cfg.MaxAttempts {
		event.Msg("abandoning chunk")

		job.State = status.Abandoned
		w.metrics.ChunkResults.WithLabelValues(metrics.ResultAbandoned).Inc()
		w.recorder.Record(job, w.abandoned(err, job))

		return
	}

	event.Msg("chunk transfer interrupted, re-queueing")

	// Record before the push since another worker may retire the job as soon
	// as it is queued. The push must precede the deferred ack.
	w.recorder.Record(job, nil)

	if pushErr := w.queue.Push(job); pushErr != nil {
		job.State = status.Abandoned
		w.recorder.Record(job, w.abandoned(err, job))

		return
	}

	w.metrics.ChunkResults.WithLabelValues(metrics.ResultRetried).Inc()
}

func (w *Worker) ack() {
	if err := w.queue.Done(); err != nil {
		logger.Errorf("Worker %d failed to acknowledge job: %v", w.id, err)
	}

	w.metrics.QueueDepth.Set(float64(w.queue.Pending()))
	w.metrics.QueueWaiting.Set(float64(w.queue.Len()))
}

// abandoned builds the terminal error for job from the last attempt's error.
func (w *Worker) abandoned(err error, job chunk.Job) error {
	cause, offset := err, job.Range.Start

	var de *errors.DownloadError
	if errors.As(err, &de) && de.ChunkID >= 0 {
		cause, offset = de.Err, de.Offset
	}

	return errors.WithDetails(
		errors.NewChunkAbandoned(cause, w.cfg.URI, job.ID, offset, job.Attempts),
		map[string]interface{}{"worker": w.id, "range": job.Span.String()},
	)
}

// copyBlocks streams at most limit bytes from src to dst in fixed size
// blocks, checking ctx between blocks. onWrite is called after every
// persisted block. A body ending before limit bytes is an unexpected EOF.
func copyBlocks(ctx context.Context, dst io.Writer, src io.Reader, limit int64, onWrite func(int64)) (int64, error) {
	buf := make([]byte, blockSize)

	var total int64

	for limit < 0 || total < limit {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if limit >= 0 && int64(n) > limit-total {
				n = int(limit - total)
			}

			if _, err := dst.Write(buf[:n]); err != nil {
				return total, fmt.Errorf("%w: %w", httpPkg.ErrIOProblem, err)
			}

			total += int64(n)
			onWrite(int64(n))
		}

		if readErr != nil {
			if stderrors.Is(readErr, io.EOF) {
				if limit < 0 || total == limit {
					return total, nil
				}

				return total, fmt.Errorf("%w: body ended after %d of %d bytes", httpPkg.ErrUnexpectedEOF, total, limit)
			}

			return total, fmt.Errorf("%w: %w", httpPkg.ClassifyError(readErr), readErr)
		}
	}

	return total, nil
}
