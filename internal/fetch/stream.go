package fetch

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/NamanBalaji/chunkdl/internal/errors"
	"github.com/NamanBalaji/chunkdl/internal/logger"
	"github.com/NamanBalaji/chunkdl/internal/metrics"
	"github.com/NamanBalaji/chunkdl/internal/progress"
	httpPkg "github.com/NamanBalaji/chunkdl/pkg/http"
)

// Stream fetches the whole resource with a single unranged GET directly into
// path. size is the expected length, negative when unknown. The transfer
// cannot resume, so every retry truncates path and starts over.
func Stream(
	ctx context.Context,
	cfg Config,
	client *httpPkg.Client,
	path string,
	size int64,
	tracker *progress.Tracker,
	m *metrics.Metrics,
) (int64, error) {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	log := logger.With("fetch")

	var (
		lastErr  error
		attempts int
	)

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		attempts = attempt

		if attempt > 1 {
			if err := sleep(ctx, calculateBackoff(attempt-2, cfg.RetryDelay)); err != nil {
				return 0, err
			}
		}

		started := time.Now()
		n, err := streamOnce(ctx, cfg, client, path, size, tracker, m)
		tracker.WorkerBusy(0, time.Since(started))

		if err == nil {
			tracker.WorkerChunkDone(0)
			m.ChunkResults.WithLabelValues(metrics.ResultDone).Inc()

			return n, nil
		}

		if ctx.Err() != nil {
			return n, ctx.Err()
		}

		lastErr = err
		log.Warn().Int("attempt", attempt).Int64("offset", n).Err(err).Msg("single stream transfer interrupted")

		if !httpPkg.IsRetryable(err) {
			break
		}

		m.ChunkResults.WithLabelValues(metrics.ResultRetried).Inc()
	}

	m.ChunkResults.WithLabelValues(metrics.ResultAbandoned).Inc()

	return 0, errors.NewChunkAbandoned(lastErr, cfg.URI, 0, tracker.Written(0), attempts)
}

func streamOnce(
	ctx context.Context,
	cfg Config,
	client *httpPkg.Client,
	path string,
	size int64,
	tracker *progress.Tracker,
	m *metrics.Metrics,
) (int64, error) {
	tracker.Set(0, 0)

	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", httpPkg.ErrIOProblem, err)
	}

	defer func() {
		if err := file.Close(); err != nil {
			logger.Errorf("Failed to close output file %s: %v", path, err)
		}
	}()

	resp, err := client.Get(ctx, cfg.URI, cfg.Headers)
	if err != nil {
		return 0, err
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Debugf("Failed to close response body for %s: %v", cfg.URI, err)
		}
	}()

	logger.Debugf("Streaming %s into %s (status: %d, length: %d)", cfg.URI, path, resp.StatusCode, resp.ContentLength)

	return copyBlocks(ctx, file, resp.Body, size, func(n int64) {
		tracker.Add(0, n)
		tracker.WorkerTransferred(0, n)
		m.BytesTotal.Add(float64(n))
	})
}
