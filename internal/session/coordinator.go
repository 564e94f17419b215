package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/NamanBalaji/chunkdl/internal/chunk"
	"github.com/NamanBalaji/chunkdl/internal/config"
	"github.com/NamanBalaji/chunkdl/internal/errors"
	"github.com/NamanBalaji/chunkdl/internal/fetch"
	"github.com/NamanBalaji/chunkdl/internal/integrity"
	"github.com/NamanBalaji/chunkdl/internal/logger"
	"github.com/NamanBalaji/chunkdl/internal/metrics"
	"github.com/NamanBalaji/chunkdl/internal/probe"
	"github.com/NamanBalaji/chunkdl/internal/progress"
	"github.com/NamanBalaji/chunkdl/internal/queue"
	"github.com/NamanBalaji/chunkdl/internal/repository"
	"github.com/NamanBalaji/chunkdl/internal/status"
	httpPkg "github.com/NamanBalaji/chunkdl/pkg/http"
)

// Options are the settings of a single download run.
type Options struct {
	URI              string
	DownloadDir      string
	Threads          int
	MaxAttempts      int
	RetryDelay       time.Duration
	ProgressInterval time.Duration
	FailOnMismatch   bool
	Overwrite        bool
	Headers          map[string]string
}

// OptionsFromConfig builds the run options for uri from a validated config.
func OptionsFromConfig(cfg *config.Config, uri string) Options {
	return Options{
		URI:              uri,
		DownloadDir:      cfg.DownloadDir,
		Threads:          cfg.Threads,
		MaxAttempts:      cfg.MaxAttempts,
		RetryDelay:       cfg.RetryDelay,
		ProgressInterval: cfg.ProgressInterval,
		FailOnMismatch:   cfg.FailOnMismatch,
		Overwrite:        cfg.Overwrite,
		Headers:          cfg.Headers,
	}
}

// Result summarises a finished download.
type Result struct {
	Path      string
	Size      int64
	Elapsed   time.Duration
	Chunks    int
	Resumed   bool
	Integrity integrity.Result
	// Mismatch is set when verification failed and the policy is warn-only.
	Mismatch error
	Workers  []progress.WorkerStats
}

// IntegritySummary renders the verification outcome for display.
func (r *Result) IntegritySummary() string {
	switch {
	case r.Integrity.Algorithm == integrity.None:
		return ""
	case r.Mismatch != nil:
		return fmt.Sprintf("%s mismatch (expected %s, computed %s)", r.Integrity.Algorithm, r.Integrity.Expected, r.Integrity.Computed)
	default:
		return fmt.Sprintf("%s verified", r.Integrity.Algorithm)
	}
}

// Coordinator runs a download session from probe to verified output.
type Coordinator struct {
	opts      Options
	client    *httpPkg.Client
	prober    *probe.Prober
	repo      repository.Repository
	metrics   *metrics.Metrics
	freeSpace func(dir string) (uint64, error)
	log       zerolog.Logger

	mu         sync.RWMutex
	reporter   *progress.Reporter
	onProgress func(progress.Snapshot)
}

// NewCoordinator creates a coordinator. repo may be nil, in which case
// sessions are not persisted across runs.
func NewCoordinator(opts Options, client *httpPkg.Client, repo repository.Repository, m *metrics.Metrics) *Coordinator {
	if opts.Threads < 1 {
		opts.Threads = 1
	}

	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = time.Second
	}

	if m == nil {
		m = metrics.New()
	}

	return &Coordinator{
		opts:      opts,
		client:    client,
		prober:    probe.New(client, opts.Headers),
		repo:      repo,
		metrics:   m,
		freeSpace: freeSpace,
		log:       logger.With("session"),
	}
}

// OnProgress registers fn to receive every periodic progress snapshot.
func (c *Coordinator) OnProgress(fn func(progress.Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onProgress = fn
}

// Latest returns the most recent progress snapshot of the running session.
func (c *Coordinator) Latest() progress.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.reporter == nil {
		return progress.Snapshot{TotalSize: probe.UnknownSize}
	}

	return c.reporter.Latest()
}

// Run downloads the resource. Resource and directory errors abort before any
// transfer. On cancellation chunk files and the session record stay in place.
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	started := time.Now()

	if err := probe.ValidateURI(c.opts.URI); err != nil {
		return nil, err
	}

	probeStart := time.Now()
	desc, err := c.prober.Probe(ctx, c.opts.URI)
	c.metrics.ProbeDuration.Observe(time.Since(probeStart).Seconds())

	if err != nil {
		return nil, err
	}

	c.log.Info().
		Str("name", desc.SuggestedName).
		Str("size", progress.FormatSize(desc.TotalSize)).
		Bool("ranges", desc.SupportsRanges).
		Str("integrity", string(desc.Integrity.Algorithm)).
		Msg("resource probed")

	dir, err := c.checkDirectory()
	if err != nil {
		return nil, err
	}

	output := filepath.Join(dir, desc.SuggestedName)
	if err := c.checkOutput(dir, output); err != nil {
		return nil, err
	}

	if desc.SizeKnown() {
		if err := c.checkSpace(dir, uint64(desc.TotalSize)); err != nil {
			return nil, err
		}
	}

	var res *Result

	switch {
	case desc.SizeKnown() && desc.TotalSize == 0:
		res, err = c.runEmpty(desc, output)
	case !desc.Resumable():
		res, err = c.runStream(ctx, desc, output)
	default:
		res, err = c.runChunked(ctx, desc, dir, output)
	}

	if err != nil {
		return nil, err
	}

	res.Elapsed = time.Since(started)
	c.metrics.DownloadDuration.Observe(res.Elapsed.Seconds())

	return res, nil
}

func (c *Coordinator) checkDirectory() (string, error) {
	dir := c.opts.DownloadDir
	if dir == "" {
		dir = "."
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.NewInvalidDownloadDirectory(err, dir)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", errors.NewInvalidDownloadDirectory(err, abs)
	}

	if !info.IsDir() {
		return "", errors.NewInvalidDownloadDirectory(ErrNotDirectory, abs)
	}

	return abs, nil
}

func (c *Coordinator) checkOutput(dir, output string) error {
	if _, err := os.Stat(output); err != nil {
		return nil
	}

	if !c.opts.Overwrite {
		return errors.NewInvalidDownloadDirectory(fmt.Errorf("%w: %s", ErrOutputExists, output), dir)
	}

	c.log.Warn().Str("path", output).Msg("overwriting existing file")

	return nil
}

func (c *Coordinator) checkSpace(dir string, required uint64) error {
	available, err := c.freeSpace(dir)
	if err != nil {
		c.log.Warn().Err(err).Str("dir", dir).Msg("skipping free space check")
		return nil
	}

	if available < required {
		return errors.NewInsufficientStorage(dir, required, available)
	}

	return nil
}

func (c *Coordinator) runEmpty(desc probe.ResourceDescriptor, output string) (*Result, error) {
	f, err := os.Create(output)
	if err != nil {
		return nil, errors.NewInvalidDownloadDirectory(err, filepath.Dir(output))
	}

	if err := f.Close(); err != nil {
		return nil, err
	}

	res := &Result{Path: output}

	return res, c.verify(desc, res)
}

// runStream fetches the whole resource with one request straight into
// output. There are no chunk files, so nothing survives a failure.
func (c *Coordinator) runStream(ctx context.Context, desc probe.ResourceDescriptor, output string) (*Result, error) {
	c.log.Info().Msg("server does not support byte ranges or size is unknown, using a single stream")

	tracker := progress.NewTracker(desc.TotalSize, []int64{desc.TotalSize}, 1)
	stopReporter := c.startReporter(ctx, tracker)

	n, err := fetch.Stream(ctx, c.fetchConfig(), c.client, output, desc.TotalSize, tracker, c.metrics)

	stopReporter()

	if err != nil {
		if rmErr := os.Remove(output); rmErr != nil && !os.IsNotExist(rmErr) {
			c.log.Warn().Err(rmErr).Str("path", output).Msg("failed to remove partial output")
		}

		if ctx.Err() != nil {
			return nil, errors.NewContextError(ctx.Err(), desc.URI)
		}

		return nil, err
	}

	res := &Result{Path: output, Size: n, Chunks: 1, Workers: tracker.Workers()}

	return res, c.verify(desc, res)
}

func (c *Coordinator) runChunked(ctx context.Context, desc probe.ResourceDescriptor, dir, output string) (*Result, error) {
	store := chunk.NewStore(dir, desc.SuggestedName)

	id, jobs, resumed, err := c.plan(desc, output, store)
	if err != nil {
		return nil, err
	}

	sess := newSession(id, desc, output, store, jobs, c.repo)
	if err := sess.Persist(); err != nil {
		c.log.Warn().Err(err).Msg("failed to persist session")
	}

	sizes := make([]int64, len(jobs))
	for i, j := range jobs {
		sizes[i] = j.Span.Size()
	}

	tracker := progress.NewTracker(desc.TotalSize, sizes, len(jobs))

	for _, j := range jobs {
		switch {
		case j.State == status.Done:
			tracker.Set(j.ID, j.Span.Size())
		case j.State == status.Resuming:
			if size, err := store.Size(j.ID); err == nil {
				tracker.Set(j.ID, min(size, j.Span.Size()))
			}
		}
	}

	pending := sess.Pending()
	if len(pending) > 0 {
		if err := c.fetchAll(ctx, sess, tracker, pending); err != nil {
			return nil, err
		}
	}

	if failures := sess.Failures(); len(failures) > 0 {
		return nil, fmt.Errorf("%w: %d of %d chunks abandoned, chunk files kept for resume: %w",
			ErrPartialDownload, len(failures), len(jobs), errors.Join(failures...))
	}

	n, err := chunk.Merge(store, sess.Jobs(), output)
	if err != nil {
		return nil, err
	}

	if removed, err := store.RemoveAll(); err != nil {
		c.log.Warn().Err(err).Msg("failed to remove chunk files")
	} else {
		c.log.Debug().Int("files", removed).Msg("chunk files removed")
	}

	if err := sess.Forget(); err != nil {
		c.log.Warn().Err(err).Msg("failed to delete session record")
	}

	res := &Result{
		Path:    output,
		Size:    n,
		Chunks:  len(jobs),
		Resumed: resumed,
		Workers: tracker.Workers(),
	}

	return res, c.verify(desc, res)
}

// fetchAll seeds the queue with pending and runs one worker per job until
// every job is acknowledged.
func (c *Coordinator) fetchAll(ctx context.Context, sess *DownloadSession, tracker *progress.Tracker, pending []chunk.Job) error {
	q := queue.New[chunk.Job]()

	for _, j := range pending {
		if err := q.Push(j); err != nil {
			return err
		}
	}

	c.metrics.QueueDepth.Set(float64(q.Pending()))
	c.metrics.QueueWaiting.Set(float64(q.Len()))

	cfg := c.fetchConfig()
	workers := len(pending)

	c.log.Info().Int("chunks", len(pending)).Int("workers", workers).Msg("starting workers")

	g, gctx := errgroup.WithContext(ctx)
	for i := range workers {
		w := fetch.NewWorker(i, cfg, c.client, q, sess.Store, tracker, c.metrics, sess)
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	stopReporter := c.startReporter(ctx, tracker)

	joinErr := q.Join(ctx)
	q.Close()
	waitErr := g.Wait()

	stopReporter()

	if joinErr != nil || waitErr != nil {
		if err := sess.Persist(); err != nil {
			c.log.Warn().Err(err).Msg("failed to persist session")
		}

		cause := joinErr
		if cause == nil {
			cause = waitErr
		}

		c.log.Warn().
			Int64("downloaded", tracker.Downloaded()).
			Str("path", sess.OutputPath).
			Msg("download interrupted, chunk files kept for resume")

		return errors.NewContextError(cause, sess.Resource.URI)
	}

	return nil
}

// plan returns the jobs for this run. A stored session for the same resource
// is resumed; otherwise the resource is partitioned afresh and stray chunk
// files are cleared.
func (c *Coordinator) plan(desc probe.ResourceDescriptor, output string, store *chunk.Store) (uuid.UUID, []chunk.Job, bool, error) {
	if c.repo != nil {
		rec, err := c.repo.Find(output)

		switch {
		case err == nil && rec.Matches(desc.URI, desc.TotalSize):
			jobs := restore(rec.Jobs, store)
			c.log.Info().Str("session", rec.ID.String()).Int("chunks", len(jobs)).Msg("resuming previous session")

			return rec.ID, jobs, true, nil
		case err == nil:
			c.log.Info().Str("path", output).Msg("stored session is for a different resource, starting over")
		case !errors.Is(err, repository.ErrSessionNotFound):
			c.log.Warn().Err(err).Msg("failed to read stored session")
		}
	}

	ranges, err := chunk.Partition(desc.TotalSize, c.opts.Threads)
	if err != nil {
		return uuid.Nil, nil, false, err
	}

	if removed, err := store.RemoveAll(); err == nil && removed > 0 {
		c.log.Info().Int("files", removed).Msg("removed stale chunk files")
	}

	return uuid.New(), chunk.NewJobs(ranges), false, nil
}

// restore prepares stored jobs for another run. Done jobs whose chunk file is
// complete stay Done; jobs with a chunk file on disk resume from it; the rest
// start fresh. Attempt counters start over.
func restore(stored []chunk.Job, store *chunk.Store) []chunk.Job {
	jobs := make([]chunk.Job, len(stored))

	for i, j := range stored {
		j.Attempts = 0
		j.Range = j.Span

		size, err := store.Size(j.ID)

		switch {
		case err == nil && j.State == status.Done && size == j.Span.Size():
		case err == nil && store.Exists(j.ID):
			j.State = status.Resuming
		default:
			j.State = status.Fresh
		}

		jobs[i] = j
	}

	return jobs
}

func (c *Coordinator) verify(desc probe.ResourceDescriptor, res *Result) error {
	if !desc.Integrity.Present() {
		c.metrics.IntegrityChecks.WithLabelValues(metrics.IntegritySkipped).Inc()
		return nil
	}

	r, err := integrity.Verify(res.Path, desc.Integrity)
	res.Integrity = r

	switch {
	case err == nil:
		c.metrics.IntegrityChecks.WithLabelValues(metrics.IntegrityPassed).Inc()
		c.log.Info().Str("algorithm", string(r.Algorithm)).Msg("integrity check passed")

		return nil
	case !errors.Is(err, errors.ErrIntegrityMismatch):
		return err
	}

	c.metrics.IntegrityChecks.WithLabelValues(metrics.IntegrityFailed).Inc()

	if c.opts.FailOnMismatch {
		if rmErr := os.Remove(res.Path); rmErr != nil {
			c.log.Warn().Err(rmErr).Str("path", res.Path).Msg("failed to remove corrupt output")
		}

		return err
	}

	c.log.Warn().Str("expected", r.Expected).Str("computed", r.Computed).Msg("integrity mismatch, keeping file")
	res.Mismatch = err

	return nil
}

func (c *Coordinator) startReporter(ctx context.Context, tracker *progress.Tracker) func() {
	c.mu.Lock()
	r := progress.NewReporter(tracker, c.opts.ProgressInterval, c.onProgress)
	c.reporter = r
	c.mu.Unlock()

	rctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		r.Run(rctx)
	}()

	return func() {
		cancel()
		<-done
		r.Update()
	}
}

func (c *Coordinator) fetchConfig() fetch.Config {
	return fetch.Config{
		URI:         c.opts.URI,
		Headers:     c.opts.Headers,
		MaxAttempts: c.opts.MaxAttempts,
		RetryDelay:  c.opts.RetryDelay,
	}
}
