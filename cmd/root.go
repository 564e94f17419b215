package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/NamanBalaji/chunkdl/internal/config"
	"github.com/NamanBalaji/chunkdl/internal/errors"
	"github.com/NamanBalaji/chunkdl/internal/logger"
	"github.com/NamanBalaji/chunkdl/internal/metrics"
	"github.com/NamanBalaji/chunkdl/internal/monitor"
	"github.com/NamanBalaji/chunkdl/internal/output"
	"github.com/NamanBalaji/chunkdl/internal/repository"
	"github.com/NamanBalaji/chunkdl/internal/session"
	httpPkg "github.com/NamanBalaji/chunkdl/pkg/http"
)

var Version = "dev"

const shutdownTimeout = 5 * time.Second

type rootFlags struct {
	configPath       string
	envFile          string
	downloadDir      string
	threads          int
	checkCertificate bool
	debug            bool
	headers          []string
	maxAttempts      int
	retryDelay       time.Duration
	timeout          time.Duration
	progressInterval time.Duration
	failOnMismatch   bool
	overwrite        bool
	metricsAddr      string
	stateDB          string
	logFile          string
	userAgent        string
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&rootFlags{})
}

func newRootCmdWith(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chunkdl [flags] URI",
		Short:         "Multithreaded resumable HTTP downloader",
		Version:       Version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			return download(cmd, cfg, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.downloadDir, "download-dir", "d", ".", "Destination directory")
	f.IntVarP(&flags.threads, "threads", "t", 4, "Number of concurrent range requests")
	f.BoolVar(&flags.checkCertificate, "check-certificate", true, "Verify TLS certificates")
	f.StringArrayVarP(&flags.headers, "header", "H", nil, "Custom header ('Key: Value'); can be repeated")
	f.IntVar(&flags.maxAttempts, "max-attempts", 5, "Attempts per chunk before it is abandoned")
	f.DurationVar(&flags.retryDelay, "retry-delay", time.Second, "Base delay before retrying a chunk")
	f.DurationVar(&flags.timeout, "timeout", 30*time.Second, "Connect and response header timeout")
	f.DurationVar(&flags.progressInterval, "progress-interval", 5*time.Second, "Interval between progress reports")
	f.BoolVar(&flags.failOnMismatch, "fail-on-mismatch", false, "Delete the file and fail when the checksum does not match")
	f.BoolVar(&flags.overwrite, "overwrite", false, "Replace an existing output file")
	f.StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve /metrics, /progress and /healthz on this address")
	f.StringVar(&flags.userAgent, "user-agent", "", "User-Agent header")

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Config file (default "+config.DefaultPath()+")")
	pf.StringVar(&flags.envFile, "env-file", ".env", "Optional .env file, ignored when missing")
	pf.StringVar(&flags.stateDB, "state-db", "", "Session database used to resume interrupted downloads")
	pf.BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	pf.StringVar(&flags.logFile, "log-file", "", "Also write logs to this file")

	cmd.AddCommand(newCleanCmd(flags), newSessionsCmd(flags))

	return cmd
}

// Exit codes by failure class.
const (
	exitFailure     = 1
	exitFatal       = 2
	exitPartial     = 3
	exitMismatch    = 4
	exitInterrupted = 130
)

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		reportError(output.NewPrinter(os.Stderr), err)
		os.Exit(exitCode(err))
	}
}

func reportError(printer *output.Printer, err error) {
	printer.Error("%v", err)

	if code, ok := errors.GetStatusCode(err); ok {
		printer.Info("Server responded with %d %s", code, http.StatusText(code))
	}

	if errors.Is(err, session.ErrPartialDownload) {
		printer.Info("Chunk files were kept; run the same command again to resume")
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	case errors.IsFatal(err):
		return exitFatal
	case errors.Is(err, session.ErrPartialDownload):
		return exitPartial
	}

	if kind, ok := errors.GetKind(err); ok && kind == errors.KindIntegrityMismatch {
		return exitMismatch
	}

	return exitFailure
}

// loadConfig layers explicitly set flags over the file and environment
// config, then validates the result.
func loadConfig(cmd *cobra.Command, flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath, flags.envFile)
	if err != nil {
		return nil, err
	}

	applyFlags(cmd, cfg, flags)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config, flags *rootFlags) {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}

	if changed("download-dir") {
		cfg.DownloadDir = flags.downloadDir
	}

	if changed("threads") {
		cfg.Threads = flags.threads
	}

	if changed("check-certificate") {
		cfg.Insecure = !flags.checkCertificate
	}

	if changed("debug") {
		cfg.Debug = flags.debug
	}

	if changed("header") {
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string)
		}

		for k, v := range parseHeaders(flags.headers) {
			cfg.Headers[k] = v
		}
	}

	if changed("max-attempts") {
		cfg.MaxAttempts = flags.maxAttempts
	}

	if changed("retry-delay") {
		cfg.RetryDelay = flags.retryDelay
	}

	if changed("timeout") {
		cfg.Timeout = flags.timeout
	}

	if changed("progress-interval") {
		cfg.ProgressInterval = flags.progressInterval
	}

	if changed("fail-on-mismatch") {
		cfg.FailOnMismatch = flags.failOnMismatch
	}

	if changed("overwrite") {
		cfg.Overwrite = flags.overwrite
	}

	if changed("metrics-addr") {
		cfg.MetricsAddr = flags.metricsAddr
	}

	if changed("state-db") {
		cfg.StateDB = flags.stateDB
	}

	if changed("log-file") {
		cfg.LogFile = flags.logFile
	}

	if changed("user-agent") {
		cfg.UserAgent = flags.userAgent
	}
}

// parseHeaders turns "Key: Value" arguments into a map. Malformed entries
// are skipped.
func parseHeaders(headers []string) map[string]string {
	result := make(map[string]string)

	for _, header := range headers {
		key, value, ok := strings.Cut(header, ":")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}

		result[key] = strings.TrimSpace(value)
	}

	return result
}

func download(cmd *cobra.Command, cfg *config.Config, uri string) error {
	if err := logger.InitLogging(cfg.Debug, cfg.LogFile); err != nil {
		return err
	}
	defer logger.Close()

	var repo repository.Repository

	if r, err := repository.NewBboltRepository(cfg.StateDB); err != nil {
		logger.Warnf("Session database unavailable, resume across runs disabled: %v", err)
	} else {
		repo = r
		defer r.Close()
	}

	client := httpPkg.NewClient(
		httpPkg.WithTimeout(cfg.Timeout),
		httpPkg.WithCheckCertificate(cfg.CheckCertificate()),
		httpPkg.WithUserAgent(cfg.UserAgent),
		httpPkg.WithHeaders(cfg.Headers),
	)

	m := metrics.New()
	coord := session.NewCoordinator(session.OptionsFromConfig(cfg, uri), client, repo, m)

	live := output.NewLiveLine(os.Stdout)
	coord.OnProgress(live.Update)

	if cfg.MetricsAddr != "" {
		srv := monitor.NewServer(cfg.MetricsAddr, monitor.NewRouter(coord, m.Handler()))
		if err := srv.Start(); err != nil {
			return fmt.Errorf("failed to start monitoring server: %w", err)
		}

		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Warnf("Monitoring server shutdown: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := coord.Run(ctx)
	live.Finish()

	if err != nil {
		return err
	}

	printer := output.NewPrinter(cmd.OutOrStdout())
	if res.Mismatch != nil {
		printer.Warning("Checksum mismatch: %v", res.Mismatch)
	}

	printer.Raw(output.Summary{
		Path:      res.Path,
		Size:      res.Size,
		Elapsed:   res.Elapsed,
		Chunks:    res.Chunks,
		Resumed:   res.Resumed,
		Integrity: res.IntegritySummary(),
		Workers:   res.Workers,
	}.Render())

	return nil
}
