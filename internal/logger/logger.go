package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	mu      sync.Mutex
	logFile *os.File

	DebugEnabled = false
)

// InitLogging sets up the global logger. Console output goes to stderr; when
// logPath is set every entry is also appended to that file.
func InitLogging(debugMode bool, logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	DebugEnabled = debugMode

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debugMode {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	var writers []io.Writer
	writers = append(writers, zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.DateTime,
	})

	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}

		logFile = f
		writers = append(writers, f)
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()

	return nil
}

// SetOutput redirects all log output to w. Used by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// Close closes the log file if open.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// With returns a logger tagged with the given component name.
func With(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

func Infof(format string, v ...interface{}) {
	log.Info().Msgf(format, v...)
}

// Errorf logs an error message.
func Errorf(format string, v ...interface{}) {
	log.Error().Msgf(format, v...)
}

func Debugf(format string, v ...interface{}) {
	log.Debug().Msgf(format, v...)
}

func Warnf(format string, v ...interface{}) {
	log.Warn().Msgf(format, v...)
}
