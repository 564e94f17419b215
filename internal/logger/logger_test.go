package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogging_WritesFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "chunkdl.log")

	require.NoError(t, InitLogging(true, logPath))
	t.Cleanup(Close)

	assert.True(t, DebugEnabled)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	Debugf("probe %s", "started")
	Close()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "probe started")
}

func TestInitLogging_InfoLevelHidesDebug(t *testing.T) {
	require.NoError(t, InitLogging(false, ""))

	var buf bytes.Buffer
	SetOutput(&buf)

	Debugf("hidden")
	Warnf("visible %d", 1)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible 1")
	assert.Contains(t, buf.String(), `"level":"warn"`)
}

func TestWith_AddsComponent(t *testing.T) {
	require.NoError(t, InitLogging(false, ""))

	var buf bytes.Buffer
	SetOutput(&buf)

	l := With("fetch")
	l.Info().Int("chunk", 3).Msg("done")

	assert.Contains(t, buf.String(), `"component":"fetch"`)
	assert.Contains(t, buf.String(), `"chunk":3`)
}
