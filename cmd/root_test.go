package cmd

import (
	"bytes"
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/chunkdl/internal/chunk"
	"github.com/NamanBalaji/chunkdl/internal/errors"
	"github.com/NamanBalaji/chunkdl/internal/output"
	"github.com/NamanBalaji/chunkdl/internal/repository"
	"github.com/NamanBalaji/chunkdl/internal/session"
	"github.com/NamanBalaji/chunkdl/internal/status"
	httpPkg "github.com/NamanBalaji/chunkdl/pkg/http"
)

func TestParseHeaders(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want map[string]string
	}{
		{"empty", nil, map[string]string{}},
		{"single", []string{"Authorization: Bearer abc"}, map[string]string{"Authorization": "Bearer abc"}},
		{"value with colon", []string{"X-Time: 12:30"}, map[string]string{"X-Time": "12:30"}},
		{"trims", []string{"  Accept :  */*  "}, map[string]string{"Accept": "*/*"}},
		{"malformed skipped", []string{"novalue", ": empty key"}, map[string]string{}},
		{"last wins", []string{"A: 1", "A: 2"}, map[string]string{"A": "2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseHeaders(tt.in))
		})
	}
}

func emptyConfig(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	return path
}

func TestLoadConfig_FlagsOverride(t *testing.T) {
	flags := &rootFlags{}
	cmd := newRootCmdWith(flags)
	stateDB := filepath.Join(t.TempDir(), "s.db")

	require.NoError(t, cmd.ParseFlags([]string{
		"--config", emptyConfig(t),
		"-t", "8",
		"-d", "/tmp",
		"--check-certificate=false",
		"-H", "X-Token: secret",
		"--max-attempts", "2",
		"--retry-delay", "250ms",
		"--state-db", stateDB,
	}))

	cfg, err := loadConfig(cmd, flags)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Threads)
	assert.Equal(t, "/tmp", cfg.DownloadDir)
	assert.False(t, cfg.CheckCertificate())
	assert.Equal(t, map[string]string{"X-Token": "secret"}, cfg.Headers)
	assert.Equal(t, 2, cfg.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, stateDB, cfg.StateDB)

	// untouched flags keep the config defaults
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.False(t, cfg.Overwrite)
}

func TestLoadConfig_Defaults(t *testing.T) {
	flags := &rootFlags{}
	cmd := newRootCmdWith(flags)
	require.NoError(t, cmd.ParseFlags([]string{"--config", emptyConfig(t)}))

	cfg, err := loadConfig(cmd, flags)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Threads)
	assert.True(t, cfg.CheckCertificate())
	assert.Equal(t, 5, cfg.MaxAttempts)
}

func TestLoadConfig_Invalid(t *testing.T) {
	flags := &rootFlags{}
	cmd := newRootCmdWith(flags)
	require.NoError(t, cmd.ParseFlags([]string{"--config", emptyConfig(t), "-t", "0"}))

	_, err := loadConfig(cmd, flags)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Threads")
}

func TestLoadConfig_LargeThreadCountIsCoerced(t *testing.T) {
	flags := &rootFlags{}
	cmd := newRootCmdWith(flags)
	require.NoError(t, cmd.ParseFlags([]string{"--config", emptyConfig(t), "-t", "1000"}))

	cfg, err := loadConfig(cmd, flags)
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Threads)
}

func serveFile(t *testing.T, content []byte) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(content))
	}))
	t.Cleanup(srv.Close)

	return srv
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()

	return out.String(), err
}

func TestDownloadCommand(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789"), 100)
	srv := serveFile(t, content)

	dir := t.TempDir()
	stateDB := filepath.Join(t.TempDir(), "s.db")

	out, err := run(t, srv.URL+"/data.bin",
		"--config", emptyConfig(t),
		"-d", dir,
		"-t", "3",
		"--state-db", stateDB,
		"--progress-interval", "10ms",
	)
	require.NoError(t, err)

	assert.Contains(t, out, "Download complete")
	assert.Contains(t, out, "data.bin")

	got, err := os.ReadFile(filepath.Join(dir, "data.bin"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestDownloadCommand_Errors(t *testing.T) {
	srv := serveFile(t, []byte("content"))

	_, err := run(t, "--config", emptyConfig(t))
	assert.Error(t, err, "URI is required")

	_, err = run(t, srv.URL+"/x", "--config", emptyConfig(t), "-d", filepath.Join(t.TempDir(), "missing"),
		"--state-db", filepath.Join(t.TempDir(), "s.db"))
	assert.Error(t, err)

	_, err = run(t, "ftp://example.com/file", "--config", emptyConfig(t), "--state-db", filepath.Join(t.TempDir(), "s.db"))
	assert.Error(t, err)
}

func TestCleanCommand(t *testing.T) {
	dir := t.TempDir()
	stateDB := filepath.Join(t.TempDir(), "s.db")
	target := filepath.Join(dir, "file.bin")

	store := chunk.NewStore(dir, "file.bin")
	for id := range 3 {
		require.NoError(t, os.WriteFile(store.Path(id), []byte("x"), 0o644))
	}

	repo, err := repository.NewBboltRepository(stateDB)
	require.NoError(t, err)
	require.NoError(t, repo.Save(&repository.SessionRecord{URI: "http://example.com/file.bin", OutputPath: target, TotalSize: 3}))
	require.NoError(t, repo.Close())

	out, err := run(t, "clean", target, "--config", emptyConfig(t), "--state-db", stateDB)
	require.NoError(t, err)

	assert.Contains(t, out, "Removed 3 chunk files for file.bin from "+dir)
	assert.Contains(t, out, "Deleted stored session")

	ids, err := store.IDs()
	require.NoError(t, err)
	assert.Empty(t, ids)

	repo, err = repository.NewBboltRepository(stateDB)
	require.NoError(t, err)
	defer repo.Close()

	_, err = repo.Find(target)
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
}

func TestSessionsCommand(t *testing.T) {
	stateDB := filepath.Join(t.TempDir(), "s.db")

	out, err := run(t, "sessions", "--config", emptyConfig(t), "--state-db", stateDB)
	require.NoError(t, err)
	assert.Contains(t, out, "No unfinished downloads")

	ranges, err := chunk.Partition(100, 4)
	require.NoError(t, err)

	jobs := chunk.NewJobs(ranges)
	jobs[0].State = status.Done

	repo, err := repository.NewBboltRepository(stateDB)
	require.NoError(t, err)
	require.NoError(t, repo.Save(&repository.SessionRecord{
		URI:        "http://example.com/file.bin",
		OutputPath: "/downloads/file.bin",
		TotalSize:  100,
		Jobs:       jobs,
	}))
	require.NoError(t, repo.Close())

	out, err = run(t, "sessions", "--config", emptyConfig(t), "--state-db", stateDB)
	require.NoError(t, err)
	assert.Contains(t, out, "/downloads/file.bin")
	assert.Contains(t, out, "1/4")
	assert.Contains(t, out, "100 B")
}

func TestExitCode(t *testing.T) {
	abandoned := errors.NewChunkAbandoned(stderrors.New("eof"), "http://example.com/f", 1, 30, 5)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"unreachable", errors.NewResourceUnreachable(httpPkg.ErrResourceNotFound, "http://example.com/f", http.StatusNotFound), exitFatal},
		{"no space", errors.NewInsufficientStorage("/tmp", 100, 10), exitFatal},
		{"partial", stderrors.Join(session.ErrPartialDownload, abandoned), exitPartial},
		{"mismatch", errors.NewIntegrityMismatch("/tmp/f", "MD5", "a", "b"), exitMismatch},
		{"interrupted", errors.NewContextError(context.Canceled, "http://example.com/f"), exitInterrupted},
		{"other", stderrors.New("boom"), exitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestReportError(t *testing.T) {
	var buf bytes.Buffer

	reportError(output.NewPrinter(&buf),
		errors.NewResourceUnreachable(httpPkg.ErrResourceNotFound, "http://example.com/f", http.StatusNotFound))
	assert.Contains(t, buf.String(), "ResourceUnreachable")
	assert.Contains(t, buf.String(), "Server responded with 404 Not Found")

	buf.Reset()
	reportError(output.NewPrinter(&buf), stderrors.Join(session.ErrPartialDownload, stderrors.New("chunk 2 abandoned")))
	assert.Contains(t, buf.String(), "download incomplete")
	assert.Contains(t, buf.String(), "run the same command again to resume")
	assert.NotContains(t, buf.String(), "Server responded")
}
