package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

const (
	appName          = "chunkdl"
	configFileName   = "config.yaml"
	envPrefix        = "CHUNKDL"
	downloadDir      = "."
	threads          = 4
	maxThreads       = 256
	maxAttempts      = 5
	retryDelay       = 1 * time.Second
	timeout          = 30 * time.Second
	progressInterval = 5 * time.Second
	userAgent        = "chunkdl/1.0"
)

var stateDB = filepath.Join(xdg.StateHome, appName, "sessions.db")

// DefaultPath returns the config file location under the XDG config home.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, appName, configFileName)
}
