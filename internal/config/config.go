package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Config holds every setting of a download run. It is built once by Load,
// overlaid with command line flags and checked with Validate before use.
type Config struct {
	DownloadDir      string            `yaml:"dir,omitempty" envconfig:"DIR" validate:"required"`
	Threads          int               `yaml:"threads,omitempty" envconfig:"THREADS" validate:"min=1"`
	MaxAttempts      int               `yaml:"maxAttempts,omitempty" envconfig:"MAX_ATTEMPTS" validate:"min=1,max=100"`
	RetryDelay       time.Duration     `yaml:"retryDelay,omitempty" envconfig:"RETRY_DELAY" validate:"gte=0"`
	Timeout          time.Duration     `yaml:"timeout,omitempty" envconfig:"TIMEOUT" validate:"gte=0"`
	ProgressInterval time.Duration     `yaml:"progressInterval,omitempty" envconfig:"PROGRESS_INTERVAL" validate:"gt=0"`
	Insecure         bool              `yaml:"insecure,omitempty" envconfig:"INSECURE"`
	FailOnMismatch   bool              `yaml:"failOnMismatch,omitempty" envconfig:"FAIL_ON_MISMATCH"`
	Overwrite        bool              `yaml:"overwrite,omitempty" envconfig:"OVERWRITE"`
	Debug            bool              `yaml:"debug,omitempty" envconfig:"DEBUG"`
	StateDB          string            `yaml:"stateDb,omitempty" envconfig:"STATE_DB" validate:"required"`
	UserAgent        string            `yaml:"userAgent,omitempty" envconfig:"USER_AGENT" validate:"required"`
	Headers          map[string]string `yaml:"headers,omitempty" envconfig:"HEADERS"`
	MetricsAddr      string            `yaml:"metricsAddr,omitempty" envconfig:"METRICS_ADDR" validate:"omitempty,hostname_port"`
	LogFile          string            `yaml:"logFile,omitempty" envconfig:"LOG_FILE"`
}

// CheckCertificate reports whether TLS certificates are verified.
func (c *Config) CheckCertificate() bool {
	return !c.Insecure
}

func DefaultConfig() Config {
	return Config{
		DownloadDir:      downloadDir,
		Threads:          threads,
		MaxAttempts:      maxAttempts,
		RetryDelay:       retryDelay,
		Timeout:          timeout,
		ProgressInterval: progressInterval,
		StateDB:          stateDB,
		UserAgent:        userAgent,
	}
}

// Load builds a Config from the defaults, the YAML file at path (the XDG
// location when empty), an optional .env file and CHUNKDL_* environment
// variables, in that order of precedence. A missing file is only an error
// when path was given explicitly.
func Load(path, dotenvPath string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}

	if err := loadEnv(cfg, dotenvPath); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	defaults := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return &defaults, nil
		}

		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if len(b) == 0 {
		return &defaults, nil
	}

	var fileCfg Config

	if err := yaml.Unmarshal(b, &fileCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return &Config{
		DownloadDir:      zeroOr(fileCfg.DownloadDir, defaults.DownloadDir),
		Threads:          zeroOr(fileCfg.Threads, defaults.Threads),
		MaxAttempts:      zeroOr(fileCfg.MaxAttempts, defaults.MaxAttempts),
		RetryDelay:       zeroOr(fileCfg.RetryDelay, defaults.RetryDelay),
		Timeout:          zeroOr(fileCfg.Timeout, defaults.Timeout),
		ProgressInterval: zeroOr(fileCfg.ProgressInterval, defaults.ProgressInterval),
		Insecure:         fileCfg.Insecure,
		FailOnMismatch:   fileCfg.FailOnMismatch,
		Overwrite:        fileCfg.Overwrite,
		Debug:            fileCfg.Debug,
		StateDB:          zeroOr(fileCfg.StateDB, defaults.StateDB),
		UserAgent:        zeroOr(fileCfg.UserAgent, defaults.UserAgent),
		Headers:          fileCfg.Headers,
		MetricsAddr:      fileCfg.MetricsAddr,
		LogFile:          fileCfg.LogFile,
	}, nil
}

// loadEnv applies variables from dotenvPath (ignored when missing) and the
// process environment. Variables already set in the process win over the
// .env file.
func loadEnv(cfg *Config, dotenvPath string) error {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", dotenvPath, err)
		}
	}

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return fmt.Errorf("failed to process environment variables: %w", err)
	}

	return nil
}

// Validate coerces Threads down to maxThreads, then checks every field
// constraint and reports all violations.
func (c *Config) Validate() error {
	c.Threads = min(c.Threads, maxThreads)

	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Field(), tagWithParam(fe), fe.Value()))
	}

	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func tagWithParam(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}

	return fe.Tag() + "=" + fe.Param()
}

// zeroOr returns def if v is the zero value for its type.
func zeroOr[T any](v, def T) T {
	if reflect.ValueOf(v).IsZero() {
		return def
	}

	return v
}
