package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Runner describes the remote admin endpoint that executes the batch jobs.
type Runner struct {
	Endpoint         string `toml:"endpoint"`
	StartAction      string `toml:"start_action"`
	ProgressAction   string `toml:"progress_action"`
	CancelAction     string `toml:"cancel_action"`
	Nonce            string `toml:"nonce"`
	RequestTimeout   int    `toml:"request_timeout"`
	RetryMaxAttempts int    `toml:"retry_max_attempts"`
}

// Workflow contains phase sequencing and batch sizing.
type Workflow struct {
	ImageBatchSize   int  `toml:"image_batch_size"`
	ProductBatchSize int  `toml:"product_batch_size"`
	ChainPhases      bool `toml:"chain_phases"`
	ResumeOnStart    bool `toml:"resume_on_start"`
	StartCooldown    int  `toml:"start_cooldown"`
}

// Polling contains the adaptive polling intervals in seconds, fastest first.
type Polling struct {
	Fast   int `toml:"fast"`
	Active int `toml:"active"`
	Normal int `toml:"normal"`
	Slow   int `toml:"slow"`
	Idle   int `toml:"idle"`
}

// Stall contains the dynamic stall threshold parameters.
type Stall struct {
	Enabled    bool    `toml:"enabled"`
	MinMS      int     `toml:"min_ms"`
	MaxMS      int     `toml:"max_ms"`
	DefaultMS  int     `toml:"default_ms"`
	Multiplier float64 `toml:"multiplier"`
	MinSamples int     `toml:"min_samples"`
	MaxSamples int     `toml:"max_samples"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	PhaseCompleted bool   `toml:"phase_completed"`
	Stalls         bool   `toml:"stalls"`
	Errors         bool   `toml:"errors"`
}

// Journal contains configuration for the SQLite event journal.
type Journal struct {
	Enabled       bool `toml:"enabled"`
	RetentionDays int  `toml:"retention_days"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Metrics toggles OpenTelemetry instrument recording.
type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// Config encapsulates all configuration values for shuttle.
//
// Configuration sections by subsystem:
//   - Paths: state/log directories and HTTP API bind address
//   - Runner: remote admin endpoint and action names
//   - Workflow: batch sizes and phase chaining
//   - Polling: adaptive polling intervals
//   - Stall: dynamic stall threshold
//   - Notifications: ntfy push notification settings
//   - Journal: event history retention
//   - Logging: log format and level
//   - Metrics: OpenTelemetry instruments
type Config struct {
	Paths         Paths         `toml:"paths"`
	Runner        Runner        `toml:"runner"`
	Workflow      Workflow      `toml:"workflow"`
	Polling       Polling       `toml:"polling"`
	Stall         Stall         `toml:"stall"`
	Notifications Notifications `toml:"notifications"`
	Journal       Journal       `toml:"journal"`
	Logging       Logging       `toml:"logging"`
	Metrics       Metrics       `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("shuttle.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SocketPath is the IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "shuttle.sock")
}

// LockPath is the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "shuttled.lock")
}

// PIDPath is where the running daemon records its process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "shuttled.pid")
}

// JournalPath is the SQLite event journal location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StateDir, "journal.db")
}

// Timeout returns the runner HTTP timeout.
func (r Runner) Timeout() time.Duration {
	return time.Duration(r.RequestTimeoutSeconds()) * time.Second
}

// RequestTimeoutSeconds returns the configured timeout, falling back to the default.
func (r Runner) RequestTimeoutSeconds() int {
	if r.RequestTimeout <= 0 {
		return defaultRunnerRequestTimeout
	}
	return r.RequestTimeout
}

// Timeout returns the ntfy HTTP timeout.
func (n Notifications) Timeout() time.Duration {
	if n.RequestTimeout <= 0 {
		return defaultNotifyRequestTimeout * time.Second
	}
	return time.Duration(n.RequestTimeout) * time.Second
}

// BatchSize returns the configured batch size for the named phase.
func (w Workflow) BatchSize(phaseName string) int {
	if phaseName == "products" {
		return w.ProductBatchSize
	}
	return w.ImageBatchSize
}

// Intervals returns the polling intervals ordered fast, active, normal, slow, idle.
func (p Polling) Intervals() []time.Duration {
	return []time.Duration{
		time.Duration(p.Fast) * time.Second,
		time.Duration(p.Active) * time.Second,
		time.Duration(p.Normal) * time.Second,
		time.Duration(p.Slow) * time.Second,
		time.Duration(p.Idle) * time.Second,
	}
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
