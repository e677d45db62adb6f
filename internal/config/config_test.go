package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shuttle/internal/config"
)

func TestLoadDefaultConfigUsesEnvEndpointAndExpandsPaths(t *testing.T) {
	t.Setenv("SHUTTLE_ENDPOINT", "https://shop.test/wp-admin/admin-ajax.php/")
	t.Setenv("SHUTTLE_NONCE", "abc123")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "shuttle")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.SocketPath() != filepath.Join(wantState, "shuttle.sock") {
		t.Fatalf("unexpected socket path: %q", cfg.SocketPath())
	}
	if cfg.Runner.Endpoint != "https://shop.test/wp-admin/admin-ajax.php" {
		t.Fatalf("expected endpoint from env with trailing slash trimmed, got %q", cfg.Runner.Endpoint)
	}
	if cfg.Runner.Nonce != "abc123" {
		t.Fatalf("expected nonce from env, got %q", cfg.Runner.Nonce)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7491" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if !cfg.Workflow.ChainPhases {
		t.Fatal("expected phase chaining enabled by default")
	}
	if cfg.Workflow.BatchSize("images") != 25 || cfg.Workflow.BatchSize("products") != 50 {
		t.Fatalf("unexpected batch sizes: %+v", cfg.Workflow)
	}
	if cfg.Stall.DefaultMS != 60000 || cfg.Stall.MinSamples != 3 {
		t.Fatalf("unexpected stall defaults: %+v", cfg.Stall)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("expected console log format, got %q", cfg.Logging.Format)
	}
}

func TestLoadRequiresEndpoint(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SHUTTLE_ENDPOINT", "")

	_, _, _, err := config.Load("")
	if err == nil {
		t.Fatal("expected error when endpoint missing")
	}
	if !strings.Contains(err.Error(), "runner.endpoint is required") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadCustomPathParsesSections(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SHUTTLE_ENDPOINT", "")
	t.Setenv("SHUTTLE_NONCE", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	content := `
[paths]
state_dir = "~/shuttle-state"

[runner]
endpoint = "http://localhost:8080/ajax"
nonce = " n0nce "

[workflow]
image_batch_size = 10
product_batch_size = 20
chain_phases = false

[stall]
min_ms = 4000
max_ms = 40000
default_ms = 10000
multiplier = 2.0

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected custom path to be used, got %q exists=%v", resolved, exists)
	}
	home, _ := os.UserHomeDir()
	if cfg.Paths.StateDir != filepath.Join(home, "shuttle-state") {
		t.Fatalf("unexpected state dir: %q", cfg.Paths.StateDir)
	}
	if cfg.Runner.Nonce != "n0nce" {
		t.Fatalf("expected trimmed nonce, got %q", cfg.Runner.Nonce)
	}
	if cfg.Workflow.ChainPhases {
		t.Fatal("expected chain_phases false")
	}
	if cfg.Workflow.ImageBatchSize != 10 || cfg.Workflow.ProductBatchSize != 20 {
		t.Fatalf("unexpected batch sizes: %+v", cfg.Workflow)
	}
	if cfg.Stall.MinMS != 4000 || cfg.Stall.MaxSamples != 20 {
		t.Fatalf("unexpected stall config: %+v", cfg.Stall)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "bad.toml")
	content := "[runner]\nendpoint = \"http://x.test\"\nbogus = 1\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() config.Config {
		cfg := config.Default()
		cfg.Runner.Endpoint = "https://shop.test/ajax"
		return cfg
	}
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"non http endpoint", func(c *config.Config) { c.Runner.Endpoint = "ftp://shop.test" }, "http or https"},
		{"zero batch size", func(c *config.Config) { c.Workflow.ImageBatchSize = 0 }, "workflow.image_batch_size"},
		{"descending polling", func(c *config.Config) { c.Polling.Slow = 3 }, "polling.slow"},
		{"default outside bounds", func(c *config.Config) { c.Stall.DefaultMS = 1000 }, "stall.default_ms"},
		{"min above max", func(c *config.Config) { c.Stall.MinMS = 400000 }, "stall.min_ms"},
		{"zero multiplier", func(c *config.Config) { c.Stall.Multiplier = 0 }, "stall.multiplier"},
		{"samples inverted", func(c *config.Config) { c.Stall.MaxSamples = 2 }, "stall.max_samples"},
		{"bad level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}

	valid := base()
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected defaults with endpoint to validate, got %v", err)
	}
}

func TestCreateSampleLoads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SHUTTLE_ENDPOINT", "")
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	if cfg.Polling.Idle != 30 {
		t.Fatalf("unexpected idle interval: %d", cfg.Polling.Idle)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	if _, err := os.Stat(cfg.Paths.LogDir); err != nil {
		t.Fatalf("expected log dir created: %v", err)
	}
}

func TestPollingIntervalsOrdered(t *testing.T) {
	intervals := config.Default().Polling.Intervals()
	if len(intervals) != 5 {
		t.Fatalf("expected 5 intervals, got %d", len(intervals))
	}
	for i := 1; i < len(intervals); i++ {
		if intervals[i] < intervals[i-1] {
			t.Fatalf("intervals not ascending: %v", intervals)
		}
	}
}
