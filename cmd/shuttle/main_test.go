package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shuttle/internal/phase"
)

func TestDaemonStartAndStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out := env.run(t, "status")
	requireContains(t, out, "System Status")
	requireContains(t, out, "Idle (workflow stopped)")

	out = env.run(t, "start")
	requireContains(t, out, "Daemon started")

	out = env.run(t, "start")
	requireContains(t, out, "Daemon already running")

	out = env.run(t, "status")
	requireContains(t, out, "Running (pid")
	requireContains(t, out, "Phase 1 (Images)")
	requireContains(t, out, "Phase 2 (Products)")

	out = env.run(t, "status", "--json")
	requireContains(t, out, `"running": true`)
}

func TestSyncControls(t *testing.T) {
	env := setupCLITestEnv(t)
	env.run(t, "start")

	out := env.run(t, "sync", "start", "--batch-size", "7")
	requireContains(t, out, "Phase 1 (Images) start accepted (state: running)")
	requireContains(t, out, "Request ID:")
	if sizes := env.runner.BatchSizes(); len(sizes) != 1 || sizes[0] != 7 {
		t.Fatalf("unexpected batch sizes %v", sizes)
	}

	_, _, err := runCLI(t, []string{"sync", "start", "images"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected duplicate start to be rejected")
	}

	out = env.run(t, "sync", "start", "products")
	requireContains(t, out, "Phase 2 (Products) start accepted")
	out = env.run(t, "sync", "pause", "products")
	requireContains(t, out, "state: paused")
	out = env.run(t, "sync", "resume", "2")
	requireContains(t, out, "state: running")
	out = env.run(t, "sync", "cancel", "products")
	requireContains(t, out, "state: cancelled")
	if env.runner.CancelCalls(phase.Products) != 1 {
		t.Fatalf("expected remote cancel for products")
	}
	out = env.run(t, "sync", "reset", "products")
	requireContains(t, out, "state: pending")

	_, _, err = runCLI(t, []string{"sync", "pause", "images"}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "does not support pause") {
		t.Fatalf("expected images pause to fail, got %v", err)
	}
	_, _, err = runCLI(t, []string{"sync", "nudge"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected nudge without phase to fail")
	}

	out = env.run(t, "history", "--phase", "products")
	requireContains(t, out, "Phase 2 (Products)")
	requireContains(t, out, "phaseState")

	out = env.run(t, "history", "--json", "--limit", "1")
	if !strings.HasPrefix(strings.TrimSpace(out), "[") {
		t.Fatalf("expected JSON array, got %q", out)
	}
}

func TestLogsCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out := env.run(t, "logs")
	requireContains(t, out, "No log entries available")

	for _, line := range []string{"alpha", "beta", "gamma"} {
		if err := appendLine(env.logPath, line); err != nil {
			t.Fatalf("append log: %v", err)
		}
	}
	out = env.run(t, "logs", "--lines", "2")
	if strings.Contains(out, "alpha") {
		t.Fatalf("expected only the last two lines, got %q", out)
	}
	requireContains(t, out, "beta")
	requireContains(t, out, "gamma")
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	out := env.run(t, "test-notify")
	requireContains(t, out, "ntfy topic not configured")
}

func TestCommandsReportMissingDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	missing := filepath.Join(filepath.Dir(env.socketPath), "missing.sock")
	_, _, err := runCLI(t, []string{"history"}, missing, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "shuttle start") {
		t.Fatalf("expected missing socket hint, got %v", err)
	}

	out, _, err := runCLI(t, []string{"status"}, missing, env.configPath)
	if err != nil {
		t.Fatalf("offline status: %v", err)
	}
	requireContains(t, out, "Not running")
	requireContains(t, out, "Preflight")
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out := env.run(t, "config", "validate")
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.cfg.Runner.Endpoint)

	target := filepath.Join(t.TempDir(), "config.toml")
	out = env.run(t, "config", "init", "--path", target)
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	_, _, err := runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected overwrite guard, got %v", err)
	}
}
