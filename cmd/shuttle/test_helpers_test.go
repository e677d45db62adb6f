package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"shuttle/internal/config"
	"shuttle/internal/daemon"
	"shuttle/internal/ipc"
	"shuttle/internal/journal"
	"shuttle/internal/testsupport"
	"shuttle/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	runner     *testsupport.FakeRunner
	daemon     *daemon.Daemon
	socketPath string
	configPath string
	logPath    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithoutResume())
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("SHUTTLE_ENDPOINT", "")
	t.Setenv("SHUTTLE_NONCE", "")
	t.Setenv("SHUTTLE_NTFY_TOPIC", "")
	t.Setenv("SHUTTLE_API_TOKEN", "")

	logPath := filepath.Join(cfg.Paths.LogDir, "shuttled-test.log")
	if err := os.WriteFile(logPath, nil, 0o644); err != nil {
		t.Fatalf("create log file: %v", err)
	}
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	store, err := journal.Open(cfg)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	runner := testsupport.NewFakeRunner()
	mgr := workflow.NewManager(cfg, runner, nil,
		workflow.WithJournal(store),
		workflow.WithPreflight(nil),
	)
	d, err := daemon.New(cfg, mgr, nil, daemon.WithJournal(store), daemon.WithLogPath(logPath))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	// Unix socket paths are length limited; t.TempDir can exceed it.
	sockDir, err := os.MkdirTemp("", "shc")
	if err != nil {
		t.Fatalf("socket dir: %v", err)
	}
	socketPath := filepath.Join(sockDir, "cli.sock")

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, socketPath, d, nil)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
		_ = os.RemoveAll(sockDir)
	})

	return &cliTestEnv{
		cfg:        cfg,
		runner:     runner,
		daemon:     d,
		socketPath: socketPath,
		configPath: configPath,
		logPath:    logPath,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if socket != "" {
		flags = append(flags, "--socket", socket)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (e *cliTestEnv) run(t *testing.T, args ...string) string {
	t.Helper()
	out, _, err := runCLI(t, args, e.socketPath, e.configPath)
	if err != nil {
		t.Fatalf("shuttle %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
