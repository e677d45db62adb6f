package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"shuttle/internal/config"
	"shuttle/internal/daemon"
	"shuttle/internal/ipc"
	"shuttle/internal/jobs"
	"shuttle/internal/journal"
	"shuttle/internal/logging"
	"shuttle/internal/telemetry"
	"shuttle/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides logging.level when set.
	LogLevel    string
	Development bool
	// SocketPath overrides the IPC socket location.
	SocketPath string
}

// Run starts the shuttle daemon and blocks until cmdCtx ends or the process
// receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("shuttled-%s.log", runID))
	logHub := logging.NewStreamHub(4096)

	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout"},
		FilePath:    logPath,
		Development: opts.Development,
		Stream:      logHub,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", logging.LogFileName, err)
	}
	logging.PruneOldLogs(logger, cfg.Paths.LogDir, "shuttled-*.log", cfg.Logging.RetentionDays, logPath)
	logConfigSnapshot(logger, cfg)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	var store *journal.Store
	if cfg.Journal.Enabled {
		store, err = journal.Open(cfg)
		if err != nil {
			logging.ErrorWithContext(logger, "open journal failed", "journal_open_failed",
				logging.Error(err),
				logging.String("path", cfg.JournalPath()),
				logging.String(logging.FieldErrorHint, "check state_dir permissions or disable [journal]"),
			)
			return err
		}
	}
	provider := telemetry.NewProvider(cfg.Metrics.Enabled)

	runner := jobs.NewHTTPRunner(cfg.Runner, jobs.WithLogger(logger))
	manager := workflow.NewManager(cfg, runner, logger,
		workflow.WithJournal(store),
		workflow.WithMetrics(provider),
	)

	d, err := daemon.New(cfg, manager, logger,
		daemon.WithJournal(store),
		daemon.WithMetricsProvider(provider),
		daemon.WithLogStream(logHub),
		daemon.WithLogPath(logPath),
	)
	if err != nil {
		return errors.Join(fmt.Errorf("create daemon: %w", err), store.Close(), provider.Shutdown(context.Background()))
	}
	defer func() {
		if closeErr := d.Close(); closeErr != nil {
			logging.WarnWithContext(logger, "daemon shutdown incomplete", "daemon_close_failed",
				logging.Error(closeErr),
				logging.String(logging.FieldImpact, "journal or metrics may not have flushed"),
			)
		}
	}()

	socketPath := cfg.SocketPath()
	if strings.TrimSpace(opts.SocketPath) != "" {
		socketPath = opts.SocketPath
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logging.WarnWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration and that no other shuttled is running"),
			logging.String(logging.FieldImpact, "phases will not be driven until `shuttle start` succeeds"),
		)
	}

	<-signalCtx.Done()
	logger.Info("shuttle daemon shutting down",
		logging.String(logging.FieldEventType, "daemon_shutdown"),
		logging.String("run_id", runID))
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, logging.LogFileName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("endpoint", cfg.Runner.Endpoint),
		logging.Bool("nonce_present", strings.TrimSpace(cfg.Runner.Nonce) != ""),
		logging.Int("image_batch_size", cfg.Workflow.ImageBatchSize),
		logging.Int("product_batch_size", cfg.Workflow.ProductBatchSize),
		logging.Bool("chain_phases", cfg.Workflow.ChainPhases),
		logging.Bool("resume_on_start", cfg.Workflow.ResumeOnStart),
		logging.Bool("stall_detection", cfg.Stall.Enabled),
		logging.Bool("journal", cfg.Journal.Enabled),
		logging.Bool("metrics", cfg.Metrics.Enabled),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.String("api_bind", cfg.Paths.APIBind),
	)
}
