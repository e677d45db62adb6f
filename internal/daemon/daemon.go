package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"shuttle/internal/config"
	"shuttle/internal/journal"
	"shuttle/internal/logging"
	"shuttle/internal/telemetry"
	"shuttle/internal/workflow"
)

// Daemon coordinates the workflow manager and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	workflow *workflow.Manager
	journal  *journal.Store
	metrics  *telemetry.Provider
	logHub   *logging.StreamHub
	logPath  string
	runID    string

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	api     *apiServer
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                   `json:"running"`
	PID          int                    `json:"pid"`
	RunID        string                 `json:"run_id"`
	LockFilePath string                 `json:"lock_path"`
	JournalPath  string                 `json:"journal_path,omitempty"`
	LogPath      string                 `json:"log_path,omitempty"`
	APIAddress   string                 `json:"api_address,omitempty"`
	Workflow     workflow.StatusSummary `json:"workflow"`
}

// Option configures optional Daemon resources.
type Option func(*Daemon)

// WithJournal hands the journal to the daemon, which closes it on Close.
func WithJournal(store *journal.Store) Option {
	return func(d *Daemon) {
		d.journal = store
	}
}

// WithMetricsProvider hands the metrics provider to the daemon, which shuts it down on Close.
func WithMetricsProvider(provider *telemetry.Provider) Option {
	return func(d *Daemon) {
		d.metrics = provider
	}
}

// WithLogStream exposes hub through the /api/logs endpoint.
func WithLogStream(hub *logging.StreamHub) Option {
	return func(d *Daemon) {
		d.logHub = hub
	}
}

// WithLogPath records the daemon log file served by LogTail.
func WithLogPath(path string) Option {
	return func(d *Daemon) {
		d.logPath = path
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, wf *workflow.Manager, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || wf == nil {
		return nil, errors.New("daemon requires config and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		workflow: wf,
		runID:    uuid.NewString(),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the daemon lock, starts the workflow manager, and opens the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another shuttle daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}

	api, err := newAPIServer(d.cfg, d, d.logger)
	if err == nil {
		err = api.start(runCtx)
	}
	if err != nil {
		d.workflow.Stop()
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.api = api
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("shuttle daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("run_id", d.runID),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.api.stop()
	d.api = nil
	d.workflow.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_lock_release_failed"),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
			logging.String(logging.FieldImpact, "a new daemon may refuse to start"),
		)
	}
	d.running.Store(false)
	d.logger.Info("shuttle daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	d.workflow.Close()

	var errs []error
	if d.metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, d.metrics.Shutdown(shutdownCtx))
		cancel()
	}
	if d.journal != nil {
		errs = append(errs, d.journal.Close())
	}
	return errors.Join(errs...)
}

// Running reports whether the daemon holds the lock and drives the workflow.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// LogStream returns the in-memory log hub, if any.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.logHub
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		RunID:        d.runID,
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
		Workflow:     d.workflow.Status(ctx),
	}
	if d.journal != nil {
		status.JournalPath = d.journal.Path()
	}
	d.mu.Lock()
	status.APIAddress = d.api.address()
	d.mu.Unlock()
	return status
}

// History returns journal entries, newest first.
func (d *Daemon) History(ctx context.Context, filter journal.Filter) ([]journal.Entry, error) {
	return d.workflow.History(ctx, filter)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.workflow.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
