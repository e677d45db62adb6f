package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"shuttle/internal/config"
	"shuttle/internal/events"
	"shuttle/internal/jobs"
	"shuttle/internal/journal"
	"shuttle/internal/logging"
	"shuttle/internal/notifications"
	"shuttle/internal/orchestrator"
	"shuttle/internal/phase"
	"shuttle/internal/preflight"
	"shuttle/internal/scheduler"
	"shuttle/internal/stall"
	"shuttle/internal/state"
	"shuttle/internal/telemetry"
)

const errorNotifyCooldown = time.Minute

var (
	// ErrAlreadyRunning is returned by Start when the manager is running.
	ErrAlreadyRunning = errors.New("workflow already running")
	// ErrNotRunning is returned by phase controls before Start.
	ErrNotRunning = errors.New("workflow not running")
	// ErrUnknownPhase is returned for a phase the manager does not drive.
	ErrUnknownPhase = errors.New("unknown phase")
)

// PreflightFunc runs readiness checks before the manager starts.
type PreflightFunc func(ctx context.Context, cfg *config.Config) []preflight.Result

// Manager owns the shared engine components and both phase orchestrators.
type Manager struct {
	cfg       *config.Config
	runner    jobs.Runner
	logger    *slog.Logger
	clock     clock.WithTicker
	notifier  notifications.Service
	journal   *journal.Store
	provider  *telemetry.Provider
	metrics   *telemetry.SyncMetrics
	preflight PreflightFunc

	store  *state.Store
	sched  *scheduler.Scheduler
	bus    *events.Bus
	order  []phase.Phase
	phases map[phase.Phase]*orchestrator.Orchestrator

	errThrottle *logging.Throttle
	notifyWG    sync.WaitGroup

	mu         sync.RWMutex
	running    bool
	runCtx     context.Context
	cancel     context.CancelFunc
	subs       []events.Subscription
	lastErr    error
	checks     []preflight.Result
	syncStart  time.Time
	batchMarks map[phase.Phase]batchMark
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithClock replaces the wall clock, typically with a fake clock in tests.
func WithClock(clk clock.WithTicker) ManagerOption {
	return func(m *Manager) {
		if clk != nil {
			m.clock = clk
		}
	}
}

// WithNotifier replaces the ntfy service built from config.
func WithNotifier(notifier notifications.Service) ManagerOption {
	return func(m *Manager) {
		m.notifier = notifier
	}
}

// WithJournal records bus events into store.
func WithJournal(store *journal.Store) ManagerOption {
	return func(m *Manager) {
		m.journal = store
	}
}

// WithMetrics records instruments on provider and exposes its readings in Status.
func WithMetrics(provider *telemetry.Provider) ManagerOption {
	return func(m *Manager) {
		m.provider = provider
	}
}

// WithPreflight replaces the readiness checks run on Start.
func WithPreflight(fn PreflightFunc) ManagerOption {
	return func(m *Manager) {
		m.preflight = fn
	}
}

// NewManager constructs a workflow manager driving runner.
func NewManager(cfg *config.Config, runner jobs.Runner, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:        cfg,
		runner:     runner,
		logger:     logging.NewComponentLogger(logger, "workflow-manager"),
		clock:      clock.RealClock{},
		notifier:   notifications.NewService(cfg),
		preflight:  preflight.RunAll,
		order:      phase.All(),
		phases:     make(map[phase.Phase]*orchestrator.Orchestrator),
		batchMarks: make(map[phase.Phase]batchMark),
	}
	for _, opt := range opts {
		opt(m)
	}

	metrics, err := telemetry.NewSyncMetrics(m.provider.MeterProvider())
	if err != nil {
		m.logger.Warn("metrics unavailable; instruments disabled",
			logging.Error(err),
			logging.String(logging.FieldEventType, "metrics_init_failed"),
			logging.String(logging.FieldImpact, "status will not include metric readings"),
		)
	}
	m.metrics = metrics

	m.errThrottle = logging.NewThrottle(m.clock, errorNotifyCooldown)
	m.store = state.New()
	m.bus = events.NewBus(logger)
	m.sched = scheduler.New(
		scheduler.WithClock(m.clock),
		scheduler.WithLogger(logger),
		scheduler.WithIntervals(scheduler.IntervalsFrom(cfg.Polling.Intervals())),
	)

	for _, p := range m.order {
		var detector *stall.Detector
		if cfg.Stall.Enabled {
			detector = stall.NewDetector(p, stall.ConfigFrom(cfg.Stall), m.clock, m.bus, logger)
		}
		deps := orchestrator.Deps{
			Phase:         p,
			Runner:        runner,
			Store:         m.store,
			Scheduler:     m.sched,
			Bus:           m.bus,
			Detector:      detector,
			Reporter:      orchestrator.ReporterFunc(m.reportError),
			Clock:         m.clock,
			Logger:        logger,
			BatchSize:     cfg.Workflow.BatchSize(string(p)),
			StartCooldown: time.Duration(cfg.Workflow.StartCooldown) * time.Second,
		}
		if p != phase.Images {
			deps.UpstreamStatus = m.imagesStatus
		}
		m.phases[p] = orchestrator.New(deps)
	}
	return m
}

// Bus exposes the event bus for additional subscribers such as log streaming.
func (m *Manager) Bus() *events.Bus {
	return m.bus
}

// Orchestrator returns the orchestrator for p.
func (m *Manager) Orchestrator(p phase.Phase) (*orchestrator.Orchestrator, error) {
	orch, ok := m.phases[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPhase, p)
	}
	return orch, nil
}

// Running reports whether Start has been called without a matching Stop.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) imagesStatus() string {
	if orch, ok := m.phases[phase.Images]; ok {
		return string(orch.State())
	}
	return ""
}

func (m *Manager) reportError(_ context.Context, _ phase.Phase, err error) {
	m.setLastError(err)
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) runContext() context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.runCtx == nil {
		return context.Background()
	}
	return m.runCtx
}
