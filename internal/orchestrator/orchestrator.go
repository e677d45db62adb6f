package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"shuttle/internal/events"
	"shuttle/internal/jobs"
	"shuttle/internal/logging"
	"shuttle/internal/phase"
	"shuttle/internal/scheduler"
	"shuttle/internal/services"
	"shuttle/internal/stall"
	"shuttle/internal/state"
)

const defaultStartCooldown = 5 * time.Second

var (
	// ErrAlreadyInitialized is returned by Start when the phase already has a running job.
	ErrAlreadyInitialized = errors.New("phase already initialized")
	// ErrNotPausable is returned by Pause/Resume for phases that do not support it.
	ErrNotPausable = errors.New("phase does not support pause")
	// ErrInvalidState is returned when an operation does not apply to the current state.
	ErrInvalidState = errors.New("invalid phase state")
	// ErrStartSuperseded is returned by Start when Reset or Cancel ran while
	// the start request was in flight.
	ErrStartSuperseded = errors.New("start superseded by reset")
)

// Deps wires an Orchestrator to the shared engine components.
type Deps struct {
	Phase     phase.Phase
	Runner    jobs.Runner
	Store     *state.Store
	Scheduler *scheduler.Scheduler
	Bus       *events.Bus
	Detector  *stall.Detector
	Reporter  Reporter
	Clock     clock.PassiveClock
	Logger    *slog.Logger
	// BatchSize is used when Start is called with a non-positive size.
	BatchSize int
	// StartCooldown spaces out repeated "start ignored" diagnostics.
	StartCooldown time.Duration
	// UpstreamStatus reports the images phase status for SyncProgress payloads.
	UpstreamStatus func() string
}

// Orchestrator drives one phase: it starts batches, polls progress, feeds the
// stall detector, and announces completion on the bus.
type Orchestrator struct {
	phase     phase.Phase
	runner    jobs.Runner
	store     *state.Store
	sched     *scheduler.Scheduler
	bus       *events.Bus
	detector  *stall.Detector
	reporter  Reporter
	clock     clock.PassiveClock
	logger    *slog.Logger
	throttle  *logging.Throttle
	sampler   *logging.ProgressSampler
	upstream  func() string
	batchSize int

	mu           sync.Mutex
	state        State
	generation   uint64
	label        string
	lastSnapshot jobs.Snapshot
	hasSnapshot  bool
	errorCount   int
	startedAt    time.Time
	startSeq     uint64
	startOwner   uint64
}

// New constructs an Orchestrator. The detector, when present, is pointed at
// the new orchestrator for remediation.
func New(deps Deps) *Orchestrator {
	clk := deps.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	cooldown := deps.StartCooldown
	if cooldown <= 0 {
		cooldown = defaultStartCooldown
	}
	reporter := deps.Reporter
	if reporter == nil {
		reporter = noopReporter{}
	}
	store := deps.Store
	if store == nil {
		store = state.New()
	}
	sched := deps.Scheduler
	if sched == nil {
		sched = scheduler.New()
	}
	o := &Orchestrator{
		phase:     deps.Phase,
		runner:    deps.Runner,
		store:     store,
		sched:     sched,
		bus:       deps.Bus,
		detector:  deps.Detector,
		reporter:  reporter,
		clock:     clk,
		logger:    logging.NewComponentLogger(deps.Logger, "orchestrator").With(logging.String(logging.FieldPhase, string(deps.Phase))),
		throttle:  logging.NewThrottle(clk, cooldown),
		sampler:   logging.NewProgressSampler(10),
		upstream:  deps.UpstreamStatus,
		batchSize: deps.BatchSize,
		state:     StatePending,
	}
	if o.detector != nil {
		o.detector.SetRemediator(o)
	}
	return o
}

// Phase returns the phase this orchestrator drives.
func (o *Orchestrator) Phase() phase.Phase {
	return o.phase
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastSnapshot returns the most recent progress snapshot, if any.
func (o *Orchestrator) LastSnapshot() (jobs.Snapshot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastSnapshot, o.hasSnapshot
}

// Start requests the first batch and begins polling. When the phase is
// already initialized or another start holds the lock it does nothing, logs
// a throttled diagnostic, and returns ErrAlreadyInitialized or an
// ErrLockContention error. A response that arrives after Reset or Cancel is
// discarded and reported as ErrStartSuperseded.
func (o *Orchestrator) Start(ctx context.Context, batchSize int, label string) error {
	logger := logging.WithContext(ctx, o.logger)
	if o.store.Initialized(o.phase) {
		o.ignoredStart(logger, "phase already running")
		return ErrAlreadyInitialized
	}
	claim, err := o.claimStart(batchSize)
	if err != nil {
		reason := "another start is in flight"
		if errors.Is(err, ErrAlreadyInitialized) {
			reason = "phase already running"
		}
		o.ignoredStart(logger, reason)
		return err
	}
	defer o.releaseStart(claim.token)
	o.announce(claim.from, StateStarting)

	logger.Info("starting phase",
		logging.String("label", label),
		logging.Int("batch_size", claim.batchSize),
	)

	result, err := o.runner.StartBatch(ctx, o.phase, claim.batchSize)
	if err != nil {
		o.mu.Lock()
		stale := o.generation != claim.gen
		from := o.state
		if !stale {
			o.state = StatePending
		}
		o.mu.Unlock()
		o.releaseStart(claim.token)
		if stale {
			logger.Debug("start failed after reset", logging.Error(err))
			return err
		}
		o.announce(from, StatePending)
		o.report(ctx, "start", err)
		return err
	}

	now := o.clock.Now()
	snap := jobs.Snapshot{
		BatchIndex:   result.BatchIndex,
		TotalBatches: result.TotalBatches,
		InProgress:   true,
		Status:       jobs.StatusRunning,
		Message:      result.Message,
		Timestamp:    now,
	}
	if o.detector != nil {
		o.detector.Rearm()
	}

	o.mu.Lock()
	if o.generation != claim.gen {
		o.mu.Unlock()
		o.releaseStart(claim.token)
		logger.Info("discarding late start response",
			logging.String(logging.FieldEventType, "start_superseded"),
			logging.Int(logging.FieldBatchIndex, result.BatchIndex),
		)
		return ErrStartSuperseded
	}
	o.store.SetInitialized(o.phase, true)
	o.label = label
	o.batchSize = claim.batchSize
	o.errorCount = 0
	o.startedAt = now
	o.lastSnapshot = snap
	o.hasSnapshot = true
	o.sampler.Reset()
	from := o.state
	o.state = StateRunning
	o.startPollingLocked()
	o.mu.Unlock()

	o.releaseStart(claim.token)
	o.announce(from, StateRunning)
	o.emitProgress(snap)

	logger.Info("phase started",
		logging.String(logging.FieldEventType, "phase_started"),
		logging.Int(logging.FieldBatchIndex, result.BatchIndex),
		logging.Int("total_batches", result.TotalBatches),
	)
	return nil
}

type startClaim struct {
	token     uint64
	gen       uint64
	batchSize int
	from      State
}

// claimStart takes the starting lock and moves the phase to Starting. The
// lock is only ever cleared through releaseStart with the returned token or
// by Reset, so a superseded start can never clear a newer holder's lock.
func (o *Orchestrator) claimStart(batchSize int) (startClaim, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.store.SetStarting(o.phase, true) {
		return startClaim{}, services.Wrap(services.ErrLockContention, string(o.phase), "start", "starting lock held", nil)
	}
	if o.store.Initialized(o.phase) {
		o.store.SetStarting(o.phase, false)
		return startClaim{}, ErrAlreadyInitialized
	}
	if batchSize <= 0 {
		batchSize = o.batchSize
	}
	o.startSeq++
	o.startOwner = o.startSeq
	claim := startClaim{token: o.startSeq, gen: o.generation, batchSize: batchSize, from: o.state}
	o.state = StateStarting
	return claim, nil
}

// releaseStart clears the starting lock if token still owns it. Calling it
// more than once is a no-op.
func (o *Orchestrator) releaseStart(token uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.startOwner != token {
		return
	}
	o.startOwner = 0
	o.store.SetStarting(o.phase, false)
}

func (o *Orchestrator) ignoredStart(logger *slog.Logger, reason string) {
	if !o.throttle.Allow("start") {
		return
	}
	logging.WarnWithContext(logger, "start ignored", "start_ignored",
		logging.String("reason", reason),
		logging.String(logging.FieldErrorHint, "wait for the running sync or reset the phase"),
		logging.String(logging.FieldImpact, "no new batch was requested"),
	)
}

// ProcessNextBatchAutomatically requests one more batch for a running phase.
// Overlapping calls are rejected with a notice; the processing flag is
// cleared on every exit path.
func (o *Orchestrator) ProcessNextBatchAutomatically(ctx context.Context) error {
	if !o.store.SetProcessingBatch(o.phase, true) {
		o.bus.Emit(events.NoticeEvent, events.Notice{
			Phase:   o.phase,
			Message: o.phase.Label() + ": batch processing already in progress",
		})
		return nil
	}
	defer o.store.SetProcessingBatch(o.phase, false)

	o.mu.Lock()
	current := o.state
	batchSize := o.batchSize
	o.mu.Unlock()
	if current != StateRunning {
		return fmt.Errorf("%w: cannot request next batch while %s", ErrInvalidState, current)
	}

	result, err := o.runner.StartBatch(ctx, o.phase, batchSize)
	if err != nil {
		o.report(ctx, "next batch", err)
		return err
	}
	logging.WithContext(ctx, o.logger).Info("next batch requested",
		logging.String(logging.FieldEventType, "batch_nudged"),
		logging.Int(logging.FieldBatchIndex, result.BatchIndex),
	)
	o.bus.Emit(events.NoticeEvent, events.Notice{
		Phase:   o.phase,
		Message: fmt.Sprintf("%s: requested next batch (%d/%d)", o.phase.Label(), result.BatchIndex, result.TotalBatches),
	})
	return nil
}

// Reset clears every flag, stops polling, and forgets stall history. Calling
// it repeatedly has the same effect as calling it once. A start still waiting
// on the server loses its lock and its response is discarded.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.generation++
	o.startOwner = 0
	o.errorCount = 0
	o.lastSnapshot = jobs.Snapshot{}
	o.hasSnapshot = false
	o.label = ""
	o.sampler.Reset()
	o.stopPolling()
	o.store.ResetPhase(o.phase)
	from := o.state
	o.state = StatePending
	o.mu.Unlock()

	if o.detector != nil {
		o.detector.ResetTrackingState()
	}
	o.throttle.Forget("start")
	o.throttle.Forget("progress-error")
	o.announce(from, StatePending)
}

// Cancel aborts a running or paused phase locally and, when the runner
// supports it, remotely.
func (o *Orchestrator) Cancel(ctx context.Context) error {
	o.mu.Lock()
	if !o.state.Active() {
		current := o.state
		o.mu.Unlock()
		return fmt.Errorf("%w: cannot cancel while %s", ErrInvalidState, current)
	}
	o.generation++
	o.stopPolling()
	o.store.SetInitialized(o.phase, false)
	o.store.SetProcessingBatch(o.phase, false)
	from := o.state
	o.state = StateCancelled
	o.mu.Unlock()
	o.announce(from, StateCancelled)

	if canceller, ok := o.runner.(jobs.Canceller); ok {
		if err := canceller.Cancel(ctx, o.phase); err != nil {
			o.report(ctx, "cancel", err)
			return err
		}
	}
	o.bus.Emit(events.NoticeEvent, events.Notice{Phase: o.phase, Message: o.phase.Label() + ": sync cancelled"})
	return nil
}

// Pause stops polling while keeping the phase initialized.
func (o *Orchestrator) Pause() error {
	if !o.phase.Pausable() {
		return ErrNotPausable
	}
	o.mu.Lock()
	if o.state != StateRunning {
		current := o.state
		o.mu.Unlock()
		return fmt.Errorf("%w: cannot pause while %s", ErrInvalidState, current)
	}
	o.generation++
	o.stopPolling()
	o.state = StatePaused
	o.mu.Unlock()

	o.announce(StateRunning, StatePaused)
	o.bus.Emit(events.NoticeEvent, events.Notice{Phase: o.phase, Message: o.phase.Label() + ": sync paused"})
	return nil
}

// Resume re-registers polling for a paused phase.
func (o *Orchestrator) Resume() error {
	if !o.phase.Pausable() {
		return ErrNotPausable
	}
	if o.detector != nil {
		o.detector.Rearm()
	}
	o.mu.Lock()
	if o.state != StatePaused {
		current := o.state
		o.mu.Unlock()
		return fmt.Errorf("%w: cannot resume while %s", ErrInvalidState, current)
	}
	o.state = StateRunning
	o.startPollingLocked()
	o.mu.Unlock()

	o.announce(StatePaused, StateRunning)
	o.bus.Emit(events.NoticeEvent, events.Notice{Phase: o.phase, Message: o.phase.Label() + ": sync resumed"})
	return nil
}

// Attach adopts a job that is already running on the server, as reported by
// snap. It is used at daemon startup so state is rebuilt from one fetch.
func (o *Orchestrator) Attach(snap jobs.Snapshot) bool {
	if !snap.InProgress || o.store.Initialized(o.phase) {
		return false
	}
	claim, err := o.claimStart(0)
	if err != nil {
		return false
	}
	defer o.releaseStart(claim.token)
	if o.detector != nil {
		o.detector.Rearm()
	}

	o.mu.Lock()
	if o.generation != claim.gen {
		o.mu.Unlock()
		return false
	}
	o.store.SetInitialized(o.phase, true)
	o.lastSnapshot = snap
	o.hasSnapshot = true
	o.startedAt = o.clock.Now()
	o.state = StateRunning
	o.startPollingLocked()
	o.mu.Unlock()

	o.releaseStart(claim.token)
	o.announce(claim.from, StateRunning)
	o.emitProgress(snap)
	o.logger.Info("attached to running sync",
		logging.String(logging.FieldEventType, "phase_resumed"),
		logging.Int(logging.FieldBatchIndex, snap.BatchIndex),
	)
	return true
}

// FollowPhase starts this phase whenever upstream reports completion. The
// Start guards make a duplicate or late event a no-op.
func (o *Orchestrator) FollowPhase(ctx context.Context, upstream phase.Phase, batchSize int) events.Subscription {
	return events.Subscribe(o.bus, events.PhaseCompletedEvent, func(evt events.PhaseCompleted) {
		if evt.Phase != upstream {
			return
		}
		chainCtx := services.WithTrigger(services.WithPhase(ctx, string(o.phase)), "chain")
		err := o.Start(chainCtx, batchSize, "after "+upstream.Label())
		if err != nil && !errors.Is(err, ErrAlreadyInitialized) && !errors.Is(err, services.ErrLockContention) && !errors.Is(err, ErrStartSuperseded) {
			o.logger.Debug("chained start failed", logging.Error(err))
		}
	})
}

// announce publishes a state change made under o.mu. It must be called
// without the lock held since listeners may call back into the orchestrator.
func (o *Orchestrator) announce(from, to State) {
	if from == to {
		return
	}
	o.logger.Debug("phase state changed",
		logging.String("from", string(from)),
		logging.String("to", string(to)),
	)
	o.bus.Emit(events.PhaseStateEvent, events.PhaseStateChanged{Phase: o.phase, From: string(from), To: string(to)})
}

func (o *Orchestrator) report(ctx context.Context, operation string, err error) {
	attrs := append([]logging.Attr{logging.String("operation", operation)}, logging.ErrorAttrs(err)...)
	logging.ErrorWithContext(logging.WithContext(ctx, o.logger), "sync request failed", "sync_error", attrs...)
	o.bus.Emit(events.SyncErrorEvent, events.SyncError{
		Phase:   o.phase,
		Message: err.Error(),
		Kind:    services.Kind(err),
	})
	o.reporter.Report(ctx, o.phase, err)
}
