package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"shuttle/internal/config"
	"shuttle/internal/events"
	"shuttle/internal/jobs"
	"shuttle/internal/journal"
	"shuttle/internal/notifications"
	"shuttle/internal/orchestrator"
	"shuttle/internal/phase"
	"shuttle/internal/preflight"
	"shuttle/internal/services"
	"shuttle/internal/telemetry"
	"shuttle/internal/testsupport"
	"shuttle/internal/workflow"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type published struct {
	event   notifications.Event
	payload notifications.Payload
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []published
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, published{event: event, payload: payload})
	return nil
}

func (n *recordingNotifier) count(event notifications.Event) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, p := range n.sent {
		if p.event == event {
			total++
		}
	}
	return total
}

func (n *recordingNotifier) payload(event notifications.Event) notifications.Payload {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.sent {
		if p.event == event {
			return p.payload
		}
	}
	return nil
}

type managerHarness struct {
	cfg      *config.Config
	clock    *clocktesting.FakeClock
	runner   *testsupport.FakeRunner
	notifier *recordingNotifier
	manager  *workflow.Manager
}

func fastPolling(cfg *config.Config) {
	cfg.Polling = config.Polling{Fast: 1, Active: 1, Normal: 1, Slow: 1, Idle: 1}
	cfg.Stall.Enabled = false
}

func newManagerHarness(t *testing.T, opts ...testsupport.ConfigOption) *managerHarness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	fastPolling(cfg)

	h := &managerHarness{
		cfg:      cfg,
		clock:    clocktesting.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		runner:   testsupport.NewFakeRunner(),
		notifier: &recordingNotifier{},
	}
	h.manager = workflow.NewManager(cfg, h.runner, nil,
		workflow.WithClock(h.clock),
		workflow.WithNotifier(h.notifier),
		workflow.WithJournal(testsupport.MustOpenJournal(t, cfg)),
		workflow.WithMetrics(telemetry.NewProvider(true)),
		workflow.WithPreflight(func(context.Context, *config.Config) []preflight.Result {
			return []preflight.Result{{Name: "State directory", Passed: true, Detail: "ok"}}
		}),
	)
	t.Cleanup(h.manager.Close)
	return h
}

func (h *managerHarness) step(t *testing.T, p phase.Phase) {
	t.Helper()
	want := h.runner.ProgressCalls(p) + 1
	h.clock.Step(time.Second)
	require.Eventually(t, func() bool { return h.runner.ProgressCalls(p) >= want }, waitFor, tick)
}

// waitPolling blocks until p has a registered poll task, so a following
// clock step reaches its ticker.
func (h *managerHarness) waitPolling(t *testing.T, p phase.Phase) {
	t.Helper()
	orch, err := h.manager.Orchestrator(p)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return orch.Status().Polling }, waitFor, tick)
}

func (h *managerHarness) phaseState(t *testing.T, p phase.Phase) orchestrator.State {
	t.Helper()
	orch, err := h.manager.Orchestrator(p)
	require.NoError(t, err)
	return orch.State()
}

func (h *managerHarness) history(t *testing.T, filter journal.Filter) []journal.Entry {
	t.Helper()
	entries, err := h.manager.History(context.Background(), filter)
	require.NoError(t, err)
	return entries
}

func metricValue(readings []telemetry.Reading, name string) float64 {
	total := 0.0
	for _, r := range readings {
		if r.Name == name {
			total += r.Value
		}
	}
	return total
}

func TestControlsRequireRunningManager(t *testing.T) {
	t.Parallel()
	h := newManagerHarness(t, testsupport.WithoutResume())

	_, err := h.manager.StartPhase(context.Background(), phase.Images, 0)
	require.ErrorIs(t, err, workflow.ErrNotRunning)
	require.ErrorIs(t, h.manager.PausePhase(phase.Products), workflow.ErrNotRunning)

	require.NoError(t, h.manager.Start(context.Background()))
	require.ErrorIs(t, h.manager.Start(context.Background()), workflow.ErrAlreadyRunning)
	_, err = h.manager.StartPhase(context.Background(), phase.Phase("orders"), 0)
	require.ErrorIs(t, err, workflow.ErrUnknownPhase)
	require.ErrorIs(t, h.manager.PausePhase(phase.Images), orchestrator.ErrNotPausable)
	assert.Zero(t, h.runner.StartCalls(phase.Images))
}

func TestFullSyncChainsPhasesAndRecordsHistory(t *testing.T) {
	t.Parallel()
	h := newManagerHarness(t, testsupport.WithoutResume())
	h.runner.SetResult(phase.Images, jobs.BatchResult{BatchIndex: 1, TotalBatches: 2})
	h.runner.QueueProgress(phase.Images,
		jobs.Snapshot{BatchIndex: 1, TotalBatches: 2, ItemsProcessed: 5, ItemsTotal: 10, InProgress: true, Status: jobs.StatusRunning},
		jobs.Snapshot{BatchIndex: 2, TotalBatches: 2, ItemsProcessed: 10, ItemsTotal: 10, Completed: true, Status: jobs.StatusCompleted},
	)
	h.runner.QueueProgress(phase.Products,
		jobs.Snapshot{BatchIndex: 1, TotalBatches: 1, ItemsProcessed: 40, ItemsTotal: 40, Completed: true, Status: jobs.StatusCompleted},
	)
	require.NoError(t, h.manager.Start(context.Background()))

	requestID, err := h.manager.StartPhase(context.Background(), phase.Images, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, requestID)

	h.step(t, phase.Images)
	h.step(t, phase.Images)
	require.Eventually(t, func() bool { return h.runner.StartCalls(phase.Products) == 1 }, waitFor, tick)
	h.waitPolling(t, phase.Products)
	h.step(t, phase.Products)
	require.Eventually(t, func() bool { return h.phaseState(t, phase.Products) == orchestrator.StateCompleted }, waitFor, tick)

	assert.Equal(t, orchestrator.StateCompleted, h.phaseState(t, phase.Images))
	assert.Equal(t, []int{h.cfg.Workflow.ImageBatchSize, h.cfg.Workflow.ProductBatchSize}, h.runner.BatchSizes())

	require.Eventually(t, func() bool { return h.notifier.count(notifications.EventSyncCompleted) == 1 }, waitFor, tick)
	assert.Equal(t, 2, h.notifier.count(notifications.EventPhaseCompleted))
	assert.Equal(t, 3*time.Second, h.notifier.payload(notifications.EventSyncCompleted)["duration"])

	completions := h.history(t, journal.Filter{Event: string(events.PhaseCompletedEvent)})
	require.Len(t, completions, 2)
	assert.Equal(t, string(phase.Products), completions[0].Phase)
	assert.Equal(t, string(phase.Images), completions[1].Phase)

	batches := h.history(t, journal.Filter{Phase: string(phase.Images), Event: workflow.BatchStartedEvent})
	require.Len(t, batches, 2)
	assert.Equal(t, "batch 2 of 2", batches[0].Message)

	status := h.manager.Status(context.Background())
	assert.True(t, status.Running)
	assert.Equal(t, 2.0, metricValue(status.Metrics, "shuttle_phase_completions_total"))
	assert.Equal(t, 3.0, metricValue(status.Metrics, "shuttle_batches_started_total"))
	require.Len(t, status.Phases, 2)
	assert.False(t, status.Phases[0].Polling)
	assert.False(t, status.Phases[1].Polling)
}

func TestChainingDisabledLeavesProductsPending(t *testing.T) {
	t.Parallel()
	h := newManagerHarness(t, testsupport.WithoutResume(), testsupport.WithoutChaining())
	h.runner.QueueProgress(phase.Images, jobs.Snapshot{BatchIndex: 1, TotalBatches: 1, Completed: true, Status: jobs.StatusCompleted})
	require.NoError(t, h.manager.Start(context.Background()))

	_, err := h.manager.StartPhase(context.Background(), phase.Images, 5)
	require.NoError(t, err)
	h.step(t, phase.Images)
	require.Eventually(t, func() bool { return h.phaseState(t, phase.Images) == orchestrator.StateCompleted }, waitFor, tick)

	assert.Zero(t, h.runner.StartCalls(phase.Products))
	assert.Equal(t, orchestrator.StatePending, h.phaseState(t, phase.Products))
	assert.Zero(t, h.notifier.count(notifications.EventSyncCompleted))
}

func TestNotificationsAfterStopAreDropped(t *testing.T) {
	t.Parallel()
	h := newManagerHarness(t, testsupport.WithoutResume())

	// Registered before Start so it runs ahead of the manager's own listener
	// and holds the emit open while Stop completes.
	entered := make(chan struct{})
	proceed := make(chan struct{})
	h.manager.Bus().On(events.SyncErrorEvent, func(any) {
		close(entered)
		<-proceed
	})
	require.NoError(t, h.manager.Start(context.Background()))

	emitted := make(chan struct{})
	go func() {
		defer close(emitted)
		h.manager.Bus().Emit(events.SyncErrorEvent, events.SyncError{Phase: phase.Images, Message: "late failure", Kind: services.KindTransport})
	}()
	select {
	case <-entered:
	case <-time.After(waitFor):
		t.Fatal("error event was not delivered")
	}

	h.manager.Stop()
	close(proceed)
	select {
	case <-emitted:
	case <-time.After(waitFor):
		t.Fatal("emit did not finish")
	}

	assert.Never(t, func() bool { return h.notifier.count(notifications.EventSyncError) > 0 }, 50*time.Millisecond, tick)
	assert.False(t, h.manager.Running())
}

func TestStartFailureIsJournaledAndNotifiedOnce(t *testing.T) {
	t.Parallel()
	h := newManagerHarness(t, testsupport.WithoutResume())
	h.runner.FailStart(phase.Images, services.Wrap(services.ErrTransport, "images", "start", "connection refused", nil))
	require.NoError(t, h.manager.Start(context.Background()))

	for i := 0; i < 2; i++ {
		_, err := h.manager.StartPhase(context.Background(), phase.Images, 0)
		require.Error(t, err)
		assert.True(t, errors.Is(err, services.ErrTransport))
	}

	errorsLogged := h.history(t, journal.Filter{Event: string(events.SyncErrorEvent)})
	assert.Len(t, errorsLogged, 2)

	require.Eventually(t, func() bool { return h.notifier.count(notifications.EventSyncError) == 1 }, waitFor, tick)
	assert.Never(t, func() bool { return h.notifier.count(notifications.EventSyncError) > 1 }, 50*time.Millisecond, tick)

	status := h.manager.Status(context.Background())
	assert.Contains(t, status.LastError, "connection refused")
	assert.Equal(t, 2.0, metricValue(status.Metrics, "shuttle_sync_errors_total"))
	assert.Equal(t, orchestrator.StatePending, h.phaseState(t, phase.Images))
}

func TestResumeOnStartAttachesRunningJobs(t *testing.T) {
	t.Parallel()
	h := newManagerHarness(t)
	h.runner.QueueProgress(phase.Images, jobs.Snapshot{BatchIndex: 3, TotalBatches: 5, InProgress: true, Status: jobs.StatusRunning})
	h.runner.QueueProgress(phase.Products, jobs.Snapshot{Status: jobs.StatusIdle})

	require.NoError(t, h.manager.Start(context.Background()))

	assert.Equal(t, orchestrator.StateRunning, h.phaseState(t, phase.Images))
	assert.Equal(t, orchestrator.StatePending, h.phaseState(t, phase.Products))
	assert.Zero(t, h.runner.StartCalls(phase.Images))
	assert.Equal(t, 1, h.runner.ProgressCalls(phase.Products))

	status := h.manager.Status(context.Background())
	assert.True(t, status.Phases[0].Polling)
	assert.False(t, status.Phases[1].Polling)

	notices := h.history(t, journal.Filter{Event: string(events.NoticeEvent)})
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0].Message, "resumed")

	h.step(t, phase.Images)
}

func TestStopHaltsPollingAndAllowsRestart(t *testing.T) {
	t.Parallel()
	h := newManagerHarness(t, testsupport.WithoutResume())
	require.NoError(t, h.manager.Start(context.Background()))
	_, err := h.manager.StartPhase(context.Background(), phase.Images, 0)
	require.NoError(t, err)

	h.manager.Stop()
	h.manager.Stop()
	assert.False(t, h.manager.Running())
	status := h.manager.Status(context.Background())
	assert.Empty(t, status.Tasks)
	assert.Equal(t, orchestrator.StatePending, h.phaseState(t, phase.Images))

	require.NoError(t, h.manager.Start(context.Background()))
	_, err = h.manager.StartPhase(context.Background(), phase.Images, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, h.runner.StartCalls(phase.Images))
}

func TestPhaseControlsRouteToOrchestrators(t *testing.T) {
	t.Parallel()
	h := newManagerHarness(t, testsupport.WithoutResume(), testsupport.WithoutChaining())
	require.NoError(t, h.manager.Start(context.Background()))

	_, err := h.manager.StartPhase(context.Background(), phase.Products, 0)
	require.NoError(t, err)
	require.NoError(t, h.manager.PausePhase(phase.Products))
	assert.Equal(t, orchestrator.StatePaused, h.phaseState(t, phase.Products))
	require.NoError(t, h.manager.ResumePhase(phase.Products))
	assert.Equal(t, orchestrator.StateRunning, h.phaseState(t, phase.Products))

	require.NoError(t, h.manager.NudgePhase(context.Background(), phase.Products))
	assert.Equal(t, 2, h.runner.StartCalls(phase.Products))

	require.NoError(t, h.manager.CancelPhase(context.Background(), phase.Products))
	assert.Equal(t, orchestrator.StateCancelled, h.phaseState(t, phase.Products))
	assert.Equal(t, 1, h.runner.CancelCalls(phase.Products))

	require.NoError(t, h.manager.ResetPhase(phase.Products))
	assert.Equal(t, orchestrator.StatePending, h.phaseState(t, phase.Products))

	states := h.history(t, journal.Filter{Phase: string(phase.Products), Event: string(events.PhaseStateEvent)})
	assert.NotEmpty(t, states)
}

func TestTestNotificationPublishes(t *testing.T) {
	t.Parallel()
	h := newManagerHarness(t)
	require.NoError(t, h.manager.TestNotification(context.Background()))
	assert.Equal(t, 1, h.notifier.count(notifications.EventTestNotification))
}
