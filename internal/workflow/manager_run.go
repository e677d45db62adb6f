package workflow

import (
	"context"
	"time"

	"shuttle/internal/events"
	"shuttle/internal/logging"
	"shuttle/internal/phase"
	"shuttle/internal/services"
)

const (
	journalRetentionTask     = "journal-retention"
	journalRetentionInterval = time.Hour
)

// Start runs preflight checks, subscribes the event recorder, wires phase
// chaining, and re-attaches to jobs the server still reports as running.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.runCtx = runCtx
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	m.runPreflight(runCtx)

	subs := m.subscribeRecorder()
	if m.cfg.Workflow.ChainPhases {
		for i := 1; i < len(m.order); i++ {
			downstream := m.phases[m.order[i]]
			subs = append(subs, downstream.FollowPhase(runCtx, m.order[i-1], m.cfg.Workflow.BatchSize(string(m.order[i]))))
		}
	}
	m.mu.Lock()
	m.subs = subs
	m.mu.Unlock()

	if m.cfg.Workflow.ResumeOnStart {
		m.resume(runCtx)
	}

	if m.journal != nil && m.cfg.Journal.RetentionDays > 0 {
		m.pruneJournal(runCtx)
		m.sched.StartPolling(journalRetentionTask, func(taskCtx context.Context) error {
			m.pruneJournal(taskCtx)
			return nil
		}, journalRetentionInterval)
	}

	m.logger.Info("workflow started",
		logging.String(logging.FieldEventType, "workflow_started"),
		logging.Bool("chain_phases", m.cfg.Workflow.ChainPhases),
		logging.Bool("resume_on_start", m.cfg.Workflow.ResumeOnStart),
	)
	return nil
}

// Stop halts local polling and waits for in-flight notifications. Remote jobs
// keep running; a later Start re-attaches to them.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	subs := m.subs
	m.running = false
	m.cancel = nil
	m.subs = nil
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	for _, p := range m.order {
		m.phases[p].Reset()
	}
	m.sched.StopAll()
	cancel()
	m.notifyWG.Wait()

	m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_stopped"))
}

// Close stops the manager and releases the scheduler. The manager cannot be
// restarted afterwards.
func (m *Manager) Close() {
	m.Stop()
	m.sched.Close()
}

// resume fetches progress once per phase and adopts any job still running.
func (m *Manager) resume(ctx context.Context) {
	for _, p := range m.order {
		fetchCtx := services.WithTrigger(services.WithPhase(ctx, string(p)), "resume")
		logger := logging.WithContext(fetchCtx, m.logger)

		fetchCtx, cancel := context.WithTimeout(fetchCtx, m.cfg.Runner.Timeout())
		snap, err := m.runner.Progress(fetchCtx, p)
		cancel()
		if err != nil {
			logger.Warn("resume progress fetch failed; phase left pending",
				logging.Error(err),
				logging.String(logging.FieldEventType, "resume_fetch_failed"),
				logging.String(logging.FieldErrorHint, "check runner endpoint and nonce"),
				logging.String(logging.FieldImpact, "a running server job will not be tracked until started again"),
			)
			continue
		}
		if m.phases[p].Attach(snap) {
			m.bus.Emit(events.NoticeEvent, events.Notice{Phase: p, Message: p.Label() + ": resumed tracking of running sync"})
			continue
		}
		logger.Debug("no running job to resume", logging.String("status", snap.Status))
	}
}

func (m *Manager) pruneJournal(ctx context.Context) {
	cutoff := m.clock.Now().Add(-time.Duration(m.cfg.Journal.RetentionDays) * 24 * time.Hour)
	removed, err := m.journal.Prune(ctx, cutoff)
	if err != nil {
		m.logger.Warn("journal pruning failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "journal_prune_failed"),
			logging.String(logging.FieldErrorHint, "check state directory permissions"),
			logging.String(logging.FieldImpact, "journal may grow beyond retention"),
		)
		return
	}
	if removed > 0 {
		m.logger.Info("journal pruned",
			logging.Int64("removed", removed),
			logging.String(logging.FieldEventType, "journal_pruned"),
		)
	}
}

func (m *Manager) runPreflight(ctx context.Context) {
	if m.preflight == nil {
		return
	}
	results := m.preflight(ctx, m.cfg)
	m.mu.Lock()
	m.checks = results
	m.mu.Unlock()

	for _, r := range results {
		if r.Passed {
			m.logger.Debug("preflight check passed", logging.String("check", r.Name), logging.String("detail", r.Detail))
			continue
		}
		logging.WarnWithContext(m.logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "fix the reported path or endpoint, then restart the daemon"),
			logging.String(logging.FieldImpact, "sync requests may fail until resolved"),
		)
	}
}

// phaseContext tags ctx with the phase and trigger for logging.
func phaseContext(ctx context.Context, p phase.Phase, trigger string) context.Context {
	return services.WithTrigger(services.WithPhase(ctx, string(p)), trigger)
}
