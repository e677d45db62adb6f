package workflow

import (
	"context"
	"time"

	"shuttle/internal/journal"
	"shuttle/internal/logging"
	"shuttle/internal/orchestrator"
	"shuttle/internal/preflight"
	"shuttle/internal/scheduler"
	"shuttle/internal/telemetry"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running          bool                  `json:"running"`
	Mode             scheduler.Mode        `json:"mode"`
	Interval         time.Duration         `json:"interval"`
	InactiveProgress int                   `json:"inactive_progress"`
	LastError        string                `json:"last_error,omitempty"`
	SyncStartedAt    time.Time             `json:"sync_started_at,omitzero"`
	Phases           []orchestrator.Status `json:"phases"`
	Tasks            []scheduler.TaskInfo  `json:"tasks,omitempty"`
	Preflight        []preflight.Result    `json:"preflight,omitempty"`
	Metrics          []telemetry.Reading   `json:"metrics,omitempty"`
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:       m.running,
		SyncStartedAt: m.syncStart,
		Preflight:     append([]preflight.Result(nil), m.checks...),
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	m.mu.RUnlock()

	summary.Mode = m.sched.Mode()
	summary.Interval = m.sched.CurrentInterval()
	summary.InactiveProgress = m.store.InactiveProgressCounter()
	summary.Tasks = m.sched.Tasks()
	for _, p := range m.order {
		summary.Phases = append(summary.Phases, m.phases[p].Status())
	}

	readings, err := m.provider.Collect(ctx)
	if err != nil {
		m.logger.Warn("failed to collect metrics", logging.Error(err))
	}
	summary.Metrics = readings
	return summary
}

// History returns journal entries, newest first. It returns nothing when the
// journal is disabled.
func (m *Manager) History(ctx context.Context, filter journal.Filter) ([]journal.Entry, error) {
	if m.journal == nil {
		return nil, nil
	}
	return m.journal.List(ctx, filter)
}
