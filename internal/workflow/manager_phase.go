package workflow

import (
	"context"

	"github.com/google/uuid"

	"shuttle/internal/logging"
	"shuttle/internal/orchestrator"
	"shuttle/internal/phase"
	"shuttle/internal/services"
)

// StartPhase asks the server to begin p. A non-positive batchSize uses the
// configured size. The returned request ID tags every log line of the start.
func (m *Manager) StartPhase(ctx context.Context, p phase.Phase, batchSize int) (string, error) {
	orch, err := m.control(p)
	if err != nil {
		return "", err
	}
	requestID := uuid.NewString()
	ctx = services.WithRequestID(phaseContext(ctx, p, "operator"), requestID)
	logging.WithContext(ctx, m.logger).Info("operator start requested",
		logging.String(logging.FieldEventType, "phase_start_requested"),
		logging.Int("batch_size", batchSize),
	)
	return requestID, orch.Start(ctx, batchSize, "manual")
}

// ResetPhase clears local state for p without contacting the server.
func (m *Manager) ResetPhase(p phase.Phase) error {
	orch, err := m.control(p)
	if err != nil {
		return err
	}
	orch.Reset()
	return nil
}

// CancelPhase aborts p locally and on the server.
func (m *Manager) CancelPhase(ctx context.Context, p phase.Phase) error {
	orch, err := m.control(p)
	if err != nil {
		return err
	}
	return orch.Cancel(phaseContext(ctx, p, "operator"))
}

// PausePhase suspends polling for p.
func (m *Manager) PausePhase(p phase.Phase) error {
	orch, err := m.control(p)
	if err != nil {
		return err
	}
	return orch.Pause()
}

// ResumePhase restarts polling for a paused p.
func (m *Manager) ResumePhase(p phase.Phase) error {
	orch, err := m.control(p)
	if err != nil {
		return err
	}
	return orch.Resume()
}

// NudgePhase requests the next batch for a running p, the same remediation
// the stall detector applies.
func (m *Manager) NudgePhase(ctx context.Context, p phase.Phase) error {
	orch, err := m.control(p)
	if err != nil {
		return err
	}
	return orch.ProcessNextBatchAutomatically(phaseContext(ctx, p, "operator"))
}

func (m *Manager) control(p phase.Phase) (*orchestrator.Orchestrator, error) {
	orch, err := m.Orchestrator(p)
	if err != nil {
		return nil, err
	}
	if !m.Running() {
		return nil, ErrNotRunning
	}
	return orch, nil
}
