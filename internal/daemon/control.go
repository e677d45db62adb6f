package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"shuttle/internal/orchestrator"
	"shuttle/internal/phase"
	"shuttle/internal/services"
	"shuttle/internal/workflow"
)

// Action names an operator control applied to one phase.
type Action string

const (
	ActionStart  Action = "start"
	ActionReset  Action = "reset"
	ActionCancel Action = "cancel"
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionNudge  Action = "nudge"
)

// ErrUnknownAction is returned for an unrecognized control name.
var ErrUnknownAction = errors.New("unknown action")

// ParseAction converts a user-supplied action name.
func ParseAction(value string) (Action, bool) {
	switch action := Action(strings.ToLower(strings.TrimSpace(value))); action {
	case ActionStart, ActionReset, ActionCancel, ActionPause, ActionResume, ActionNudge:
		return action, true
	default:
		return "", false
	}
}

// ControlResult reports the outcome of a phase control.
type ControlResult struct {
	Phase     phase.Phase        `json:"phase"`
	Action    Action             `json:"action"`
	State     orchestrator.State `json:"state"`
	RequestID string             `json:"request_id,omitempty"`
	Message   string             `json:"message"`
}

// Control applies action to p. batchSize is only used by ActionStart; a
// non-positive value uses the configured size.
func (d *Daemon) Control(ctx context.Context, p phase.Phase, action Action, batchSize int) (ControlResult, error) {
	result := ControlResult{Phase: p, Action: action}
	var err error
	switch action {
	case ActionStart:
		result.RequestID, err = d.workflow.StartPhase(ctx, p, batchSize)
	case ActionReset:
		err = d.workflow.ResetPhase(p)
	case ActionCancel:
		err = d.workflow.CancelPhase(ctx, p)
	case ActionPause:
		err = d.workflow.PausePhase(p)
	case ActionResume:
		err = d.workflow.ResumePhase(p)
	case ActionNudge:
		err = d.workflow.NudgePhase(ctx, p)
	default:
		return result, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if orch, lookupErr := d.workflow.Orchestrator(p); lookupErr == nil {
		result.State = orch.State()
	}
	if err != nil {
		result.Message = err.Error()
		return result, err
	}
	result.Message = fmt.Sprintf("%s %s accepted", p.Label(), action)
	return result, nil
}

// controlStatus maps a control error onto an HTTP status code.
func controlStatus(err error) int {
	switch {
	case errors.Is(err, workflow.ErrUnknownPhase), errors.Is(err, ErrUnknownAction):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrNotRunning),
		errors.Is(err, orchestrator.ErrAlreadyInitialized),
		errors.Is(err, orchestrator.ErrInvalidState),
		errors.Is(err, orchestrator.ErrNotPausable),
		errors.Is(err, services.ErrLockContention):
		return http.StatusConflict
	case errors.Is(err, services.ErrTransport), errors.Is(err, services.ErrApplication):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
