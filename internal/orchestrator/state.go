package orchestrator

// State is the lifecycle position of one phase.
type State string

const (
	StatePending   State = "pending"
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCancelled State = "cancelled"
	StateCompleted State = "completed"
	StateError     State = "error"
)

// Active reports whether the phase has a live remote job.
func (s State) Active() bool {
	return s == StateRunning || s == StatePaused
}

// Terminal reports whether the phase finished (successfully or not) and can be started again.
func (s State) Terminal() bool {
	switch s {
	case StateCancelled, StateCompleted, StateError:
		return true
	default:
		return false
	}
}
