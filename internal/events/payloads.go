package events

import (
	"time"

	"shuttle/internal/jobs"
	"shuttle/internal/phase"
	"shuttle/internal/services"
)

// SyncProgress carries one validated progress snapshot. Phase1Status is the
// last known images status, so a products listener can render both phases.
type SyncProgress struct {
	Phase        phase.Phase   `json:"phase"`
	Snapshot     jobs.Snapshot `json:"snapshot"`
	Phase1Status string        `json:"phase1_status,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// SyncError reports a transport or application failure for a phase.
type SyncError struct {
	Phase   phase.Phase        `json:"phase"`
	Message string             `json:"message"`
	Kind    services.ErrorKind `json:"kind"`
}

// PhaseCompleted fires once when a phase's remote job reports completion.
type PhaseCompleted struct {
	Phase     phase.Phase `json:"phase"`
	Status    string      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
}

// Notice is an informational, user-facing message.
type Notice struct {
	Phase   phase.Phase `json:"phase"`
	Message string      `json:"message"`
}

// StallDetected fires once per stall episode.
type StallDetected struct {
	Phase      phase.Phase   `json:"phase"`
	Idle       time.Duration `json:"idle"`
	Threshold  time.Duration `json:"threshold"`
	BatchIndex int           `json:"batch_index"`
}

// PhaseStateChanged reports an orchestrator state transition.
type PhaseStateChanged struct {
	Phase phase.Phase `json:"phase"`
	From  string      `json:"from"`
	To    string      `json:"to"`
}
