package ipc

import (
	"shuttle/internal/daemon"
	"shuttle/internal/journal"
)

// StartRequest asks the daemon to begin driving the sync workflow.
type StartRequest struct{}

// StartResponse indicates whether the workflow was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest asks the daemon to stop the workflow.
type StopRequest struct{}

// StopResponse reports whether the daemon was running when asked to stop.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest retrieves daemon state.
type StatusRequest struct{}

// StatusResponse mirrors the daemon status snapshot.
type StatusResponse = daemon.Status

// PhaseRequest addresses one phase. BatchSize only applies to start and
// falls back to the configured size when zero.
type PhaseRequest struct {
	Phase     string `json:"phase"`
	BatchSize int    `json:"batch_size,omitempty"`
}

// PhaseResponse reports the phase state after a control action.
type PhaseResponse = daemon.ControlResult

// HistoryRequest filters journal entries. Since is RFC3339 when set.
type HistoryRequest struct {
	Phase string `json:"phase,omitempty"`
	Event string `json:"event,omitempty"`
	Limit int    `json:"limit,omitempty"`
	Since string `json:"since,omitempty"`
}

// HistoryResponse lists journal entries, newest first.
type HistoryResponse struct {
	Entries []journal.Entry `json:"entries"`
}

// LogTailRequest requests daemon log lines.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the offset for the next request.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationRequest triggers a test ntfy message.
type TestNotificationRequest struct{}

// TestNotificationResponse captures the outcome of a test notification.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
