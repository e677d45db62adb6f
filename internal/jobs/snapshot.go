package jobs

import (
	"fmt"
	"strings"
	"time"

	"shuttle/internal/services"
)

// Status values reported in Snapshot.Status after normalization.
const (
	StatusIdle      = "idle"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Snapshot is one validated progress reading for a phase.
type Snapshot struct {
	BatchIndex     int       `json:"batch_index"`
	TotalBatches   int       `json:"total_batches"`
	ItemsProcessed int       `json:"items_processed"`
	ItemsTotal     int       `json:"items_total"`
	InProgress     bool      `json:"in_progress"`
	Completed      bool      `json:"completed"`
	Status         string    `json:"status"`
	Message        string    `json:"message,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Percent returns items processed as a percentage, or -1 when the total is unknown.
func (s Snapshot) Percent() float64 {
	if s.ItemsTotal <= 0 {
		if s.Completed {
			return 100
		}
		return -1
	}
	return float64(s.ItemsProcessed) * 100 / float64(s.ItemsTotal)
}

// normalize validates counters and reconciles the status flags. Completion
// wins over in-progress; processed is clamped to a known total.
func (s *Snapshot) normalize(phaseName string) error {
	if s.BatchIndex < 0 || s.TotalBatches < 0 || s.ItemsProcessed < 0 || s.ItemsTotal < 0 {
		return services.Wrap(services.ErrValidation, phaseName, "parse progress",
			fmt.Sprintf("negative counter in progress payload (batch=%d total_batches=%d processed=%d total=%d)",
				s.BatchIndex, s.TotalBatches, s.ItemsProcessed, s.ItemsTotal), nil)
	}
	if s.ItemsTotal > 0 && s.ItemsProcessed > s.ItemsTotal {
		s.ItemsProcessed = s.ItemsTotal
	}

	status := strings.ToLower(strings.TrimSpace(s.Status))
	switch status {
	case "complete", "completed", "done", "finished":
		s.Completed = true
	case "running", "processing", "in_progress", "active":
		if !s.Completed {
			s.InProgress = true
		}
	case "cancelled", "canceled":
		status = StatusCancelled
		s.InProgress = false
	case "failed", "error":
		status = StatusFailed
		s.InProgress = false
	}
	if s.Completed {
		s.InProgress = false
	}

	switch {
	case s.Completed:
		s.Status = StatusCompleted
	case s.InProgress:
		s.Status = StatusRunning
	case status == StatusCancelled || status == StatusFailed:
		s.Status = status
	default:
		s.Status = StatusIdle
	}
	s.Message = strings.TrimSpace(s.Message)
	return nil
}

// BatchResult is the server's acknowledgement of a start request.
type BatchResult struct {
	BatchIndex   int    `json:"batch_index"`
	TotalBatches int    `json:"total_batches"`
	Message      string `json:"message,omitempty"`
}
