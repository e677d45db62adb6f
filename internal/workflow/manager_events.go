package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"shuttle/internal/events"
	"shuttle/internal/journal"
	"shuttle/internal/logging"
	"shuttle/internal/notifications"
	"shuttle/internal/orchestrator"
	"shuttle/internal/phase"
)

// BatchStartedEvent is the journal event name for a server batch index change.
const BatchStartedEvent = "batchStarted"

type batchMark struct {
	index int
	at    time.Time
}

// subscribeRecorder mirrors bus events into the journal, metrics and
// notifications. Listeners run on the emitting goroutine; notifications are
// sent asynchronously.
func (m *Manager) subscribeRecorder() []events.Subscription {
	return []events.Subscription{
		events.Subscribe(m.bus, events.PhaseStateEvent, m.onPhaseState),
		events.Subscribe(m.bus, events.SyncProgressEvent, m.onProgress),
		events.Subscribe(m.bus, events.PhaseCompletedEvent, m.onPhaseCompleted),
		events.Subscribe(m.bus, events.StallDetectedEvent, m.onStall),
		events.Subscribe(m.bus, events.SyncErrorEvent, m.onSyncError),
		events.Subscribe(m.bus, events.NoticeEvent, m.onNotice),
	}
}

func (m *Manager) onPhaseState(evt events.PhaseStateChanged) {
	m.record(evt.Phase, string(events.PhaseStateEvent), 0, evt.From+" -> "+evt.To, evt)

	to := orchestrator.State(evt.To)
	m.mu.Lock()
	switch {
	case to == orchestrator.StateRunning && orchestrator.State(evt.From) != orchestrator.StatePaused:
		delete(m.batchMarks, evt.Phase)
		if len(m.order) > 0 && evt.Phase == m.order[0] {
			m.syncStart = m.clock.Now()
		}
	case to == orchestrator.StatePending || to == orchestrator.StateCancelled || to == orchestrator.StateError:
		delete(m.batchMarks, evt.Phase)
	}
	m.mu.Unlock()
}

func (m *Manager) onProgress(evt events.SyncProgress) {
	index := evt.Snapshot.BatchIndex
	if index <= 0 {
		return
	}
	now := m.clock.Now()
	m.mu.Lock()
	prev, seen := m.batchMarks[evt.Phase]
	if seen && prev.index == index {
		m.mu.Unlock()
		return
	}
	m.batchMarks[evt.Phase] = batchMark{index: index, at: now}
	m.mu.Unlock()

	ctx := m.runContext()
	if seen {
		m.metrics.RecordBatchDuration(ctx, string(evt.Phase), now.Sub(prev.at))
	}
	m.metrics.RecordBatchStarted(ctx, string(evt.Phase))
	message := fmt.Sprintf("batch %d", index)
	if evt.Snapshot.TotalBatches > 0 {
		message = fmt.Sprintf("batch %d of %d", index, evt.Snapshot.TotalBatches)
	}
	m.record(evt.Phase, BatchStartedEvent, index, message, evt.Snapshot)
}

func (m *Manager) onPhaseCompleted(evt events.PhaseCompleted) {
	ctx := m.runContext()
	now := m.clock.Now()

	m.mu.Lock()
	mark, seen := m.batchMarks[evt.Phase]
	delete(m.batchMarks, evt.Phase)
	syncStart := m.syncStart
	m.mu.Unlock()

	if seen {
		m.metrics.RecordBatchDuration(ctx, string(evt.Phase), now.Sub(mark.at))
	}
	m.metrics.RecordCompletion(ctx, string(evt.Phase))

	batches := 0
	if orch, ok := m.phases[evt.Phase]; ok {
		if snap, ok := orch.LastSnapshot(); ok {
			batches = snap.TotalBatches
		}
	}
	m.record(evt.Phase, string(events.PhaseCompletedEvent), mark.index, evt.Phase.Label()+" completed", evt)
	m.notify(notifications.EventPhaseCompleted, notifications.Payload{
		"phase":   evt.Phase.Label(),
		"batches": batches,
	})

	if len(m.order) == 0 || evt.Phase != m.order[len(m.order)-1] {
		return
	}
	payload := notifications.Payload{}
	if !syncStart.IsZero() {
		payload["duration"] = now.Sub(syncStart)
	}
	m.notify(notifications.EventSyncCompleted, payload)
}

func (m *Manager) onStall(evt events.StallDetected) {
	m.metrics.RecordStall(m.runContext(), string(evt.Phase))
	message := fmt.Sprintf("no batch progress for %s (threshold %s)", evt.Idle.Round(time.Second), evt.Threshold.Round(time.Second))
	m.record(evt.Phase, string(events.StallDetectedEvent), evt.BatchIndex, message, evt)
	m.notify(notifications.EventStallDetected, notifications.Payload{
		"phase": evt.Phase.Label(),
		"batch": evt.BatchIndex,
		"idle":  evt.Idle,
	})
}

func (m *Manager) onSyncError(evt events.SyncError) {
	m.metrics.RecordError(m.runContext(), string(evt.Phase), string(evt.Kind))
	m.record(evt.Phase, string(events.SyncErrorEvent), 0, evt.Message, evt)
	if !m.errThrottle.Allow("error:" + string(evt.Phase)) {
		return
	}
	m.notify(notifications.EventSyncError, notifications.Payload{
		"phase": evt.Phase.Label(),
		"error": evt.Message,
	})
}

func (m *Manager) onNotice(evt events.Notice) {
	m.record(evt.Phase, string(events.NoticeEvent), 0, evt.Message, nil)
}

func (m *Manager) record(p phase.Phase, event string, batch int, message string, payload any) {
	if m.journal == nil {
		return
	}
	entry := journal.Entry{
		RecordedAt: m.clock.Now(),
		Phase:      string(p),
		Event:      event,
		BatchIndex: batch,
		Message:    message,
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			entry.Payload = string(raw)
		}
	}
	if _, err := m.journal.Append(m.runContext(), entry); err != nil {
		if !m.errThrottle.Allow("journal") {
			return
		}
		logging.WarnWithContext(m.logger, "journal write failed", "journal_write_failed",
			logging.Error(err),
			logging.String("event", event),
			logging.String(logging.FieldErrorHint, "check state directory permissions and disk space"),
			logging.String(logging.FieldImpact, "sync history will be incomplete"),
		)
	}
}
