package workflow

import (
	"context"
	"errors"

	"shuttle/internal/logging"
	"shuttle/internal/notifications"
)

// notify publishes in the background so a slow ntfy server never delays a
// poll tick. Stop waits for outstanding sends; sends requested after Stop
// began are dropped.
func (m *Manager) notify(event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	m.mu.RLock()
	if !m.running {
		m.mu.RUnlock()
		m.logger.Debug("workflow stopped, notification dropped", logging.String("event", string(event)))
		return
	}
	ctx := m.runCtx
	m.notifyWG.Add(1)
	m.mu.RUnlock()
	timeout := m.cfg.Notifications.Timeout()
	go func() {
		defer m.notifyWG.Done()
		sendCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := m.notifier.Publish(sendCtx, event, payload); err != nil {
			// Check if this is a context cancellation (normal shutdown)
			if errors.Is(err, context.Canceled) {
				m.logger.Debug("daemon shutting down, notification dropped", logging.String("event", string(event)))
				return
			}
			m.logger.Warn("notification failed",
				logging.Error(err),
				logging.String("event", string(event)),
				logging.String(logging.FieldEventType, "notification_failed"),
				logging.String(logging.FieldErrorHint, "check ntfy_topic and network access"),
				logging.String(logging.FieldImpact, "operator was not alerted"),
			)
		}
	}()
}

// TestNotification sends a test message synchronously.
func (m *Manager) TestNotification(ctx context.Context) error {
	if m.notifier == nil {
		return nil
	}
	return m.notifier.Publish(ctx, notifications.EventTestNotification, nil)
}
