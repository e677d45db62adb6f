package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"shuttle/internal/config"
)

const userAgent = "Shuttle-Go/0.1.0"

// Event names a notification-worthy milestone.
type Event string

const (
	EventPhaseCompleted   Event = "phase_completed"
	EventSyncCompleted    Event = "sync_completed"
	EventStallDetected    Event = "stall_detected"
	EventSyncError        Event = "sync_error"
	EventTestNotification Event = "test"
)

// Payload carries event specific values. Keys are documented per event in
// format.
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: cfg.Notifications.Timeout()},
		enabled: map[Event]bool{
			EventPhaseCompleted:   cfg.Notifications.PhaseCompleted,
			EventSyncCompleted:    cfg.Notifications.PhaseCompleted,
			EventStallDetected:    cfg.Notifications.Stalls,
			EventSyncError:        cfg.Notifications.Errors,
			EventTestNotification: true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventPhaseCompleted:
		return message{
			title: "Shuttle - Phase Complete",
			body:  fmt.Sprintf("✅ %s complete (%d batches)", payloadString(payload, "phase"), payloadInt(payload, "batches")),
			tags:  []string{"shuttle", "phase", "completed"},
		}, true
	case EventSyncCompleted:
		return message{
			title:    "Shuttle - Sync Complete",
			body:     fmt.Sprintf("🎉 Image and product sync finished in %s", payloadDuration(payload, "duration")),
			tags:     []string{"shuttle", "sync", "completed"},
			priority: "high",
		}, true
	case EventStallDetected:
		return message{
			title: "Shuttle - Sync Stalled",
			body: fmt.Sprintf("⏸️ %s stalled on batch %d for %s; requested the next batch",
				payloadString(payload, "phase"), payloadInt(payload, "batch"), payloadDuration(payload, "idle")),
			tags: []string{"shuttle", "stall", "warning"},
		}, true
	case EventSyncError:
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if label := payloadString(payload, "phase"); label != "" {
			builder.WriteString(" in ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		if text := payloadString(payload, "error"); text != "" {
			builder.WriteString(text)
		} else {
			builder.WriteString("unknown")
		}
		return message{
			title:    "Shuttle - Error",
			body:     builder.String(),
			tags:     []string{"shuttle", "error", "alert"},
			priority: "high",
		}, true
	case EventTestNotification:
		return message{
			title:    "Shuttle - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"shuttle", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func payloadString(payload Payload, key string) string {
	switch v := payload[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func payloadInt(payload Payload, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func payloadDuration(payload Payload, key string) string {
	d, _ := payload[key].(time.Duration)
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
