package events

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"shuttle/internal/logging"
)

// Name identifies an event stream.
type Name string

const (
	SyncProgressEvent   Name = "syncProgress"
	SyncErrorEvent      Name = "syncError"
	PhaseCompletedEvent Name = "phaseCompleted"
	NoticeEvent         Name = "notice"
	StallDetectedEvent  Name = "stallDetected"
	PhaseStateEvent     Name = "phaseState"
)

// Listener receives an event payload.
type Listener func(payload any)

type entry struct {
	id       uint64
	listener Listener
}

// Bus is a synchronous publish/subscribe hub. Emit calls listeners on the
// caller's goroutine in registration order.
type Bus struct {
	logger *slog.Logger

	mu        sync.Mutex
	listeners map[Name][]entry
	nextID    uint64
}

// NewBus constructs an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		logger:    logging.NewComponentLogger(logger, "events"),
		listeners: make(map[Name][]entry),
	}
}

// Subscription removes one listener when Unsubscribe is called.
type Subscription struct {
	bus  *Bus
	name Name
	id   uint64
}

// Unsubscribe removes the listener. Calling it more than once is harmless.
func (s Subscription) Unsubscribe() {
	if s.bus == nil {
		return
	}
	s.bus.remove(s.name, s.id)
}

// On registers listener for name.
func (b *Bus) On(name Name, listener Listener) Subscription {
	if b == nil || listener == nil {
		return Subscription{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.listeners[name] = append(b.listeners[name], entry{id: b.nextID, listener: listener})
	return Subscription{bus: b, name: name, id: b.nextID}
}

// Off removes every listener for name.
func (b *Bus) Off(name Name) {
	if b == nil {
		return
	}
	b.mu.Lock()
	delete(b.listeners, name)
	b.mu.Unlock()
}

func (b *Bus) remove(name Name, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	current := b.listeners[name]
	for i, e := range current {
		if e.id == id {
			next := make([]entry, 0, len(current)-1)
			next = append(next, current[:i]...)
			next = append(next, current[i+1:]...)
			if len(next) == 0 {
				delete(b.listeners, name)
			} else {
				b.listeners[name] = next
			}
			return
		}
	}
}

// Emit delivers payload to every listener of name. A panicking listener is
// logged and the remaining listeners still run. Listeners added or removed
// during Emit take effect on the next Emit.
func (b *Bus) Emit(name Name, payload any) {
	if b == nil {
		return
	}
	b.mu.Lock()
	snapshot := append([]entry(nil), b.listeners[name]...)
	b.mu.Unlock()

	for _, e := range snapshot {
		b.deliver(name, e.listener, payload)
	}
}

func (b *Bus) deliver(name Name, listener Listener, payload any) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(b.logger, "event listener panicked", "listener_panic",
				logging.String("event", string(name)),
				logging.String("panic", fmt.Sprint(r)),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldErrorHint, "listener bug; other listeners were still notified"),
			)
		}
	}()
	listener(payload)
}

// ListenerCount reports how many listeners are registered for name.
func (b *Bus) ListenerCount(name Name) int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[name])
}

// Subscribe registers a typed listener. Payloads of other types are ignored.
func Subscribe[T any](b *Bus, name Name, fn func(T)) Subscription {
	return b.On(name, func(payload any) {
		if typed, ok := payload.(T); ok {
			fn(typed)
		}
	})
}
