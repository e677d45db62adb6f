package logging

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/utils/clock"
)

// Throttle rate-limits repeated diagnostics per key. Each key owns a token
// bucket of size one refilled once per cooldown, so the first call for a key
// is always allowed.
type Throttle struct {
	clock clock.PassiveClock
	every rate.Limit

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewThrottle constructs a Throttle. A nil clock uses the wall clock and a
// non-positive cooldown disables throttling.
func NewThrottle(clk clock.PassiveClock, cooldown time.Duration) *Throttle {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Throttle{
		clock:    clk,
		every:    rate.Every(cooldown),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the key may fire now and consumes the key's token when it may.
func (t *Throttle) Allow(key string) bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	limiter, ok := t.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(t.every, 1)
		t.limiters[key] = limiter
	}
	t.mu.Unlock()
	return limiter.AllowN(t.clock.Now(), 1)
}

// Forget clears the cooldown for key.
func (t *Throttle) Forget(key string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	delete(t.limiters, key)
	t.mu.Unlock()
}
