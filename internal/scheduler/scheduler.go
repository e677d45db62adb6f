package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"shuttle/internal/logging"
)

// Callback is one polling tick. A returned error or panic is logged and the
// task stays registered.
type Callback func(ctx context.Context) error

// Handle identifies a registered polling task. ID distinguishes successive
// registrations under the same name.
type Handle struct {
	Name string `json:"name"`
	ID   uint64 `json:"id"`
}

// TaskInfo describes a registered task for status output.
type TaskInfo struct {
	Name      string        `json:"name"`
	ID        uint64        `json:"id"`
	Interval  time.Duration `json:"interval"`
	Adaptive  bool          `json:"adaptive"`
	StartedAt time.Time     `json:"started_at"`
	Runs      int           `json:"runs"`
	Failures  int           `json:"failures"`
	LastError string        `json:"last_error,omitempty"`
}

type task struct {
	handle    Handle
	callback  Callback
	interval  time.Duration
	adaptive  bool
	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc

	runs      int
	failures  int
	lastError string
}

// Scheduler runs named recurring tasks. Each task owns one goroutine that
// executes its callback between ticks, so a task never has two ticks in flight.
type Scheduler struct {
	clock     clock.WithTicker
	logger    *slog.Logger
	intervals Intervals

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	tasks     map[string]*task
	nextID    uint64
	mode      Mode
	latencies []time.Duration
	closed    bool
	wg        sync.WaitGroup
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock, typically with a fake clock in tests.
func WithClock(clk clock.WithTicker) Option {
	return func(s *Scheduler) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// WithLogger sets the logger used for tick failures and mode changes.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logging.NewComponentLogger(logger, "scheduler")
	}
}

// WithIntervals overrides the per-mode tick periods.
func WithIntervals(in Intervals) Option {
	return func(s *Scheduler) {
		s.intervals = in
	}
}

// New constructs a Scheduler in normal mode.
func New(opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		clock:     clock.RealClock{},
		logger:    logging.NewComponentLogger(nil, "scheduler"),
		intervals: DefaultIntervals(),
		ctx:       ctx,
		cancel:    cancel,
		tasks:     make(map[string]*task),
		mode:      ModeNormal,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartPolling registers callback under name. An interval of zero follows the
// current adaptive interval. When name is already active the existing handle
// is returned and nothing is rescheduled.
func (s *Scheduler) StartPolling(name string, callback Callback, interval time.Duration) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.tasks[name]; ok {
		return existing.handle
	}
	if s.closed || callback == nil {
		return Handle{}
	}

	adaptive := interval <= 0
	if adaptive {
		interval = s.intervals.For(s.mode)
	}
	s.nextID++
	ctx, cancel := context.WithCancel(s.ctx)
	t := &task{
		handle:    Handle{Name: name, ID: s.nextID},
		callback:  callback,
		interval:  interval,
		adaptive:  adaptive,
		startedAt: s.clock.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.tasks[name] = t

	// The ticker is created before returning so a fake clock sees the waiter
	// as soon as StartPolling completes.
	ticker := s.clock.NewTicker(interval)
	s.wg.Add(1)
	go s.run(t, ticker)

	s.logger.Debug("polling started",
		logging.String("task", name),
		logging.Duration("interval", interval),
		logging.Bool("adaptive", adaptive),
	)
	return t.handle
}

func (s *Scheduler) run(t *task, ticker clock.Ticker) {
	defer s.wg.Done()
	current := t.interval
	for {
		select {
		case <-t.ctx.Done():
			ticker.Stop()
			return
		case <-ticker.C():
		}
		if t.ctx.Err() != nil {
			ticker.Stop()
			return
		}

		s.invoke(t)

		if t.adaptive {
			if want := s.CurrentInterval(); want != current {
				ticker.Stop()
				ticker = s.clock.NewTicker(want)
				current = want
				s.mu.Lock()
				t.interval = want
				s.mu.Unlock()
			}
		}
	}
}

func (s *Scheduler) invoke(t *task) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in polling callback: %v", r)
			}
		}()
		err = t.callback(t.ctx)
	}()

	s.mu.Lock()
	t.runs++
	if err != nil {
		t.failures++
		t.lastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil && t.ctx.Err() == nil {
		logging.WarnWithContext(s.logger, "polling tick failed; will retry next tick", "poll_tick_failed",
			logging.String("task", t.handle.Name),
			logging.Error(err),
			logging.String(logging.FieldImpact, "progress for this tick was not recorded"),
		)
	}
}

// StopPolling cancels and removes the named task. It does not wait for an
// in-flight tick, so it is safe to call from inside the task's own callback.
func (s *Scheduler) StopPolling(name string) bool {
	s.mu.Lock()
	t, ok := s.tasks[name]
	if ok {
		delete(s.tasks, name)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	s.logger.Debug("polling stopped", logging.String("task", name))
	return true
}

// StopAll cancels every task.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = make(map[string]*task)
	s.mu.Unlock()
	for _, t := range tasks {
		t.cancel()
	}
}

// Close stops every task, waits for their goroutines, and rejects new tasks.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.tasks = make(map[string]*task)
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

// IsActive reports whether name is registered.
func (s *Scheduler) IsActive(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[name]
	return ok
}

// AnyActive reports whether any task is registered.
func (s *Scheduler) AnyActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks) > 0
}

// Tasks lists registered tasks sorted by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, TaskInfo{
			Name:      t.handle.Name,
			ID:        t.handle.ID,
			Interval:  t.interval,
			Adaptive:  t.adaptive,
			StartedAt: t.startedAt,
			Runs:      t.runs,
			Failures:  t.failures,
			LastError: t.lastError,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AdjustPolling records one response latency and the current consecutive
// error count, then recomputes the adaptive mode. Adaptive tasks pick up the
// new interval after their next tick; new tasks start with it.
func (s *Scheduler) AdjustPolling(responseTime time.Duration, errorCount int) Mode {
	s.mu.Lock()
	if responseTime >= 0 {
		s.latencies = append(s.latencies, responseTime)
		if len(s.latencies) > latencyWindow {
			s.latencies = s.latencies[len(s.latencies)-latencyWindow:]
		}
	}
	prev := s.mode
	s.mode = selectMode(s.latencies, errorCount)
	mode := s.mode
	s.mu.Unlock()

	if mode != prev {
		s.logger.Debug("polling mode changed",
			logging.String("from", string(prev)),
			logging.String("to", string(mode)),
			logging.Int("error_count", errorCount),
		)
	}
	return mode
}

// Mode returns the current adaptive mode.
func (s *Scheduler) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// CurrentInterval returns the interval for the current adaptive mode.
func (s *Scheduler) CurrentInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intervals.For(s.mode)
}
