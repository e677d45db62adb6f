package state

import (
	"sync"

	"shuttle/internal/phase"
	"shuttle/internal/scheduler"
)

type phaseFlags struct {
	starting        bool
	processingBatch bool
	initialized     bool
	interval        *scheduler.Handle
}

// Store holds the orchestration flags for every phase plus the shared
// progress counters. All methods are safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	phases map[phase.Phase]*phaseFlags

	inactiveProgress int
	lastProgress     int
}

// New returns an empty Store.
func New() *Store {
	return &Store{phases: make(map[phase.Phase]*phaseFlags)}
}

func (s *Store) flagsLocked(p phase.Phase) *phaseFlags {
	flags, ok := s.phases[p]
	if !ok {
		flags = &phaseFlags{}
		s.phases[p] = flags
	}
	return flags
}

// Starting reports whether a start is in flight for p.
func (s *Store) Starting(p phase.Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flagsLocked(p).starting
}

// SetStarting is a test-and-set: setting true fails (returns false, no
// mutation) when the flag is already held. Setting false always succeeds.
func (s *Store) SetStarting(p phase.Phase, value bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return testAndSet(&s.flagsLocked(p).starting, value)
}

// ProcessingBatch reports whether an automatic next-batch call is in flight for p.
func (s *Store) ProcessingBatch(p phase.Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flagsLocked(p).processingBatch
}

// SetProcessingBatch follows the same contract as SetStarting.
func (s *Store) SetProcessingBatch(p phase.Phase, value bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return testAndSet(&s.flagsLocked(p).processingBatch, value)
}

func testAndSet(flag *bool, value bool) bool {
	if value && *flag {
		return false
	}
	*flag = value
	return true
}

// Initialized reports whether the phase has a running remote job.
func (s *Store) Initialized(p phase.Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flagsLocked(p).initialized
}

func (s *Store) SetInitialized(p phase.Phase, value bool) {
	s.mu.Lock()
	s.flagsLocked(p).initialized = value
	s.mu.Unlock()
}

// SetInterval records the polling handle owned by p.
func (s *Store) SetInterval(p phase.Phase, handle scheduler.Handle) {
	s.mu.Lock()
	s.flagsLocked(p).interval = &handle
	s.mu.Unlock()
}

// Interval returns the polling handle owned by p, if any.
func (s *Store) Interval(p phase.Phase) (scheduler.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flags := s.flagsLocked(p)
	if flags.interval == nil {
		return scheduler.Handle{}, false
	}
	return *flags.interval, true
}

// ClearInterval forgets the polling handle for p and returns the previous one.
func (s *Store) ClearInterval(p phase.Phase) (scheduler.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flags := s.flagsLocked(p)
	if flags.interval == nil {
		return scheduler.Handle{}, false
	}
	prev := *flags.interval
	flags.interval = nil
	return prev, true
}

// ResetPhase clears every flag and the interval handle for p.
func (s *Store) ResetPhase(p phase.Phase) {
	s.mu.Lock()
	s.phases[p] = &phaseFlags{}
	s.mu.Unlock()
}

// ResetAll resets every phase and the shared counters.
func (s *Store) ResetAll() {
	s.mu.Lock()
	s.phases = make(map[phase.Phase]*phaseFlags)
	s.inactiveProgress = 0
	s.lastProgress = 0
	s.mu.Unlock()
}

func (s *Store) InactiveProgressCounter() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inactiveProgress
}

func (s *Store) SetInactiveProgressCounter(n int) {
	s.mu.Lock()
	s.inactiveProgress = n
	s.mu.Unlock()
}

// IncrementInactiveProgressCounter bumps the counter and returns the new value.
func (s *Store) IncrementInactiveProgressCounter() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inactiveProgress++
	return s.inactiveProgress
}

func (s *Store) LastProgressValue() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastProgress
}

func (s *Store) SetLastProgressValue(v int) {
	s.mu.Lock()
	s.lastProgress = v
	s.mu.Unlock()
}

// ObserveProgress updates the inactive-progress counter from a processed-items
// reading: unchanged values increment it, changes reset it. It returns the
// counter after the update.
func (s *Store) ObserveProgress(processed int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if processed == s.lastProgress {
		s.inactiveProgress++
	} else {
		s.lastProgress = processed
		s.inactiveProgress = 0
	}
	return s.inactiveProgress
}
