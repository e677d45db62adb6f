package testsupport

import (
	"context"
	"sync"

	"shuttle/internal/jobs"
	"shuttle/internal/phase"
)

// FakeRunner is an in-memory jobs.Runner. Progress replays the queued
// snapshots for a phase in order and repeats the last one once exhausted.
type FakeRunner struct {
	mu            sync.Mutex
	startErr      map[phase.Phase]error
	progressErr   map[phase.Phase]error
	results       map[phase.Phase]jobs.BatchResult
	snapshots     map[phase.Phase][]jobs.Snapshot
	startCalls    map[phase.Phase]int
	progressCalls map[phase.Phase]int
	cancelCalls   map[phase.Phase]int
	batchSizes    []int
	gate          chan struct{}
	progressEnter chan phase.Phase
	startGate     chan struct{}
	startEnter    chan phase.Phase
	inflight      int
	maxInflight   int
}

// NewFakeRunner returns a runner whose StartBatch succeeds with batch 1 of 1.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		startErr:      make(map[phase.Phase]error),
		progressErr:   make(map[phase.Phase]error),
		results:       make(map[phase.Phase]jobs.BatchResult),
		snapshots:     make(map[phase.Phase][]jobs.Snapshot),
		startCalls:    make(map[phase.Phase]int),
		progressCalls: make(map[phase.Phase]int),
		cancelCalls:   make(map[phase.Phase]int),
	}
}

// FailStart makes StartBatch for p return err until cleared with nil.
func (r *FakeRunner) FailStart(p phase.Phase, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startErr[p] = err
}

// FailProgress makes Progress for p return err until cleared with nil.
func (r *FakeRunner) FailProgress(p phase.Phase, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progressErr[p] = err
}

// SetResult sets the StartBatch result for p.
func (r *FakeRunner) SetResult(p phase.Phase, result jobs.BatchResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[p] = result
}

// QueueProgress appends snapshots returned by successive Progress calls.
func (r *FakeRunner) QueueProgress(p phase.Phase, snaps ...jobs.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[p] = append(r.snapshots[p], snaps...)
}

// HoldProgress makes every Progress call block until the returned release
// func is called. Each blocked call is announced on the returned channel.
func (r *FakeRunner) HoldProgress() (<-chan phase.Phase, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	gate := make(chan struct{})
	entered := make(chan phase.Phase, 16)
	r.gate = gate
	r.progressEnter = entered
	var once sync.Once
	return entered, func() {
		once.Do(func() {
			r.mu.Lock()
			r.gate = nil
			r.mu.Unlock()
			close(gate)
		})
	}
}

// HoldStart makes every StartBatch call block until the returned release
// func is called. Each blocked call is announced on the returned channel.
func (r *FakeRunner) HoldStart() (<-chan phase.Phase, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	gate := make(chan struct{})
	entered := make(chan phase.Phase, 16)
	r.startGate = gate
	r.startEnter = entered
	var once sync.Once
	return entered, func() {
		once.Do(func() {
			r.mu.Lock()
			r.startGate = nil
			r.mu.Unlock()
			close(gate)
		})
	}
}

func (r *FakeRunner) StartBatch(ctx context.Context, p phase.Phase, batchSize int) (jobs.BatchResult, error) {
	r.mu.Lock()
	r.startCalls[p]++
	call := r.startCalls[p]
	r.batchSizes = append(r.batchSizes, batchSize)
	r.inflight++
	r.maxInflight = max(r.maxInflight, r.inflight)
	gate, entered := r.startGate, r.startEnter
	r.mu.Unlock()

	if gate != nil {
		entered <- p
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight--
	if err := r.startErr[p]; err != nil {
		return jobs.BatchResult{}, err
	}
	result, ok := r.results[p]
	if !ok {
		result = jobs.BatchResult{BatchIndex: call, TotalBatches: 1}
	}
	return result, nil
}

func (r *FakeRunner) Progress(ctx context.Context, p phase.Phase) (jobs.Snapshot, error) {
	r.mu.Lock()
	r.progressCalls[p]++
	gate, entered := r.gate, r.progressEnter
	r.mu.Unlock()

	if gate != nil {
		entered <- p
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.progressErr[p]; err != nil {
		return jobs.Snapshot{}, err
	}
	queue := r.snapshots[p]
	switch len(queue) {
	case 0:
		return jobs.Snapshot{InProgress: true, Status: jobs.StatusRunning}, nil
	case 1:
		return queue[0], nil
	default:
		r.snapshots[p] = queue[1:]
		return queue[0], nil
	}
}

func (r *FakeRunner) Cancel(_ context.Context, p phase.Phase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelCalls[p]++
	return nil
}

// StartCalls returns how many StartBatch calls p received.
func (r *FakeRunner) StartCalls(p phase.Phase) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startCalls[p]
}

// ProgressCalls returns how many Progress calls p received.
func (r *FakeRunner) ProgressCalls(p phase.Phase) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progressCalls[p]
}

// CancelCalls returns how many Cancel calls p received.
func (r *FakeRunner) CancelCalls(p phase.Phase) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelCalls[p]
}

// MaxConcurrentStarts returns the highest number of StartBatch calls that
// were in flight at the same time.
func (r *FakeRunner) MaxConcurrentStarts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxInflight
}

// BatchSizes lists the batch size of every StartBatch call in order.
func (r *FakeRunner) BatchSizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.batchSizes...)
}
