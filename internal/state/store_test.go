package state_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shuttle/internal/phase"
	"shuttle/internal/scheduler"
	"shuttle/internal/state"
)

func TestSetStartingIsTestAndSet(t *testing.T) {
	t.Parallel()
	store := state.New()

	require.True(t, store.SetStarting(phase.Images, true))
	assert.False(t, store.SetStarting(phase.Images, true), "second acquire must fail")
	assert.True(t, store.Starting(phase.Images), "failed acquire must not mutate")

	assert.True(t, store.SetStarting(phase.Images, false))
	assert.True(t, store.SetStarting(phase.Images, false), "release always succeeds")
	assert.True(t, store.SetStarting(phase.Images, true), "acquire after release succeeds")
	assert.False(t, store.Starting(phase.Products), "phases are independent")
}

func TestSetProcessingBatchIsTestAndSet(t *testing.T) {
	t.Parallel()
	store := state.New()

	require.True(t, store.SetProcessingBatch(phase.Products, true))
	assert.False(t, store.SetProcessingBatch(phase.Products, true))
	store.SetProcessingBatch(phase.Products, false)
	assert.False(t, store.ProcessingBatch(phase.Products))
}

func TestSetStartingConcurrentSingleWinner(t *testing.T) {
	t.Parallel()
	store := state.New()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.SetStarting(phase.Images, true) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestIntervalTable(t *testing.T) {
	t.Parallel()
	store := state.New()

	_, ok := store.Interval(phase.Images)
	assert.False(t, ok)

	handle := scheduler.Handle{Name: phase.Images.PollTaskName(), ID: 7}
	store.SetInterval(phase.Images, handle)
	got, ok := store.Interval(phase.Images)
	require.True(t, ok)
	assert.Equal(t, handle, got)

	prev, ok := store.ClearInterval(phase.Images)
	require.True(t, ok)
	assert.Equal(t, handle, prev)
	_, ok = store.ClearInterval(phase.Images)
	assert.False(t, ok)
}

func TestResetPhaseIsIdempotent(t *testing.T) {
	t.Parallel()
	store := state.New()
	store.SetStarting(phase.Images, true)
	store.SetProcessingBatch(phase.Images, true)
	store.SetInitialized(phase.Images, true)
	store.SetInterval(phase.Images, scheduler.Handle{Name: "images-progress", ID: 1})
	store.SetInitialized(phase.Products, true)

	store.ResetPhase(phase.Images)
	first := store.Snapshot()
	store.ResetPhase(phase.Images)
	second := store.Snapshot()

	assert.Equal(t, first, second)
	assert.Equal(t, state.PhaseView{}, first.Phases[phase.Images])
	assert.True(t, first.Phases[phase.Products].Initialized, "other phase untouched")
}

func TestResetAllClearsCounters(t *testing.T) {
	t.Parallel()
	store := state.New()
	store.SetInitialized(phase.Products, true)
	store.SetLastProgressValue(10)
	store.IncrementInactiveProgressCounter()

	store.ResetAll()
	view := store.Snapshot()
	assert.False(t, view.Phases[phase.Products].Initialized)
	assert.Zero(t, view.InactiveProgressCounter)
	assert.Zero(t, view.LastProgressValue)
	assert.Len(t, view.Phases, 2)
}

func TestObserveProgressCountsStaleTicks(t *testing.T) {
	t.Parallel()
	store := state.New()

	assert.Equal(t, 0, store.ObserveProgress(5))
	assert.Equal(t, 1, store.ObserveProgress(5))
	assert.Equal(t, 2, store.ObserveProgress(5))
	assert.Equal(t, 0, store.ObserveProgress(6))
	assert.Equal(t, 6, store.LastProgressValue())
	assert.Equal(t, 1, store.IncrementInactiveProgressCounter())
}
