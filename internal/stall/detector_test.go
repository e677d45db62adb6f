package stall_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"shuttle/internal/events"
	"shuttle/internal/jobs"
	"shuttle/internal/phase"
	"shuttle/internal/stall"
)

type countingRemediator struct {
	calls int
}

func (r *countingRemediator) ProcessNextBatchAutomatically(context.Context) error {
	r.calls++
	return nil
}

func testConfig() stall.Config {
	return stall.Config{
		Min:        10 * time.Second,
		Max:        60 * time.Second,
		Default:    15 * time.Second,
		Multiplier: 2.0,
		MinSamples: 2,
		MaxSamples: 5,
	}
}

func running(batch int) jobs.Snapshot {
	return jobs.Snapshot{BatchIndex: batch, InProgress: true, Status: jobs.StatusRunning}
}

func newDetector(t *testing.T, bus *events.Bus) (*stall.Detector, *clocktesting.FakeClock, *countingRemediator) {
	t.Helper()
	clk := clocktesting.NewFakeClock(time.Unix(1_700_000_000, 0))
	d := stall.NewDetector(phase.Images, testConfig(), clk, bus, nil)
	r := &countingRemediator{}
	d.SetRemediator(r)
	return d, clk, r
}

func TestThresholdDefaultsUntilMinSamples(t *testing.T) {
	t.Parallel()
	d, clk, _ := newDetector(t, nil)
	ctx := context.Background()

	assert.Equal(t, 15*time.Second, d.Threshold())
	d.Observe(ctx, running(0))
	clk.Step(4 * time.Second)
	d.Observe(ctx, running(1))
	assert.Equal(t, 15*time.Second, d.Threshold(), "one sample is below MinSamples")
}

func TestThresholdFromSamplesIsClamped(t *testing.T) {
	t.Parallel()
	d, clk, _ := newDetector(t, nil)
	ctx := context.Background()

	d.Observe(ctx, running(0))
	clk.Step(4 * time.Second)
	d.Observe(ctx, running(1))
	clk.Step(6 * time.Second)
	d.Observe(ctx, running(2))

	state := d.TrackingState()
	require.Equal(t, []time.Duration{4 * time.Second, 6 * time.Second}, state.Samples)
	assert.Equal(t, 10*time.Second, d.Threshold())
	assert.Equal(t, 10*time.Second, state.Threshold)
}

func TestThresholdBounds(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		samples []time.Duration
		want    time.Duration
	}{
		{"below min clamps up", []time.Duration{time.Second, time.Second}, 10 * time.Second},
		{"inside range", []time.Duration{10 * time.Second, 14 * time.Second}, 24 * time.Second},
		{"above max clamps down", []time.Duration{50 * time.Second, 70 * time.Second}, 60 * time.Second},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d, clk, _ := newDetector(t, nil)
			ctx := context.Background()
			d.Observe(ctx, jobs.Snapshot{BatchIndex: 0})
			for i, sample := range tc.samples {
				clk.Step(sample)
				d.Observe(ctx, jobs.Snapshot{BatchIndex: i + 1})
			}
			got := d.Threshold()
			assert.Equal(t, tc.want, got)
			assert.GreaterOrEqual(t, got, 10*time.Second)
			assert.LessOrEqual(t, got, 60*time.Second)
		})
	}
}

func TestSamplesAreBounded(t *testing.T) {
	t.Parallel()
	d, clk, _ := newDetector(t, nil)
	ctx := context.Background()

	d.Observe(ctx, running(0))
	for i := 1; i <= 8; i++ {
		clk.Step(time.Duration(i) * time.Second)
		d.Observe(ctx, running(i))
	}
	samples := d.TrackingState().Samples
	require.Len(t, samples, 5)
	assert.Equal(t, 4*time.Second, samples[0], "oldest samples evicted first")
	assert.Equal(t, 8*time.Second, samples[4])
}

func TestOneRemediationPerStallEpisode(t *testing.T) {
	t.Parallel()
	bus := events.NewBus(nil)
	var stalls []events.StallDetected
	events.Subscribe(bus, events.StallDetectedEvent, func(evt events.StallDetected) {
		stalls = append(stalls, evt)
	})
	d, clk, remediator := newDetector(t, bus)
	ctx := context.Background()

	d.Observe(ctx, running(3))
	for i := 0; i < 10; i++ {
		clk.Step(5 * time.Second)
		d.Observe(ctx, running(3))
	}
	assert.Equal(t, 1, remediator.calls, "one nudge per episode, not per tick")
	require.Len(t, stalls, 1)
	assert.Equal(t, 3, stalls[0].BatchIndex)
	assert.Equal(t, 15*time.Second, stalls[0].Threshold)
	assert.True(t, d.TrackingState().Remediated)

	lastChange := d.TrackingState().LastChange
	assert.Equal(t, time.Unix(1_700_000_000, 0), lastChange, "remediation must not reset the batch change time")

	clk.Step(time.Second)
	d.Observe(ctx, running(4))
	assert.False(t, d.TrackingState().Remediated, "batch change ends the episode")
	for i := 0; i < 5; i++ {
		clk.Step(10 * time.Second)
		d.Observe(ctx, running(4))
	}
	assert.Equal(t, 2, remediator.calls, "a new episode gets one more nudge")
}

func TestIdleSnapshotsNeverStall(t *testing.T) {
	t.Parallel()
	d, clk, remediator := newDetector(t, nil)
	ctx := context.Background()

	d.Observe(ctx, jobs.Snapshot{BatchIndex: 1})
	for i := 0; i < 5; i++ {
		clk.Step(time.Minute)
		assert.False(t, d.Observe(ctx, jobs.Snapshot{BatchIndex: 1}))
	}
	assert.Zero(t, remediator.calls)

	clk.Step(time.Second)
	assert.False(t, d.Observe(ctx, running(1)), "idle time is not counted toward a stall")
}

func TestResetTrackingStateAndRearm(t *testing.T) {
	t.Parallel()
	d, clk, remediator := newDetector(t, nil)
	ctx := context.Background()

	d.Observe(ctx, running(0))
	clk.Step(4 * time.Second)
	d.Observe(ctx, running(1))
	clk.Step(20 * time.Second)
	require.True(t, d.Observe(ctx, running(1)))

	d.Rearm()
	state := d.TrackingState()
	assert.False(t, state.Remediated)
	assert.Len(t, state.Samples, 1, "rearm keeps history")
	clk.Step(time.Hour)
	assert.False(t, d.Observe(ctx, running(1)), "first snapshot after rearm starts a fresh episode")

	d.ResetTrackingState()
	state = d.TrackingState()
	assert.Empty(t, state.Samples)
	assert.Equal(t, 15*time.Second, state.Threshold)
	assert.Equal(t, 1, remediator.calls)
}
