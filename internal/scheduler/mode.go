package scheduler

import "time"

// Mode names an adaptive polling cadence.
type Mode string

const (
	ModeFast   Mode = "fast"
	ModeActive Mode = "active"
	ModeNormal Mode = "normal"
	ModeSlow   Mode = "slow"
	ModeIdle   Mode = "idle"
)

const latencyWindow = 10

// Intervals maps each mode to its tick period.
type Intervals struct {
	Fast   time.Duration
	Active time.Duration
	Normal time.Duration
	Slow   time.Duration
	Idle   time.Duration
}

// DefaultIntervals returns the stock cadence: 1s, 2s, 5s, 10s, 30s.
func DefaultIntervals() Intervals {
	return Intervals{
		Fast:   time.Second,
		Active: 2 * time.Second,
		Normal: 5 * time.Second,
		Slow:   10 * time.Second,
		Idle:   30 * time.Second,
	}
}

// IntervalsFrom builds Intervals from an ordered fast..idle slice, falling
// back to defaults for missing or non-positive entries.
func IntervalsFrom(values []time.Duration) Intervals {
	out := DefaultIntervals()
	slots := []*time.Duration{&out.Fast, &out.Active, &out.Normal, &out.Slow, &out.Idle}
	for i, value := range values {
		if i >= len(slots) {
			break
		}
		if value > 0 {
			*slots[i] = value
		}
	}
	return out
}

// For returns the interval for mode.
func (in Intervals) For(mode Mode) time.Duration {
	switch mode {
	case ModeFast:
		return in.Fast
	case ModeActive:
		return in.Active
	case ModeSlow:
		return in.Slow
	case ModeIdle:
		return in.Idle
	default:
		return in.Normal
	}
}

// selectMode applies the adaptive rules in priority order: error count first,
// then mean latency over the recent window.
func selectMode(latencies []time.Duration, errorCount int) Mode {
	switch {
	case errorCount >= 5:
		return ModeIdle
	case errorCount >= 2:
		return ModeSlow
	}
	if len(latencies) == 0 {
		return ModeFast
	}
	var total time.Duration
	for _, l := range latencies {
		total += l
	}
	avg := total / time.Duration(len(latencies))
	switch {
	case avg > 3*time.Second:
		return ModeSlow
	case avg > time.Second:
		return ModeNormal
	case avg > 300*time.Millisecond:
		return ModeActive
	default:
		return ModeFast
	}
}
