package stall

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"shuttle/internal/config"
	"shuttle/internal/events"
	"shuttle/internal/jobs"
	"shuttle/internal/logging"
	"shuttle/internal/phase"
	"shuttle/internal/services"
)

// Config bounds the dynamic stall threshold.
type Config struct {
	Min        time.Duration
	Max        time.Duration
	Default    time.Duration
	Multiplier float64
	MinSamples int
	MaxSamples int
}

// DefaultConfig mirrors the [stall] section defaults.
func DefaultConfig() Config {
	return ConfigFrom(config.Default().Stall)
}

// ConfigFrom converts the [stall] config section.
func ConfigFrom(cfg config.Stall) Config {
	return Config{
		Min:        time.Duration(cfg.MinMS) * time.Millisecond,
		Max:        time.Duration(cfg.MaxMS) * time.Millisecond,
		Default:    time.Duration(cfg.DefaultMS) * time.Millisecond,
		Multiplier: cfg.Multiplier,
		MinSamples: cfg.MinSamples,
		MaxSamples: cfg.MaxSamples,
	}
}

// Remediator nudges a stalled phase.
type Remediator interface {
	ProcessNextBatchAutomatically(ctx context.Context) error
}

// TrackingState is a read-only view of the detector.
type TrackingState struct {
	Config         Config          `json:"-"`
	Threshold      time.Duration   `json:"threshold"`
	Samples        []time.Duration `json:"samples"`
	LastBatchIndex int             `json:"last_batch_index"`
	LastChange     time.Time       `json:"last_change"`
	LastProgress   int             `json:"last_progress"`
	Remediated     bool            `json:"remediated"`
}

// Detector watches one phase's snapshots for a batch index that stops moving.
type Detector struct {
	phase      phase.Phase
	cfg        Config
	clock      clock.PassiveClock
	bus        *events.Bus
	logger     *slog.Logger
	remediator Remediator

	mu             sync.Mutex
	samples        []time.Duration
	tracking       bool
	lastBatchIndex int
	lastChange     time.Time
	lastProgress   int
	remediated     bool
}

// NewDetector constructs a detector. A nil clock uses the wall clock.
func NewDetector(p phase.Phase, cfg Config, clk clock.PassiveClock, bus *events.Bus, logger *slog.Logger) *Detector {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = 1
	}
	return &Detector{
		phase:  p,
		cfg:    cfg,
		clock:  clk,
		bus:    bus,
		logger: logging.NewComponentLogger(logger, "stall").With(logging.String(logging.FieldPhase, string(p))),
	}
}

// SetRemediator wires the component nudged on stall. The orchestrator owns the
// detector and registers itself after construction.
func (d *Detector) SetRemediator(r Remediator) {
	d.mu.Lock()
	d.remediator = r
	d.mu.Unlock()
}

// Threshold returns the current dynamic threshold.
func (d *Detector) Threshold() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.thresholdLocked()
}

func (d *Detector) thresholdLocked() time.Duration {
	return computeThreshold(d.cfg, d.samples)
}

// computeThreshold rounds avg×multiplier to the millisecond, then clamps.
func computeThreshold(cfg Config, samples []time.Duration) time.Duration {
	if len(samples) < cfg.MinSamples || len(samples) == 0 {
		return cfg.Default
	}
	var total time.Duration
	for _, s := range samples {
		total += s
	}
	avgMS := float64(total.Milliseconds()) / float64(len(samples))
	raw := time.Duration(math.Round(avgMS*cfg.Multiplier)) * time.Millisecond
	if raw < cfg.Min {
		return cfg.Min
	}
	if raw > cfg.Max {
		return cfg.Max
	}
	return raw
}

// Observe feeds one snapshot. It records a batch duration sample whenever the
// batch index changes and fires remediation at most once per stall episode.
// It reports whether remediation was triggered by this call.
func (d *Detector) Observe(ctx context.Context, snap jobs.Snapshot) bool {
	now := d.clock.Now()

	d.mu.Lock()
	switch {
	case !d.tracking:
		d.tracking = true
		d.lastBatchIndex = snap.BatchIndex
		d.lastChange = now
	case snap.BatchIndex != d.lastBatchIndex:
		d.samples = append(d.samples, now.Sub(d.lastChange))
		if len(d.samples) > d.cfg.MaxSamples {
			d.samples = d.samples[len(d.samples)-d.cfg.MaxSamples:]
		}
		d.lastBatchIndex = snap.BatchIndex
		d.lastChange = now
		d.remediated = false
	case !snap.InProgress:
		// Idle time does not count toward a stall.
		d.lastChange = now
	}
	d.lastProgress = snap.ItemsProcessed

	idle := now.Sub(d.lastChange)
	threshold := d.thresholdLocked()
	stalled := snap.InProgress && idle > threshold && !d.remediated
	if stalled {
		d.remediated = true
	}
	remediator := d.remediator
	batch := d.lastBatchIndex
	d.mu.Unlock()

	if !stalled {
		return false
	}

	logging.WarnWithContext(d.logger, "sync stalled; requesting next batch", "stall_detected",
		logging.Int(logging.FieldBatchIndex, batch),
		logging.Duration("idle", idle),
		logging.Duration("threshold", threshold),
		logging.String(logging.FieldErrorKind, string(services.KindStall)),
		logging.String(logging.FieldErrorHint, "remote pipeline stopped advancing; check server cron and workers"),
		logging.String(logging.FieldImpact, "batch nudged automatically; no further nudges until the batch advances"),
	)
	d.bus.Emit(events.StallDetectedEvent, events.StallDetected{
		Phase:      d.phase,
		Idle:       idle,
		Threshold:  threshold,
		BatchIndex: batch,
	})
	if remediator != nil {
		if err := remediator.ProcessNextBatchAutomatically(ctx); err != nil {
			d.logger.Debug("stall remediation returned error", logging.Error(err))
		}
	}
	return true
}

// TrackingState returns a copy of the detector state.
func (d *Detector) TrackingState() TrackingState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return TrackingState{
		Config:         d.cfg,
		Threshold:      d.thresholdLocked(),
		Samples:        append([]time.Duration(nil), d.samples...),
		LastBatchIndex: d.lastBatchIndex,
		LastChange:     d.lastChange,
		LastProgress:   d.lastProgress,
		Remediated:     d.remediated,
	}
}

// ResetTrackingState forgets every sample and the current episode.
func (d *Detector) ResetTrackingState() {
	d.mu.Lock()
	d.samples = nil
	d.tracking = false
	d.lastBatchIndex = 0
	d.lastChange = time.Time{}
	d.lastProgress = 0
	d.remediated = false
	d.mu.Unlock()
}

// Rearm restarts episode tracking from the next snapshot while keeping the
// duration history. Used when polling resumes after a pause or a restart.
func (d *Detector) Rearm() {
	d.mu.Lock()
	d.tracking = false
	d.remediated = false
	d.mu.Unlock()
}
