package orchestrator

import (
	"context"
	"strconv"
	"time"

	"shuttle/internal/events"
	"shuttle/internal/jobs"
	"shuttle/internal/logging"
	"shuttle/internal/phase"
	"shuttle/internal/scheduler"
	"shuttle/internal/services"
	"shuttle/internal/stall"
)

// startPollingLocked registers the progress check under a fresh generation.
// Any callback bound to an older generation becomes inert. o.mu must be held;
// the scheduler never runs a callback synchronously.
func (o *Orchestrator) startPollingLocked() {
	o.generation++
	gen := o.generation

	name := o.phase.PollTaskName()
	o.sched.StopPolling(name)
	handle := o.sched.StartPolling(name, o.pollOnce(gen), 0)
	o.store.SetInterval(o.phase, handle)
}

func (o *Orchestrator) stopPolling() {
	o.sched.StopPolling(o.phase.PollTaskName())
	o.store.ClearInterval(o.phase)
}

func (o *Orchestrator) live(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation == gen
}

// finish ends the polling generation gen in state to. It returns false when
// another transition already retired gen.
func (o *Orchestrator) finish(gen uint64, to State) bool {
	o.mu.Lock()
	if o.generation != gen {
		o.mu.Unlock()
		return false
	}
	o.generation++
	o.stopPolling()
	o.store.SetInitialized(o.phase, false)
	from := o.state
	o.state = to
	o.mu.Unlock()
	o.announce(from, to)
	return true
}

func (o *Orchestrator) pollOnce(gen uint64) scheduler.Callback {
	return func(ctx context.Context) error {
		if !o.live(gen) {
			return nil
		}
		ctx = services.WithPhase(ctx, string(o.phase))
		started := o.clock.Now()
		snap, err := o.runner.Progress(ctx, o.phase)
		latency := o.clock.Since(started)

		if !o.live(gen) {
			o.logger.Debug("discarding late progress response", logging.Duration("latency", latency))
			return nil
		}
		if err != nil {
			o.mu.Lock()
			o.errorCount++
			count := o.errorCount
			o.mu.Unlock()
			o.sched.AdjustPolling(latency, count)
			if o.throttle.Allow("progress-error") {
				o.report(ctx, "progress", err)
			}
			return err
		}
		o.handleSnapshot(ctx, gen, snap, latency)
		return nil
	}
}

func (o *Orchestrator) handleSnapshot(ctx context.Context, gen uint64, snap jobs.Snapshot, latency time.Duration) {
	if snap.Timestamp.IsZero() {
		snap.Timestamp = o.clock.Now()
	}
	o.mu.Lock()
	o.errorCount = 0
	o.lastSnapshot = snap
	o.hasSnapshot = true
	shouldLog := o.sampler.ShouldLog(snap.Percent(), strconv.Itoa(snap.BatchIndex))
	o.mu.Unlock()

	o.sched.AdjustPolling(latency, 0)
	o.store.ObserveProgress(snap.ItemsProcessed)
	o.emitProgress(snap)

	if shouldLog {
		logging.WithContext(ctx, o.logger).Info("sync progress",
			logging.String(logging.FieldEventType, "sync_progress"),
			logging.Int(logging.FieldBatchIndex, snap.BatchIndex),
			logging.Int("total_batches", snap.TotalBatches),
			logging.Int("items_processed", snap.ItemsProcessed),
			logging.Int("items_total", snap.ItemsTotal),
			logging.Float64("percent", snap.Percent()),
		)
	}

	switch {
	case snap.Completed:
		o.complete(gen, snap)
	case snap.Status == jobs.StatusFailed:
		o.fail(ctx, gen, snap)
	case snap.Status == jobs.StatusCancelled:
		o.remoteCancelled(gen)
	default:
		if o.detector != nil {
			o.detector.Observe(services.WithTrigger(ctx, "stall"), snap)
		}
	}
}

// complete stops polling and announces the phase result exactly once per
// polling generation.
func (o *Orchestrator) complete(gen uint64, snap jobs.Snapshot) {
	if !o.finish(gen, StateCompleted) {
		return
	}

	o.logger.Info("phase completed",
		logging.String(logging.FieldEventType, "phase_completed"),
		logging.Int("total_batches", snap.TotalBatches),
		logging.Int("items_processed", snap.ItemsProcessed),
	)
	o.bus.Emit(events.PhaseCompletedEvent, events.PhaseCompleted{
		Phase:     o.phase,
		Status:    snap.Status,
		Timestamp: snap.Timestamp,
	})
}

func (o *Orchestrator) fail(ctx context.Context, gen uint64, snap jobs.Snapshot) {
	if !o.finish(gen, StateError) {
		return
	}

	message := snap.Message
	if message == "" {
		message = "remote job reported failure"
	}
	o.report(ctx, "progress", services.Wrap(services.ErrApplication, string(o.phase), "progress", message, nil))
}

func (o *Orchestrator) remoteCancelled(gen uint64) {
	if !o.finish(gen, StateCancelled) {
		return
	}
	o.bus.Emit(events.NoticeEvent, events.Notice{Phase: o.phase, Message: o.phase.Label() + ": sync cancelled on server"})
}

func (o *Orchestrator) emitProgress(snap jobs.Snapshot) {
	var upstream string
	switch {
	case o.phase == phase.Images:
		upstream = snap.Status
	case o.upstream != nil:
		upstream = o.upstream()
	}
	o.bus.Emit(events.SyncProgressEvent, events.SyncProgress{
		Phase:        o.phase,
		Snapshot:     snap,
		Phase1Status: upstream,
		Timestamp:    o.clock.Now(),
	})
}

// Status is a point-in-time description of one phase for status surfaces.
type Status struct {
	Phase           phase.Phase          `json:"phase"`
	State           State                `json:"state"`
	Label           string               `json:"label,omitempty"`
	Starting        bool                 `json:"starting"`
	Initialized     bool                 `json:"initialized"`
	ProcessingBatch bool                 `json:"processing_batch"`
	Polling         bool                 `json:"polling"`
	BatchSize       int                  `json:"batch_size"`
	ErrorCount      int                  `json:"error_count"`
	StartedAt       time.Time            `json:"started_at,omitzero"`
	Snapshot        *jobs.Snapshot       `json:"snapshot,omitempty"`
	Stall           *stall.TrackingState `json:"stall,omitempty"`
}

// Status returns the current phase status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	st := Status{
		Phase:      o.phase,
		State:      o.state,
		Label:      o.label,
		BatchSize:  o.batchSize,
		ErrorCount: o.errorCount,
		StartedAt:  o.startedAt,
	}
	if o.hasSnapshot {
		snap := o.lastSnapshot
		st.Snapshot = &snap
	}
	o.mu.Unlock()

	st.Starting = o.store.Starting(o.phase)
	st.Initialized = o.store.Initialized(o.phase)
	st.ProcessingBatch = o.store.ProcessingBatch(o.phase)
	st.Polling = o.sched.IsActive(o.phase.PollTaskName())
	if o.detector != nil {
		tracking := o.detector.TrackingState()
		st.Stall = &tracking
	}
	return st
}
