package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetricsMeterName is the name used for the sync metrics meter.
const SyncMetricsMeterName = "shuttle/sync"

// SyncMetrics holds the OpenTelemetry instruments for phase orchestration.
type SyncMetrics struct {
	batchesStarted metric.Int64Counter
	stalls         metric.Int64Counter
	errors         metric.Int64Counter
	completions    metric.Int64Counter
	batchDuration  metric.Float64Histogram
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	batchesStarted, err := meter.Int64Counter(
		"shuttle_batches_started_total",
		metric.WithDescription("Batch start requests accepted by the remote runner"),
		metric.WithUnit("{batch}"),
	)
	if err != nil {
		return nil, err
	}
	stalls, err := meter.Int64Counter(
		"shuttle_stalls_total",
		metric.WithDescription("Stall episodes detected"),
		metric.WithUnit("{stall}"),
	)
	if err != nil {
		return nil, err
	}
	syncErrors, err := meter.Int64Counter(
		"shuttle_sync_errors_total",
		metric.WithDescription("Transport and application failures"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}
	completions, err := meter.Int64Counter(
		"shuttle_phase_completions_total",
		metric.WithDescription("Phases that reported completion"),
		metric.WithUnit("{phase}"),
	)
	if err != nil {
		return nil, err
	}
	batchDuration, err := meter.Float64Histogram(
		"shuttle_batch_duration_seconds",
		metric.WithDescription("Time between batch index changes"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 1800),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		batchesStarted: batchesStarted,
		stalls:         stalls,
		errors:         syncErrors,
		completions:    completions,
		batchDuration:  batchDuration,
	}, nil
}

// RecordBatchStarted counts one accepted batch start.
func (m *SyncMetrics) RecordBatchStarted(ctx context.Context, phase string) {
	if m == nil || m.batchesStarted == nil {
		return
	}
	m.batchesStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phase)))
}

// RecordStall counts one stall episode.
func (m *SyncMetrics) RecordStall(ctx context.Context, phase string) {
	if m == nil || m.stalls == nil {
		return
	}
	m.stalls.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phase)))
}

// RecordError counts one failure with its error kind.
func (m *SyncMetrics) RecordError(ctx context.Context, phase, kind string) {
	if m == nil || m.errors == nil {
		return
	}
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("phase", phase),
		attribute.String("kind", kind),
	))
}

// RecordCompletion counts one completed phase.
func (m *SyncMetrics) RecordCompletion(ctx context.Context, phase string) {
	if m == nil || m.completions == nil {
		return
	}
	m.completions.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phase)))
}

// RecordBatchDuration records how long one batch took on the server.
func (m *SyncMetrics) RecordBatchDuration(ctx context.Context, phase string, duration time.Duration) {
	if m == nil || m.batchDuration == nil || duration <= 0 {
		return
	}
	m.batchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("phase", phase)))
}
