package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSyncMetrics(t *testing.T) {
	t.Parallel()

	t.Run("returns nil when provider is nil", func(t *testing.T) {
		t.Parallel()

		metrics, err := NewSyncMetrics(nil)
		require.NoError(t, err)
		assert.Nil(t, metrics)
	})

	t.Run("nil metrics are a no-op", func(t *testing.T) {
		t.Parallel()

		var metrics *SyncMetrics
		ctx := context.Background()
		metrics.RecordBatchStarted(ctx, "images")
		metrics.RecordStall(ctx, "images")
		metrics.RecordError(ctx, "images", "transport")
		metrics.RecordCompletion(ctx, "images")
		metrics.RecordBatchDuration(ctx, "images", time.Second)
	})
}

func TestProviderCollectsReadings(t *testing.T) {
	t.Parallel()

	provider := NewProvider(true)
	require.NotNil(t, provider)
	defer func() { _ = provider.Shutdown(context.Background()) }()

	metrics, err := NewSyncMetrics(provider.MeterProvider())
	require.NoError(t, err)
	require.NotNil(t, metrics)

	ctx := context.Background()
	metrics.RecordBatchStarted(ctx, "images")
	metrics.RecordBatchStarted(ctx, "images")
	metrics.RecordBatchStarted(ctx, "products")
	metrics.RecordError(ctx, "images", "transport")
	metrics.RecordBatchDuration(ctx, "images", 30*time.Second)
	metrics.RecordBatchDuration(ctx, "images", 90*time.Second)

	readings, err := provider.Collect(ctx)
	require.NoError(t, err)

	byKey := make(map[string]Reading, len(readings))
	for _, r := range readings {
		byKey[r.Name+"|"+r.Attributes] = r
	}
	assert.Equal(t, 2.0, byKey["shuttle_batches_started_total|phase=images"].Value)
	assert.Equal(t, 1.0, byKey["shuttle_batches_started_total|phase=products"].Value)
	assert.Equal(t, 1.0, byKey["shuttle_sync_errors_total|kind=transport,phase=images"].Value)

	hist := byKey["shuttle_batch_duration_seconds|phase=images"]
	assert.Equal(t, uint64(2), hist.Count)
	assert.InDelta(t, 120.0, hist.Value, 0.001)
	assert.Equal(t, "shuttle_batch_duration_seconds{phase=images} sum=120.00 count=2", FormatReading(hist))
}

func TestDisabledProviderIsNil(t *testing.T) {
	t.Parallel()

	provider := NewProvider(false)
	assert.Nil(t, provider)
	assert.Nil(t, provider.MeterProvider())
	readings, err := provider.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, readings)
	require.NoError(t, provider.Shutdown(context.Background()))
}
