package jobs_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shuttle/internal/config"
	"shuttle/internal/jobs"
	"shuttle/internal/phase"
	"shuttle/internal/services"
)

func newRunner(t *testing.T, handler http.HandlerFunc) *jobs.HTTPRunner {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.Default().Runner
	cfg.Endpoint = server.URL
	cfg.Nonce = "n0nce"
	cfg.RetryMaxAttempts = 3
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return jobs.NewHTTPRunner(cfg,
		jobs.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
		jobs.WithClock(func() time.Time { return fixed }),
	)
}

func TestStartBatchPostsFormAndParsesResult(t *testing.T) {
	t.Parallel()
	var got map[string]string
	runner := newRunner(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = map[string]string{
			"action":     r.PostForm.Get("action"),
			"phase":      r.PostForm.Get("phase"),
			"batch_size": r.PostForm.Get("batch_size"),
			"nonce":      r.PostForm.Get("nonce"),
		}
		fmt.Fprint(w, `{"success":true,"data":{"batchIndex":1,"totalBatches":"12","message":"queued"}}`)
	})

	result, err := runner.StartBatch(context.Background(), phase.Images, 25)
	require.NoError(t, err)
	assert.Equal(t, jobs.BatchResult{BatchIndex: 1, TotalBatches: 12, Message: "queued"}, result)
	assert.Equal(t, map[string]string{
		"action":     "shuttle_start_batch",
		"phase":      "images",
		"batch_size": "25",
		"nonce":      "n0nce",
	}, got)
}

func TestStartBatchIsNotRetried(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	runner := newRunner(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := runner.StartBatch(context.Background(), phase.Products, 50)
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrTransport))
	assert.Equal(t, int32(1), calls.Load())
}

func TestStartBatchApplicationFailure(t *testing.T) {
	t.Parallel()
	runner := newRunner(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":false,"data":{"message":"sync already running"}}`)
	})

	_, err := runner.StartBatch(context.Background(), phase.Images, 25)
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrApplication))
	assert.Contains(t, err.Error(), "sync already running")
}

func TestProgressParsesSnakeAndCamelCase(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
		want jobs.Snapshot
	}{
		{
			name: "snake case running",
			body: `{"success":true,"data":{"batch_index":3,"total_batches":10,"items_processed":75,"items_total":250,"in_progress":true,"message":" working "}}`,
			want: jobs.Snapshot{BatchIndex: 3, TotalBatches: 10, ItemsProcessed: 75, ItemsTotal: 250, InProgress: true, Status: jobs.StatusRunning, Message: "working"},
		},
		{
			name: "camel case completed wins",
			body: `{"success":true,"data":{"batchIndex":"10","totalBatches":10,"itemsProcessed":260,"itemsTotal":250,"inProgress":true,"isComplete":true}}`,
			want: jobs.Snapshot{BatchIndex: 10, TotalBatches: 10, ItemsProcessed: 250, ItemsTotal: 250, Completed: true, Status: jobs.StatusCompleted},
		},
		{
			name: "status string only",
			body: `{"success":true,"data":{"status":"processing","processed":5,"total":10}}`,
			want: jobs.Snapshot{ItemsProcessed: 5, ItemsTotal: 10, InProgress: true, Status: jobs.StatusRunning},
		},
		{
			name: "bare object without envelope",
			body: `{"status":"idle"}`,
			want: jobs.Snapshot{Status: jobs.StatusIdle},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			runner := newRunner(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tc.body)
			})
			snap, err := runner.Progress(context.Background(), phase.Images)
			require.NoError(t, err)
			tc.want.Timestamp = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			assert.Equal(t, tc.want, snap)
		})
	}
}

func TestProgressRejectsNegativeCounters(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	runner := newRunner(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"success":true,"data":{"batch_index":-1}}`)
	})

	_, err := runner.Progress(context.Background(), phase.Images)
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrValidation))
	assert.Equal(t, int32(1), calls.Load(), "validation failures are not retried")
}

func TestProgressRetriesTransportFailures(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	runner := newRunner(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"success":true,"data":{"completed":true}}`)
	})

	snap, err := runner.Progress(context.Background(), phase.Products)
	require.NoError(t, err)
	assert.True(t, snap.Completed)
	assert.Equal(t, int32(3), calls.Load())
}

func TestProgressGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	runner := newRunner(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := runner.Progress(context.Background(), phase.Products)
	require.Error(t, err)
	assert.True(t, services.Retryable(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestMalformedResponseIsApplicationError(t *testing.T) {
	t.Parallel()
	runner := newRunner(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>login</html>`)
	})

	_, err := runner.Progress(context.Background(), phase.Images)
	require.Error(t, err)
	assert.Equal(t, services.KindApplication, services.Kind(err))
}

func TestErrorBodyIsTruncatedOnRuneBoundary(t *testing.T) {
	t.Parallel()
	runner := newRunner(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		// The odd prefix puts byte 200 inside a two-byte rune.
		fmt.Fprint(w, "x"+strings.Repeat("é", 150))
	})

	_, err := runner.StartBatch(context.Background(), phase.Images, 10)
	require.Error(t, err)
	assert.Equal(t, services.KindApplication, services.Kind(err))
	assert.True(t, utf8.ValidString(err.Error()), "error text must stay valid UTF-8: %q", err.Error())
	assert.Contains(t, err.Error(), "x"+strings.Repeat("é", 99)+"...")
}

func TestCancelUsesCancelAction(t *testing.T) {
	t.Parallel()
	var action string
	runner := newRunner(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		action = r.PostForm.Get("action")
		fmt.Fprint(w, `{"success":true}`)
	})

	var canceller jobs.Canceller = runner
	require.NoError(t, canceller.Cancel(context.Background(), phase.Products))
	assert.Equal(t, "shuttle_cancel_sync", action)
}

func TestSnapshotPercent(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 30.0, jobs.Snapshot{ItemsProcessed: 75, ItemsTotal: 250}.Percent(), 0.001)
	assert.Equal(t, -1.0, jobs.Snapshot{}.Percent())
	assert.Equal(t, 100.0, jobs.Snapshot{Completed: true}.Percent())
}
