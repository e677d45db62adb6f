package jobs

import (
	"context"

	"shuttle/internal/phase"
)

// Runner drives the remote batch job for a phase.
type Runner interface {
	// StartBatch asks the server to begin (or continue with) the next batch.
	StartBatch(ctx context.Context, p phase.Phase, batchSize int) (BatchResult, error)
	// Progress fetches the current progress snapshot.
	Progress(ctx context.Context, p phase.Phase) (Snapshot, error)
}

// Canceller is implemented by runners that can abort the remote job.
type Canceller interface {
	Cancel(ctx context.Context, p phase.Phase) error
}
