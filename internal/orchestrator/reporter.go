package orchestrator

import (
	"context"

	"shuttle/internal/phase"
)

// Reporter receives transport and application failures after the
// orchestrator has logged them and emitted syncError.
type Reporter interface {
	Report(ctx context.Context, p phase.Phase, err error)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, p phase.Phase, err error)

func (f ReporterFunc) Report(ctx context.Context, p phase.Phase, err error) {
	f(ctx, p, err)
}

type noopReporter struct{}

func (noopReporter) Report(context.Context, phase.Phase, error) {}
