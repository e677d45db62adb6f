package services_test

import (
	"context"
	"testing"

	"shuttle/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithPhase(ctx, "images")
	ctx = services.WithTrigger(ctx, "stall")
	ctx = services.WithRequestID(ctx, "req-123")

	if phase, ok := services.PhaseFromContext(ctx); !ok || phase != "images" {
		t.Fatalf("unexpected phase: %v %v", phase, ok)
	}
	if trigger, ok := services.TriggerFromContext(ctx); !ok || trigger != "stall" {
		t.Fatalf("unexpected trigger: %v %v", trigger, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestPhaseBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithPhase(ctx, "")
	if _, ok := services.PhaseFromContext(ctx); ok {
		t.Fatal("expected no phase value")
	}
}
