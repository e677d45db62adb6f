package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"shuttle/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("connection reset")
	err := services.Wrap(services.ErrTransport, "images", "start batch", "request failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"images", "start batch", "request failed", "connection reset"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestKindClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want services.ErrorKind
	}{
		{"nil", nil, services.KindUnknown},
		{"transport", services.Wrap(services.ErrTransport, "images", "progress", "", errors.New("eof")), services.KindTransport},
		{"application", services.Wrap(services.ErrApplication, "products", "start batch", "nonce expired", nil), services.KindApplication},
		{"lock", fmt.Errorf("start: %w", services.ErrLockContention), services.KindLockContention},
		{"timeout", services.Wrap(services.ErrTimeout, "", "", "", nil), services.KindTimeout},
		{"plain", errors.New("other"), services.KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.Kind(tc.err); got != tc.want {
				t.Fatalf("Kind() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if !services.Retryable(services.Wrap(services.ErrTransport, "images", "progress", "", nil)) {
		t.Fatal("expected transport error to be retryable")
	}
	if services.Retryable(services.Wrap(services.ErrApplication, "images", "progress", "", nil)) {
		t.Fatal("expected application error to be permanent")
	}
}

func TestDetailsExtractsFields(t *testing.T) {
	cause := errors.New("503")
	err := fmt.Errorf("tick: %w", services.Wrap(services.ErrTransport, "products", "progress", "server busy", cause))
	details := services.Details(err)
	if details.Kind != services.KindTransport {
		t.Fatalf("unexpected kind %q", details.Kind)
	}
	if details.Phase != "products" || details.Operation != "progress" || details.Message != "server busy" {
		t.Fatalf("unexpected details %+v", details)
	}
	if details.Cause != cause {
		t.Fatalf("expected cause to be preserved")
	}
	if details.Hint == "" {
		t.Fatal("expected hint")
	}
}
