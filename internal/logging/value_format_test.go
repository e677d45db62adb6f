package logging

import (
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"
)

func TestFormatValue(t *testing.T) {
	cases := []struct {
		name  string
		value slog.Value
		want  string
	}{
		{"plain string", slog.StringValue("images"), "images"},
		{"spaced string", slog.StringValue("batch started"), `"batch started"`},
		{"empty string", slog.StringValue(""), `""`},
		{"percent", slog.Float64Value(37.5123), "37.51"},
		{"sub-millisecond", slog.DurationValue(250 * time.Microsecond), "250µs"},
		{"latency", slog.DurationValue(1234567 * time.Microsecond), "1.23s"},
		{"poll latency", slog.DurationValue(84123 * time.Microsecond), "84ms"},
		{"stall idle", slog.DurationValue(3*time.Minute + 12*time.Second + 400*time.Millisecond), "3m12s"},
		{"error", slog.AnyValue(errors.New("connection refused")), `"connection refused"`},
		{"stringer", slog.AnyValue(net.IPv4(127, 0, 0, 1)), "127.0.0.1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := formatValue(tc.value); got != tc.want {
				t.Fatalf("formatValue = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestAttrStringDoesNotQuote(t *testing.T) {
	if got := attrString(slog.StringValue("phase 1")); got != "phase 1" {
		t.Fatalf("attrString = %q", got)
	}
	if got := attrString(slog.AnyValue(errors.New("boom"))); got != "boom" {
		t.Fatalf("attrString error = %q", got)
	}
}

func TestFormatTimestampZero(t *testing.T) {
	if got := formatTimestamp(time.Time{}); got != "" {
		t.Fatalf("zero timestamp = %q", got)
	}
}
