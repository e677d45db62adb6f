// Package telemetry records OpenTelemetry metrics for phase orchestration.
//
// Instruments are nil-safe: a nil *SyncMetrics or *Provider records nothing,
// which is what the daemon uses when [metrics] is disabled.
package telemetry
