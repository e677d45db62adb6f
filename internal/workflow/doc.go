// Package workflow wires the sync engine together for the daemon.
//
// The Manager owns the single StateStore, Scheduler and EventBus shared by the
// images and products orchestrators, builds one stall detector per phase, and
// subscribes a recorder that mirrors bus events into the SQLite journal, the
// OpenTelemetry instruments and ntfy notifications. On Start it runs preflight
// checks, chains products after images when configured, and re-attaches to
// jobs the server still reports as running, so orchestration state is rebuilt
// from one progress fetch per phase rather than persisted.
//
// Operator controls (start, reset, cancel, pause, resume, nudge) route through
// the Manager so the IPC and HTTP surfaces share one set of guards.
package workflow
