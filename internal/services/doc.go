// Package services defines shared utilities consumed by the orchestrators and
// their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp phase names, batch triggers, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures as
//     transport, application, lock contention, or stall conditions.
//
// Use these helpers when wiring new runner or orchestration logic so error
// handling and observability stay uniform across both phases.
package services
