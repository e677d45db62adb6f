// Package scheduler runs named, recurring polling tasks on an injectable
// clock and adapts the default polling cadence to observed latency and error
// counts.
//
// Registering a name that is already active returns the existing Handle, so
// callers can call StartPolling freely without creating duplicate timers.
package scheduler
