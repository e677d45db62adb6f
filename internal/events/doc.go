// Package events is the synchronous event bus that decouples phase
// transitions from presentation and side effects (notifications, journal,
// metrics). Payload types for each event name live alongside the bus.
package events
