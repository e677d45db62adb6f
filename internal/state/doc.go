// Package state holds the in-memory orchestration flags shared by the phase
// orchestrators: the starting and processing-batch test-and-set locks, the
// initialized flag, the polling handle table, and the inactive-progress
// counter. Nothing here is persisted; the daemon rebuilds it from one progress
// fetch per phase at startup.
package state
