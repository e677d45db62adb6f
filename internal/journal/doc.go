// Package journal keeps a SQLite history of orchestration events.
//
// The daemon appends one row per bus event it considers operator-relevant
// (phase state changes, completions, stalls, errors, notices) and prunes rows
// older than the configured retention. The CLI reads it back through the IPC
// History method. The journal is an audit trail only; orchestration state is
// never restored from it.
package journal
