// Package logs tails the daemon log file for `shuttle logs`.
//
// Reads are bounded: a negative offset returns the last N lines, a positive
// offset resumes where the previous call stopped, and follow mode polls for
// new lines until the wait window closes or the context ends. The daemon
// serves these reads over IPC so the CLI never needs the log path.
package logs
