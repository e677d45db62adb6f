// Package daemonrun assembles the shuttled process: logger, journal, metrics,
// HTTP runner, workflow manager, daemon, and IPC server, then blocks until a
// termination signal arrives.
package daemonrun
