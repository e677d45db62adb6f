// Package daemon coordinates the long-running shuttle process.
//
// It wires configuration, the workflow manager, the event journal and the
// metrics provider into a single lifecycle with flock-based locking so only
// one local daemon drives the remote sync jobs. The daemon exposes phase
// controls shared by the IPC and HTTP surfaces, serves the bearer-protected
// HTTP API, and reports combined status for the CLI.
//
// Keep orchestration logic in the workflow and orchestrator packages; the
// daemon focuses on startup, shutdown, and high level coordination.
package daemon
