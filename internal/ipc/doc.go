// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// The server registers a single "Shuttle" receiver whose methods wrap daemon
// lifecycle, phase controls, journal history, log tailing, and test
// notifications. Rejected phase controls come back as RPC errors carrying the
// daemon's message; everything else returns a typed response.
//
// Add new endpoints as a request/response pair in types.go plus one server
// method and one client method so the CLI and daemon stay in lockstep.
package ipc
