// Package main hosts the shuttle CLI entrypoint and command graph.
//
// The Cobra command tree translates terminal invocations into IPC calls
// against shuttled: daemon lifecycle, per-phase sync controls, journal
// history, log tailing, and test notifications. Configuration resolution and
// socket discovery live in commandContext so subcommands stay declarative.
package main
