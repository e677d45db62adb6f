// Package daemonctl holds the CLI-side lifecycle helpers for shuttled:
// launching a detached daemon, waiting for its socket, stopping it
// (escalating to SIGKILL when it hangs), and building an offline status
// snapshot when the daemon is unreachable.
package daemonctl
