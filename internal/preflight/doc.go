// Package preflight checks that the daemon's directories are usable and
// that the remote endpoints it depends on answer before work begins.
//
// Results are informational: the daemon logs failures and keeps running so
// a temporarily unreachable endpoint does not block startup.
package preflight
