// Package config loads, normalizes, and validates shuttle configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// SHUTTLE_ENDPOINT and SHUTTLE_NONCE. The Config type centralizes every knob
// the daemon and CLI need: the remote batch endpoint, phase batch sizes,
// polling cadence, and stall detection thresholds.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
