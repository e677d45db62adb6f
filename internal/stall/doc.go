// Package stall detects phases whose remote batch index has stopped moving.
//
// The threshold adapts to observed batch durations: with fewer than
// MinSamples recorded it is Default, otherwise round(avg × Multiplier)
// clamped to [Min, Max]. A stall triggers one remediation per episode; only a
// genuine batch change ends the episode, so repeated nudges cannot hide a
// pipeline that never recovers.
package stall
