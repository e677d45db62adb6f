// Package orchestrator drives one sync phase through its lifecycle.
//
// An Orchestrator takes the phase's starting lock, issues a single batch
// start, and registers a progress poll with the scheduler. Each snapshot is
// published as syncProgress and fed to the stall detector. On completion the
// poll is stopped and phaseCompleted is emitted; the downstream phase
// subscribes to that event through FollowPhase and never calls the upstream
// orchestrator directly.
package orchestrator
