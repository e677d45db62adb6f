// Package jobs is the client side of the remote batch jobs: the Runner
// contract the orchestrators depend on, the validated progress Snapshot, and
// HTTPRunner, which speaks the admin endpoint's form-encoded protocol.
//
// Payloads are parsed leniently and validated once here; everything
// downstream works with normalized Snapshots.
package jobs
