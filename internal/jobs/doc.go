// Package jobs persists download jobs in SQLite.
//
// A Job moves through queued -> resolving -> fetching -> transcoding -> ready,
// may fail from any non-terminal state, and ends as expired once a ready
// artifact is reclaimed. Transition enforces that state machine with a
// compare-and-set on the previous status, and a partial unique index keeps at
// most one non-terminal job per source key so concurrent submitters cannot
// start duplicate pipelines.
//
// The Store retries SQLITE_BUSY with bounded backoff and checks the embedded
// schema version on open.
package jobs
