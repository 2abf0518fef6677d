// Package workflow turns submitted URLs into ready artifacts.
//
// The Manager owns the job lifecycle: it deduplicates submissions per source
// key, admits work up to workers + queue depth, and runs each job on a pool
// worker through resolving, fetching, and transcoding before publishing the
// artifact to storage. Every failure is classified into a stable error kind
// and leaves no work files or partial artifacts behind.
//
// Cancellation is synchronous: Cancel returns only after the job's
// subprocesses have exited and its files are gone. A cron-driven sweeper
// expires ready jobs past their retention window, purges old terminal
// records, and removes orphaned work directories. Recover fails jobs that a
// previous process left mid-flight.
package workflow
