// Package daemon coordinates the long-running vidgrab process.
//
// It wires the job store, the workflow manager and the HTTP server into a
// single lifecycle with flock-based locking so only one instance owns a data
// directory. Start fails jobs interrupted by a previous process before any
// worker runs; Stop drains HTTP requests, cancels running jobs and releases
// the lock.
//
// Keep orchestration logic here: pipeline steps live in their own packages
// while the daemon focuses on startup, shutdown, and high level coordination.
package daemon
