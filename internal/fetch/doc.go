// Package fetch downloads selected manifest streams to a job's work
// directory.
//
// Transfers resume with byte-range requests after partial failures and retry
// transient errors according to a pure Backoff policy, honouring upstream
// Retry-After hints. A per-job byte budget shared by parallel transfers and a
// wall-clock limit both surface as ResourceLimitError; exhausting retries
// surfaces as FetchFailedError.
package fetch
