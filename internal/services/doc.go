// Package services defines shared utilities consumed by the pipeline
// components and the delivery endpoint.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, source keys, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the stable kinds reported to clients (InvalidInputError,
//     UpstreamBlockedError, TranscodeError, ...) and their HTTP statuses.
//   - Retry hints carried alongside errors so rate-limited upstream failures
//     can surface a Retry-After value.
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error classification, observability, client messaging) stays uniform.
package services
