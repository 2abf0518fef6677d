// Package api defines the wire-format types shared by the HTTP server and the
// CLI, converters from internal job records, and a small HTTP client.
//
// # Key Types
//
// Job: transport representation of a job. Ready jobs carry title, formatted
// duration, thumbnail, absolute downloadUrl and format label; failed and
// expired jobs carry errorKind and a client-safe detail.
//
// Accepted: 202 payload for submissions still running after the submit wait.
//
// ErrorResponse: {detail, kind} body of every error response.
//
// Health: liveness payload with worker, job and dependency summaries.
//
// # Converters
//
// FromJob: jobs.Job -> Job. Internal failure kinds are reported with a
// generic detail via services.PublicMessage.
//
// FromStatusSummary: workflow.StatusSummary -> Health.
//
// # Design Notes
//
// DTOs use camelCase JSON tags for the browser front-end. Timestamps use
// RFC3339 with milliseconds in UTC.
package api
