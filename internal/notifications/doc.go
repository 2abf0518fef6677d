// Package notifications publishes finished-job events to ntfy.
//
// NewService returns a no-op implementation when notifications.ntfy_topic is
// empty, so callers never need to check whether notifications are enabled.
// Delivery failures are returned to the caller, which logs them; they never
// affect the job.
package notifications
