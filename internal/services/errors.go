package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Kind is the stable, client-visible classification of a failure.
type Kind string

const (
	KindInvalidInput     Kind = "InvalidInputError"
	KindNotFound         Kind = "NotFoundError"
	KindUpstreamBlocked  Kind = "UpstreamBlockedError"
	KindUpstream         Kind = "UpstreamError"
	KindResourceLimit    Kind = "ResourceLimitError"
	KindFetchFailed      Kind = "FetchFailedError"
	KindTranscode        Kind = "TranscodeError"
	KindCapacityExceeded Kind = "CapacityExceededError"
	KindCanceled         Kind = "CanceledError"
	KindInternal         Kind = "InternalError"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("not found")
	ErrUpstreamBlocked  = errors.New("upstream blocked")
	ErrUpstream         = errors.New("upstream failure")
	ErrResourceLimit    = errors.New("resource limit exceeded")
	ErrFetchFailed      = errors.New("fetch failed")
	ErrTranscode        = errors.New("transcode failed")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrCanceled         = errors.New("canceled")
	ErrConfiguration    = errors.New("configuration error")
)

// markerKinds is ordered; the first marker found in the chain wins.
var markerKinds = []struct {
	marker error
	kind   Kind
}{
	{ErrCanceled, KindCanceled},
	{ErrInvalidInput, KindInvalidInput},
	{ErrNotFound, KindNotFound},
	{ErrUpstreamBlocked, KindUpstreamBlocked},
	{ErrUpstream, KindUpstream},
	{ErrResourceLimit, KindResourceLimit},
	{ErrFetchFailed, KindFetchFailed},
	{ErrTranscode, KindTranscode},
	{ErrCapacityExceeded, KindCapacityExceeded},
}

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		return fmt.Errorf("%s: %w", detail, errOrUnknown(err))
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func errOrUnknown(err error) error {
	if err == nil {
		return errors.New("unknown error")
	}
	return err
}

// KindOf classifies err. Unmarked errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, entry := range markerKinds {
		if errors.Is(err, entry.marker) {
			return entry.kind
		}
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	return KindInternal
}

// Marker returns the sentinel associated with kind, or nil for internal
// and unknown kinds.
func Marker(kind Kind) error {
	for _, entry := range markerKinds {
		if entry.kind == kind {
			return entry.marker
		}
	}
	return nil
}

// HTTPStatus maps a kind to the status code returned to clients.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstreamBlocked:
		return http.StatusTooManyRequests
	case KindUpstream:
		return http.StatusBadGateway
	case KindCapacityExceeded:
		return http.StatusServiceUnavailable
	case KindCanceled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// IsInternal reports whether errors of kind must be reported to clients with a
// generic message instead of their detail.
func IsInternal(kind Kind) bool {
	switch kind {
	case KindResourceLimit, KindFetchFailed, KindTranscode, KindInternal, "":
		return true
	default:
		return false
	}
}

// PublicMessage returns the client-facing message for a failure of the given
// kind. Internal kinds never leak their detail, and upstream kinds report a
// fixed message plus the retry hint when one is known.
func PublicMessage(kind Kind, detail string, retryAfter time.Duration) string {
	switch kind {
	case KindUpstreamBlocked:
		return "The video platform is rate limiting requests. " + retryHint(retryAfter)
	case KindUpstream:
		return "The video platform returned an unexpected response. " + retryHint(retryAfter)
	}
	if IsInternal(kind) {
		switch kind {
		case KindResourceLimit:
			return "The video exceeds the processing limits of this service."
		case KindFetchFailed:
			return "Downloading the video failed. Please try again later."
		case KindTranscode:
			return "Converting the video failed."
		default:
			return "Internal server error."
		}
	}
	if detail = strings.TrimSpace(detail); detail != "" {
		return detail
	}
	switch kind {
	case KindInvalidInput:
		return "Invalid video URL."
	case KindNotFound:
		return "Not found."
	case KindCapacityExceeded:
		return "The server is busy. Please try again later."
	case KindCanceled:
		return "The job was cancelled."
	}
	return "Request failed."
}

func retryHint(delay time.Duration) string {
	if delay <= 0 {
		return "Please try again later."
	}
	seconds := int((delay + time.Second - 1) / time.Second)
	if seconds == 1 {
		return "Try again in 1 second."
	}
	return fmt.Sprintf("Try again in %d seconds.", seconds)
}

type retryAfterError struct {
	err   error
	delay time.Duration
}

func (e *retryAfterError) Error() string { return e.err.Error() }

func (e *retryAfterError) Unwrap() error { return e.err }

// WithRetryAfter attaches a retry hint to err.
func WithRetryAfter(err error, delay time.Duration) error {
	if err == nil || delay <= 0 {
		return err
	}
	return &retryAfterError{err: err, delay: delay}
}

// RetryAfter returns the retry hint carried by err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var target *retryAfterError
	if errors.As(err, &target) {
		return target.delay, true
	}
	return 0, false
}

// Message strips the marker prefix from err so the remaining detail can be
// stored alongside the kind.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, entry := range markerKinds {
		prefix := entry.marker.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}

// ErrorDetails summarizes an error for structured logging.
type ErrorDetails struct {
	Kind    Kind
	Message string
	Hint    string
}

// Details extracts the kind, message, and operator hint for err.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	kind := KindOf(err)
	return ErrorDetails{Kind: kind, Message: Message(err), Hint: hintFor(kind)}
}

func hintFor(kind Kind) string {
	switch kind {
	case KindInvalidInput:
		return "check the submitted URL"
	case KindNotFound:
		return "the video or artifact no longer exists"
	case KindUpstreamBlocked:
		return "upstream is rate limiting; wait before retrying or rotate egress"
	case KindUpstream:
		return "inspect resolver output and upstream availability"
	case KindResourceLimit:
		return "raise fetch.max_download_mib / fetch.max_duration_seconds or free disk space"
	case KindFetchFailed:
		return "check network connectivity to the media host"
	case KindTranscode:
		return "inspect ffmpeg stderr in the log entry"
	case KindCapacityExceeded:
		return "raise jobs.workers or jobs.queue_depth"
	case KindCanceled:
		return "job was cancelled by request or shutdown"
	default:
		return "check logs for details"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
