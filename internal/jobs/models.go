package jobs

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusResolving   Status = "resolving"
	StatusFetching    Status = "fetching"
	StatusTranscoding Status = "transcoding"
	StatusReady       Status = "ready"
	StatusFailed      Status = "failed"
	StatusExpired     Status = "expired"
)

var allStatuses = []Status{
	StatusQueued,
	StatusResolving,
	StatusFetching,
	StatusTranscoding,
	StatusReady,
	StatusFailed,
	StatusExpired,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var activeStatuses = []Status{StatusQueued, StatusResolving, StatusFetching, StatusTranscoding}

type statusTransition struct {
	from Status
	to   Status
}

var allowedTransitions = func() map[statusTransition]struct{} {
	set := map[statusTransition]struct{}{
		{from: StatusQueued, to: StatusResolving}:     {},
		{from: StatusResolving, to: StatusFetching}:   {},
		{from: StatusFetching, to: StatusTranscoding}: {},
		{from: StatusTranscoding, to: StatusReady}:    {},
		{from: StatusReady, to: StatusExpired}:        {},
	}
	for _, status := range activeStatuses {
		set[statusTransition{from: status, to: StatusFailed}] = struct{}{}
	}
	return set
}()

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ActiveStatuses returns the non-terminal statuses.
func ActiveStatuses() []Status {
	out := make([]Status, len(activeStatuses))
	copy(out, activeStatuses)
	return out
}

// ParseStatus converts a string into a Status, reporting whether it is known.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsActive reports whether the status is non-terminal.
func (s Status) IsActive() bool {
	switch s {
	case StatusQueued, StatusResolving, StatusFetching, StatusTranscoding:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further pipeline work happens in this status.
func (s Status) IsTerminal() bool {
	return !s.IsActive()
}

// CanTransition reports whether the state machine permits from -> to.
func CanTransition(from, to Status) bool {
	_, ok := allowedTransitions[statusTransition{from: from, to: to}]
	return ok
}

// Job is one request-to-artifact pipeline run persisted in SQLite.
type Job struct {
	ID              string
	Platform        string
	VideoID         string
	SourceKey       string
	SourceURL       string
	Status          Status
	Target          string
	Title           string
	DurationSeconds float64
	ThumbnailURL    string
	ArtifactKey     string
	ArtifactName    string
	ArtifactSize    int64
	ErrorKind       string
	ErrorMessage    string
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ReadyAt         *time.Time
	ExpiresAt       *time.Time
	DeliveredAt     *time.Time
	DeliveryCount   int
	// RetryAfterSeconds is the upstream retry hint recorded with a failure.
	RetryAfterSeconds int
}

// SourceKey builds the dedup key for a platform video.
func SourceKey(platform, videoID string) string {
	return platform + ":" + videoID
}

// NewJob returns a queued job with a fresh identifier. The job is not persisted.
func NewJob(platform, videoID, sourceURL, target string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.NewString(),
		Platform:  platform,
		VideoID:   videoID,
		SourceKey: SourceKey(platform, videoID),
		SourceURL: sourceURL,
		Status:    StatusQueued,
		Target:    target,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Duration returns the media duration reported by the resolver.
func (j *Job) Duration() time.Duration {
	return time.Duration(j.DurationSeconds * float64(time.Second))
}

// SetFailure records the failure classification without changing status.
func (j *Job) SetFailure(kind, message string) {
	j.ErrorKind = strings.TrimSpace(kind)
	j.ErrorMessage = strings.TrimSpace(message)
}

// SetRetryAfter records how long clients should wait before resubmitting a
// failed job, rounded up to whole seconds.
func (j *Job) SetRetryAfter(delay time.Duration) {
	if delay <= 0 {
		j.RetryAfterSeconds = 0
		return
	}
	j.RetryAfterSeconds = int((delay + time.Second - 1) / time.Second)
}

// RetryAfter returns the recorded retry hint.
func (j *Job) RetryAfter() time.Duration {
	return time.Duration(j.RetryAfterSeconds) * time.Second
}

// SetProgress records a progress snapshot without changing status.
func (j *Job) SetProgress(stage string, percent float64, message string) {
	j.ProgressStage = stage
	j.ProgressPercent = max(0, min(percent, 100))
	j.ProgressMessage = message
}

func (j *Job) String() string {
	return fmt.Sprintf("job %s (%s, %s)", j.ID, j.SourceKey, j.Status)
}
