package api

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"vidgrab/internal/deps"
	"vidgrab/internal/jobs"
	"vidgrab/internal/services"
	"vidgrab/internal/workflow"
)

// FromJob converts a job record to its API representation. downloadURL and
// format are only reported for ready jobs.
func FromJob(job *jobs.Job, downloadURL, format string) Job {
	if job == nil {
		return Job{}
	}

	dto := Job{
		ID:              job.ID,
		Status:          string(job.Status),
		Title:           job.Title,
		Duration:        FormatDuration(job.DurationSeconds),
		DurationSeconds: job.DurationSeconds,
		Thumbnail:       job.ThumbnailURL,
		SourceURL:       job.SourceURL,
		Progress: JobProgress{
			Stage:   job.ProgressStage,
			Percent: job.ProgressPercent,
			Message: job.ProgressMessage,
		},
		Deliveries: job.DeliveryCount,
		CreatedAt:  formatTime(job.CreatedAt),
		UpdatedAt:  formatTime(job.UpdatedAt),
	}
	if dto.Progress.Stage == "" {
		dto.Progress.Stage = string(job.Status)
	}

	switch job.Status {
	case jobs.StatusReady:
		dto.DownloadURL = downloadURL
		dto.Format = format
		dto.Size = job.ArtifactSize
		if job.ReadyAt != nil {
			dto.ReadyAt = formatTime(*job.ReadyAt)
		}
		if job.ExpiresAt != nil {
			dto.ExpiresAt = formatTime(*job.ExpiresAt)
		}
	case jobs.StatusFailed, jobs.StatusExpired:
		kind := services.Kind(job.ErrorKind)
		if kind == "" {
			kind = services.KindInternal
		}
		dto.ErrorKind = string(kind)
		dto.Detail = services.PublicMessage(kind, job.ErrorMessage, job.RetryAfter())
	}
	return dto
}

// FormatDuration renders seconds as M:SS, or H:MM:SS from one hour up.
// Unknown durations render as an empty string.
func FormatDuration(seconds float64) string {
	if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return ""
	}
	total := int64(math.Round(seconds))
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

// FromDependencies converts binary checks into their API representation,
// sorted by name.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, DependencyStatus{
			Name:        status.Name,
			Command:     status.Command,
			Description: status.Description,
			Optional:    status.Optional,
			Available:   status.Available,
			Detail:      status.Detail,
		})
	}
	slices.SortFunc(out, func(a, b DependencyStatus) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// FromStatusSummary builds the health payload. The service reports
// "degraded" when a required dependency is missing or the workers are not
// running.
func FromStatusSummary(summary workflow.StatusSummary, format string, dependencies []DependencyStatus) Health {
	health := Health{
		Status:        "ok",
		UptimeSeconds: int64(summary.Uptime / time.Second),
		Workers:       summary.Workers,
		Capacity:      summary.Capacity,
		ActiveJobs:    summary.ActiveJobs,
		InFlight:      summary.InFlight,
		Format:        format,
		LastError:     summary.LastError,
		Dependencies:  dependencies,
	}
	if health.Dependencies == nil {
		health.Dependencies = []DependencyStatus{}
	}
	if len(summary.JobStats) > 0 {
		health.JobCounts = make(map[string]int, len(summary.JobStats))
		for status, count := range summary.JobStats {
			health.JobCounts[string(status)] = count
		}
	}
	if !summary.Running {
		health.Status = "degraded"
	}
	for _, dep := range dependencies {
		if !dep.Optional && !dep.Available {
			health.Status = "degraded"
		}
	}
	return health
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
