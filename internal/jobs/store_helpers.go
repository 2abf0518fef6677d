package jobs

import (
	"database/sql"
	"errors"
	"time"
)

const jobColumns = "id, platform, video_id, source_key, source_url, status, target, title, duration_seconds, thumbnail_url, artifact_key, artifact_name, artifact_size, error_kind, error_message, progress_stage, progress_percent, progress_message, created_at, updated_at, ready_at, expires_at, delivered_at, delivery_count, retry_after_seconds"

// timeLayout is fixed-width so stored timestamps compare lexically.
const timeLayout = "2006-01-02 15:04:05.000000"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job           Job
		statusStr     string
		title         sql.NullString
		thumbnail     sql.NullString
		artifactKey   sql.NullString
		artifactName  sql.NullString
		errorKind     sql.NullString
		errorMessage  sql.NullString
		progressStage sql.NullString
		progressMsg   sql.NullString
		createdRaw    string
		updatedRaw    string
		readyRaw      sql.NullString
		expiresRaw    sql.NullString
		deliveredRaw  sql.NullString
	)

	if err := scanner.Scan(
		&job.ID,
		&job.Platform,
		&job.VideoID,
		&job.SourceKey,
		&job.SourceURL,
		&statusStr,
		&job.Target,
		&title,
		&job.DurationSeconds,
		&thumbnail,
		&artifactKey,
		&artifactName,
		&job.ArtifactSize,
		&errorKind,
		&errorMessage,
		&progressStage,
		&job.ProgressPercent,
		&progressMsg,
		&createdRaw,
		&updatedRaw,
		&readyRaw,
		&expiresRaw,
		&deliveredRaw,
		&job.DeliveryCount,
		&job.RetryAfterSeconds,
	); err != nil {
		return nil, err
	}

	job.Status = Status(statusStr)
	job.Title = title.String
	job.ThumbnailURL = thumbnail.String
	job.ArtifactKey = artifactKey.String
	job.ArtifactName = artifactName.String
	job.ErrorKind = errorKind.String
	job.ErrorMessage = errorMessage.String
	job.ProgressStage = progressStage.String
	job.ProgressMessage = progressMsg.String
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	job.ReadyAt = parseNullableTime(readyRaw)
	job.ExpiresAt = parseNullableTime(expiresRaw)
	job.DeliveredAt = parseNullableTime(deliveredRaw)
	return &job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func statusArgs(statuses []Status) []any {
	args := make([]any, 0, len(statuses))
	for _, status := range statuses {
		args = append(args, string(status))
	}
	return args
}
