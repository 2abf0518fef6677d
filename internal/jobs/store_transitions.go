package jobs

import (
	"context"
	"fmt"
	"time"
)

// Transition persists job in status to. The write only succeeds when the row
// is still in the status the caller last observed; on success job.Status is
// updated in place together with every mutable field.
func (s *Store) Transition(ctx context.Context, job *Job, to Status) error {
	from := job.Status
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	now := time.Now().UTC()
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET
             status = ?, title = ?, duration_seconds = ?, thumbnail_url = ?,
             artifact_key = ?, artifact_name = ?, artifact_size = ?,
             error_kind = ?, error_message = ?,
             progress_stage = ?, progress_percent = ?, progress_message = ?,
             updated_at = ?, ready_at = ?, expires_at = ?, delivered_at = ?, delivery_count = ?,
             retry_after_seconds = ?
         WHERE id = ? AND status = ?`,
		string(to),
		nullableString(job.Title),
		job.DurationSeconds,
		nullableString(job.ThumbnailURL),
		nullableString(job.ArtifactKey),
		nullableString(job.ArtifactName),
		job.ArtifactSize,
		nullableString(job.ErrorKind),
		nullableString(job.ErrorMessage),
		nullableString(job.ProgressStage),
		job.ProgressPercent,
		nullableString(job.ProgressMessage),
		formatTime(now),
		nullableTime(job.ReadyAt),
		nullableTime(job.ExpiresAt),
		nullableTime(job.DeliveredAt),
		job.DeliveryCount,
		job.RetryAfterSeconds,
		job.ID,
		string(from),
	)
	if err != nil {
		if to == StatusReady && isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrArtifactNameTaken, job.ArtifactName)
		}
		return fmt.Errorf("transition %s %s -> %s: %w", job.ID, from, to, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition %s rows: %w", job.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: job %s is no longer %s", ErrStaleTransition, job.ID, from)
	}
	job.Status = to
	job.UpdatedAt = now
	return nil
}

// UpdateProgress persists the progress fields while the job remains in its
// current status.
func (s *Store) UpdateProgress(ctx context.Context, job *Job) error {
	now := time.Now().UTC()
	if _, err := s.execWithRetry(ctx,
		`UPDATE jobs SET progress_stage = ?, progress_percent = ?, progress_message = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		nullableString(job.ProgressStage),
		job.ProgressPercent,
		nullableString(job.ProgressMessage),
		formatTime(now),
		job.ID,
		string(job.Status),
	); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	job.UpdatedAt = now
	return nil
}

// MarkDelivered records a completed download of a ready job. It reports
// false when the job is no longer ready.
func (s *Store) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET delivered_at = COALESCE(delivered_at, ?), delivery_count = delivery_count + 1, updated_at = ?
         WHERE id = ? AND status = ?`,
		formatTime(at),
		formatTime(time.Now()),
		id,
		string(StatusReady),
	)
	if err != nil {
		return false, fmt.Errorf("mark delivered: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark delivered rows: %w", err)
	}
	return affected > 0, nil
}

// FailInterrupted moves every non-terminal job to failed with the given
// classification and returns the affected jobs. It is used at startup for
// work a previous process never finished.
func (s *Store) FailInterrupted(ctx context.Context, kind, message string) ([]*Job, error) {
	interrupted, err := s.List(ctx, activeStatuses...)
	if err != nil {
		return nil, err
	}
	failed := make([]*Job, 0, len(interrupted))
	for _, job := range interrupted {
		job.SetFailure(kind, message)
		job.SetProgress(string(job.Status), job.ProgressPercent, "Interrupted")
		if err := s.Transition(ctx, job, StatusFailed); err != nil {
			return failed, err
		}
		failed = append(failed, job)
	}
	return failed, nil
}
