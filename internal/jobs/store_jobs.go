package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Create inserts a new job. It returns ErrActiveJobExists when another
// non-terminal job already holds the same source key.
func (s *Store) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("create job: nil job")
	}
	if !job.Status.IsActive() {
		return fmt.Errorf("create job: initial status %q is terminal", job.Status)
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	_, err := s.execWithRetry(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (`+makePlaceholders(25)+`)`,
		job.ID,
		job.Platform,
		job.VideoID,
		job.SourceKey,
		job.SourceURL,
		string(job.Status),
		job.Target,
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
		formatTime(job.CreatedAt),
		formatTime(job.UpdatedAt),
		nullableTime(job.ReadyAt),
		nullableTime(job.ExpiresAt),
		nullableTime(job.DeliveredAt),
		job.DeliveryCount,
		job.RetryAfterSeconds,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrActiveJobExists, job.SourceKey)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Get fetches a job by identifier. It returns nil, nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	return s.queryOne(ctx, "get job", `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
}

// FindActiveBySource returns the non-terminal job for sourceKey, if any.
func (s *Store) FindActiveBySource(ctx context.Context, sourceKey string) (*Job, error) {
	args := append([]any{sourceKey}, statusArgs(activeStatuses)...)
	return s.queryOne(ctx, "find active job",
		`SELECT `+jobColumns+` FROM jobs WHERE source_key = ? AND status IN (`+makePlaceholders(len(activeStatuses))+`)
         ORDER BY created_at DESC LIMIT 1`,
		args...)
}

// FindReadyBySource returns the newest ready job for sourceKey and target
// whose artifact has not yet expired at now.
func (s *Store) FindReadyBySource(ctx context.Context, sourceKey, target string, now time.Time) (*Job, error) {
	return s.queryOne(ctx, "find ready job",
		`SELECT `+jobColumns+` FROM jobs
         WHERE source_key = ? AND target = ? AND status = ? AND (expires_at IS NULL OR expires_at > ?)
         ORDER BY ready_at DESC LIMIT 1`,
		sourceKey, target, string(StatusReady), formatTime(now))
}

// FindReadyByArtifactName returns the newest ready job exposing name.
func (s *Store) FindReadyByArtifactName(ctx context.Context, name string) (*Job, error) {
	return s.queryOne(ctx, "find artifact",
		`SELECT `+jobColumns+` FROM jobs WHERE artifact_name = ? AND status = ? ORDER BY ready_at DESC LIMIT 1`,
		name, string(StatusReady))
}

// List returns jobs newest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		args = statusArgs(statuses)
	}
	query += ` ORDER BY created_at DESC`
	return s.queryMany(ctx, "list jobs", query, args...)
}

func (s *Store) queryOne(ctx context.Context, op, query string, args ...any) (*Job, error) {
	ctx = ensureContext(ctx)
	var job *Job
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx, query, args...)
		var scanErr error
		job, scanErr = scanJob(row)
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return job, nil
}

func (s *Store) queryMany(ctx context.Context, op, query string, args ...any) ([]*Job, error) {
	var result []*Job
	err := retryOnBusy(ctx, func() error {
		result = result[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			job, err := scanJob(rows)
			if err != nil {
				return err
			}
			result = append(result, job)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
