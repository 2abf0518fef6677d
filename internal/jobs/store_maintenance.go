package jobs

import (
	"context"
	"fmt"
	"time"
)

// ExpiredReady returns ready jobs whose retention deadline is at or before now.
func (s *Store) ExpiredReady(ctx context.Context, now time.Time) ([]*Job, error) {
	return s.queryMany(ensureContext(ctx), "list expired jobs",
		`SELECT `+jobColumns+` FROM jobs
         WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ?
         ORDER BY expires_at`,
		string(StatusReady), formatTime(now))
}

// PurgeTerminalBefore deletes failed and expired job records last updated
// before cutoff.
func (s *Store) PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM jobs WHERE status IN (?, ?) AND updated_at < ?`,
		string(StatusFailed), string(StatusExpired), formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge terminal jobs: %w", err)
	}
	return res.RowsAffected()
}

// CountActive returns the number of non-terminal jobs.
func (s *Store) CountActive(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)
	var count int
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM jobs WHERE status IN (`+makePlaceholders(len(activeStatuses))+`)`,
			statusArgs(activeStatuses)...,
		).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("count active jobs: %w", err)
	}
	return count, nil
}

// Stats returns the number of jobs per status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	ctx = ensureContext(ctx)
	stats := make(map[Status]int, len(allStatuses))
	err := retryOnBusy(ctx, func() error {
		clear(stats)
		rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				status string
				count  int
			)
			if err := rows.Scan(&status, &count); err != nil {
				return err
			}
			stats[Status(status)] = count
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return stats, nil
}
