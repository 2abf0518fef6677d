package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"vidgrab/internal/jobs"
	"vidgrab/internal/logging"
	"vidgrab/internal/services"
)

// SweepResult summarizes one retention pass.
type SweepResult struct {
	Expired  int
	Purged   int64
	Orphans  int
	Failures int
}

func (m *Manager) newSweeper(ctx context.Context) (*cron.Cron, error) {
	schedule := strings.TrimSpace(m.cfg.Jobs.SweepSchedule)
	if schedule == "" {
		schedule = "@every 1m"
	}
	cronLog := cronLogger{logger: m.logger}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	if _, err := c.AddFunc(schedule, func() { m.Sweep(ctx) }); err != nil {
		return nil, fmt.Errorf("schedule sweeper %q: %w", schedule, err)
	}
	return c, nil
}

// Sweep expires ready jobs past their retention deadline, purges terminal
// records older than the record TTL, and removes work dirs that no active
// job owns.
func (m *Manager) Sweep(ctx context.Context) SweepResult {
	m.sweeping.Lock()
	defer m.sweeping.Unlock()

	var result SweepResult
	now := m.now()

	due, err := m.store.ExpiredReady(ctx, now)
	if err != nil {
		result.Failures++
		m.sweepWarn("list expired jobs failed", err)
	}
	for _, job := range due {
		expired, err := m.expire(ctx, job.ID, "retention window elapsed")
		if err != nil {
			result.Failures++
			m.sweepWarn("expire job failed", err, logging.String(logging.FieldJobID, job.ID))
			continue
		}
		if expired != nil {
			result.Expired++
		}
	}

	if ttl := m.cfg.RecordTTL(); ttl > 0 {
		purged, err := m.store.PurgeTerminalBefore(ctx, now.Add(-ttl))
		if err != nil {
			result.Failures++
			m.sweepWarn("purge job records failed", err)
		}
		result.Purged = purged
	}

	orphans, err := m.removeOrphanWorkDirs(ctx)
	if err != nil {
		result.Failures++
		m.sweepWarn("orphan work dir sweep failed", err)
	}
	result.Orphans = orphans

	if result.Expired > 0 || result.Purged > 0 || result.Orphans > 0 {
		m.logger.Info("retention sweep",
			logging.Int("expired", result.Expired),
			logging.Int64("purged", result.Purged),
			logging.Int("orphans", result.Orphans),
			logging.String(logging.FieldEventType, "retention_sweep"),
		)
	}
	return result
}

// removeOrphanWorkDirs deletes work dirs whose job is not active in the
// registry and not running in this process.
func (m *Manager) removeOrphanWorkDirs(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(m.cfg.Paths.WorkDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read work dir: %w", err)
	}
	removed := 0
	for _, entry := range entries {
		id := entry.Name()
		if m.activeRun(id) != nil {
			continue
		}
		job, err := m.store.Get(ctx, id)
		if err != nil {
			return removed, err
		}
		if job != nil && job.Status.IsActive() {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.cfg.Paths.WorkDir, id)); err != nil {
			return removed, fmt.Errorf("remove orphan %s: %w", id, err)
		}
		removed++
	}
	return removed, nil
}

func (m *Manager) sweepWarn(msg string, err error, attrs ...logging.Attr) {
	attrs = append(attrs,
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check job database and storage access"),
		logging.String(logging.FieldImpact, "artifacts may outlive their retention window"),
	)
	logging.WarnWithContext(m.logger, msg, "retention_sweep_failed", attrs...)
}

// Recover fails jobs a previous process left non-terminal and removes their
// work dirs. It must run before Start.
func (m *Manager) Recover(ctx context.Context) ([]*jobs.Job, error) {
	interrupted, err := m.store.FailInterrupted(ctx, string(services.KindInternal), "service restarted")
	if err != nil {
		return interrupted, fmt.Errorf("recover interrupted jobs: %w", err)
	}
	for _, job := range interrupted {
		m.removeWorkDir(job.ID, m.logger)
	}
	if len(interrupted) > 0 {
		logging.WarnWithContext(m.logger, "interrupted jobs marked failed", "jobs_recovered",
			logging.Int("count", len(interrupted)),
			logging.String(logging.FieldErrorHint, "resubmit the affected URLs"),
			logging.String(logging.FieldImpact, "jobs from the previous run were not completed"),
		)
	}
	return interrupted, nil
}

// cronLogger routes scheduler diagnostics through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("sweeper: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("sweeper: "+msg, append([]any{logging.Error(err)}, keysAndValues...)...)
}
