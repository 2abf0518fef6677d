package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vidgrab/internal/jobs"
	"vidgrab/internal/logging"
	"vidgrab/internal/services"
)

// pollInterval bounds how long Wait sleeps between registry reads when no
// change notification arrives.
const pollInterval = 500 * time.Millisecond

// Submit admits rawURL. It returns the job serving the request and whether
// a new job was created. An existing non-terminal job for the same source is
// returned instead of creating a duplicate; with reuse enabled a still
// retained ready job for the same source and target is returned as well.
func (m *Manager) Submit(ctx context.Context, rawURL string) (*jobs.Job, bool, error) {
	ref, err := m.resolver.Parse(rawURL)
	if err != nil {
		return nil, false, err
	}
	key := ref.Key()
	ctx = services.WithSourceKey(ctx, key)
	logger := logging.WithContext(ctx, m.logger)

	unlock := m.keys.lock(key)
	defer unlock()

	m.mu.RLock()
	stopped := m.stopped
	m.mu.RUnlock()
	if stopped {
		return nil, false, services.WithRetryAfter(
			services.Wrap(services.ErrCapacityExceeded, "workflow", "submit", "service shutting down", nil),
			capacityRetryAfter)
	}

	existing, err := m.store.FindActiveBySource(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		logger.Debug("submission joined active job",
			logging.String(logging.FieldJobID, existing.ID),
			logging.String("status", string(existing.Status)),
		)
		return existing, false, nil
	}

	if m.cfg.Jobs.ReuseReady {
		ready, err := m.store.FindReadyBySource(ctx, key, m.target.Key(), m.now())
		if err != nil {
			return nil, false, err
		}
		if ready != nil {
			logger.Debug("submission reused ready job", logging.String(logging.FieldJobID, ready.ID))
			return ready, false, nil
		}
	}

	activeCount, err := m.store.CountActive(ctx)
	if err != nil {
		return nil, false, err
	}
	if capacity := m.cfg.Capacity(); activeCount >= capacity {
		logging.WarnWithContext(logger, "submission rejected; pool full", "capacity_exceeded",
			logging.Int("active_jobs", activeCount),
			logging.Int("capacity", capacity),
			logging.String(logging.FieldErrorHint, "raise jobs.workers or jobs.queue_depth"),
			logging.String(logging.FieldImpact, "client must retry later"),
		)
		return nil, false, services.WithRetryAfter(
			services.Wrap(services.ErrCapacityExceeded, "workflow", "submit",
				fmt.Sprintf("%d jobs already in progress", activeCount), nil),
			capacityRetryAfter)
	}

	job := jobs.NewJob(ref.Platform, ref.ID, m.resolver.CanonicalURL(ref), m.target.Key())
	job.SetProgress(string(jobs.StatusQueued), 0, "Queued")
	if err := m.store.Create(ctx, job); err != nil {
		if errors.Is(err, jobs.ErrActiveJobExists) {
			// Another process sharing the registry won the race.
			existing, findErr := m.store.FindActiveBySource(ctx, key)
			if findErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}
	m.enqueue(job.ID)
	logger.Info("job queued",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("source_url", job.SourceURL),
		logging.String(logging.FieldEventType, "job_queued"),
	)
	return job, true, nil
}

// Get returns the job with id or a NotFoundError.
func (m *Manager) Get(ctx context.Context, id string) (*jobs.Job, error) {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "workflow", "get job", fmt.Sprintf("job %s does not exist", id), nil)
	}
	return job, nil
}

// List returns jobs newest first, optionally filtered by status.
func (m *Manager) List(ctx context.Context, statuses ...jobs.Status) ([]*jobs.Job, error) {
	return m.store.List(ctx, statuses...)
}

// Wait blocks until the job is terminal or ctx ends. On ctx expiry it
// returns the latest snapshot together with ctx.Err().
func (m *Manager) Wait(ctx context.Context, id string) (*jobs.Job, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		signal := m.changeSignal()
		job, err := m.Get(context.WithoutCancel(ctx), id)
		if err != nil {
			return nil, err
		}
		if job.Status.IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-signal:
		case <-ticker.C:
		}
	}
}
