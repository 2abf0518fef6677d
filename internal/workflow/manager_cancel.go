package workflow

import (
	"context"
	"errors"
	"fmt"

	"vidgrab/internal/jobs"
	"vidgrab/internal/logging"
	"vidgrab/internal/services"
)

const cancelAttempts = 5

// Cancel stops a job. A queued job fails immediately; a running job is
// interrupted and Cancel returns once its processes have exited and its
// files are gone; a ready job has its artifact removed and expires. Jobs
// that are already failed or expired are returned unchanged.
func (m *Manager) Cancel(ctx context.Context, id string) (*jobs.Job, error) {
	cause := services.Wrap(services.ErrCanceled, "workflow", "cancel", "canceled by request", nil)
	for range cancelAttempts {
		job, err := m.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		switch {
		case job.Status == jobs.StatusReady:
			expired, err := m.expire(ctx, job.ID, "artifact removed by cancel")
			if err != nil {
				return nil, err
			}
			if expired != nil {
				return expired, nil
			}
			continue
		case job.Status.IsTerminal():
			return job, nil
		}

		if r := m.activeRun(id); r != nil {
			r.cancel(cause)
			select {
			case <-r.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}

		// Not running here: queued, or left behind by another process.
		unlock := m.keys.lock(job.SourceKey)
		details := services.Details(cause)
		job.SetFailure(string(details.Kind), details.Message)
		job.SetProgress(job.ProgressStage, job.ProgressPercent, "Canceled")
		err = m.store.Transition(ctx, job, jobs.StatusFailed)
		unlock()
		if errors.Is(err, jobs.ErrStaleTransition) {
			continue
		}
		if err != nil {
			return nil, err
		}
		logger := logging.WithContext(services.WithJobID(ctx, job.ID), m.logger)
		m.removeWorkDir(job.ID, logger)
		m.notifyChange()
		logger.Info("job canceled",
			logging.String(logging.FieldStage, string(jobs.StatusQueued)),
			logging.String(logging.FieldEventType, "job_canceled"),
		)
		return job, nil
	}
	return nil, fmt.Errorf("cancel job %s: state kept changing", id)
}

func (m *Manager) activeRun(id string) *run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[id]
}

// expire reclaims a ready job's artifact and moves it to expired under the
// job's source lock. It returns nil when the job is no longer ready.
func (m *Manager) expire(ctx context.Context, id, reason string) (*jobs.Job, error) {
	job, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	unlock := m.keys.lock(job.SourceKey)
	defer unlock()

	job, err = m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != jobs.StatusReady {
		return nil, nil
	}
	logger := logging.WithContext(services.WithSourceKey(services.WithJobID(ctx, job.ID), job.SourceKey), m.logger)
	if job.ArtifactKey != "" {
		if err := m.artifacts.Remove(ctx, job.ArtifactKey); err != nil {
			return nil, fmt.Errorf("remove artifact %s: %w", job.ArtifactKey, err)
		}
	}
	job.SetFailure(string(services.KindNotFound), reason)
	job.SetProgress(string(jobs.StatusExpired), 100, "Expired")
	if err := m.store.Transition(ctx, job, jobs.StatusExpired); err != nil {
		if errors.Is(err, jobs.ErrStaleTransition) {
			return nil, nil
		}
		return nil, err
	}
	m.notifyChange()
	logger.Info("job expired",
		logging.String("reason", reason),
		logging.String("artifact", job.ArtifactName),
		logging.String(logging.FieldEventType, "job_expired"),
	)
	return job, nil
}
