package workflow

import (
	"context"
	"log/slog"

	"vidgrab/internal/jobs"
	"vidgrab/internal/logging"
	"vidgrab/internal/notifications"
)

// notify sends a job notification in the background on a detached context.
// It is only called from workers, so Stop still waits for it. Failures are
// logged and never change the job.
func (m *Manager) notify(logger *slog.Logger, send func(context.Context) error) {
	ctx, cancel := m.cleanupContext()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		if err := send(ctx); err != nil {
			logging.WarnWithContext(logger, "job notification failed", "notification_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			)
		}
	}()
}

func notificationJob(job *jobs.Job) notifications.Job {
	return notifications.Job{
		ID:        job.ID,
		Title:     job.Title,
		SourceURL: job.SourceURL,
		FileName:  job.ArtifactName,
		ErrorKind: job.ErrorKind,
		Detail:    job.ErrorMessage,
	}
}
