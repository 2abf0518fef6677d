package workflow

import (
	"context"
	"fmt"
	"io"
	"path"
	"sync"

	"vidgrab/internal/artifact"
	"vidgrab/internal/config"
	"vidgrab/internal/jobs"
	"vidgrab/internal/logging"
	"vidgrab/internal/services"
)

// Download is an open artifact ready to stream to a client. Closing Body
// after reading every byte records the delivery.
type Download struct {
	Job         *jobs.Job
	Body        io.ReadCloser
	Size        int64
	ContentType string
	// Filename is the client-facing name for Content-Disposition.
	Filename string
}

// OpenArtifact opens the ready artifact published as name. Artifacts that
// were never published or have been reclaimed are a NotFoundError.
func (m *Manager) OpenArtifact(ctx context.Context, name string) (*Download, error) {
	job, err := m.store.FindReadyByArtifactName(ctx, name)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "workflow", "open artifact", fmt.Sprintf("%s is not available", name), nil)
	}
	body, size, err := m.artifacts.Open(ctx, job.ArtifactKey)
	if err != nil {
		return nil, err
	}
	download := &Download{
		Job:         job,
		Size:        size,
		ContentType: artifact.ContentTypeFor(name),
		Filename:    artifact.DownloadName(job.Title, job.VideoID, path.Ext(name)),
	}
	download.Body = &deliveryReader{
		ReadCloser: body,
		size:       size,
		onComplete: func() { m.recordDelivery(job) },
	}
	return download, nil
}

// deliveryReader fires onComplete on Close when every byte was read.
type deliveryReader struct {
	io.ReadCloser
	size       int64
	read       int64
	onComplete func()
	once       sync.Once
}

func (r *deliveryReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.read += int64(n)
	return n, err
}

func (r *deliveryReader) Close() error {
	err := r.ReadCloser.Close()
	if r.size >= 0 && r.read >= r.size {
		r.once.Do(r.onComplete)
	}
	return err
}

func (m *Manager) recordDelivery(job *jobs.Job) {
	ctx, cancel := m.cleanupContext()
	defer cancel()
	ctx = services.WithJobID(ctx, job.ID)
	logger := logging.WithContext(ctx, m.logger)

	recorded, err := m.store.MarkDelivered(ctx, job.ID, m.now())
	if err != nil {
		logging.WarnWithContext(logger, "record delivery failed", "delivery_record_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "delivery count is stale"),
		)
		return
	}
	if !recorded {
		return
	}
	logger.Info("artifact delivered",
		logging.String("artifact", job.ArtifactName),
		logging.String(logging.FieldEventType, "artifact_delivered"),
	)
	if m.cfg.Jobs.RetentionPolicy != config.RetentionFirstDownload {
		return
	}
	if _, err := m.expire(ctx, job.ID, "artifact removed after first download"); err != nil {
		logging.WarnWithContext(logger, "first-download cleanup failed", "artifact_cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "artifact stays until the retention window ends"),
		)
	}
}
