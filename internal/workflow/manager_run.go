package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vidgrab/internal/fetch"
	"vidgrab/internal/jobs"
	"vidgrab/internal/logging"
	"vidgrab/internal/preflight"
	"vidgrab/internal/services"
	"vidgrab/internal/source"
	"vidgrab/internal/transcode"
)

func (m *Manager) worker(ctx context.Context, n int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", n))
	for {
		if ctx.Err() != nil {
			return
		}
		id, ok := m.dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-m.wake:
			}
			continue
		}
		m.process(ctx, id, logger)
	}
}

// process runs one job to a terminal state. The job's run entry stays
// registered until cleanup has finished so Cancel can wait on it.
func (m *Manager) process(ctx context.Context, id string, base *slog.Logger) {
	jobCtx, cancel := context.WithCancelCause(ctx)
	r := &run{cancel: cancel, done: make(chan struct{})}
	m.mu.Lock()
	m.active[id] = r
	m.mu.Unlock()
	defer func() {
		cancel(nil)
		m.mu.Lock()
		delete(m.active, id)
		m.mu.Unlock()
		close(r.done)
		m.notifyChange()
	}()

	job, err := m.store.Get(context.WithoutCancel(ctx), id)
	if err != nil {
		m.setLastError(err)
		base.Error("load queued job failed",
			logging.String(logging.FieldJobID, id),
			logging.Error(err),
			logging.String(logging.FieldEventType, "job_load_failed"),
			logging.String(logging.FieldErrorHint, "check job database access"),
		)
		return
	}
	if job == nil || job.Status != jobs.StatusQueued {
		return
	}

	jobCtx = services.WithSourceKey(services.WithJobID(jobCtx, job.ID), job.SourceKey)
	logger := logging.WithContext(jobCtx, base)
	started := time.Now()
	if err := m.execute(jobCtx, job, logger); err != nil {
		m.fail(jobCtx, job, err, logger)
		return
	}
	logger.Info("job ready",
		logging.String("title", job.Title),
		logging.String("artifact", job.ArtifactName),
		logging.Int64("size_bytes", job.ArtifactSize),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "job_ready"),
	)
}

func (m *Manager) execute(ctx context.Context, job *jobs.Job, logger *slog.Logger) error {
	if err := m.advance(ctx, job, jobs.StatusResolving, "Resolving video"); err != nil {
		return err
	}
	ref := source.Reference{Platform: job.Platform, ID: job.VideoID}
	manifest, err := m.resolver.Resolve(services.WithStage(ctx, "resolve"), ref)
	if err != nil {
		return err
	}
	job.Title = manifest.Title
	job.DurationSeconds = manifest.DurationSeconds
	job.ThumbnailURL = manifest.ThumbnailURL

	if err := m.advance(ctx, job, jobs.StatusFetching, "Downloading streams"); err != nil {
		return err
	}
	workDir := m.workDir(job.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	if err := preflight.EnsureFreeSpace(m.cfg.Paths.WorkDir, m.cfg.Jobs.MinFreeMiB*1024*1024); err != nil {
		return err
	}
	streams, err := manifest.Select(m.target.MaxHeight, m.target.VideoCodec)
	if err != nil {
		return err
	}
	fetchCtx := services.WithStage(ctx, "fetch")
	fetchProgress := m.newProgress(fetchCtx, job, logger)
	results, err := m.fetcher.Fetch(fetchCtx, filepath.Join(workDir, "streams"), streams, fetchProgress.bytes)
	if err != nil {
		return err
	}
	logger.Debug("streams fetched", logging.Int("streams", len(results)))

	if err := m.advance(ctx, job, jobs.StatusTranscoding, "Transcoding"); err != nil {
		return err
	}
	name := job.VideoID + m.target.Extension()
	transcodeCtx := services.WithStage(ctx, "transcode")
	transcodeProgress := m.newProgress(transcodeCtx, job, logger)
	output, err := m.transcoder.Transcode(transcodeCtx, transcode.Request{
		Inputs:   transcodeInputs(results),
		Output:   filepath.Join(workDir, name),
		Target:   m.target,
		Duration: manifest.Duration(),
		Progress: transcodeProgress.percent,
	})
	if err != nil {
		return err
	}

	if err := context.Cause(ctx); err != nil {
		return err
	}
	published, err := m.artifacts.Publish(services.WithStage(ctx, "publish"), job.ID, output.Path, name)
	if err != nil {
		return err
	}
	job.ArtifactKey = published.Key
	job.ArtifactName = published.Name
	job.ArtifactSize = published.Size
	readyAt := m.now()
	expiresAt := readyAt.Add(m.cfg.Retention())
	job.ReadyAt = &readyAt
	job.ExpiresAt = &expiresAt
	job.SetProgress(string(jobs.StatusReady), 100, "Ready")
	if err := context.Cause(ctx); err != nil {
		return err
	}
	if err := m.markReady(ctx, job); err != nil {
		return err
	}
	m.removeWorkDir(job.ID, logger)
	snapshot := notificationJob(job)
	m.notify(logger, func(ctx context.Context) error {
		return m.notifier.JobReady(ctx, snapshot)
	})
	return nil
}

// markReady persists the ready transition. When another ready job already
// serves the plain <videoID><ext> name, the artifact is published under a name
// qualified with the job id instead.
func (m *Manager) markReady(ctx context.Context, job *jobs.Job) error {
	err := m.store.Transition(ctx, job, jobs.StatusReady)
	if !errors.Is(err, jobs.ErrArtifactNameTaken) {
		return err
	}
	job.ArtifactName = qualifiedArtifactName(job, filepath.Ext(job.ArtifactName))
	return m.store.Transition(ctx, job, jobs.StatusReady)
}

func qualifiedArtifactName(job *jobs.Job, ext string) string {
	id := job.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return job.VideoID + "-" + id + ext
}

// advance moves job to the next pipeline status unless the job has been
// cancelled.
func (m *Manager) advance(ctx context.Context, job *jobs.Job, to jobs.Status, message string) error {
	if err := context.Cause(ctx); err != nil {
		return err
	}
	job.SetProgress(string(to), 0, message)
	if err := m.store.Transition(ctx, job, to); err != nil {
		return err
	}
	m.notifyChange()
	return nil
}

// fail records a terminal failure. Cleanup runs on a context detached from
// the job so cancellation cannot skip it.
func (m *Manager) fail(jobCtx context.Context, job *jobs.Job, err error, logger *slog.Logger) {
	if cause := context.Cause(jobCtx); cause != nil && !errors.Is(err, cause) {
		logger.Debug("step error superseded by cancellation", logging.Error(err))
		err = cause
	}
	details := services.Details(err)

	ctx, cancel := m.cleanupContext()
	defer cancel()

	if job.ArtifactKey != "" {
		if removeErr := m.artifacts.Remove(ctx, job.ArtifactKey); removeErr != nil {
			logging.WarnWithContext(logger, "artifact removal failed", "artifact_cleanup_failed",
				logging.String("artifact_key", job.ArtifactKey),
				logging.Error(removeErr),
				logging.String(logging.FieldImpact, "orphaned artifact remains in storage"),
			)
		}
		job.ArtifactKey = ""
		job.ArtifactName = ""
		job.ArtifactSize = 0
	}
	m.removeWorkDir(job.ID, logger)

	job.ReadyAt = nil
	job.ExpiresAt = nil
	job.SetFailure(string(details.Kind), details.Message)
	retryAfter, _ := services.RetryAfter(err)
	job.SetRetryAfter(retryAfter)
	job.SetProgress(job.ProgressStage, job.ProgressPercent, "Failed")
	stage := string(job.Status)
	if transitionErr := m.store.Transition(ctx, job, jobs.StatusFailed); transitionErr != nil {
		if !errors.Is(transitionErr, jobs.ErrStaleTransition) {
			m.setLastError(transitionErr)
			logger.Error("persist job failure failed",
				logging.Error(transitionErr),
				logging.String(logging.FieldEventType, "job_failure_persist_failed"),
				logging.String(logging.FieldErrorHint, "check job database access"),
			)
		}
		return
	}

	if details.Kind == services.KindCanceled {
		logger.Info("job canceled",
			logging.String(logging.FieldStage, stage),
			logging.String("reason", details.Message),
			logging.String(logging.FieldEventType, "job_canceled"),
		)
		return
	}
	m.setLastError(err)
	snapshot := notificationJob(job)
	m.notify(logger, func(ctx context.Context) error {
		return m.notifier.JobFailed(ctx, snapshot)
	})
	logger.Error("job failed",
		logging.String(logging.FieldStage, stage),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String(logging.FieldErrorHint, details.Hint),
		logging.Error(err),
		logging.String(logging.FieldEventType, "job_failed"),
	)
}

func (m *Manager) workDir(jobID string) string {
	return filepath.Join(m.cfg.Paths.WorkDir, jobID)
}

func (m *Manager) removeWorkDir(jobID string, logger *slog.Logger) {
	dir := m.workDir(jobID)
	if err := os.RemoveAll(dir); err != nil {
		logging.WarnWithContext(logger, "work dir removal failed", "workdir_cleanup_failed",
			logging.String("path", dir),
			logging.Error(err),
			logging.String(logging.FieldImpact, "the sweeper retries on its next run"),
		)
	}
}

func transcodeInputs(results []fetch.Result) []transcode.Input {
	inputs := make([]transcode.Input, 0, len(results))
	for _, res := range results {
		kind := transcode.InputMuxed
		switch res.Stream.Kind {
		case source.KindVideo:
			kind = transcode.InputVideo
		case source.KindAudio:
			kind = transcode.InputAudio
		}
		inputs = append(inputs, transcode.Input{Path: res.Path, Kind: kind})
	}
	return inputs
}

// progressTracker persists sampled progress for the job's current status.
// Fetch reports from several goroutines, so updates are serialized.
type progressTracker struct {
	m       *Manager
	ctx     context.Context
	job     *jobs.Job
	logger  *slog.Logger
	mu      sync.Mutex
	sampler *logging.ProgressSampler
}

func (m *Manager) newProgress(ctx context.Context, job *jobs.Job, logger *slog.Logger) *progressTracker {
	return &progressTracker{m: m, ctx: ctx, job: job, logger: logger, sampler: logging.NewProgressSampler(5)}
}

func (p *progressTracker) bytes(written, total int64) {
	percent := -1.0
	if total > 0 {
		percent = float64(written) * 100 / float64(total)
	}
	p.record(percent, fmt.Sprintf("Downloaded %.1f MiB", float64(written)/(1024*1024)))
}

func (p *progressTracker) percent(value float64) {
	p.record(value, fmt.Sprintf("Transcoding %.0f%%", value))
}

func (p *progressTracker) record(percent float64, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	stage := string(p.job.Status)
	if !p.sampler.ShouldLog(percent, stage) {
		return
	}
	p.job.SetProgress(stage, max(percent, 0), message)
	if err := p.m.store.UpdateProgress(p.ctx, p.job); err != nil {
		p.logger.Debug("progress update skipped", logging.Error(err))
		return
	}
	p.logger.Debug("job progress",
		logging.Float64("percent", p.job.ProgressPercent),
		logging.String("message", message),
		logging.String(logging.FieldEventType, "job_progress"),
	)
}
