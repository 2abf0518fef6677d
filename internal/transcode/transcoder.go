package transcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"vidgrab/internal/config"
	"vidgrab/internal/logging"
	"vidgrab/internal/media/ffprobe"
	"vidgrab/internal/procgroup"
	"vidgrab/internal/services"
)

const probeTimeout = 30 * time.Second

// Request describes one transcode.
type Request struct {
	Inputs []Input
	// Output is the final artifact path; ffmpeg writes to Output+".part".
	Output   string
	Target   Target
	Duration time.Duration
	Progress func(percent float64)
}

// Output describes the produced artifact.
type Output struct {
	Path       string
	Size       int64
	Duration   time.Duration
	VideoCodec string
	Height     int
}

// Transcoder runs ffmpeg under a supervised process group.
type Transcoder struct {
	ffmpeg     string
	ffprobe    string
	threads    int
	timeout    time.Duration
	cpuSeconds int
	killGrace  time.Duration
	validate   bool
	logger     *slog.Logger
}

// New constructs a Transcoder from the transcode config section.
func New(cfg config.Transcode, logger *slog.Logger) *Transcoder {
	return &Transcoder{
		ffmpeg:     strings.TrimSpace(cfg.FFmpegBinary),
		ffprobe:    strings.TrimSpace(cfg.FFprobeBinary),
		threads:    cfg.Threads,
		timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		cpuSeconds: cfg.CPUSeconds,
		killGrace:  time.Duration(cfg.KillGraceSeconds) * time.Second,
		validate:   cfg.ValidateOutput,
		logger:     logging.NewComponentLogger(logger, "transcode"),
	}
}

// Transcode produces req.Output. On any failure the partial output is
// removed and every process started for the request has exited.
func (t *Transcoder) Transcode(ctx context.Context, req Request) (Output, error) {
	partial := req.Output + ".part"
	args, err := buildArgs(req.Inputs, partial, req.Target, t.threads)
	if err != nil {
		return Output{}, services.Wrap(services.ErrTranscode, "transcode", "plan", "invalid inputs", err)
	}
	logger := logging.WithContext(ctx, t.logger)
	logger.Info("transcode started",
		logging.String(logging.FieldEventType, "transcode_started"),
		logging.String("target", req.Target.Key()),
		logging.Int("inputs", len(req.Inputs)),
	)
	started := time.Now()

	proc, err := procgroup.Start(ctx, procgroup.Options{
		Binary:     t.ffmpegBinary(),
		Args:       args,
		Stdout:     newProgressWriter(req.Duration, req.Progress),
		Timeout:    t.timeout,
		KillGrace:  t.killGrace,
		CPUSeconds: t.cpuSeconds,
	})
	if err != nil {
		return Output{}, t.fail(ctx, partial, err)
	}
	if err := proc.Wait(); err != nil {
		return Output{}, t.fail(ctx, partial, err)
	}

	out := Output{Path: req.Output, Duration: req.Duration, VideoCodec: req.Target.VideoCodec, Height: req.Target.MaxHeight}
	if t.validate {
		if err := t.validateOutput(ctx, partial, req.Target, &out); err != nil {
			return Output{}, t.fail(ctx, partial, err)
		}
	}
	if err := os.Rename(partial, req.Output); err != nil {
		return Output{}, t.fail(ctx, partial, fmt.Errorf("finalize output: %w", err))
	}
	info, err := os.Stat(req.Output)
	if err != nil {
		_ = os.Remove(req.Output)
		return Output{}, services.Wrap(services.ErrTranscode, "transcode", "stat output", req.Output, err)
	}
	out.Size = info.Size()

	logger.Info("transcode completed",
		logging.String(logging.FieldEventType, "transcode_completed"),
		logging.Int64("size_bytes", out.Size),
		logging.Duration("elapsed", time.Since(started)),
	)
	return out, nil
}

func (t *Transcoder) ffmpegBinary() string {
	if t.ffmpeg == "" {
		return "ffmpeg"
	}
	return t.ffmpeg
}

func (t *Transcoder) fail(ctx context.Context, partial string, err error) error {
	if removeErr := os.Remove(partial); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		logging.WarnWithContext(logging.WithContext(ctx, t.logger), "partial output removal failed", "transcode_cleanup_failed",
			logging.String("path", partial),
			logging.Error(removeErr),
			logging.String(logging.FieldImpact, "the work dir sweep reclaims it later"),
		)
	}
	if ctx.Err() != nil && !errors.Is(err, procgroup.ErrTimeout) {
		return fmt.Errorf("transcode interrupted: %w", err)
	}
	if services.KindOf(err) == services.KindTranscode {
		return err
	}
	switch {
	case errors.Is(err, procgroup.ErrTimeout):
		return services.Wrap(services.ErrTranscode, "transcode", "ffmpeg", fmt.Sprintf("exceeded %s", t.timeout), err)
	case errors.Is(err, procgroup.ErrCPULimit):
		return services.Wrap(services.ErrTranscode, "transcode", "ffmpeg", fmt.Sprintf("exceeded %ds of cpu time", t.cpuSeconds), err)
	}
	return services.Wrap(services.ErrTranscode, "transcode", "ffmpeg", "encode failed", err)
}

func (t *Transcoder) validateOutput(ctx context.Context, path string, target Target, out *Output) error {
	probe, err := ffprobe.Inspect(ctx, t.ffprobe, path, probeTimeout)
	if err != nil {
		return services.Wrap(services.ErrTranscode, "transcode", "validate", "probe output", err)
	}
	video := probe.PrimaryVideo()
	if video == nil {
		return services.Wrap(services.ErrTranscode, "transcode", "validate", "output has no video stream", nil)
	}
	if !strings.EqualFold(video.CodecName, target.VideoCodec) {
		return services.Wrap(services.ErrTranscode, "transcode", "validate",
			fmt.Sprintf("video codec %s, want %s", video.CodecName, target.VideoCodec), nil)
	}
	if target.MaxHeight > 0 && video.Height > target.MaxHeight {
		return services.Wrap(services.ErrTranscode, "transcode", "validate",
			fmt.Sprintf("height %d exceeds %d", video.Height, target.MaxHeight), nil)
	}
	if !probe.HasFormat(target.probeFormat()) {
		return services.Wrap(services.ErrTranscode, "transcode", "validate",
			fmt.Sprintf("container %q, want %s", probe.Format.FormatName, target.probeFormat()), nil)
	}
	out.VideoCodec = video.CodecName
	out.Height = video.Height
	if seconds := probe.DurationSeconds(); seconds > 0 {
		out.Duration = time.Duration(seconds * float64(time.Second))
	}
	return nil
}
