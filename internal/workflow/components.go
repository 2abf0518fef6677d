package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"vidgrab/internal/artifact"
	"vidgrab/internal/config"
	"vidgrab/internal/fetch"
	"vidgrab/internal/notifications"
	"vidgrab/internal/source"
	"vidgrab/internal/transcode"
)

// NewComponents builds the pipeline collaborators selected by cfg.
func NewComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Components, error) {
	parser := source.NewParser(source.PlatformsFromConfig(cfg.Resolver.Platforms)...)

	var manifests source.ManifestSource
	switch cfg.Resolver.Backend {
	case config.ResolverHTTP:
		manifests = &source.HTTPSource{
			BaseURL:   cfg.Resolver.ManifestURL,
			UserAgent: cfg.Resolver.UserAgent,
			Client:    &http.Client{Timeout: cfg.ResolverTimeout()},
		}
	case config.ResolverYtDlp:
		manifests = &source.YtDlpSource{
			Binary:    cfg.Resolver.YtDlpBinary,
			UserAgent: cfg.Resolver.UserAgent,
			Timeout:   cfg.ResolverTimeout(),
			KillGrace: time.Duration(cfg.Transcode.KillGraceSeconds) * time.Second,
		}
	default:
		return Components{}, fmt.Errorf("unknown resolver backend %q", cfg.Resolver.Backend)
	}

	fetcher := fetch.New(nil, fetch.Options{
		MaxAttempts: cfg.Fetch.MaxAttempts,
		Backoff: fetch.Backoff{
			Base:   time.Duration(cfg.Fetch.BackoffBaseMillis) * time.Millisecond,
			Factor: cfg.Fetch.BackoffFactor,
			Max:    time.Duration(cfg.Fetch.BackoffMaxSeconds) * time.Second,
		},
		MaxBytes:    cfg.MaxDownloadBytes(),
		MaxDuration: time.Duration(cfg.Fetch.MaxDurationSeconds) * time.Second,
		RateLimit:   cfg.Fetch.RateLimitKiB * 1024,
		Parallel:    cfg.Fetch.ParallelStreams,
		UserAgent:   cfg.Resolver.UserAgent,
	}, logger)

	var store artifact.Store
	switch cfg.Storage.Backend {
	case config.StorageLocal:
		local, err := artifact.NewLocalStore(cfg.Paths.ArtifactDir)
		if err != nil {
			return Components{}, err
		}
		store = local
	case config.StorageS3:
		remote, err := artifact.NewS3Store(ctx, cfg.Storage)
		if err != nil {
			return Components{}, err
		}
		store = remote
	default:
		return Components{}, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	return Components{
		Resolver:   source.NewResolver(parser, manifests, cfg.ResolverTimeout(), logger),
		Fetcher:    fetcher,
		Transcoder: transcode.New(cfg.Transcode, logger),
		Artifacts:  store,
		Notifier:   notifications.NewService(cfg),
	}, nil
}
