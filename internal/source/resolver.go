package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vidgrab/internal/logging"
	"vidgrab/internal/services"
)

// ManifestSource looks up the streams an upstream offers for a video.
type ManifestSource interface {
	Name() string
	Manifest(ctx context.Context, ref Reference, canonicalURL string) (*Manifest, error)
}

// Resolver turns URLs into references and references into manifests.
type Resolver struct {
	parser  *Parser
	source  ManifestSource
	timeout time.Duration
	logger  *slog.Logger
}

// NewResolver constructs a resolver backed by source.
func NewResolver(parser *Parser, source ManifestSource, timeout time.Duration, logger *slog.Logger) *Resolver {
	if parser == nil {
		parser = NewParser()
	}
	return &Resolver{
		parser:  parser,
		source:  source,
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "resolver"),
	}
}

// Parse normalizes raw into a reference.
func (r *Resolver) Parse(raw string) (Reference, error) {
	return r.parser.Parse(raw)
}

// CanonicalURL returns the canonical watch URL for ref.
func (r *Resolver) CanonicalURL(ref Reference) string {
	return r.parser.CanonicalURL(ref)
}

// Resolve fetches a fresh manifest for ref. It has no side effects.
func (r *Resolver) Resolve(ctx context.Context, ref Reference) (*Manifest, error) {
	if r.source == nil {
		return nil, services.Wrap(services.ErrConfiguration, "resolver", "resolve", "no manifest source configured", nil)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	started := time.Now()
	manifest, err := r.source.Manifest(ctx, ref, r.parser.CanonicalURL(ref))
	if err != nil {
		return nil, err
	}
	manifest.Reference = ref
	manifest.Title = strings.TrimSpace(manifest.Title)
	if manifest.Title == "" {
		manifest.Title = ref.ID
	}

	usable := 0
	for _, stream := range manifest.Streams {
		if stream.URL != "" {
			usable++
		}
	}
	if usable == 0 {
		return nil, services.Wrap(services.ErrNotFound, "resolver", "resolve",
			fmt.Sprintf("%s returned no downloadable streams for %s", r.source.Name(), ref.Key()), nil)
	}

	logging.WithContext(ctx, r.logger).Info("manifest resolved",
		logging.String(logging.FieldEventType, "manifest_resolved"),
		logging.String("backend", r.source.Name()),
		logging.String("title", manifest.Title),
		logging.Int("streams", usable),
		logging.Duration("elapsed", time.Since(started)),
	)
	return manifest, nil
}
