package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vidgrab/internal/services"
)

const maxManifestBytes = 4 << 20

// HTTPSource resolves manifests from a manifest API exposing
// GET {base}/{platform}/{id}.
type HTTPSource struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
}

// Name identifies the backend in logs.
func (s *HTTPSource) Name() string { return "manifest-api" }

// Manifest requests and decodes the manifest for ref.
func (s *HTTPSource) Manifest(ctx context.Context, ref Reference, _ string) (*Manifest, error) {
	base := strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	if base == "" {
		return nil, services.Wrap(services.ErrConfiguration, "resolver", "manifest api", "resolver.manifest_url is empty", nil)
	}
	endpoint := base + "/" + url.PathEscape(ref.Platform) + "/" + url.PathEscape(ref.ID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build manifest request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(s.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("manifest request %s: %w", ref.Key(), err)
		}
		return nil, services.Wrap(services.ErrUpstream, "resolver", "manifest api", "request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes+1))
	if err != nil {
		return nil, services.Wrap(services.ErrUpstream, "resolver", "manifest api", "read body", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone,
		resp.StatusCode == http.StatusUnavailableForLegalReasons:
		return nil, services.Wrap(services.ErrNotFound, "resolver", "manifest api",
			fmt.Sprintf("video unavailable: %s (HTTP %d)", ref.Key(), resp.StatusCode), nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		err := services.Wrap(services.ErrUpstreamBlocked, "resolver", "manifest api", "upstream is rate limiting", nil)
		if delay, ok := services.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
			err = services.WithRetryAfter(err, delay)
		}
		return nil, err
	default:
		return nil, services.Wrap(services.ErrUpstream, "resolver", "manifest api",
			fmt.Sprintf("unexpected HTTP %d", resp.StatusCode), nil)
	}
	if len(body) > maxManifestBytes {
		return nil, services.Wrap(services.ErrUpstream, "resolver", "manifest api", "manifest exceeds size cap", nil)
	}

	var manifest Manifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return nil, services.Wrap(services.ErrUpstream, "resolver", "manifest api", "decode manifest", err)
	}
	for i := range manifest.Streams {
		stream := &manifest.Streams[i]
		stream.VideoCodec = NormalizeCodec(stream.VideoCodec)
		stream.AudioCodec = NormalizeCodec(stream.AudioCodec)
		if stream.ExpiresAt.IsZero() {
			stream.ExpiresAt = expiryFromURL(stream.URL)
		}
	}
	return &manifest, nil
}
