package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"vidgrab/internal/procgroup"
	"vidgrab/internal/services"
)

// YtDlpSource resolves manifests by running yt-dlp in JSON dump mode.
type YtDlpSource struct {
	Binary    string
	UserAgent string
	Timeout   time.Duration
	KillGrace time.Duration
}

// Name identifies the backend in logs.
func (s *YtDlpSource) Name() string { return "yt-dlp" }

type ytdlpInfo struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Duration  float64       `json:"duration"`
	Thumbnail string        `json:"thumbnail"`
	Formats   []ytdlpFormat `json:"formats"`
}

type ytdlpFormat struct {
	FormatID       string            `json:"format_id"`
	URL            string            `json:"url"`
	Protocol       string            `json:"protocol"`
	Ext            string            `json:"ext"`
	VCodec         string            `json:"vcodec"`
	ACodec         string            `json:"acodec"`
	Width          int               `json:"width"`
	Height         int               `json:"height"`
	TBR            float64           `json:"tbr"`
	Filesize       int64             `json:"filesize"`
	FilesizeApprox int64             `json:"filesize_approx"`
	HTTPHeaders    map[string]string `json:"http_headers"`
}

// Manifest runs yt-dlp for canonicalURL and converts its formats.
func (s *YtDlpSource) Manifest(ctx context.Context, ref Reference, canonicalURL string) (*Manifest, error) {
	binary := strings.TrimSpace(s.Binary)
	if binary == "" {
		binary = "yt-dlp"
	}
	args := []string{"-J", "--no-warnings", "--no-playlist"}
	if ua := strings.TrimSpace(s.UserAgent); ua != "" {
		args = append(args, "--user-agent", ua)
	}
	args = append(args, "--", canonicalURL)

	res, err := procgroup.Run(ctx, procgroup.Options{
		Binary:    binary,
		Args:      args,
		Timeout:   s.Timeout,
		KillGrace: s.KillGrace,
	})
	if err != nil {
		return nil, classifyYtDlp(ctx, ref, res.Stderr, err)
	}

	var info ytdlpInfo
	if err := json.Unmarshal(res.Stdout, &info); err != nil {
		return nil, services.Wrap(services.ErrUpstream, "resolver", "decode yt-dlp output", ref.Key(), err)
	}
	return info.manifest(), nil
}

func (info ytdlpInfo) manifest() *Manifest {
	manifest := &Manifest{
		Title:           info.Title,
		DurationSeconds: info.Duration,
		ThumbnailURL:    info.Thumbnail,
	}
	for _, format := range info.Formats {
		switch strings.ToLower(format.Protocol) {
		case "http", "https":
		default:
			continue
		}
		video := NormalizeCodec(format.VCodec)
		audio := NormalizeCodec(format.ACodec)
		var kind StreamKind
		switch {
		case video != "" && audio != "":
			kind = KindMuxed
		case video != "":
			kind = KindVideo
		case audio != "":
			kind = KindAudio
		default:
			continue
		}
		size := format.Filesize
		if size <= 0 {
			size = format.FilesizeApprox
		}
		manifest.Streams = append(manifest.Streams, Stream{
			FormatID:   format.FormatID,
			URL:        format.URL,
			Kind:       kind,
			Container:  format.Ext,
			VideoCodec: video,
			AudioCodec: audio,
			Width:      format.Width,
			Height:     format.Height,
			Bitrate:    format.TBR,
			Size:       size,
			ExpiresAt:  expiryFromURL(format.URL),
			Headers:    format.HTTPHeaders,
		})
	}
	return manifest
}

var (
	blockedMarkers = []string{
		"sign in to confirm you",
		"not a bot",
		"http error 429",
		"too many requests",
		"rate-limited",
	}
	notFoundMarkers = []string{
		"video unavailable",
		"private video",
		"has been removed",
		"http error 404",
		"http error 410",
		"this video is not available",
		"does not exist",
	}
)

func classifyYtDlp(ctx context.Context, ref Reference, stderr string, err error) error {
	if ctx.Err() != nil && !errors.Is(err, procgroup.ErrTimeout) {
		if errors.Is(context.Cause(ctx), context.DeadlineExceeded) {
			return services.Wrap(services.ErrUpstream, "resolver", "yt-dlp", "manifest lookup timed out for "+ref.Key(), err)
		}
		return fmt.Errorf("yt-dlp %s: %w", ref.Key(), err)
	}
	if errors.Is(err, procgroup.ErrTimeout) {
		return services.Wrap(services.ErrUpstream, "resolver", "yt-dlp", "manifest lookup timed out for "+ref.Key(), err)
	}
	lower := strings.ToLower(stderr)
	for _, marker := range blockedMarkers {
		if strings.Contains(lower, marker) {
			return services.Wrap(services.ErrUpstreamBlocked, "resolver", "yt-dlp", "upstream rejected the request as automated", err)
		}
	}
	for _, marker := range notFoundMarkers {
		if strings.Contains(lower, marker) {
			return services.Wrap(services.ErrNotFound, "resolver", "yt-dlp", "video unavailable: "+ref.Key(), err)
		}
	}
	var exitErr *procgroup.ExitError
	if errors.As(err, &exitErr) {
		return services.Wrap(services.ErrUpstream, "resolver", "yt-dlp", fmt.Sprintf("exit status %d", exitErr.Code), err)
	}
	return services.Wrap(services.ErrUpstream, "resolver", "yt-dlp", "run failed", err)
}
