package source

import (
	"cmp"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"vidgrab/internal/services"
)

// StreamKind classifies a downloadable stream.
type StreamKind string

const (
	KindVideo StreamKind = "video"
	KindAudio StreamKind = "audio"
	KindMuxed StreamKind = "muxed"
)

// Stream is one downloadable track offered by the upstream.
type Stream struct {
	FormatID   string            `json:"formatId"`
	URL        string            `json:"url"`
	Kind       StreamKind        `json:"kind"`
	Container  string            `json:"container,omitempty"`
	VideoCodec string            `json:"videoCodec,omitempty"`
	AudioCodec string            `json:"audioCodec,omitempty"`
	Width      int               `json:"width,omitempty"`
	Height     int               `json:"height,omitempty"`
	Bitrate    float64           `json:"bitrate,omitempty"`
	Size       int64             `json:"size,omitempty"`
	ExpiresAt  time.Time         `json:"expiresAt,omitzero"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// Expired reports whether the upstream token on the stream URL has lapsed.
func (s Stream) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Extension returns the file extension used for the fetched stream.
func (s Stream) Extension() string {
	if ext := strings.TrimPrefix(strings.ToLower(s.Container), "."); ext != "" {
		return ext
	}
	return "bin"
}

// Manifest lists what the upstream offers for a reference. It is fetched
// fresh for every job.
type Manifest struct {
	Reference       Reference `json:"-"`
	Title           string    `json:"title"`
	DurationSeconds float64   `json:"duration"`
	ThumbnailURL    string    `json:"thumbnail,omitempty"`
	Streams         []Stream  `json:"streams"`
}

// Duration returns the media duration.
func (m *Manifest) Duration() time.Duration {
	return time.Duration(m.DurationSeconds * float64(time.Second))
}

// Select picks the streams to fetch for a target: the best video-only stream
// at or below maxHeight plus the best audio-only stream, or the best muxed
// stream when separate tracks are unavailable.
func (m *Manifest) Select(maxHeight int, preferCodec string) ([]Stream, error) {
	return m.selectAt(time.Now(), maxHeight, preferCodec)
}

func (m *Manifest) selectAt(now time.Time, maxHeight int, preferCodec string) ([]Stream, error) {
	var videos, audios, muxed []Stream
	for _, stream := range m.Streams {
		if stream.URL == "" || stream.Expired(now) {
			continue
		}
		switch stream.Kind {
		case KindVideo:
			videos = append(videos, stream)
		case KindAudio:
			audios = append(audios, stream)
		case KindMuxed:
			muxed = append(muxed, stream)
		}
	}

	preferCodec = NormalizeCodec(preferCodec)
	video, hasVideo := bestVideo(videos, maxHeight, preferCodec)
	audio, hasAudio := bestAudio(audios)
	switch {
	case hasVideo && hasAudio:
		return []Stream{video, audio}, nil
	case len(muxed) > 0:
		best, _ := bestVideo(muxed, maxHeight, preferCodec)
		return []Stream{best}, nil
	case hasVideo:
		return []Stream{video}, nil
	}
	return nil, services.Wrap(services.ErrNotFound, "resolver", "select streams",
		"no usable video stream in manifest for "+m.Reference.Key(), nil)
}

func bestVideo(candidates []Stream, maxHeight int, preferCodec string) (Stream, bool) {
	if len(candidates) == 0 {
		return Stream{}, false
	}
	var fitting, above []Stream
	for _, stream := range candidates {
		if maxHeight <= 0 || stream.Height <= maxHeight {
			fitting = append(fitting, stream)
		} else {
			above = append(above, stream)
		}
	}
	rank := func(a, b Stream) int {
		if c := compareCodec(a, b, preferCodec); c != 0 {
			return c
		}
		return cmp.Compare(b.Bitrate, a.Bitrate)
	}
	if len(fitting) > 0 {
		slices.SortStableFunc(fitting, func(a, b Stream) int {
			if c := cmp.Compare(b.Height, a.Height); c != 0 {
				return c
			}
			return rank(a, b)
		})
		return fitting[0], true
	}
	slices.SortStableFunc(above, func(a, b Stream) int {
		if c := cmp.Compare(a.Height, b.Height); c != 0 {
			return c
		}
		return rank(a, b)
	})
	return above[0], true
}

func compareCodec(a, b Stream, preferCodec string) int {
	if preferCodec == "" {
		return 0
	}
	aMatch := NormalizeCodec(a.VideoCodec) == preferCodec
	bMatch := NormalizeCodec(b.VideoCodec) == preferCodec
	switch {
	case aMatch && !bMatch:
		return -1
	case bMatch && !aMatch:
		return 1
	}
	return 0
}

func bestAudio(candidates []Stream) (Stream, bool) {
	if len(candidates) == 0 {
		return Stream{}, false
	}
	best := candidates[0]
	for _, stream := range candidates[1:] {
		if stream.Bitrate > best.Bitrate {
			best = stream
		}
	}
	return best, true
}

// NormalizeCodec maps upstream codec identifiers (avc1.64001F, vp09.00...,
// hev1, mp4a.40.2) onto short names.
func NormalizeCodec(codec string) string {
	codec = strings.ToLower(strings.TrimSpace(codec))
	switch {
	case codec == "", codec == "none":
		return ""
	case strings.HasPrefix(codec, "avc"), codec == "h264":
		return "h264"
	case strings.HasPrefix(codec, "hev"), strings.HasPrefix(codec, "hvc"), codec == "h265", codec == "hevc":
		return "hevc"
	case strings.HasPrefix(codec, "vp09"), codec == "vp9":
		return "vp9"
	case strings.HasPrefix(codec, "av01"), codec == "av1":
		return "av1"
	case strings.HasPrefix(codec, "mp4a"), codec == "aac":
		return "aac"
	case strings.HasPrefix(codec, "opus"):
		return "opus"
	case codec == "mp3":
		return "mp3"
	}
	if idx := strings.IndexByte(codec, '.'); idx > 0 {
		return codec[:idx]
	}
	return codec
}

// expiryFromURL reads the unix "expire" parameter upstream CDNs embed in
// signed stream URLs.
func expiryFromURL(raw string) time.Time {
	parsed, err := url.Parse(raw)
	if err != nil {
		return time.Time{}
	}
	value := parsed.Query().Get("expire")
	if value == "" {
		return time.Time{}
	}
	seconds, err := strconv.ParseInt(value, 10, 64)
	if err != nil || seconds <= 0 {
		return time.Time{}
	}
	return time.Unix(seconds, 0).UTC()
}
