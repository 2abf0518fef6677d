package transcode

import (
	"fmt"
	"strconv"
	"strings"

	"vidgrab/internal/config"
)

// Target describes the artifact format a job produces.
type Target struct {
	Container    string
	VideoCodec   string
	MaxHeight    int
	AudioCodec   string
	AudioBitrate string
	Preset       string
	CRF          int
}

// TargetFromConfig builds the target from the transcode section.
func TargetFromConfig(cfg config.Transcode) Target {
	return Target{
		Container:    strings.ToLower(cfg.Container),
		VideoCodec:   strings.ToLower(cfg.VideoCodec),
		MaxHeight:    cfg.MaxHeight,
		AudioCodec:   strings.ToLower(cfg.AudioCodec),
		AudioBitrate: cfg.AudioBitrate,
		Preset:       cfg.Preset,
		CRF:          cfg.CRF,
	}
}

// Key identifies the target for ready-artifact reuse, e.g.
// "mkv-hevc-720p-aac".
func (t Target) Key() string {
	height := "src"
	if t.MaxHeight > 0 {
		height = strconv.Itoa(t.MaxHeight) + "p"
	}
	return strings.Join([]string{t.Container, t.VideoCodec, height, t.AudioCodec}, "-")
}

// Label is the human-readable format shown to clients, e.g.
// "720p HEVC (.mkv)".
func (t Target) Label() string {
	codec := strings.ToUpper(t.VideoCodec)
	if codec == "H264" {
		codec = "H.264"
	}
	if t.MaxHeight > 0 {
		return fmt.Sprintf("%dp %s (%s)", t.MaxHeight, codec, t.Extension())
	}
	return fmt.Sprintf("%s (%s)", codec, t.Extension())
}

// Extension returns the artifact file extension including the dot.
func (t Target) Extension() string {
	return "." + t.Container
}

// ContentType returns the MIME type served for the artifact.
func (t Target) ContentType() string {
	switch t.Container {
	case "mkv":
		return "video/x-matroska"
	case "mp4":
		return "video/mp4"
	case "webm":
		return "video/webm"
	default:
		return "application/octet-stream"
	}
}

// muxer is the ffmpeg -f value for the container.
func (t Target) muxer() string {
	if t.Container == "mkv" {
		return "matroska"
	}
	return t.Container
}

// probeFormat is the name ffprobe lists in format_name for the container.
func (t Target) probeFormat() string {
	if t.Container == "mkv" {
		return "matroska"
	}
	return t.Container
}

func (t Target) videoEncoder() string {
	switch t.VideoCodec {
	case "hevc":
		return "libx265"
	case "h264":
		return "libx264"
	case "av1":
		return "libsvtav1"
	case "vp9":
		return "libvpx-vp9"
	default:
		return t.VideoCodec
	}
}

func (t Target) audioEncoder() string {
	switch t.AudioCodec {
	case "aac":
		return "aac"
	case "opus":
		return "libopus"
	case "mp3":
		return "libmp3lame"
	case "copy":
		return "copy"
	default:
		return t.AudioCodec
	}
}
