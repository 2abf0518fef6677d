package transcode

import (
	"fmt"
	"strconv"
	"strings"
)

// InputKind tells the transcoder which tracks an input carries.
type InputKind string

const (
	InputVideo InputKind = "video"
	InputAudio InputKind = "audio"
	InputMuxed InputKind = "muxed"
)

// Input is one fetched stream file.
type Input struct {
	Path string
	Kind InputKind
}

func buildArgs(inputs []Input, output string, target Target, threads int) ([]string, error) {
	videoIndex, audioIndex := -1, -1
	for i, input := range inputs {
		switch input.Kind {
		case InputVideo:
			if videoIndex < 0 {
				videoIndex = i
			}
		case InputAudio:
			if audioIndex < 0 {
				audioIndex = i
			}
		case InputMuxed:
			if videoIndex < 0 {
				videoIndex = i
			}
			if audioIndex < 0 {
				audioIndex = i
			}
		}
	}
	if videoIndex < 0 {
		return nil, fmt.Errorf("no video input among %d inputs", len(inputs))
	}

	args := []string{"-hide_banner", "-nostdin", "-nostats", "-loglevel", "error", "-y", "-progress", "pipe:1"}
	for _, input := range inputs {
		args = append(args, "-i", input.Path)
	}
	args = append(args, "-map", fmt.Sprintf("%d:v:0", videoIndex))
	if audioIndex >= 0 {
		args = append(args, "-map", fmt.Sprintf("%d:a:0?", audioIndex))
	}
	if target.MaxHeight > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=-2:'min(%d,ih)'", target.MaxHeight))
	}

	args = append(args, "-c:v", target.videoEncoder())
	args = append(args, videoQualityArgs(target)...)
	if target.VideoCodec == "hevc" && target.Container == "mp4" {
		args = append(args, "-tag:v", "hvc1")
	}
	if audioIndex >= 0 {
		args = append(args, "-c:a", target.audioEncoder())
		if target.AudioCodec != "copy" && strings.TrimSpace(target.AudioBitrate) != "" {
			args = append(args, "-b:a", target.AudioBitrate)
		}
	}
	if threads > 0 {
		args = append(args, "-threads", strconv.Itoa(threads))
	}
	if target.Container == "mp4" {
		args = append(args, "-movflags", "+faststart")
	}
	args = append(args, "-f", target.muxer(), output)
	return args, nil
}

func videoQualityArgs(target Target) []string {
	crf := strconv.Itoa(target.CRF)
	switch target.VideoCodec {
	case "vp9":
		return []string{"-b:v", "0", "-crf", crf, "-row-mt", "1"}
	case "av1":
		preset := target.Preset
		if _, err := strconv.Atoi(preset); err != nil {
			preset = "8"
		}
		return []string{"-preset", preset, "-crf", crf}
	default:
		args := []string{"-crf", crf}
		if target.Preset != "" {
			args = append([]string{"-preset", target.Preset}, args...)
		}
		return args
	}
}
