package ffprobe_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"vidgrab/internal/media/ffprobe"
	"vidgrab/internal/testsupport"
)

func TestResultHelpers(t *testing.T) {
	result := ffprobe.Result{
		Streams: []ffprobe.Stream{
			{CodecType: "audio", CodecName: "aac"},
			{CodecType: "video", CodecName: "hevc", Height: 720},
			{CodecType: "audio", CodecName: "opus"},
		},
		Format: ffprobe.Format{
			Duration:   "123.45",
			Size:       "1000",
			FormatName: "matroska,webm",
		},
	}
	if result.VideoStreamCount() != 1 {
		t.Fatalf("expected 1 video stream, got %d", result.VideoStreamCount())
	}
	if result.AudioStreamCount() != 2 {
		t.Fatalf("expected 2 audio streams, got %d", result.AudioStreamCount())
	}
	if v := result.PrimaryVideo(); v == nil || v.CodecName != "hevc" || v.Height != 720 {
		t.Fatalf("unexpected primary video %+v", v)
	}
	if !result.HasFormat("matroska") || result.HasFormat("mp4") {
		t.Fatalf("unexpected format matching for %q", result.Format.FormatName)
	}
	if result.DurationSeconds() != 123.45 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 1000 {
		t.Fatalf("unexpected size: %d", result.SizeBytes())
	}
}

func TestResultHelpersHandleInvalidNumbers(t *testing.T) {
	result := ffprobe.Result{Format: ffprobe.Format{Duration: "bad", Size: "-1"}}
	if result.DurationSeconds() != 0 {
		t.Fatalf("expected duration 0, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
	if result.PrimaryVideo() != nil {
		t.Fatal("expected no primary video")
	}
}

func TestInspectParsesStubOutput(t *testing.T) {
	bin := testsupport.WriteScript(t, t.TempDir(), "ffprobe", `cat <<'JSON'
{"streams":[{"index":0,"codec_name":"hevc","codec_type":"video","width":1280,"height":720}],
 "format":{"filename":"x.mkv","nb_streams":1,"duration":"10.0","size":"2048","format_name":"matroska,webm"}}
JSON`)

	result, err := ffprobe.Inspect(context.Background(), bin, "/tmp/x.mkv", 5*time.Second)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if result.PrimaryVideo().CodecName != "hevc" || result.SizeBytes() != 2048 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestInspectReportsFailure(t *testing.T) {
	bin := testsupport.WriteScript(t, t.TempDir(), "ffprobe", `echo "x.mkv: Invalid data found" >&2; exit 1`)
	_, err := ffprobe.Inspect(context.Background(), bin, "/tmp/x.mkv", 5*time.Second)
	if err == nil || !strings.Contains(err.Error(), "Invalid data") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}
