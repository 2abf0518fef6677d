package transcode_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"vidgrab/internal/config"
	"vidgrab/internal/logging"
	"vidgrab/internal/services"
	"vidgrab/internal/testsupport"
	"vidgrab/internal/transcode"
)

const probeHEVC = `{"streams":[{"index":0,"codec_type":"video","codec_name":"hevc","width":1280,"height":720},{"index":1,"codec_type":"audio","codec_name":"aac"}],"format":{"format_name":"matroska,webm","duration":"10.0","size":"2048"}}`

const probeH264 = `{"streams":[{"index":0,"codec_type":"video","codec_name":"h264","height":720}],"format":{"format_name":"matroska,webm"}}`

// ffmpegWritesOutput writes progress to stdout and bytes to the last argument.
const ffmpegWritesOutput = `for last; do :; done
echo "out_time_us=5000000"
echo "progress=continue"
echo "out_time_us=10000000"
echo "progress=end"
printf 'encoded-artifact' > "$last"`

func newTranscoder(t *testing.T, ffmpegBody, probeJSON string) (*transcode.Transcoder, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default().Transcode
	cfg.FFmpegBinary = testsupport.WriteScript(t, dir, "ffmpeg", ffmpegBody)
	cfg.FFprobeBinary = testsupport.WriteScript(t, dir, "ffprobe", "cat <<'JSON'\n"+probeJSON+"\nJSON")
	cfg.TimeoutSeconds = 5
	cfg.KillGraceSeconds = 1
	cfg.CPUSeconds = 0
	return transcode.New(cfg, logging.NewNop()), dir
}

func request(dir string) transcode.Request {
	return transcode.Request{
		Inputs: []transcode.Input{
			{Path: filepath.Join(dir, "0-video.mp4"), Kind: transcode.InputVideo},
			{Path: filepath.Join(dir, "1-audio.m4a"), Kind: transcode.InputAudio},
		},
		Output:   filepath.Join(dir, "abc123.mkv"),
		Target:   transcode.TargetFromConfig(config.Default().Transcode),
		Duration: 10 * time.Second,
	}
}

func TestTranscodeProducesValidatedOutput(t *testing.T) {
	tc, dir := newTranscoder(t, ffmpegWritesOutput, probeHEVC)
	req := request(dir)
	var (
		mu       sync.Mutex
		progress []float64
	)
	req.Progress = func(p float64) {
		mu.Lock()
		progress = append(progress, p)
		mu.Unlock()
	}

	out, err := tc.Transcode(context.Background(), req)
	if err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}
	if out.Path != req.Output || out.Size != int64(len("encoded-artifact")) {
		t.Fatalf("unexpected output: %#v", out)
	}
	if out.VideoCodec != "hevc" || out.Height != 720 || out.Duration != 10*time.Second {
		t.Fatalf("unexpected probe metadata: %#v", out)
	}
	if _, err := os.Stat(req.Output + ".part"); !os.IsNotExist(err) {
		t.Fatalf("expected .part to be renamed away, stat err=%v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(progress) != 3 || progress[0] != 50 || progress[len(progress)-1] != 100 {
		t.Fatalf("unexpected progress sequence: %v", progress)
	}
}

func TestTranscodeFailureRemovesPartialOutput(t *testing.T) {
	body := `for last; do :; done
printf 'partial' > "$last"
echo "Error while encoding" >&2
exit 1`
	tc, dir := newTranscoder(t, body, probeHEVC)
	req := request(dir)

	_, err := tc.Transcode(context.Background(), req)
	if !errors.Is(err, services.ErrTranscode) {
		t.Fatalf("expected TranscodeError, got %v", err)
	}
	for _, path := range []string{req.Output, req.Output + ".part"} {
		if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
			t.Fatalf("expected %s to be removed, stat err=%v", path, statErr)
		}
	}
}

func TestTranscodeRejectsWrongCodec(t *testing.T) {
	tc, dir := newTranscoder(t, ffmpegWritesOutput, probeH264)
	req := request(dir)

	_, err := tc.Transcode(context.Background(), req)
	if services.KindOf(err) != services.KindTranscode {
		t.Fatalf("expected TranscodeError, got %v", err)
	}
	if _, statErr := os.Stat(req.Output); !os.IsNotExist(statErr) {
		t.Fatalf("invalid output left behind: %v", statErr)
	}
}

func TestTranscodeTimeoutIsTranscodeError(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default().Transcode
	cfg.FFmpegBinary = testsupport.WriteScript(t, dir, "ffmpeg", "for last; do :; done\nprintf x > \"$last\"\nsleep 30")
	cfg.TimeoutSeconds = 1
	cfg.KillGraceSeconds = 1
	cfg.ValidateOutput = false
	tc := transcode.New(cfg, logging.NewNop())
	req := request(dir)

	_, err := tc.Transcode(context.Background(), req)
	if services.KindOf(err) != services.KindTranscode {
		t.Fatalf("expected TranscodeError, got %v", err)
	}
	if _, statErr := os.Stat(req.Output + ".part"); !os.IsNotExist(statErr) {
		t.Fatalf("partial output left behind: %v", statErr)
	}
}

func TestTranscodeCancellationKeepsCause(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default().Transcode
	cfg.FFmpegBinary = testsupport.WriteScript(t, dir, "ffmpeg", "for last; do :; done\nprintf x > \"$last\"\nsleep 30")
	cfg.KillGraceSeconds = 1
	cfg.ValidateOutput = false
	tc := transcode.New(cfg, logging.NewNop())
	req := request(dir)

	ctx, cancel := context.WithCancelCause(context.Background())
	time.AfterFunc(100*time.Millisecond, func() { cancel(services.ErrCanceled) })

	started := time.Now()
	_, err := tc.Transcode(ctx, req)
	if services.KindOf(err) != services.KindCanceled {
		t.Fatalf("expected CanceledError, got %v", err)
	}
	if time.Since(started) > 10*time.Second {
		t.Fatal("cancellation did not stop the encoder promptly")
	}
	if _, statErr := os.Stat(req.Output + ".part"); !os.IsNotExist(statErr) {
		t.Fatalf("partial output left behind: %v", statErr)
	}
}
