package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"vidgrab/internal/config"
	"vidgrab/internal/jobs"
	"vidgrab/internal/logging"
	"vidgrab/internal/workflow"
)

// FFmpegWritesOutput reports progress on stdout and writes a small artifact
// to the last argument, which is the output path.
const FFmpegWritesOutput = `for last; do :; done
echo "out_time_us=30000000"
echo "progress=continue"
echo "progress=end"
printf 'encoded-artifact' > "$last"`

// FFmpegHangs simulates an encoder that never finishes on its own.
const FFmpegHangs = `for last; do :; done
printf 'partial' > "$last"
sleep 30`

// ProbeHEVC720 is ffprobe output matching the default transcode target.
const ProbeHEVC720 = `{"streams":[{"index":0,"codec_type":"video","codec_name":"hevc","width":1280,"height":720},{"index":1,"codec_type":"audio","codec_name":"aac"}],"format":{"format_name":"matroska,webm","duration":"61.0","size":"16"}}`

// WithUpstream points the resolver at the fake manifest API and registers
// the example.com platform it serves.
func WithUpstream(u *Upstream) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Resolver.Backend = config.ResolverHTTP
		b.cfg.Resolver.ManifestURL = u.ManifestURL()
		b.cfg.Resolver.TimeoutSeconds = 5
		b.cfg.Resolver.Platforms = append(b.cfg.Resolver.Platforms, config.Platform{Name: "example", Hosts: []string{"example.com"}})
	}
}

// WithFakeTranscoder installs ffmpeg and ffprobe scripts. ffmpegBody runs as
// ffmpeg; ffprobe always reports ProbeHEVC720.
func WithFakeTranscoder(ffmpegBody string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "transcode-bin")
		b.cfg.Transcode.FFmpegBinary = WriteScript(b.t, binDir, "ffmpeg", ffmpegBody)
		b.cfg.Transcode.FFprobeBinary = WriteScript(b.t, binDir, "ffprobe", "cat <<'JSON'\n"+ProbeHEVC720+"\nJSON")
		b.cfg.Transcode.TimeoutSeconds = 10
		b.cfg.Transcode.KillGraceSeconds = 1
		b.cfg.Transcode.CPUSeconds = 0
	}
}

// StartManager wires a workflow manager from cfg, starts it, and stops it at
// test cleanup.
func StartManager(t testing.TB, cfg *config.Config, opts ...workflow.ManagerOption) (*workflow.Manager, *jobs.Store) {
	t.Helper()

	store := MustOpenStore(t, cfg)
	components, err := workflow.NewComponents(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("workflow.NewComponents: %v", err)
	}
	mgr := workflow.NewManager(cfg, store, components, logging.NewNop(), opts...)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("manager.Start: %v", err)
	}
	t.Cleanup(mgr.Stop)
	return mgr, store
}
