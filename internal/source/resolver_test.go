package source_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"vidgrab/internal/logging"
	"vidgrab/internal/services"
	"vidgrab/internal/source"
	"vidgrab/internal/testsupport"
)

const ytdlpJSON = `{"id":"dQw4w9WgXcQ","title":"Sample","duration":212.5,"thumbnail":"https://i.ytimg.com/vi/dQw4w9WgXcQ/hq.jpg",
"formats":[
 {"format_id":"sb0","protocol":"mhtml","ext":"mhtml","vcodec":"none","acodec":"none","url":"https://i.ytimg.com/sb"},
 {"format_id":"hls","protocol":"m3u8_native","ext":"mp4","vcodec":"avc1.4d401f","acodec":"mp4a.40.2","url":"https://manifest/hls"},
 {"format_id":"140","protocol":"https","ext":"m4a","vcodec":"none","acodec":"mp4a.40.2","tbr":129.5,"filesize":3400000,"url":"https://cdn/audio?expire=4102444800"},
 {"format_id":"136","protocol":"https","ext":"mp4","vcodec":"avc1.4d401f","acodec":"none","height":720,"width":1280,"tbr":1500,"filesize_approx":40000000,"url":"https://cdn/video?expire=4102444800","http_headers":{"User-Agent":"Mozilla"}},
 {"format_id":"18","protocol":"https","ext":"mp4","vcodec":"avc1.42001E","acodec":"mp4a.40.2","height":360,"url":"https://cdn/muxed"}
]}`

func TestYtDlpSourceDecodesFormats(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "info.json")
	if err := writeText(jsonPath, ytdlpJSON); err != nil {
		t.Fatalf("write json: %v", err)
	}
	binary := testsupport.WriteScript(t, dir, "yt-dlp", `cat "`+jsonPath+`"`)

	resolver := source.NewResolver(nil, &source.YtDlpSource{Binary: binary, Timeout: 5 * time.Second}, 10*time.Second, logging.NewNop())
	ref, err := resolver.Parse("https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	manifest, err := resolver.Resolve(context.Background(), ref)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if manifest.Title != "Sample" || manifest.DurationSeconds != 212.5 || manifest.Reference != ref {
		t.Fatalf("unexpected manifest header: %#v", manifest)
	}
	if len(manifest.Streams) != 3 {
		t.Fatalf("expected 3 http streams, got %d: %#v", len(manifest.Streams), manifest.Streams)
	}
	video := manifest.Streams[1]
	if video.Kind != source.KindVideo || video.VideoCodec != "h264" || video.Size != 40000000 {
		t.Fatalf("unexpected video stream: %#v", video)
	}
	if video.ExpiresAt.Year() != 2100 || video.Headers["User-Agent"] != "Mozilla" {
		t.Fatalf("expiry/headers not decoded: %#v", video)
	}
	if manifest.Streams[2].Kind != source.KindMuxed {
		t.Fatalf("expected muxed stream, got %#v", manifest.Streams[2])
	}
}

func TestYtDlpSourceClassifiesFailures(t *testing.T) {
	cases := []struct {
		name   string
		stderr string
		want   error
	}{
		{"bot check", "ERROR: [youtube] dQw4w9WgXcQ: Sign in to confirm you're not a bot", services.ErrUpstreamBlocked},
		{"throttled", "ERROR: unable to download webpage: HTTP Error 429: Too Many Requests", services.ErrUpstreamBlocked},
		{"private", "ERROR: [youtube] dQw4w9WgXcQ: Private video. Sign in if you've been granted access", services.ErrNotFound},
		{"unavailable", "ERROR: [youtube] dQw4w9WgXcQ: Video unavailable", services.ErrNotFound},
		{"other", "ERROR: unable to extract player response", services.ErrUpstream},
	}
	ref := source.Reference{Platform: "youtube", ID: "dQw4w9WgXcQ"}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			binary := testsupport.WriteScript(t, t.TempDir(), "yt-dlp", "echo \""+tc.stderr+"\" >&2\nexit 1")
			src := &source.YtDlpSource{Binary: binary, Timeout: 5 * time.Second}
			_, err := src.Manifest(context.Background(), ref, "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestHTTPSourceMapsStatuses(t *testing.T) {
	var status int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/example/abc123" {
			http.NotFound(w, r)
			return
		}
		if status != http.StatusOK {
			w.Header().Set("Retry-After", "90")
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title":"Sample","duration":61,"thumbnail":"https://img/abc123.jpg","streams":[
			{"formatId":"v","url":"https://cdn/v.mp4","kind":"video","container":"mp4","videoCodec":"avc1.64001f","height":720},
			{"formatId":"a","url":"https://cdn/a.m4a","kind":"audio","container":"m4a","audioCodec":"mp4a.40.2","bitrate":128}]}`))
	}))
	defer server.Close()

	parser := source.NewParser(source.NewPlatform("example", "example.com"))
	resolver := source.NewResolver(parser, &source.HTTPSource{BaseURL: server.URL + "/", Client: server.Client()}, 5*time.Second, nil)
	ref, err := resolver.Parse("https://example.com/watch?v=abc123")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	status = http.StatusOK
	manifest, err := resolver.Resolve(context.Background(), ref)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if manifest.Title != "Sample" || len(manifest.Streams) != 2 || manifest.Streams[0].VideoCodec != "h264" {
		t.Fatalf("unexpected manifest: %#v", manifest)
	}

	status = http.StatusTooManyRequests
	_, err = resolver.Resolve(context.Background(), ref)
	if !errors.Is(err, services.ErrUpstreamBlocked) {
		t.Fatalf("expected UpstreamBlocked, got %v", err)
	}
	if delay, ok := services.RetryAfter(err); !ok || delay != 90*time.Second {
		t.Fatalf("expected retry hint of 90s, got %v %v", delay, ok)
	}

	status = http.StatusGone
	if _, err = resolver.Resolve(context.Background(), ref); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}

	status = http.StatusBadGateway
	if _, err = resolver.Resolve(context.Background(), ref); services.KindOf(err) != services.KindUpstream {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
}
