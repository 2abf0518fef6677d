package fetch_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"vidgrab/internal/fetch"
	"vidgrab/internal/logging"
	"vidgrab/internal/services"
	"vidgrab/internal/source"
)

func testOptions() fetch.Options {
	return fetch.Options{
		MaxAttempts: 3,
		Backoff:     fetch.Backoff{Base: time.Millisecond, Factor: 2, Max: 5 * time.Millisecond},
		Parallel:    true,
	}
}

func TestFetchResumesWithRange(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 10_000)
	half := len(payload) / 2
	var requests atomic.Int32
	var gotRange atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(payload[:half])
			w.(http.Flusher).Flush()
			return
		}
		gotRange.Store(r.Header.Get("Range"))
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", half, len(payload)-1, len(payload)))
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)-half))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(payload[half:])
	}))
	defer server.Close()

	dir := t.TempDir()
	f := fetch.New(server.Client(), testOptions(), logging.NewNop())
	results, err := f.Fetch(context.Background(), dir, []source.Stream{
		{FormatID: "137", URL: server.URL + "/video", Kind: source.KindVideo, Container: "mp4"},
	}, nil)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if gotRange.Load() != fmt.Sprintf("bytes=%d-", half) {
		t.Fatalf("unexpected Range header %v", gotRange.Load())
	}
	if results[0].Attempts != 2 || results[0].Size != int64(len(payload)) {
		t.Fatalf("unexpected result: %#v", results[0])
	}
	if results[0].Path != filepath.Join(dir, "0-video.mp4") {
		t.Fatalf("unexpected path %s", results[0].Path)
	}
	data, err := os.ReadFile(results[0].Path)
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatal("resumed file does not match payload")
	}
}

func TestFetchRetriesTransientStatusesThenSucceeds(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch requests.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_, _ = w.Write([]byte("audio-bytes"))
		}
	}))
	defer server.Close()

	f := fetch.New(server.Client(), testOptions(), logging.NewNop())
	results, err := f.Fetch(context.Background(), t.TempDir(), []source.Stream{
		{FormatID: "140", URL: server.URL, Kind: source.KindAudio, Container: "m4a"},
	}, nil)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if results[0].Attempts != 3 || results[0].Size != int64(len("audio-bytes")) {
		t.Fatalf("unexpected result: %#v", results[0])
	}
}

func TestFetchStopsOnPermanentStatus(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	f := fetch.New(server.Client(), testOptions(), logging.NewNop())
	_, err := f.Fetch(context.Background(), t.TempDir(), []source.Stream{
		{FormatID: "v", URL: server.URL, Kind: source.KindVideo, Container: "mp4"},
	}, nil)
	if !errors.Is(err, services.ErrFetchFailed) {
		t.Fatalf("expected FetchFailed, got %v", err)
	}
	if requests.Load() != 1 {
		t.Fatalf("expected a single request, got %d", requests.Load())
	}
}

func TestFetchFailsAfterMaxAttempts(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	f := fetch.New(server.Client(), testOptions(), logging.NewNop())
	_, err := f.Fetch(context.Background(), t.TempDir(), []source.Stream{
		{FormatID: "v", URL: server.URL, Kind: source.KindVideo, Container: "mp4"},
	}, nil)
	if services.KindOf(err) != services.KindFetchFailed {
		t.Fatalf("expected FetchFailedError, got %v", err)
	}
	if requests.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", requests.Load())
	}
}

func TestFetchEnforcesSizeLimit(t *testing.T) {
	payload := bytes.Repeat([]byte{0x42}, 64*1024)
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.(http.Flusher).Flush()
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	opts := testOptions()
	opts.MaxBytes = 40 * 1024
	f := fetch.New(server.Client(), opts, logging.NewNop())

	_, err := f.Fetch(context.Background(), t.TempDir(), []source.Stream{
		{FormatID: "v", URL: server.URL, Kind: source.KindVideo, Container: "mp4", Size: 1 << 30},
	}, nil)
	if !errors.Is(err, services.ErrResourceLimit) {
		t.Fatalf("expected ResourceLimit for known size, got %v", err)
	}
	if requests.Load() != 0 {
		t.Fatalf("expected no request when the known size exceeds the limit, got %d", requests.Load())
	}

	_, err = f.Fetch(context.Background(), t.TempDir(), []source.Stream{
		{FormatID: "v", URL: server.URL, Kind: source.KindVideo, Container: "mp4"},
		{FormatID: "a", URL: server.URL, Kind: source.KindAudio, Container: "m4a"},
	}, nil)
	if !errors.Is(err, services.ErrResourceLimit) {
		t.Fatalf("expected ResourceLimit while streaming, got %v", err)
	}
}

func TestFetchEnforcesWallClockLimit(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	opts := testOptions()
	opts.MaxDuration = 100 * time.Millisecond
	f := fetch.New(server.Client(), opts, logging.NewNop())

	_, err := f.Fetch(context.Background(), t.TempDir(), []source.Stream{
		{FormatID: "v", URL: server.URL, Kind: source.KindVideo, Container: "mp4"},
	}, nil)
	if services.KindOf(err) != services.KindResourceLimit {
		t.Fatalf("expected ResourceLimitError, got %v", err)
	}
}

func TestFetchParallelStreamsKeepOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer server.Close()

	var progressCalls atomic.Int32
	f := fetch.New(server.Client(), testOptions(), logging.NewNop())
	results, err := f.Fetch(context.Background(), t.TempDir(), []source.Stream{
		{FormatID: "v", URL: server.URL + "/video", Kind: source.KindVideo, Container: "webm"},
		{FormatID: "a", URL: server.URL + "/audio", Kind: source.KindAudio},
	}, func(written, total int64) { progressCalls.Add(1) })
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if filepath.Base(results[0].Path) != "0-video.webm" || filepath.Base(results[1].Path) != "1-audio.bin" {
		t.Fatalf("unexpected paths: %s %s", results[0].Path, results[1].Path)
	}
	data, _ := os.ReadFile(results[1].Path)
	if string(data) != "/audio" {
		t.Fatalf("unexpected audio content %q", data)
	}
	if progressCalls.Load() < 2 {
		t.Fatalf("expected progress callbacks, got %d", progressCalls.Load())
	}
}

func TestFetchHonoursCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancelCause(context.Background())
	time.AfterFunc(50*time.Millisecond, func() { cancel(services.ErrCanceled) })

	f := fetch.New(server.Client(), testOptions(), logging.NewNop())
	_, err := f.Fetch(ctx, t.TempDir(), []source.Stream{
		{FormatID: "v", URL: server.URL, Kind: source.KindVideo, Container: "mp4"},
	}, nil)
	if !errors.Is(err, services.ErrCanceled) {
		t.Fatalf("expected cancellation cause, got %v", err)
	}
}
