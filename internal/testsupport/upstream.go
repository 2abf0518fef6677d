package testsupport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// Upstream fakes a manifest API under /manifest/{platform}/{id} and a media
// host under /media/{name}. Every video resolves to the title "Sample" with
// one video-only and one audio-only stream.
type Upstream struct {
	Server *httptest.Server

	mu             sync.Mutex
	manifestStatus int
	retryAfter     string
	mediaSize      int
	mediaStatus    int
	hold           chan struct{}
	requests       map[string]int
}

// NewUpstream starts the fake and registers its shutdown.
func NewUpstream(t testing.TB) *Upstream {
	t.Helper()
	u := &Upstream{manifestStatus: http.StatusOK, mediaStatus: http.StatusOK, mediaSize: 4096, requests: make(map[string]int)}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /manifest/{platform}/{id}", u.serveManifest)
	mux.HandleFunc("GET /media/{name}", u.serveMedia)
	u.Server = httptest.NewServer(mux)
	t.Cleanup(func() {
		u.Release()
		u.Server.Close()
	})
	return u
}

// ManifestURL is the base URL for resolver.manifest_url.
func (u *Upstream) ManifestURL() string {
	return u.Server.URL + "/manifest"
}

// SetManifestStatus makes manifest lookups answer with status and an
// optional Retry-After value.
func (u *Upstream) SetManifestStatus(status int, retryAfter string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.manifestStatus = status
	u.retryAfter = retryAfter
}

// SetMediaSize sets the byte length of every media body.
func (u *Upstream) SetMediaSize(size int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.mediaSize = size
}

// SetMediaStatus makes media requests answer with status.
func (u *Upstream) SetMediaStatus(status int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.mediaStatus = status
}

// HoldMedia blocks media requests until Release is called or the client
// goes away.
func (u *Upstream) HoldMedia() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.hold == nil {
		u.hold = make(chan struct{})
	}
}

// Release unblocks held media requests.
func (u *Upstream) Release() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.hold != nil {
		close(u.hold)
		u.hold = nil
	}
}

// Requests reports how many times path was requested.
func (u *Upstream) Requests(path string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.requests[path]
}

func (u *Upstream) record(r *http.Request) {
	u.mu.Lock()
	u.requests[r.URL.Path]++
	u.mu.Unlock()
}

type manifestBody struct {
	Title     string           `json:"title"`
	Duration  float64          `json:"duration"`
	Thumbnail string           `json:"thumbnail"`
	Streams   []map[string]any `json:"streams"`
}

func (u *Upstream) serveManifest(w http.ResponseWriter, r *http.Request) {
	u.record(r)
	u.mu.Lock()
	status, retryAfter := u.manifestStatus, u.retryAfter
	u.mu.Unlock()
	if status != http.StatusOK {
		if retryAfter != "" {
			w.Header().Set("Retry-After", retryAfter)
		}
		w.WriteHeader(status)
		return
	}

	id := r.PathValue("id")
	body := manifestBody{
		Title:     "Sample",
		Duration:  61,
		Thumbnail: "https://img.example.com/" + id + ".jpg",
		Streams: []map[string]any{
			{"formatId": "137", "url": u.Server.URL + "/media/" + id + "-video.mp4", "kind": "video",
				"container": "mp4", "videoCodec": "avc1.64001f", "width": 1280, "height": 720, "bitrate": 1500},
			{"formatId": "140", "url": u.Server.URL + "/media/" + id + "-audio.m4a", "kind": "audio",
				"container": "m4a", "audioCodec": "mp4a.40.2", "bitrate": 128},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (u *Upstream) serveMedia(w http.ResponseWriter, r *http.Request) {
	u.record(r)
	u.mu.Lock()
	hold, size, status := u.hold, u.mediaSize, u.mediaStatus
	u.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	name := r.PathValue("name")
	content := bytes.Repeat([]byte{name[0]}, size)
	http.ServeContent(w, r, name, time.Unix(0, 0), bytes.NewReader(content))
}
