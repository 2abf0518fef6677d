package testsupport

import (
	"context"
	"testing"

	"vidgrab/internal/config"
	"vidgrab/internal/jobs"
)

// MustOpenStore opens a jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob inserts a queued job for the given source key.
func NewJob(t testing.TB, store *jobs.Store, platform, videoID string) *jobs.Job {
	t.Helper()

	job := jobs.NewJob(platform, videoID, "https://www.youtube.com/watch?v="+videoID, "mkv-hevc-720p-aac")
	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}
