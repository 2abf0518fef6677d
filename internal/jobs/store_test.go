package jobs_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vidgrab/internal/jobs"
	"vidgrab/internal/testsupport"
)

func TestCreateAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "youtube", "dQw4w9WgXcQ")

	fetched, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched == nil {
		t.Fatal("expected job to be found")
	}
	if fetched.SourceKey != "youtube:dQw4w9WgXcQ" || fetched.Status != jobs.StatusQueued {
		t.Fatalf("unexpected job: %#v", fetched)
	}
	if fetched.CreatedAt.IsZero() || fetched.ReadyAt != nil {
		t.Fatalf("unexpected timestamps: created=%v ready=%v", fetched.CreatedAt, fetched.ReadyAt)
	}

	missing, err := store.Get(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("Get missing failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing job, got %#v", missing)
	}
}

func TestCreateRejectsSecondActiveJobForSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewJob(t, store, "youtube", "aaaaaaaaaaa")

	dup := jobs.NewJob("youtube", "aaaaaaaaaaa", first.SourceURL, first.Target)
	if err := store.Create(ctx, dup); !errors.Is(err, jobs.ErrActiveJobExists) {
		t.Fatalf("expected ErrActiveJobExists, got %v", err)
	}

	first.SetFailure("FetchFailedError", "boom")
	if err := store.Transition(ctx, first, jobs.StatusFailed); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if err := store.Create(ctx, dup); err != nil {
		t.Fatalf("expected create to succeed once the first job is terminal: %v", err)
	}
}

func TestConcurrentCreateAllowsOneActiveJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	const submitters = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for range submitters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job := jobs.NewJob("youtube", "bbbbbbbbbbb", "https://youtu.be/bbbbbbbbbbb", "mkv-hevc-720p-aac")
			err := store.Create(ctx, job)
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
				return
			}
			if !errors.Is(err, jobs.ErrActiveJobExists) {
				t.Errorf("unexpected create error: %v", err)
			}
		}()
	}
	wg.Wait()
	if created != 1 {
		t.Fatalf("expected exactly one active job, got %d", created)
	}
}

func TestTransitionEnforcesStateMachine(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "youtube", "ccccccccccc")

	if err := store.Transition(ctx, job, jobs.StatusReady); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for queued -> ready, got %v", err)
	}
	if job.Status != jobs.StatusQueued {
		t.Fatalf("status changed after rejected transition: %s", job.Status)
	}

	for _, next := range []jobs.Status{jobs.StatusResolving, jobs.StatusFetching, jobs.StatusTranscoding} {
		if err := store.Transition(ctx, job, next); err != nil {
			t.Fatalf("Transition to %s failed: %v", next, err)
		}
	}
	now := time.Now().UTC()
	expires := now.Add(15 * time.Minute)
	job.ArtifactName = "ccccccccccc.mkv"
	job.ArtifactKey = job.ID + "/ccccccccccc.mkv"
	job.ArtifactSize = 1024
	job.ReadyAt = &now
	job.ExpiresAt = &expires
	if err := store.Transition(ctx, job, jobs.StatusReady); err != nil {
		t.Fatalf("Transition to ready failed: %v", err)
	}

	fetched, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Status != jobs.StatusReady || fetched.ArtifactName != "ccccccccccc.mkv" || fetched.ArtifactSize != 1024 {
		t.Fatalf("unexpected persisted job: %#v", fetched)
	}
	if fetched.ExpiresAt == nil || !fetched.ExpiresAt.Equal(expires.Truncate(time.Microsecond)) {
		t.Fatalf("expires_at not persisted: %v", fetched.ExpiresAt)
	}

	if err := store.Transition(ctx, job, jobs.StatusFailed); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("expected ready -> failed to be rejected, got %v", err)
	}
}

func TestTransitionDetectsStaleStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "youtube", "ddddddddddd")
	stale, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	job.SetFailure("CanceledError", "canceled")
	if err := store.Transition(ctx, job, jobs.StatusFailed); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if err := store.Transition(ctx, stale, jobs.StatusResolving); !errors.Is(err, jobs.ErrStaleTransition) {
		t.Fatalf("expected ErrStaleTransition, got %v", err)
	}
	if stale.Status != jobs.StatusQueued {
		t.Fatalf("stale copy mutated: %s", stale.Status)
	}
}

func TestFindersAndDelivery(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "youtube", "eeeeeeeeeee")
	active, err := store.FindActiveBySource(ctx, job.SourceKey)
	if err != nil || active == nil || active.ID != job.ID {
		t.Fatalf("FindActiveBySource = %#v, %v", active, err)
	}

	advanceToReady(t, store, job, "eeeeeeeeeee.mkv", time.Now().Add(time.Hour))

	active, err = store.FindActiveBySource(ctx, job.SourceKey)
	if err != nil || active != nil {
		t.Fatalf("expected no active job after ready, got %#v, %v", active, err)
	}
	ready, err := store.FindReadyBySource(ctx, job.SourceKey, job.Target, time.Now())
	if err != nil || ready == nil || ready.ID != job.ID {
		t.Fatalf("FindReadyBySource = %#v, %v", ready, err)
	}
	other, err := store.FindReadyBySource(ctx, job.SourceKey, "webm-vp9-480p-opus", time.Now())
	if err != nil || other != nil {
		t.Fatalf("expected no ready job for another target, got %#v, %v", other, err)
	}
	byName, err := store.FindReadyByArtifactName(ctx, "eeeeeeeeeee.mkv")
	if err != nil || byName == nil || byName.ID != job.ID {
		t.Fatalf("FindReadyByArtifactName = %#v, %v", byName, err)
	}

	ok, err := store.MarkDelivered(ctx, job.ID, time.Now())
	if err != nil || !ok {
		t.Fatalf("MarkDelivered = %v, %v", ok, err)
	}
	if _, err := store.MarkDelivered(ctx, job.ID, time.Now()); err != nil {
		t.Fatalf("second MarkDelivered failed: %v", err)
	}
	fetched, _ := store.Get(ctx, job.ID)
	if fetched.DeliveryCount != 2 || fetched.DeliveredAt == nil {
		t.Fatalf("unexpected delivery state: count=%d at=%v", fetched.DeliveryCount, fetched.DeliveredAt)
	}
}

func TestReadyArtifactNamesAreUnique(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewJob(t, store, "youtube", "kkkkkkkkkkk")
	advanceToReady(t, store, first, "kkkkkkkkkkk.mkv", time.Now().Add(time.Hour))

	second := testsupport.NewJob(t, store, "example", "kkkkkkkkkkk")
	for _, next := range []jobs.Status{jobs.StatusResolving, jobs.StatusFetching, jobs.StatusTranscoding} {
		if err := store.Transition(ctx, second, next); err != nil {
			t.Fatalf("Transition to %s failed: %v", next, err)
		}
	}
	now := time.Now().UTC()
	second.ArtifactName = "kkkkkkkkkkk.mkv"
	second.ArtifactKey = second.ID + "/kkkkkkkkkkk.mkv"
	second.ReadyAt = &now
	if err := store.Transition(ctx, second, jobs.StatusReady); !errors.Is(err, jobs.ErrArtifactNameTaken) {
		t.Fatalf("expected ErrArtifactNameTaken, got %v", err)
	}
	if second.Status != jobs.StatusTranscoding {
		t.Fatalf("rejected transition mutated status: %s", second.Status)
	}

	second.ArtifactName = "kkkkkkkkkkk-" + second.ID[:8] + ".mkv"
	if err := store.Transition(ctx, second, jobs.StatusReady); err != nil {
		t.Fatalf("Transition with distinct name failed: %v", err)
	}
	for _, job := range []*jobs.Job{first, second} {
		found, err := store.FindReadyByArtifactName(ctx, job.ArtifactName)
		if err != nil || found == nil || found.ID != job.ID {
			t.Fatalf("FindReadyByArtifactName(%q) = %#v, %v", job.ArtifactName, found, err)
		}
	}

	// Expired rows release their name.
	if err := store.Transition(ctx, first, jobs.StatusExpired); err != nil {
		t.Fatalf("Transition to expired failed: %v", err)
	}
	third := testsupport.NewJob(t, store, "youtube", "kkkkkkkkkkk")
	advanceToReady(t, store, third, "kkkkkkkkkkk.mkv", time.Now().Add(time.Hour))
}

func TestFailurePersistsRetryHint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "youtube", "lllllllllll")
	job.SetFailure("UpstreamBlockedError", "The video platform is rate limiting requests.")
	job.SetRetryAfter(119500 * time.Millisecond)
	if err := store.Transition(ctx, job, jobs.StatusFailed); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	fetched, err := store.Get(ctx, job.ID)
	if err != nil || fetched == nil {
		t.Fatalf("Get = %#v, %v", fetched, err)
	}
	if fetched.RetryAfterSeconds != 120 || fetched.RetryAfter() != 2*time.Minute {
		t.Fatalf("unexpected retry hint %d", fetched.RetryAfterSeconds)
	}
}

func TestExpiredReadyAndPurge(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	past := testsupport.NewJob(t, store, "youtube", "fffffffffff")
	advanceToReady(t, store, past, "fffffffffff.mkv", time.Now().Add(-time.Minute))
	future := testsupport.NewJob(t, store, "youtube", "ggggggggggg")
	advanceToReady(t, store, future, "ggggggggggg.mkv", time.Now().Add(time.Hour))

	expired, err := store.ExpiredReady(ctx, time.Now())
	if err != nil {
		t.Fatalf("ExpiredReady failed: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != past.ID {
		t.Fatalf("unexpected expired set: %#v", expired)
	}

	if err := store.Transition(ctx, expired[0], jobs.StatusExpired); err != nil {
		t.Fatalf("Transition to expired failed: %v", err)
	}
	purged, err := store.PurgeTerminalBefore(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("PurgeTerminalBefore failed: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged record, got %d", purged)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[jobs.StatusReady] != 1 || stats[jobs.StatusExpired] != 0 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestFailInterrupted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	queued := testsupport.NewJob(t, store, "youtube", "hhhhhhhhhhh")
	fetching := testsupport.NewJob(t, store, "youtube", "iiiiiiiiiii")
	for _, next := range []jobs.Status{jobs.StatusResolving, jobs.StatusFetching} {
		if err := store.Transition(ctx, fetching, next); err != nil {
			t.Fatalf("Transition failed: %v", err)
		}
	}
	done := testsupport.NewJob(t, store, "youtube", "jjjjjjjjjjj")
	advanceToReady(t, store, done, "jjjjjjjjjjj.mkv", time.Now().Add(time.Hour))

	failed, err := store.FailInterrupted(ctx, "InternalError", "interrupted by restart")
	if err != nil {
		t.Fatalf("FailInterrupted failed: %v", err)
	}
	if len(failed) != 2 {
		t.Fatalf("expected 2 interrupted jobs, got %d", len(failed))
	}
	for _, id := range []string{queued.ID, fetching.ID} {
		job, _ := store.Get(ctx, id)
		if job.Status != jobs.StatusFailed || job.ErrorKind != "InternalError" {
			t.Fatalf("job %s not failed: %#v", id, job)
		}
	}
	count, err := store.CountActive(ctx)
	if err != nil || count != 0 {
		t.Fatalf("CountActive = %d, %v", count, err)
	}
	list, err := store.List(ctx, jobs.StatusReady)
	if err != nil || len(list) != 1 || list[0].ID != done.ID {
		t.Fatalf("List(ready) = %#v, %v", list, err)
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to jobs.Status
		want     bool
	}{
		{jobs.StatusQueued, jobs.StatusResolving, true},
		{jobs.StatusQueued, jobs.StatusFailed, true},
		{jobs.StatusTranscoding, jobs.StatusReady, true},
		{jobs.StatusReady, jobs.StatusExpired, true},
		{jobs.StatusQueued, jobs.StatusFetching, false},
		{jobs.StatusFailed, jobs.StatusQueued, false},
		{jobs.StatusExpired, jobs.StatusReady, false},
		{jobs.StatusReady, jobs.StatusFailed, false},
	}
	for _, tc := range cases {
		if got := jobs.CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
	if _, ok := jobs.ParseStatus(" READY "); !ok {
		t.Fatal("expected ParseStatus to accept mixed case")
	}
}

func advanceToReady(t *testing.T, store *jobs.Store, job *jobs.Job, name string, expires time.Time) {
	t.Helper()
	ctx := context.Background()
	for _, next := range []jobs.Status{jobs.StatusResolving, jobs.StatusFetching, jobs.StatusTranscoding} {
		if err := store.Transition(ctx, job, next); err != nil {
			t.Fatalf("Transition to %s failed: %v", next, err)
		}
	}
	now := time.Now().UTC()
	job.ArtifactName = name
	job.ArtifactKey = job.ID + "/" + name
	job.ReadyAt = &now
	job.ExpiresAt = &expires
	if err := store.Transition(ctx, job, jobs.StatusReady); err != nil {
		t.Fatalf("Transition to ready failed: %v", err)
	}
}
