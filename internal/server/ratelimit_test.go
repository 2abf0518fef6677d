package server

import (
	"testing"
	"time"
)

func TestSubmitLimiterPerClient(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newSubmitLimiter(2, func() time.Time { return now })

	for i := 0; i < 2; i++ {
		if _, ok := limiter.reserve("10.0.0.1"); !ok {
			t.Fatalf("submission %d should be allowed", i)
		}
	}
	delay, ok := limiter.reserve("10.0.0.1")
	if ok {
		t.Fatal("third submission within the burst should be rejected")
	}
	if delay <= 0 || delay > 30*time.Second {
		t.Fatalf("unexpected retry delay %v", delay)
	}
	if _, ok := limiter.reserve("10.0.0.2"); !ok {
		t.Fatal("other clients keep their own budget")
	}

	now = now.Add(30 * time.Second)
	if _, ok := limiter.reserve("10.0.0.1"); !ok {
		t.Fatal("token should refill after the interval")
	}
}

func TestSubmitLimiterPrunesIdleClients(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newSubmitLimiter(5, func() time.Time { return now })
	limiter.reserve("a")
	limiter.reserve("b")

	now = now.Add(clientIdleTimeout + time.Second)
	limiter.reserve("c")
	if len(limiter.clients) != 1 {
		t.Fatalf("expected idle clients pruned, have %d", len(limiter.clients))
	}
}

func TestDisabledSubmitLimiter(t *testing.T) {
	limiter := newSubmitLimiter(0, time.Now)
	if limiter != nil {
		t.Fatal("zero rate should disable the limiter")
	}
	for i := 0; i < 100; i++ {
		if _, ok := limiter.reserve("x"); !ok {
			t.Fatal("nil limiter must allow everything")
		}
	}
}
