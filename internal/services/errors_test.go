package services_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"vidgrab/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrTranscode, "transcode", "ffmpeg", "exit status 1", base)
	if !errors.Is(err, services.ErrTranscode) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"transcode", "ffmpeg", "exit status 1"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestKindOfClassifiesMarkers(t *testing.T) {
	cases := []struct {
		err  error
		want services.Kind
	}{
		{services.Wrap(services.ErrInvalidInput, "source", "parse", "bad url", nil), services.KindInvalidInput},
		{services.Wrap(services.ErrUpstreamBlocked, "source", "resolve", "429", nil), services.KindUpstreamBlocked},
		{fmt.Errorf("outer: %w", services.Wrap(services.ErrResourceLimit, "fetch", "", "too big", nil)), services.KindResourceLimit},
		{context.Canceled, services.KindCanceled},
		{errors.New("plain"), services.KindInternal},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := services.KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[services.Kind]int{
		services.KindInvalidInput:     http.StatusBadRequest,
		services.KindNotFound:         http.StatusNotFound,
		services.KindUpstreamBlocked:  http.StatusTooManyRequests,
		services.KindUpstream:         http.StatusBadGateway,
		services.KindResourceLimit:    http.StatusInternalServerError,
		services.KindFetchFailed:      http.StatusInternalServerError,
		services.KindTranscode:        http.StatusInternalServerError,
		services.KindCapacityExceeded: http.StatusServiceUnavailable,
		services.KindInternal:         http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := services.HTTPStatus(kind); got != want {
			t.Fatalf("HTTPStatus(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestPublicMessageHidesInternalDetail(t *testing.T) {
	msg := services.PublicMessage(services.KindTranscode, "ffmpeg: /tmp/work/secret path", 0)
	if strings.Contains(msg, "/tmp") {
		t.Fatalf("internal detail leaked: %q", msg)
	}
	if got := services.PublicMessage(services.KindInvalidInput, "unsupported host", 0); got != "unsupported host" {
		t.Fatalf("expected detail passthrough, got %q", got)
	}
}

func TestPublicMessageUpstreamCarriesRetryHint(t *testing.T) {
	cases := []struct {
		kind  services.Kind
		delay time.Duration
		want  string
	}{
		{services.KindUpstreamBlocked, 120 * time.Second, "The video platform is rate limiting requests. Try again in 120 seconds."},
		{services.KindUpstreamBlocked, 1500 * time.Millisecond, "The video platform is rate limiting requests. Try again in 2 seconds."},
		{services.KindUpstreamBlocked, 0, "The video platform is rate limiting requests. Please try again later."},
		{services.KindUpstream, time.Second, "The video platform returned an unexpected response. Try again in 1 second."},
		{services.KindUpstream, 0, "The video platform returned an unexpected response. Please try again later."},
	}
	for _, tc := range cases {
		got := services.PublicMessage(tc.kind, "resolver: manifest api: upstream is rate limiting", tc.delay)
		if got != tc.want {
			t.Fatalf("PublicMessage(%s, %v) = %q, want %q", tc.kind, tc.delay, got, tc.want)
		}
	}
}

func TestRetryAfterSurvivesWrapping(t *testing.T) {
	err := services.WithRetryAfter(services.Wrap(services.ErrUpstreamBlocked, "source", "resolve", "bot check", nil), 30*time.Second)
	wrapped := fmt.Errorf("job: %w", err)
	delay, ok := services.RetryAfter(wrapped)
	if !ok || delay != 30*time.Second {
		t.Fatalf("expected 30s retry hint, got %v ok=%v", delay, ok)
	}
	if services.KindOf(wrapped) != services.KindUpstreamBlocked {
		t.Fatalf("expected kind to survive retry hint wrapping")
	}
}

func TestDetailsStripsMarker(t *testing.T) {
	err := services.Wrap(services.ErrFetchFailed, "fetch", "stream 0", "giving up", errors.New("connection reset"))
	details := services.Details(err)
	if details.Kind != services.KindFetchFailed {
		t.Fatalf("unexpected kind %q", details.Kind)
	}
	if strings.HasPrefix(details.Message, "fetch failed:") {
		t.Fatalf("expected marker prefix stripped, got %q", details.Message)
	}
	if details.Hint == "" {
		t.Fatal("expected hint")
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	if d, ok := services.ParseRetryAfter("120", now); !ok || d != 2*time.Minute {
		t.Fatalf("seconds form = %v, %v", d, ok)
	}
	date := now.Add(30 * time.Second).Format(http.TimeFormat)
	if d, ok := services.ParseRetryAfter(date, now); !ok || d != 30*time.Second {
		t.Fatalf("date form = %v, %v", d, ok)
	}
	if _, ok := services.ParseRetryAfter("soon", now); ok {
		t.Fatal("expected garbage to be rejected")
	}
	if _, ok := services.ParseRetryAfter("-5", now); ok {
		t.Fatal("expected negative seconds to be rejected")
	}
}
