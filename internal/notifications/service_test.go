package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vidgrab/internal/config"
	"vidgrab/internal/notifications"
)

type capturedRequest struct {
	title    string
	tags     string
	priority string
	body     string
}

func newNtfyServer(t *testing.T, status int) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		captured = append(captured, capturedRequest{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(status)
		_, _ = w.Write([]byte("topic rejected"))
	}))
	t.Cleanup(server.Close)
	return server, &captured
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if err := svc.JobReady(context.Background(), notifications.Job{Title: "Sample"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).TestNotification(context.Background()); err != nil {
		t.Fatalf("expected nil config to produce a noop notifier, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		send           func(notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "ready",
			send: func(svc notifications.Service) error {
				return svc.JobReady(context.Background(), notifications.Job{ID: "j1", Title: "Sample", FileName: "abc123.mkv"})
			},
			expectTitle:   "vidgrab - Ready",
			expectMessage: "✅ Ready: Sample\nFile: abc123.mkv",
			expectTags:    "vidgrab,job,ready",
		},
		{
			name: "failed without title",
			send: func(svc notifications.Service) error {
				return svc.JobFailed(context.Background(), notifications.Job{
					ID:        "j2",
					SourceURL: "https://example.com/watch?v=abc123",
					ErrorKind: "UpstreamBlockedError",
					Detail:    "The video platform is rate limiting requests.",
				})
			},
			expectTitle:    "vidgrab - Failed",
			expectMessage:  "❌ Failed: https://example.com/watch?v=abc123\nUpstreamBlockedError: The video platform is rate limiting requests.",
			expectTags:     "vidgrab,job,error",
			expectPriority: "high",
		},
		{
			name: "test",
			send: func(svc notifications.Service) error {
				return svc.TestNotification(context.Background())
			},
			expectTitle:    "vidgrab - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "vidgrab,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, captured := newNtfyServer(t, http.StatusOK)
			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL

			if err := tc.send(notifications.NewService(&cfg)); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}
			if len(*captured) != 1 {
				t.Fatalf("expected one request, got %d", len(*captured))
			}
			got := (*captured)[0]
			if got.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, got.title)
			}
			if got.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, got.body)
			}
			if got.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, got.tags)
			}
			if got.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, got.priority)
			}
		})
	}
}

func TestNtfyServiceHonoursEventToggles(t *testing.T) {
	server, captured := newNtfyServer(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.OnReady = false
	cfg.Notifications.OnFailure = false

	svc := notifications.NewService(&cfg)
	if err := svc.JobReady(context.Background(), notifications.Job{Title: "Sample"}); err != nil {
		t.Fatalf("JobReady: %v", err)
	}
	if err := svc.JobFailed(context.Background(), notifications.Job{Title: "Sample"}); err != nil {
		t.Fatalf("JobFailed: %v", err)
	}
	if len(*captured) != 0 {
		t.Fatalf("expected suppressed events, got %d requests", len(*captured))
	}
}

func TestNtfyServiceReportsRejection(t *testing.T) {
	server, _ := newNtfyServer(t, http.StatusForbidden)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	err := notifications.NewService(&cfg).TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "topic rejected") {
		t.Fatalf("expected rejection error, got %v", err)
	}
}
