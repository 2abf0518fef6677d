package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vidgrab/internal/config"
)

const userAgent = "vidgrab-notify/1"

// Service defines the notification surface exposed to the job orchestrator.
type Service interface {
	JobReady(ctx context.Context, job Job) error
	JobFailed(ctx context.Context, job Job) error
	TestNotification(ctx context.Context) error
}

// Job carries the fields a notification message is built from.
type Job struct {
	ID        string
	Title     string
	SourceURL string
	FileName  string
	ErrorKind string
	Detail    string
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		onReady:   cfg.Notifications.OnReady,
		onFailure: cfg.Notifications.OnFailure,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	onReady   bool
	onFailure bool
}

func (n *ntfyService) JobReady(ctx context.Context, job Job) error {
	if !n.onReady {
		return nil
	}
	message := fmt.Sprintf("✅ Ready: %s", displayTitle(job))
	if name := strings.TrimSpace(job.FileName); name != "" {
		message = fmt.Sprintf("%s\nFile: %s", message, name)
	}
	return n.send(ctx, payload{
		title:   "vidgrab - Ready",
		message: message,
		tags:    []string{"vidgrab", "job", "ready"},
	})
}

func (n *ntfyService) JobFailed(ctx context.Context, job Job) error {
	if !n.onFailure {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("❌ Failed: ")
	builder.WriteString(displayTitle(job))
	if kind := strings.TrimSpace(job.ErrorKind); kind != "" {
		builder.WriteString("\n")
		builder.WriteString(kind)
		if detail := strings.TrimSpace(job.Detail); detail != "" {
			builder.WriteString(": ")
			builder.WriteString(detail)
		}
	}
	return n.send(ctx, payload{
		title:    "vidgrab - Failed",
		message:  builder.String(),
		tags:     []string{"vidgrab", "job", "error"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "vidgrab - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"vidgrab", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// displayTitle prefers the media title, then the submitted URL, then the id.
func displayTitle(job Job) string {
	for _, candidate := range []string{job.Title, job.SourceURL, job.ID} {
		if value := strings.TrimSpace(candidate); value != "" {
			return value
		}
	}
	return "unknown job"
}

type noopService struct{}

func (noopService) JobReady(context.Context, Job) error    { return nil }
func (noopService) JobFailed(context.Context, Job) error   { return nil }
func (noopService) TestNotification(context.Context) error { return nil }
