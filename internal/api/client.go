package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vidgrab/internal/services"
)

// maxResponseBytes caps decoded API responses.
const maxResponseBytes = 4 << 20

// Client talks to a running vidgrab server over its HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the server at baseURL. A nil httpClient uses
// a client with a 30 second timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"), http: httpClient}
}

// Error is a non-2xx API response.
type Error struct {
	StatusCode int
	Kind       string
	Detail     string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s (%d %s)", e.Detail, e.StatusCode, e.Kind)
	}
	return fmt.Sprintf("%s (%d)", e.Detail, e.StatusCode)
}

// Unwrap exposes the services marker for the reported kind so callers can
// use errors.Is with services sentinels.
func (e *Error) Unwrap() error {
	return services.Marker(services.Kind(e.Kind))
}

// Submit posts url to /api/download. done is false when the server answered
// 202 and the returned job only carries its id and status.
func (c *Client) Submit(ctx context.Context, rawURL string) (job *Job, done bool, err error) {
	body, err := json.Marshal(DownloadRequest{URL: rawURL})
	if err != nil {
		return nil, false, err
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/download", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		var accepted Accepted
		if err := decode(resp.Body, &accepted); err != nil {
			return nil, false, err
		}
		return &Job{ID: accepted.ID, Status: accepted.Status}, false, nil
	}
	var out Job
	if err := decode(resp.Body, &out); err != nil {
		return nil, false, err
	}
	return &out, true, nil
}

// Job fetches one job by id.
func (c *Client) Job(ctx context.Context, id string) (*Job, error) {
	var out Job
	if err := c.getJSON(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Jobs lists jobs, optionally filtered by status.
func (c *Client) Jobs(ctx context.Context, statuses ...string) ([]Job, error) {
	path := "/api/jobs"
	if len(statuses) > 0 {
		path += "?" + url.Values{"status": {strings.Join(statuses, ",")}}.Encode()
	}
	var out JobListResponse
	if err := c.getJSON(ctx, http.MethodGet, path, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// Cancel cancels a job and returns its final state.
func (c *Client) Cancel(ctx context.Context, id string) (*Job, error) {
	var out Job
	if err := c.getJSON(ctx, http.MethodDelete, "/api/jobs/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health fetches the liveness payload.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.getJSON(ctx, http.MethodGet, "/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, method, path string, out any) error {
	resp, err := c.do(ctx, method, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decode(resp.Body, out)
}

// do sends the request and converts non-2xx responses into *Error.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	if c.baseURL == "" {
		return nil, errors.New("server address is empty")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := &Error{StatusCode: resp.StatusCode}
	var payload ErrorResponse
	if err := decode(resp.Body, &payload); err == nil {
		apiErr.Kind = payload.Kind
		apiErr.Detail = payload.Detail
	}
	if apiErr.Detail == "" {
		apiErr.Detail = http.StatusText(resp.StatusCode)
	}
	if delay, ok := services.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
		apiErr.RetryAfter = delay
	}
	return nil, apiErr
}

func decode(r io.Reader, out any) error {
	if err := json.NewDecoder(io.LimitReader(r, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
