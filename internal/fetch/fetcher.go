package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"vidgrab/internal/logging"
	"vidgrab/internal/services"
	"vidgrab/internal/source"
)

const chunkSize = 32 * 1024

// Options configures transfer limits and retry behaviour.
type Options struct {
	MaxAttempts int
	Backoff     Backoff
	// MaxBytes caps the total bytes written per Fetch call; zero disables.
	MaxBytes int64
	// MaxDuration caps the wall-clock time of a Fetch call; zero disables.
	MaxDuration time.Duration
	// RateLimit caps throughput in bytes per second across every transfer
	// sharing this Fetcher; zero disables.
	RateLimit int
	Parallel  bool
	UserAgent string
}

// Result describes one downloaded stream.
type Result struct {
	Stream   source.Stream
	Path     string
	Size     int64
	Attempts int
}

// ProgressFunc receives the bytes written so far and the known total (zero
// when unknown). It may be called from several goroutines.
type ProgressFunc func(written, total int64)

// Fetcher downloads manifest streams to local files. It keeps no per-job
// state between calls.
type Fetcher struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New constructs a Fetcher. A nil client uses http.DefaultClient.
func New(client *http.Client, opts Options, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Backoff == (Backoff{}) {
		opts.Backoff = DefaultBackoff
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(opts.RateLimit, chunkSize))
	}
	return &Fetcher{
		client:  client,
		opts:    opts,
		limiter: limiter,
		logger:  logging.NewComponentLogger(logger, "fetch"),
	}
}

// Fetch downloads every stream into dir as <index>-<kind>.<ext>. Streams are
// fetched in parallel unless disabled; results keep the input order.
func (f *Fetcher) Fetch(ctx context.Context, dir string, streams []source.Stream, progress ProgressFunc) ([]Result, error) {
	if len(streams) == 0 {
		return nil, services.Wrap(services.ErrFetchFailed, "fetch", "download", "no streams selected", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create fetch dir: %w", err)
	}

	budget := newBudget(f.opts.MaxBytes)
	var known int64
	for _, stream := range streams {
		known += max(stream.Size, 0)
	}
	if err := budget.fits(known); err != nil {
		return nil, err
	}

	if f.opts.MaxDuration > 0 {
		limitErr := services.Wrap(services.ErrResourceLimit, "fetch", "download",
			fmt.Sprintf("transfer exceeded %s", f.opts.MaxDuration), nil)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, f.opts.MaxDuration, limitErr)
		defer cancel()
	}

	report := func() {
		if progress != nil {
			progress(budget.total(), known)
		}
	}

	results := make([]Result, len(streams))
	group, groupCtx := errgroup.WithContext(ctx)
	if !f.opts.Parallel {
		group.SetLimit(1)
	}
	for i, stream := range streams {
		path := filepath.Join(dir, fmt.Sprintf("%d-%s.%s", i, stream.Kind, stream.Extension()))
		group.Go(func() error {
			res, err := f.fetchStream(groupCtx, path, stream, budget, report)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		// errgroup cancels siblings with context.Canceled; report the real cause.
		if cause := context.Cause(ctx); cause != nil {
			return nil, cause
		}
		return nil, err
	}
	return results, nil
}

func (f *Fetcher) fetchStream(ctx context.Context, path string, stream source.Stream, budget *budget, report func()) (Result, error) {
	logger := logging.WithContext(ctx, f.logger).With(
		logging.String("format_id", stream.FormatID),
		logging.String("kind", string(stream.Kind)),
	)
	var lastErr error
	for attempt := 1; attempt <= f.opts.MaxAttempts; attempt++ {
		size, err := f.attempt(ctx, path, stream, budget, report)
		if err == nil {
			logger.Debug("stream fetched",
				logging.String(logging.FieldEventType, "stream_fetched"),
				logging.Int64("bytes", size),
				logging.Int("attempts", attempt),
			)
			return Result{Stream: stream, Path: path, Size: size, Attempts: attempt}, nil
		}
		if ctx.Err() != nil {
			return Result{}, context.Cause(ctx)
		}
		var retry *retryableError
		if !errors.As(err, &retry) {
			return Result{}, err
		}
		lastErr = retry.err
		if attempt == f.opts.MaxAttempts {
			break
		}
		delay := f.opts.Backoff.Delay(attempt)
		if retry.after > delay {
			delay = retry.after
		}
		logging.WarnWithContext(logger, "stream transfer failed; retrying", "fetch_retry",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(retry.err),
			logging.String(logging.FieldImpact, "download resumes after backoff"),
		)
		if err := sleep(ctx, delay); err != nil {
			return Result{}, context.Cause(ctx)
		}
	}
	return Result{}, services.Wrap(services.ErrFetchFailed, "fetch", "download",
		fmt.Sprintf("stream %s failed after %d attempts", stream.FormatID, f.opts.MaxAttempts), lastErr)
}

// attempt performs one HTTP transfer, resuming from whatever is already on
// disk at path.
func (f *Fetcher) attempt(ctx context.Context, path string, stream source.Stream, budget *budget, report func()) (int64, error) {
	have := fileSize(path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, stream.URL, nil)
	if err != nil {
		return 0, services.Wrap(services.ErrFetchFailed, "fetch", "download", "invalid stream url", err)
	}
	for key, value := range stream.Headers {
		req.Header.Set(key, value)
	}
	if ua := strings.TrimSpace(f.opts.UserAgent); ua != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", ua)
	}
	if have > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(have, 10)+"-")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return have, &retryableError{err: err}
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch {
	case resp.StatusCode == http.StatusPartialContent && have > 0:
		start, _, ok := parseContentRange(resp.Header.Get("Content-Range"))
		if !ok || start != have {
			budget.refund(have)
			_ = os.Truncate(path, 0)
			return 0, &retryableError{err: fmt.Errorf("range response starts at %d, want %d", start, have)}
		}
		flags |= os.O_APPEND
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent:
		budget.refund(have)
		have = 0
		flags |= os.O_TRUNC
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && have > 0:
		_, total, ok := parseContentRange(resp.Header.Get("Content-Range"))
		if ok && total == have {
			return have, nil
		}
		budget.refund(have)
		_ = os.Truncate(path, 0)
		return 0, &retryableError{err: errors.New("stale partial download discarded")}
	case retryableStatus(resp.StatusCode):
		after, _ := services.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return have, &retryableError{err: fmt.Errorf("HTTP %d", resp.StatusCode), after: after}
	default:
		return have, services.Wrap(services.ErrFetchFailed, "fetch", "download",
			fmt.Sprintf("stream %s: HTTP %d", stream.FormatID, resp.StatusCode), nil)
	}

	if err := budget.fits(resp.ContentLength); err != nil {
		return have, err
	}

	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return have, fmt.Errorf("open %s: %w", path, err)
	}
	written, copyErr := f.copy(ctx, file, resp.Body, budget, report)
	closeErr := file.Close()
	total := have + written
	switch {
	case copyErr != nil:
		return total, copyErr
	case closeErr != nil:
		return total, fmt.Errorf("close %s: %w", path, closeErr)
	case resp.ContentLength > 0 && written < resp.ContentLength:
		return total, &retryableError{err: io.ErrUnexpectedEOF}
	}
	return total, nil
}

func (f *Fetcher) copy(ctx context.Context, dst io.Writer, src io.Reader, budget *budget, report func()) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if f.limiter != nil {
				if err := f.limiter.WaitN(ctx, n); err != nil {
					return written, context.Cause(ctx)
				}
			}
			if err := budget.charge(int64(n)); err != nil {
				return written, err
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				budget.refund(int64(n))
				return written, fmt.Errorf("write stream: %w", err)
			}
			written += int64(n)
			report()
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return written, context.Cause(ctx)
			}
			return written, &retryableError{err: readErr}
		}
	}
}

type retryableError struct {
	err   error
	after time.Duration
}

func (e *retryableError) Error() string { return e.err.Error() }

func (e *retryableError) Unwrap() error { return e.err }

func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

// parseContentRange decodes "bytes start-end/total" and "bytes */total".
// total is -1 when the server reports it as unknown.
func parseContentRange(value string) (start, total int64, ok bool) {
	value = strings.TrimSpace(value)
	rest, found := strings.CutPrefix(value, "bytes ")
	if !found {
		return 0, 0, false
	}
	span, totalRaw, found := strings.Cut(rest, "/")
	if !found {
		return 0, 0, false
	}
	total = -1
	if totalRaw != "*" {
		parsed, err := strconv.ParseInt(totalRaw, 10, 64)
		if err != nil {
			return 0, 0, false
		}
		total = parsed
	}
	if span == "*" {
		return 0, total, true
	}
	startRaw, _, found := strings.Cut(span, "-")
	if !found {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(startRaw, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return start, total, true
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
