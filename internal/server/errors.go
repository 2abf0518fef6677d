package server

import (
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"vidgrab/internal/api"
	"vidgrab/internal/jobs"
	"vidgrab/internal/logging"
	"vidgrab/internal/services"
)

// defaultRetryAfter is advertised for throttling failures that carry no
// upstream hint.
const defaultRetryAfter = 60 * time.Second

// errRateLimited marks submissions rejected by the per-client limiter. They
// are reported as 429 instead of the 503 used when the worker pool is full.
var errRateLimited = errors.New("client submission rate exceeded")

// handleError renders err as an {detail, kind} body. Internal kinds get a
// generic detail and are logged with their root cause.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return s.writeProblem(c, fiberErr.Code, kindForStatus(fiberErr.Code), fiberErr.Message, 0, "")
	}

	details := services.Details(err)
	status := services.HTTPStatus(details.Kind)
	if errors.Is(err, errRateLimited) {
		status = fiber.StatusTooManyRequests
	}
	delay, _ := services.RetryAfter(err)
	delay = advertisedRetry(details.Kind, delay)

	if services.IsInternal(details.Kind) {
		logging.ErrorWithContext(logging.WithContext(c.UserContext(), s.logger), "request failed", "request_failed",
			logging.String("method", c.Method()),
			logging.String("path", c.Path()),
			logging.String(logging.FieldErrorKind, string(details.Kind)),
			logging.String(logging.FieldErrorHint, details.Hint),
			logging.Error(err),
		)
	}
	return s.writeProblem(c, status, details.Kind, services.PublicMessage(details.Kind, details.Message, delay), delay, "")
}

// writeJobFailure reports a job that reached failed or expired while the
// submitter was waiting.
func (s *Server) writeJobFailure(c *fiber.Ctx, job *jobs.Job) error {
	kind := services.Kind(job.ErrorKind)
	if kind == "" {
		kind = services.KindInternal
	}
	delay := advertisedRetry(kind, job.RetryAfter())
	return s.writeProblem(c, services.HTTPStatus(kind), kind, services.PublicMessage(kind, job.ErrorMessage, delay), delay, job.ID)
}

func (s *Server) writeProblem(c *fiber.Ctx, status int, kind services.Kind, detail string, retryAfter time.Duration, jobID string) error {
	retryAfter = advertisedRetry(kind, retryAfter)
	if retryAfter > 0 {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	}
	return c.Status(status).JSON(api.ErrorResponse{Detail: detail, Kind: string(kind), ID: jobID})
}

// advertisedRetry is the Retry-After sent for kind, falling back to the
// default for throttling kinds without an upstream hint.
func advertisedRetry(kind services.Kind, delay time.Duration) time.Duration {
	if delay <= 0 && (kind == services.KindUpstreamBlocked || kind == services.KindCapacityExceeded) {
		return defaultRetryAfter
	}
	return delay
}

func kindForStatus(status int) services.Kind {
	switch status {
	case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge, fiber.StatusUnprocessableEntity, fiber.StatusMethodNotAllowed:
		return services.KindInvalidInput
	case fiber.StatusNotFound:
		return services.KindNotFound
	case fiber.StatusTooManyRequests:
		return services.KindCapacityExceeded
	default:
		return services.KindInternal
	}
}
