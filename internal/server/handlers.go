package server

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	"vidgrab/internal/api"
	"vidgrab/internal/jobs"
	"vidgrab/internal/logging"
	"vidgrab/internal/services"
)

func (s *Server) handleDownload(c *fiber.Ctx) error {
	if delay, ok := s.limiter.reserve(c.IP()); !ok {
		err := services.Wrap(services.ErrCapacityExceeded, "server", "submit", "too many submissions from this client", errRateLimited)
		return services.WithRetryAfter(err, delay)
	}

	var req api.DownloadRequest
	if err := c.BodyParser(&req); err != nil {
		return services.Wrap(services.ErrInvalidInput, "server", "submit", "request body must be JSON with a url field", err)
	}
	if strings.TrimSpace(req.URL) == "" {
		return services.Wrap(services.ErrInvalidInput, "server", "submit", "url is required", nil)
	}

	ctx := c.UserContext()
	job, created, err := s.manager.Submit(ctx, req.URL)
	if err != nil {
		return err
	}
	logging.WithContext(services.WithJobID(ctx, job.ID), s.logger).Debug("submission accepted",
		logging.Bool("created", created),
		logging.String("status", string(job.Status)),
	)

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.SubmitWait())
	defer cancel()
	final, err := s.manager.Wait(waitCtx, job.ID)
	switch {
	case errors.Is(err, context.DeadlineExceeded) && final != nil:
		return c.Status(fiber.StatusAccepted).JSON(api.Accepted{
			ID:        final.ID,
			Status:    string(final.Status),
			StatusURL: s.baseURL(c) + "/api/jobs/" + url.PathEscape(final.ID),
		})
	case err != nil:
		return err
	}

	if final.Status != jobs.StatusReady {
		return s.writeJobFailure(c, final)
	}
	return c.JSON(s.view(c, final))
}

func (s *Server) handleListJobs(c *fiber.Ctx) error {
	var statuses []jobs.Status
	for _, raw := range strings.Split(c.Query("status"), ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		status, ok := jobs.ParseStatus(raw)
		if !ok {
			return services.Wrap(services.ErrInvalidInput, "server", "list jobs", "unknown status "+strings.TrimSpace(raw), nil)
		}
		statuses = append(statuses, status)
	}

	list, err := s.manager.List(c.UserContext(), statuses...)
	if err != nil {
		return err
	}
	resp := api.JobListResponse{Jobs: make([]api.Job, 0, len(list))}
	for _, job := range list {
		resp.Jobs = append(resp.Jobs, s.view(c, job))
	}
	return c.JSON(resp)
}

func (s *Server) handleGetJob(c *fiber.Ctx) error {
	job, err := s.manager.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(s.view(c, job))
}

func (s *Server) handleCancelJob(c *fiber.Ctx) error {
	job, err := s.manager.Cancel(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(s.view(c, job))
}

// handleFile streams an artifact. HEAD requests report the headers without
// reading the artifact, so they never count as a delivery.
func (s *Server) handleFile(c *fiber.Ctx) error {
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil || name == "" || strings.ContainsAny(name, `/\`) {
		return services.Wrap(services.ErrNotFound, "server", "download", "unknown artifact", nil)
	}

	download, err := s.manager.OpenArtifact(c.UserContext(), name)
	if err != nil {
		return err
	}
	c.Attachment(download.Filename)
	c.Set(fiber.HeaderContentType, download.ContentType)
	c.Set(fiber.HeaderCacheControl, "no-store")

	if c.Method() == fiber.MethodHead {
		_ = download.Body.Close()
		c.Response().Header.SetContentLength(int(download.Size))
		return nil
	}
	// fasthttp closes the body after writing it, which records the delivery.
	return c.SendStream(download.Body, int(download.Size))
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	summary := s.manager.Status(c.UserContext())
	return c.JSON(api.FromStatusSummary(summary, s.format, s.dependencies))
}

func (s *Server) view(c *fiber.Ctx, job *jobs.Job) api.Job {
	var downloadURL string
	if job.Status == jobs.StatusReady && job.ArtifactName != "" {
		downloadURL = s.baseURL(c) + "/files/" + url.PathEscape(job.ArtifactName)
	}
	return api.FromJob(job, downloadURL, s.format)
}

// baseURL is the configured public base URL, or the scheme and host the
// request arrived on.
func (s *Server) baseURL(c *fiber.Ctx) string {
	if base := s.cfg.Server.PublicBaseURL; base != "" {
		return base
	}
	return c.BaseURL()
}
