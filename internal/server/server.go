package server

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"vidgrab/internal/api"
	"vidgrab/internal/config"
	"vidgrab/internal/deps"
	"vidgrab/internal/logging"
	"vidgrab/internal/services"
	"vidgrab/internal/workflow"
)

// Server exposes the job manager over HTTP.
type Server struct {
	cfg          *config.Config
	manager      *workflow.Manager
	logger       *slog.Logger
	app          *fiber.App
	limiter      *submitLimiter
	format       string
	dependencies []api.DependencyStatus
}

// New builds the fiber app and registers every route. dependencies is the
// startup dependency report served by /health.
func New(cfg *config.Config, manager *workflow.Manager, dependencies []deps.Status, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		cfg:          cfg,
		manager:      manager,
		logger:       logger,
		limiter:      newSubmitLimiter(cfg.Server.SubmitRatePerMinute, time.Now),
		format:       manager.Target().Label(),
		dependencies: api.FromDependencies(dependencies),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "vidgrab",
		BodyLimit:             cfg.Server.BodyLimitKiB * 1024,
		ReadTimeout:           30 * time.Second,
		IdleTimeout:           2 * time.Minute,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	s.app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	s.app.Use(s.logRequests)
	s.app.Use(recover.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:  allowOrigins(cfg.Server.AllowedOrigins),
		AllowMethods:  "GET,HEAD,POST,DELETE,OPTIONS",
		AllowHeaders:  "Content-Type,Accept",
		ExposeHeaders: "Content-Disposition,Content-Length,Retry-After",
	}))

	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/health", s.handleHealth)

	apiGroup := s.app.Group("/api")
	apiGroup.Post("/download", s.handleDownload)
	apiGroup.Get("/jobs", s.handleListJobs)
	apiGroup.Get("/jobs/:id", s.handleGetJob)
	apiGroup.Delete("/jobs/:id", s.handleCancelJob)

	// Get also registers HEAD.
	s.app.Get("/files/:name", s.handleFile)

	s.app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "no route for "+c.Method()+" "+c.Path())
	})
}

// App returns the underlying fiber app for in-process tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("http server listening",
		logging.String("address", ln.Addr().String()),
		logging.String("public_base_url", s.cfg.Server.PublicBaseURL),
		logging.String(logging.FieldEventType, "server_listening"),
	)
	return s.app.Listener(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// logRequests stamps the request id onto the handler context, renders
// handler errors and logs one line per request.
func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	requestID := c.GetRespHeader(fiber.HeaderXRequestID)
	c.SetUserContext(services.WithRequestID(c.UserContext(), requestID))

	if err := c.Next(); err != nil {
		if herr := s.handleError(c, err); herr != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}

	logging.WithContext(c.UserContext(), s.logger).Debug("http request",
		logging.String("method", c.Method()),
		logging.String("path", c.Path()),
		logging.Int("status", c.Response().StatusCode()),
		logging.Duration("elapsed", time.Since(start)),
		logging.String("client", c.IP()),
	)
	return nil
}

func allowOrigins(origins []string) string {
	if len(origins) == 0 {
		return "*"
	}
	return strings.Join(origins, ",")
}
