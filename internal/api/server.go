// Package api serves analyses over HTTP.
package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog/log"

	"github.com/cranesandcaff/inspectpack/internal/cache"
	"github.com/cranesandcaff/inspectpack/internal/config"
	"github.com/cranesandcaff/inspectpack/internal/middleware"
	"github.com/cranesandcaff/inspectpack/internal/observability"
)

// Version is reported by the health endpoint
var Version = "dev"

// Server represents the HTTP server
type Server struct {
	app       *fiber.App
	config    *config.Config
	cache     *cache.ResultCache
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	startTime time.Time
}

// NewServer creates the HTTP server around a shared result cache
func NewServer(cfg *config.Config, rc *cache.ResultCache, metrics *observability.Metrics, tracer *observability.Tracer) *Server {
	app := fiber.New(fiber.Config{
		ServerHeader:          "inspectpack",
		AppName:               "inspectpackd " + Version,
		BodyLimit:             cfg.Server.BodyLimit,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		DisableStartupMessage: !cfg.Debug,
		ErrorHandler:          customErrorHandler,
	})

	s := &Server{
		app:       app,
		config:    cfg,
		cache:     rc,
		metrics:   metrics,
		tracer:    tracer,
		startTime: time.Now(),
	}

	s.setupMiddlewares()
	s.setupRoutes()

	return s
}

// setupMiddlewares sets up global middlewares
func (s *Server) setupMiddlewares() {
	// Request ID middleware - must be first for tracing
	s.app.Use(requestid.New())

	if s.tracer != nil && s.tracer.IsEnabled() {
		log.Debug().Msg("Adding OpenTelemetry tracing middleware")
		s.app.Use(middleware.TracingMiddleware(middleware.TracingConfig{
			Enabled:   true,
			SkipPaths: []string{"/health", "/metrics"},
		}))
	}

	if s.metrics != nil {
		s.app.Use(s.metrics.MetricsMiddleware())
	}

	s.app.Use(middleware.RequestLogger(middleware.DefaultRequestLoggerConfig()))

	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: s.config.Debug,
	}))
}

// setupRoutes sets up all routes
func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)
	if s.metrics != nil {
		s.app.Get("/metrics", s.metrics.Handler())
	}

	v1 := s.app.Group("/api/v1")
	if rl := s.config.Server.RateLimit; rl.Max > 0 {
		v1.Post("/analyze/:kind", middleware.AnalyzeLimiter(rl.Max, rl.Window), s.handleAnalyze)
	} else {
		v1.Post("/analyze/:kind", s.handleAnalyze)
	}
	v1.Get("/cache/stats", s.handleCacheStats)
	v1.Post("/cache/compact", s.handleCacheCompact)

	s.app.Use(func(c *fiber.Ctx) error {
		return SendErrorWithCode(c, fiber.StatusNotFound, "Route not found", "NOT_FOUND")
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.app.Listen(s.config.Server.Address)
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// App returns the underlying Fiber app instance for testing
func (s *Server) App() *fiber.App {
	return s.app
}
