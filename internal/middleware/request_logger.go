package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RequestLoggerConfig holds configuration for request logging
type RequestLoggerConfig struct {
	// SkipPaths are not logged (e.g., health checks)
	SkipPaths []string
	// Logger defaults to the global logger
	Logger *zerolog.Logger
	// SlowRequestThreshold logs slower requests at warn level (0 = disabled)
	SlowRequestThreshold time.Duration
}

// DefaultRequestLoggerConfig returns default configuration
func DefaultRequestLoggerConfig() RequestLoggerConfig {
	return RequestLoggerConfig{
		SkipPaths:            []string{"/health", "/metrics"},
		SlowRequestThreshold: 5 * time.Second,
	}
}

// RequestLogger logs one structured line per request
func RequestLogger(cfg RequestLoggerConfig) fiber.Handler {
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	return func(c *fiber.Ctx) error {
		path := c.Path()
		if skip[path] {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		duration := time.Since(start)
		status := c.Response().StatusCode()

		var event *zerolog.Event
		switch {
		case err != nil:
			event = logger.Error().Err(err)
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		case cfg.SlowRequestThreshold > 0 && duration > cfg.SlowRequestThreshold:
			event = logger.Warn().Bool("slow_request", true)
		default:
			event = logger.Info()
		}

		event.
			Str("request_id", requestID(c)).
			Str("method", c.Method()).
			Str("path", path).
			Int("status", status).
			Int64("duration_ms", duration.Milliseconds()).
			Int("request_bytes", len(c.Body())).
			Int("response_bytes", len(c.Response().Body())).
			Msg("HTTP request")

		return err
	}
}

// requestID reads the id set by the requestid middleware, then the X-Request-ID header
func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok && id != "" {
		return id
	}
	return c.Get(fiber.HeaderXRequestID)
}
