package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/cranesandcaff/inspectpack/internal/cache"
	"github.com/cranesandcaff/inspectpack/internal/engine"
	"github.com/cranesandcaff/inspectpack/internal/middleware"
)

// handleAnalyze runs one analysis through the shared cache.
// The body is an engine.Request; the kind comes from the path.
func (s *Server) handleAnalyze(c *fiber.Ctx) error {
	kind, err := engine.ParseKind(utils.CopyString(c.Params("kind")))
	if err != nil {
		return handleAnalysisError(c, err)
	}

	var req engine.Request
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithDetails(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_BODY", err.Error(), nil)
	}
	if req.Options.Gzip && req.Options.GzipLevel == 0 {
		req.Options.GzipLevel = s.config.Analysis.GzipLevel
	}

	ctx := middleware.TraceContext(c)
	if s.config.Server.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Server.WriteTimeout)
		defer cancel()
	}

	result, err := s.cache.Analyze(ctx, kind, req)
	if err != nil {
		return handleAnalysisError(c, err)
	}
	return c.JSON(result)
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status  string      `json:"status"`
	Version string      `json:"version"`
	Uptime  string      `json:"uptime"`
	Cache   cache.Stats `json:"cache"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	s.metrics.UpdateUptime(s.startTime)
	return c.JSON(HealthResponse{
		Status:  "ok",
		Version: Version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
		Cache:   s.cache.Stats(),
	})
}

func (s *Server) handleCacheStats(c *fiber.Ctx) error {
	return c.JSON(s.cache.Stats())
}

func (s *Server) handleCacheCompact(c *fiber.Ctx) error {
	stats, err := s.cache.Compact(middleware.TraceContext(c))
	if errors.Is(err, cache.ErrCompactUnsupported) {
		return SendErrorWithCode(c, fiber.StatusConflict, "Cache store does not support compaction", "COMPACT_UNSUPPORTED")
	}
	if err != nil {
		return handleAnalysisError(c, err)
	}
	return c.JSON(stats)
}
