package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/memory/v2"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	Max        int                     // Maximum number of requests per window
	Expiration time.Duration           // Time window for the rate limit
	KeyFunc    func(*fiber.Ctx) string // Defaults to the client IP
	Message    string
}

// NewRateLimiter creates a rate limiter backed by in-process storage
func NewRateLimiter(config RateLimiterConfig) fiber.Handler {
	storage := memory.New(memory.Config{
		GCInterval: 10 * time.Minute,
	})

	if config.KeyFunc == nil {
		config.KeyFunc = func(c *fiber.Ctx) string {
			return c.IP()
		}
	}

	if config.Message == "" {
		config.Message = fmt.Sprintf("Rate limit exceeded. Maximum %d requests per %s allowed.",
			config.Max, config.Expiration.String())
	}

	return limiter.New(limiter.Config{
		Max:          config.Max,
		Expiration:   config.Expiration,
		KeyGenerator: config.KeyFunc,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Rate limit exceeded",
				"code":        "RATE_LIMITED",
				"message":     config.Message,
				"retry_after": int(config.Expiration.Seconds()),
				"request_id":  requestID(c),
			})
		},
		Storage: storage,
	})
}

// AnalyzeLimiter limits analysis requests per client IP
func AnalyzeLimiter(max int, window time.Duration) fiber.Handler {
	return NewRateLimiter(RateLimiterConfig{
		Max:        max,
		Expiration: window,
		KeyFunc: func(c *fiber.Ctx) string {
			return "analyze:" + c.IP()
		},
	})
}
