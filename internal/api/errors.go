package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/cranesandcaff/inspectpack/internal/bundle"
	"github.com/cranesandcaff/inspectpack/internal/cache/store"
	"github.com/cranesandcaff/inspectpack/internal/engine"
)

// getRequestID extracts the request ID from the Fiber context.
// It first checks the requestid middleware local, then falls back to the X-Request-ID header.
func getRequestID(c *fiber.Ctx) string {
	if requestID, ok := c.Locals("requestid").(string); ok && requestID != "" {
		return requestID
	}
	return c.Get(fiber.HeaderXRequestID, "")
}

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error     string      `json:"error"`
	Code      string      `json:"code,omitempty"`
	Message   string      `json:"message,omitempty"`
	Details   interface{} `json:"details,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// SendErrorWithCode sends a standardized error response with error code and request ID
func SendErrorWithCode(c *fiber.Ctx, statusCode int, errMsg string, code string) error {
	return c.Status(statusCode).JSON(ErrorResponse{
		Error:     errMsg,
		Code:      code,
		RequestID: getRequestID(c),
	})
}

// SendErrorWithDetails sends a detailed error response with request ID
func SendErrorWithDetails(c *fiber.Ctx, statusCode int, errMsg string, code string, message string, details interface{}) error {
	return c.Status(statusCode).JSON(ErrorResponse{
		Error:     errMsg,
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: getRequestID(c),
	})
}

// handleAnalysisError maps analysis failures to HTTP responses.
// Parse errors are the caller's input (422), option errors the caller's request (400),
// store errors the daemon's storage (503).
func handleAnalysisError(c *fiber.Ctx, err error) error {
	var (
		perr *bundle.ParseError
		oerr *engine.OptionError
		serr *store.StoreError
	)

	switch {
	case errors.As(err, &perr):
		details := fiber.Map{"offset": perr.Offset}
		if perr.Path != "" {
			details["path"] = perr.Path
		}
		if perr.Fragment != "" {
			details["fragment"] = perr.Fragment
		}
		return SendErrorWithDetails(c, fiber.StatusUnprocessableEntity, "Bundle could not be parsed", "PARSE_ERROR", perr.Reason, details)

	case errors.As(err, &oerr):
		return SendErrorWithDetails(c, fiber.StatusBadRequest, "Invalid analysis option", "OPTION_ERROR", oerr.Reason, fiber.Map{"option": oerr.Option})

	case errors.As(err, &serr):
		log.Error().Err(err).Str("request_id", getRequestID(c)).Msg("Result cache store failed")
		return SendErrorWithCode(c, fiber.StatusServiceUnavailable, "Result cache is unavailable", "STORE_ERROR")

	case errors.Is(err, context.DeadlineExceeded):
		return SendErrorWithCode(c, fiber.StatusGatewayTimeout, "Analysis did not finish in time", "ANALYSIS_TIMEOUT")

	default:
		log.Error().Err(err).Str("request_id", getRequestID(c)).Msg("Analysis failed")
		return SendErrorWithCode(c, fiber.StatusInternalServerError, "Analysis failed", "INTERNAL_ERROR")
	}
}

// customErrorHandler handles errors globally
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	if code >= 500 {
		log.Error().Err(err).Str("path", c.Path()).Msg("Server error")
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:     message,
		RequestID: getRequestID(c),
	})
}
