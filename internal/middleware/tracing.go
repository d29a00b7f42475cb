// Package middleware holds the Fiber middlewares of the analysis daemon.
package middleware

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const traceContextKey = "trace_ctx"

// TracingConfig holds configuration for the tracing middleware
type TracingConfig struct {
	Enabled bool

	// SkipPaths are not traced (e.g., /health, /metrics)
	SkipPaths []string
}

// TracingMiddleware starts a server span per request and stores its context in the Fiber locals
func TracingMiddleware(cfg TracingConfig) fiber.Handler {
	if !cfg.Enabled {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	tracer := otel.Tracer("inspectpack-http")

	skipPaths := make(map[string]bool, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *fiber.Ctx) error {
		path := c.Path()
		if skipPaths[path] {
			return c.Next()
		}

		ctx := otel.GetTextMapPropagator().Extract(
			c.UserContext(),
			propagation.HeaderCarrier(c.GetReqHeaders()),
		)

		spanName := c.Route().Path
		if spanName == "" {
			spanName = path
		}

		ctx, span := tracer.Start(ctx, fmt.Sprintf("%s %s", c.Method(), spanName),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethod(c.Method()),
				semconv.HTTPRoute(c.Route().Path),
				semconv.HTTPScheme(c.Protocol()),
				attribute.String("http.request_id", requestID(c)),
				attribute.Int("http.request_size", len(c.Body())),
			),
		)
		defer span.End()

		c.Locals(traceContextKey, ctx)
		if span.SpanContext().HasTraceID() {
			c.Set("X-Trace-ID", span.SpanContext().TraceID().String())
		}

		err := c.Next()

		status := c.Response().StatusCode()
		span.SetAttributes(
			semconv.HTTPStatusCode(status),
			attribute.Int("http.response_size", len(c.Response().Body())),
		)
		if status >= 400 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		return err
	}
}

// TraceContext returns the request's span context, falling back to the Fiber user context
func TraceContext(c *fiber.Ctx) context.Context {
	if ctx, ok := c.Locals(traceContextKey).(context.Context); ok {
		return ctx
	}
	return c.UserContext()
}

// GetTraceID returns the trace ID of the request span, or ""
func GetTraceID(c *fiber.Ctx) string {
	sc := trace.SpanContextFromContext(TraceContext(c))
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}
