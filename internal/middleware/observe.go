package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/permitcourse/course-backend/internal/httpx"
	"github.com/permitcourse/course-backend/internal/logger"
	"github.com/permitcourse/course-backend/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = observability.Tracer("github.com/permitcourse/course-backend/internal/middleware")

// Observe opens a server span per request, hands its context to handlers via
// UserContext, and writes one access log line when the handler returns.
func Observe(log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		ctx, span := tracer.Start(c.UserContext(), c.Method()+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Method()),
				attribute.String("url.path", c.Path()),
			),
		)
		defer span.End()
		c.SetUserContext(ctx)

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= fiber.StatusInternalServerError {
			span.SetStatus(codes.Error, "server error")
		}

		kv := []interface{}{
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"request_id", httpx.RequestID(c),
		}
		if traceID := observability.TraceID(ctx); traceID != "" {
			kv = append(kv, "trace_id", traceID)
		}
		if status >= fiber.StatusInternalServerError {
			log.Error("request failed", kv...)
		} else {
			log.Info("request", kv...)
		}
		return err
	}
}
