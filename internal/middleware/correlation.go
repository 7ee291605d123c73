package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	correlationHeader  = "X-Correlation-ID"
	correlationLocal   = "correlation_id"
	maxCorrelationSize = 128
)

// CorrelationID tags every request with an id taken from X-Correlation-ID or X-Request-ID, or a fresh uuid.
// The id is echoed back and a logger carrying it is attached to the user context for handlers and sessions.
func CorrelationID(logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := acceptCorrelation(c.Get(correlationHeader))
		if id == "" {
			id = acceptCorrelation(c.Get("X-Request-ID"))
		}
		if id == "" {
			id = uuid.NewString()
		}

		c.Locals(correlationLocal, id)
		c.Set(correlationHeader, id)

		ctx := c.UserContext()
		scoped := logger.With().Str("correlation_id", id).Logger()
		c.SetUserContext(scoped.WithContext(ctx))
		return c.Next()
	}
}

// CorrelationIDFrom returns the id assigned to the active request.
func CorrelationIDFrom(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	id, _ := c.Locals(correlationLocal).(string)
	return id
}

// LoggerFrom returns the request-scoped logger, or fallback when the context carries none.
func LoggerFrom(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return fallback
	}
	logger := zerolog.Ctx(ctx)
	if logger == nil || logger.GetLevel() == zerolog.Disabled {
		return fallback
	}
	return *logger
}

// acceptCorrelation drops ids that are oversized or carry characters unsafe for logs and headers.
func acceptCorrelation(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > maxCorrelationSize {
		return ""
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return ""
		}
	}
	return id
}
