package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestCorrelationIDPropagates(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New()
	app.Use(CorrelationID(zerolog.New(&buf)))
	app.Get("/", func(c *fiber.Ctx) error {
		logger := LoggerFrom(c.UserContext(), zerolog.Nop())
		logger.Info().Msg("handled")
		return c.SendString(CorrelationIDFrom(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, "req-123", resp.Header.Get("X-Correlation-ID"))
	require.Contains(t, buf.String(), `"correlation_id":"req-123"`)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.Len(t, resp.Header.Get("X-Correlation-ID"), 36)
}

func TestCorrelationIDReplacesUnsafeValues(t *testing.T) {
	app := fiber.New()
	app.Use(CorrelationID(zerolog.Nop()))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(CorrelationIDFrom(c)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", strings.Repeat("a", maxCorrelationSize+1))
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Len(t, resp.Header.Get("X-Correlation-ID"), 36)

	require.Empty(t, acceptCorrelation("has space"))
	require.Equal(t, "abc-1", acceptCorrelation(" abc-1 "))
}

func TestLoggerFromFallsBack(t *testing.T) {
	var buf bytes.Buffer
	fallback := zerolog.New(&buf)
	logger := LoggerFrom(context.Background(), fallback)
	logger.Info().Msg("fallback")
	require.Contains(t, buf.String(), "fallback")
}
