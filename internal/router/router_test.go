package router_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-arena/internal/config"
	"github.com/noah-isme/gema-arena/internal/router"
)

type fixedCounter int

func (f fixedCounter) Len() int { return int(f) }

func TestRegisterHealthAndAuthGate(t *testing.T) {
	app := fiber.New()
	router.Register(app, config.Config{AppName: "GEMA Arena", AppEnv: "test"}, router.Dependencies{
		Sessions: fixedCounter(3),
		JWTMiddleware: func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusUnauthorized)
		},
		MetricsHandler: func(c *fiber.Ctx) error { return c.SendString("# metrics") },
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "GEMA Arena", resp.Header.Get("X-Application"))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/arena/sessions/abc", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
