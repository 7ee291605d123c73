package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-arena/internal/game"
	"github.com/noah-isme/gema-arena/internal/handler"
)

type stubSubscriber struct {
	subscribed int
}

func (s *stubSubscriber) Subscribe(string, string) (<-chan game.Event, func()) {
	s.subscribed++
	ch := make(chan game.Event)
	return ch, func() {}
}

func TestSessionStreamHandler_RequiresOwnedConnection(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	registry := game.NewRegistry(game.RegistryConfig{}, game.Dependencies{Problems: staticProblems{}, Logger: zerolog.Nop()}, validate)
	ctx := context.Background()
	sessionID, err := registry.CreateSession(ctx, "alice", game.DefaultSessionConfig())
	require.NoError(t, err)
	conn, err := registry.Join(ctx, sessionID, "alice", "", "Alice")
	require.NoError(t, err)

	events := &stubSubscriber{}
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if user := c.Get("X-User"); user != "" {
			c.Locals("user_id", user)
		}
		return c.Next()
	})
	handler.NewSessionStreamHandler(registry, events, validate, zerolog.Nop(), time.Second).Register(app.Group("/api/v2/arena"))

	get := func(target, user string) int {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		if user != "" {
			req.Header.Set("X-User", user)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	base := "/api/v2/arena/sessions/" + sessionID
	require.Equal(t, fiber.StatusUnauthorized, get(base+"/events?connection_id="+string(conn), ""))
	require.Equal(t, fiber.StatusBadRequest, get(base+"/events", "alice"))
	require.Equal(t, fiber.StatusNotFound, get(base+"/events?connection_id="+string(conn), "mallory"))
	require.Equal(t, fiber.StatusUpgradeRequired, get(base+"/ws?connection_id="+string(conn), "alice"))
	require.Zero(t, events.subscribed)
}
