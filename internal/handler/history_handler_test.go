package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-arena/internal/dto"
	"github.com/noah-isme/gema-arena/internal/game"
	"github.com/noah-isme/gema-arena/internal/handler"
	"github.com/noah-isme/gema-arena/internal/service"
)

type stubArchive struct {
	records  map[string]dto.GameRecordResponse
	lastUser string
	lastPage int
}

func (s *stubArchive) Archive(context.Context, game.Snapshot) error { return nil }

func (s *stubArchive) Get(_ context.Context, id string) (dto.GameRecordResponse, error) {
	record, ok := s.records[id]
	if !ok {
		return dto.GameRecordResponse{}, service.ErrGameRecordNotFound
	}
	return record, nil
}

func (s *stubArchive) History(_ context.Context, userID string, page, pageSize int) (dto.GameHistoryResponse, error) {
	s.lastUser = userID
	s.lastPage = page
	return dto.GameHistoryResponse{Pagination: dto.NewPaginationMeta(page, pageSize, 0)}, nil
}

func newHistoryApp(archive *stubArchive) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if user := c.Get("X-User"); user != "" {
			c.Locals("user_id", user)
		}
		if role := c.Get("X-Role"); role != "" {
			c.Locals("user_role", role)
		}
		return c.Next()
	})
	handler.NewHistoryHandler(archive, zerolog.Nop()).Register(app.Group("/api/v2/arena"))
	return app
}

func TestHistoryHandler_ScopesToCaller(t *testing.T) {
	archive := &stubArchive{records: map[string]dto.GameRecordResponse{
		"g-1": {ID: "g-1", State: "completed", Participants: []dto.GameParticipantResponse{{UserID: "alice"}, {UserID: "bob"}}},
	}}
	app := newHistoryApp(archive)

	get := func(target, user, role string) int {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("X-User", user)
		if role != "" {
			req.Header.Set("X-Role", role)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	require.Equal(t, fiber.StatusOK, get("/api/v2/arena/history?page=3", "alice", ""))
	require.Equal(t, "alice", archive.lastUser)
	require.Equal(t, 3, archive.lastPage)

	require.Equal(t, fiber.StatusOK, get("/api/v2/arena/games/g-1", "bob", ""))
	require.Equal(t, fiber.StatusNotFound, get("/api/v2/arena/games/g-1", "mallory", ""))
	require.Equal(t, fiber.StatusOK, get("/api/v2/arena/games/g-1", "mallory", "admin"))
	require.Equal(t, fiber.StatusOK, get("/api/v2/arena/games/g-1", "mallory", "mod"))
	require.Equal(t, fiber.StatusNotFound, get("/api/v2/arena/games/g-1", "mallory", "student"))
	require.Equal(t, fiber.StatusNotFound, get("/api/v2/arena/games/g-2", "alice", ""))
	require.Equal(t, fiber.StatusBadRequest, get("/api/v2/arena/history?page=x", "alice", ""))
}
