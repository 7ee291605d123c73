package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-arena/internal/dto"
	"github.com/noah-isme/gema-arena/internal/handler"
	"github.com/noah-isme/gema-arena/internal/service"
)

type mockSeedService struct {
	err       error
	lastToken string
	lastItems []dto.ProblemCreateRequest
	affected  int64
}

func (m *mockSeedService) SeedProblems(_ context.Context, token string, items []dto.ProblemCreateRequest) (int64, error) {
	m.lastToken = token
	m.lastItems = items
	if m.err != nil {
		return 0, m.err
	}
	return m.affected, nil
}

func seedRequest(t *testing.T, app *fiber.App, token string) *http.Response {
	t.Helper()
	payload := map[string]interface{}{"items": []dto.ProblemCreateRequest{{Title: "Two Sum", Difficulty: "easy"}}}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/seed/problems", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Seed-Token", token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestSeedHandler_ProblemsSuccess(t *testing.T) {
	svc := &mockSeedService{affected: 1}
	app := fiber.New()
	handler.NewSeedHandler(svc, zerolog.New(io.Discard)).Register(app.Group("/api/v1/seed"))

	resp := seedRequest(t, app, "secret")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "secret", svc.lastToken)
	require.Len(t, svc.lastItems, 1)
	require.Equal(t, "Two Sum", svc.lastItems[0].Title)
}

func TestSeedHandler_ErrorMapping(t *testing.T) {
	cases := map[error]int{
		service.ErrSeedDisabled:     fiber.StatusForbidden,
		service.ErrSeedUnauthorized: fiber.StatusForbidden,
		errors.New("db down"):       fiber.StatusInternalServerError,
	}
	for seedErr, status := range cases {
		app := fiber.New()
		handler.NewSeedHandler(&mockSeedService{err: seedErr}, zerolog.New(io.Discard)).Register(app.Group("/api/v1/seed"))
		resp := seedRequest(t, app, "secret")
		require.Equal(t, status, resp.StatusCode, seedErr.Error())
	}
}
