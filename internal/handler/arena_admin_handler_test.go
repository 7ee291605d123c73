package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-arena/internal/dto"
	"github.com/noah-isme/gema-arena/internal/game"
	"github.com/noah-isme/gema-arena/internal/handler"
	"github.com/noah-isme/gema-arena/internal/service"
)

type stubProblemService struct {
	created  dto.ProblemCreateRequest
	lastList dto.ProblemListRequest
	validate *validator.Validate
}

func (s *stubProblemService) RandomProblem(context.Context, string) (game.Problem, error) {
	return game.Problem{}, game.ErrNoProblemsAvailable
}

func (s *stubProblemService) Create(_ context.Context, payload dto.ProblemCreateRequest) (dto.ProblemResponse, error) {
	if err := s.validate.Struct(payload); err != nil {
		return dto.ProblemResponse{}, err
	}
	s.created = payload
	return dto.ProblemResponse{ID: "p-1", Title: payload.Title, Difficulty: payload.Difficulty}, nil
}

func (s *stubProblemService) List(_ context.Context, req dto.ProblemListRequest) (dto.ProblemListResponse, error) {
	s.lastList = req
	return dto.ProblemListResponse{Items: []dto.ProblemResponse{{ID: "p-1"}}, Pagination: dto.NewPaginationMeta(1, 20, 1)}, nil
}

func (s *stubProblemService) ReferenceSolution(context.Context, string) (string, error) {
	return "", service.ErrProblemNotFound
}

type stubAuditService struct {
	lastList dto.SecurityEventListRequest
}

func (s *stubAuditService) Record(context.Context, string, string, map[string]interface{}) {}

func (s *stubAuditService) List(_ context.Context, req dto.SecurityEventListRequest) (dto.SecurityEventListResponse, error) {
	s.lastList = req
	return dto.SecurityEventListResponse{Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, 0)}, nil
}

func (s *stubAuditService) Start(context.Context) {}

func (s *stubAuditService) Close() error { return nil }

func newAdminApp() (*fiber.App, *stubProblemService, *stubAuditService) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	problems := &stubProblemService{validate: validate}
	audit := &stubAuditService{}

	app := fiber.New()
	handler.NewArenaAdminHandler(problems, audit, validate, zerolog.Nop()).Register(app.Group("/api/v2/arena/admin"))
	return app, problems, audit
}

func TestArenaAdminHandler_CreateProblem(t *testing.T) {
	app, problems, _ := newAdminApp()

	body := `{"title":"Two Sum","description":"Find two numbers.","solution":"def two_sum(a, t): ...","difficulty":"easy"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v2/arena/admin/problems", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Equal(t, "Two Sum", problems.created.Title)

	var out envelope
	decodeResponse(t, resp, &out)
	require.NotContains(t, string(out.Data), "two_sum")

	req = httptest.NewRequest(http.MethodPost, "/api/v2/arena/admin/problems", strings.NewReader(`{"title":"x","difficulty":"extreme"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestArenaAdminHandler_ListsWithFilters(t *testing.T) {
	app, problems, audit := newAdminApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/arena/admin/problems?difficulty=hard&page=2&page_size=5", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "hard", problems.lastList.Difficulty)
	require.Equal(t, 2, problems.lastList.Page)
	require.Equal(t, 5, problems.lastList.PageSize)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/arena/admin/security-events?session_id=s-1&severity=critical", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "s-1", audit.lastList.SessionID)
	require.Equal(t, "critical", audit.lastList.Severity)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/arena/admin/problems?page=abc", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
