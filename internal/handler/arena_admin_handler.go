package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-arena/internal/dto"
	"github.com/noah-isme/gema-arena/internal/service"
	"github.com/noah-isme/gema-arena/internal/utils"
)

// ArenaAdminHandler manages the problem pool and exposes the anti-cheat audit trail.
type ArenaAdminHandler struct {
	problems  service.ProblemService
	audit     service.AuditService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewArenaAdminHandler constructs the handler.
func NewArenaAdminHandler(problems service.ProblemService, audit service.AuditService, validate *validator.Validate, logger zerolog.Logger) *ArenaAdminHandler {
	return &ArenaAdminHandler{
		problems:  problems,
		audit:     audit,
		validator: validate,
		logger:    logger.With().Str("component", "arena_admin_handler").Logger(),
	}
}

// Register binds the admin routes. Callers are expected to guard the router with RequireRole.
func (h *ArenaAdminHandler) Register(router fiber.Router) {
	router.Post("/problems", h.createProblem)
	router.Get("/problems", h.listProblems)
	router.Get("/security-events", h.listSecurityEvents)
}

func (h *ArenaAdminHandler) createProblem(c *fiber.Ctx) error {
	var payload dto.ProblemCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	problem, err := h.problems.Create(requestContext(c), payload)
	if err != nil {
		return sendDomainError(c, h.logger, err)
	}

	requestLogger(h.logger, c).Info().Str("problem_id", problem.ID).Msg("problem added to pool")
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "problem created", problem)
}

func (h *ArenaAdminHandler) listProblems(c *fiber.Ctx) error {
	var req dto.ProblemListRequest
	if err := c.QueryParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query")
	}

	problems, err := h.problems.List(requestContext(c), req)
	if err != nil {
		return sendDomainError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "problems", problems)
}

func (h *ArenaAdminHandler) listSecurityEvents(c *fiber.Ctx) error {
	var req dto.SecurityEventListRequest
	if err := c.QueryParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query")
	}

	events, err := h.audit.List(requestContext(c), req)
	if err != nil {
		return sendDomainError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "security events", events)
}
