package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-arena/internal/dto"
	"github.com/noah-isme/gema-arena/internal/game"
	"github.com/noah-isme/gema-arena/internal/middleware"
	"github.com/noah-isme/gema-arena/internal/service"
	"github.com/noah-isme/gema-arena/internal/utils"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}

func userIDFromContext(c *fiber.Ctx) string {
	if id, ok := c.Locals("user_id").(string); ok {
		return strings.TrimSpace(id)
	}
	return ""
}

func userNameFromContext(c *fiber.Ctx) string {
	if name, ok := c.Locals("user_name").(string); ok {
		return name
	}
	return ""
}

func requestContext(c *fiber.Ctx) context.Context {
	if ctx := c.UserContext(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.CorrelationIDFrom(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{game.ErrSessionNotFound, fiber.StatusNotFound, "session_not_found"},
	{game.ErrPlayerNotFound, fiber.StatusNotFound, "player_not_found"},
	{service.ErrGameRecordNotFound, fiber.StatusNotFound, "game_not_found"},
	{service.ErrProblemNotFound, fiber.StatusNotFound, "problem_not_found"},
	{game.ErrNotSessionCreator, fiber.StatusForbidden, "not_session_creator"},
	{game.ErrSubmissionRejected, fiber.StatusUnprocessableEntity, "submission_rejected"},
	{game.ErrInvalidConfig, fiber.StatusBadRequest, "invalid_config"},
	{game.ErrSessionFull, fiber.StatusConflict, "session_full"},
	{game.ErrSessionNotJoinable, fiber.StatusConflict, "session_not_joinable"},
	{game.ErrSessionClosed, fiber.StatusConflict, "session_closed"},
	{game.ErrSessionNotInProgress, fiber.StatusConflict, "session_not_in_progress"},
	{game.ErrSessionNotPaused, fiber.StatusConflict, "session_not_paused"},
	{game.ErrNoActiveRound, fiber.StatusConflict, "no_active_round"},
	{game.ErrDuplicateSubmission, fiber.StatusConflict, "duplicate_submission"},
	{game.ErrNotRoundParticipant, fiber.StatusConflict, "not_round_participant"},
	{game.ErrCannotStart, fiber.StatusConflict, "cannot_start"},
	{game.ErrSpectatorsDisabled, fiber.StatusConflict, "spectators_disabled"},
	{game.ErrSelfMatch, fiber.StatusConflict, "self_match"},
	{game.ErrStaleSession, fiber.StatusConflict, "session_conflict"},
	{game.ErrMaxRoundsReached, fiber.StatusConflict, "max_rounds_reached"},
	{game.ErrNoProblemsAvailable, fiber.StatusServiceUnavailable, "no_problems_available"},
}

// classifyError maps a domain error to its HTTP status and machine readable code.
func classifyError(err error) (int, string) {
	if isValidationError(err) {
		return fiber.StatusBadRequest, "validation_failed"
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return fiber.StatusInternalServerError, "internal_error"
}

// errorData returns the payload attached to an error response. Only rejected submissions carry one.
func errorData(err error) interface{} {
	var rejection *game.RejectionError
	if errors.As(err, &rejection) {
		return dto.NewSubmitSolutionResponse(rejection.Verdict)
	}
	return nil
}

func sendDomainError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	status, code := classifyError(err)
	if status >= fiber.StatusInternalServerError {
		requestLogger(logger, c).Error().Err(err).Str("path", c.Path()).Msg("arena request failed")
		return utils.SendErrorCode(c, status, code, "internal server error")
	}
	return utils.SendErrorData(c, status, code, err.Error(), errorData(err))
}
