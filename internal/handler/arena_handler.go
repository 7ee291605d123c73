package handler

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-arena/internal/anticheat"
	"github.com/noah-isme/gema-arena/internal/dto"
	"github.com/noah-isme/gema-arena/internal/game"
	"github.com/noah-isme/gema-arena/internal/utils"
)

// SessionRegistry is the subset of *game.Registry used by the transport layer.
type SessionRegistry interface {
	Defaults() game.SessionConfig
	CreateSession(ctx context.Context, creatorID string, cfg game.SessionConfig) (string, error)
	Join(ctx context.Context, sessionID, userID string, conn game.ConnectionID, displayName string) (game.ConnectionID, error)
	Spectate(ctx context.Context, sessionID string, conn game.ConnectionID, userID, displayName string) (game.ConnectionID, error)
	Leave(ctx context.Context, sessionID string, conn game.ConnectionID) error
	Authorize(ctx context.Context, sessionID string, conn game.ConnectionID, userID string) error
	Start(ctx context.Context, sessionID, requesterID string) error
	Pause(ctx context.Context, sessionID, requesterID string) error
	Resume(ctx context.Context, sessionID, requesterID string) error
	Submit(ctx context.Context, sessionID string, conn game.ConnectionID, code, language string) (anticheat.Verdict, error)
	State(ctx context.Context, sessionID string) (game.View, error)
	FindMatch(ctx context.Context, req game.MatchRequest) (game.MatchResult, error)
	CancelMatch(userID string, conn game.ConnectionID) bool
}

// ArenaHandler exposes session lifecycle and matchmaking endpoints.
type ArenaHandler struct {
	registry  SessionRegistry
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewArenaHandler constructs the handler.
func NewArenaHandler(registry SessionRegistry, validate *validator.Validate, logger zerolog.Logger) *ArenaHandler {
	return &ArenaHandler{
		registry:  registry,
		validator: validate,
		logger:    logger.With().Str("component", "arena_handler").Logger(),
	}
}

// Register binds the arena routes.
func (h *ArenaHandler) Register(router fiber.Router) {
	router.Post("/sessions", h.create)
	router.Get("/sessions/:id", h.state)
	router.Post("/sessions/:id/join", h.join)
	router.Post("/sessions/:id/spectate", h.spectate)
	router.Post("/sessions/:id/leave", h.leave)
	router.Post("/sessions/:id/start", h.start)
	router.Post("/sessions/:id/pause", h.pause)
	router.Post("/sessions/:id/resume", h.resume)
	router.Post("/sessions/:id/submit", h.submit)
	router.Post("/matchmaking", h.findMatch)
	router.Delete("/matchmaking", h.cancelMatch)
}

func (h *ArenaHandler) create(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.CreateSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
		}
	}
	if err := h.validator.Struct(payload); err != nil {
		return sendDomainError(c, h.logger, err)
	}

	sessionID, err := h.registry.CreateSession(requestContext(c), userID, payload.Config(h.registry.Defaults()))
	if err != nil {
		return sendDomainError(c, h.logger, err)
	}

	requestLogger(h.logger, c).Info().Str("session_id", sessionID).Str("user_id", userID).Msg("session created")
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "session created", dto.CreateSessionResponse{SessionID: sessionID})
}

func (h *ArenaHandler) state(c *fiber.Ctx) error {
	view, err := h.registry.State(requestContext(c), c.Params("id"))
	if err != nil {
		return sendDomainError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "session state", view)
}

func (h *ArenaHandler) join(c *fiber.Ctx) error {
	return h.attach(c, false)
}

func (h *ArenaHandler) spectate(c *fiber.Ctx) error {
	return h.attach(c, true)
}

func (h *ArenaHandler) attach(c *fiber.Ctx, spectator bool) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.JoinSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
		}
	}
	if err := h.validator.Struct(payload); err != nil {
		return sendDomainError(c, h.logger, err)
	}

	name := strings.TrimSpace(payload.DisplayName)
	if name == "" {
		name = userNameFromContext(c)
	}
	sessionID := c.Params("id")
	conn := game.ConnectionID(strings.TrimSpace(payload.ConnectionID))

	var err error
	if spectator {
		conn, err = h.registry.Spectate(requestContext(c), sessionID, conn, userID, name)
	} else {
		conn, err = h.registry.Join(requestContext(c), sessionID, userID, conn, name)
	}
	if err != nil {
		return sendDomainError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "joined session", dto.JoinSessionResponse{SessionID: sessionID, ConnectionID: string(conn)})
}

func (h *ArenaHandler) leave(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.LeaveSessionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return sendDomainError(c, h.logger, err)
	}

	ctx := requestContext(c)
	sessionID := c.Params("id")
	conn := game.ConnectionID(payload.ConnectionID)
	if err := h.registry.Authorize(ctx, sessionID, conn, userID); err != nil {
		return sendDomainError(c, h.logger, err)
	}
	if err := h.registry.Leave(ctx, sessionID, conn); err != nil {
		return sendDomainError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "left session", nil)
}

func (h *ArenaHandler) start(c *fiber.Ctx) error {
	return h.creatorAction(c, "session started", h.registry.Start)
}

func (h *ArenaHandler) pause(c *fiber.Ctx) error {
	return h.creatorAction(c, "session paused", h.registry.Pause)
}

func (h *ArenaHandler) resume(c *fiber.Ctx) error {
	return h.creatorAction(c, "session resumed", h.registry.Resume)
}

func (h *ArenaHandler) creatorAction(c *fiber.Ctx, message string, action func(context.Context, string, string) error) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	ctx := requestContext(c)
	sessionID := c.Params("id")
	if err := action(ctx, sessionID, userID); err != nil {
		return sendDomainError(c, h.logger, err)
	}

	view, err := h.registry.State(ctx, sessionID)
	if err != nil {
		return sendDomainError(c, h.logger, err)
	}
	return utils.SendSuccess(c, message, view)
}

func (h *ArenaHandler) submit(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.SubmitSolutionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	payload.Language = strings.ToLower(strings.TrimSpace(payload.Language))
	if err := h.validator.Struct(payload); err != nil {
		return sendDomainError(c, h.logger, err)
	}

	ctx := requestContext(c)
	sessionID := c.Params("id")
	conn := game.ConnectionID(payload.ConnectionID)
	if err := h.registry.Authorize(ctx, sessionID, conn, userID); err != nil {
		return sendDomainError(c, h.logger, err)
	}

	verdict, err := h.registry.Submit(ctx, sessionID, conn, payload.Code, payload.Language)
	if err != nil {
		return sendDomainError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "submission received", dto.NewSubmitSolutionResponse(verdict))
}

func (h *ArenaHandler) findMatch(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.FindMatchRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return sendDomainError(c, h.logger, err)
	}

	name := strings.TrimSpace(payload.DisplayName)
	if name == "" {
		name = userNameFromContext(c)
	}
	if name == "" {
		name = userID
	}

	result, err := h.registry.FindMatch(requestContext(c), game.MatchRequest{
		UserID:       userID,
		ConnectionID: game.ConnectionID(payload.ConnectionID),
		DisplayName:  name,
		Mode:         strings.ToLower(strings.TrimSpace(payload.Mode)),
		Language:     strings.ToLower(strings.TrimSpace(payload.Language)),
	})
	if err != nil {
		return sendDomainError(c, h.logger, err)
	}

	if result.Matched {
		return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "match found", result)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "queued for matchmaking", result)
}

func (h *ArenaHandler) cancelMatch(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.CancelMatchRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
		}
	}
	if err := h.validator.Struct(payload); err != nil {
		return sendDomainError(c, h.logger, err)
	}

	removed := h.registry.CancelMatch(userID, game.ConnectionID(payload.ConnectionID))
	return utils.SendSuccess(c, "matchmaking cancelled", dto.CancelMatchResponse{Removed: removed})
}
