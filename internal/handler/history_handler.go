package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-arena/internal/dto"
	"github.com/noah-isme/gema-arena/internal/middleware"
	"github.com/noah-isme/gema-arena/internal/service"
	"github.com/noah-isme/gema-arena/internal/utils"
)

// HistoryHandler serves archived games.
type HistoryHandler struct {
	archive service.ArchiveService
	logger  zerolog.Logger
}

// NewHistoryHandler constructs the handler.
func NewHistoryHandler(archive service.ArchiveService, logger zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{
		archive: archive,
		logger:  logger.With().Str("component", "history_handler").Logger(),
	}
}

// Register binds the history routes.
func (h *HistoryHandler) Register(router fiber.Router) {
	router.Get("/history", h.mine)
	router.Get("/games/:id", h.game)
}

func (h *HistoryHandler) mine(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page_size")
	}

	history, err := h.archive.History(requestContext(c), userID, page, pageSize)
	if err != nil {
		return sendDomainError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "game history", history)
}

func (h *HistoryHandler) game(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	record, err := h.archive.Get(requestContext(c), c.Params("id"))
	if err != nil {
		return sendDomainError(c, h.logger, err)
	}
	if !participated(record, userID) && !canModerate(c) {
		return sendDomainError(c, h.logger, service.ErrGameRecordNotFound)
	}
	return utils.SendSuccess(c, "game record", record)
}

func participated(record dto.GameRecordResponse, userID string) bool {
	for _, p := range record.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// canModerate reports whether the caller may read games they did not play.
func canModerate(c *fiber.Ctx) bool {
	role, _ := c.Locals("user_role").(string)
	switch middleware.CanonicalRole(role) {
	case middleware.RoleAdmin, middleware.RoleModerator:
		return true
	}
	return false
}

