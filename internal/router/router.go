package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-arena/internal/config"
	"github.com/noah-isme/gema-arena/internal/handler"
	"github.com/noah-isme/gema-arena/internal/middleware"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ArenaHandler   *handler.ArenaHandler
	StreamHandler  *handler.SessionStreamHandler
	HistoryHandler *handler.HistoryHandler
	AdminHandler   *handler.ArenaAdminHandler
	SeedHandler    *handler.SeedHandler
	Sessions       handler.SessionCounter
	JWTMiddleware  fiber.Handler
	SubmitLimiter  fiber.Handler
	MetricsHandler fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Sessions))
	if deps.SeedHandler != nil {
		deps.SeedHandler.Register(api.Group("/seed"))
	}

	if deps.MetricsHandler != nil {
		app.Get("/metrics", deps.MetricsHandler)
	}

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	arena := app.Group(middleware.ArenaPrefix, jwtMiddleware)

	if deps.SubmitLimiter != nil {
		arena.Post("/sessions/:id/submit", deps.SubmitLimiter)
	}
	if deps.ArenaHandler != nil {
		deps.ArenaHandler.Register(arena)
	}
	if deps.StreamHandler != nil {
		deps.StreamHandler.Register(arena)
	}
	if deps.HistoryHandler != nil {
		deps.HistoryHandler.Register(arena)
	}
	if deps.AdminHandler != nil {
		admin := arena.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))
		deps.AdminHandler.Register(admin)
	}
}
