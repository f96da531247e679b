// handlers/routes.go
package handlers

import (
	"errors"

	"nomad-gis/middleware"
	"nomad-gis/models"
	"nomad-gis/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Services struct {
	Unlock      *services.UnlockOrchestrator
	Social      *services.SocialEventOrchestrator
	Progression *services.ProgressionService
	Leaderboard *services.LeaderboardService
	Catalog     *services.CatalogService
	Stats       *services.StatsService
}

// Setup mounts every route group. All routes need a user context; /admin
// additionally needs the Admin role.
func Setup(app *fiber.App, svc Services, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	secured := app.Group("/", middleware.UserContextMiddleware())
	admin := secured.Group("/admin", middleware.RequireRole(models.RoleAdmin))

	SetupGameRoutes(secured, svc.Unlock, log)
	SetupMessageRoutes(secured, admin, svc.Social, log)
	SetupLeaderboardRoutes(secured, svc.Leaderboard, log)
	SetupProgressionRoutes(secured, admin, svc.Progression, svc.Stats, log)
	SetupCatalogRoutes(secured, admin, svc.Catalog, log)
}

// respondError maps service errors onto HTTP statuses. Unexpected errors are
// logged and hidden behind a generic 500 body.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		status = fiber.StatusBadRequest
	case errors.Is(err, services.ErrForbidden):
		status = fiber.StatusForbidden
	case errors.Is(err, services.ErrConflict):
		status = fiber.StatusConflict
	}

	if status == fiber.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("user_id", middleware.UserID(c)),
			zap.Error(err),
		)
		return c.Status(status).JSON(fiber.Map{"error": "internal server error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func badRequest(c *fiber.Ctx, msg string, err error) error {
	body := fiber.Map{"error": msg}
	if err != nil {
		body["cause"] = err.Error()
	}
	return c.Status(fiber.StatusBadRequest).JSON(body)
}
