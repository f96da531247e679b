// handlers/progression_routes.go
package handlers

import (
	"nomad-gis/middleware"
	"nomad-gis/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type grantXPRequest struct {
	UserID string `json:"user_id"`
	XP     int64  `json:"xp"`
	Reason string `json:"reason"`
}

func SetupProgressionRoutes(secured, admin fiber.Router, progression *services.ProgressionService, stats *services.StatsService, log *zap.Logger) {
	secured.Get("/user/progress", func(c *fiber.Ctx) error {
		view, err := progression.GetProgress(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(view)
	})

	admin.Post("/xp/grant", func(c *fiber.Ctx) error {
		var req grantXPRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		if req.UserID == "" {
			return badRequest(c, "user_id is required", nil)
		}
		if len(req.Reason) > 255 {
			return badRequest(c, "reason must be at most 255 characters", nil)
		}

		user, lvl, err := progression.GrantExperience(c.UserContext(), req.UserID, req.XP, req.Reason)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(fiber.Map{
			"message":       "XP granted successfully",
			"user":          user,
			"xp":            req.XP,
			"leveled_up":    lvl.LeveledUp,
			"levels_gained": lvl.LevelsGained,
		})
	})

	admin.Get("/stats", func(c *fiber.Ctx) error {
		st, err := stats.Collect(c.UserContext())
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(st)
	})
}
