package handlers

import (
	"nomad-gis/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func SetupLeaderboardRoutes(secured fiber.Router, lb *services.LeaderboardService, log *zap.Logger) {
	secured.Get("/leaderboard/:board", func(c *fiber.Ctx) error {
		entries, err := lb.Top(c.UserContext(), c.Params("board"))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(fiber.Map{
			"board":   c.Params("board"),
			"entries": entries,
		})
	})
}
