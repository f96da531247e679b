// handlers/game.go
package handlers

import (
	"nomad-gis/middleware"
	"nomad-gis/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type checkLocationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func SetupGameRoutes(secured fiber.Router, unlock *services.UnlockOrchestrator, log *zap.Logger) {
	secured.Post("/game/check-location", func(c *fiber.Ctx) error {
		var req checkLocationRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		if req.Latitude == nil || req.Longitude == nil {
			return badRequest(c, "latitude and longitude are required", nil)
		}

		out, err := unlock.CheckAndUnlock(c.UserContext(), middleware.UserID(c), *req.Latitude, *req.Longitude)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(out)
	})
}
