package handlers

import (
	"nomad-gis/middleware"
	"nomad-gis/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type postMessageRequest struct {
	MapPointID string `json:"map_point_id"`
	Content    string `json:"content"`
}

func SetupMessageRoutes(secured, admin fiber.Router, social *services.SocialEventOrchestrator, log *zap.Logger) {
	secured.Get("/messages/point/:pointId", func(c *fiber.Ctx) error {
		views, err := social.ListMessagesByPoint(c.UserContext(), c.Params("pointId"), middleware.UserID(c))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(views)
	})

	secured.Post("/messages", func(c *fiber.Ctx) error {
		var req postMessageRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		if req.MapPointID == "" {
			return badRequest(c, "map_point_id is required", nil)
		}

		out, err := social.PostMessage(c.UserContext(), middleware.UserID(c), req.MapPointID, req.Content)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.Status(fiber.StatusCreated).JSON(out)
	})

	secured.Delete("/messages/:id", func(c *fiber.Ctx) error {
		if err := social.DeleteMessage(c.UserContext(), c.Params("id"), middleware.UserID(c)); err != nil {
			return respondError(c, log, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	secured.Post("/messages/:id/like", func(c *fiber.Ctx) error {
		out, err := social.ToggleLike(c.UserContext(), c.Params("id"), middleware.UserID(c))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(out)
	})

	admin.Delete("/messages/:id", func(c *fiber.Ctx) error {
		if err := social.AdminDeleteMessage(c.UserContext(), c.Params("id")); err != nil {
			return respondError(c, log, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
