package handlers

import (
	"mime/multipart"
	"strconv"
	"strings"

	"nomad-gis/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func SetupCatalogRoutes(secured, admin fiber.Router, catalog *services.CatalogService, log *zap.Logger) {
	secured.Get("/points", func(c *fiber.Ctx) error {
		points, err := catalog.ListMapPoints(c.UserContext())
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(points)
	})

	secured.Get("/achievements", func(c *fiber.Ctx) error {
		list, err := catalog.ListAchievements(c.UserContext())
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(list)
	})

	admin.Post("/points", func(c *fiber.Ctx) error {
		var in services.CreateMapPointInput
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		p, err := catalog.CreateMapPoint(c.UserContext(), in)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.Status(fiber.StatusCreated).JSON(p)
	})

	// multipart: code, title, description, reward_points, badge (optional file)
	admin.Post("/achievements", func(c *fiber.Ctx) error {
		var reward int64
		if raw := strings.TrimSpace(c.FormValue("reward_points")); raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return badRequest(c, "reward_points must be an integer", err)
			}
			reward = v
		}

		var badge *multipart.FileHeader
		if fh, err := c.FormFile("badge"); err == nil {
			badge = fh
		}

		a, err := catalog.CreateAchievement(c.UserContext(), services.CreateAchievementInput{
			Code:         c.FormValue("code"),
			Title:        c.FormValue("title"),
			Description:  c.FormValue("description"),
			RewardPoints: reward,
			Badge:        badge,
		})
		if err != nil {
			return respondError(c, log, err)
		}
		return c.Status(fiber.StatusCreated).JSON(a)
	})

	admin.Delete("/achievements/:id", func(c *fiber.Ctx) error {
		if err := catalog.DeleteAchievement(c.UserContext(), c.Params("id")); err != nil {
			return respondError(c, log, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
