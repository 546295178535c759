// handlers/catalog_routes.go
package handlers

import (
	"errors"
	"fmt"
	"path/filepath"

	"taskflow-progression/middleware"
	"taskflow-progression/models"
	"taskflow-progression/services"
	"taskflow-progression/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

// SetupCatalogRoutes serves the achievement catalog and its admin tooling.
// The catalog is read-only at runtime for everything except these admin
// endpoints; any mutation invalidates the in-process cache.
func SetupCatalogRoutes(app *fiber.App, db *gorm.DB, progressionService *services.ProgressionService) {
	app.Get("/achievements/catalog", func(c *fiber.Ctx) error {
		catalog, err := progressionService.Catalog(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load catalog",
				"cause": err.Error(),
			})
		}
		return c.JSON(catalog)
	})

	adminGroup := app.Group("/s/admin/achievements", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	adminGroup.Post("/", func(c *fiber.Ctx) error {
		var req struct {
			Name         string                     `json:"name" validate:"required,max=100"`
			Description  string                     `json:"description" validate:"max=500"`
			Category     models.AchievementCategory `json:"category" validate:"required,oneof=tasks pomodoro dsa streak points level"`
			Requirement  int64                      `json:"requirement" validate:"required,min=1"`
			PointsReward int64                      `json:"points_reward" validate:"min=0"`
			Rarity       string                     `json:"rarity" validate:"omitempty,oneof=common rare epic legendary"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}
		if err := utils.ValidateStruct(req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid achievement",
				"cause": err.Error(),
			})
		}
		if req.Rarity == "" {
			req.Rarity = "common"
		}

		ach := models.Achievement{
			ID:           uuid.NewString(),
			Code:         slug.Make(req.Name),
			Name:         cases.Title(language.English).String(req.Name),
			Description:  req.Description,
			Category:     req.Category,
			Requirement:  req.Requirement,
			PointsReward: req.PointsReward,
			Rarity:       req.Rarity,
		}
		if err := db.Create(&ach).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{
					"error": "an achievement with this code already exists",
					"code":  ach.Code,
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to create achievement",
				"cause": err.Error(),
			})
		}

		progressionService.InvalidateCatalog()
		return c.Status(fiber.StatusCreated).JSON(ach)
	})

	adminGroup.Post("/:id/icon", func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid achievement ID"})
		}

		var ach models.Achievement
		if err := db.First(&ach, "id = ?", id).Error; err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "achievement not found"})
		}

		fileHeader, err := c.FormFile("icon")
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "icon file is required"})
		}

		key := fmt.Sprintf("achievement-icons/%s%s", ach.Code, filepath.Ext(fileHeader.Filename))
		url, err := utils.UploadIconToR2(fileHeader, key)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to upload icon",
				"cause": err.Error(),
			})
		}

		ach.IconURL = url
		if err := db.Save(&ach).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to store icon URL",
				"cause": err.Error(),
			})
		}

		progressionService.InvalidateCatalog()
		return c.JSON(fiber.Map{"icon_url": url})
	})
}
