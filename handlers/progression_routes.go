// handlers/progression_routes.go
package handlers

import (
	"errors"
	"strconv"
	"time"

	"taskflow-progression/middleware"
	"taskflow-progression/models"
	"taskflow-progression/services"
	"taskflow-progression/storage"
	"taskflow-progression/utils"

	"github.com/gofiber/fiber/v2"
)

func SetupProgressionRoutes(app *fiber.App, progressionService *services.ProgressionService, leaderboard *services.LeaderboardService) {
	// Collaborator entry point: the task/pomodoro/DSA services post award
	// events here. Gateway token auth is global; no user context is needed
	// because the event carries the user id.
	app.Post("/internal/events/award", func(c *fiber.Ctx) error {
		var event models.AwardEvent
		if err := c.BodyParser(&event); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}
		if event.OccurredAt.IsZero() {
			event.OccurredAt = time.Now()
		}

		outcome, err := progressionService.AwardForEvent(c.Context(), event)
		switch {
		case errors.Is(err, services.ErrInvalidEvent):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid award event",
				"cause": err.Error(),
			})
		case errors.Is(err, services.ErrProgressionUnavailable):
			// The triggering action must still succeed; the caller proceeds
			// without points and logs for reconciliation.
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "progression temporarily unavailable",
			})
		case err != nil:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "award failed",
				"cause": err.Error(),
			})
		}

		status := fiber.StatusCreated
		if outcome.Duplicate {
			status = fiber.StatusOK
		}
		return c.Status(status).JSON(outcome)
	})

	securedGroup := app.Group("/", middleware.UserContextMiddleware())

	securedGroup.Get("/user/progress", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		prog, err := progressionService.Store.EnsureProgression(c.Context(), userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load progress",
				"cause": err.Error(),
			})
		}

		response := fiber.Map{
			"id":                       prog.ID,
			"points":                   prog.Points,
			"experience":               prog.Experience,
			"level":                    prog.Level,
			"level_name":               levelName(prog.Level),
			"total_tasks_completed":    prog.TotalTasksCompleted,
			"total_pomodoro_completed": prog.TotalPomodoroCompleted,
			"total_dsa_completed":      prog.TotalDSACompleted,
			"current_streak":           prog.CurrentStreak,
			"longest_streak":           prog.LongestStreak,
			"last_activity_date":       prog.LastActivityDate,
			"last_level_up_at":         prog.LastLevelUpAt,
		}

		if leaderboard != nil {
			if rank, err := leaderboard.RankOf(c.Context(), userID); err == nil && rank > 0 {
				response["leaderboard_rank"] = rank
			}
		}

		return c.JSON(response)
	})

	securedGroup.Get("/user/progress/transactions", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		page, _ := strconv.Atoi(c.Query("page", "1"))
		size, _ := strconv.Atoi(c.Query("size", "20"))

		txs, total, err := progressionService.Store.ListTransactions(c.Context(), userID, page, size)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load transactions",
				"cause": err.Error(),
			})
		}

		totalPages := (total + int64(size) - 1) / int64(size)
		return c.JSON(fiber.Map{
			"transactions": txs,
			"page":         page,
			"size":         size,
			"total_items":  total,
			"total_pages":  totalPages,
		})
	})

	securedGroup.Get("/user/progress/achievements", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		catalog, err := progressionService.Catalog(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load catalog",
				"cause": err.Error(),
			})
		}
		rows, err := progressionService.Store.ListUserAchievements(c.Context(), userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load achievements",
				"cause": err.Error(),
			})
		}

		progressByID := make(map[string]models.UserAchievement, len(rows))
		for _, ua := range rows {
			progressByID[ua.AchievementID] = ua
		}

		response := make([]fiber.Map, 0, len(catalog))
		for _, ach := range catalog {
			ua := progressByID[ach.ID]
			response = append(response, fiber.Map{
				"id":            ach.ID,
				"code":          ach.Code,
				"name":          ach.Name,
				"description":   ach.Description,
				"category":      ach.Category,
				"requirement":   ach.Requirement,
				"points_reward": ach.PointsReward,
				"rarity":        ach.Rarity,
				"icon_url":      ach.IconURL,
				"progress":      ua.Progress,
				"is_completed":  ua.IsCompleted,
				"unlocked_at":   ua.UnlockedAt,
			})
		}
		return c.JSON(response)
	})

	securedGroup.Get("/leaderboard", func(c *fiber.Ctx) error {
		if leaderboard == nil {
			return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
				"error": "leaderboard is not enabled",
			})
		}
		n, _ := strconv.ParseInt(c.Query("limit", "10"), 10, 64)
		entries, err := leaderboard.Top(c.Context(), n)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load leaderboard",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"entries": entries})
	})

	// Admin endpoints
	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	adminGroup.Post("/points/adjust", func(c *fiber.Ctx) error {
		type Req struct {
			UserID      string `json:"user_id" validate:"required"`
			Points      int64  `json:"points" validate:"required"`
			Description string `json:"description" validate:"max=255"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}
		if err := utils.ValidateStruct(req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid adjustment",
				"cause": err.Error(),
			})
		}

		outcome, err := progressionService.AwardForEvent(c.Context(), models.AwardEvent{
			UserID:      req.UserID,
			Type:        models.TransactionManualAdjustment,
			Points:      req.Points,
			OccurredAt:  time.Now(),
			Description: req.Description,
		})
		if err != nil {
			if errors.Is(err, services.ErrInvalidEvent) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "invalid adjustment",
					"cause": err.Error(),
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "adjustment failed",
				"cause": err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"message":         "points adjusted",
			"user_id":         req.UserID,
			"points_recorded": outcome.Transaction.Points, // may be clamped
			"new_total":       outcome.UpdatedStats.Points,
		})
	})

	adminGroup.Get("/ledger/:userId/check", func(c *fiber.Ctx) error {
		userID := c.Params("userId")
		consistent, err := progressionService.CheckLedgerConsistency(c.Context(), userID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "consistency check failed",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"user_id": userID, "consistent": consistent})
	})
}

func levelName(level int) string {
	switch {
	case level >= 50:
		return "Legend"
	case level >= 25:
		return "Diamond"
	case level >= 15:
		return "Platinum"
	case level >= 10:
		return "Gold"
	case level >= 5:
		return "Silver"
	default:
		return "Bronze"
	}
}
