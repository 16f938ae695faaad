// handlers/results_routes.go
package handlers

import (
	"game-results-system/middleware"
	"game-results-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupResultsRoutes(app *fiber.App, resultsService *services.ResultsService) {
	// 🔓 Public reads
	app.Get("/games/:id/outcomes/:userId/explanation", func(c *fiber.Ctx) error {
		explanation, err := resultsService.GetOutcomeExplanation(c.Params("id"), c.Params("userId"))
		if err != nil {
			return respondError(c, err, "failed to build explanation")
		}
		if explanation == nil {
			return c.Status(404).JSON(fiber.Map{"error": "user did not take part in this game"})
		}
		return c.JSON(explanation)
	})

	// 🔐 Mutations require user context
	secured := app.Group("/s", middleware.UserContextMiddleware())

	secured.Post("/games/:id/results/recalculate", func(c *fiber.Ctx) error {
		view, err := resultsService.RecalculateOutcomes(c.Params("id"))
		if err != nil {
			return respondError(c, err, "failed to recalculate results")
		}
		return c.JSON(view)
	})

	secured.Post("/games/:id/results/edit", func(c *fiber.Ctx) error {
		if err := resultsService.EditResults(c.Params("id")); err != nil {
			return respondError(c, err, "failed to edit results")
		}
		return c.JSON(fiber.Map{"status": "IN_PROGRESS"})
	})

	secured.Post("/games/:id/results/reset", func(c *fiber.Ctx) error {
		if err := resultsService.ResetResults(c.Params("id")); err != nil {
			return respondError(c, err, "failed to reset results")
		}
		return c.JSON(fiber.Map{"status": "NONE"})
	})

	secured.Delete("/games/:id/results", func(c *fiber.Ctx) error {
		if err := resultsService.DeleteResults(c.Params("id")); err != nil {
			return respondError(c, err, "failed to delete results")
		}
		return c.JSON(fiber.Map{"status": "NONE"})
	})

	secured.Put("/games/:id/participants/:userId/level", func(c *fiber.Ctx) error {
		var body struct {
			Level       float64 `json:"level"`
			Reliability float64 `json:"reliability"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body", "cause": err.Error()})
		}
		if err := resultsService.SetParticipantLevel(c.Params("id"), c.Params("userId"), body.Level, body.Reliability); err != nil {
			return respondError(c, err, "failed to set participant level")
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	secured.Post("/users/:id/reliability/recalculate", func(c *fiber.Ctx) error {
		reliability, err := resultsService.RecalculateUserReliability(c.Params("id"))
		if err != nil {
			return respondError(c, err, "failed to recalculate reliability")
		}
		return c.JSON(fiber.Map{"reliability": reliability})
	})
}
