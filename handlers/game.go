// handlers/game_routes.go
package handlers

import (
	"game-results-system/middleware"
	"game-results-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupGameRoutes(app *fiber.App, gameService *services.GameService) {
	// 🔓 Public routes — no user context, but still behind Gateway auth
	app.Get("/games/:id", gameService.GetGame)
	app.Get("/games/:id/standings", func(c *fiber.Ctx) error {
		standings, err := gameService.StandingsPreview(c.Params("id"))
		if err != nil {
			return respondError(c, err, "failed to compute standings")
		}
		return c.JSON(fiber.Map{"standings": standings})
	})
	app.Get("/users/search", gameService.SearchUsers)

	// 🔐 Secured routes — require user context (userID, roles) from Gateway
	secured := app.Group("/s", middleware.UserContextMiddleware())

	secured.Post("/games", gameService.CreateGame)
	secured.Put("/games/:id/rounds", gameService.SaveRound)
}

// respondError maps fiber.NewError codes through and hides everything else
// behind a 500 with the given message.
func respondError(c *fiber.Ctx, err error, fallback string) error {
	if fe, ok := err.(*fiber.Error); ok {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	return c.Status(500).JSON(fiber.Map{"error": fallback, "cause": err.Error()})
}
