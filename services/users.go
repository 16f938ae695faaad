// services/users.go
package services

import (
	"strconv"
	"strings"

	"game-results-system/models"
	"game-results-system/utils"

	"github.com/gofiber/fiber/v2"
)

// SearchUsers searches the local GameUser table by username or email.
func (s *GameService) SearchUsers(c *fiber.Ctx) error {
	query := c.Query("q", "")
	limitStr := c.Query("limit", "50")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 || limit > 100 {
		limit = 50
	}

	var users []models.GameUser
	db := s.DB.Model(&models.GameUser{}).Limit(limit)

	if query != "" {
		searchTerm := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
		db = db.Where(
			"LOWER(username) LIKE ? OR LOWER(email) LIKE ?",
			searchTerm, searchTerm,
		)
	}

	if err := db.Find(&users).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "search failed", "details": err.Error()})
	}

	type UserSummary struct {
		ID             string  `json:"id"`
		ExternalUserID string  `json:"external_user_id"`
		Username       string  `json:"username"`
		Email          string  `json:"email"`
		Level          float64 `json:"level"`
		LevelName      string  `json:"level_name"`
		Reliability    float64 `json:"reliability"`
		SocialLevel    float64 `json:"social_level"`
		GamesPlayed    int     `json:"games_played"`
	}

	res := make([]UserSummary, len(users))
	for i, u := range users {
		res[i] = UserSummary{
			ID:             u.ID,
			ExternalUserID: u.ExternalUserID,
			Username:       u.Username,
			Email:          u.Email,
			Level:          u.Level,
			LevelName:      utils.LevelName(u.Level),
			Reliability:    u.Reliability,
			SocialLevel:    u.SocialLevel,
			GamesPlayed:    u.GamesPlayed,
		}
	}

	return c.JSON(res)
}
