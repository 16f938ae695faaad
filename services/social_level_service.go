// services/social_level_service.go
package services

import (
	"log"
	"time"

	"game-results-system/models"

	"gorm.io/gorm"
)

// Social level rewards showing up and organizing, independent of winning.
// Each relationship's boost decays with the number of games the pair has
// already played together, so new partners are worth more than regulars.
const (
	MaxBoostPerRelationship = 0.06
	ReductionPerGame        = 0.005
	MaxGamesForReduction    = 10

	// BarSocialIncrement is the flat per-head boost for informal bar
	// events, which skip the relationship-history computation entirely.
	BarSocialIncrement = 0.05
)

// roleMultiplier selects the boost multiplier as an ordered match over the
// closed role set. The current game's OWNER outranks a parent-event owner,
// which outranks the current game's ADMIN, and so on down to a plain
// participant who gets nothing unless they played.
func roleMultiplier(role, parentRole string, isPlaying bool) float64 {
	type pair struct{ played, organized float64 }
	var m pair
	switch {
	case role == models.RoleOwner:
		m = pair{1.5, 0.5}
	case parentRole == models.RoleOwner:
		m = pair{1.2, 0.2}
	case role == models.RoleAdmin:
		m = pair{1.2, 0.2}
	case parentRole == models.RoleAdmin:
		m = pair{1.1, 0.1}
	default:
		m = pair{1.0, 0.0}
	}
	if isPlaying {
		return m.played
	}
	return m.organized
}

// relationshipBoost decays linearly with prior co-played games and floors
// once the pair has played MaxGamesForReduction games together.
func relationshipBoost(coPlayedGames int64) float64 {
	games := coPlayedGames
	if games > MaxGamesForReduction {
		games = MaxGamesForReduction
	}
	return MaxBoostPerRelationship - float64(games)*ReductionPerGame
}

// countCoPlayedGames counts finalized games strictly earlier in time where
// both users were playing participants. Bar events and league seasons are
// excluded so their own boosting paths don't double-count.
func countCoPlayedGames(tx *gorm.DB, userID1, userID2, currentGameID string, currentStartTime time.Time) (int64, error) {
	var count int64
	err := tx.Model(&models.Game{}).
		Joins("JOIN game_participants p1 ON p1.game_id = games.id AND p1.user_id = ? AND p1.is_playing = ?", userID1, true).
		Joins("JOIN game_participants p2 ON p2.game_id = games.id AND p2.user_id = ? AND p2.is_playing = ?", userID2, true).
		Where("games.id <> ?", currentGameID).
		Where("games.start_time < ?", currentStartTime).
		Where("games.results_status = ?", models.ResultsStatusFinal).
		Where("games.entity_type NOT IN ?", []string{models.EntityTypeBar, models.EntityTypeLeagueSeason}).
		Count(&count).Error
	return count, err
}

// SocialBoostBreakdown is one relationship's contribution, surfaced by the
// outcome explanation.
type SocialBoostBreakdown struct {
	OtherUserID   string  `json:"other_user_id"`
	CoPlayedGames int64   `json:"co_played_games"`
	Boost         float64 `json:"boost"`
}

// ApplySocialLevelChanges runs inside the finalize transaction. Every
// participant (playing or not) accumulates a per-relationship boost against
// each playing participant, scaled by their role multiplier, and the result
// is appended to their social level with a ledger event.
func ApplySocialLevelChanges(tx *gorm.DB, gameID string) error {
	var game models.Game
	if err := tx.Preload("Participants").First(&game, "id = ?", gameID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return err
	}

	if game.EntityType == models.EntityTypeBar || game.EntityType == models.EntityTypeLeagueSeason {
		return nil
	}

	var playing []models.GameParticipant
	for _, p := range game.Participants {
		if p.IsPlaying {
			playing = append(playing, p)
		}
	}
	if len(playing) < 2 {
		return nil
	}

	for _, participant := range game.Participants {
		baseBoost := 0.0
		for _, other := range playing {
			if other.UserID == participant.UserID {
				continue
			}
			coPlayed, err := countCoPlayedGames(tx, participant.UserID, other.UserID, game.ID, game.StartTime)
			if err != nil {
				return err
			}
			baseBoost += relationshipBoost(coPlayed)
		}

		boost := baseBoost * roleMultiplier(participant.Role, participant.ParentRole, participant.IsPlaying)
		if boost <= 0 {
			continue
		}

		var user models.GameUser
		if err := tx.First(&user, "id = ?", participant.UserID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				log.Printf("[SOCIAL] user %s missing, skipping boost", participant.UserID)
				continue
			}
			return err
		}

		levelBefore := user.SocialLevel
		levelAfter := levelBefore + boost

		if err := tx.Model(&models.GameUser{}).Where("id = ?", user.ID).
			Update("social_level", levelAfter).Error; err != nil {
			return err
		}

		gameRef := game.ID
		if err := tx.Create(&models.LevelChangeEvent{
			UserID:      user.ID,
			GameID:      &gameRef,
			EventType:   models.LevelEventSocial,
			LevelBefore: levelBefore,
			LevelAfter:  levelAfter,
		}).Error; err != nil {
			return err
		}
	}

	return nil
}

// ApplyBarSocialLevelChanges is the lightweight variant for bar events: a
// flat increment scaled only by how many people played, no history lookups.
func ApplyBarSocialLevelChanges(tx *gorm.DB, gameID string) error {
	var game models.Game
	if err := tx.Preload("Participants").First(&game, "id = ?", gameID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return err
	}
	if game.EntityType != models.EntityTypeBar {
		return nil
	}

	playingCount := 0
	for _, p := range game.Participants {
		if p.IsPlaying {
			playingCount++
		}
	}
	if playingCount < 2 {
		return nil
	}
	boost := BarSocialIncrement * float64(playingCount)

	for _, participant := range game.Participants {
		if !participant.IsPlaying {
			continue
		}
		var user models.GameUser
		if err := tx.First(&user, "id = ?", participant.UserID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				log.Printf("[SOCIAL] user %s missing, skipping bar boost", participant.UserID)
				continue
			}
			return err
		}
		levelBefore := user.SocialLevel
		levelAfter := levelBefore + boost
		if err := tx.Model(&models.GameUser{}).Where("id = ?", user.ID).
			Update("social_level", levelAfter).Error; err != nil {
			return err
		}
		gameRef := game.ID
		if err := tx.Create(&models.LevelChangeEvent{
			UserID:      user.ID,
			GameID:      &gameRef,
			EventType:   models.LevelEventSocial,
			LevelBefore: levelBefore,
			LevelAfter:  levelAfter,
		}).Error; err != nil {
			return err
		}
	}
	return nil
}

// RevertSocialLevelChanges restores each affected user's social level to
// the value recorded before the game and removes the ledger events.
func RevertSocialLevelChanges(tx *gorm.DB, gameID string) error {
	var events []models.LevelChangeEvent
	if err := tx.Where("game_id = ? AND event_type = ?", gameID, models.LevelEventSocial).
		Find(&events).Error; err != nil {
		return err
	}

	for _, event := range events {
		if err := tx.Model(&models.GameUser{}).Where("id = ?", event.UserID).
			Update("social_level", event.LevelBefore).Error; err != nil {
			return err
		}
	}

	return tx.Where("game_id = ? AND event_type = ?", gameID, models.LevelEventSocial).
		Delete(&models.LevelChangeEvent{}).Error
}

// SocialBoostBreakdownFor recomputes the per-relationship breakdown for one
// participant, read-only, for explanation display.
func SocialBoostBreakdownFor(db *gorm.DB, gameID, userID string) ([]SocialBoostBreakdown, error) {
	var game models.Game
	if err := db.Preload("Participants").First(&game, "id = ?", gameID).Error; err != nil {
		return nil, err
	}

	var self *models.GameParticipant
	for i := range game.Participants {
		if game.Participants[i].UserID == userID {
			self = &game.Participants[i]
			break
		}
	}
	if self == nil {
		return nil, nil
	}

	multiplier := roleMultiplier(self.Role, self.ParentRole, self.IsPlaying)
	var breakdown []SocialBoostBreakdown
	for _, other := range game.Participants {
		if !other.IsPlaying || other.UserID == userID {
			continue
		}
		coPlayed, err := countCoPlayedGames(db, userID, other.UserID, game.ID, game.StartTime)
		if err != nil {
			return nil, err
		}
		breakdown = append(breakdown, SocialBoostBreakdown{
			OtherUserID:   other.UserID,
			CoPlayedGames: coPlayed,
			Boost:         relationshipBoost(coPlayed) * multiplier,
		})
	}
	return breakdown, nil
}
