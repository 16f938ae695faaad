// services/match_winner_service.go
package services

import (
	"log"

	"game-results-system/models"

	"gorm.io/gorm"
)

// ValidSets filters out unplayed sets (both scores zero).
func ValidSets(sets []models.SetScore) []models.SetScore {
	valid := make([]models.SetScore, 0, len(sets))
	for _, s := range sets {
		if s.TeamAScore > 0 || s.TeamBScore > 0 {
			valid = append(valid, s)
		}
	}
	return valid
}

// SidePlayerIDs returns the user ids assigned to one side of a match.
func SidePlayerIDs(match models.Match, side string) []string {
	ids := make([]string, 0, len(match.Players))
	for _, p := range match.Players {
		if p.Side == side {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}

func calculateMatchWinnerByScores(match models.Match) string {
	valid := ValidSets(match.Sets)
	if len(valid) == 0 {
		return ""
	}
	totalA, totalB := 0, 0
	for _, s := range valid {
		totalA += s.TeamAScore
		totalB += s.TeamBScore
	}
	if totalA > totalB {
		return models.MatchSideA
	}
	if totalB > totalA {
		return models.MatchSideB
	}
	return "" // equal totals with played sets = tie
}

func calculateMatchWinnerBySets(match models.Match) string {
	valid := ValidSets(match.Sets)
	if len(valid) == 0 {
		return ""
	}
	setsA, setsB := 0, 0
	for _, s := range valid {
		if s.TeamAScore > s.TeamBScore {
			setsA++
		} else if s.TeamBScore > s.TeamAScore {
			setsB++
		}
	}
	if setsA > setsB {
		return models.MatchSideA
	}
	if setsB > setsA {
		return models.MatchSideB
	}
	return ""
}

// CalculateMatchWinner derives the winning side from set scores using the
// game's match-winner rule. Empty string means tie or nothing played.
func CalculateMatchWinner(match models.Match, matchWinnerRule string) string {
	switch matchWinnerRule {
	case models.MatchWinnerRuleBySets:
		return calculateMatchWinnerBySets(match)
	default: // BY_SCORES
		return calculateMatchWinnerByScores(match)
	}
}

// UpdateMatchWinners recomputes and persists WinnerSide for every match of
// the loaded game graph. Runs inside the caller's transaction so a
// recalculation never observes half-updated winners.
func UpdateMatchWinners(tx *gorm.DB, game *models.Game) error {
	for ri := range game.Rounds {
		round := &game.Rounds[ri]
		for mi := range round.Matches {
			match := &round.Matches[mi]
			winner := CalculateMatchWinner(*match, game.MatchWinnerRule)
			if winner == match.WinnerSide {
				continue
			}
			match.WinnerSide = winner
			if err := tx.Model(&models.Match{}).Where("id = ?", match.ID).
				Update("winner_side", winner).Error; err != nil {
				return err
			}
			log.Printf("[MATCH WINNER] match %s → %q", match.ID, winner)
		}
	}
	return nil
}
