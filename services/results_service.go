// services/results_service.go
package services

import (
	"log"
	"sync"
	"time"

	"game-results-system/models"
	"game-results-system/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// ResultsService owns the results lifecycle of a game:
// NONE → IN_PROGRESS → FINAL, with "edit" (FINAL → IN_PROGRESS, keeps
// match data) and "reset" (→ NONE, drops match data) as reverse edges.
// Every transition runs undo-then-recompute-then-apply as one transaction,
// and transitions for the same game are serialized by a per-game mutex.
type ResultsService struct {
	DB        *gorm.DB
	gameLocks sync.Map // gameID → *sync.Mutex
}

func NewResultsService(db *gorm.DB) *ResultsService {
	return &ResultsService{DB: db}
}

func (s *ResultsService) lockGame(gameID string) func() {
	v, _ := s.gameLocks.LoadOrStore(gameID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// FinalGameView is what a finished recalculation returns to callers.
type FinalGameView struct {
	GameID            string               `json:"game_id"`
	ResultsStatus     string               `json:"results_status"`
	FinishedDate      *time.Time           `json:"finished_date,omitempty"`
	WasEdit           bool                 `json:"was_edit"`
	ShouldResolveBets bool                 `json:"should_resolve_bets"`
	Standings         []Standing           `json:"standings"`
	Outcomes          []models.GameOutcome `json:"outcomes"`
}

func (s *ResultsService) loadGameGraph(tx *gorm.DB, gameID string) (*models.Game, error) {
	var game models.Game
	err := tx.
		Preload("Participants").
		Preload("FixedTeams").
		Preload("Rounds", func(db *gorm.DB) *gorm.DB { return db.Order("round_number ASC") }).
		Preload("Rounds.Matches", func(db *gorm.DB) *gorm.DB { return db.Order("match_number ASC") }).
		Preload("Rounds.Matches.Players").
		Preload("Rounds.Matches.Sets", func(db *gorm.DB) *gorm.DB { return db.Order("set_number ASC") }).
		First(&game, "id = ?", gameID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fiber.NewError(404, "game not found")
		}
		return nil, err
	}
	return &game, nil
}

// undoOutcomes reverts every player's cumulative stats by exactly the
// stored deltas. A missing user row is logged and skipped so one orphaned
// outcome cannot block resetting the rest of the game.
func undoOutcomes(tx *gorm.DB, outcomes []models.GameOutcome) {
	for _, outcome := range outcomes {
		var user models.GameUser
		if err := tx.First(&user, "id = ?", outcome.UserID).Error; err != nil {
			log.Printf("[RESULTS] undo: user %s not found, skipping (outcome %s)", outcome.UserID, outcome.ID)
			continue
		}
		updates := map[string]interface{}{
			"level":        outcome.LevelBefore,
			"reliability":  outcome.ReliabilityBefore,
			"total_points": gorm.Expr("total_points - ?", outcome.PointsEarned),
			"games_played": gorm.Expr("games_played - 1"),
		}
		if outcome.IsWinner {
			updates["games_won"] = gorm.Expr("games_won - 1")
		}
		if err := tx.Model(&models.GameUser{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
			log.Printf("[RESULTS] undo: failed to revert user %s: %v", user.ID, err)
		}
	}
}

// discardOutcomeRows removes the derived rows a new apply will recreate.
func discardOutcomeRows(tx *gorm.DB, gameID string) error {
	if err := tx.Where("game_id = ?", gameID).Delete(&models.GameOutcome{}).Error; err != nil {
		return err
	}
	if err := tx.Where("game_id = ?", gameID).Delete(&models.RoundOutcome{}).Error; err != nil {
		return err
	}
	return tx.Where("game_id = ? AND event_type = ?", gameID, models.LevelEventGame).
		Delete(&models.LevelChangeEvent{}).Error
}

// buildAggregationPlayers primes every playing participant's starting
// level/reliability: from the prior outcome snapshot when one exists (so a
// recompute over partially-applied state converges), else the live row.
func buildAggregationPlayers(tx *gorm.DB, game *models.Game, priorOutcomes []models.GameOutcome) ([]AggregationPlayer, error) {
	priorByUser := make(map[string]models.GameOutcome, len(priorOutcomes))
	for _, o := range priorOutcomes {
		priorByUser[o.UserID] = o
	}

	players := make([]AggregationPlayer, 0, len(game.Participants))
	for _, participant := range game.Participants {
		if !participant.IsPlaying {
			continue
		}
		var user models.GameUser
		if err := tx.First(&user, "id = ?", participant.UserID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				log.Printf("[RESULTS] participant %s has no user row, skipping", participant.UserID)
				continue
			}
			return nil, err
		}
		player := AggregationPlayer{
			UserID:      user.ID,
			Level:       user.Level,
			Reliability: user.Reliability,
			GamesPlayed: user.GamesPlayed,
			Gender:      participant.Gender,
		}
		if player.Gender == "" {
			player.Gender = user.Gender
		}
		if prior, ok := priorByUser[user.ID]; ok {
			player.Level = prior.LevelBefore
			player.Reliability = prior.ReliabilityBefore
		}
		players = append(players, player)
	}
	return players, nil
}

func fixedTeamMembers(game *models.Game) []FixedTeamMembers {
	teams := make([]FixedTeamMembers, 0, len(game.FixedTeams))
	for _, team := range game.FixedTeams {
		members := FixedTeamMembers{TeamID: team.ID, TeamNumber: team.TeamNumber}
		for _, p := range game.Participants {
			if p.FixedTeamID != nil && *p.FixedTeamID == team.ID {
				members.PlayerIDs = append(members.PlayerIDs, p.UserID)
			}
		}
		teams = append(teams, members)
	}
	return teams
}

// RecalculateOutcomes runs the full undo → recompute → apply cycle and
// finalizes the game. It is an idempotent fixed point: recalculating an
// unchanged game produces identical outcome rows and no stat drift.
func (s *ResultsService) RecalculateOutcomes(gameID string) (*FinalGameView, error) {
	unlock := s.lockGame(gameID)
	defer unlock()

	var view *FinalGameView
	var firstFinal bool

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		game, err := s.loadGameGraph(tx, gameID)
		if err != nil {
			return err
		}

		playingCount := 0
		for _, p := range game.Participants {
			if p.IsPlaying {
				playingCount++
			}
		}
		if playingCount < 2 {
			return fiber.NewError(400, "game needs at least 2 playing participants")
		}

		wasFinal := game.ResultsStatus == models.ResultsStatusFinal

		var priorOutcomes []models.GameOutcome
		if err := tx.Where("game_id = ?", gameID).Find(&priorOutcomes).Error; err != nil {
			return err
		}

		// 1. Undo. Player rows return to their pre-apply values before any
		// recomputation reads them.
		if len(priorOutcomes) > 0 {
			if game.AffectsRating {
				undoOutcomes(tx, priorOutcomes)
			}
			if err := discardOutcomeRows(tx, gameID); err != nil {
				return err
			}
			if err := RevertSocialLevelChanges(tx, gameID); err != nil {
				return err
			}
		}

		// 2. Recompute match winners from current set scores.
		if err := UpdateMatchWinners(tx, game); err != nil {
			return err
		}

		// 3. Aggregate and resolve.
		players, err := buildAggregationPlayers(tx, game, priorOutcomes)
		if err != nil {
			return err
		}

		aggregation := AggregateGame(players, game.Rounds, game.BallsInGames)
		standings := ResolveStandings(StandingsInput{
			WinnerRule:      game.WinnerRule,
			MatchWinnerRule: game.MatchWinnerRule,
			PointsPerWin:    game.PointsPerWin,
			PointsPerTie:    game.PointsPerTie,
			PointsPerLoose:  game.PointsPerLoose,
			HasFixedTeams:   game.HasFixedTeams,
			MixedPairs:      game.MixedPairs,
			Players:         players,
			Rounds:          game.Rounds,
			Tallies:         aggregation.Tallies,
			FixedTeams:      fixedTeamMembers(game),
		})

		// 4. Apply. Live state is re-read per player so deltas land on the
		// post-undo values.
		outcomes := make([]models.GameOutcome, 0, len(standings))
		for _, standing := range standings {
			tally := aggregation.Tallies[standing.UserID]
			if tally == nil {
				continue
			}
			var user models.GameUser
			if err := tx.First(&user, "id = ?", standing.UserID).Error; err != nil {
				log.Printf("[RESULTS] apply: user %s not found, skipping", standing.UserID)
				continue
			}

			levelBefore := user.Level
			levelAfter := ClampLevel(levelBefore + tally.LevelChange)
			reliabilityBefore := user.Reliability
			reliabilityAfter := ClampReliability(reliabilityBefore + tally.ReliabilityChange())
			pointsEarned := RewardPoints(tally.Wins, tally.Ties, tally.Losses,
				game.PointsPerWin, game.PointsPerTie, game.PointsPerLoose)

			outcome := models.GameOutcome{
				GameID:            gameID,
				UserID:            user.ID,
				Position:          standing.Place,
				IsWinner:          standing.IsWinner(),
				LevelBefore:       levelBefore,
				LevelAfter:        levelAfter,
				LevelChange:       tally.LevelChange,
				ReliabilityBefore: reliabilityBefore,
				ReliabilityAfter:  reliabilityAfter,
				ReliabilityChange: tally.ReliabilityChange(),
				PointsEarned:      pointsEarned,
				MatchesWon:        tally.MatchesWon,
				Wins:              tally.Wins,
				Ties:              tally.Ties,
				Losses:            tally.Losses,
				TotalPoints:       tally.ScoresMade,
				ScoresDelta:       tally.ScoresDelta(),
			}
			if err := tx.Create(&outcome).Error; err != nil {
				return err
			}
			outcomes = append(outcomes, outcome)

			if game.AffectsRating {
				updates := map[string]interface{}{
					"level":        levelAfter,
					"reliability":  reliabilityAfter,
					"total_points": gorm.Expr("total_points + ?", pointsEarned),
					"games_played": gorm.Expr("games_played + 1"),
				}
				if outcome.IsWinner {
					updates["games_won"] = gorm.Expr("games_won + 1")
				}
				if err := tx.Model(&models.GameUser{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
					return err
				}
				if tally.LevelChange != 0 {
					gameRef := gameID
					if err := tx.Create(&models.LevelChangeEvent{
						UserID:      user.ID,
						GameID:      &gameRef,
						EventType:   models.LevelEventGame,
						LevelBefore: levelBefore,
						LevelAfter:  levelAfter,
					}).Error; err != nil {
						return err
					}
				}
			}
		}

		for _, roundTally := range aggregation.Rounds {
			for userID, levelChange := range roundTally.LevelChanges {
				if err := tx.Create(&models.RoundOutcome{
					GameID:      gameID,
					RoundID:     roundTally.RoundID,
					UserID:      userID,
					LevelChange: levelChange,
				}).Error; err != nil {
					return err
				}
			}
		}

		// 5. Finalize. FinishedDate is stamped only the first time this
		// game ever reaches FINAL.
		gameUpdates := map[string]interface{}{"results_status": models.ResultsStatusFinal}
		finishedDate := game.FinishedDate
		firstFinal = !wasFinal && game.FinishedDate == nil
		if firstFinal {
			now := time.Now()
			finishedDate = &now
			gameUpdates["finished_date"] = now
		}
		if err := tx.Model(&models.Game{}).Where("id = ?", gameID).Updates(gameUpdates).Error; err != nil {
			return err
		}

		if game.EntityType == models.EntityTypeBar {
			if err := ApplyBarSocialLevelChanges(tx, gameID); err != nil {
				return err
			}
		} else if err := ApplySocialLevelChanges(tx, gameID); err != nil {
			return err
		}

		view = &FinalGameView{
			GameID:            gameID,
			ResultsStatus:     models.ResultsStatusFinal,
			FinishedDate:      finishedDate,
			WasEdit:           wasFinal && len(priorOutcomes) > 0,
			ShouldResolveBets: !wasFinal,
			Standings:         standings,
			Outcomes:          outcomes,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if firstFinal {
		go utils.ArchiveOutcomeSnapshot(view.GameID, view)
	}

	return view, nil
}

// EditResults reopens a FINAL game for correction: ratings and social
// levels are rolled back and the derived rows dropped, while the recorded
// rounds, matches and sets stay untouched.
func (s *ResultsService) EditResults(gameID string) error {
	unlock := s.lockGame(gameID)
	defer unlock()

	return s.DB.Transaction(func(tx *gorm.DB) error {
		var game models.Game
		if err := tx.First(&game, "id = ?", gameID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fiber.NewError(404, "game not found")
			}
			return err
		}
		if game.ResultsStatus != models.ResultsStatusFinal {
			return fiber.NewError(400, "can only edit results with FINAL status")
		}

		var outcomes []models.GameOutcome
		if err := tx.Where("game_id = ?", gameID).Find(&outcomes).Error; err != nil {
			return err
		}
		if game.AffectsRating && len(outcomes) > 0 {
			undoOutcomes(tx, outcomes)
		}
		if err := discardOutcomeRows(tx, gameID); err != nil {
			return err
		}
		if err := RevertSocialLevelChanges(tx, gameID); err != nil {
			return err
		}

		return tx.Model(&models.Game{}).Where("id = ?", gameID).
			Update("results_status", models.ResultsStatusInProgress).Error
	})
}

// ResetResults drops a game's results back to NONE from any state: undo,
// derived rows, and the structural round/match/set data all go.
func (s *ResultsService) ResetResults(gameID string) error {
	unlock := s.lockGame(gameID)
	defer unlock()

	return s.DB.Transaction(func(tx *gorm.DB) error {
		var game models.Game
		if err := tx.First(&game, "id = ?", gameID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fiber.NewError(404, "game not found")
			}
			return err
		}

		var outcomes []models.GameOutcome
		if err := tx.Where("game_id = ?", gameID).Find(&outcomes).Error; err != nil {
			return err
		}
		if game.AffectsRating && len(outcomes) > 0 {
			undoOutcomes(tx, outcomes)
		}
		if err := discardOutcomeRows(tx, gameID); err != nil {
			return err
		}
		if err := RevertSocialLevelChanges(tx, gameID); err != nil {
			return err
		}
		// a reset leaves no ledger rows for the game at all, including
		// manual trainer adjustments
		if err := tx.Where("game_id = ? AND event_type = ?", gameID, models.LevelEventManual).
			Delete(&models.LevelChangeEvent{}).Error; err != nil {
			return err
		}

		// Structural teardown, leaves first.
		roundIDs := tx.Model(&models.Round{}).Select("id").Where("game_id = ?", gameID)
		matchIDs := tx.Model(&models.Match{}).Select("id").Where("round_id IN (?)", roundIDs)
		if err := tx.Where("match_id IN (?)", matchIDs).Delete(&models.SetScore{}).Error; err != nil {
			return err
		}
		if err := tx.Where("match_id IN (?)", matchIDs).Delete(&models.MatchPlayer{}).Error; err != nil {
			return err
		}
		if err := tx.Where("round_id IN (?)", roundIDs).Delete(&models.Match{}).Error; err != nil {
			return err
		}
		if err := tx.Where("game_id = ?", gameID).Delete(&models.Round{}).Error; err != nil {
			return err
		}

		return tx.Model(&models.Game{}).Where("id = ?", gameID).Updates(map[string]interface{}{
			"results_status": models.ResultsStatusNone,
			"finished_date":  nil,
		}).Error
	})
}

// DeleteResults is the caller-facing alias for a full reset to NONE.
func (s *ResultsService) DeleteResults(gameID string) error {
	return s.ResetResults(gameID)
}

// RecalculateUserReliability rebuilds a user's reliability from their
// stored outcomes: flat increment per match ever played, clamped.
func (s *ResultsService) RecalculateUserReliability(userID string) (float64, error) {
	var reliability float64
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		type sums struct {
			Wins   int
			Ties   int
			Losses int
		}
		var total sums
		if err := tx.Model(&models.GameOutcome{}).
			Select("COALESCE(SUM(wins),0) AS wins, COALESCE(SUM(ties),0) AS ties, COALESCE(SUM(losses),0) AS losses").
			Where("user_id = ?", userID).
			Scan(&total).Error; err != nil {
			return err
		}
		matches := total.Wins + total.Ties + total.Losses
		reliability = ClampReliability(float64(matches) * ReliabilityIncrement)
		return tx.Model(&models.GameUser{}).Where("id = ?", userID).
			Update("reliability", reliability).Error
	})
	return reliability, err
}

// SetParticipantLevel lets a trainer pin a participant's level/reliability
// after a finished training, recording the change as a manual ledger event.
func (s *ResultsService) SetParticipantLevel(gameID, userID string, level, reliability float64) error {
	unlock := s.lockGame(gameID)
	defer unlock()

	return s.DB.Transaction(func(tx *gorm.DB) error {
		var game models.Game
		if err := tx.First(&game, "id = ?", gameID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fiber.NewError(404, "game not found")
			}
			return err
		}
		if game.EntityType != models.EntityTypeTraining {
			return fiber.NewError(400, "participant levels can only be set on trainings")
		}
		if game.ResultsStatus != models.ResultsStatusFinal {
			return fiber.NewError(400, "training must be finished before setting participant levels")
		}

		var participant models.GameParticipant
		if err := tx.Where("game_id = ? AND user_id = ? AND is_playing = ?", gameID, userID, true).
			First(&participant).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fiber.NewError(404, "participant not found in this game")
			}
			return err
		}
		var user models.GameUser
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fiber.NewError(404, "user not found")
			}
			return err
		}

		var prior models.GameOutcome
		hasPrior := tx.Where("game_id = ? AND user_id = ?", gameID, userID).First(&prior).Error == nil

		levelBefore := user.Level
		reliabilityBefore := user.Reliability
		if hasPrior {
			levelBefore = prior.LevelBefore
			reliabilityBefore = prior.ReliabilityBefore
		}
		levelAfter := ClampLevel(level)
		reliabilityAfter := ClampReliability(reliability)

		if err := tx.Where("user_id = ? AND game_id = ? AND event_type = ?",
			userID, gameID, models.LevelEventManual).Delete(&models.LevelChangeEvent{}).Error; err != nil {
			return err
		}

		outcome := models.GameOutcome{
			GameID:            gameID,
			UserID:            userID,
			LevelBefore:       levelBefore,
			LevelAfter:        levelAfter,
			LevelChange:       levelAfter - levelBefore,
			ReliabilityBefore: reliabilityBefore,
			ReliabilityAfter:  reliabilityAfter,
			ReliabilityChange: reliabilityAfter - reliabilityBefore,
		}
		if hasPrior {
			outcome.ID = prior.ID
			outcome.Position = prior.Position
			outcome.IsWinner = prior.IsWinner
			if err := tx.Save(&outcome).Error; err != nil {
				return err
			}
		} else if err := tx.Create(&outcome).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.GameUser{}).Where("id = ?", userID).Updates(map[string]interface{}{
			"level":       levelAfter,
			"reliability": reliabilityAfter,
		}).Error; err != nil {
			return err
		}

		gameRef := gameID
		return tx.Create(&models.LevelChangeEvent{
			UserID:      userID,
			GameID:      &gameRef,
			EventType:   models.LevelEventManual,
			LevelBefore: levelBefore,
			LevelAfter:  levelAfter,
		}).Error
	})
}
