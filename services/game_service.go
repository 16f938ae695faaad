// services/game_service.go
package services

import (
	"time"

	"game-results-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

type GameService struct {
	DB *gorm.DB
}

func NewGameService(db *gorm.DB) *GameService {
	return &GameService{DB: db}
}

func validWinnerRule(rule string) bool {
	switch rule {
	case models.WinnerRuleByMatchesWon, models.WinnerRuleByPoints,
		models.WinnerRuleByScoresDelta, models.WinnerRulePlayoffFinals:
		return true
	}
	return false
}

func validMatchWinnerRule(rule string) bool {
	return rule == models.MatchWinnerRuleBySets || rule == models.MatchWinnerRuleByScores
}

type createParticipantRequest struct {
	UserID          string `json:"user_id"`
	Role            string `json:"role"`
	ParentRole      string `json:"parent_role"`
	Gender          string `json:"gender"`
	IsPlaying       *bool  `json:"is_playing"`
	FixedTeamNumber *int   `json:"fixed_team_number"`
}

type createFixedTeamRequest struct {
	TeamNumber int    `json:"team_number"`
	Name       string `json:"name"`
}

type createGameRequest struct {
	Name            string                     `json:"name"`
	EntityType      string                     `json:"entity_type"`
	ParentID        *string                    `json:"parent_id"`
	WinnerRule      string                     `json:"winner_rule"`
	MatchWinnerRule string                     `json:"match_winner_rule"`
	PointsPerWin    int                        `json:"points_per_win"`
	PointsPerTie    int                        `json:"points_per_tie"`
	PointsPerLoose  int                        `json:"points_per_loose"`
	HasFixedTeams   bool                       `json:"has_fixed_teams"`
	MixedPairs      bool                       `json:"mixed_pairs"`
	AffectsRating   *bool                      `json:"affects_rating"`
	BallsInGames    bool                       `json:"balls_in_games"`
	StartTime       time.Time                  `json:"start_time"`
	EndTime         *time.Time                 `json:"end_time"`
	Participants    []createParticipantRequest `json:"participants"`
	FixedTeams      []createFixedTeamRequest   `json:"fixed_teams"`
}

// CreateGame registers a game with its participants and optional fixed
// teams. Scores come later through SaveRound.
func (s *GameService) CreateGame(c *fiber.Ctx) error {
	var req createGameRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body", "cause": err.Error()})
	}
	if req.Name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}
	if req.WinnerRule == "" {
		req.WinnerRule = models.WinnerRuleByMatchesWon
	}
	if !validWinnerRule(req.WinnerRule) {
		return c.Status(400).JSON(fiber.Map{"error": "invalid winner_rule"})
	}
	if req.MatchWinnerRule == "" {
		req.MatchWinnerRule = models.MatchWinnerRuleByScores
	}
	if !validMatchWinnerRule(req.MatchWinnerRule) {
		return c.Status(400).JSON(fiber.Map{"error": "invalid match_winner_rule"})
	}
	if req.EntityType == "" {
		req.EntityType = models.EntityTypeGame
	}
	if req.HasFixedTeams && len(req.FixedTeams) < 2 {
		return c.Status(400).JSON(fiber.Map{"error": "fixed team games need at least 2 teams"})
	}

	affectsRating := true
	if req.AffectsRating != nil {
		affectsRating = *req.AffectsRating
	}
	startTime := req.StartTime
	if startTime.IsZero() {
		startTime = time.Now()
	}

	game := models.Game{
		ID:              uuid.NewString(),
		Name:            req.Name,
		Slug:            slug.Make(req.Name),
		EntityType:      req.EntityType,
		ParentID:        req.ParentID,
		WinnerRule:      req.WinnerRule,
		MatchWinnerRule: req.MatchWinnerRule,
		PointsPerWin:    req.PointsPerWin,
		PointsPerTie:    req.PointsPerTie,
		PointsPerLoose:  req.PointsPerLoose,
		HasFixedTeams:   req.HasFixedTeams,
		MixedPairs:      req.MixedPairs,
		AffectsRating:   affectsRating,
		BallsInGames:    req.BallsInGames,
		ResultsStatus:   models.ResultsStatusNone,
		StartTime:       startTime,
		EndTime:         req.EndTime,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&game).Error; err != nil {
			return err
		}

		teamIDByNumber := make(map[int]string, len(req.FixedTeams))
		for _, team := range req.FixedTeams {
			fixedTeam := models.FixedTeam{
				ID:         uuid.NewString(),
				GameID:     game.ID,
				TeamNumber: team.TeamNumber,
				Name:       team.Name,
			}
			if err := tx.Create(&fixedTeam).Error; err != nil {
				return err
			}
			teamIDByNumber[team.TeamNumber] = fixedTeam.ID
		}

		for _, p := range req.Participants {
			isPlaying := true
			if p.IsPlaying != nil {
				isPlaying = *p.IsPlaying
			}
			role := p.Role
			if role == "" {
				role = models.RoleParticipant
			}
			participant := models.GameParticipant{
				ID:         uuid.NewString(),
				GameID:     game.ID,
				UserID:     p.UserID,
				Role:       role,
				ParentRole: p.ParentRole,
				Gender:     p.Gender,
				IsPlaying:  isPlaying,
			}
			if p.FixedTeamNumber != nil {
				teamID, ok := teamIDByNumber[*p.FixedTeamNumber]
				if !ok {
					return fiber.NewError(400, "participant references unknown fixed team number")
				}
				participant.FixedTeamID = &teamID
			} else if game.HasFixedTeams && isPlaying {
				return fiber.NewError(400, "every playing participant of a fixed team game needs a team")
			}
			if err := tx.Create(&participant).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if fe, ok := err.(*fiber.Error); ok {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to create game", "cause": err.Error()})
	}

	return c.Status(201).JSON(game)
}

// GetGame returns the full game graph plus stored outcomes ordered by
// final position.
func (s *GameService) GetGame(c *fiber.Ctx) error {
	gameID := c.Params("id")

	var game models.Game
	err := s.DB.
		Preload("Participants").
		Preload("FixedTeams").
		Preload("Rounds", func(db *gorm.DB) *gorm.DB { return db.Order("round_number ASC") }).
		Preload("Rounds.Matches", func(db *gorm.DB) *gorm.DB { return db.Order("match_number ASC") }).
		Preload("Rounds.Matches.Players").
		Preload("Rounds.Matches.Sets", func(db *gorm.DB) *gorm.DB { return db.Order("set_number ASC") }).
		First(&game, "id = ?", gameID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.Status(404).JSON(fiber.Map{"error": "game not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to load game", "cause": err.Error()})
	}

	var outcomes []models.GameOutcome
	if err := s.DB.Where("game_id = ?", gameID).Order("position ASC").Find(&outcomes).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load outcomes", "cause": err.Error()})
	}

	return c.JSON(fiber.Map{"game": game, "outcomes": outcomes})
}

type saveSetRequest struct {
	SetNumber  int  `json:"set_number"`
	TeamAScore int  `json:"team_a_score"`
	TeamBScore int  `json:"team_b_score"`
	IsTieBreak bool `json:"is_tie_break"`
}

type saveMatchRequest struct {
	MatchNumber int              `json:"match_number"`
	TeamA       []string         `json:"team_a"`
	TeamB       []string         `json:"team_b"`
	Sets        []saveSetRequest `json:"sets"`
}

type saveRoundRequest struct {
	RoundNumber int                `json:"round_number"`
	Matches     []saveMatchRequest `json:"matches"`
}

// SaveRound replaces one round's matches and set scores. Recording scores
// moves a NONE game to IN_PROGRESS; FINAL games must be edited first.
func (s *GameService) SaveRound(c *fiber.Ctx) error {
	gameID := c.Params("id")

	var req saveRoundRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body", "cause": err.Error()})
	}
	if req.RoundNumber < 1 {
		return c.Status(400).JSON(fiber.Map{"error": "round_number must be >= 1"})
	}
	for _, match := range req.Matches {
		if len(match.TeamA) == 0 || len(match.TeamB) == 0 {
			return c.Status(400).JSON(fiber.Map{"error": "both sides of a match need at least one player"})
		}
		// A tie-break set is only valid as the final set of a match.
		for i, set := range match.Sets {
			if set.IsTieBreak && i != len(match.Sets)-1 {
				return c.Status(400).JSON(fiber.Map{"error": "tie-break set must be the last set of a match"})
			}
		}
	}

	var round models.Round
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var game models.Game
		if err := tx.First(&game, "id = ?", gameID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fiber.NewError(404, "game not found")
			}
			return err
		}
		if game.ResultsStatus == models.ResultsStatusFinal {
			return fiber.NewError(400, "results are FINAL; edit them before changing scores")
		}

		// Replace the round wholesale if it already exists.
		var existing models.Round
		if err := tx.Where("game_id = ? AND round_number = ?", gameID, req.RoundNumber).
			First(&existing).Error; err == nil {
			matchIDs := tx.Model(&models.Match{}).Select("id").Where("round_id = ?", existing.ID)
			if err := tx.Where("match_id IN (?)", matchIDs).Delete(&models.SetScore{}).Error; err != nil {
				return err
			}
			if err := tx.Where("match_id IN (?)", matchIDs).Delete(&models.MatchPlayer{}).Error; err != nil {
				return err
			}
			if err := tx.Where("round_id = ?", existing.ID).Delete(&models.Match{}).Error; err != nil {
				return err
			}
			if err := tx.Unscoped().Delete(&existing).Error; err != nil {
				return err
			}
		}

		round = models.Round{ID: uuid.NewString(), GameID: gameID, RoundNumber: req.RoundNumber}
		if err := tx.Create(&round).Error; err != nil {
			return err
		}

		for _, matchReq := range req.Matches {
			match := models.Match{ID: uuid.NewString(), RoundID: round.ID, MatchNumber: matchReq.MatchNumber}
			if err := tx.Create(&match).Error; err != nil {
				return err
			}
			for _, userID := range matchReq.TeamA {
				player := models.MatchPlayer{MatchID: match.ID, UserID: userID, Side: models.MatchSideA}
				if err := tx.Create(&player).Error; err != nil {
					return err
				}
			}
			for _, userID := range matchReq.TeamB {
				player := models.MatchPlayer{MatchID: match.ID, UserID: userID, Side: models.MatchSideB}
				if err := tx.Create(&player).Error; err != nil {
					return err
				}
			}
			for _, setReq := range matchReq.Sets {
				set := models.SetScore{
					MatchID:    match.ID,
					SetNumber:  setReq.SetNumber,
					TeamAScore: setReq.TeamAScore,
					TeamBScore: setReq.TeamBScore,
					IsTieBreak: setReq.IsTieBreak,
				}
				if err := tx.Create(&set).Error; err != nil {
					return err
				}
			}
		}

		if game.ResultsStatus == models.ResultsStatusNone {
			return tx.Model(&models.Game{}).Where("id = ?", gameID).
				Update("results_status", models.ResultsStatusInProgress).Error
		}
		return nil
	})
	if err != nil {
		if fe, ok := err.(*fiber.Error); ok {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to save round", "cause": err.Error()})
	}

	return c.Status(201).JSON(round)
}

// StandingsPreview computes the current ranking from recorded scores
// without mutating anything, so clients can show a live table while a
// game is still IN_PROGRESS. Match winners are derived in memory only.
func (s *GameService) StandingsPreview(gameID string) ([]Standing, error) {
	var game models.Game
	err := s.DB.
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

	for ri := range game.Rounds {
		for mi := range game.Rounds[ri].Matches {
			match := &game.Rounds[ri].Matches[mi]
			match.WinnerSide = CalculateMatchWinner(*match, game.MatchWinnerRule)
		}
	}

	var priorOutcomes []models.GameOutcome
	if err := s.DB.Where("game_id = ?", gameID).Find(&priorOutcomes).Error; err != nil {
		return nil, err
	}

	players, err := buildAggregationPlayers(s.DB, &game, priorOutcomes)
	if err != nil {
		return nil, err
	}

	aggregation := AggregateGame(players, game.Rounds, game.BallsInGames)
	return ResolveStandings(StandingsInput{
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
		FixedTeams:      fixedTeamMembers(&game),
	}), nil
}
