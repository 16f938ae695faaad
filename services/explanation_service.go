// services/explanation_service.go
package services

import (
	"game-results-system/models"
)

// ExplainedPlayer is a teammate/opponent as shown in the breakdown, with
// the level they had going into the game.
type ExplainedPlayer struct {
	UserID    string  `json:"user_id"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Level     float64 `json:"level"`
}

// ExplainedSet is one played set from the target player's perspective.
type ExplainedSet struct {
	OwnScore      int  `json:"own_score"`
	OpponentScore int  `json:"opponent_score"`
	Won           bool `json:"won"`
}

// MatchExplanation is the per-match derivation of the player's delta.
type MatchExplanation struct {
	MatchNumber            int               `json:"match_number"`
	RoundNumber            int               `json:"round_number"`
	IsWinner               bool              `json:"is_winner"`
	IsTie                  bool              `json:"is_tie"`
	OpponentLevel          float64           `json:"opponent_level"`
	LevelDifference        float64           `json:"level_difference"`
	LevelChange            float64           `json:"level_change"`
	ReliabilityChange      float64           `json:"reliability_change"`
	PointsEarned           int               `json:"points_earned"`
	Multiplier             float64           `json:"multiplier"`
	TotalPointDifferential int               `json:"total_point_differential"`
	EnduranceCoefficient   float64           `json:"endurance_coefficient"`
	Teammates              []ExplainedPlayer `json:"teammates"`
	Opponents              []ExplainedPlayer `json:"opponents"`
	Sets                   []ExplainedSet    `json:"sets"`
}

// ExplanationSummary aggregates the replay for display.
type ExplanationSummary struct {
	TotalMatches         int     `json:"total_matches"`
	Wins                 int     `json:"wins"`
	Losses               int     `json:"losses"`
	Draws                int     `json:"draws"`
	AverageOpponentLevel float64 `json:"average_opponent_level"`
}

// OutcomeExplanation is the full match-by-match derivation of one player's
// rating change in one game.
type OutcomeExplanation struct {
	UserID              string                 `json:"user_id"`
	StartingLevel       float64                `json:"starting_level"`
	StartingReliability float64                `json:"starting_reliability"`
	GamesPlayed         int                    `json:"games_played"`
	LevelChange         float64                `json:"level_change"`
	ReliabilityChange   float64                `json:"reliability_change"`
	Matches             []MatchExplanation     `json:"matches"`
	Summary             ExplanationSummary     `json:"summary"`
	SocialBoosts        []SocialBoostBreakdown `json:"social_boosts,omitempty"`
}

// GetOutcomeExplanation replays the game's matches for one player with the
// same rating math that produced the stored outcome, starting from the
// level snapshots captured at finalize time. Live levels are never used
// when outcomes exist: they may have drifted from other games since.
// Returns nil (no error) when the user did not take part in the game.
func (s *ResultsService) GetOutcomeExplanation(gameID, userID string) (*OutcomeExplanation, error) {
	game, err := s.loadGameGraph(s.DB, gameID)
	if err != nil {
		return nil, err
	}

	var participant *models.GameParticipant
	for i := range game.Participants {
		if game.Participants[i].UserID == userID {
			participant = &game.Participants[i]
			break
		}
	}
	if participant == nil {
		return nil, nil
	}

	users := make(map[string]models.GameUser, len(game.Participants))
	for _, p := range game.Participants {
		var user models.GameUser
		if err := s.DB.First(&user, "id = ?", p.UserID).Error; err == nil {
			users[p.UserID] = user
		}
	}

	var outcomes []models.GameOutcome
	if err := s.DB.Where("game_id = ?", gameID).Find(&outcomes).Error; err != nil {
		return nil, err
	}

	// Starting levels for every player: the finalize-time snapshot when
	// outcomes exist, the live level otherwise.
	levelsBefore := make(map[string]float64, len(game.Participants))
	if len(outcomes) > 0 {
		for _, o := range outcomes {
			levelsBefore[o.UserID] = o.LevelBefore
		}
	}
	for _, p := range game.Participants {
		if _, ok := levelsBefore[p.UserID]; !ok {
			if u, found := users[p.UserID]; found {
				levelsBefore[p.UserID] = u.Level
			}
		}
	}

	self, hasSelf := users[userID]
	startingLevel := self.Level
	startingReliability := self.Reliability
	gamesPlayed := self.GamesPlayed
	if !hasSelf {
		startingLevel = levelsBefore[userID]
	}
	for _, o := range outcomes {
		if o.UserID == userID {
			startingLevel = o.LevelBefore
			startingReliability = o.ReliabilityBefore
			break
		}
	}

	explained := func(id string) ExplainedPlayer {
		player := ExplainedPlayer{UserID: id, Level: levelsBefore[id]}
		if u, ok := users[id]; ok {
			player.FirstName = u.FirstName
			player.LastName = u.LastName
		}
		return player
	}

	currentLevel := startingLevel

	var matches []MatchExplanation
	totalLevelChange := 0.0
	totalReliabilityChange := 0.0
	wins, losses, draws := 0, 0, 0
	var opponentLevels []float64
	matchNumber := 0

	for _, round := range sortRounds(game.Rounds) {
		for _, match := range round.Matches {
			sideA := SidePlayerIDs(match, models.MatchSideA)
			sideB := SidePlayerIDs(match, models.MatchSideB)

			var ownSide string
			switch {
			case contains(sideA, userID):
				ownSide = models.MatchSideA
			case contains(sideB, userID):
				ownSide = models.MatchSideB
			default:
				continue
			}

			ownIDs, opponentIDs := sideA, sideB
			if ownSide == models.MatchSideB {
				ownIDs, opponentIDs = sideB, sideA
			}
			if len(opponentIDs) == 0 {
				continue
			}

			// unplayed matches contribute nothing, not even to the averages
			valid := ValidSets(match.Sets)
			if len(valid) == 0 {
				continue
			}
			matchNumber++

			opponentLevel := 0.0
			for _, id := range opponentIDs {
				opponentLevel += levelsBefore[id]
			}
			opponentLevel /= float64(len(opponentIDs))
			opponentLevels = append(opponentLevels, opponentLevel)

			ratedSets := make([]RatedSet, 0, len(valid))
			explainedSets := make([]ExplainedSet, 0, len(valid))
			for _, set := range valid {
				own, opp := set.TeamAScore, set.TeamBScore
				if ownSide == models.MatchSideB {
					own, opp = opp, own
				}
				ratedSets = append(ratedSets, RatedSet{OwnScore: own, OpponentScore: opp})
				explainedSets = append(explainedSets, ExplainedSet{OwnScore: own, OpponentScore: opp, Won: own > opp})
			}

			isWinner := match.WinnerSide == ownSide
			isTie := match.WinnerSide == ""

			// reliability stays pinned at the game-start value: the apply
			// path rates every match of a game against it, and only the
			// level threads forward between matches
			update := CalculateRatingUpdate(PlayerRatingState{
				Level:       currentLevel,
				Reliability: startingReliability,
				GamesPlayed: gamesPlayed,
			}, isWinner, opponentLevel, ratedSets, game.BallsInGames)

			levelDifference := opponentLevel - currentLevel
			currentLevel += update.LevelChange
			totalLevelChange += update.LevelChange
			totalReliabilityChange += ReliabilityIncrement

			switch {
			case isWinner:
				wins++
			case isTie:
				draws++
			default:
				losses++
			}

			var teammates []ExplainedPlayer
			for _, id := range ownIDs {
				if id != userID {
					teammates = append(teammates, explained(id))
				}
			}
			var opponents []ExplainedPlayer
			for _, id := range opponentIDs {
				opponents = append(opponents, explained(id))
			}

			matches = append(matches, MatchExplanation{
				MatchNumber:            matchNumber,
				RoundNumber:            round.RoundNumber,
				IsWinner:               isWinner,
				IsTie:                  isTie,
				OpponentLevel:          opponentLevel,
				LevelDifference:        levelDifference,
				LevelChange:            update.LevelChange,
				ReliabilityChange:      ReliabilityIncrement,
				PointsEarned:           update.PointsEarned,
				Multiplier:             update.Multiplier,
				TotalPointDifferential: update.TotalPointDifferential,
				EnduranceCoefficient:   update.EnduranceCoefficient,
				Teammates:              teammates,
				Opponents:              opponents,
				Sets:                   explainedSets,
			})
		}
	}

	averageOpponentLevel := 0.0
	if len(opponentLevels) > 0 {
		for _, l := range opponentLevels {
			averageOpponentLevel += l
		}
		averageOpponentLevel /= float64(len(opponentLevels))
	}

	socialBoosts, err := SocialBoostBreakdownFor(s.DB, gameID, userID)
	if err != nil {
		return nil, err
	}

	return &OutcomeExplanation{
		UserID:              userID,
		StartingLevel:       startingLevel,
		StartingReliability: startingReliability,
		GamesPlayed:         gamesPlayed,
		LevelChange:         totalLevelChange,
		ReliabilityChange:   totalReliabilityChange,
		Matches:             matches,
		Summary: ExplanationSummary{
			TotalMatches:         len(matches),
			Wins:                 wins,
			Losses:               losses,
			Draws:                draws,
			AverageOpponentLevel: averageOpponentLevel,
		},
		SocialBoosts: socialBoosts,
	}, nil
}
