package services

import (
	"testing"

	"game-results-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOutcomeExplanationReproducesStoredOutcome(t *testing.T) {
	db := setupTestDB(t)
	s := NewResultsService(db)
	gameID := seedTwoPlayerGame(t, db, seedGameOptions{affectsRating: true, pointsPerWin: 3})

	_, err := s.RecalculateOutcomes(gameID)
	require.NoError(t, err)

	explanation, err := s.GetOutcomeExplanation(gameID, "u1")
	require.NoError(t, err)
	require.NotNil(t, explanation)

	var stored models.GameOutcome
	require.NoError(t, db.Where("game_id = ? AND user_id = ?", gameID, "u1").First(&stored).Error)

	// the replay must land exactly on the stored totals
	assert.Equal(t, stored.LevelBefore, explanation.StartingLevel)
	assert.Equal(t, stored.ReliabilityBefore, explanation.StartingReliability)
	assert.InDelta(t, stored.LevelChange, explanation.LevelChange, 1e-9)
	assert.InDelta(t, stored.ReliabilityChange, explanation.ReliabilityChange, 1e-9)

	require.Len(t, explanation.Matches, 1)
	match := explanation.Matches[0]
	assert.True(t, match.IsWinner)
	assert.False(t, match.IsTie)
	assert.Equal(t, 2.0, match.OpponentLevel)
	assert.Equal(t, 2, match.TotalPointDifferential)
	assert.InDelta(t, 0.3+0.7*(2.0/3.0), match.Multiplier, 1e-9)
	assert.InDelta(t, 0.5, match.EnduranceCoefficient, 1e-9)
	require.Len(t, match.Sets, 1)
	assert.Equal(t, 6, match.Sets[0].OwnScore)
	assert.Equal(t, 4, match.Sets[0].OpponentScore)
	assert.True(t, match.Sets[0].Won)
	require.Len(t, match.Opponents, 1)
	assert.Equal(t, "u2", match.Opponents[0].UserID)
	assert.Empty(t, match.Teammates)

	assert.Equal(t, 1, explanation.Summary.TotalMatches)
	assert.Equal(t, 1, explanation.Summary.Wins)
	assert.Equal(t, 0, explanation.Summary.Losses)
	assert.Equal(t, 2.0, explanation.Summary.AverageOpponentLevel)

	require.Len(t, explanation.SocialBoosts, 1)
	assert.Equal(t, "u2", explanation.SocialBoosts[0].OtherUserID)
}

func TestGetOutcomeExplanationReproducesMultiMatchOutcome(t *testing.T) {
	db := setupTestDB(t)
	s := NewResultsService(db)
	gameID := seedTwoPlayerGame(t, db, seedGameOptions{affectsRating: true})

	// a second decided match between the same players, plus one unplayed
	require.NoError(t, db.Create(&models.Match{ID: "m2", RoundID: "r1", MatchNumber: 2}).Error)
	require.NoError(t, db.Create(&models.MatchPlayer{MatchID: "m2", UserID: "u1", Side: models.MatchSideA}).Error)
	require.NoError(t, db.Create(&models.MatchPlayer{MatchID: "m2", UserID: "u2", Side: models.MatchSideB}).Error)
	require.NoError(t, db.Create(&models.SetScore{MatchID: "m2", SetNumber: 1, TeamAScore: 6, TeamBScore: 2}).Error)

	require.NoError(t, db.Create(&models.Match{ID: "m3", RoundID: "r1", MatchNumber: 3}).Error)
	require.NoError(t, db.Create(&models.MatchPlayer{MatchID: "m3", UserID: "u1", Side: models.MatchSideA}).Error)
	require.NoError(t, db.Create(&models.MatchPlayer{MatchID: "m3", UserID: "u2", Side: models.MatchSideB}).Error)
	require.NoError(t, db.Create(&models.SetScore{MatchID: "m3", SetNumber: 1, TeamAScore: 0, TeamBScore: 0}).Error)

	_, err := s.RecalculateOutcomes(gameID)
	require.NoError(t, err)

	for _, uid := range []string{"u1", "u2"} {
		explanation, err := s.GetOutcomeExplanation(gameID, uid)
		require.NoError(t, err)
		require.NotNil(t, explanation)

		var stored models.GameOutcome
		require.NoError(t, db.Where("game_id = ? AND user_id = ?", gameID, uid).First(&stored).Error)
		assert.InDelta(t, stored.LevelChange, explanation.LevelChange, 1e-9, "user %s", uid)
		assert.InDelta(t, stored.ReliabilityChange, explanation.ReliabilityChange, 1e-9, "user %s", uid)

		// the unplayed match is invisible everywhere, averages included
		assert.Equal(t, 2, explanation.Summary.TotalMatches)
		require.Len(t, explanation.Matches, 2)
		assert.InDelta(t, 2.0, explanation.Summary.AverageOpponentLevel, 1e-9)
	}
}

func TestGetOutcomeExplanationUsesSnapshotsNotLiveLevels(t *testing.T) {
	db := setupTestDB(t)
	s := NewResultsService(db)
	gameID := seedTwoPlayerGame(t, db, seedGameOptions{affectsRating: true})

	_, err := s.RecalculateOutcomes(gameID)
	require.NoError(t, err)

	// levels drift after finalize (other games); the explanation must not care
	require.NoError(t, db.Model(&models.GameUser{}).Where("id = ?", "u1").Update("level", 5.0).Error)
	require.NoError(t, db.Model(&models.GameUser{}).Where("id = ?", "u2").Update("level", 6.0).Error)

	explanation, err := s.GetOutcomeExplanation(gameID, "u1")
	require.NoError(t, err)
	require.NotNil(t, explanation)

	assert.Equal(t, 2.0, explanation.StartingLevel)
	require.Len(t, explanation.Matches, 1)
	assert.Equal(t, 2.0, explanation.Matches[0].OpponentLevel)
}

func TestGetOutcomeExplanationLoserSide(t *testing.T) {
	db := setupTestDB(t)
	s := NewResultsService(db)
	gameID := seedTwoPlayerGame(t, db, seedGameOptions{affectsRating: true})

	_, err := s.RecalculateOutcomes(gameID)
	require.NoError(t, err)

	explanation, err := s.GetOutcomeExplanation(gameID, "u2")
	require.NoError(t, err)
	require.NotNil(t, explanation)

	require.Len(t, explanation.Matches, 1)
	match := explanation.Matches[0]
	assert.False(t, match.IsWinner)
	// scores flip to u2's perspective
	assert.Equal(t, 4, match.Sets[0].OwnScore)
	assert.Equal(t, 6, match.Sets[0].OpponentScore)
	assert.Equal(t, -2, match.TotalPointDifferential)
	assert.Equal(t, 1, explanation.Summary.Losses)

	var stored models.GameOutcome
	require.NoError(t, db.Where("game_id = ? AND user_id = ?", gameID, "u2").First(&stored).Error)
	assert.InDelta(t, stored.LevelChange, explanation.LevelChange, 1e-9)
	assert.Less(t, explanation.LevelChange, 0.0)
}

func TestGetOutcomeExplanationNonParticipant(t *testing.T) {
	db := setupTestDB(t)
	s := NewResultsService(db)
	gameID := seedTwoPlayerGame(t, db, seedGameOptions{affectsRating: true})

	explanation, err := s.GetOutcomeExplanation(gameID, "stranger")
	require.NoError(t, err)
	assert.Nil(t, explanation)
}

func TestGetOutcomeExplanationBeforeFinalizeUsesLiveLevels(t *testing.T) {
	db := setupTestDB(t)
	s := NewResultsService(db)
	gameID := seedTwoPlayerGame(t, db, seedGameOptions{affectsRating: true})

	// no outcomes yet; winner sides are also still empty, so matches replay
	// as ties against live levels
	explanation, err := s.GetOutcomeExplanation(gameID, "u1")
	require.NoError(t, err)
	require.NotNil(t, explanation)
	assert.Equal(t, 2.0, explanation.StartingLevel)
	require.Len(t, explanation.Matches, 1)
	assert.True(t, explanation.Matches[0].IsTie)
}
