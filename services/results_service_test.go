package services

import (
	"testing"
	"time"

	"game-results-system/models"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.GameUser{},
		&models.Game{},
		&models.Round{},
		&models.Match{},
		&models.MatchPlayer{},
		&models.SetScore{},
		&models.GameParticipant{},
		&models.FixedTeam{},
		&models.GameOutcome{},
		&models.RoundOutcome{},
		&models.LevelChangeEvent{},
	))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, id string, level float64) {
	t.Helper()
	require.NoError(t, db.Create(&models.GameUser{
		ID:             id,
		ExternalUserID: "ext-" + id,
		Username:       id,
		Level:          level,
	}).Error)
}

type seedGameOptions struct {
	entityType    string
	winnerRule    string
	affectsRating bool
	pointsPerWin  int
}

// seedTwoPlayerGame creates users u1, u2 at level 2.0 and one game with a
// single 6-4 match between them, results IN_PROGRESS.
func seedTwoPlayerGame(t *testing.T, db *gorm.DB, opts seedGameOptions) string {
	t.Helper()
	seedUser(t, db, "u1", 2.0)
	seedUser(t, db, "u2", 2.0)

	if opts.entityType == "" {
		opts.entityType = models.EntityTypeGame
	}
	if opts.winnerRule == "" {
		opts.winnerRule = models.WinnerRuleByScoresDelta
	}

	game := models.Game{
		ID:              "g1",
		Name:            "Friday Night Padel",
		Slug:            "friday-night-padel",
		EntityType:      opts.entityType,
		WinnerRule:      opts.winnerRule,
		MatchWinnerRule: models.MatchWinnerRuleByScores,
		PointsPerWin:    opts.pointsPerWin,
		AffectsRating:   opts.affectsRating,
		ResultsStatus:   models.ResultsStatusInProgress,
		StartTime:       time.Now().Add(-time.Hour),
	}
	require.NoError(t, db.Create(&game).Error)

	for _, uid := range []string{"u1", "u2"} {
		require.NoError(t, db.Create(&models.GameParticipant{
			GameID: "g1", UserID: uid, Role: models.RoleParticipant, IsPlaying: true,
		}).Error)
	}

	round := models.Round{ID: "r1", GameID: "g1", RoundNumber: 1}
	require.NoError(t, db.Create(&round).Error)
	match := models.Match{ID: "m1", RoundID: "r1", MatchNumber: 1}
	require.NoError(t, db.Create(&match).Error)
	require.NoError(t, db.Create(&models.MatchPlayer{MatchID: "m1", UserID: "u1", Side: models.MatchSideA}).Error)
	require.NoError(t, db.Create(&models.MatchPlayer{MatchID: "m1", UserID: "u2", Side: models.MatchSideB}).Error)
	require.NoError(t, db.Create(&models.SetScore{MatchID: "m1", SetNumber: 1, TeamAScore: 6, TeamBScore: 4}).Error)

	return "g1"
}

// expectedWinnerDelta is the level change for winning 6-4 at equal levels
// with zero reliability.
func expectedWinnerDelta() float64 {
	return 0.05 * (0.3 + 0.7*(2.0/3.0)) * 0.5
}

func TestRecalculateOutcomesFinalizesGame(t *testing.T) {
	db := setupTestDB(t)
	s := NewResultsService(db)
	gameID := seedTwoPlayerGame(t, db, seedGameOptions{affectsRating: true, pointsPerWin: 3})

	view, err := s.RecalculateOutcomes(gameID)
	require.NoError(t, err)

	assert.Equal(t, models.ResultsStatusFinal, view.ResultsStatus)
	assert.False(t, view.WasEdit)
	assert.True(t, view.ShouldResolveBets)
	require.NotNil(t, view.FinishedDate)
	require.Len(t, view.Outcomes, 2)

	var winner models.GameOutcome
	require.NoError(t, db.Where("game_id = ? AND user_id = ?", gameID, "u1").First(&winner).Error)
	assert.Equal(t, 1, winner.Position)
	assert.True(t, winner.IsWinner)
	assert.Equal(t, 2.0, winner.LevelBefore)
	assert.InDelta(t, expectedWinnerDelta(), winner.LevelChange, 1e-9)
	assert.InDelta(t, ReliabilityIncrement, winner.ReliabilityChange, 1e-9)
	assert.Equal(t, 3, winner.PointsEarned)
	assert.Equal(t, 1, winner.MatchesWon)
	assert.Equal(t, 2, winner.ScoresDelta)

	var u1, u2 models.GameUser
	require.NoError(t, db.First(&u1, "id = ?", "u1").Error)
	require.NoError(t, db.First(&u2, "id = ?", "u2").Error)
	assert.InDelta(t, 2.0+expectedWinnerDelta(), u1.Level, 1e-9)
	assert.InDelta(t, 2.0-expectedWinnerDelta(), u2.Level, 1e-9)
	assert.InDelta(t, 0.1, u1.Reliability, 1e-9)
	assert.Equal(t, 1, u1.GamesPlayed)
	assert.Equal(t, 1, u1.GamesWon)
	assert.Equal(t, 0, u2.GamesWon)
	assert.Equal(t, 3, u1.TotalPoints)

	// first-time co-players: full social boost on both sides
	assert.InDelta(t, MaxBoostPerRelationship, u1.SocialLevel, 1e-9)
	assert.InDelta(t, MaxBoostPerRelationship, u2.SocialLevel, 1e-9)

	var events int64
	db.Model(&models.LevelChangeEvent{}).
		Where("game_id = ? AND event_type = ?", gameID, models.LevelEventGame).Count(&events)
	assert.EqualValues(t, 2, events)

	var roundOutcomes int64
	db.Model(&models.RoundOutcome{}).Where("game_id = ?", gameID).Count(&roundOutcomes)
	assert.EqualValues(t, 2, roundOutcomes)
}

func TestRecalculateOutcomesIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	s := NewResultsService(db)
	gameID := seedTwoPlayerGame(t, db, seedGameOptions{affectsRating: true, pointsPerWin: 3})

	first, err := s.RecalculateOutcomes(gameID)
	require.NoError(t, err)
	second, err := s.RecalculateOutcomes(gameID)
	require.NoError(t, err)

	assert.True(t, second.WasEdit)
	assert.False(t, second.ShouldResolveBets)
	assert.Equal(t, first.FinishedDate.Unix(), second.FinishedDate.Unix())

	// no stat drift: user rows identical to a single application
	var u1 models.GameUser
	require.NoError(t, db.First(&u1, "id = ?", "u1").Error)
	assert.InDelta(t, 2.0+expectedWinnerDelta(), u1.Level, 1e-9)
	assert.InDelta(t, 0.1, u1.Reliability, 1e-9)
	assert.Equal(t, 1, u1.GamesPlayed)
	assert.Equal(t, 1, u1.GamesWon)
	assert.Equal(t, 3, u1.TotalPoints)
	assert.InDelta(t, MaxBoostPerRelationship, u1.SocialLevel, 1e-9)

	var outcomeCount int64
	db.Model(&models.GameOutcome{}).Where("game_id = ?", gameID).Count(&outcomeCount)
	assert.EqualValues(t, 2, outcomeCount)
}

func TestRecalculateOutcomesRejectsTooFewPlayers(t *testing.T) {
	db := setupTestDB(t)
	s := NewResultsService(db)
	seedUser(t, db, "solo", 2.0)
	require.NoError(t, db.Create(&models.Game{
		ID: "g1", Name: "Solo", WinnerRule: models.WinnerRuleByMatchesWon,
		MatchWinnerRule: models.MatchWinnerRuleByScores,
		ResultsStatus:   models.ResultsStatusInProgress, StartTime: time.Now(),
	}).Error)
	require.NoError(t, db.Create(&models.GameParticipant{GameID: "g1", UserID: "solo", IsPlaying: true}).Error)

	_, err := s.RecalculateOutcomes("g1")
	var fe *fiber.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 400, fe.Code)
}

func TestRecalculateOutcomesUnknownGame(t *testing.T) {
	db := setupTestDB(t)
	s := NewResultsService(db)

	_, err := s.RecalculateOutcomes("missing")
	var fe *fiber.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 404, fe.Code)
}

func TestRecalculateSkipsRatingWhenGameDoesNotAffectIt(t *testing.T) {
	db := setupTestDB(t)
	s := NewResultsService(db)
	gameID := seedTwoPlayerGame(t, db, seedGameOptions{affectsRating: false, pointsPerWin: 3})

	view, err := s.RecalculateOutcomes(gameID)
	require.NoError(t, err)
	require.Len(t, view.Outcomes, 2)

	// outcomes are stored, but user rating state is untouched
	var u1 models.GameUser
	require.NoError(t, db.First(&u1, "id = ?", "u1").Error)
	assert.Equal(t, 2.0, u1.Level)
	assert.Equal(t, 0.0, u1.Reliability)
	assert.Equal(t, 0, u1.GamesPlayed)

	var events int64
	db.Model(&models.LevelChangeEvent{}).
		Where("game_id = ? AND event_type = ?", gameID, models.LevelEventGame).Count(&events)
	assert.EqualValues(t, 0, events)
}

func TestEditResultsRollsBackAndReopens(t *testing.T) {
	db := setupTestDB(t)
	s := NewResultsService(db)
	gameID := seedTwoPlayerGame(t, db, seedGameOptions{affectsRating: true, pointsPerWin: 3})

	_, err := s.RecalculateOutcomes(gameID)
	require.NoError(t, err)
	require.NoError(t, s.EditResults(gameID))

	var game models.Game
	require.NoError(t, db.First(&game, "id = ?", gameID).Error)
	assert.Equal(t, models.ResultsStatusInProgress, game.ResultsStatus)
	// FinishedDate survives an edit; only reset clears it
	assert.NotNil(t, game.FinishedDate)

	var u1 models.GameUser
	require.NoError(t, db.First(&u1, "id = ?", "u1").Error)
	assert.Equal(t, 2.0, u1.Level)
	assert.Equal(t, 0.0, u1.Reliability)
	assert.Equal(t, 0, u1.GamesPlayed)
	assert.Equal(t, 0, u1.GamesWon)
	assert.Equal(t, 0, u1.TotalPoints)
	assert.Equal(t, 0.0, u1.SocialLevel)

	var outcomes, rounds int64
	db.Model(&models.GameOutcome{}).Where("game_id = ?", gameID).Count(&outcomes)
	assert.EqualValues(t, 0, outcomes)
	// recorded rounds and scores stay
	db.Model(&models.Round{}).Where("game_id = ?", gameID).Count(&rounds)
	assert.EqualValues(t, 1, rounds)
}

func TestEditResultsRequiresFinalStatus(t *testing.T) {
	db := setupTestDB(t)
	s := NewResultsService(db)
	gameID := seedTwoPlayerGame(t, db, seedGameOptions{affectsRating: true})

	err := s.EditResults(gameID)
	var fe *fiber.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 400, fe.Code)
}

func TestResetResultsDropsEverything(t *testing.T) {
	db := setupTestDB(t)
	s := NewResultsService(db)
	gameID := seedTwoPlayerGame(t, db, seedGameOptions{affectsRating: true, pointsPerWin: 3})

	_, err := s.RecalculateOutcomes(gameID)
	require.NoError(t, err)
	require.NoError(t, s.ResetResults(gameID))

	var game models.Game
	require.NoError(t, db.First(&game, "id = ?", gameID).Error)
	assert.Equal(t, models.ResultsStatusNone, game.ResultsStatus)
	assert.Nil(t, game.FinishedDate)

	var u1 models.GameUser
	require.NoError(t, db.First(&u1, "id = ?", "u1").Error)
	assert.Equal(t, 2.0, u1.Level)
	assert.Equal(t, 0, u1.GamesPlayed)

	var rounds, matches, sets, outcomes int64
	db.Model(&models.Round{}).Where("game_id = ?", gameID).Count(&rounds)
	db.Model(&models.Match{}).Count(&matches)
	db.Model(&models.SetScore{}).Count(&sets)
	db.Model(&models.GameOutcome{}).Where("game_id = ?", gameID).Count(&outcomes)
	assert.EqualValues(t, 0, rounds)
	assert.EqualValues(t, 0, matches)
	assert.EqualValues(t, 0, sets)
	assert.EqualValues(t, 0, outcomes)
}

func TestResetResultsClearsManualLevelEvents(t *testing.T) {
	db := setupTestDB(t)
	s := NewResultsService(db)
	gameID := seedTwoPlayerGame(t, db, seedGameOptions{
		entityType: models.EntityTypeTraining, affectsRating: true,
	})

	_, err := s.RecalculateOutcomes(gameID)
	require.NoError(t, err)
	require.NoError(t, s.SetParticipantLevel(gameID, "u1", 3.5, 20.0))
	require.NoError(t, s.ResetResults(gameID))

	// no ledger rows of any kind survive a reset
	var events int64
	db.Model(&models.LevelChangeEvent{}).Where("game_id = ?", gameID).Count(&events)
	assert.EqualValues(t, 0, events)

	var u1 models.GameUser
	require.NoError(t, db.First(&u1, "id = ?", "u1").Error)
	assert.Equal(t, 2.0, u1.Level)
}

func TestRecalculateUserReliability(t *testing.T) {
	db := setupTestDB(t)
	s := NewResultsService(db)
	gameID := seedTwoPlayerGame(t, db, seedGameOptions{affectsRating: true})

	_, err := s.RecalculateOutcomes(gameID)
	require.NoError(t, err)

	// drift the stored value, then rebuild from outcomes
	require.NoError(t, db.Model(&models.GameUser{}).Where("id = ?", "u1").
		Update("reliability", 55.0).Error)

	reliability, err := s.RecalculateUserReliability("u1")
	require.NoError(t, err)
	assert.InDelta(t, ReliabilityIncrement, reliability, 1e-9)

	var u1 models.GameUser
	require.NoError(t, db.First(&u1, "id = ?", "u1").Error)
	assert.InDelta(t, ReliabilityIncrement, u1.Reliability, 1e-9)
}

func TestSetParticipantLevelOnlyOnFinishedTrainings(t *testing.T) {
	db := setupTestDB(t)
	s := NewResultsService(db)

	// regular game: rejected regardless of status
	gameID := seedTwoPlayerGame(t, db, seedGameOptions{affectsRating: true})
	_, err := s.RecalculateOutcomes(gameID)
	require.NoError(t, err)
	err = s.SetParticipantLevel(gameID, "u1", 3.5, 1.0)
	var fe *fiber.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 400, fe.Code)
}

func TestSetParticipantLevelOnTraining(t *testing.T) {
	db := setupTestDB(t)
	s := NewResultsService(db)
	gameID := seedTwoPlayerGame(t, db, seedGameOptions{
		entityType: models.EntityTypeTraining, affectsRating: true,
	})

	_, err := s.RecalculateOutcomes(gameID)
	require.NoError(t, err)

	require.NoError(t, s.SetParticipantLevel(gameID, "u1", 3.5, 20.0))

	var u1 models.GameUser
	require.NoError(t, db.First(&u1, "id = ?", "u1").Error)
	assert.Equal(t, 3.5, u1.Level)
	assert.Equal(t, 20.0, u1.Reliability)

	var outcome models.GameOutcome
	require.NoError(t, db.Where("game_id = ? AND user_id = ?", gameID, "u1").First(&outcome).Error)
	assert.Equal(t, 3.5, outcome.LevelAfter)
	assert.Equal(t, 2.0, outcome.LevelBefore) // pre-game snapshot preserved

	var manualEvents int64
	db.Model(&models.LevelChangeEvent{}).
		Where("game_id = ? AND user_id = ? AND event_type = ?", gameID, "u1", models.LevelEventManual).
		Count(&manualEvents)
	assert.EqualValues(t, 1, manualEvents)

	// setting again replaces the manual event instead of stacking
	require.NoError(t, s.SetParticipantLevel(gameID, "u1", 3.0, 20.0))
	db.Model(&models.LevelChangeEvent{}).
		Where("game_id = ? AND user_id = ? AND event_type = ?", gameID, "u1", models.LevelEventManual).
		Count(&manualEvents)
	assert.EqualValues(t, 1, manualEvents)
}

func TestStandingsPreviewDoesNotMutate(t *testing.T) {
	db := setupTestDB(t)
	gs := NewGameService(db)
	gameID := seedTwoPlayerGame(t, db, seedGameOptions{affectsRating: true})

	standings, err := gs.StandingsPreview(gameID)
	require.NoError(t, err)
	require.Len(t, standings, 2)
	assert.Equal(t, "u1", standings[0].UserID)
	assert.Equal(t, 1, standings[0].Place)

	// nothing persisted: no outcomes, winner side still undecided in DB
	var outcomes int64
	db.Model(&models.GameOutcome{}).Where("game_id = ?", gameID).Count(&outcomes)
	assert.EqualValues(t, 0, outcomes)

	var match models.Match
	require.NoError(t, db.First(&match, "id = ?", "m1").Error)
	assert.Equal(t, "", match.WinnerSide)

	var u1 models.GameUser
	require.NoError(t, db.First(&u1, "id = ?", "u1").Error)
	assert.Equal(t, 2.0, u1.Level)
}
