// models/game.go
package models

import (
	"time"
)

const (
	WinnerRuleByMatchesWon  = "BY_MATCHES_WON"
	WinnerRuleByPoints      = "BY_POINTS"
	WinnerRuleByScoresDelta = "BY_SCORES_DELTA"
	WinnerRulePlayoffFinals = "PLAYOFF_FINALS"
)

const (
	MatchWinnerRuleBySets   = "BY_SETS"
	MatchWinnerRuleByScores = "BY_SCORES"
)

const (
	ResultsStatusNone       = "NONE"
	ResultsStatusInProgress = "IN_PROGRESS"
	ResultsStatusFinal      = "FINAL"
)

const (
	EntityTypeGame         = "GAME"
	EntityTypeTournament   = "TOURNAMENT"
	EntityTypeTraining     = "TRAINING"
	EntityTypeBar          = "BAR"
	EntityTypeLeagueSeason = "LEAGUE_SEASON"
)

const (
	RoleOwner       = "OWNER"
	RoleAdmin       = "ADMIN"
	RoleParticipant = "PARTICIPANT"
)

const (
	MatchSideA = "A"
	MatchSideB = "B"
)

// Game is a competitive event: rounds of matches between two sides, with a
// configurable winner rule and a replayable results lifecycle
// (NONE → IN_PROGRESS → FINAL, reversible via edit/reset).
type Game struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	Name       string `gorm:"not null" json:"name"`
	Slug       string `gorm:"index" json:"slug"`
	EntityType string `gorm:"type:varchar(16);default:'GAME'" json:"entity_type"`
	ParentID   *string `gorm:"index" json:"parent_id,omitempty"` // e.g. league season this game belongs to

	WinnerRule      string `gorm:"type:varchar(20);default:'BY_MATCHES_WON'" json:"winner_rule"`
	MatchWinnerRule string `gorm:"type:varchar(12);default:'BY_SCORES'" json:"match_winner_rule"`
	PointsPerWin    int    `gorm:"default:0" json:"points_per_win"`
	PointsPerTie    int    `gorm:"default:0" json:"points_per_tie"`
	PointsPerLoose  int    `gorm:"default:0" json:"points_per_loose"`

	HasFixedTeams bool `gorm:"default:false" json:"has_fixed_teams"`
	MixedPairs    bool `gorm:"default:false" json:"mixed_pairs"`
	AffectsRating bool `gorm:"default:true" json:"affects_rating"`
	BallsInGames  bool `gorm:"default:false" json:"balls_in_games"`

	ResultsStatus string     `gorm:"type:varchar(12);default:'NONE'" json:"results_status"`
	FinishedDate  *time.Time `json:"finished_date,omitempty"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`

	Rounds       []Round           `gorm:"foreignKey:GameID" json:"rounds,omitempty"`
	Participants []GameParticipant `gorm:"foreignKey:GameID" json:"participants,omitempty"`
	FixedTeams   []FixedTeam       `gorm:"foreignKey:GameID" json:"fixed_teams,omitempty"`

	Timestamps
}

// Round groups matches; rounds replay in RoundNumber order.
type Round struct {
	ID          string  `gorm:"primaryKey;type:uuid" json:"id"`
	GameID      string  `gorm:"index;not null" json:"game_id"`
	RoundNumber int     `gorm:"not null" json:"round_number"`
	Matches     []Match `gorm:"foreignKey:RoundID" json:"matches,omitempty"`

	Timestamps
}

// Match is played between side A and side B, each with 1+ players.
// WinnerSide is recomputed from set scores on every recalculation;
// empty means tie or not yet decided.
type Match struct {
	ID          string        `gorm:"primaryKey;type:uuid" json:"id"`
	RoundID     string        `gorm:"index;not null" json:"round_id"`
	MatchNumber int           `gorm:"not null" json:"match_number"`
	WinnerSide  string        `gorm:"type:varchar(1)" json:"winner_side"`
	Players     []MatchPlayer `gorm:"foreignKey:MatchID" json:"players,omitempty"`
	Sets        []SetScore    `gorm:"foreignKey:MatchID" json:"sets,omitempty"`

	Timestamps
}

// MatchPlayer assigns a user to one side of a match.
type MatchPlayer struct {
	ID      string `gorm:"primaryKey;type:uuid" json:"id"`
	MatchID string `gorm:"index;not null" json:"match_id"`
	UserID  string `gorm:"index;not null" json:"user_id"`
	Side    string `gorm:"type:varchar(1);not null" json:"side"`
}

// SetScore is one set of a match. A set with both scores zero is unplayed
// and never contributes to aggregation.
type SetScore struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	MatchID    string `gorm:"index;not null" json:"match_id"`
	SetNumber  int    `gorm:"not null" json:"set_number"`
	TeamAScore int    `gorm:"default:0" json:"team_a_score"`
	TeamBScore int    `gorm:"default:0" json:"team_b_score"`
	IsTieBreak bool   `gorm:"default:false" json:"is_tie_break"`
}

// GameParticipant links a user to a game with an organizational role.
// ParentRole carries the role the user holds on the parent event (league
// season etc.), which feeds the social-level role multiplier.
type GameParticipant struct {
	ID          string  `gorm:"primaryKey;type:uuid" json:"id"`
	GameID      string  `gorm:"index;not null;uniqueIndex:idx_game_participant" json:"game_id"`
	UserID      string  `gorm:"index;not null;uniqueIndex:idx_game_participant" json:"user_id"`
	Role        string  `gorm:"type:varchar(16);default:'PARTICIPANT'" json:"role"`
	ParentRole  string  `gorm:"type:varchar(16)" json:"parent_role,omitempty"`
	Gender      string  `gorm:"type:varchar(8)" json:"gender"`
	IsPlaying   bool    `gorm:"default:true" json:"is_playing"`
	FixedTeamID *string `gorm:"index" json:"fixed_team_id,omitempty"`

	Timestamps
}

// FixedTeam is a team whose membership is set before any round is played.
type FixedTeam struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	GameID     string `gorm:"index;not null" json:"game_id"`
	TeamNumber int    `gorm:"not null" json:"team_number"`
	Name       string `json:"name"`

	Timestamps
}
