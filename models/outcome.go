// models/outcome.go
package models

import "time"

const (
	LevelEventGame   = "GAME"
	LevelEventSocial = "SOCIAL_PARTICIPANT"
	LevelEventManual = "SET"
)

// GameOutcome is the finalized per-player result of a game: position,
// before/after rating snapshots and the per-player match tallies. Upserted
// on finalize, deleted on edit/reset. One row per (game, user).
type GameOutcome struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	GameID string `gorm:"index;not null;uniqueIndex:idx_outcome_game_user" json:"game_id"`
	UserID string `gorm:"index;not null;uniqueIndex:idx_outcome_game_user" json:"user_id"`

	Position int  `gorm:"default:0" json:"position"`
	IsWinner bool `gorm:"default:false" json:"is_winner"`

	LevelBefore float64 `json:"level_before"`
	LevelAfter  float64 `json:"level_after"`
	LevelChange float64 `json:"level_change"`

	ReliabilityBefore float64 `json:"reliability_before"`
	ReliabilityAfter  float64 `json:"reliability_after"`
	ReliabilityChange float64 `json:"reliability_change"`

	// PointsEarned is reward currency (win/tie/loss weighted by the game's
	// configured points), not the level-points used inside the rating math.
	PointsEarned int `gorm:"default:0" json:"points_earned"`

	MatchesWon  int `gorm:"default:0" json:"matches_won"`
	Wins        int `gorm:"default:0" json:"wins"`
	Ties        int `gorm:"default:0" json:"ties"`
	Losses      int `gorm:"default:0" json:"losses"`
	TotalPoints int `gorm:"default:0" json:"total_points"` // scores made across all sets
	ScoresDelta int `gorm:"default:0" json:"scores_delta"`

	Timestamps
}

// RoundOutcome stores the per-round level delta for history display.
type RoundOutcome struct {
	ID          string  `gorm:"primaryKey;type:uuid" json:"id"`
	GameID      string  `gorm:"index;not null" json:"game_id"`
	RoundID     string  `gorm:"index;not null;uniqueIndex:idx_round_outcome" json:"round_id"`
	UserID      string  `gorm:"index;not null;uniqueIndex:idx_round_outcome" json:"user_id"`
	LevelChange float64 `json:"level_change"`

	Timestamps
}

// LevelChangeEvent is an append-only ledger of why a user's level (or
// social level, for SOCIAL_PARTICIPANT events) changed. Rows are never
// updated; apply creates them and undo deletes them.
type LevelChangeEvent struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string    `gorm:"index;not null" json:"user_id"`
	GameID      *string   `gorm:"index" json:"game_id,omitempty"`
	EventType   string    `gorm:"type:varchar(20);not null" json:"event_type"`
	LevelBefore float64   `json:"level_before"`
	LevelAfter  float64   `json:"level_after"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}
