package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	GenderMale   = "MALE"
	GenderFemale = "FEMALE"
)

// GameUser is a local snapshot of user data plus the rating state this
// service owns. Profile fields are populated by the sync worker from the
// Profile Service; rating fields (level, reliability, social level and the
// cumulative counters) are mutated only through the results service.
type GameUser struct {
	ID                string  `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID    string  `gorm:"uniqueIndex;not null" json:"external_user_id"`
	Username          string  `gorm:"index;not null" json:"username"`
	Email             string  `json:"email,omitempty"`
	FirstName         *string `json:"first_name,omitempty"`
	LastName          *string `json:"last_name,omitempty"`
	ProfilePictureURL *string `json:"profile_picture_url,omitempty"`
	Gender            string  `gorm:"type:varchar(8)" json:"gender"`

	// Rating state. Level lives in [1.0, 7.0], reliability in [0.0, 100.0],
	// social level is unbounded and never decreases except through undo.
	Level       float64 `gorm:"default:1.0" json:"level"`
	Reliability float64 `gorm:"default:0" json:"reliability"`
	SocialLevel float64 `gorm:"default:0" json:"social_level"`

	TotalPoints int `gorm:"default:0" json:"total_points"`
	GamesPlayed int `gorm:"default:0" json:"games_played"`
	GamesWon    int `gorm:"default:0" json:"games_won"`

	LastSeen *time.Time `json:"last_seen,omitempty"`
	IsBanned bool       `json:"is_banned" gorm:"default:false"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
