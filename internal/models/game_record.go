package models

import (
	"time"

	"gorm.io/datatypes"
)

// GameRecord archives a finished or cancelled session.
type GameRecord struct {
	ID           string            `gorm:"primaryKey;size:64" json:"id"`
	Mode         string            `gorm:"size:32;not null" json:"mode"`
	Language     string            `gorm:"size:32;not null" json:"language"`
	State        string            `gorm:"size:32;not null;index" json:"state"`
	CreatorID    string            `gorm:"size:64;not null" json:"creator_id"`
	WinnerID     *string           `gorm:"size:64" json:"winner_id"`
	RoundsPlayed int               `gorm:"not null" json:"rounds_played"`
	FinalScores  datatypes.JSONMap `gorm:"type:json" json:"final_scores"`
	Snapshot     datatypes.JSON    `gorm:"type:json" json:"-"`
	StartedAt    *time.Time        `json:"started_at"`
	EndedAt      *time.Time        `json:"ended_at"`
	Participants []GameParticipant `gorm:"foreignKey:GameID;constraint:OnDelete:CASCADE" json:"participants"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// GameParticipant is one player's line in an archived game.
type GameParticipant struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	GameID      string `gorm:"size:64;not null;uniqueIndex:idx_game_participant" json:"game_id"`
	UserID      string `gorm:"size:64;not null;uniqueIndex:idx_game_participant;index" json:"user_id"`
	DisplayName string `gorm:"size:64" json:"display_name"`
	Score       int    `gorm:"not null" json:"score"`
	Won         bool   `gorm:"not null" json:"won"`
}
