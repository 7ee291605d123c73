package models

import (
	"time"

	"gorm.io/datatypes"
)

// SecurityEvent is an audited anti-cheat escalation.
type SecurityEvent struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	EventType string            `gorm:"size:64;not null;index" json:"event_type"`
	Severity  string            `gorm:"size:16;not null" json:"severity"`
	SessionID string            `gorm:"size:64;index" json:"session_id"`
	UserID    string            `gorm:"size:64;index" json:"user_id"`
	Details   datatypes.JSONMap `gorm:"type:json" json:"details"`
	CreatedAt time.Time         `json:"created_at"`
}
