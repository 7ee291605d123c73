package dto

import (
	"time"

	"github.com/noah-isme/gema-arena/internal/models"
)

// SecurityEventListRequest filters the anti-cheat audit trail.
type SecurityEventListRequest struct {
	SessionID string `query:"session_id"`
	UserID    string `query:"user_id"`
	Severity  string `query:"severity"`
	Page      int    `query:"page"`
	PageSize  int    `query:"page_size"`
}

// SecurityEventResponse is one audited escalation.
type SecurityEventResponse struct {
	ID        uint                   `json:"id"`
	EventType string                 `json:"event_type"`
	Severity  string                 `json:"severity"`
	SessionID string                 `json:"session_id"`
	UserID    string                 `json:"user_id"`
	Details   map[string]interface{} `json:"details"`
	CreatedAt time.Time              `json:"created_at"`
}

// SecurityEventListResponse wraps events with pagination metadata.
type SecurityEventListResponse struct {
	Items      []SecurityEventResponse `json:"items"`
	Pagination PaginationMeta          `json:"pagination"`
}

// NewSecurityEventResponse converts a model.
func NewSecurityEventResponse(event models.SecurityEvent) SecurityEventResponse {
	return SecurityEventResponse{
		ID:        event.ID,
		EventType: event.EventType,
		Severity:  event.Severity,
		SessionID: event.SessionID,
		UserID:    event.UserID,
		Details:   map[string]interface{}(event.Details),
		CreatedAt: event.CreatedAt,
	}
}
