package dto

import (
	"time"

	"github.com/noah-isme/gema-arena/internal/models"
)

// GameParticipantResponse is one player's line in an archived game.
type GameParticipantResponse struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
	Won         bool   `json:"won"`
}

// GameRecordResponse summarises an archived game.
type GameRecordResponse struct {
	ID           string                    `json:"id"`
	Mode         string                    `json:"mode"`
	Language     string                    `json:"language"`
	State        string                    `json:"state"`
	WinnerID     *string                   `json:"winner_id"`
	RoundsPlayed int                       `json:"rounds_played"`
	Participants []GameParticipantResponse `json:"participants"`
	StartedAt    *time.Time                `json:"started_at"`
	EndedAt      *time.Time                `json:"ended_at"`
}

// GameHistoryResponse wraps a user's archived games.
type GameHistoryResponse struct {
	Items      []GameRecordResponse `json:"items"`
	Pagination PaginationMeta       `json:"pagination"`
}

// NewGameRecordResponse converts a model.
func NewGameRecordResponse(record models.GameRecord) GameRecordResponse {
	participants := make([]GameParticipantResponse, 0, len(record.Participants))
	for _, p := range record.Participants {
		participants = append(participants, GameParticipantResponse{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Score:       p.Score,
			Won:         p.Won,
		})
	}
	return GameRecordResponse{
		ID:           record.ID,
		Mode:         record.Mode,
		Language:     record.Language,
		State:        record.State,
		WinnerID:     record.WinnerID,
		RoundsPlayed: record.RoundsPlayed,
		Participants: participants,
		StartedAt:    record.StartedAt,
		EndedAt:      record.EndedAt,
	}
}
