package dto

import (
	"time"

	"github.com/noah-isme/gema-arena/internal/anticheat"
	"github.com/noah-isme/gema-arena/internal/game"
)

// CreateSessionRequest overrides fields of the default session configuration. Zero values keep the default.
type CreateSessionRequest struct {
	Mode                    string `json:"mode"`
	MaxPlayers              int    `json:"max_players"`
	MaxRounds               int    `json:"max_rounds"`
	SessionTimeLimitSeconds int    `json:"session_time_limit_seconds" validate:"gte=0"`
	RoundTimeLimitSeconds   int    `json:"round_time_limit_seconds" validate:"gte=0"`
	Language                string `json:"language"`
	Difficulty              string `json:"difficulty"`
	AllowSpectators         *bool  `json:"allow_spectators"`
	AutoStart               bool   `json:"auto_start"`
}

// Config merges the request onto defaults.
func (r CreateSessionRequest) Config(defaults game.SessionConfig) game.SessionConfig {
	cfg := defaults
	if r.Mode != "" {
		cfg.Mode = r.Mode
	}
	if r.MaxPlayers != 0 {
		cfg.MaxPlayers = r.MaxPlayers
	}
	if r.MaxRounds != 0 {
		cfg.MaxRounds = r.MaxRounds
	}
	if r.SessionTimeLimitSeconds > 0 {
		cfg.SessionTimeLimit = time.Duration(r.SessionTimeLimitSeconds) * time.Second
	}
	if r.RoundTimeLimitSeconds > 0 {
		cfg.RoundTimeLimit = time.Duration(r.RoundTimeLimitSeconds) * time.Second
	}
	if r.Language != "" {
		cfg.Language = r.Language
	}
	if r.Difficulty != "" {
		cfg.Difficulty = r.Difficulty
	}
	if r.AllowSpectators != nil {
		cfg.AllowSpectators = *r.AllowSpectators
	}
	cfg.AutoStart = r.AutoStart
	return cfg
}

// CreateSessionResponse returns the new session id.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// JoinSessionRequest joins as a player or spectator. A blank connection id is generated server side.
type JoinSessionRequest struct {
	ConnectionID string `json:"connection_id" validate:"omitempty,max=128"`
	DisplayName  string `json:"display_name" validate:"max=128"`
}

// JoinSessionResponse echoes the connection id to use for later events.
type JoinSessionResponse struct {
	SessionID    string `json:"session_id"`
	ConnectionID string `json:"connection_id"`
}

// LeaveSessionRequest detaches one connection.
type LeaveSessionRequest struct {
	ConnectionID string `json:"connection_id" validate:"required,max=128"`
}

// SubmitSolutionRequest carries one round submission.
type SubmitSolutionRequest struct {
	ConnectionID string `json:"connection_id" validate:"required,max=128"`
	Code         string `json:"code" validate:"required,max=65536"`
	Language     string `json:"language" validate:"required,oneof=python javascript go java cpp"`
}

// SubmitSolutionResponse reports the screening decision, for rejected submissions too.
type SubmitSolutionResponse struct {
	Accepted bool   `json:"accepted"`
	Action   string `json:"action"`
	Score    int    `json:"score"`
}

// NewSubmitSolutionResponse builds the response from a verdict. Violation details stay server side.
func NewSubmitSolutionResponse(verdict anticheat.Verdict) SubmitSolutionResponse {
	return SubmitSolutionResponse{
		Accepted: verdict.Action != anticheat.ActionReject,
		Action:   string(verdict.Action),
		Score:    verdict.Score,
	}
}

// FindMatchRequest joins the matchmaking queue.
type FindMatchRequest struct {
	ConnectionID string `json:"connection_id" validate:"omitempty,max=128"`
	DisplayName  string `json:"display_name" validate:"max=128"`
	Mode         string `json:"mode" validate:"required"`
	Language     string `json:"language" validate:"required"`
}

// CancelMatchRequest leaves the matchmaking queue.
type CancelMatchRequest struct {
	ConnectionID string `json:"connection_id" validate:"omitempty,max=128"`
}

// CancelMatchResponse reports whether a queue entry was removed.
type CancelMatchResponse struct {
	Removed bool `json:"removed"`
}
