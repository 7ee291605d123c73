package game

import "time"

// EventType names an outbound notification.
type EventType string

const (
	EventMatchFound        EventType = "match_found"
	EventPlayerJoined      EventType = "player_joined"
	EventPlayerLeft        EventType = "player_left"
	EventGameStarted       EventType = "game_started"
	EventNewRound          EventType = "new_round"
	EventPlayerSubmitted   EventType = "player_submitted"
	EventRoundComplete     EventType = "round_complete"
	EventGameOver          EventType = "game_over"
	EventGamePaused        EventType = "game_paused"
	EventGameResumed       EventType = "game_resumed"
	EventSessionCancelled  EventType = "session_cancelled"
	EventSecurityViolation EventType = "security_violation"
)

// Event is one outbound notification. An empty Recipients list addresses everyone watching the session.
type Event struct {
	Type       EventType              `json:"type"`
	SessionID  string                 `json:"session_id"`
	Recipients []string               `json:"recipients,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	At         time.Time              `json:"at"`
}

// RoundResult summarises one participant's outcome in round_complete.
type RoundResult struct {
	UserID      string `json:"user_id"`
	Score       int    `json:"score"`
	LetterGrade string `json:"letter_grade"`
	Feedback    string `json:"feedback,omitempty"`
	Degraded    bool   `json:"degraded"`
	Submitted   bool   `json:"submitted"`
}
