package game

import (
	"time"

	"github.com/noah-isme/gema-arena/internal/anticheat"
)

// ConnectionID identifies one live channel of a player or spectator. It is opaque to the engine and only
// meaningful inside the session that holds it.
type ConnectionID string

// SessionState enumerates the lifecycle states of a game session.
type SessionState string

const (
	StateWaiting    SessionState = "waiting"
	StateStarting   SessionState = "starting"
	StateInProgress SessionState = "in_progress"
	StatePaused     SessionState = "paused"
	StateCompleted  SessionState = "completed"
	StateCancelled  SessionState = "cancelled"
)

// Terminal reports whether the state rejects further player mutations.
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// PlayerStatus enumerates the connection status of a player.
type PlayerStatus string

const (
	PlayerConnected    PlayerStatus = "connected"
	PlayerDisconnected PlayerStatus = "disconnected"
	PlayerReady        PlayerStatus = "ready"
	PlayerPlaying      PlayerStatus = "playing"
	PlayerFinished     PlayerStatus = "finished"
)

func (s PlayerStatus) active() bool {
	return s == PlayerConnected || s == PlayerReady || s == PlayerPlaying
}

// SessionConfig is fixed when the session is created.
type SessionConfig struct {
	Mode             string        `json:"mode" validate:"required,oneof=casual ranked practice tournament"`
	MaxPlayers       int           `json:"max_players" validate:"gte=1,lte=16"`
	MaxRounds        int           `json:"max_rounds" validate:"gte=1,lte=20"`
	SessionTimeLimit time.Duration `json:"session_time_limit" validate:"gte=0"`
	RoundTimeLimit   time.Duration `json:"round_time_limit" validate:"gte=0"`
	Language         string        `json:"language" validate:"required,oneof=python javascript go java cpp"`
	Difficulty       string        `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	AllowSpectators  bool          `json:"allow_spectators"`
	AutoStart        bool          `json:"auto_start"`
}

// DefaultSessionConfig returns the configuration used for casual matches.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Mode:             "casual",
		MaxPlayers:       2,
		MaxRounds:        3,
		SessionTimeLimit: 60 * time.Minute,
		RoundTimeLimit:   10 * time.Minute,
		Language:         "python",
		Difficulty:       "medium",
		AllowSpectators:  true,
	}
}

// Problem is the outward-facing view of a challenge. The reference solution never crosses into the engine.
type Problem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Example     string `json:"example"`
	Difficulty  string `json:"difficulty"`
}

// Grading is the scored outcome of one submission.
type Grading struct {
	TotalScore  int            `json:"total_score"`
	LetterGrade string         `json:"letter_grade"`
	Feedback    string         `json:"feedback"`
	Breakdown   map[string]int `json:"breakdown,omitempty"`
	Provider    string         `json:"provider"`
	Degraded    bool           `json:"degraded"`
	GradedAt    time.Time      `json:"graded_at"`
}

// Submission is one player's code for one round.
type Submission struct {
	ConnectionID ConnectionID      `json:"connection_id"`
	UserID       string            `json:"user_id"`
	Round        int               `json:"round"`
	Code         string            `json:"code"`
	Language     string            `json:"language"`
	SubmittedAt  time.Time         `json:"submitted_at"`
	Verdict      anticheat.Verdict `json:"verdict"`
	Grading      *Grading          `json:"ai_grading,omitempty"`
}

// Player is owned by the session holding it.
type Player struct {
	UserID       string        `json:"user_id"`
	ConnectionID ConnectionID  `json:"connection_id"`
	DisplayName  string        `json:"display_name"`
	Status       PlayerStatus  `json:"status"`
	Score        int           `json:"score"`
	Submissions  []*Submission `json:"submissions"`
	JoinedAt     time.Time     `json:"joined_at"`
}

// Spectator watches a session without playing.
type Spectator struct {
	ConnectionID ConnectionID `json:"connection_id"`
	UserID       string       `json:"user_id,omitempty"`
	DisplayName  string       `json:"display_name"`
	JoinedAt     time.Time    `json:"joined_at"`
}

// Round is one problem-solving cycle.
type Round struct {
	Number       int                          `json:"number"`
	Problem      Problem                      `json:"problem"`
	StartTime    time.Time                    `json:"start_time"`
	EndTime      *time.Time                   `json:"end_time,omitempty"`
	Participants []string                     `json:"participants"`
	Submissions  map[ConnectionID]*Submission `json:"submissions"`
	Winner       *string                      `json:"winner,omitempty"`
	Evaluating   bool                         `json:"evaluating"`
}

func (r *Round) open() bool {
	return r.EndTime == nil && !r.Evaluating
}

func (r *Round) participant(userID string) bool {
	for _, id := range r.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

func (r *Round) submittedBy(userID string) bool {
	for _, sub := range r.Submissions {
		if sub.UserID == userID {
			return true
		}
	}
	return false
}

// Snapshot is the complete persisted state of a session. It is the only shape that crosses the store boundary.
type Snapshot struct {
	ID           string                     `json:"id"`
	Config       SessionConfig              `json:"config"`
	State        SessionState               `json:"state"`
	CreatorID    string                     `json:"creator_id"`
	CreatedAt    time.Time                  `json:"created_at"`
	StartedAt    *time.Time                 `json:"started_at,omitempty"`
	EndedAt      *time.Time                 `json:"ended_at,omitempty"`
	PausedAt     *time.Time                 `json:"paused_at,omitempty"`
	PausedFor    time.Duration              `json:"paused_for"`
	CurrentRound int                        `json:"current_round_number"`
	Players      map[ConnectionID]*Player   `json:"players"`
	Spectators   map[ConnectionID]Spectator `json:"spectators"`
	Rounds       []*Round                   `json:"rounds"`
	Winner       *string                    `json:"winner,omitempty"`
	FinalScores  map[string]int             `json:"final_scores,omitempty"`
	Version      int64                      `json:"version"`
}

// QueueEntry is a player waiting in the matchmaking queue.
type QueueEntry struct {
	UserID       string       `json:"user_id"`
	ConnectionID ConnectionID `json:"connection_id"`
	DisplayName  string       `json:"display_name"`
	Language     string       `json:"language"`
	Mode         string       `json:"mode"`
	EnqueuedAt   time.Time    `json:"enqueued_at"`
}
