package game

import (
	"sort"
	"time"

	"github.com/noah-isme/gema-arena/internal/anticheat"
)

// View is the outward-facing state of a session. It never carries submitted code or reference solutions.
type View struct {
	ID           string         `json:"id"`
	State        SessionState   `json:"state"`
	Config       SessionConfig  `json:"config"`
	CreatorID    string         `json:"creator_id"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	EndedAt      *time.Time     `json:"ended_at,omitempty"`
	CurrentRound int            `json:"current_round_number"`
	Players      []PlayerView   `json:"players"`
	Spectators   int            `json:"spectators"`
	Rounds       []RoundView    `json:"rounds"`
	Winner       *string        `json:"winner,omitempty"`
	FinalScores  map[string]int `json:"final_scores,omitempty"`
	Version      int64          `json:"version"`
}

// PlayerView is a player as seen by other participants.
type PlayerView struct {
	UserID      string       `json:"user_id"`
	DisplayName string       `json:"display_name"`
	Status      PlayerStatus `json:"status"`
	Score       int          `json:"score"`
	Submissions int          `json:"submissions"`
	JoinedAt    time.Time    `json:"joined_at"`
}

// RoundView is a round without submitted code.
type RoundView struct {
	Number      int              `json:"number"`
	Problem     Problem          `json:"problem"`
	StartTime   time.Time        `json:"start_time"`
	EndTime     *time.Time       `json:"end_time,omitempty"`
	Evaluating  bool             `json:"evaluating"`
	Submissions []SubmissionView `json:"submissions"`
	Winner      *string          `json:"winner,omitempty"`
}

// SubmissionView summarises a submission without its code.
type SubmissionView struct {
	UserID      string           `json:"user_id"`
	Language    string           `json:"language"`
	SubmittedAt time.Time        `json:"submitted_at"`
	Action      anticheat.Action `json:"anticheat_action"`
	Grading     *Grading         `json:"ai_grading,omitempty"`
}

// Player returns the view of userID, if present.
func (v View) Player(userID string) (PlayerView, bool) {
	for _, p := range v.Players {
		if p.UserID == userID {
			return p, true
		}
	}
	return PlayerView{}, false
}

// NewView renders the public view of a snapshot.
func NewView(s *Snapshot) View {
	return *buildView(s)
}

func buildView(s *Snapshot) *View {
	view := &View{
		ID:           s.ID,
		State:        s.State,
		Config:       s.Config,
		CreatorID:    s.CreatorID,
		CreatedAt:    s.CreatedAt,
		StartedAt:    copyTime(s.StartedAt),
		EndedAt:      copyTime(s.EndedAt),
		CurrentRound: s.CurrentRound,
		Players:      make([]PlayerView, 0, len(s.Players)),
		Spectators:   len(s.Spectators),
		Rounds:       make([]RoundView, 0, len(s.Rounds)),
		Winner:       copyString(s.Winner),
		Version:      s.Version,
	}

	for _, p := range s.Players {
		view.Players = append(view.Players, PlayerView{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Status:      p.Status,
			Score:       p.Score,
			Submissions: len(p.Submissions),
			JoinedAt:    p.JoinedAt,
		})
	}
	sort.Slice(view.Players, func(i, j int) bool {
		if view.Players[i].JoinedAt.Equal(view.Players[j].JoinedAt) {
			return view.Players[i].UserID < view.Players[j].UserID
		}
		return view.Players[i].JoinedAt.Before(view.Players[j].JoinedAt)
	})

	for _, r := range s.Rounds {
		rv := RoundView{
			Number:      r.Number,
			Problem:     r.Problem,
			StartTime:   r.StartTime,
			EndTime:     copyTime(r.EndTime),
			Evaluating:  r.Evaluating,
			Submissions: make([]SubmissionView, 0, len(r.Submissions)),
			Winner:      copyString(r.Winner),
		}
		for _, sub := range r.Submissions {
			sv := SubmissionView{
				UserID:      sub.UserID,
				Language:    sub.Language,
				SubmittedAt: sub.SubmittedAt,
				Action:      sub.Verdict.Action,
			}
			if sub.Grading != nil {
				g := *sub.Grading
				sv.Grading = &g
			}
			rv.Submissions = append(rv.Submissions, sv)
		}
		sort.Slice(rv.Submissions, func(i, j int) bool {
			return rv.Submissions[i].SubmittedAt.Before(rv.Submissions[j].SubmittedAt)
		})
		view.Rounds = append(view.Rounds, rv)
	}

	if s.FinalScores != nil {
		view.FinalScores = make(map[string]int, len(s.FinalScores))
		for k, v := range s.FinalScores {
			view.FinalScores[k] = v
		}
	}
	return view
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
