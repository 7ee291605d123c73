package anticheat

import (
	"fmt"
	"time"
)

// Action is the escalation decided for one submission.
type Action string

const (
	ActionAccept  Action = "accept"
	ActionMonitor Action = "monitor"
	ActionWarning Action = "warning"
	ActionReview  Action = "review"
	ActionReject  Action = "reject"
)

// Thresholds map a summed suspicion score to an action. A score at or above a threshold triggers it.
type Thresholds struct {
	Reject  int
	Review  int
	Warning int
	Monitor int
}

// DefaultThresholds returns the production thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Reject: 150, Review: 80, Warning: 50, Monitor: 25}
}

// ActionFor returns the action for score.
func (t Thresholds) ActionFor(score int) Action {
	switch {
	case score >= t.Reject:
		return ActionReject
	case score >= t.Review:
		return ActionReview
	case score >= t.Warning:
		return ActionWarning
	case score >= t.Monitor:
		return ActionMonitor
	default:
		return ActionAccept
	}
}

// Verdict is produced fresh for every submission.
type Verdict struct {
	Score      int      `json:"score"`
	Violations []string `json:"violations"`
	Action     Action   `json:"action"`
}

// Escalated reports whether the verdict must be recorded in the audit trail.
func (v Verdict) Escalated() bool {
	return v.Action == ActionReview || v.Action == ActionReject
}

// Input describes a submission together with the session and user it belongs to.
type Input struct {
	SessionID   string
	UserID      string
	ProblemID   string
	Language    string
	Code        string
	SubmittedAt time.Time
}

// Finding is one suspicious signal raised by a stage.
type Finding struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Weight      int    `json:"weight"`
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s", f.Category, f.Description)
}

// Analysis is the additive contribution of one stage.
type Analysis struct {
	Score    int
	Findings []Finding
}

func (a *Analysis) add(category, description string, weight int) {
	a.Score += weight
	a.Findings = append(a.Findings, Finding{Category: category, Description: description, Weight: weight})
}

func (a *Analysis) merge(other Analysis) {
	a.Score += other.Score
	a.Findings = append(a.Findings, other.Findings...)
}
