package models

import "time"

// AcceptedSolution is a normalized submission that passed screening, kept for plagiarism comparison.
type AcceptedSolution struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      string    `gorm:"size:64;not null;index" json:"user_id"`
	SessionID   string    `gorm:"size:64;not null" json:"session_id"`
	ProblemID   string    `gorm:"size:64;not null;index:idx_accepted_problem_time" json:"problem_id"`
	Language    string    `gorm:"size:32;not null" json:"language"`
	Fingerprint string    `gorm:"size:32;not null;index" json:"fingerprint"`
	Normalized  string    `gorm:"type:text;not null" json:"-"`
	SubmittedAt time.Time `gorm:"not null;index:idx_accepted_problem_time" json:"submitted_at"`
	CreatedAt   time.Time `json:"created_at"`
}
