package models

import "time"

// Problem is a challenge served to arena rounds. Solution is the reference answer and never leaves the
// repository layer.
type Problem struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text;not null" json:"description"`
	Example     string    `gorm:"type:text" json:"example"`
	Solution    string    `gorm:"type:text" json:"-"`
	Difficulty  string    `gorm:"size:32;not null;index" json:"difficulty"`
	Language    string    `gorm:"size:32" json:"language"`
	Active      bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
