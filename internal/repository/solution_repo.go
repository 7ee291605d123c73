package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-arena/internal/anticheat"
	"github.com/noah-isme/gema-arena/internal/models"
)

// SolutionRepository stores accepted solutions and serves them to the similarity index.
type SolutionRepository struct {
	db *gorm.DB
}

// NewSolutionRepository constructs the repository.
func NewSolutionRepository(db *gorm.DB) *SolutionRepository {
	return &SolutionRepository{db: db}
}

// RecentSolutions returns the newest solutions for problemID submitted at or after since.
func (r *SolutionRepository) RecentSolutions(ctx context.Context, problemID string, since time.Time, limit int) ([]anticheat.Solution, error) {
	query := r.db.WithContext(ctx).
		Where("problem_id = ? AND submitted_at >= ?", problemID, since).
		Order("submitted_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []models.AcceptedSolution
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	solutions := make([]anticheat.Solution, 0, len(rows))
	for _, row := range rows {
		solutions = append(solutions, anticheat.Solution{
			UserID:      row.UserID,
			SessionID:   row.SessionID,
			ProblemID:   row.ProblemID,
			Language:    row.Language,
			Fingerprint: row.Fingerprint,
			Normalized:  row.Normalized,
			SubmittedAt: row.SubmittedAt,
		})
	}
	return solutions, nil
}

// SaveSolution persists one accepted solution.
func (r *SolutionRepository) SaveSolution(ctx context.Context, solution anticheat.Solution) error {
	row := models.AcceptedSolution{
		UserID:      solution.UserID,
		SessionID:   solution.SessionID,
		ProblemID:   solution.ProblemID,
		Language:    solution.Language,
		Fingerprint: solution.Fingerprint,
		Normalized:  solution.Normalized,
		SubmittedAt: solution.SubmittedAt,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// PurgeBefore deletes solutions older than cutoff and returns how many were removed.
func (r *SolutionRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("submitted_at < ?", cutoff).Delete(&models.AcceptedSolution{})
	return result.RowsAffected, result.Error
}
