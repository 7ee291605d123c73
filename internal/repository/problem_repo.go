package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-arena/internal/models"
)

// ErrNoProblem is returned when no active problem matches the filter.
var ErrNoProblem = errors.New("no matching problem")

// ProblemFilter narrows problem lookups. Empty fields match everything.
type ProblemFilter struct {
	Difficulty string
	Language   string
	Page       int
	PageSize   int
}

// ProblemRepository exposes persistence operations for arena problems.
type ProblemRepository interface {
	Create(ctx context.Context, problem *models.Problem) error
	GetByID(ctx context.Context, id string) (models.Problem, error)
	Random(ctx context.Context, filter ProblemFilter) (models.Problem, error)
	List(ctx context.Context, filter ProblemFilter) ([]models.Problem, int64, error)
	UpsertBatch(ctx context.Context, items []models.Problem) (int64, error)
}

type problemRepository struct {
	db *gorm.DB
}

// NewProblemRepository constructs the problem repository.
func NewProblemRepository(db *gorm.DB) ProblemRepository {
	return &problemRepository{db: db}
}

func (r *problemRepository) Create(ctx context.Context, problem *models.Problem) error {
	return r.db.WithContext(ctx).Create(problem).Error
}

func (r *problemRepository) GetByID(ctx context.Context, id string) (models.Problem, error) {
	var problem models.Problem
	if err := r.db.WithContext(ctx).First(&problem, "id = ?", id).Error; err != nil {
		return models.Problem{}, err
	}
	return problem, nil
}

func (r *problemRepository) filtered(ctx context.Context, filter ProblemFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.Problem{}).Where("active = ?", true)
	if filter.Difficulty != "" {
		query = query.Where("LOWER(difficulty) = ?", strings.ToLower(filter.Difficulty))
	}
	if filter.Language != "" {
		query = query.Where("(language = '' OR LOWER(language) = ?)", strings.ToLower(filter.Language))
	}
	return query
}

func (r *problemRepository) Random(ctx context.Context, filter ProblemFilter) (models.Problem, error) {
	var problem models.Problem
	err := r.filtered(ctx, filter).Order("RANDOM()").Limit(1).Take(&problem).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Problem{}, ErrNoProblem
	}
	if err != nil {
		return models.Problem{}, err
	}
	return problem, nil
}

func (r *problemRepository) List(ctx context.Context, filter ProblemFilter) ([]models.Problem, int64, error) {
	query := r.filtered(ctx, filter)

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var problems []models.Problem
	if err := query.Order("created_at DESC").Find(&problems).Error; err != nil {
		return nil, 0, err
	}
	return problems, total, nil
}

func (r *problemRepository) UpsertBatch(ctx context.Context, items []models.Problem) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "description", "example", "solution", "difficulty", "language", "active", "updated_at"}),
	})

	result := tx.Create(&items)
	return result.RowsAffected, result.Error
}
