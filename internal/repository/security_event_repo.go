package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-arena/internal/models"
)

// SecurityEventFilter narrows audit queries.
type SecurityEventFilter struct {
	Page      int
	PageSize  int
	SessionID string
	UserID    string
	Severity  string
}

// SecurityEventRepository persists anti-cheat audit events.
type SecurityEventRepository interface {
	Create(ctx context.Context, event *models.SecurityEvent) error
	List(ctx context.Context, filter SecurityEventFilter) ([]models.SecurityEvent, int64, error)
}

type securityEventRepository struct {
	db *gorm.DB
}

// NewSecurityEventRepository constructs the repository.
func NewSecurityEventRepository(db *gorm.DB) SecurityEventRepository {
	return &securityEventRepository{db: db}
}

func (r *securityEventRepository) Create(ctx context.Context, event *models.SecurityEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *securityEventRepository) List(ctx context.Context, filter SecurityEventFilter) ([]models.SecurityEvent, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.SecurityEvent{})

	if filter.SessionID != "" {
		query = query.Where("session_id = ?", filter.SessionID)
	}
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Severity != "" {
		query = query.Where("severity = ?", filter.Severity)
	}

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

	var events []models.SecurityEvent
	if err := query.Order("created_at DESC, id DESC").Find(&events).Error; err != nil {
		return nil, 0, err
	}
	return events, total, nil
}
