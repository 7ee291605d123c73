package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-arena/internal/models"
)

// GameRecordRepository persists archived sessions.
type GameRecordRepository interface {
	Upsert(ctx context.Context, record *models.GameRecord) error
	GetByID(ctx context.Context, id string) (models.GameRecord, error)
	ListByUser(ctx context.Context, userID string, page, pageSize int) ([]models.GameRecord, int64, error)
}

type gameRecordRepository struct {
	db *gorm.DB
}

// NewGameRecordRepository constructs the repository.
func NewGameRecordRepository(db *gorm.DB) GameRecordRepository {
	return &gameRecordRepository{db: db}
}

// Upsert replaces the record and its participant rows atomically.
func (r *gameRecordRepository) Upsert(ctx context.Context, record *models.GameRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		participants := record.Participants
		record.Participants = nil
		defer func() { record.Participants = participants }()

		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"state", "winner_id", "rounds_played", "final_scores", "snapshot", "started_at", "ended_at", "updated_at",
			}),
		}).Create(record).Error; err != nil {
			return err
		}

		if err := tx.Where("game_id = ?", record.ID).Delete(&models.GameParticipant{}).Error; err != nil {
			return err
		}
		if len(participants) == 0 {
			return nil
		}
		for i := range participants {
			participants[i].ID = 0
			participants[i].GameID = record.ID
		}
		return tx.Create(&participants).Error
	})
}

func (r *gameRecordRepository) GetByID(ctx context.Context, id string) (models.GameRecord, error) {
	var record models.GameRecord
	err := r.db.WithContext(ctx).Preload("Participants").First(&record, "id = ?", id).Error
	if err != nil {
		return models.GameRecord{}, err
	}
	return record, nil
}

func (r *gameRecordRepository) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]models.GameRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.GameRecord{}).
		Where("id IN (?)", r.db.Model(&models.GameParticipant{}).Select("game_id").Where("user_id = ?", userID))

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if pageSize > 0 {
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * pageSize).Limit(pageSize)
	}

	var records []models.GameRecord
	if err := query.Preload("Participants").Order("ended_at DESC").Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}
