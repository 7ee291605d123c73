package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-arena/internal/dto"
	"github.com/noah-isme/gema-arena/internal/game"
	"github.com/noah-isme/gema-arena/internal/models"
	"github.com/noah-isme/gema-arena/internal/repository"
)

// ErrGameRecordNotFound indicates no archived game has the id.
var ErrGameRecordNotFound = errors.New("game record not found")

// ArchiveService stores terminal sessions and serves match history.
type ArchiveService interface {
	game.Archiver
	Get(ctx context.Context, sessionID string) (dto.GameRecordResponse, error)
	History(ctx context.Context, userID string, page, pageSize int) (dto.GameHistoryResponse, error)
}

type archiveService struct {
	repo   repository.GameRecordRepository
	logger zerolog.Logger
}

// NewArchiveService constructs the archive.
func NewArchiveService(repo repository.GameRecordRepository, logger zerolog.Logger) ArchiveService {
	return &archiveService{
		repo:   repo,
		logger: logger.With().Str("component", "archive_service").Logger(),
	}
}

func (s *archiveService) Archive(ctx context.Context, snapshot game.Snapshot) error {
	record, err := recordFromSnapshot(snapshot)
	if err != nil {
		return err
	}
	if err := s.repo.Upsert(ctx, &record); err != nil {
		return fmt.Errorf("archive session %s: %w", snapshot.ID, err)
	}
	s.logger.Debug().Str("session_id", snapshot.ID).Str("state", record.State).Msg("session archived")
	return nil
}

func (s *archiveService) Get(ctx context.Context, sessionID string) (dto.GameRecordResponse, error) {
	record, err := s.repo.GetByID(ctx, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.GameRecordResponse{}, ErrGameRecordNotFound
	}
	if err != nil {
		return dto.GameRecordResponse{}, err
	}
	return dto.NewGameRecordResponse(record), nil
}

func (s *archiveService) History(ctx context.Context, userID string, page, pageSize int) (dto.GameHistoryResponse, error) {
	records, total, err := s.repo.ListByUser(ctx, userID, page, pageSize)
	if err != nil {
		return dto.GameHistoryResponse{}, err
	}

	items := make([]dto.GameRecordResponse, 0, len(records))
	for _, record := range records {
		items = append(items, dto.NewGameRecordResponse(record))
	}
	return dto.GameHistoryResponse{
		Items:      items,
		Pagination: dto.NewPaginationMeta(page, pageSize, total),
	}, nil
}

// recordFromSnapshot drops submitted code from the stored snapshot; only gradings and verdicts are kept.
func recordFromSnapshot(snapshot game.Snapshot) (models.GameRecord, error) {
	view := game.NewView(&snapshot)
	payload, err := json.Marshal(view)
	if err != nil {
		return models.GameRecord{}, fmt.Errorf("encode archived view: %w", err)
	}

	scores := datatypes.JSONMap{}
	for userID, score := range snapshot.FinalScores {
		scores[userID] = score
	}

	participants := make([]models.GameParticipant, 0, len(snapshot.Players))
	for _, player := range snapshot.Players {
		score := player.Score
		if final, ok := snapshot.FinalScores[player.UserID]; ok {
			score = final
		}
		participants = append(participants, models.GameParticipant{
			UserID:      player.UserID,
			DisplayName: player.DisplayName,
			Score:       score,
			Won:         snapshot.Winner != nil && *snapshot.Winner == player.UserID,
		})
	}
	sort.Slice(participants, func(i, j int) bool { return participants[i].UserID < participants[j].UserID })

	ended := snapshot.EndedAt
	if ended == nil {
		now := time.Now().UTC()
		ended = &now
	}

	return models.GameRecord{
		ID:           snapshot.ID,
		Mode:         snapshot.Config.Mode,
		Language:     snapshot.Config.Language,
		State:        string(snapshot.State),
		CreatorID:    snapshot.CreatorID,
		WinnerID:     snapshot.Winner,
		RoundsPlayed: len(snapshot.Rounds),
		FinalScores:  scores,
		Snapshot:     datatypes.JSON(payload),
		StartedAt:    snapshot.StartedAt,
		EndedAt:      ended,
		Participants: participants,
	}, nil
}
