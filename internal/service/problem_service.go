package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-arena/internal/dto"
	"github.com/noah-isme/gema-arena/internal/game"
	"github.com/noah-isme/gema-arena/internal/models"
	"github.com/noah-isme/gema-arena/internal/repository"
)

// ErrProblemNotFound indicates the requested problem does not exist.
var ErrProblemNotFound = errors.New("problem not found")

// ProblemService manages the arena problem pool and feeds sessions.
type ProblemService interface {
	game.ProblemSource
	Create(ctx context.Context, payload dto.ProblemCreateRequest) (dto.ProblemResponse, error)
	List(ctx context.Context, req dto.ProblemListRequest) (dto.ProblemListResponse, error)
	ReferenceSolution(ctx context.Context, problemID string) (string, error)
}

type problemService struct {
	repo      repository.ProblemRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewProblemService constructs the problem service.
func NewProblemService(repo repository.ProblemRepository, validate *validator.Validate, logger zerolog.Logger) ProblemService {
	return &problemService{
		repo:      repo,
		validator: validate,
		logger:    logger.With().Str("component", "problem_service").Logger(),
	}
}

func (s *problemService) RandomProblem(ctx context.Context, difficulty string) (game.Problem, error) {
	problem, err := s.repo.Random(ctx, repository.ProblemFilter{Difficulty: strings.TrimSpace(difficulty)})
	if errors.Is(err, repository.ErrNoProblem) {
		return game.Problem{}, game.ErrNoProblemsAvailable
	}
	if err != nil {
		s.logger.Error().Err(err).Str("difficulty", difficulty).Msg("failed to draw problem")
		return game.Problem{}, err
	}
	return game.Problem{
		ID:          problem.ID,
		Title:       problem.Title,
		Description: problem.Description,
		Example:     problem.Example,
		Difficulty:  problem.Difficulty,
	}, nil
}

func (s *problemService) Create(ctx context.Context, payload dto.ProblemCreateRequest) (dto.ProblemResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ProblemResponse{}, err
	}

	id := strings.TrimSpace(payload.ID)
	if id == "" {
		id = uuid.NewString()
	}

	problem := models.Problem{
		ID:          id,
		Title:       strings.TrimSpace(payload.Title),
		Description: payload.Description,
		Example:     payload.Example,
		Solution:    payload.Solution,
		Difficulty:  strings.ToLower(payload.Difficulty),
		Language:    strings.ToLower(payload.Language),
		Active:      true,
	}
	if err := s.repo.Create(ctx, &problem); err != nil {
		return dto.ProblemResponse{}, err
	}

	s.logger.Info().Str("problem_id", problem.ID).Str("difficulty", problem.Difficulty).Msg("problem created")
	return dto.NewProblemResponse(problem), nil
}

func (s *problemService) List(ctx context.Context, req dto.ProblemListRequest) (dto.ProblemListResponse, error) {
	problems, total, err := s.repo.List(ctx, repository.ProblemFilter{
		Difficulty: strings.TrimSpace(req.Difficulty),
		Language:   strings.TrimSpace(req.Language),
		Page:       req.Page,
		PageSize:   req.PageSize,
	})
	if err != nil {
		return dto.ProblemListResponse{}, err
	}

	items := make([]dto.ProblemResponse, 0, len(problems))
	for _, problem := range problems {
		items = append(items, dto.NewProblemResponse(problem))
	}
	return dto.ProblemListResponse{
		Items:      items,
		Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, total),
	}, nil
}

func (s *problemService) ReferenceSolution(ctx context.Context, problemID string) (string, error) {
	problem, err := s.repo.GetByID(ctx, problemID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrProblemNotFound
	}
	if err != nil {
		return "", err
	}
	return problem.Solution, nil
}
