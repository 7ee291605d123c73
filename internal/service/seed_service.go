package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-arena/internal/dto"
	"github.com/noah-isme/gema-arena/internal/models"
	"github.com/noah-isme/gema-arena/internal/repository"
)

var (
	// ErrSeedDisabled indicates the seeding tools are disabled by configuration.
	ErrSeedDisabled = errors.New("seeding is disabled")
	// ErrSeedUnauthorized indicates the provided token is invalid.
	ErrSeedUnauthorized = errors.New("invalid seed token")
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// SeedService loads problem sets into the pool. Seeding the same set twice updates rows in place.
type SeedService interface {
	SeedProblems(ctx context.Context, token string, items []dto.ProblemCreateRequest) (int64, error)
}

type seedService struct {
	problems  repository.ProblemRepository
	validator *validator.Validate
	enabled   bool
	token     string
	logger    zerolog.Logger
}

// NewSeedService constructs a seeding service.
func NewSeedService(problems repository.ProblemRepository, validate *validator.Validate, enabled bool, token string, logger zerolog.Logger) SeedService {
	return &seedService{
		problems:  problems,
		validator: validate,
		enabled:   enabled,
		token:     token,
		logger:    logger.With().Str("component", "seed_service").Logger(),
	}
}

func (s *seedService) SeedProblems(ctx context.Context, token string, items []dto.ProblemCreateRequest) (int64, error) {
	if !s.enabled {
		return 0, ErrSeedDisabled
	}
	if !s.validateToken(token) {
		return 0, ErrSeedUnauthorized
	}

	problems := make([]models.Problem, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		if err := s.validator.Struct(item); err != nil {
			return 0, fmt.Errorf("problem %d: %w", i, err)
		}
		problem := normalizeProblem(item)
		if _, dup := seen[problem.ID]; dup {
			continue
		}
		seen[problem.ID] = struct{}{}
		problems = append(problems, problem)
	}

	affected, err := s.problems.UpsertBatch(ctx, problems)
	if err != nil {
		return 0, err
	}
	s.logger.Info().Int64("affected", affected).Int("submitted", len(items)).Msg("problems seeded")
	return affected, nil
}

func (s *seedService) validateToken(token string) bool {
	expected := strings.TrimSpace(s.token)
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.TrimSpace(token))) == 1
}

// normalizeProblem derives a stable id from the title when none is given.
func normalizeProblem(item dto.ProblemCreateRequest) models.Problem {
	id := strings.TrimSpace(item.ID)
	if id == "" {
		id = strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(item.Title), "-"), "-")
		if len(id) > 64 {
			id = id[:64]
		}
	}
	return models.Problem{
		ID:          id,
		Title:       strings.TrimSpace(item.Title),
		Description: item.Description,
		Example:     item.Example,
		Solution:    item.Solution,
		Difficulty:  strings.ToLower(item.Difficulty),
		Language:    strings.ToLower(item.Language),
		Active:      true,
	}
}
