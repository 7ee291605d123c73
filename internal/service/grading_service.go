package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-arena/internal/game"
	"github.com/noah-isme/gema-arena/pkg/ai"
	dockerexec "github.com/noah-isme/gema-arena/pkg/docker"
)

// ErrGraderUnavailable indicates no AI grader is configured.
var ErrGraderUnavailable = errors.New("grader unavailable")

// SourceRunner executes a submission in the sandbox.
type SourceRunner interface {
	RunSource(ctx context.Context, language, source string) (dockerexec.ExecutionResult, error)
}

// SolutionLookup resolves the reference solution of a problem.
type SolutionLookup interface {
	ReferenceSolution(ctx context.Context, problemID string) (string, error)
}

// GradingService scores submissions with the AI grader, feeding it the sandbox run as test results.
type GradingService struct {
	grader    ai.Grader
	runner    SourceRunner
	solutions SolutionLookup
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewGradingService constructs the grading adapter. runner and solutions are optional.
func NewGradingService(grader ai.Grader, runner SourceRunner, solutions SolutionLookup, logger zerolog.Logger) *GradingService {
	return &GradingService{
		grader:    grader,
		runner:    runner,
		solutions: solutions,
		logger:    logger.With().Str("component", "grading_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-arena/internal/service/grading"),
	}
}

// Grade runs the submission, asks the grader for a verdict and converts it to a 0-100 grading.
func (s *GradingService) Grade(ctx context.Context, req game.GradeRequest) (game.Grading, error) {
	if s.grader == nil {
		return game.Grading{}, ErrGraderUnavailable
	}

	ctx, span := s.tracer.Start(ctx, "grading.grade", trace.WithAttributes(
		attribute.String("problem.id", req.Problem.ID),
		attribute.String("user.id", req.UserID),
		attribute.String("language", req.Language),
	))
	defer span.End()

	input := ai.GradingInput{
		ProblemTitle:       req.Problem.Title,
		ProblemDescription: req.Problem.Description,
		Example:            req.Problem.Example,
		Language:           req.Language,
		Code:               req.Code,
	}

	if s.runner != nil {
		result, err := s.runner.RunSource(ctx, req.Language, req.Code)
		if errors.Is(err, dockerexec.ErrUnsupportedLanguage) {
			s.logger.Debug().Str("language", req.Language).Msg("no sandbox profile, grading without test results")
		} else {
			input.TestResults = dockerexec.Summary(result, err)
		}
	}

	if s.solutions != nil && req.Problem.ID != "" {
		reference, err := s.solutions.ReferenceSolution(ctx, req.Problem.ID)
		if err != nil {
			s.logger.Debug().Err(err).Str("problem_id", req.Problem.ID).Msg("reference solution unavailable")
		} else {
			input.ReferenceSolution = reference
		}
	}

	result, err := s.grader.Grade(ctx, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return game.Grading{}, err
	}

	total := percent(result.Score)
	breakdown := make(map[string]int, len(result.Breakdown))
	for criterion, value := range result.Breakdown {
		breakdown[criterion] = percent(value)
	}

	provider := "ai"
	if result.Model != "" {
		provider = result.Model
	}

	span.SetAttributes(attribute.Int("grading.total", total))
	return game.Grading{
		TotalScore:  total,
		LetterGrade: game.LetterGrade(total),
		Feedback:    strings.TrimSpace(result.Feedback),
		Breakdown:   breakdown,
		Provider:    provider,
	}, nil
}

func percent(v float64) int {
	return int(math.Round(v * 100))
}
