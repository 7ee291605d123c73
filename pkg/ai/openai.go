package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	gradeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "arena",
		Subsystem: "ai",
		Name:      "grading_duration_seconds",
		Help:      "Duration of AI grading requests",
	}, []string{"model"})

	gradeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arena",
		Subsystem: "ai",
		Name:      "grading_failures_total",
		Help:      "Number of AI grading failures",
	}, []string{"model"})
)

// Criteria are the breakdown keys the model is asked to score.
var Criteria = []string{"correctness", "efficiency", "readability", "best_practices"}

// OpenAIConfig defines configuration options for the OpenAI grader.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIGrader implements Grader against the OpenAI chat completion API.
type OpenAIGrader struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIGrader builds a grader using the provided configuration.
func NewOpenAIGrader(cfg OpenAIConfig) (*OpenAIGrader, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIGrader{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-arena/pkg/ai/openai"),
		logger: logger.With().Str("component", "openai_grader").Logger(),
	}, nil
}

// Model returns the configured model name.
func (g *OpenAIGrader) Model() string {
	return g.cfg.Model
}

// Grade asks the model to score input and parses its JSON answer.
func (g *OpenAIGrader) Grade(parent context.Context, input GradingInput) (GradingResult, error) {
	ctx, span := g.tracer.Start(parent, "openai.grade", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
		attribute.String("language", input.Language),
	))
	defer span.End()

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: graderSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(input)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	gradeDuration.WithLabelValues(g.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return GradingResult{}, g.fail(span, fmt.Errorf("openai grade: %w", err))
	}
	if len(resp.Choices) == 0 {
		return GradingResult{}, g.fail(span, fmt.Errorf("no choices returned from openai"))
	}

	result, err := parseGradingResponse(strings.TrimSpace(resp.Choices[0].Message.Content))
	if err != nil {
		return GradingResult{}, g.fail(span, err)
	}
	result.Model = g.cfg.Model

	g.logger.Debug().
		Float64("score", result.Score).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("submission graded")
	return result, nil
}

func (g *OpenAIGrader) fail(span trace.Span, err error) error {
	gradeFailures.WithLabelValues(g.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func graderSystemPrompt() string {
	return "You judge solutions in a timed programming duel. Respond with a JSON object containing score (0-1), verdict, " +
		"feedback (two sentences at most) and a breakdown object scoring " + strings.Join(Criteria, ", ") +
		" from 0 to 1. Correctness against the Test Results section at the end of the prompt outweighs every other criterion."
}

func buildUserPrompt(input GradingInput) string {
	builder := strings.Builder{}
	builder.WriteString("# Problem\n")
	builder.WriteString(input.ProblemTitle)
	builder.WriteString("\n\n## Description\n")
	builder.WriteString(input.ProblemDescription)
	if input.Example != "" {
		builder.WriteString("\n\n## Example\n")
		builder.WriteString(input.Example)
	}
	if input.ReferenceSolution != "" {
		builder.WriteString("\n\n## Reference Solution (do not reveal)\n")
		builder.WriteString(input.ReferenceSolution)
	}
	builder.WriteString("\n\n## Language\n")
	builder.WriteString(input.Language)
	builder.WriteString("\n\n## Submission\n")
	builder.WriteString(input.Code)
	builder.WriteString("\n\n## Test Results\n")
	if input.TestResults == "" {
		builder.WriteString("not executed")
	} else {
		builder.WriteString(input.TestResults)
	}
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

func parseGradingResponse(content string) (GradingResult, error) {
	type payload struct {
		Score     float64            `json:"score"`
		Feedback  string             `json:"feedback"`
		Verdict   string             `json:"verdict"`
		Breakdown map[string]float64 `json:"breakdown"`
	}

	var data payload
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return GradingResult{}, fmt.Errorf("parse grading json: %w", err)
	}

	breakdown := make(map[string]float64, len(data.Breakdown))
	for key, value := range data.Breakdown {
		breakdown[strings.ToLower(strings.TrimSpace(key))] = unit(value)
	}

	return GradingResult{
		Score:     unit(data.Score),
		Feedback:  strings.TrimSpace(data.Feedback),
		Verdict:   data.Verdict,
		Breakdown: breakdown,
	}, nil
}

func unit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
