package anticheat

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-arena/internal/observability"
)

const auditViolationLimit = 5

// AuditSink receives escalated verdicts. Implementations must not block.
type AuditSink interface {
	Record(ctx context.Context, eventType, severity string, details map[string]interface{})
}

// Engine combines the analyzer, similarity index and integrity monitor into one verdict per submission.
type Engine struct {
	analyzer   *CodeAnalyzer
	similarity *SimilarityIndex
	integrity  *IntegrityMonitor
	audit      AuditSink
	thresholds Thresholds
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// NewEngine wires the stages. similarity, integrity and audit may be nil, in which case the stage is skipped.
func NewEngine(analyzer *CodeAnalyzer, similarity *SimilarityIndex, integrity *IntegrityMonitor, audit AuditSink, logger zerolog.Logger) *Engine {
	if analyzer == nil {
		analyzer = NewCodeAnalyzer()
	}
	return &Engine{
		analyzer:   analyzer,
		similarity: similarity,
		integrity:  integrity,
		audit:      audit,
		thresholds: DefaultThresholds(),
		logger:     logger.With().Str("component", "anticheat_engine").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/gema-arena/internal/anticheat"),
	}
}

// WithThresholds overrides the action thresholds.
func (e *Engine) WithThresholds(t Thresholds) *Engine {
	e.thresholds = t
	return e
}

// Evaluate computes the verdict for in without recording anything. Stage failures are logged and the stage
// contributes nothing.
func (e *Engine) Evaluate(ctx context.Context, in Input) Verdict {
	ctx, span := e.tracer.Start(ctx, "anticheat.evaluate", trace.WithAttributes(
		attribute.String("session.id", in.SessionID),
		attribute.String("user.id", in.UserID),
	))
	defer span.End()

	if in.SubmittedAt.IsZero() {
		in.SubmittedAt = time.Now().UTC()
	}

	total := e.analyzer.Analyze(in.Code, in.Language)

	if e.similarity != nil {
		result, err := e.similarity.Check(ctx, in)
		if err != nil {
			span.RecordError(err)
			e.logger.Warn().Err(err).Str("session_id", in.SessionID).Msg("similarity stage skipped")
		} else {
			total.merge(result)
		}
	}

	if e.integrity != nil {
		result, err := e.integrity.Check(ctx, in)
		if err != nil {
			span.RecordError(err)
			e.logger.Warn().Err(err).Str("session_id", in.SessionID).Msg("integrity stage skipped")
		} else {
			total.merge(result)
		}
	}

	violations := make([]string, 0, len(total.Findings))
	for _, f := range total.Findings {
		violations = append(violations, f.String())
	}

	verdict := Verdict{
		Score:      total.Score,
		Violations: violations,
		Action:     e.thresholds.ActionFor(total.Score),
	}
	span.SetAttributes(
		attribute.Int("anticheat.score", verdict.Score),
		attribute.String("anticheat.action", string(verdict.Action)),
	)
	return verdict
}

// Screen evaluates in, audits escalated verdicts and records the attempt in the integrity history.
func (e *Engine) Screen(ctx context.Context, in Input) Verdict {
	if in.SubmittedAt.IsZero() {
		in.SubmittedAt = time.Now().UTC()
	}

	verdict := e.Evaluate(ctx, in)
	observability.Verdicts().WithLabelValues(string(verdict.Action)).Inc()

	if verdict.Escalated() {
		e.logger.Warn().
			Str("session_id", in.SessionID).
			Str("user_id", in.UserID).
			Int("score", verdict.Score).
			Str("action", string(verdict.Action)).
			Strs("violations", verdict.Violations).
			Msg("submission escalated")
		if e.audit != nil {
			severity := "high"
			if verdict.Action == ActionReject {
				severity = "critical"
			}
			violations := verdict.Violations
			if len(violations) > auditViolationLimit {
				violations = violations[:auditViolationLimit]
			}
			e.audit.Record(ctx, "anticheat_"+string(verdict.Action), severity, map[string]interface{}{
				"session_id": in.SessionID,
				"user_id":    in.UserID,
				"problem_id": in.ProblemID,
				"language":   in.Language,
				"score":      verdict.Score,
				"violations": violations,
			})
		}
	}

	if e.integrity != nil {
		if err := e.integrity.Record(ctx, in); err != nil {
			e.logger.Warn().Err(err).Str("session_id", in.SessionID).Msg("failed to record integrity attempt")
		}
	}

	return verdict
}

// Accept remembers a submission that passed screening so later submissions are compared against it.
func (e *Engine) Accept(ctx context.Context, in Input) {
	if e.similarity == nil || in.ProblemID == "" {
		return
	}
	if in.SubmittedAt.IsZero() {
		in.SubmittedAt = time.Now().UTC()
	}
	if err := e.similarity.Remember(ctx, in); err != nil {
		e.logger.Warn().Err(err).Str("session_id", in.SessionID).Msg("failed to remember accepted solution")
	}
}
