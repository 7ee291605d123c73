package game

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-arena/internal/anticheat"
)

// ProblemSource draws challenges. It returns ErrNoProblemsAvailable when nothing matches difficulty; an empty
// difficulty matches every problem.
type ProblemSource interface {
	RandomProblem(ctx context.Context, difficulty string) (Problem, error)
}

// GradeRequest carries what the grading collaborator needs for one submission.
type GradeRequest struct {
	Problem  Problem
	UserID   string
	Code     string
	Language string
}

// Grader scores a submission from 0 to 100. Callers bound it with a timeout and fall back on failure.
type Grader interface {
	Grade(ctx context.Context, req GradeRequest) (Grading, error)
}

// Screener gates submissions through the anti-cheat engine.
type Screener interface {
	Screen(ctx context.Context, in anticheat.Input) anticheat.Verdict
	Accept(ctx context.Context, in anticheat.Input)
}

// Store is the key-value persistence contract. Get returns (nil, nil) for a missing key.
type Store interface {
	Get(ctx context.Context, sessionID string) ([]byte, error)
	Set(ctx context.Context, sessionID string, payload []byte, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
}

// VersionedStore is a Store that refuses to replace a snapshot with an older one. SetVersion reports false when
// the stored snapshot is already at version or beyond, meaning another node moved the session on.
type VersionedStore interface {
	Store
	SetVersion(ctx context.Context, sessionID string, version int64, payload []byte, ttl time.Duration) (bool, error)
}

// Notifier delivers outbound events. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Archiver keeps terminal sessions for history lookups after they leave the live registry.
type Archiver interface {
	Archive(ctx context.Context, snapshot Snapshot) error
}

// Dependencies are the collaborators shared by every session of a registry. Only Problems is mandatory.
type Dependencies struct {
	Problems       ProblemSource
	Grader         Grader
	Screener       Screener
	Store          Store
	Notifier       Notifier
	Archiver       Archiver
	GradingTimeout time.Duration
	StoreTTL       time.Duration
	Logger         zerolog.Logger
	Clock          func() time.Time
}

func (d Dependencies) withDefaults() Dependencies {
	if d.GradingTimeout <= 0 {
		d.GradingTimeout = 5 * time.Second
	}
	if d.StoreTTL <= 0 {
		d.StoreTTL = 24 * time.Hour
	}
	if d.Clock == nil {
		d.Clock = func() time.Time { return time.Now().UTC() }
	}
	return d
}
