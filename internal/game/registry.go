package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-arena/internal/anticheat"
	"github.com/noah-isme/gema-arena/internal/observability"
)

const maxDisplayNameLength = 64

// RegistryConfig holds the sweeper windows and the defaults applied to matchmade sessions.
type RegistryConfig struct {
	Defaults           SessionConfig
	SweepInterval      time.Duration
	WaitingIdle        time.Duration
	CompletedRetention time.Duration
	CancelledRetention time.Duration
	QueueTimeout       time.Duration
}

// DefaultRegistryConfig returns the production windows.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Defaults:           DefaultSessionConfig(),
		SweepInterval:      5 * time.Second,
		WaitingIdle:        30 * time.Minute,
		CompletedRetention: time.Hour,
		CancelledRetention: 10 * time.Minute,
		QueueTimeout:       5 * time.Minute,
	}
}

// Registry owns the live sessions of this node and the matchmaking queue. It is constructed once and passed to
// every transport handler.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]*GameSession
	closing   atomic.Bool
	queue     *MatchmakingQueue
	deps      Dependencies
	cfg       RegistryConfig
	validate  *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewRegistry constructs the registry. A nil validator gets a fresh one.
func NewRegistry(cfg RegistryConfig, deps Dependencies, validate *validator.Validate) *Registry {
	deps = deps.withDefaults()
	defaults := DefaultRegistryConfig()
	if cfg.Defaults.Mode == "" {
		cfg.Defaults = defaults.Defaults
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	if cfg.WaitingIdle <= 0 {
		cfg.WaitingIdle = defaults.WaitingIdle
	}
	if cfg.CompletedRetention <= 0 {
		cfg.CompletedRetention = defaults.CompletedRetention
	}
	if cfg.CancelledRetention <= 0 {
		cfg.CancelledRetention = defaults.CancelledRetention
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = defaults.QueueTimeout
	}
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}

	return &Registry{
		sessions:  make(map[string]*GameSession),
		queue:     NewMatchmakingQueue(deps.Clock),
		deps:      deps,
		cfg:       cfg,
		validate:  validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    deps.Logger.With().Str("component", "session_registry").Logger(),
	}
}

// Defaults returns the session config applied when a request leaves fields empty.
func (r *Registry) Defaults() SessionConfig {
	return r.cfg.Defaults
}

// Queue exposes the matchmaking queue.
func (r *Registry) Queue() *MatchmakingQueue {
	return r.queue
}

// CreateSession validates cfg and registers a new Waiting session owned by creatorID.
func (r *Registry) CreateSession(ctx context.Context, creatorID string, cfg SessionConfig) (string, error) {
	if strings.TrimSpace(creatorID) == "" {
		return "", fmt.Errorf("%w: creator id is required", ErrInvalidConfig)
	}
	if r.deps.Problems == nil {
		return "", fmt.Errorf("%w: problem source is not configured", ErrInvalidConfig)
	}

	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	cfg.Language = strings.ToLower(strings.TrimSpace(cfg.Language))
	cfg.Difficulty = strings.ToLower(strings.TrimSpace(cfg.Difficulty))
	if err := r.validate.Struct(cfg); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	session := NewSession(uuid.NewString(), creatorID, cfg, r.deps)
	if err := session.mutate(ctx, func() error { return nil }); err != nil {
		return "", err
	}

	r.mu.Lock()
	r.sessions[session.ID()] = session
	r.mu.Unlock()

	r.logger.Info().Str("session_id", session.ID()).Str("creator_id", creatorID).Str("mode", cfg.Mode).Msg("session created")
	return session.ID(), nil
}

// Get returns the live session, loading it from the store when this node does not hold it or holds a copy that
// another node has since moved on.
func (r *Registry) Get(ctx context.Context, sessionID string) (*GameSession, error) {
	r.mu.RLock()
	session, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if ok && !session.Stale() {
		return session, nil
	}
	if ok {
		r.mu.Lock()
		if r.sessions[sessionID] == session {
			delete(r.sessions, sessionID)
		}
		r.mu.Unlock()
	}

	if r.deps.Store == nil {
		return nil, ErrSessionNotFound
	}
	payload, err := r.deps.Store.Get(ctx, sessionID)
	if err != nil {
		observability.StoreFailures().WithLabelValues("get").Inc()
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if payload == nil {
		return nil, ErrSessionNotFound
	}

	restored, err := RestoreSession(payload, r.deps)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[sessionID]; ok && !existing.Stale() {
		return existing, nil
	}
	r.sessions[sessionID] = restored
	r.logger.Info().Str("session_id", sessionID).Int64("version", restored.View().Version).Msg("session resumed from store")
	return restored, nil
}

// Join adds a player. An empty connection id is replaced by a generated one, which is returned.
func (r *Registry) Join(ctx context.Context, sessionID, userID string, conn ConnectionID, displayName string) (ConnectionID, error) {
	session, err := r.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if conn == "" {
		conn = ConnectionID(uuid.NewString())
	}
	if err := session.AddPlayer(ctx, userID, conn, r.cleanName(displayName, userID)); err != nil {
		return "", err
	}
	return conn, nil
}

// Leave detaches a connection. Leaving twice, or leaving a finished session, is not an error.
func (r *Registry) Leave(ctx context.Context, sessionID string, conn ConnectionID) error {
	session, err := r.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	err = session.RemovePlayer(ctx, conn)
	if errors.Is(err, ErrSessionClosed) || errors.Is(err, ErrPlayerNotFound) {
		return nil
	}
	return err
}

// Authorize returns ErrPlayerNotFound unless conn belongs to userID in the session.
func (r *Registry) Authorize(ctx context.Context, sessionID string, conn ConnectionID, userID string) error {
	session, err := r.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	owner, ok := session.ConnectionOwner(conn)
	if !ok || owner != userID {
		return ErrPlayerNotFound
	}
	return nil
}

// Start begins the session on behalf of its creator.
func (r *Registry) Start(ctx context.Context, sessionID, requesterID string) error {
	session, err := r.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	return session.Start(ctx, requesterID)
}

// Submit routes a solution to the session.
func (r *Registry) Submit(ctx context.Context, sessionID string, conn ConnectionID, code, language string) (anticheat.Verdict, error) {
	session, err := r.Get(ctx, sessionID)
	if err != nil {
		return anticheat.Verdict{}, err
	}
	return session.SubmitSolution(ctx, conn, code, language)
}

// Spectate attaches a watcher. An empty connection id is replaced by a generated one, which is returned.
func (r *Registry) Spectate(ctx context.Context, sessionID string, conn ConnectionID, userID, displayName string) (ConnectionID, error) {
	session, err := r.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if conn == "" {
		conn = ConnectionID(uuid.NewString())
	}
	if err := session.Spectate(ctx, conn, userID, r.cleanName(displayName, userID)); err != nil {
		return "", err
	}
	return conn, nil
}

// State returns the public view of the session.
func (r *Registry) State(ctx context.Context, sessionID string) (View, error) {
	session, err := r.Get(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	return session.View(), nil
}

// Pause freezes the session on behalf of its creator.
func (r *Registry) Pause(ctx context.Context, sessionID, requesterID string) error {
	session, err := r.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	return session.Pause(ctx, requesterID)
}

// Resume continues the session on behalf of its creator.
func (r *Registry) Resume(ctx context.Context, sessionID, requesterID string) error {
	session, err := r.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	return session.Resume(ctx, requesterID)
}

// FindMatch pairs the requester with the longest-waiting player of the same mode and language, or queues them.
// A matched pair gets a two-player auto-starting session in which the waiting player is the creator.
func (r *Registry) FindMatch(ctx context.Context, req MatchRequest) (MatchResult, error) {
	req.Mode = strings.ToLower(strings.TrimSpace(req.Mode))
	req.Language = strings.ToLower(strings.TrimSpace(req.Language))
	req.DisplayName = r.cleanName(req.DisplayName, req.UserID)
	if err := r.validate.Struct(req); err != nil {
		return MatchResult{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if req.ConnectionID == "" {
		req.ConnectionID = ConnectionID(uuid.NewString())
	}

	opponent, matched, position := r.queue.Take(req)
	if !matched {
		return MatchResult{ConnectionID: opponent.ConnectionID, QueuePosition: position}, nil
	}

	sessionID, err := r.createMatch(ctx, opponent, req)
	if err != nil {
		r.queue.Requeue(opponent)
		r.logger.Warn().Err(err).Str("user_id", req.UserID).Str("opponent_id", opponent.UserID).Msg("failed to create matched session")
		return MatchResult{}, err
	}

	if r.deps.Notifier != nil {
		r.deps.Notifier.Notify(ctx, Event{
			Type:       EventMatchFound,
			SessionID:  sessionID,
			Recipients: []string{opponent.UserID, req.UserID},
			Payload: map[string]interface{}{
				"session_id": sessionID,
				"players":    []string{opponent.UserID, req.UserID},
				"mode":       req.Mode,
				"language":   req.Language,
			},
			At: r.deps.Clock(),
		})
	}

	return MatchResult{Matched: true, SessionID: sessionID, ConnectionID: req.ConnectionID, Opponent: opponent.UserID}, nil
}

// CancelMatch withdraws the user from matchmaking.
func (r *Registry) CancelMatch(userID string, conn ConnectionID) bool {
	return r.queue.Cancel(userID, conn)
}

func (r *Registry) createMatch(ctx context.Context, opponent QueueEntry, req MatchRequest) (string, error) {
	if opponent.UserID == req.UserID {
		return "", ErrSelfMatch
	}

	cfg := r.cfg.Defaults
	cfg.Mode = req.Mode
	cfg.Language = req.Language
	cfg.MaxPlayers = 2
	cfg.AutoStart = true

	sessionID, err := r.CreateSession(ctx, opponent.UserID, cfg)
	if err != nil {
		return "", err
	}
	session, err := r.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}

	if err := session.AddPlayer(ctx, opponent.UserID, opponent.ConnectionID, opponent.DisplayName); err != nil {
		r.discard(ctx, sessionID)
		return "", err
	}
	if err := session.AddPlayer(ctx, req.UserID, req.ConnectionID, req.DisplayName); err != nil {
		r.discard(ctx, sessionID)
		return "", err
	}
	return sessionID, nil
}

func (r *Registry) discard(ctx context.Context, sessionID string) {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	if r.deps.Store != nil {
		if err := r.deps.Store.Delete(ctx, sessionID); err != nil {
			observability.StoreFailures().WithLabelValues("delete").Inc()
		}
	}
}

// Run sweeps on every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep applies time-based transitions to every live session, purges terminal sessions past their retention
// and expires stale matchmaking entries.
func (r *Registry) Sweep(ctx context.Context) {
	if r.closing.Load() {
		return
	}
	r.mu.RLock()
	sessions := make([]*GameSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	now := r.deps.Clock()
	counts := map[SessionState]int{}
	var purge []*GameSession
	for _, session := range sessions {
		if session.Stale() {
			purge = append(purge, session)
			continue
		}
		session.Tick(ctx, r.cfg.WaitingIdle)
		view := session.View()
		if view.EndedAt == nil {
			counts[view.State]++
			continue
		}
		retention := r.cfg.CompletedRetention
		if view.State == StateCancelled {
			retention = r.cfg.CancelledRetention
		}
		if now.Sub(*view.EndedAt) >= retention {
			purge = append(purge, session)
			continue
		}
		counts[view.State]++
	}

	if len(purge) > 0 {
		r.mu.Lock()
		for _, session := range purge {
			if r.sessions[session.ID()] == session {
				delete(r.sessions, session.ID())
			}
		}
		r.mu.Unlock()
		r.logger.Debug().Int("count", len(purge)).Msg("purged terminal sessions")
	}

	for _, state := range []SessionState{StateWaiting, StateInProgress, StatePaused, StateCompleted, StateCancelled} {
		observability.SessionsActive().WithLabelValues(string(state)).Set(float64(counts[state]))
	}

	if expired := r.queue.Prune(r.cfg.QueueTimeout); len(expired) > 0 {
		r.logger.Debug().Int("count", len(expired)).Msg("expired matchmaking entries")
	}
}

// Len returns the number of sessions held in memory.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown stops the sweeper and new round evaluations, then waits for in-flight evaluations so their results
// are persisted.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.closing.Store(true)

	r.mu.RLock()
	sessions := make([]*GameSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		for _, s := range sessions {
			s.Close()
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) cleanName(name, fallback string) string {
	clean := strings.TrimSpace(r.sanitizer.Sanitize(strings.TrimSpace(name)))
	if clean == "" {
		clean = fallback
	}
	if utf8.RuneCountInString(clean) > maxDisplayNameLength {
		clean = string([]rune(clean)[:maxDisplayNameLength])
	}
	return clean
}
