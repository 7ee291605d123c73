package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-arena/internal/anticheat"
	"github.com/noah-isme/gema-arena/internal/observability"
)

// errUnchanged aborts a mutation without committing it.
var errUnchanged = errors.New("unchanged")

const securityViolationLimit = 5

// GameSession is the state machine of one match. Every mutation holds mu; readers use the last committed View.
type GameSession struct {
	mu          sync.Mutex
	data        *Snapshot
	deps        Dependencies
	view        atomic.Pointer[View]
	pending     []Event
	archived    bool
	closing     bool
	stale       atomic.Bool
	toArchive   *Snapshot
	evaluations sync.WaitGroup
	logger      zerolog.Logger
	tracer      trace.Tracer
}

type gradeJob struct {
	conn     ConnectionID
	userID   string
	code     string
	language string
}

// NewSession creates a session in the Waiting state.
func NewSession(id, creatorID string, cfg SessionConfig, deps Dependencies) *GameSession {
	deps = deps.withDefaults()
	return newSession(&Snapshot{
		ID:         id,
		Config:     cfg,
		State:      StateWaiting,
		CreatorID:  creatorID,
		CreatedAt:  deps.Clock(),
		Players:    make(map[ConnectionID]*Player),
		Spectators: make(map[ConnectionID]Spectator),
		Rounds:     []*Round{},
	}, deps)
}

// RestoreSession rebuilds a session from a persisted snapshot. A round that was being graded when the snapshot
// was taken is reopened so the sweeper grades it again.
func RestoreSession(payload []byte, deps Dependencies) (*GameSession, error) {
	var snapshot Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, fmt.Errorf("decode session snapshot: %w", err)
	}
	if snapshot.ID == "" {
		return nil, errors.New("decode session snapshot: missing id")
	}
	if snapshot.Players == nil {
		snapshot.Players = make(map[ConnectionID]*Player)
	}
	if snapshot.Spectators == nil {
		snapshot.Spectators = make(map[ConnectionID]Spectator)
	}
	if snapshot.State == StateStarting {
		snapshot.State = StateWaiting
	}
	for _, round := range snapshot.Rounds {
		round.Evaluating = false
		if round.Submissions == nil {
			round.Submissions = make(map[ConnectionID]*Submission)
		}
	}
	session := newSession(&snapshot, deps.withDefaults())
	session.archived = snapshot.State.Terminal()
	return session, nil
}

func newSession(data *Snapshot, deps Dependencies) *GameSession {
	s := &GameSession{
		data:   data,
		deps:   deps,
		logger: deps.Logger.With().Str("component", "game_session").Str("session_id", data.ID).Logger(),
		tracer: otel.Tracer("github.com/noah-isme/gema-arena/internal/game"),
	}
	s.view.Store(buildView(data))
	return s
}

// ID returns the immutable session id.
func (s *GameSession) ID() string {
	return s.data.ID
}

// View returns the last committed state without waiting for in-flight mutations.
func (s *GameSession) View() View {
	return *s.view.Load()
}

// Snapshot returns a deep copy of the full state, code included.
func (s *GameSession) Snapshot() (Snapshot, error) {
	s.mu.Lock()
	payload, err := json.Marshal(s.data)
	s.mu.Unlock()
	if err != nil {
		return Snapshot{}, err
	}
	var out Snapshot
	err = json.Unmarshal(payload, &out)
	return out, err
}

// Drain blocks until every in-flight round evaluation has been attached.
func (s *GameSession) Drain() {
	s.evaluations.Wait()
}

// Close stops new round evaluations and waits for in-flight ones to be attached. A round left open is graded
// by whichever node resumes the session.
func (s *GameSession) Close() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.evaluations.Wait()
}

// ConnectionOwner returns the user attached under conn, as a player or a spectator.
func (s *GameSession) ConnectionOwner(conn ConnectionID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.data.Players[conn]; ok {
		return p.UserID, true
	}
	if w, ok := s.data.Spectators[conn]; ok {
		return w.UserID, true
	}
	return "", false
}

// AddPlayer joins userID under conn. A user already in the session is reconnected under the new connection id
// in any non-terminal state; new players are only admitted while Waiting or Starting.
func (s *GameSession) AddPlayer(ctx context.Context, userID string, conn ConnectionID, displayName string) error {
	return s.mutate(ctx, func() error {
		d := s.data
		if d.State.Terminal() {
			return ErrSessionNotJoinable
		}

		if _, watching := d.Spectators[conn]; watching {
			return fmt.Errorf("%w: connection already bound", ErrSessionNotJoinable)
		}

		if existing := s.playerByUser(userID); existing != nil {
			if existing.ConnectionID != conn {
				if _, taken := d.Players[conn]; taken {
					return fmt.Errorf("%w: connection already bound", ErrSessionNotJoinable)
				}
				delete(d.Players, existing.ConnectionID)
				existing.ConnectionID = conn
				d.Players[conn] = existing
			}
			existing.Status = PlayerConnected
			if displayName != "" {
				existing.DisplayName = displayName
			}
			s.emit(EventPlayerJoined, nil, map[string]interface{}{
				"user_id":      userID,
				"display_name": existing.DisplayName,
				"reconnected":  true,
			})
			if d.State == StateInProgress {
				s.maybeEvaluateLocked(ctx, "complete")
			}
			return nil
		}

		if d.State != StateWaiting && d.State != StateStarting {
			return ErrSessionNotJoinable
		}
		if len(d.Players) >= d.Config.MaxPlayers {
			return ErrSessionFull
		}
		if _, taken := d.Players[conn]; taken {
			return fmt.Errorf("%w: connection already bound", ErrSessionNotJoinable)
		}

		d.Players[conn] = &Player{
			UserID:       userID,
			ConnectionID: conn,
			DisplayName:  displayName,
			Status:       PlayerConnected,
			Submissions:  []*Submission{},
			JoinedAt:     s.deps.Clock(),
		}
		s.emit(EventPlayerJoined, nil, map[string]interface{}{
			"user_id":      userID,
			"display_name": displayName,
			"players":      len(d.Players),
		})

		if d.Config.AutoStart && d.State == StateWaiting && len(d.Players) >= d.Config.MaxPlayers {
			if err := s.startGameLocked(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("auto start failed")
			}
		}
		return nil
	})
}

// RemovePlayer detaches conn. While a game runs the player is only marked disconnected so their results stand.
// A spectator connection is simply dropped.
func (s *GameSession) RemovePlayer(ctx context.Context, conn ConnectionID) error {
	return s.mutate(ctx, func() error {
		d := s.data
		if d.State.Terminal() {
			return ErrSessionClosed
		}
		if _, ok := d.Spectators[conn]; ok {
			delete(d.Spectators, conn)
			return nil
		}

		player, ok := d.Players[conn]
		if !ok {
			return ErrPlayerNotFound
		}

		switch d.State {
		case StateInProgress, StatePaused:
			player.Status = PlayerDisconnected
		default:
			delete(d.Players, conn)
			if player.UserID == d.CreatorID {
				s.handOverCreatorLocked()
			}
		}
		s.emit(EventPlayerLeft, nil, map[string]interface{}{"user_id": player.UserID})

		if s.activePlayers() == 0 {
			s.cancelLocked("all players left")
			return nil
		}
		if d.State == StateInProgress {
			s.maybeEvaluateLocked(ctx, "complete")
		}
		return nil
	})
}

// Start begins the game on behalf of requesterID, who must be the creator.
func (s *GameSession) Start(ctx context.Context, requesterID string) error {
	return s.mutate(ctx, func() error {
		if requesterID != s.data.CreatorID {
			return ErrNotSessionCreator
		}
		return s.startGameLocked(ctx)
	})
}

// SubmitSolution screens code and records it for the current round. The returned verdict is meaningful
// whenever screening ran, including rejections.
func (s *GameSession) SubmitSolution(ctx context.Context, conn ConnectionID, code, language string) (anticheat.Verdict, error) {
	verdict := anticheat.Verdict{Action: anticheat.ActionAccept, Violations: []string{}}

	err := s.mutate(ctx, func() error {
		d := s.data
		player, ok := d.Players[conn]
		if !ok {
			return ErrPlayerNotFound
		}
		if d.State != StateInProgress {
			return ErrSessionNotInProgress
		}
		round := s.currentRound()
		if round == nil || !round.open() {
			return ErrNoActiveRound
		}
		if !round.participant(player.UserID) {
			return ErrNotRoundParticipant
		}
		if round.submittedBy(player.UserID) {
			return ErrDuplicateSubmission
		}

		language = strings.ToLower(strings.TrimSpace(language))
		if language == "" {
			language = d.Config.Language
		}
		now := s.deps.Clock()
		input := anticheat.Input{
			SessionID:   d.ID,
			UserID:      player.UserID,
			ProblemID:   round.Problem.ID,
			Language:    language,
			Code:        code,
			SubmittedAt: now,
		}

		if s.deps.Screener != nil {
			verdict = s.deps.Screener.Screen(ctx, input)
		}
		if verdict.Escalated() {
			violations := verdict.Violations
			if len(violations) > securityViolationLimit {
				violations = violations[:securityViolationLimit]
			}
			s.emit(EventSecurityViolation, []string{player.UserID}, map[string]interface{}{
				"user_id":    player.UserID,
				"round":      round.Number,
				"action":     verdict.Action,
				"score":      verdict.Score,
				"violations": violations,
			})
		}
		if verdict.Action == anticheat.ActionReject {
			return &RejectionError{Verdict: verdict}
		}

		submission := &Submission{
			ConnectionID: conn,
			UserID:       player.UserID,
			Round:        round.Number,
			Code:         code,
			Language:     language,
			SubmittedAt:  now,
			Verdict:      verdict,
		}
		round.Submissions[conn] = submission
		player.Submissions = append(player.Submissions, submission)

		if s.deps.Screener != nil && verdict.Action != anticheat.ActionReview {
			s.deps.Screener.Accept(ctx, input)
		}

		s.emit(EventPlayerSubmitted, nil, map[string]interface{}{
			"user_id":   player.UserID,
			"round":     round.Number,
			"submitted": len(round.Submissions),
			"expected":  s.expectedSubmissions(round),
		})
		s.maybeEvaluateLocked(ctx, "complete")
		return nil
	})
	return verdict, err
}

// Spectate attaches a watcher. Spectators never count toward max_players.
func (s *GameSession) Spectate(ctx context.Context, conn ConnectionID, userID, displayName string) error {
	return s.mutate(ctx, func() error {
		d := s.data
		if d.State.Terminal() {
			return ErrSessionClosed
		}
		if !d.Config.AllowSpectators {
			return ErrSpectatorsDisabled
		}
		if _, playing := d.Players[conn]; playing {
			return fmt.Errorf("%w: connection already bound", ErrSessionNotJoinable)
		}
		d.Spectators[conn] = Spectator{
			ConnectionID: conn,
			UserID:       userID,
			DisplayName:  displayName,
			JoinedAt:     s.deps.Clock(),
		}
		return nil
	})
}

// Pause freezes a running game. Only the creator may pause.
func (s *GameSession) Pause(ctx context.Context, requesterID string) error {
	return s.mutate(ctx, func() error {
		d := s.data
		if requesterID != d.CreatorID {
			return ErrNotSessionCreator
		}
		if d.State != StateInProgress {
			return ErrSessionNotInProgress
		}
		now := s.deps.Clock()
		d.PausedAt = &now
		d.State = StatePaused
		s.emit(EventGamePaused, nil, map[string]interface{}{"round": d.CurrentRound})
		return nil
	})
}

// Resume continues a paused game; the open round's clock is shifted by the time spent paused.
func (s *GameSession) Resume(ctx context.Context, requesterID string) error {
	return s.mutate(ctx, func() error {
		d := s.data
		if requesterID != d.CreatorID {
			return ErrNotSessionCreator
		}
		if d.State != StatePaused {
			return ErrSessionNotPaused
		}

		now := s.deps.Clock()
		var paused time.Duration
		if d.PausedAt != nil {
			paused = now.Sub(*d.PausedAt)
		}
		d.PausedFor += paused
		d.PausedAt = nil
		d.State = StateInProgress

		round := s.currentRound()
		if round != nil && round.open() {
			round.StartTime = round.StartTime.Add(paused)
		}
		s.emit(EventGameResumed, nil, map[string]interface{}{
			"round":         d.CurrentRound,
			"paused_for_ms": paused.Milliseconds(),
		})

		switch {
		case round != nil && round.EndTime != nil && !round.Evaluating:
			s.advanceLocked(ctx, now)
		default:
			s.maybeEvaluateLocked(ctx, "complete")
		}
		return nil
	})
}

// Tick applies time-based transitions: idle Waiting sessions are cancelled, expired rounds are force-evaluated
// and a round left graded but not advanced is advanced.
func (s *GameSession) Tick(ctx context.Context, waitingIdle time.Duration) {
	_ = s.mutate(ctx, func() error {
		d := s.data
		now := s.deps.Clock()

		switch d.State {
		case StateWaiting:
			if waitingIdle > 0 && now.Sub(d.CreatedAt) >= waitingIdle {
				s.cancelLocked("idle")
				return nil
			}
		case StateInProgress:
			round := s.currentRound()
			if round == nil || round.Evaluating {
				return errUnchanged
			}
			if round.EndTime != nil {
				s.advanceLocked(ctx, now)
				return nil
			}
			limit := d.Config.RoundTimeLimit
			if s.sessionExpiredLocked(now) || (limit > 0 && now.Sub(round.StartTime) >= limit) {
				s.beginEvaluationLocked(ctx, round, "timeout")
				return nil
			}
			if s.roundReadyLocked(round) {
				s.beginEvaluationLocked(ctx, round, "resume")
				return nil
			}
		}
		return errUnchanged
	})
}

func (s *GameSession) startGameLocked(ctx context.Context) error {
	d := s.data
	if d.State.Terminal() {
		return ErrSessionClosed
	}
	if d.State != StateWaiting || s.activePlayers() == 0 {
		return ErrCannotStart
	}

	d.State = StateStarting
	round, err := s.startNextRoundLocked(ctx)
	if err != nil {
		d.State = StateWaiting
		return err
	}

	now := s.deps.Clock()
	d.StartedAt = &now
	d.State = StateInProgress

	players := make([]string, 0, len(d.Players))
	for _, p := range d.Players {
		players = append(players, p.UserID)
	}
	sort.Strings(players)
	s.emit(EventGameStarted, nil, map[string]interface{}{
		"players":    players,
		"max_rounds": d.Config.MaxRounds,
	})
	s.emitNewRound(round)
	return nil
}

func (s *GameSession) startNextRoundLocked(ctx context.Context) (*Round, error) {
	d := s.data
	if d.CurrentRound >= d.Config.MaxRounds {
		return nil, ErrMaxRoundsReached
	}

	problem, err := s.drawProblem(ctx)
	if err != nil {
		return nil, err
	}

	participants := make([]string, 0, len(d.Players))
	for _, p := range d.Players {
		if p.Status.active() {
			p.Status = PlayerPlaying
			participants = append(participants, p.UserID)
		}
	}
	sort.Strings(participants)

	round := &Round{
		Number:       len(d.Rounds) + 1,
		Problem:      problem,
		StartTime:    s.deps.Clock(),
		Participants: participants,
		Submissions:  make(map[ConnectionID]*Submission),
	}
	d.Rounds = append(d.Rounds, round)
	d.CurrentRound = len(d.Rounds)
	return round, nil
}

func (s *GameSession) drawProblem(ctx context.Context) (Problem, error) {
	if s.deps.Problems == nil {
		return Problem{}, ErrNoProblemsAvailable
	}
	difficulty := s.data.Config.Difficulty
	problem, err := s.deps.Problems.RandomProblem(ctx, difficulty)
	if errors.Is(err, ErrNoProblemsAvailable) && difficulty != "" {
		problem, err = s.deps.Problems.RandomProblem(ctx, "")
	}
	if err != nil {
		return Problem{}, err
	}
	return problem, nil
}

func (s *GameSession) emitNewRound(round *Round) {
	var deadline *time.Time
	if limit := s.data.Config.RoundTimeLimit; limit > 0 {
		t := round.StartTime.Add(limit)
		deadline = &t
	}
	s.emit(EventNewRound, nil, map[string]interface{}{
		"round":        round.Number,
		"max_rounds":   s.data.Config.MaxRounds,
		"problem":      round.Problem,
		"start_time":   round.StartTime,
		"deadline":     deadline,
		"participants": round.Participants,
	})
}

// advanceLocked moves past a graded round: the next round starts or the game ends.
func (s *GameSession) advanceLocked(ctx context.Context, now time.Time) {
	d := s.data
	if d.CurrentRound >= d.Config.MaxRounds || s.sessionExpiredLocked(now) {
		s.endGameLocked()
		return
	}
	round, err := s.startNextRoundLocked(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Int("round", d.CurrentRound+1).Msg("could not start next round, ending game")
		s.endGameLocked()
		return
	}
	s.emitNewRound(round)
}

func (s *GameSession) roundReadyLocked(round *Round) bool {
	if round == nil || !round.open() || len(round.Submissions) == 0 {
		return false
	}
	for _, userID := range round.Participants {
		p := s.playerByUser(userID)
		if p == nil || !p.Status.active() {
			continue
		}
		if !round.submittedBy(userID) {
			return false
		}
	}
	return true
}

func (s *GameSession) maybeEvaluateLocked(ctx context.Context, trigger string) {
	round := s.currentRound()
	if s.roundReadyLocked(round) {
		s.beginEvaluationLocked(ctx, round, trigger)
	}
}

// beginEvaluationLocked closes the round to submissions and grades it in the background. Evaluating guards
// against a second evaluation of the same round.
func (s *GameSession) beginEvaluationLocked(ctx context.Context, round *Round, trigger string) {
	if s.closing {
		return
	}
	round.Evaluating = true

	jobs := make([]gradeJob, 0, len(round.Submissions))
	for conn, sub := range round.Submissions {
		jobs = append(jobs, gradeJob{conn: conn, userID: sub.UserID, code: sub.Code, language: sub.Language})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].userID < jobs[j].userID })

	s.evaluations.Add(1)
	go s.evaluateRound(context.WithoutCancel(ctx), round.Number, round.Problem, jobs, trigger)
}

func (s *GameSession) evaluateRound(ctx context.Context, number int, problem Problem, jobs []gradeJob, trigger string) {
	defer s.evaluations.Done()

	ctx, span := s.tracer.Start(ctx, "game.evaluate_round", trace.WithAttributes(
		attribute.String("session.id", s.data.ID),
		attribute.Int("round.number", number),
		attribute.String("round.trigger", trigger),
		attribute.Int("round.submissions", len(jobs)),
	))
	defer span.End()

	results := make([]Grading, len(jobs))
	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job gradeJob) {
			defer wg.Done()
			results[i] = s.grade(ctx, problem, job)
		}(i, job)
	}
	wg.Wait()

	if err := s.mutate(ctx, func() error {
		return s.completeRoundLocked(ctx, number, jobs, results)
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	observability.RoundsEvaluated().WithLabelValues(trigger).Inc()
}

func (s *GameSession) grade(ctx context.Context, problem Problem, job gradeJob) Grading {
	if s.deps.Grader == nil {
		observability.GradingFallbacks().WithLabelValues("unavailable").Inc()
		return FallbackGrade(job.code, "grader unavailable", s.deps.Clock())
	}

	gradeCtx, cancel := context.WithTimeout(ctx, s.deps.GradingTimeout)
	defer cancel()

	grading, err := s.callGrader(gradeCtx, GradeRequest{
		Problem:  problem,
		UserID:   job.userID,
		Code:     job.code,
		Language: job.language,
	})
	if err != nil {
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		s.logger.Warn().Err(err).Str("user_id", job.userID).Str("reason", reason).Msg("grading failed, using fallback scorer")
		observability.GradingFallbacks().WithLabelValues(reason).Inc()
		return FallbackGrade(job.code, "grader "+reason, s.deps.Clock())
	}

	grading.TotalScore = clampScore(grading.TotalScore)
	if grading.LetterGrade == "" {
		grading.LetterGrade = LetterGrade(grading.TotalScore)
	}
	if grading.GradedAt.IsZero() {
		grading.GradedAt = s.deps.Clock()
	}
	return grading
}

// callGrader enforces the deadline even when the grader ignores its context, and turns a panic into an error.
func (s *GameSession) callGrader(ctx context.Context, req GradeRequest) (Grading, error) {
	type outcome struct {
		grading Grading
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("grader panic: %v", r)}
			}
		}()
		grading, err := s.deps.Grader.Grade(ctx, req)
		done <- outcome{grading: grading, err: err}
	}()

	select {
	case out := <-done:
		return out.grading, out.err
	case <-ctx.Done():
		return Grading{}, ctx.Err()
	}
}

func (s *GameSession) completeRoundLocked(ctx context.Context, number int, jobs []gradeJob, results []Grading) error {
	d := s.data
	if number < 1 || number > len(d.Rounds) {
		return errUnchanged
	}
	round := d.Rounds[number-1]
	if !round.Evaluating {
		return errUnchanged
	}

	now := s.deps.Clock()
	scores := make(map[string]int, len(round.Participants))
	graded := make(map[string]Grading, len(jobs))
	for _, userID := range round.Participants {
		scores[userID] = 0
	}

	for i, job := range jobs {
		grading := results[i]
		if sub := round.Submissions[job.conn]; sub != nil {
			g := grading
			sub.Grading = &g
		}
		if player := s.playerByUser(job.userID); player != nil {
			player.Score += grading.TotalScore
			for _, sub := range player.Submissions {
				if sub.Round == number && sub.Grading == nil {
					g := grading
					sub.Grading = &g
				}
			}
		}
		scores[job.userID] = grading.TotalScore
		graded[job.userID] = grading
	}

	round.Evaluating = false
	round.EndTime = &now
	round.Winner = uniqueLeader(scores)

	userIDs := make([]string, 0, len(scores))
	for userID := range scores {
		userIDs = append(userIDs, userID)
	}
	sort.Strings(userIDs)
	summary := make([]RoundResult, 0, len(userIDs))
	for _, userID := range userIDs {
		result := RoundResult{UserID: userID, Score: scores[userID], LetterGrade: LetterGrade(0)}
		if g, ok := graded[userID]; ok {
			result.LetterGrade = g.LetterGrade
			result.Feedback = g.Feedback
			result.Degraded = g.Degraded
			result.Submitted = true
		}
		summary = append(summary, result)
	}
	s.emit(EventRoundComplete, nil, map[string]interface{}{
		"round":   number,
		"results": summary,
		"winner":  round.Winner,
	})

	if d.State == StateInProgress {
		s.advanceLocked(ctx, now)
	}
	return nil
}

func (s *GameSession) endGameLocked() {
	d := s.data
	now := s.deps.Clock()
	d.State = StateCompleted
	d.EndedAt = &now
	d.PausedAt = nil

	d.FinalScores = make(map[string]int, len(d.Players))
	for _, p := range d.Players {
		d.FinalScores[p.UserID] = p.Score
		if p.Status.active() {
			p.Status = PlayerFinished
		}
	}
	d.Winner = uniqueLeader(d.FinalScores)

	s.emit(EventGameOver, nil, map[string]interface{}{
		"final_scores": d.FinalScores,
		"winner":       d.Winner,
		"rounds":       len(d.Rounds),
	})
}

func (s *GameSession) cancelLocked(reason string) {
	d := s.data
	now := s.deps.Clock()
	d.State = StateCancelled
	d.EndedAt = &now
	d.PausedAt = nil
	if round := s.currentRound(); round != nil && round.EndTime == nil && !round.Evaluating {
		round.EndTime = &now
	}
	s.emit(EventSessionCancelled, nil, map[string]interface{}{"reason": reason})
}

// handOverCreatorLocked passes creator rights to the longest-waiting remaining player.
func (s *GameSession) handOverCreatorLocked() {
	var next *Player
	for _, p := range s.data.Players {
		if next == nil || p.JoinedAt.Before(next.JoinedAt) || (p.JoinedAt.Equal(next.JoinedAt) && p.UserID < next.UserID) {
			next = p
		}
	}
	if next != nil {
		s.data.CreatorID = next.UserID
	}
}

func (s *GameSession) sessionExpiredLocked(now time.Time) bool {
	d := s.data
	limit := d.Config.SessionTimeLimit
	if limit <= 0 || d.StartedAt == nil {
		return false
	}
	return now.Sub(*d.StartedAt)-d.PausedFor >= limit
}

func (s *GameSession) currentRound() *Round {
	if len(s.data.Rounds) == 0 {
		return nil
	}
	return s.data.Rounds[len(s.data.Rounds)-1]
}

func (s *GameSession) playerByUser(userID string) *Player {
	for _, p := range s.data.Players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func (s *GameSession) activePlayers() int {
	count := 0
	for _, p := range s.data.Players {
		if p.Status.active() {
			count++
		}
	}
	return count
}

func (s *GameSession) expectedSubmissions(round *Round) int {
	expected := 0
	for _, userID := range round.Participants {
		if p := s.playerByUser(userID); p != nil && (p.Status.active() || round.submittedBy(userID)) {
			expected++
		}
	}
	return expected
}

func (s *GameSession) emit(eventType EventType, recipients []string, payload map[string]interface{}) {
	s.pending = append(s.pending, Event{
		Type:       eventType,
		SessionID:  s.data.ID,
		Recipients: recipients,
		Payload:    payload,
		At:         s.deps.Clock(),
	})
}

// mutate runs fn under the session lock, commits on success and delivers queued events after unlocking.
func (s *GameSession) mutate(ctx context.Context, fn func() error) error {
	if s.stale.Load() {
		return ErrStaleSession
	}

	s.mu.Lock()
	err := fn()
	if err == nil {
		err = s.commitLocked(ctx)
	}
	events := s.pending
	s.pending = nil
	archive := s.toArchive
	s.toArchive = nil
	s.mu.Unlock()

	if errors.Is(err, ErrStaleSession) {
		return err
	}

	if s.deps.Notifier != nil {
		for _, event := range events {
			s.deps.Notifier.Notify(ctx, event)
		}
	}
	if archive != nil && s.deps.Archiver != nil {
		if archiveErr := s.deps.Archiver.Archive(context.WithoutCancel(ctx), *archive); archiveErr != nil {
			s.logger.Warn().Err(archiveErr).Msg("failed to archive session")
		}
	}

	if errors.Is(err, errUnchanged) {
		return nil
	}
	return err
}

func (s *GameSession) commitLocked(ctx context.Context) error {
	d := s.data
	d.Version++
	s.view.Store(buildView(d))

	payload, err := json.Marshal(d)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode session snapshot")
		return nil
	}

	if !s.persistLocked(ctx, d, payload) {
		return ErrStaleSession
	}

	if d.State.Terminal() && !s.archived {
		s.archived = true
		var copied Snapshot
		if err := json.Unmarshal(payload, &copied); err == nil {
			s.toArchive = &copied
		}
	}
	return nil
}

// persistLocked writes the snapshot and reports false only when the store holds a newer one. Other store
// failures are logged and retried on the next mutation.
func (s *GameSession) persistLocked(ctx context.Context, d *Snapshot, payload []byte) bool {
	if s.deps.Store == nil {
		return true
	}

	versioned, ok := s.deps.Store.(VersionedStore)
	if !ok {
		if err := s.deps.Store.Set(ctx, d.ID, payload, s.deps.StoreTTL); err != nil {
			observability.StoreFailures().WithLabelValues("set").Inc()
			s.logger.Warn().Err(err).Int64("version", d.Version).Msg("failed to persist session, will retry on next mutation")
		}
		return true
	}

	written, err := versioned.SetVersion(ctx, d.ID, d.Version, payload, s.deps.StoreTTL)
	switch {
	case err != nil:
		observability.StoreFailures().WithLabelValues("set").Inc()
		s.logger.Warn().Err(err).Int64("version", d.Version).Msg("failed to persist session, will retry on next mutation")
	case !written:
		observability.StoreFailures().WithLabelValues("conflict").Inc()
		s.stale.Store(true)
		s.logger.Warn().Int64("version", d.Version).Msg("stored session is newer, dropping local copy")
		return false
	}
	return true
}

// Stale reports whether another node persisted a newer snapshot than this copy.
func (s *GameSession) Stale() bool {
	return s.stale.Load()
}

// uniqueLeader returns the user with the strictly highest positive score, or nil on a tie or when nobody scored.
func uniqueLeader(scores map[string]int) *string {
	var leader string
	best := 0
	tied := false
	for userID, score := range scores {
		switch {
		case score > best:
			best = score
			leader = userID
			tied = false
		case score == best && score > 0:
			tied = true
		}
	}
	if best == 0 || tied {
		return nil
	}
	return &leader
}
