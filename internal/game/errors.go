package game

import (
	"errors"
	"fmt"

	"github.com/noah-isme/gema-arena/internal/anticheat"
)

var (
	// ErrSessionNotFound indicates no live or persisted session has the requested id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionFull indicates the session already holds max_players players.
	ErrSessionFull = errors.New("session is full")
	// ErrSessionNotJoinable indicates the session no longer accepts new players.
	ErrSessionNotJoinable = errors.New("session is not joinable")
	// ErrSessionClosed indicates the session reached a terminal state.
	ErrSessionClosed = errors.New("session is closed")
	// ErrPlayerNotFound indicates the connection does not belong to a player of the session.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrSessionNotInProgress indicates the operation requires a running session.
	ErrSessionNotInProgress = errors.New("session is not in progress")
	// ErrSessionNotPaused indicates resume was requested for a session that is not paused.
	ErrSessionNotPaused = errors.New("session is not paused")
	// ErrNoActiveRound indicates there is no open round to submit to.
	ErrNoActiveRound = errors.New("no active round")
	// ErrDuplicateSubmission indicates the connection already submitted for the current round.
	ErrDuplicateSubmission = errors.New("duplicate submission")
	// ErrNotRoundParticipant indicates the player was not active when the round started.
	ErrNotRoundParticipant = errors.New("player is not a participant of the current round")
	// ErrSubmissionRejected indicates the anti-cheat engine rejected the submission.
	ErrSubmissionRejected = errors.New("submission rejected")
	// ErrNoProblemsAvailable indicates the problem source has nothing to offer.
	ErrNoProblemsAvailable = errors.New("no problems available")
	// ErrMaxRoundsReached indicates every configured round was already played.
	ErrMaxRoundsReached = errors.New("maximum rounds reached")
	// ErrCannotStart indicates start_game preconditions are not met.
	ErrCannotStart = errors.New("session cannot be started")
	// ErrNotSessionCreator indicates a creator-only operation was requested by someone else.
	ErrNotSessionCreator = errors.New("only the session creator may perform this action")
	// ErrSpectatorsDisabled indicates the session does not allow spectators.
	ErrSpectatorsDisabled = errors.New("spectators are not allowed")
	// ErrInvalidConfig indicates the session configuration failed validation.
	ErrInvalidConfig = errors.New("invalid session config")
	// ErrSelfMatch indicates a player attempted to match against themselves.
	ErrSelfMatch = errors.New("cannot match against yourself")
	// ErrStaleSession indicates another node persisted a newer snapshot; the caller should retry.
	ErrStaleSession = errors.New("session was updated elsewhere")
)

// RejectionError carries the verdict that caused a submission to be rejected.
type RejectionError struct {
	Verdict anticheat.Verdict
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: score %d", ErrSubmissionRejected.Error(), e.Verdict.Score)
}

func (e *RejectionError) Unwrap() error {
	return ErrSubmissionRejected
}

// IsClientError reports whether err belongs to the synchronous client error taxonomy.
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrSessionNotFound, ErrSessionFull, ErrSessionNotJoinable, ErrSessionClosed, ErrPlayerNotFound,
		ErrSessionNotInProgress, ErrSessionNotPaused, ErrNoActiveRound, ErrDuplicateSubmission, ErrNotRoundParticipant,
		ErrCannotStart, ErrNotSessionCreator, ErrSpectatorsDisabled, ErrSelfMatch, ErrMaxRoundsReached, ErrStaleSession,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
