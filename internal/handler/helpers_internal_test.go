package handler

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-arena/internal/anticheat"
	"github.com/noah-isme/gema-arena/internal/dto"
	"github.com/noah-isme/gema-arena/internal/game"
)

func TestClassifyError(t *testing.T) {
	validate := validator.New()
	validationErr := validate.Var("", "required")

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("join: %w", game.ErrSessionFull), fiber.StatusConflict, "session_full"},
		{game.ErrSessionNotFound, fiber.StatusNotFound, "session_not_found"},
		{game.ErrNotSessionCreator, fiber.StatusForbidden, "not_session_creator"},
		{game.ErrStaleSession, fiber.StatusConflict, "session_conflict"},
		{&game.RejectionError{Verdict: anticheat.Verdict{Score: 90, Action: anticheat.ActionReject}}, fiber.StatusUnprocessableEntity, "submission_rejected"},
		{fmt.Errorf("%w: mode", game.ErrInvalidConfig), fiber.StatusBadRequest, "invalid_config"},
		{validationErr, fiber.StatusBadRequest, "validation_failed"},
		{game.ErrNoProblemsAvailable, fiber.StatusServiceUnavailable, "no_problems_available"},
		{errors.New("database down"), fiber.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, code := classifyError(tc.err)
		require.Equal(t, tc.status, status, tc.err.Error())
		require.Equal(t, tc.code, code, tc.err.Error())
	}
}

func TestErrorFrameCarriesRejectionVerdict(t *testing.T) {
	rejected := &game.RejectionError{Verdict: anticheat.Verdict{Score: 175, Action: anticheat.ActionReject}}

	frame := errorFrame("s-1", rejected)
	require.Equal(t, frameError, frame.Type)
	require.Equal(t, "submission_rejected", frame.Code)
	require.Equal(t, dto.SubmitSolutionResponse{Accepted: false, Action: string(anticheat.ActionReject), Score: 175}, frame.Data)

	frame = errorFrame("s-1", game.ErrDuplicateSubmission)
	require.Equal(t, "duplicate_submission", frame.Code)
	require.Nil(t, frame.Data)
}

func TestNewerSocketOwnsConnection(t *testing.T) {
	h := NewSessionStreamHandler(nil, nil, validator.New(), zerolog.Nop(), time.Second)
	key := socketKey{sessionID: "s-1", conn: "c-alice"}

	first := h.claimSocket(key)
	second := h.claimSocket(key)
	require.NotEqual(t, first, second)

	require.False(t, h.releaseSocket(key, first))
	require.True(t, h.releaseSocket(key, second))
	require.False(t, h.releaseSocket(key, second))

	other := socketKey{sessionID: "s-1", conn: "c-bob"}
	third := h.claimSocket(other)
	require.True(t, h.releaseSocket(other, third))
}
