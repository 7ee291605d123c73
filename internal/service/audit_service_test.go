package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-arena/internal/dto"
	"github.com/noah-isme/gema-arena/internal/models"
	"github.com/noah-isme/gema-arena/internal/observability"
	"github.com/noah-isme/gema-arena/internal/repository"
)

type recordingWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	closed   bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestAuditServicePersistsAndStreams(t *testing.T) {
	db := setupServiceTestDB(t, &models.SecurityEvent{})
	writer := &recordingWriter{}
	svc := NewAuditService(repository.NewSecurityEventRepository(db), writer, 8, zerolog.Nop())
	svc.Start(context.Background())

	svc.Record(context.Background(), "anticheat_reject", "CRITICAL", map[string]interface{}{
		"session_id": "s-1",
		"user_id":    "mallory",
		"score":      170,
		"violations": []string{"security: subprocess"},
		"code":       "import os",
	})
	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())

	list, err := svc.List(context.Background(), dto.SecurityEventListRequest{SessionID: "s-1"})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	event := list.Items[0]
	require.Equal(t, "anticheat_reject", event.EventType)
	require.Equal(t, "critical", event.Severity)
	require.Equal(t, "mallory", event.UserID)
	require.NotContains(t, event.Details, "code")
	require.EqualValues(t, 170, event.Details["score"])

	require.True(t, writer.closed)
	require.Len(t, writer.messages, 1)
	require.Equal(t, "s-1", string(writer.messages[0].Key))
	var streamed dto.SecurityEventResponse
	require.NoError(t, json.Unmarshal(writer.messages[0].Value, &streamed))
	require.Equal(t, "anticheat_reject", streamed.EventType)
}

func TestAuditServiceDropsWhenBufferFull(t *testing.T) {
	svc := NewAuditService(nil, nil, 1, zerolog.Nop())
	before := testutil.ToFloat64(observability.AuditDropped())

	svc.Record(context.Background(), "anticheat_review", "high", map[string]interface{}{"session_id": "s-2"})
	svc.Record(context.Background(), "anticheat_review", "high", map[string]interface{}{"session_id": "s-2"})
	require.Equal(t, before+1, testutil.ToFloat64(observability.AuditDropped()))

	require.NoError(t, svc.Close())
	svc.Record(context.Background(), "anticheat_review", "high", nil)
	require.Equal(t, before+2, testutil.ToFloat64(observability.AuditDropped()))
}
