package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-arena/internal/dto"
	"github.com/noah-isme/gema-arena/internal/models"
	"github.com/noah-isme/gema-arena/internal/observability"
	"github.com/noah-isme/gema-arena/internal/repository"
)

const defaultAuditBuffer = 256

// MessageWriter is the subset of *kafka.Writer used for the audit stream.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaAuditWriter builds a writer for the security audit topic.
func NewKafkaAuditWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// AuditService persists anti-cheat escalations off the request path.
type AuditService interface {
	Record(ctx context.Context, eventType, severity string, details map[string]interface{})
	List(ctx context.Context, req dto.SecurityEventListRequest) (dto.SecurityEventListResponse, error)
	Start(ctx context.Context)
	Close() error
}

type auditService struct {
	repo   repository.SecurityEventRepository
	writer MessageWriter
	logger zerolog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan models.SecurityEvent
	wg     sync.WaitGroup
}

// NewAuditService constructs the audit sink. writer may be nil; buffer <= 0 uses the default size.
func NewAuditService(repo repository.SecurityEventRepository, writer MessageWriter, buffer int, logger zerolog.Logger) AuditService {
	if buffer <= 0 {
		buffer = defaultAuditBuffer
	}
	return &auditService{
		repo:   repo,
		writer: writer,
		logger: logger.With().Str("component", "audit_service").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
		queue:  make(chan models.SecurityEvent, buffer),
	}
}

// Record enqueues the event. It never blocks: a full buffer drops the event and counts it.
func (s *auditService) Record(_ context.Context, eventType, severity string, details map[string]interface{}) {
	event := models.SecurityEvent{
		EventType: strings.ToLower(strings.TrimSpace(eventType)),
		Severity:  strings.ToLower(strings.TrimSpace(severity)),
		SessionID: stringField(details, "session_id"),
		UserID:    stringField(details, "user_id"),
		Details:   auditDetails(details),
		CreatedAt: s.now(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		observability.AuditDropped().Inc()
		return
	}
	select {
	case s.queue <- event:
	default:
		observability.AuditDropped().Inc()
		s.logger.Warn().Str("event_type", event.EventType).Str("session_id", event.SessionID).Msg("audit buffer full, event dropped")
	}
}

// Start launches the writer loop. Close flushes what is buffered.
func (s *auditService) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for event := range s.queue {
			s.persist(context.WithoutCancel(ctx), event)
		}
	}()
}

func (s *auditService) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
	if s.writer != nil {
		return s.writer.Close()
	}
	return nil
}

func (s *auditService) persist(ctx context.Context, event models.SecurityEvent) {
	if s.repo != nil {
		if err := s.repo.Create(ctx, &event); err != nil {
			s.logger.Error().Err(err).Str("event_type", event.EventType).Msg("failed to persist security event")
		}
	}

	if s.writer == nil {
		return
	}
	payload, err := json.Marshal(dto.NewSecurityEventResponse(event))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode security event")
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(event.SessionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "severity", Value: []byte(event.Severity)},
		},
	}); err != nil {
		s.logger.Warn().Err(err).Str("event_type", event.EventType).Msg("failed to stream security event")
	}
}

func (s *auditService) List(ctx context.Context, req dto.SecurityEventListRequest) (dto.SecurityEventListResponse, error) {
	events, total, err := s.repo.List(ctx, repository.SecurityEventFilter{
		Page:      req.Page,
		PageSize:  req.PageSize,
		SessionID: strings.TrimSpace(req.SessionID),
		UserID:    strings.TrimSpace(req.UserID),
		Severity:  strings.ToLower(strings.TrimSpace(req.Severity)),
	})
	if err != nil {
		return dto.SecurityEventListResponse{}, err
	}

	items := make([]dto.SecurityEventResponse, 0, len(events))
	for _, event := range events {
		items = append(items, dto.NewSecurityEventResponse(event))
	}
	return dto.SecurityEventListResponse{
		Items:      items,
		Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, total),
	}, nil
}

func stringField(details map[string]interface{}, key string) string {
	value, ok := details[key]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}

func auditDetails(details map[string]interface{}) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for key, value := range details {
		if strings.EqualFold(key, "code") {
			continue
		}
		out[key] = value
	}
	return out
}
