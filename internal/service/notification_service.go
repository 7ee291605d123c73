package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-arena/internal/game"
	"github.com/noah-isme/gema-arena/internal/observability"
)

const (
	subscriberBufferSize = 32
	outboxSize           = 1024
)

// NotificationService fans session events out to local stream subscribers and to other nodes.
type NotificationService interface {
	game.Notifier
	// Subscribe attaches to sessionID as userID. An empty sessionID receives only events addressed to userID
	// directly, such as match_found.
	Subscribe(sessionID, userID string) (<-chan game.Event, func())
	Start(ctx context.Context)
}

type notificationService struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	tracer       trace.Tracer
	broker       *eventBroker
	nodeID       string
	outbox       chan envelope
	started      sync.Once
}

type envelope struct {
	Source string     `json:"source"`
	Event  game.Event `json:"event"`
	SentAt time.Time  `json:"sent_at"`
}

type subscription struct {
	sessionID string
	userID    string
	ch        chan game.Event
}

type eventBroker struct {
	mu   sync.RWMutex
	subs map[*subscription]struct{}
}

// NewNotificationService constructs the fan-out. redisClient and natsConn are optional; without either the
// service only delivers to subscribers on this node.
func NewNotificationService(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) NotificationService {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":events"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".events"
	}

	return &notificationService{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "notification_service").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/gema-arena/internal/service/notification"),
		broker:       &eventBroker{subs: make(map[*subscription]struct{})},
		nodeID:       uuid.NewString(),
		outbox:       make(chan envelope, outboxSize),
	}
}

func (s *notificationService) remote() bool {
	return (s.redis != nil && s.redisChannel != "") || (s.nats != nil && s.natsSubject != "")
}

func (s *notificationService) Start(ctx context.Context) {
	s.started.Do(func() {
		if !s.remote() {
			return
		}
		go s.publishLoop(ctx)
		if s.redis != nil && s.redisChannel != "" {
			go s.consumeRedis(ctx)
		}
		if s.nats != nil && s.natsSubject != "" {
			go s.consumeNATS(ctx)
		}
	})
}

// Notify delivers locally and queues the event for other nodes without blocking.
func (s *notificationService) Notify(ctx context.Context, event game.Event) {
	_, span := s.tracer.Start(ctx, "notifications.notify", trace.WithAttributes(
		attribute.String("event.type", string(event.Type)),
		attribute.String("session.id", event.SessionID),
	))
	defer span.End()

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	observability.Notifications().WithLabelValues(string(event.Type)).Inc()
	s.broker.deliver(event)

	if !s.remote() {
		return
	}
	select {
	case s.outbox <- envelope{Source: s.nodeID, Event: event, SentAt: time.Now().UTC()}:
	default:
		s.logger.Warn().Str("type", string(event.Type)).Str("session_id", event.SessionID).Msg("notification outbox full, remote delivery skipped")
	}
}

func (s *notificationService) Subscribe(sessionID, userID string) (<-chan game.Event, func()) {
	sub := &subscription{
		sessionID: sessionID,
		userID:    userID,
		ch:        make(chan game.Event, subscriberBufferSize),
	}
	s.broker.add(sub)
	observability.StreamClientsActive().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			s.broker.remove(sub)
			observability.StreamClientsActive().Dec()
		})
	}
	return sub.ch, cleanup
}

func (s *notificationService) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-s.outbox:
			if err := s.publish(ctx, env); err != nil {
				s.logger.Warn().Err(err).Str("type", string(env.Event.Type)).Msg("failed to publish notification to broker")
			}
		}
	}
}

func (s *notificationService) publish(ctx context.Context, env envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisChannel != "" {
		if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
			return err
		}
	}
	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}
	return nil
}

func (s *notificationService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("notification redis subscription closed")
			return
		}
		s.handleRemote([]byte(msg.Payload))
	}
}

// consumeNATS uses a plain subscription: every node must see every event to reach its own stream clients.
func (s *notificationService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleRemote(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats events subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain events nats subscription")
		}
	}()
}

func (s *notificationService) handleRemote(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		s.logger.Warn().Err(err).Msg("invalid notification envelope")
		return
	}
	if env.Source == s.nodeID {
		return
	}
	s.broker.deliver(env.Event)
}

func (b *eventBroker) add(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[sub] = struct{}{}
}

func (b *eventBroker) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

func (b *eventBroker) deliver(event game.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if !addressed(sub, event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

func addressed(sub *subscription, event game.Event) bool {
	if len(event.Recipients) == 0 {
		return sub.sessionID != "" && sub.sessionID == event.SessionID
	}
	if sub.sessionID != "" && sub.sessionID != event.SessionID {
		return false
	}
	for _, recipient := range event.Recipients {
		if recipient == sub.userID {
			return true
		}
	}
	return false
}
