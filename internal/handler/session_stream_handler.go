package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-arena/internal/dto"
	"github.com/noah-isme/gema-arena/internal/game"
	"github.com/noah-isme/gema-arena/internal/utils"
)

// EventSubscriber delivers session events to one subscriber until the returned cleanup runs.
type EventSubscriber interface {
	Subscribe(sessionID, userID string) (<-chan game.Event, func())
}

// Client frame types accepted over the websocket.
const (
	frameSubmitSolution = "submit_solution"
	frameLeaveSession   = "leave_session"
	frameState          = "get_state"
)

// Server frame types sent over the websocket in addition to session events.
const (
	frameSubmissionResult = "submission_result"
	frameSessionState     = "session_state"
	frameError            = "error"
)

type clientFrame struct {
	Type     string `json:"type"`
	Code     string `json:"code,omitempty"`
	Language string `json:"language,omitempty"`
}

type serverFrame struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Code      string      `json:"code,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	At        time.Time   `json:"at"`
}

// SessionStreamHandler pushes session events over SSE or a websocket. Both require a connection id owned by the
// caller, so only participants and spectators receive a session's events.
type SessionStreamHandler struct {
	registry  SessionRegistry
	events    EventSubscriber
	validator *validator.Validate
	logger    zerolog.Logger
	keepAlive time.Duration

	socketsMu  sync.Mutex
	sockets    map[socketKey]uint64
	generation uint64
}

// socketKey identifies the connection a websocket speaks for. The newest socket for a key owns it.
type socketKey struct {
	sessionID string
	conn      game.ConnectionID
}

// NewSessionStreamHandler constructs the handler.
func NewSessionStreamHandler(registry SessionRegistry, events EventSubscriber, validate *validator.Validate, logger zerolog.Logger, keepAlive time.Duration) *SessionStreamHandler {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	return &SessionStreamHandler{
		registry:  registry,
		events:    events,
		validator: validate,
		logger:    logger.With().Str("component", "session_stream_handler").Logger(),
		keepAlive: keepAlive,
		sockets:   make(map[socketKey]uint64),
	}
}

// Register binds the stream routes.
func (h *SessionStreamHandler) Register(router fiber.Router) {
	router.Get("/sessions/:id/events", h.stream)
	router.Get("/sessions/:id/ws", h.upgrade, websocket.New(h.handleConnection))
}

func (h *SessionStreamHandler) authorize(c *fiber.Ctx) (string, game.ConnectionID, error) {
	userID := userIDFromContext(c)
	if userID == "" {
		return "", "", utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}
	conn := game.ConnectionID(strings.TrimSpace(c.Query("connection_id")))
	if conn == "" {
		return "", "", utils.SendError(c, fiber.StatusBadRequest, "connection_id required")
	}
	if err := h.registry.Authorize(requestContext(c), c.Params("id"), conn, userID); err != nil {
		return "", "", sendDomainError(c, h.logger, err)
	}
	return userID, conn, nil
}

func (h *SessionStreamHandler) stream(c *fiber.Ctx) error {
	userID, _, err := h.authorize(c)
	if userID == "" {
		return err
	}
	sessionID := c.Params("id")

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(requestContext(c))
	events, cleanup := h.events.Subscribe(sessionID, userID)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			cleanup()
			cancel()
		}()

		ticker := time.NewTicker(h.keepAlive / 2)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				if err := writeSessionEvent(w, event); err != nil {
					h.logger.Debug().Err(err).Str("session_id", sessionID).Msg("failed to write session event")
					return
				}
			case <-ticker.C:
				if err := writeKeepAlive(w); err != nil {
					h.logger.Debug().Err(err).Str("session_id", sessionID).Msg("failed to write keepalive")
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

func (h *SessionStreamHandler) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	userID, conn, err := h.authorize(c)
	if userID == "" {
		return err
	}
	c.Locals("session_id", c.Params("id"))
	c.Locals("connection_id", string(conn))
	c.Locals("request_ctx", requestContext(c))
	return c.Next()
}

func (h *SessionStreamHandler) handleConnection(ws *websocket.Conn) {
	userID, _ := ws.Locals("user_id").(string)
	sessionID, _ := ws.Locals("session_id").(string)
	conn, _ := ws.Locals("connection_id").(string)
	ctx, _ := ws.Locals("request_ctx").(context.Context)
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	key := socketKey{sessionID: sessionID, conn: game.ConnectionID(conn)}
	generation := h.claimSocket(key)

	events, cleanup := h.events.Subscribe(sessionID, userID)
	client := &socketClient{
		handler:   h,
		ws:        ws,
		ctx:       ctx,
		userID:    userID,
		sessionID: sessionID,
		conn:      game.ConnectionID(conn),
		events:    events,
		send:      make(chan serverFrame, 16),
		closed:    make(chan struct{}),
	}

	logger := h.logger.With().Str("session_id", sessionID).Str("user_id", userID).Logger()
	logger.Info().Msg("session websocket connected")

	go client.writer()
	client.reader()
	cleanup()

	if !h.releaseSocket(key, generation) {
		logger.Info().Msg("session websocket replaced by a newer socket")
		return
	}
	if err := h.registry.Leave(context.Background(), sessionID, client.conn); err != nil {
		logger.Debug().Err(err).Msg("leave after disconnect failed")
	}
	logger.Info().Msg("session websocket disconnected")
}

// claimSocket makes the calling socket the owner of key and returns its generation.
func (h *SessionStreamHandler) claimSocket(key socketKey) uint64 {
	h.socketsMu.Lock()
	defer h.socketsMu.Unlock()
	h.generation++
	h.sockets[key] = h.generation
	return h.generation
}

// releaseSocket forgets key and reports true only when generation still owns it.
func (h *SessionStreamHandler) releaseSocket(key socketKey, generation uint64) bool {
	h.socketsMu.Lock()
	defer h.socketsMu.Unlock()
	if h.sockets[key] != generation {
		return false
	}
	delete(h.sockets, key)
	return true
}

type socketClient struct {
	handler   *SessionStreamHandler
	ws        *websocket.Conn
	ctx       context.Context
	userID    string
	sessionID string
	conn      game.ConnectionID
	events    <-chan game.Event
	send      chan serverFrame
	closed    chan struct{}
	once      sync.Once
}

func (c *socketClient) reader() {
	defer c.close()

	for {
		var frame clientFrame
		if err := c.ws.ReadJSON(&frame); err != nil {
			c.handler.logger.Debug().Err(err).Str("session_id", c.sessionID).Msg("session read loop ended")
			return
		}

		reply, leave := c.handle(frame)
		select {
		case c.send <- reply:
		case <-c.closed:
			return
		}
		if leave {
			return
		}
	}
}

func (c *socketClient) handle(frame clientFrame) (serverFrame, bool) {
	now := time.Now().UTC()
	switch frame.Type {
	case frameSubmitSolution:
		payload := dto.SubmitSolutionRequest{
			ConnectionID: string(c.conn),
			Code:         frame.Code,
			Language:     strings.ToLower(strings.TrimSpace(frame.Language)),
		}
		if err := c.handler.validator.Struct(payload); err != nil {
			return errorFrame(c.sessionID, err), false
		}
		verdict, err := c.handler.registry.Submit(c.ctx, c.sessionID, c.conn, payload.Code, payload.Language)
		if err != nil {
			return errorFrame(c.sessionID, err), false
		}
		return serverFrame{Type: frameSubmissionResult, SessionID: c.sessionID, Data: dto.NewSubmitSolutionResponse(verdict), At: now}, false
	case frameLeaveSession:
		if err := c.handler.registry.Leave(c.ctx, c.sessionID, c.conn); err != nil {
			return errorFrame(c.sessionID, err), false
		}
		return serverFrame{Type: frameLeaveSession, SessionID: c.sessionID, At: now}, true
	case frameState:
		view, err := c.handler.registry.State(c.ctx, c.sessionID)
		if err != nil {
			return errorFrame(c.sessionID, err), false
		}
		return serverFrame{Type: frameSessionState, SessionID: c.sessionID, Data: view, At: now}, false
	default:
		return serverFrame{Type: frameError, SessionID: c.sessionID, Code: "unknown_frame", Message: fmt.Sprintf("unknown frame type %q", frame.Type), At: now}, false
	}
}

func errorFrame(sessionID string, err error) serverFrame {
	status, code := classifyError(err)
	message := err.Error()
	if status >= fiber.StatusInternalServerError {
		message = "internal server error"
	}
	return serverFrame{Type: frameError, SessionID: sessionID, Code: code, Message: message, Data: errorData(err), At: time.Now().UTC()}
}

func (c *socketClient) writer() {
	defer c.close()

	ticker := time.NewTicker(c.handler.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-c.events:
			if !ok {
				return
			}
			if err := c.ws.WriteJSON(event); err != nil {
				c.handler.logger.Debug().Err(err).Msg("session write loop terminated")
				return
			}
		case frame := <-c.send:
			if err := c.ws.WriteJSON(frame); err != nil {
				c.handler.logger.Debug().Err(err).Msg("session write loop terminated")
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.handler.logger.Debug().Err(err).Msg("session ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *socketClient) close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

func writeSessionEvent(w *bufio.Writer, event game.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": keep-alive %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return w.Flush()
}
