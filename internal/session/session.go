// Package session implements the Connection Session (spec §4.4): one
// instance per live duplex connection, driving the
// Handshaking -> Ready -> Closing -> Closed state machine, decoding
// inbound commands, and dispatching them against the rest of the
// service.
package session

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/gorilla/websocket"

	"relaychat/internal/ai"
	"relaychat/internal/apperr"
	"relaychat/internal/attachment"
	"relaychat/internal/config"
	"relaychat/internal/eventbus"
	"relaychat/internal/observability"
	"relaychat/internal/presence"
	"relaychat/internal/ratelimit"
	"relaychat/internal/search"
	"relaychat/internal/store"
	"relaychat/internal/telemetry"
)

type State int

const (
	StateHandshaking State = iota
	StateReady
	StateClosing
	StateClosed
)

type Deps struct {
	Store       *store.Store
	Registry    *presence.Registry
	Bus         *eventbus.Bus
	Limiter     *ratelimit.Limiter
	Search      *search.Searcher
	Attachments *attachment.Resolver
	AI          *ai.Orchestrator
	Config      config.Config
	Audit       *telemetry.AuditEmitter
}

type Session struct {
	deps   Deps
	conn   *connection
	userID int64
	state  State
}

// New constructs a Session already past the handshake: the caller
// (internal/ws) is expected to have validated the bearer token before
// upgrading, matching spec §6's "token presented during handshake,
// connection refused otherwise" rule.
func New(deps Deps, wsConn *websocket.Conn, userID int64) *Session {
	return &Session{
		deps:   deps,
		conn:   newConnection(wsConn, userID, deps.Config.OutboundQueueCapacity),
		userID: userID,
		state:  StateHandshaking,
	}
}

// Run drives the session until the connection closes. It blocks the
// calling goroutine (the reader loop); the writer side runs on its
// own goroutine started by newConnection.
func (s *Session) Run(ctx context.Context) {
	evicted := s.deps.Registry.Add(s.conn)
	if evicted != nil {
		evicted.Close("too_many_connections")
	}
	s.subscribeConversations(ctx)
	s.state = StateReady
	observability.IncWSActive("chat")

	s.deps.Audit.Emit(ctx, "info", "connection established", s.conn.ID(), ptrUserID(s.userID))

	defer func() {
		s.state = StateClosing
		s.deps.Registry.Remove(s.conn)
		s.conn.Close("session_ended")
		s.state = StateClosed
		observability.DecWSActive("chat")
		s.deps.Audit.Emit(ctx, "info", "connection closed", s.conn.ID(), ptrUserID(s.userID))
	}()

	for {
		_, raw, err := s.conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				slog.Warn("websocket read error", "conn_id", s.conn.ID(), "error", err)
			}
			return
		}

		cmd, err := decodeCommand(raw)
		if err != nil {
			s.sendError(apperr.New(apperr.Validation, "malformed command frame"))
			continue
		}

		if !s.allow(cmd.Type) {
			observability.IncRateLimitRejection(cmd.Type)
			s.deps.Audit.Emit(ctx, "warn", "rate limit rejection: "+cmd.Type, s.conn.ID(), ptrUserID(s.userID))
			s.sendError(apperr.New(apperr.RateLimited, "rate limit exceeded for "+cmd.Type))
			continue
		}

		if err := s.dispatch(ctx, cmd); err != nil {
			s.sendError(err)
		} else {
			observability.IncWSEvent("chat", cmd.Type)
		}
	}
}

func (s *Session) subscribeConversations(ctx context.Context) {
	convs, err := s.deps.Store.ListConversations(ctx, s.userID)
	if err != nil {
		slog.Error("list conversations at handshake", "error", err)
		return
	}
	for _, c := range convs {
		s.deps.Registry.Subscribe(s.userID, c.ID)
	}
}

func (s *Session) allow(cmdType string) bool {
	perMinute := s.deps.Config.RateQueryPerMin
	switch cmdType {
	case CmdSendMessage:
		perMinute = s.deps.Config.RateSendMessagePerMin
	case CmdInviteUsers, CmdSendFriendRequest:
		perMinute = s.deps.Config.RateInvitePerMin
	}
	connKey := "conn:" + s.conn.ID() + ":" + cmdType
	userKey := "user:" + itoa(s.userID) + ":" + cmdType
	return s.deps.Limiter.Allow(connKey, perMinute) && s.deps.Limiter.Allow(userKey, perMinute)
}

func (s *Session) sendError(err error) {
	appErr := apperr.As(err)
	s.deps.Bus.Publish(eventbus.Event{
		Type: "Error",
		Error: &eventbus.ErrorEvent{
			Kind:    string(appErr.Kind),
			Message: appErr.Message,
		},
	}, eventbus.Target{Conn: s.conn})
}

func ptrUserID(id int64) *string {
	v := strconv.FormatInt(id, 10)
	return &v
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
