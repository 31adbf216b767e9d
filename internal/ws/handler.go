// Package ws hosts the /api/ws upgrade endpoint: the handshake
// authenticates the connection before handing it off to a
// session.Session. The sub-protocol carries a base64url,
// no-padding-encoded bearer token as its second entry (the teacher's
// internal/ws/chat_ws.go instead read the token from an Authorization
// header or ?token= query param - this protocol needs the
// sub-protocol list because browsers cannot set arbitrary headers on
// a WebSocket upgrade request).
package ws

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"relaychat/internal/auth"
	"relaychat/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
	Subprotocols:    []string{"fakeProtocol"},
}

type Handler struct {
	issuer *auth.Issuer
	deps   session.Deps
}

func NewHandler(issuer *auth.Issuer, deps session.Deps) *Handler {
	return &Handler{issuer: issuer, deps: deps}
}

// Handle implements the handshake: the bearer token travels as the
// second entry of the Sec-WebSocket-Protocol list, base64url
// encoded without padding (protocol list elements may not contain
// the characters a raw JWT does).
func (h *Handler) Handle(c *gin.Context) {
	protoHeader := c.GetHeader("Sec-WebSocket-Protocol")
	if protoHeader == "" {
		c.String(http.StatusBadRequest, "no protocol provided; pass your authorization token as the second protocol in the list")
		return
	}
	protocols := strings.Split(protoHeader, ",")
	for i := range protocols {
		protocols[i] = strings.TrimSpace(protocols[i])
	}
	if len(protocols) < 2 {
		c.String(http.StatusBadRequest, "no authorization token provided")
		return
	}

	decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(protocols[1])
	if err != nil {
		c.String(http.StatusBadRequest, "malformed authorization token")
		return
	}
	bearer := strings.TrimPrefix(string(decoded), "Bearer ")

	claims, err := h.issuer.Validate(bearer)
	if err != nil {
		c.String(http.StatusUnauthorized, "invalid token")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	sess := session.New(h.deps, conn, claims.UserID)
	go sess.Run(context.Background())
}
