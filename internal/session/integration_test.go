package session_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"relaychat/internal/ai"
	"relaychat/internal/attachment"
	"relaychat/internal/auth"
	"relaychat/internal/config"
	"relaychat/internal/eventbus"
	"relaychat/internal/models"
	"relaychat/internal/presence"
	"relaychat/internal/ratelimit"
	"relaychat/internal/search"
	"relaychat/internal/session"
	"relaychat/internal/store"
	"relaychat/internal/ws"
)

// testServer wires up the real websocket handshake end to end - an
// httptest.Server fronting the same gin handler cmd/relaychatd wires
// at /api/ws - so these scenarios exercise session.Session.dispatch
// through an actual *gorilla/websocket.Conn rather than a fake.
type testServer struct {
	wsURL  string
	st     *store.Store
	issuer *auth.Issuer
}

func newTestServer(t *testing.T, cfg config.Config) *testServer {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "relaychat.db")
	st, err := store.Connect("sqlite://" + dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	registry := presence.New(8)
	bus := eventbus.New(registry)
	deps := session.Deps{
		Store:       st,
		Registry:    registry,
		Bus:         bus,
		Limiter:     ratelimit.New(time.Minute),
		Search:      search.New(st),
		Attachments: attachment.New(st),
		AI:          ai.New(st, bus, "test-key", "http://127.0.0.1:1", 5000),
		Config:      cfg,
	}
	issuer := auth.New("test-signing-key", time.Hour)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/api/ws", ws.NewHandler(issuer, deps).Handle)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{
		wsURL:  "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws",
		st:     st,
		issuer: issuer,
	}
}

func defaultConfig() config.Config {
	return config.Config{
		OutboundQueueCapacity: 64,
		RateSendMessagePerMin: 120,
		RateQueryPerMin:       120,
		RateInvitePerMin:      120,
	}
}

func (ts *testServer) createUser(t *testing.T, username string) models.User {
	t.Helper()
	u, err := ts.st.CreateUser(context.Background(), username, username+"@example.com", username, "hash")
	require.NoError(t, err)
	return u
}

// dial performs the sub-protocol handshake the teacher's plain-header
// upgrade never needed: the bearer token travels as the second,
// base64url-no-padding-encoded entry of Sec-WebSocket-Protocol.
func (ts *testServer) dial(t *testing.T, userID int64, username string) *websocket.Conn {
	t.Helper()
	token, err := ts.issuer.Issue(userID, username)
	require.NoError(t, err)
	encoded := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte("Bearer " + token))

	dialer := websocket.Dialer{Subprotocols: []string{"fakeProtocol", encoded}}
	conn, _, err := dialer.Dial(ts.wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendCommand(t *testing.T, conn *websocket.Conn, cmd session.Command) {
	t.Helper()
	payload, err := json.Marshal(cmd)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
}

// readEvent reads frames until one of the given types arrives, or
// fails the test once the deadline passes - tolerant of an
// unspecified delivery order for events a dispatch fans out together.
func readEvent(t *testing.T, conn *websocket.Conn, wantTypes ...string) eventbus.Event {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var e eventbus.Event
		require.NoError(t, json.Unmarshal(raw, &e))
		for _, want := range wantTypes {
			if e.Type == want {
				return e
			}
		}
	}
}

func conversationID(t *testing.T, ts *testServer, memberIDs ...int64) int64 {
	t.Helper()
	conv, err := ts.st.CreateConversation(context.Background(), nil, memberIDs)
	require.NoError(t, err)
	return conv.ID
}

func mustBeFriends(t *testing.T, ts *testServer, a, b int64) {
	t.Helper()
	_, err := ts.st.HandleFriendRequest(context.Background(), a, b, true)
	require.NoError(t, err)
	_, err = ts.st.HandleFriendRequest(context.Background(), b, a, true)
	require.NoError(t, err)
}

// Scenario 1: a message sent into a shared conversation reaches every
// other online member (P1 audience) and nobody outside it.
func TestEndToEndMessageReachesConversationMembers(t *testing.T) {
	ts := newTestServer(t, defaultConfig())
	alice := ts.createUser(t, "alice")
	bob := ts.createUser(t, "bob")
	convID := conversationID(t, ts, alice.ID, bob.ID)

	aliceConn := ts.dial(t, alice.ID, "alice")
	bobConn := ts.dial(t, bob.ID, "bob")
	time.Sleep(50 * time.Millisecond) // let both handshakes subscribe

	sendCommand(t, aliceConn, session.Command{Type: session.CmdSendMessage, ConversationID: &convID, Body: "hi bob"})

	e := readEvent(t, bobConn, "Message")
	require.NotNil(t, e.Message)
	require.Equal(t, "hi bob", e.Message.Body)
	require.Equal(t, alice.ID, *e.Message.SenderID)
}

// Scenario 2: friend request send/accept is symmetric (P6) - once
// accepted, both sides see FriendRequest and FriendData.
func TestEndToEndFriendRequestAcceptIsSymmetric(t *testing.T) {
	ts := newTestServer(t, defaultConfig())
	alice := ts.createUser(t, "alice")
	bob := ts.createUser(t, "bob")

	aliceConn := ts.dial(t, alice.ID, "alice")
	bobConn := ts.dial(t, bob.ID, "bob")
	time.Sleep(50 * time.Millisecond)

	sendCommand(t, aliceConn, session.Command{Type: session.CmdSendFriendRequest, OtherUserID: bob.ID, Accept: true})
	pending := readEvent(t, bobConn, "FriendRequest")
	require.Equal(t, models.RequestPending, pending.FriendRequest.State)

	sendCommand(t, bobConn, session.Command{Type: session.CmdSendFriendRequest, OtherUserID: alice.ID, Accept: true})
	accepted := readEvent(t, aliceConn, "FriendRequest")
	require.Equal(t, models.RequestAccepted, accepted.FriendRequest.State)

	aliceFriendData := readEvent(t, aliceConn, "FriendData")
	require.Equal(t, bob.ID, aliceFriendData.FriendData.Friend.ID)
	bobFriendData := readEvent(t, bobConn, "FriendData")
	require.Equal(t, alice.ID, bobFriendData.FriendData.Friend.ID)
}

// Scenario 3: inviting a non-friend is rejected; once friends, the
// invite reaches the invitee, who can then read the conversation.
func TestEndToEndInviteRequiresFriendshipThenSucceeds(t *testing.T) {
	ts := newTestServer(t, defaultConfig())
	alice := ts.createUser(t, "alice")
	bob := ts.createUser(t, "bob")

	aliceConn := ts.dial(t, alice.ID, "alice")
	bobConn := ts.dial(t, bob.ID, "bob")
	time.Sleep(50 * time.Millisecond)

	sendCommand(t, aliceConn, session.Command{Type: session.CmdInviteUsers, Invitees: []int64{bob.ID}})
	errEvent := readEvent(t, aliceConn, "Error")
	require.Equal(t, "forbidden", errEvent.Error.Kind)

	mustBeFriends(t, ts, alice.ID, bob.ID)

	sendCommand(t, aliceConn, session.Command{Type: session.CmdInviteUsers, Invitees: []int64{bob.ID}})
	invite := readEvent(t, bobConn, "Invite")
	require.Equal(t, alice.ID, invite.Invite.Inviter)
	require.Contains(t, invite.Invite.UserIDs, bob.ID)
}

// Scenario 4: a search reply carries both the matching messages and
// the distinct senders behind them (C7), and the settings command pair
// round-trips a caller's own preferences.
func TestEndToEndSearchAndSettingsRoundTrip(t *testing.T) {
	ts := newTestServer(t, defaultConfig())
	alice := ts.createUser(t, "alice")
	convID := conversationID(t, ts, alice.ID)

	aliceConn := ts.dial(t, alice.ID, "alice")
	time.Sleep(50 * time.Millisecond)

	sendCommand(t, aliceConn, session.Command{Type: session.CmdSendMessage, ConversationID: &convID, Body: "a distinctive searchable phrase"})
	readEvent(t, aliceConn, "Message")

	sendCommand(t, aliceConn, session.Command{Type: session.CmdSearch, Query: "distinctive searchable"})
	found := readEvent(t, aliceConn, "Message")
	require.Equal(t, "a distinctive searchable phrase", found.Message.Body)
	users := readEvent(t, aliceConn, "SearchUsers")
	require.Len(t, users.SearchUsers.Users, 1)
	require.Equal(t, alice.ID, users.SearchUsers.Users[0].ID)

	sendCommand(t, aliceConn, session.Command{Type: session.CmdRequestSettings})
	defaults := readEvent(t, aliceConn, "Settings")
	require.False(t, defaults.Settings.AIEnabled)
	require.Equal(t, "system", defaults.Settings.Theme)

	theme := "dark"
	sendCommand(t, aliceConn, session.Command{Type: session.CmdUpdateSettings, Theme: &theme})
	updated := readEvent(t, aliceConn, "Settings")
	require.Equal(t, "dark", updated.Settings.Theme)
}

// Scenario 5: leaving a multi-member conversation notifies the
// remaining member instead of silently vanishing.
func TestEndToEndLeaveConversationNotifiesRemainingMember(t *testing.T) {
	ts := newTestServer(t, defaultConfig())
	alice := ts.createUser(t, "alice")
	bob := ts.createUser(t, "bob")
	convID := conversationID(t, ts, alice.ID, bob.ID)

	aliceConn := ts.dial(t, alice.ID, "alice")
	bobConn := ts.dial(t, bob.ID, "bob")
	time.Sleep(50 * time.Millisecond)

	sendCommand(t, aliceConn, session.Command{Type: session.CmdLeaveConversation, ConversationID: &convID})
	leave := readEvent(t, bobConn, "LeaveEvent")
	require.Equal(t, alice.ID, leave.LeaveEvent.UserID)
	require.Equal(t, convID, leave.LeaveEvent.ConversationID)
}

// Scenario 6: a command over its per-minute budget is rejected with a
// rate_limited error rather than silently dropped or queued.
func TestEndToEndRateLimitRejection(t *testing.T) {
	cfg := defaultConfig()
	cfg.RateQueryPerMin = 1
	ts := newTestServer(t, cfg)
	alice := ts.createUser(t, "alice")

	aliceConn := ts.dial(t, alice.ID, "alice")
	time.Sleep(50 * time.Millisecond)

	sendCommand(t, aliceConn, session.Command{Type: session.CmdRequestFriends})
	sendCommand(t, aliceConn, session.Command{Type: session.CmdRequestFriends})

	rejected := readEvent(t, aliceConn, "Error")
	require.Equal(t, "rate_limited", rejected.Error.Kind)
}
