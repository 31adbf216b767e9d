package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaychat/internal/models"
	"relaychat/internal/presence"
)

// fakeConn is the test double for presence.Connection: it just
// records every event handed to Send so a test can assert on
// audience membership without a real websocket.
type fakeConn struct {
	id        string
	userID    int64
	connected time.Time
	received  []Event
}

func (f *fakeConn) ID() string             { return f.id }
func (f *fakeConn) UserID() int64          { return f.userID }
func (f *fakeConn) ConnectedAt() time.Time { return f.connected }
func (f *fakeConn) Close(reason string)    {}
func (f *fakeConn) Send(event any) bool {
	e, ok := event.(*Event)
	if !ok {
		return false
	}
	f.received = append(f.received, *e)
	return true
}

func newFakeConn(id string, userID int64) *fakeConn {
	return &fakeConn{id: id, userID: userID, connected: time.Now()}
}

// P1: a Message event reaches every online member of its conversation
// and nobody else.
func TestPublishMessageReachesConversationMembersOnly(t *testing.T) {
	reg := presence.New(8)
	alice := newFakeConn("a1", 1)
	bob := newFakeConn("b1", 2)
	carol := newFakeConn("c1", 3)
	reg.Add(alice)
	reg.Add(bob)
	reg.Add(carol)
	reg.Subscribe(1, 100)
	reg.Subscribe(2, 100)
	// carol never subscribes to conversation 100.

	bus := New(reg)
	bus.Publish(Event{Type: "Message", Message: &models.Message{ConversationID: 100}})

	require.Len(t, alice.received, 1)
	require.Len(t, bob.received, 1)
	assert.Empty(t, carol.received)
}

// P1: a FriendRequest event reaches exactly the sender and receiver.
func TestPublishFriendRequestReachesPairOnly(t *testing.T) {
	reg := presence.New(8)
	alice := newFakeConn("a1", 1)
	bob := newFakeConn("b1", 2)
	carol := newFakeConn("c1", 3)
	reg.Add(alice)
	reg.Add(bob)
	reg.Add(carol)

	bus := New(reg)
	bus.Publish(Event{Type: "FriendRequest", FriendRequest: &models.FriendRequest{SenderID: 1, ReceiverID: 2}})

	assert.Len(t, alice.received, 1)
	assert.Len(t, bob.received, 1)
	assert.Empty(t, carol.received)
}

// P1: a FriendData event reaches only the single named user.
func TestPublishFriendDataReachesNamedUserOnly(t *testing.T) {
	reg := presence.New(8)
	alice := newFakeConn("a1", 1)
	bob := newFakeConn("b1", 2)
	reg.Add(alice)
	reg.Add(bob)

	bus := New(reg)
	bus.Publish(Event{Type: "FriendData", FriendData: &FriendData{UserID: 1, Friend: models.User{ID: 2}}})

	assert.Len(t, alice.received, 1)
	assert.Empty(t, bob.received)
}

// An event with no self-addressing (Generic) is delivered nowhere
// unless the caller supplies a Target.
func TestPublishGenericWithoutTargetDeliversNothing(t *testing.T) {
	reg := presence.New(8)
	alice := newFakeConn("a1", 1)
	reg.Add(alice)

	bus := New(reg)
	bus.Publish(Event{Type: "Generic", Generic: &GenericEvent{Text: "hi"}})

	assert.Empty(t, alice.received)
}

// A Target always wins over the payload's own addressing - it is how
// a search reply or history fetch gets routed back to the one
// connection that asked, rather than broadcast to a conversation.
func TestPublishWithTargetOverridesPayloadAudience(t *testing.T) {
	reg := presence.New(8)
	alice := newFakeConn("a1", 1)
	bob := newFakeConn("b1", 2)
	reg.Add(alice)
	reg.Add(bob)
	reg.Subscribe(1, 100)
	reg.Subscribe(2, 100)

	bus := New(reg)
	bus.Publish(Event{Type: "Message", Message: &models.Message{ConversationID: 100}}, Target{Conn: alice})

	assert.Len(t, alice.received, 1)
	assert.Empty(t, bob.received)
}

func TestPublishWithUserTargetReachesAllOfThatUsersConnections(t *testing.T) {
	reg := presence.New(8)
	aliceConn1 := newFakeConn("a1", 1)
	aliceConn2 := newFakeConn("a2", 1)
	bob := newFakeConn("b1", 2)
	reg.Add(aliceConn1)
	reg.Add(aliceConn2)
	reg.Add(bob)

	bus := New(reg)
	bus.Publish(Event{Type: "Generic", Generic: &GenericEvent{Text: "hi"}}, Target{UserID: 1})

	assert.Len(t, aliceConn1.received, 1)
	assert.Len(t, aliceConn2.received, 1)
	assert.Empty(t, bob.received)
}
