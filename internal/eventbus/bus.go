package eventbus

import "relaychat/internal/presence"

// Bus resolves the audience for an outbound event and pushes it to
// every entitled connection's own queue. Publish is the one entry
// point (spec §4.3: "a single operation publish(event) that chooses
// an audience from the event itself"):
//
//	Message / StreamData / CanceledGeneration / LeaveEvent /
//	RenameEvent / Invite   -> every online member of the conversation
//	                          named in the event's own payload
//	FriendRequest           -> the sender and receiver named in the
//	                          event's own payload
//	FriendData              -> the single user named in the event's
//	                          own payload
//	Conversation / Error / Generic, or any event replayed to whoever
//	asked for it (a history fetch, a search result, a friend-request
//	listing) rather than broadcast -> the Target the caller passes in,
//	since nothing about who is asking lives in the event itself.
type Bus struct {
	registry *presence.Registry
}

func New(registry *presence.Registry) *Bus {
	return &Bus{registry: registry}
}

// Target addresses an event Publish can't route from its own payload:
// either a specific connection (a synchronous reply) or a user (all of
// that user's live connections). At most one field should be set.
type Target struct {
	Conn   presence.Connection
	UserID int64
}

// Publish routes e to its audience. Pass target when e carries no
// addressing of its own (Conversation, Error, Generic) or when e's
// natural audience would be wrong for this call - e.g. replaying
// message history or an existing friend request back to the one
// connection that asked for it, rather than broadcasting it.
func (b *Bus) Publish(e Event, target ...Target) {
	if len(target) > 0 {
		t := target[0]
		if t.Conn != nil {
			b.publishToConnection(t.Conn, e)
			return
		}
		b.publishToUsers([]int64{t.UserID}, e)
		return
	}

	switch audienceFor(e) {
	case audienceConversation:
		b.publishToConversation(conversationIDFor(e), e)
	case audiencePair:
		b.publishToUsers(pairFor(e), e)
	case audienceUser:
		b.publishToUsers([]int64{userFor(e)}, e)
	default:
		// No address in the payload and no Target supplied - nothing
		// sane to deliver to.
	}
}

// publishToConversation routes e to every online member of
// conversationID.
func (b *Bus) publishToConversation(conversationID int64, e Event) {
	for _, uid := range b.registry.OnlineMembers(conversationID) {
		for _, conn := range b.registry.ConnectionsForUser(uid) {
			conn.Send(&e)
		}
	}
}

// publishToUsers routes e to every live connection of each named user.
func (b *Bus) publishToUsers(userIDs []int64, e Event) {
	for _, uid := range userIDs {
		for _, conn := range b.registry.ConnectionsForUser(uid) {
			conn.Send(&e)
		}
	}
}

// publishToConnection routes e to a single connection only.
func (b *Bus) publishToConnection(conn presence.Connection, e Event) {
	conn.Send(&e)
}
