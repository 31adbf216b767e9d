// Package eventbus implements the Event Bus (spec §4.3): typed
// outbound events, an audience-routing table resolving each event
// type to the connections entitled to see it, and per-connection
// delivery with backpressure handling.
package eventbus

import "relaychat/internal/models"

// Event is the sum type of every frame the server can push to a
// client. Type is the wire discriminator (spec §6's outbound tag
// list; fields are camelCase to match).
type Event struct {
	Type               string               `json:"type"`
	Message            *models.Message      `json:"message,omitempty"`
	Conversation       *models.Conversation  `json:"conversation,omitempty"`
	StreamData         *StreamData          `json:"streamData,omitempty"`
	CanceledGeneration *CanceledGeneration  `json:"canceledGeneration,omitempty"`
	LeaveEvent         *LeaveEvent          `json:"leaveEvent,omitempty"`
	RenameEvent        *RenameEvent         `json:"renameEvent,omitempty"`
	Invite             *Invite              `json:"invite,omitempty"`
	FriendRequest      *models.FriendRequest `json:"friendRequest,omitempty"`
	FriendData         *FriendData          `json:"friendData,omitempty"`
	Error              *ErrorEvent          `json:"error,omitempty"`
	Generic            *GenericEvent        `json:"generic,omitempty"`
	SearchUsers        *SearchUsersEvent    `json:"searchUsers,omitempty"`
	Settings           *models.UserSettings `json:"settings,omitempty"`
}

// StreamData carries one relayed chunk of an in-flight AI response
// (spec §4.5 step 4). Generations are addressed by (querierId,
// conversationId), never a separate generation id, so that pair is
// all a client needs to track its own streaming bubble.
type StreamData struct {
	ConversationID int64  `json:"conversationId"`
	QuerierID      int64  `json:"querierId"`
	Message        string `json:"message"`
	Done           bool   `json:"done"`
}

type CanceledGeneration struct {
	ConversationID int64 `json:"conversationId"`
	QuerierID      int64 `json:"querierId"`
}

type LeaveEvent struct {
	ConversationID int64 `json:"conversationId"`
	UserID         int64 `json:"userId"`
}

type RenameEvent struct {
	ConversationID int64   `json:"conversationId"`
	Name           *string `json:"name,omitempty"`
}

type Invite struct {
	ConversationID int64   `json:"conversationId"`
	Inviter        int64   `json:"inviter"`
	UserIDs        []int64 `json:"userIds"`
}

type FriendData struct {
	UserID int64       `json:"userId"`
	Friend models.User `json:"friend"`
}

type ErrorEvent struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type GenericEvent struct {
	Text string `json:"text"`
}

// SearchUsersEvent decorates a search reply with the display records
// of every sender whose messages appear in the result page, so a
// client can show a name next to each hit without a follow-up lookup.
type SearchUsersEvent struct {
	Users []models.User `json:"users"`
}

// audience kinds Publish resolves an event to. Events that carry their
// own addressing (a conversation id, a sender/receiver pair, a single
// named user) are routed purely from that payload; events that don't
// (Conversation, Error, Generic - replies that exist only in the
// context of whoever asked) fall back to a caller-supplied Target.
type audience int

const (
	audienceConversation audience = iota // every online member of a conversation
	audiencePair                         // two named users (a friend request)
	audienceUser                         // one named user (friend data)
	audienceTarget                       // no address in the payload - use the caller's Target
)

func audienceFor(e Event) audience {
	switch {
	case e.Message != nil, e.StreamData != nil, e.CanceledGeneration != nil,
		e.LeaveEvent != nil, e.RenameEvent != nil, e.Invite != nil:
		return audienceConversation
	case e.FriendRequest != nil:
		return audiencePair
	case e.FriendData != nil:
		return audienceUser
	default:
		return audienceTarget
	}
}

// conversationIDFor extracts the conversation id embedded in an
// audienceConversation event. Panics if called on any other kind -
// Publish only calls it after audienceFor has already classified e.
func conversationIDFor(e Event) int64 {
	switch {
	case e.Message != nil:
		return e.Message.ConversationID
	case e.StreamData != nil:
		return e.StreamData.ConversationID
	case e.CanceledGeneration != nil:
		return e.CanceledGeneration.ConversationID
	case e.LeaveEvent != nil:
		return e.LeaveEvent.ConversationID
	case e.RenameEvent != nil:
		return e.RenameEvent.ConversationID
	case e.Invite != nil:
		return e.Invite.ConversationID
	default:
		panic("eventbus: conversationIDFor called on a non-conversation event")
	}
}

// pairFor extracts the two users addressed by an audiencePair event.
func pairFor(e Event) []int64 {
	return []int64{e.FriendRequest.SenderID, e.FriendRequest.ReceiverID}
}

// userFor extracts the single user addressed by an audienceUser event.
func userFor(e Event) int64 {
	return e.FriendData.UserID
}
