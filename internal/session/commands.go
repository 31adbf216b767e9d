package session

import "encoding/json"

// Command is the inbound sum type: a "type" discriminator plus the
// fields relevant to that command. Unused fields are simply absent
// on the wire (camelCase, matching the outbound event shapes).
type Command struct {
	Type string `json:"type"`

	// SendMessage. ConversationID and AIModelID are both optional: if
	// ConversationID is nil and AIModelID is set, a new private AI
	// conversation is created implicitly with the sender as its sole
	// human member.
	ConversationID *int64      `json:"conversationId,omitempty"`
	AIModelID      *int64      `json:"aiModelId,omitempty"`
	Body           string      `json:"body,omitempty"`
	Attachment     *Attachment `json:"attachment,omitempty"`

	// RequestConversations
	MessageNum int `json:"messageNum,omitempty"`

	// RequestMessages
	Cursor *int64 `json:"cursor,omitempty"`
	Limit  int    `json:"limit,omitempty"`

	// RenameConversation
	Name *string `json:"name,omitempty"`

	// InviteUsers
	Invitees []int64 `json:"invitees,omitempty"`

	// SendFriendRequest
	OtherUserID int64 `json:"otherUserId,omitempty"`
	Accept      bool  `json:"accept,omitempty"`

	// Search
	Query         string  `json:"query,omitempty"`
	Conversations []int64 `json:"conversations,omitempty"`
	Order         string  `json:"order,omitempty"`

	// UpdateSettings. AIModelID is shared with SendMessage's field above.
	AIEnabled *bool   `json:"aiEnabled,omitempty"`
	Theme     *string `json:"theme,omitempty"`
}

// Attachment identifies a previously uploaded file to attach to a
// message.
type Attachment struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

const (
	CmdSendMessage           = "SendMessage"
	CmdRequestConversations  = "RequestConversations"
	CmdRequestConversation   = "RequestConversation"
	CmdRequestMessages       = "RequestMessages"
	CmdInviteUsers           = "InviteUsers"
	CmdLeaveConversation     = "LeaveConversation"
	CmdRenameConversation    = "RenameConversation"
	CmdSendFriendRequest     = "SendFriendRequest"
	CmdRequestFriends        = "RequestFriends"
	CmdRequestFriendRequests = "RequestFriendRequests"
	CmdCancelGeneration      = "CancelGeneration"
	CmdSearch                = "Search"
	CmdRequestSettings       = "RequestSettings"
	CmdUpdateSettings        = "UpdateSettings"
)

func decodeCommand(raw []byte) (Command, error) {
	var c Command
	err := json.Unmarshal(raw, &c)
	return c, err
}
