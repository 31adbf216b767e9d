package session

import (
	"context"

	"relaychat/internal/apperr"
	"relaychat/internal/eventbus"
	"relaychat/internal/models"
	"relaychat/internal/search"
	"relaychat/internal/store"
)

func (s *Session) dispatch(ctx context.Context, cmd Command) error {
	switch cmd.Type {
	case CmdSendMessage:
		return s.handleSendMessage(ctx, cmd)
	case CmdRequestConversations:
		return s.handleRequestConversations(ctx, cmd)
	case CmdRequestConversation:
		return s.handleRequestConversation(ctx, cmd)
	case CmdRequestMessages:
		return s.handleRequestMessages(ctx, cmd)
	case CmdInviteUsers:
		return s.handleInviteUsers(ctx, cmd)
	case CmdLeaveConversation:
		return s.handleLeaveConversation(ctx, cmd)
	case CmdRenameConversation:
		return s.handleRenameConversation(ctx, cmd)
	case CmdSendFriendRequest:
		return s.handleSendFriendRequest(ctx, cmd)
	case CmdRequestFriends:
		return s.handleRequestFriends(ctx)
	case CmdRequestFriendRequests:
		return s.handleRequestFriendRequests(ctx)
	case CmdCancelGeneration:
		return s.handleCancelGeneration(ctx, cmd)
	case CmdSearch:
		return s.handleSearch(ctx, cmd)
	case CmdRequestSettings:
		return s.handleRequestSettings(ctx)
	case CmdUpdateSettings:
		return s.handleUpdateSettings(ctx, cmd)
	default:
		return apperr.New(apperr.Validation, "unknown command type: "+cmd.Type)
	}
}

func (s *Session) requireMembership(ctx context.Context, conversationID int64) error {
	member, err := s.deps.Store.IsMember(ctx, s.userID, conversationID)
	if err != nil {
		return err
	}
	if !member {
		return apperr.New(apperr.Forbidden, "not a member of this conversation")
	}
	return nil
}

func (s *Session) requireConversationID(cmd Command) (int64, error) {
	if cmd.ConversationID == nil {
		return 0, apperr.New(apperr.Validation, "conversationId is required")
	}
	return *cmd.ConversationID, nil
}

// handleSendMessage implements spec §4.4's SendMessage: conversationId
// and aiModelId are both optional. When conversationId is absent and
// aiModelId is present a private AI conversation is created on the
// fly with the sender as its sole human member; otherwise the sender
// must already belong to the named conversation.
func (s *Session) handleSendMessage(ctx context.Context, cmd Command) error {
	if cmd.Body == "" && cmd.Attachment == nil {
		return apperr.New(apperr.Validation, "message must have a body or an attachment")
	}

	var conversationID int64
	switch {
	case cmd.ConversationID != nil:
		conversationID = *cmd.ConversationID
		if err := s.requireMembership(ctx, conversationID); err != nil {
			return err
		}
	case cmd.AIModelID != nil:
		conv, err := s.deps.Store.CreateConversation(ctx, nil, []int64{s.userID})
		if err != nil {
			return err
		}
		conversationID = conv.ID
		s.deps.Registry.Subscribe(s.userID, conversationID)
	default:
		return apperr.New(apperr.Validation, "sendMessage requires a conversationId or an aiModelId")
	}

	var fileID *int64
	var fileName *string
	if cmd.Attachment != nil {
		file, err := s.deps.Attachments.Resolve(ctx, s.userID, cmd.Attachment.ID)
		if err != nil {
			return err
		}
		fileID = &file.ID
		name := cmd.Attachment.Name
		fileName = &name
	}

	senderID := s.userID
	msg, err := s.deps.Store.CreateMessage(ctx, conversationID, &senderID, nil, cmd.Body, fileID, fileName)
	if err != nil {
		return err
	}

	s.deps.Bus.Publish(eventbus.Event{Type: "Message", Message: &msg})

	if cmd.AIModelID != nil {
		s.deps.AI.Start(context.Background(), s.userID, conversationID, *cmd.AIModelID)
	}
	return nil
}

func (s *Session) handleRequestConversations(ctx context.Context, cmd Command) error {
	convs, err := s.deps.Store.ListConversations(ctx, s.userID)
	if err != nil {
		return err
	}
	limit := cmd.MessageNum
	if limit <= 0 || limit > len(convs) {
		limit = len(convs)
	}
	for _, c := range convs[:limit] {
		cc := c
		s.deps.Bus.Publish(eventbus.Event{Type: "Conversation", Conversation: &cc}, eventbus.Target{Conn: s.conn})
	}
	return nil
}

func (s *Session) handleRequestConversation(ctx context.Context, cmd Command) error {
	conversationID, err := s.requireConversationID(cmd)
	if err != nil {
		return err
	}
	if err := s.requireMembership(ctx, conversationID); err != nil {
		return err
	}
	conv, err := s.deps.Store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	s.deps.Bus.Publish(eventbus.Event{Type: "Conversation", Conversation: &conv}, eventbus.Target{Conn: s.conn})
	return nil
}

func (s *Session) handleRequestMessages(ctx context.Context, cmd Command) error {
	conversationID, err := s.requireConversationID(cmd)
	if err != nil {
		return err
	}
	if err := s.requireMembership(ctx, conversationID); err != nil {
		return err
	}
	limit := cmd.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	msgs, err := s.deps.Store.ListMessages(ctx, conversationID, cmd.Cursor, limit)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		mm := m
		s.deps.Bus.Publish(eventbus.Event{Type: "Message", Message: &mm}, eventbus.Target{Conn: s.conn})
	}
	return nil
}

// handleInviteUsers implements spec §4.4's InviteUsers /
// §4.1's inviteMembers: conversationId is optional (a new
// conversation is created when absent), and the inviter must be
// friends with every invitee.
func (s *Session) handleInviteUsers(ctx context.Context, cmd Command) error {
	if len(cmd.Invitees) == 0 {
		return apperr.New(apperr.Validation, "inviteUsers requires at least one invitee")
	}
	if cmd.ConversationID != nil {
		if err := s.requireMembership(ctx, *cmd.ConversationID); err != nil {
			return err
		}
	}

	conversationID, added, err := s.deps.Store.InviteMembers(ctx, cmd.ConversationID, s.userID, cmd.Invitees)
	if err != nil {
		return mapFriendshipErr(err)
	}
	if cmd.ConversationID == nil {
		s.deps.Registry.Subscribe(s.userID, conversationID)
	}
	if len(added) == 0 {
		return nil
	}
	for _, uid := range added {
		s.deps.Registry.Subscribe(uid, conversationID)
	}
	s.deps.Bus.Publish(eventbus.Event{
		Type:   "Invite",
		Invite: &eventbus.Invite{ConversationID: conversationID, Inviter: s.userID, UserIDs: added},
	})
	return nil
}

// handleLeaveConversation implements spec §4.1's leaveConversation:
// the conversation is deleted once its last member leaves.
func (s *Session) handleLeaveConversation(ctx context.Context, cmd Command) error {
	conversationID, err := s.requireConversationID(cmd)
	if err != nil {
		return err
	}
	deleted, err := s.deps.Store.LeaveConversation(ctx, s.userID, conversationID)
	if err != nil {
		return err
	}
	if !deleted {
		s.deps.Bus.Publish(eventbus.Event{
			Type:       "LeaveEvent",
			LeaveEvent: &eventbus.LeaveEvent{ConversationID: conversationID, UserID: s.userID},
		})
	}
	s.deps.Registry.Unsubscribe(s.userID, conversationID)
	return nil
}

func (s *Session) handleRenameConversation(ctx context.Context, cmd Command) error {
	conversationID, err := s.requireConversationID(cmd)
	if err != nil {
		return err
	}
	if err := s.requireMembership(ctx, conversationID); err != nil {
		return err
	}
	if _, err := s.deps.Store.RenameConversation(ctx, conversationID, cmd.Name); err != nil {
		return err
	}
	s.deps.Bus.Publish(eventbus.Event{
		Type:        "RenameEvent",
		RenameEvent: &eventbus.RenameEvent{ConversationID: conversationID, Name: cmd.Name},
	})
	return nil
}

// handleSendFriendRequest implements the unified SendFriendRequest
// command (spec §4.4): a single {otherUserId, accept} pair sends,
// accepts, or rejects a request depending on what already exists
// between the two users. The resulting FriendRequest is published to
// every connection of both users, the calling one included; on
// acceptance FriendData is published to both as well.
func (s *Session) handleSendFriendRequest(ctx context.Context, cmd Command) error {
	req, err := s.deps.Store.HandleFriendRequest(ctx, s.userID, cmd.OtherUserID, cmd.Accept)
	if err != nil {
		return mapFriendshipErr(err)
	}

	s.deps.Bus.Publish(eventbus.Event{Type: "FriendRequest", FriendRequest: &req})

	if req.State == models.RequestAccepted {
		self, err1 := s.deps.Store.GetUser(ctx, s.userID)
		other, err2 := s.deps.Store.GetUser(ctx, cmd.OtherUserID)
		if err1 == nil && err2 == nil {
			s.deps.Bus.Publish(eventbus.Event{
				Type:       "FriendData",
				FriendData: &eventbus.FriendData{UserID: cmd.OtherUserID, Friend: self},
			})
			s.deps.Bus.Publish(eventbus.Event{
				Type:       "FriendData",
				FriendData: &eventbus.FriendData{UserID: s.userID, Friend: other},
			})
		}
	}
	s.deps.Audit.Emit(ctx, "info", "friend request resolved: state="+string(req.State), s.conn.ID(), ptrUserID(s.userID))
	return nil
}

func (s *Session) handleRequestFriends(ctx context.Context) error {
	friends, err := s.deps.Store.ListFriends(ctx, s.userID)
	if err != nil {
		return err
	}
	for _, f := range friends {
		otherID := f.UserHigh
		if otherID == s.userID {
			otherID = f.UserLow
		}
		other, err := s.deps.Store.GetUser(ctx, otherID)
		if err != nil {
			continue
		}
		s.deps.Bus.Publish(eventbus.Event{
			Type:       "FriendData",
			FriendData: &eventbus.FriendData{UserID: s.userID, Friend: other},
		})
	}
	return nil
}

// handleRequestFriendRequests replays the caller's own pending
// requests back to them. FriendRequest's natural audience is the
// sender/receiver pair (a real resolution broadcasts to both), but a
// listing is addressed to whoever asked, so it overrides with an
// explicit Target instead of letting Publish derive the pair.
func (s *Session) handleRequestFriendRequests(ctx context.Context) error {
	reqs, err := s.deps.Store.ListFriendRequests(ctx, s.userID)
	if err != nil {
		return err
	}
	for _, r := range reqs {
		rr := r
		s.deps.Bus.Publish(eventbus.Event{Type: "FriendRequest", FriendRequest: &rr}, eventbus.Target{Conn: s.conn})
	}
	return nil
}

func (s *Session) handleCancelGeneration(ctx context.Context, cmd Command) error {
	conversationID, err := s.requireConversationID(cmd)
	if err != nil {
		return err
	}
	s.deps.AI.Cancel(s.userID, conversationID)
	s.deps.Audit.Emit(ctx, "info", "generation canceled", s.conn.ID(), ptrUserID(s.userID))
	return nil
}

func (s *Session) handleSearch(ctx context.Context, cmd Command) error {
	order := store.OrderNewest
	switch cmd.Order {
	case "oldest":
		order = store.OrderOldest
	case "relevance":
		order = store.OrderRelevance
	}
	page, err := s.deps.Search.Run(ctx, searchRequest(s.userID, cmd, order))
	if err != nil {
		return err
	}
	for _, m := range page.Messages {
		mm := m
		s.deps.Bus.Publish(eventbus.Event{Type: "Message", Message: &mm}, eventbus.Target{Conn: s.conn})
	}
	if len(page.Users) > 0 {
		s.deps.Bus.Publish(eventbus.Event{Type: "SearchUsers", SearchUsers: &eventbus.SearchUsersEvent{Users: page.Users}}, eventbus.Target{Conn: s.conn})
	}
	return nil
}

// handleRequestSettings replies with the caller's own AI/theme
// preferences - the read half of the UpdateSettings pair.
func (s *Session) handleRequestSettings(ctx context.Context) error {
	settings, err := s.deps.Store.GetSettings(ctx, s.userID)
	if err != nil {
		return err
	}
	s.deps.Bus.Publish(eventbus.Event{Type: "Settings", Settings: &settings}, eventbus.Target{Conn: s.conn})
	return nil
}

// handleUpdateSettings persists the caller's AI-enabled flag, selected
// model and theme, and echoes back the stored row. This replaces
// SendMessage's old implicit per-message settings lookup: a client
// now opts an AI model into a conversation explicitly via aiModelId
// on SendMessage, and manages the enabled/default-model/theme trio
// here instead.
func (s *Session) handleUpdateSettings(ctx context.Context, cmd Command) error {
	current, err := s.deps.Store.GetSettings(ctx, s.userID)
	if err != nil {
		return err
	}
	aiEnabled := current.AIEnabled
	if cmd.AIEnabled != nil {
		aiEnabled = *cmd.AIEnabled
	}
	modelID := current.AIModelID
	if cmd.AIModelID != nil {
		modelID = cmd.AIModelID
	}
	theme := current.Theme
	if cmd.Theme != nil {
		theme = *cmd.Theme
	}
	settings, err := s.deps.Store.UpdateSettings(ctx, s.userID, aiEnabled, modelID, theme)
	if err != nil {
		return err
	}
	s.deps.Bus.Publish(eventbus.Event{Type: "Settings", Settings: &settings}, eventbus.Target{Conn: s.conn})
	return nil
}

func searchRequest(userID int64, cmd Command, order store.SearchOrder) search.Request {
	return search.Request{
		UserID:          userID,
		ConversationIDs: cmd.Conversations,
		Text:            cmd.Query,
		Order:           order,
	}
}

func mapFriendshipErr(err error) error {
	switch err {
	case store.ErrAlreadyFriends, store.ErrDuplicateRequest:
		return apperr.Wrap(apperr.Conflict, err.Error(), err)
	case store.ErrRequestNotFound:
		return apperr.Wrap(apperr.NotFound, err.Error(), err)
	case store.ErrRequestNotPending:
		return apperr.Wrap(apperr.Conflict, err.Error(), err)
	case store.ErrNotFriends:
		return apperr.Wrap(apperr.Forbidden, err.Error(), err)
	default:
		return err
	}
}
