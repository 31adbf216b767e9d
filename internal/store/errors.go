package store

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrFileNotFound         = errors.New("file not found")
	ErrNotMember            = errors.New("user is not a member of conversation")
	ErrAlreadyMember        = errors.New("user is already a member of conversation")
	ErrRequestNotFound      = errors.New("friend request not found")
	ErrRequestNotPending    = errors.New("friend request is not pending")
	ErrAlreadyFriends       = errors.New("users are already friends")
	ErrDuplicateRequest     = errors.New("a pending friend request already exists between these users")
	ErrNotFriends           = errors.New("inviter is not friends with invitee")
)
