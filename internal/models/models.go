// Package models holds the domain types shared by the store, the
// presence/event layer, and the wire protocol.
package models

import "time"

type User struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	DisplayName  string    `db:"display_name" json:"display_name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	ProfileImage *int64    `db:"profile_image_file_id" json:"profile_image_file_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Friendship is symmetric; UserLow < UserHigh always.
type Friendship struct {
	UserLow   int64     `db:"user_low" json:"user_low"`
	UserHigh  int64     `db:"user_high" json:"user_high"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type RequestState string

const (
	RequestPending  RequestState = "pending"
	RequestAccepted RequestState = "accepted"
	RequestRejected RequestState = "rejected"
)

type FriendRequest struct {
	ID         int64        `db:"id" json:"id"`
	SenderID   int64        `db:"sender_id" json:"sender_id"`
	ReceiverID int64        `db:"receiver_id" json:"receiver_id"`
	State      RequestState `db:"state" json:"state"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
}

type Conversation struct {
	ID            int64     `db:"id" json:"id"`
	Title         *string   `db:"title" json:"title,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	LastMessageAt time.Time `db:"last_message_at" json:"last_message_at"`
}

type Membership struct {
	UserID         int64      `db:"user_id" json:"user_id"`
	ConversationID int64      `db:"conversation_id" json:"conversation_id"`
	JoinedAt       time.Time  `db:"joined_at" json:"joined_at"`
	LastReadAt     *time.Time `db:"last_read_at" json:"last_read_at,omitempty"`
	LastMessageAt  time.Time  `db:"last_message_at" json:"last_message_at"`
}

// Message has exactly one of SenderID or AIModelID set.
type Message struct {
	ID             int64     `db:"id" json:"id"`
	ConversationID int64     `db:"conversation_id" json:"conversation_id"`
	SenderID       *int64    `db:"sender_id" json:"sender_id,omitempty"`
	AIModelID      *int64    `db:"ai_model_id" json:"ai_model_id,omitempty"`
	Body           string    `db:"body" json:"body"`
	FileID         *int64    `db:"file_id" json:"file_id,omitempty"`
	FileName       *string   `db:"file_name" json:"file_name,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	ModifiedAt     time.Time `db:"modified_at" json:"modified_at"`
}

type File struct {
	ID             int64     `db:"id" json:"id"`
	StoragePath    string    `db:"storage_path" json:"-"`
	Mime           string    `db:"mime" json:"mime"`
	IsProfileImage bool      `db:"is_profile_image" json:"is_profile_image"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

type AIModel struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// HealthForm is a caller-submitted health-stats blob, stored opaquely
// (the boundary that accepts it has no domain stake in its shape).
type HealthForm struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Payload   string    `db:"payload" json:"payload"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type UserSettings struct {
	UserID        int64     `db:"user_id" json:"user_id"`
	AIEnabled     bool      `db:"ai_enabled" json:"ai_enabled"`
	AIModelID     *int64    `db:"ai_model_id" json:"ai_model_id,omitempty"`
	Theme         string    `db:"theme" json:"theme"`
	ModifiedAt    time.Time `db:"modified_at" json:"modified_at"`
}
