package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"relaychat/internal/apperr"
	"relaychat/internal/models"
)

func canonicalPair(a, b int64) (low, high int64) {
	if a < b {
		return a, b
	}
	return b, a
}

func (s *Store) AreFriends(ctx context.Context, a, b int64) (bool, error) {
	low, high := canonicalPair(a, b)
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM friendships WHERE user_low = ? AND user_high = ?)`, low, high)
	return exists, err
}

func (s *Store) ListFriends(ctx context.Context, userID int64) ([]models.Friendship, error) {
	var rows []models.Friendship
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM friendships WHERE user_low = ? OR user_high = ? ORDER BY created_at DESC`,
		userID, userID)
	return rows, err
}

// HandleFriendRequest implements the single send/accept/reject
// command the protocol exposes: its outcome depends on whatever
// friend_requests state already exists between userID and
// otherUserID plus the caller's accept flag, grounded on
// original_source/api/src/chat/websocket.rs's handle_friend_request.
//
// accept=true:
//   - an existing outgoing request (userID -> otherUserID) is a
//     conflict: ErrDuplicateRequest.
//   - an existing incoming request (otherUserID -> userID) is
//     accepted: the friendship is created and the request row
//     removed.
//   - otherwise a new outgoing request is created, pending.
//
// accept=false: deletes any request between the pair in either
// direction (treated as "decline" or "cancel" depending on who sent
// it); ErrRequestNotFound if none existed.
//
// The returned FriendRequest always reports {sender: userID,
// receiver: otherUserID} for the accept path, mirroring the acting
// user's perspective; the reject path reports the deleted row's
// actual direction.
func (s *Store) HandleFriendRequest(ctx context.Context, userID, otherUserID int64, accept bool) (models.FriendRequest, error) {
	if userID == otherUserID {
		return models.FriendRequest{}, apperr.New(apperr.Validation, "cannot send a friend request to yourself")
	}

	var req models.FriendRequest
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if accept {
			var outgoingExists bool
			if err := tx.GetContext(ctx, &outgoingExists, `
				SELECT EXISTS(SELECT 1 FROM friend_requests WHERE sender_id = ? AND receiver_id = ?)`,
				userID, otherUserID); err != nil {
				return err
			}
			if outgoingExists {
				return ErrDuplicateRequest
			}

			var incomingExists bool
			if err := tx.GetContext(ctx, &incomingExists, `
				SELECT EXISTS(SELECT 1 FROM friend_requests WHERE sender_id = ? AND receiver_id = ?)`,
				otherUserID, userID); err != nil {
				return err
			}

			if incomingExists {
				low, high := canonicalPair(userID, otherUserID)
				var createdAt sql.NullTime
				if err := tx.QueryRowxContext(ctx, `
					INSERT INTO friendships (user_low, user_high) VALUES (?, ?)
					RETURNING created_at`, low, high,
				).Scan(&createdAt); err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx, `
					DELETE FROM friend_requests WHERE sender_id = ? AND receiver_id = ?`, otherUserID, userID); err != nil {
					return err
				}
				req = models.FriendRequest{SenderID: userID, ReceiverID: otherUserID, State: models.RequestAccepted, CreatedAt: createdAt.Time}
				return nil
			}

			return tx.QueryRowxContext(ctx, `
				INSERT INTO friend_requests (sender_id, receiver_id, state) VALUES (?, ?, 'pending')
				RETURNING id, sender_id, receiver_id, state, created_at`,
				userID, otherUserID,
			).StructScan(&req)
		}

		err := tx.QueryRowxContext(ctx, `
			DELETE FROM friend_requests
			WHERE (sender_id = ? OR sender_id = ?) AND (receiver_id = ? OR receiver_id = ?)
			RETURNING id, sender_id, receiver_id, state, created_at`,
			userID, otherUserID, userID, otherUserID,
		).StructScan(&req)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRequestNotFound
		}
		if err != nil {
			return err
		}
		req.State = models.RequestRejected
		return nil
	})
	return req, err
}

func (s *Store) ListFriendRequests(ctx context.Context, userID int64) ([]models.FriendRequest, error) {
	var rows []models.FriendRequest
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM friend_requests WHERE receiver_id = ? AND state = 'pending' ORDER BY created_at DESC`,
		userID)
	return rows, err
}

func (s *Store) areFriendsTx(ctx context.Context, tx *sqlx.Tx, a, b int64) (bool, error) {
	low, high := canonicalPair(a, b)
	var exists bool
	err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM friendships WHERE user_low = ? AND user_high = ?)`, low, high)
	return exists, err
}
