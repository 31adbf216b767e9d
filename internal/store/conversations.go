package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"relaychat/internal/apperr"
	"relaychat/internal/models"
)

// CreateConversation starts a conversation with the given members
// (the creator included) joined as of now.
func (s *Store) CreateConversation(ctx context.Context, title *string, memberIDs []int64) (models.Conversation, error) {
	var conv models.Conversation
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.QueryRowxContext(ctx, `
			INSERT INTO conversations (title) VALUES (?)
			RETURNING id, title, created_at, last_message_at`, title,
		).StructScan(&conv); err != nil {
			return err
		}
		for _, uid := range memberIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO memberships (user_id, conversation_id) VALUES (?, ?)`, uid, conv.ID); err != nil {
				return err
			}
		}
		return nil
	})
	return conv, err
}

func (s *Store) GetConversation(ctx context.Context, id int64) (models.Conversation, error) {
	var conv models.Conversation
	err := s.db.GetContext(ctx, &conv, `SELECT * FROM conversations WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, apperr.Wrap(apperr.NotFound, ErrConversationNotFound.Error(), ErrConversationNotFound)
	}
	return conv, err
}

func (s *Store) ListConversations(ctx context.Context, userID int64) ([]models.Conversation, error) {
	var rows []models.Conversation
	err := s.db.SelectContext(ctx, &rows, `
		SELECT c.* FROM conversations c
		JOIN memberships m ON m.conversation_id = c.id
		WHERE m.user_id = ?
		ORDER BY c.last_message_at DESC`, userID)
	return rows, err
}

func (s *Store) IsMember(ctx context.Context, userID, conversationID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM memberships WHERE user_id = ? AND conversation_id = ?)`, userID, conversationID)
	return exists, err
}

func (s *Store) ListMembers(ctx context.Context, conversationID int64) ([]models.Membership, error) {
	var rows []models.Membership
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM memberships WHERE conversation_id = ? ORDER BY joined_at ASC`, conversationID)
	return rows, err
}

// InviteMembers adds invitees to a conversation, creating it first if
// conversationID is nil (the inviter becomes its sole member before
// the invitees are added, all in one transaction). The inviter must
// already be friends with every invitee; adding a member already
// present is a no-op so retries are idempotent.
func (s *Store) InviteMembers(ctx context.Context, conversationID *int64, inviterID int64, invitees []int64) (int64, []int64, error) {
	var convID int64
	var added []int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if conversationID == nil {
			var conv models.Conversation
			if err := tx.QueryRowxContext(ctx, `
				INSERT INTO conversations (title) VALUES (NULL)
				RETURNING id, title, created_at, last_message_at`,
			).StructScan(&conv); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO memberships (user_id, conversation_id) VALUES (?, ?)`, inviterID, conv.ID); err != nil {
				return err
			}
			convID = conv.ID
		} else {
			convID = *conversationID
		}

		for _, uid := range invitees {
			friends, err := s.areFriendsTx(ctx, tx, inviterID, uid)
			if err != nil {
				return err
			}
			if !friends {
				return ErrNotFriends
			}

			var already bool
			if err := tx.GetContext(ctx, &already, `
				SELECT EXISTS(SELECT 1 FROM memberships WHERE user_id = ? AND conversation_id = ?)`, uid, convID); err != nil {
				return err
			}
			if already {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO memberships (user_id, conversation_id) VALUES (?, ?)`, uid, convID); err != nil {
				return err
			}
			added = append(added, uid)
		}
		return nil
	})
	return convID, added, err
}

// LeaveConversation removes a single member and deletes the
// conversation outright if that was its last member, reporting
// whether the conversation was deleted so the caller can skip
// publishing a LeaveEvent nobody is left to receive.
func (s *Store) LeaveConversation(ctx context.Context, userID, conversationID int64) (deleted bool, err error) {
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM memberships WHERE user_id = ? AND conversation_id = ?`, userID, conversationID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.Wrap(apperr.NotFound, ErrNotMember.Error(), ErrNotMember)
		}

		var remaining int
		if err := tx.GetContext(ctx, &remaining, `SELECT COUNT(*) FROM memberships WHERE conversation_id = ?`, conversationID); err != nil {
			return err
		}
		if remaining == 0 {
			if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, conversationID); err != nil {
				return err
			}
			deleted = true
		}
		return nil
	})
	return deleted, err
}

func (s *Store) RenameConversation(ctx context.Context, conversationID int64, title *string) (models.Conversation, error) {
	var conv models.Conversation
	err := s.db.QueryRowxContext(ctx, `
		UPDATE conversations SET title = ? WHERE id = ?
		RETURNING id, title, created_at, last_message_at`, title, conversationID,
	).StructScan(&conv)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, apperr.Wrap(apperr.NotFound, ErrConversationNotFound.Error(), ErrConversationNotFound)
	}
	return conv, err
}

func (s *Store) MarkRead(ctx context.Context, userID, conversationID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE memberships SET last_read_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND conversation_id = ?`, userID, conversationID)
	return err
}
