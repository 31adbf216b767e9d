package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"relaychat/internal/apperr"
	"relaychat/internal/models"
	"relaychat/internal/stemmer"
)

// CreateMessage persists a message and advances both the
// conversation's last_message_at and every member's per-membership
// last_message_at in one transaction (spec §3 invariant (a)). Exactly
// one of senderID / aiModelID must be set; callers (session, ai
// orchestrator) enforce that before calling in.
func (s *Store) CreateMessage(ctx context.Context, conversationID int64, senderID, aiModelID *int64, body string, fileID *int64, fileName *string) (models.Message, error) {
	var msg models.Message
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		stemmed := stemmer.StemMessage(body)
		if err := tx.QueryRowxContext(ctx, `
			INSERT INTO messages (conversation_id, sender_id, ai_model_id, body, stemmed_body, file_id, file_name)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			RETURNING id, conversation_id, sender_id, ai_model_id, body, file_id, file_name, created_at, modified_at`,
			conversationID, senderID, aiModelID, body, stemmed, fileID, fileName,
		).StructScan(&msg); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE conversations SET last_message_at = ? WHERE id = ?`, msg.CreatedAt, conversationID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE memberships SET last_message_at = ? WHERE conversation_id = ?`, msg.CreatedAt, conversationID)
		return err
	})
	return msg, err
}

func (s *Store) GetMessage(ctx context.Context, id int64) (models.Message, error) {
	var msg models.Message
	err := s.db.GetContext(ctx, &msg, `
		SELECT id, conversation_id, sender_id, ai_model_id, body, file_id, file_name, created_at, modified_at
		FROM messages WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, apperr.Wrap(apperr.NotFound, ErrMessageNotFound.Error(), ErrMessageNotFound)
	}
	return msg, err
}

// ListMessages returns up to limit messages ordered by id ascending
// from cursor exclusive (spec.md's listMessages).
func (s *Store) ListMessages(ctx context.Context, conversationID int64, cursor *int64, limit int) ([]models.Message, error) {
	var rows []models.Message
	var err error
	const cols = `id, conversation_id, sender_id, ai_model_id, body, file_id, file_name, created_at, modified_at`
	if cursor == nil {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT `+cols+` FROM messages WHERE conversation_id = ?
			ORDER BY id ASC LIMIT ?`, conversationID, limit)
	} else {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT `+cols+` FROM messages WHERE conversation_id = ? AND id > ?
			ORDER BY id ASC LIMIT ?`, conversationID, *cursor, limit)
	}
	return rows, err
}

// ListMessagesForContext walks backward from the most recent message
// and accumulates rows until either maxChars cumulative body length
// or maxCount is reached, returned oldest-first ready to hand to the
// AI orchestrator's context assembly step. Defaults to a 5,000
// character budget per spec.md.
func (s *Store) ListMessagesForContext(ctx context.Context, conversationID int64, maxChars, maxCount int) ([]models.Message, error) {
	if maxChars <= 0 {
		maxChars = 5000
	}
	if maxCount <= 0 {
		maxCount = 200
	}
	var recent []models.Message
	err := s.db.SelectContext(ctx, &recent, `
		SELECT id, conversation_id, sender_id, ai_model_id, body, file_id, file_name, created_at, modified_at
		FROM messages WHERE conversation_id = ?
		ORDER BY id DESC LIMIT ?`, conversationID, maxCount)
	if err != nil {
		return nil, err
	}

	budget := maxChars
	cut := len(recent)
	for i, m := range recent {
		if budget-len(m.Body) < 0 {
			cut = i
			break
		}
		budget -= len(m.Body)
	}
	recent = recent[:cut]

	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent, nil
}
