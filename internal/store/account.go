package store

import (
	"context"

	"relaychat/internal/apperr"
	"relaychat/internal/models"
)

// DeleteUser removes a user row outright. Every table that references
// users.id was declared with ON DELETE CASCADE, so memberships,
// messages, friendships, friend requests, settings, uploads and
// health forms all disappear with it in one statement - the account
// boundary's DELETE /api/account.
func (s *Store) DeleteUser(ctx context.Context, userID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.Wrap(apperr.NotFound, ErrUserNotFound.Error(), ErrUserNotFound)
	}
	return nil
}

// CreateHealthForm persists an opaque health-stats submission for the
// /api/forms/health boundary.
func (s *Store) CreateHealthForm(ctx context.Context, userID int64, payload string) (models.HealthForm, error) {
	var f models.HealthForm
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO health_forms (user_id, payload) VALUES (?, ?)
		RETURNING id, user_id, payload, created_at`,
		userID, payload,
	).StructScan(&f)
	return f, err
}

// ListHealthForms returns a user's prior health-form submissions,
// newest first, for GET /api/forms.
func (s *Store) ListHealthForms(ctx context.Context, userID int64) ([]models.HealthForm, error) {
	var rows []models.HealthForm
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM health_forms WHERE user_id = ? ORDER BY created_at DESC`, userID)
	return rows, err
}
