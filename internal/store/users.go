package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"relaychat/internal/apperr"
	"relaychat/internal/models"
)

// CreateUser inserts a new account; the HTTP registration boundary
// hashes the password before calling this.
func (s *Store) CreateUser(ctx context.Context, username, email, displayName, passwordHash string) (models.User, error) {
	var u models.User
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO users (username, email, display_name, password_hash)
		VALUES (?, ?, ?, ?)
		RETURNING id, username, email, display_name, password_hash, profile_image_file_id, created_at`,
		username, email, displayName, passwordHash,
	).StructScan(&u)
	return u, err
}

func (s *Store) GetUser(ctx context.Context, id int64) (models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, apperr.Wrap(apperr.NotFound, ErrUserNotFound.Error(), ErrUserNotFound)
	}
	return u, err
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, `SELECT * FROM users WHERE username = ?`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, apperr.Wrap(apperr.NotFound, ErrUserNotFound.Error(), ErrUserNotFound)
	}
	return u, err
}

func (s *Store) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)`, username)
	return exists, err
}

// BulkUsers fetches many users in one round trip - used by Search
// result decoration, in place of
// the teacher's UserClient.BulkUsers gRPC call (see DESIGN.md).
func (s *Store) BulkUsers(ctx context.Context, ids []int64) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT * FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)
	var users []models.User
	err = s.db.SelectContext(ctx, &users, query, args...)
	return users, err
}

func (s *Store) GetSettings(ctx context.Context, userID int64) (models.UserSettings, error) {
	var st models.UserSettings
	err := s.db.GetContext(ctx, &st, `SELECT * FROM user_settings WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserSettings{UserID: userID, Theme: "system"}, nil
	}
	return st, err
}

func (s *Store) UpdateSettings(ctx context.Context, userID int64, aiEnabled bool, aiModelID *int64, theme string) (models.UserSettings, error) {
	var st models.UserSettings
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO user_settings (user_id, ai_enabled, ai_model_id, theme, modified_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			ai_enabled = excluded.ai_enabled,
			ai_model_id = excluded.ai_model_id,
			theme = excluded.theme,
			modified_at = CURRENT_TIMESTAMP
		RETURNING user_id, ai_enabled, ai_model_id, theme, modified_at`,
		userID, aiEnabled, aiModelID, theme,
	).StructScan(&st)
	return st, err
}

func (s *Store) GetAIModel(ctx context.Context, id int64) (models.AIModel, error) {
	var m models.AIModel
	err := s.db.GetContext(ctx, &m, `SELECT * FROM ai_models WHERE id = ?`, id)
	return m, err
}

func (s *Store) EnsureAIModel(ctx context.Context, name string) (models.AIModel, error) {
	var m models.AIModel
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO ai_models (name) VALUES (?)
		ON CONFLICT(name) DO UPDATE SET name = excluded.name
		RETURNING id, name`, name,
	).StructScan(&m)
	return m, err
}
