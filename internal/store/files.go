package store

import (
	"context"
	"database/sql"
	"errors"

	"relaychat/internal/apperr"
	"relaychat/internal/models"
)

func (s *Store) CreateFile(ctx context.Context, storagePath, mime string, isProfileImage bool) (models.File, error) {
	var f models.File
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO files (storage_path, mime, is_profile_image) VALUES (?, ?, ?)
		RETURNING id, storage_path, mime, is_profile_image, created_at`,
		storagePath, mime, isProfileImage,
	).StructScan(&f)
	return f, err
}

func (s *Store) GetFile(ctx context.Context, id int64) (models.File, error) {
	var f models.File
	err := s.db.GetContext(ctx, &f, `SELECT * FROM files WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.File{}, apperr.Wrap(apperr.NotFound, ErrFileNotFound.Error(), ErrFileNotFound)
	}
	return f, err
}

func (s *Store) RecordUpload(ctx context.Context, userID, fileID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO user_files (user_id, file_id) VALUES (?, ?)`, userID, fileID)
	return err
}

// UserOwnsFile reports whether userID uploaded fileID - the
// Attachment Resolver's ownership check (spec §4.6) before a file id
// supplied on SendMessage is linked to a new message row.
func (s *Store) UserOwnsFile(ctx context.Context, userID, fileID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM user_files WHERE user_id = ? AND file_id = ?)`, userID, fileID)
	return exists, err
}

// FileAttachedInMembership reports whether fileID is already attached
// to a message in some conversation userID belongs to - the
// Attachment Resolver's second acceptance branch (spec §4.6): a file
// already shared in a conversation can be re-quoted by any member of
// that conversation, not only by whoever originally uploaded it.
func (s *Store) FileAttachedInMembership(ctx context.Context, userID, fileID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM messages m
			JOIN memberships mb ON mb.conversation_id = m.conversation_id
			WHERE m.file_id = ? AND mb.user_id = ?
		)`, fileID, userID)
	return exists, err
}
