// Package store owns all durable state for the chat service: users,
// friendships, conversations, memberships, messages, files and
// settings, plus the full-text index over message bodies. It is the
// one place in the codebase that speaks SQL.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sqlx.DB
}

// Connect opens the SQLite database at dsn (accepting both a bare
// path and a "sqlite://" URL, the way the teacher's db.Connect took a
// bare DSN string) and applies the schema.
func Connect(dsn string) (*Store, error) {
	path := strings.TrimPrefix(dsn, "sqlite://")

	db, err := sqlx.Connect("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w\n%s", err, stmt)
		}
	}
	slog.Info("database schema applied")
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, committing on a nil return and
// rolling back otherwise - mirrors the invite/accept transactional
// shape the teacher's repositories use for multi-table writes.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
