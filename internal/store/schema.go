package store

// schema is applied in full on every startup, mirroring the
// teacher's internal/db/db.go runMigrations shape of a plain slice
// of DDL statements executed in order - CREATE TABLE IF NOT EXISTS
// throughout so a restart against an existing file is a no-op.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		profile_image_file_id INTEGER REFERENCES files(id),
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		storage_path TEXT NOT NULL,
		mime TEXT NOT NULL,
		is_profile_image BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(storage_path, mime)
	)`,
	`CREATE TABLE IF NOT EXISTS user_files (
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, file_id)
	)`,
	`CREATE TABLE IF NOT EXISTS friendships (
		user_low INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		user_high INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_low, user_high),
		CHECK (user_low < user_high)
	)`,
	`CREATE TABLE IF NOT EXISTS friend_requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		receiver_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		state TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS friend_requests_pending_pair
		ON friend_requests(sender_id, receiver_id) WHERE state = 'pending'`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_message_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS memberships (
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		joined_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_read_at DATETIME,
		last_message_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, conversation_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ai_models (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS user_settings (
		user_id INTEGER PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		ai_enabled BOOLEAN NOT NULL DEFAULT 0,
		ai_model_id INTEGER REFERENCES ai_models(id),
		theme TEXT NOT NULL DEFAULT 'system',
		modified_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender_id INTEGER REFERENCES users(id) ON DELETE CASCADE,
		ai_model_id INTEGER REFERENCES ai_models(id),
		body TEXT NOT NULL,
		stemmed_body TEXT NOT NULL DEFAULT '',
		file_id INTEGER REFERENCES files(id),
		file_name TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		modified_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CHECK ((sender_id IS NULL) <> (ai_model_id IS NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS messages_conversation_created_idx ON messages(conversation_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS health_forms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	// FTS5 shadow index holding its own copy of messages.body and the
	// stemmed shadow column (rowid = messages.id), kept current by
	// triggers below. Grounded on
	// original_source/api/src/chat/search.rs's messages_fts table,
	// queried with a UNION over the raw and stemmed columns.
	`CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
		message, stemmed_message
	)`,
	`CREATE TRIGGER IF NOT EXISTS messages_fts_insert AFTER INSERT ON messages BEGIN
		INSERT INTO messages_fts(rowid, message, stemmed_message) VALUES (new.id, new.body, new.stemmed_body);
	END`,
	`CREATE TRIGGER IF NOT EXISTS messages_fts_delete AFTER DELETE ON messages BEGIN
		DELETE FROM messages_fts WHERE rowid = old.id;
	END`,
	`CREATE TRIGGER IF NOT EXISTS messages_fts_update AFTER UPDATE ON messages BEGIN
		DELETE FROM messages_fts WHERE rowid = old.id;
		INSERT INTO messages_fts(rowid, message, stemmed_message) VALUES (new.id, new.body, new.stemmed_body);
	END`,
}
