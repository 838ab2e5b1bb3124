package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/scttfrdmn/toolplan/toolplan"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session    TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	metadata   TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session, id);
`

// SQLiteLog keeps conversation logs in a local SQLite file, for a single
// assistant process that needs history across restarts without Redis.
type SQLiteLog struct {
	db          *sql.DB
	maxMessages int
	logger      *slog.Logger
}

// SQLiteOption configures a SQLiteLog.
type SQLiteOption func(*SQLiteLog)

// WithSQLiteLogger sets the logger used for unreadable rows.
func WithSQLiteLogger(logger *slog.Logger) SQLiteOption {
	return func(l *SQLiteLog) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewSQLiteLog opens (creating if needed) the database at path.
// maxMessages <= 0 selects DefaultMaxMessages.
func NewSQLiteLog(path string, maxMessages int, opts ...SQLiteOption) (*SQLiteLog, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL", sqliteSchema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	}

	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	l := &SQLiteLog{db: db, maxMessages: maxMessages, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Close closes the database.
func (l *SQLiteLog) Close() error {
	return l.db.Close()
}

// Append inserts msg and drops the session's oldest rows past the
// retention limit in the same transaction.
func (l *SQLiteLog) Append(ctx context.Context, sessionID string, msg *toolplan.Message) error {
	if err := validate(sessionID, msg); err != nil {
		return err
	}

	var metadata sql.NullString
	if len(msg.Metadata) > 0 {
		data, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("failed to serialize metadata: %w", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (session, role, content, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, msg.Role, msg.Content, metadata, msg.Timestamp.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE session = ? AND id NOT IN (
			SELECT id FROM messages WHERE session = ? ORDER BY id DESC LIMIT ?)`,
		sessionID, sessionID, l.maxMessages,
	); err != nil {
		return fmt.Errorf("failed to trim session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// Recent returns up to limit of the newest messages, oldest first.
func (l *SQLiteLog) Recent(ctx context.Context, sessionID string, limit int) ([]toolplan.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT role, content, metadata, created_at FROM messages
		WHERE session = ? ORDER BY id DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	defer rows.Close()

	var msgs []toolplan.Message
	for rows.Next() {
		var (
			msg      toolplan.Message
			metadata sql.NullString
			created  string
		)
		if err := rows.Scan(&msg.Role, &msg.Content, &metadata, &created); err != nil {
			return nil, fmt.Errorf("failed to read messages: %w", err)
		}
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &msg.Metadata); err != nil {
				l.logger.Warn("dropping unreadable message metadata", "session", sessionID, "error", err)
				msg.Metadata = nil
			}
		}
		msg.Timestamp, _ = time.Parse(time.RFC3339Nano, created)
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Clear deletes the session's rows.
func (l *SQLiteLog) Clear(ctx context.Context, sessionID string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM messages WHERE session = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
