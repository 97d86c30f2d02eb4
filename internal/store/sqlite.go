// ABOUTME: SQLite implementation of the session ledger using modernc.org/sqlite
// ABOUTME: Schema is created on open; in-memory databases use a single pinned connection

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens the ledger at path, creating parent directories and
// the schema as needed. Pass MemoryPath for a session-only ledger.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	inMemory := path == MemoryPath || strings.Contains(path, "mode=memory")
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if inMemory {
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS feed_events (
			event_id INTEGER PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			lane TEXT,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			disposition TEXT NOT NULL,
			source TEXT NOT NULL,
			received_at TEXT NOT NULL,

			CHECK (disposition IN ('routed', 'echo', 'closed', 'unroutable'))
		);

		CREATE INDEX IF NOT EXISTS idx_feed_events_conversation
			ON feed_events(conversation_id, event_id);

		CREATE TABLE IF NOT EXISTS display_messages (
			position INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL,
			lane TEXT NOT NULL,
			role TEXT NOT NULL,
			name TEXT NOT NULL,
			text TEXT NOT NULL,
			animated INTEGER NOT NULL DEFAULT 0,
			event_id INTEGER,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_display_messages_conversation_lane
			ON display_messages(conversation_id, lane, position);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// SaveEvent records an admitted event.
func (s *SQLiteStore) SaveEvent(ctx context.Context, ev *EventRecord) error {
	query := `
		INSERT INTO feed_events (event_id, conversation_id, lane, role, text, disposition, source, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		ev.EventID,
		ev.ConversationID,
		nullString(ev.Lane),
		ev.Role,
		ev.Text,
		string(ev.Disposition),
		string(ev.Source),
		ev.ReceivedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isConstraintViolation(err) && strings.Contains(err.Error(), "event_id") {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("inserting event: %w", err)
	}

	s.logger.Debug("saved event",
		"event_id", ev.EventID,
		"conversation_id", ev.ConversationID,
		"disposition", ev.Disposition)
	return nil
}

// ListEvents returns the most recent limit events of a conversation, oldest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, conversationID string, limit int) ([]*EventRecord, error) {
	var query string
	var args []any

	if limit > 0 {
		query = `
			SELECT event_id, conversation_id, lane, role, text, disposition, source, received_at
			FROM (
				SELECT event_id, conversation_id, lane, role, text, disposition, source, received_at
				FROM feed_events
				WHERE conversation_id = ?
				ORDER BY event_id DESC
				LIMIT ?
			)
			ORDER BY event_id ASC
		`
		args = []any{conversationID, limit}
	} else {
		query = `
			SELECT event_id, conversation_id, lane, role, text, disposition, source, received_at
			FROM feed_events
			WHERE conversation_id = ?
			ORDER BY event_id ASC
		`
		args = []any{conversationID}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []*EventRecord
	for rows.Next() {
		var ev EventRecord
		var laneTag *string
		var disposition, source, receivedAt string

		if err := rows.Scan(&ev.EventID, &ev.ConversationID, &laneTag, &ev.Role, &ev.Text, &disposition, &source, &receivedAt); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		if laneTag != nil {
			ev.Lane = *laneTag
		}
		ev.Disposition = Disposition(disposition)
		ev.Source = Source(source)

		ev.ReceivedAt, err = time.Parse(time.RFC3339Nano, receivedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing event received_at: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}

	return events, nil
}

// SaveMessage appends a display message and sets msg.Position.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *MessageRecord) error {
	query := `
		INSERT INTO display_messages (id, conversation_id, lane, role, name, text, animated, event_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var eventID any
	if msg.EventID != 0 {
		eventID = msg.EventID
	}

	res, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.Lane,
		msg.Role,
		msg.Name,
		msg.Text,
		boolToInt(msg.Animated),
		eventID,
		msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	pos, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading message position: %w", err)
	}
	msg.Position = pos

	s.logger.Debug("saved message",
		"id", msg.ID,
		"conversation_id", msg.ConversationID,
		"lane", msg.Lane,
		"position", pos)
	return nil
}

// ListMessages returns a conversation's messages in reveal order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID, lane string) ([]*MessageRecord, error) {
	query := `
		SELECT position, id, conversation_id, lane, role, name, text, animated, event_id, created_at
		FROM display_messages
		WHERE conversation_id = ?
	`
	args := []any{conversationID}
	if lane != "" {
		query += ` AND lane = ?`
		args = append(args, lane)
	}
	query += ` ORDER BY position ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*MessageRecord
	for rows.Next() {
		var msg MessageRecord
		var animated int
		var eventID *int64
		var createdAt string

		if err := rows.Scan(&msg.Position, &msg.ID, &msg.ConversationID, &msg.Lane, &msg.Role,
			&msg.Name, &msg.Text, &animated, &eventID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msg.Animated = animated != 0
		if eventID != nil {
			msg.EventID = *eventID
		}

		msg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing message created_at: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return messages, nil
}

// DeleteTranscript removes a conversation's display messages.
func (s *SQLiteStore) DeleteTranscript(ctx context.Context, conversationID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM display_messages WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return fmt.Errorf("deleting transcript: %w", err)
	}

	n, _ := res.RowsAffected()
	s.logger.Debug("deleted transcript", "conversation_id", conversationID, "messages", n)
	return nil
}

// isConstraintViolation checks if the error is a SQLite constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// nullString returns nil for empty strings so they are stored as NULL
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
