// Package store provides a SQLite-backed persistence layer for chat sessions
// and answer feedback. Sessions hold full message transcripts that survive
// server restarts; feedback is partitioned by calendar day and deduplicated
// per rated message.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser is a message sent by the human operator.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the LLM.
	RoleAssistant Role = "assistant"
)

// ErrSessionNotFound is returned when an operation references a session ID
// that does not exist (or was deleted).
var ErrSessionNotFound = errors.New("store: session not found")

// ErrInvalidRating is returned when a feedback rating is outside 1..5.
var ErrInvalidRating = errors.New("store: rating must be between 1 and 5")

// Message is a single turn in a session transcript.
type Message struct {
	// Role is the author of the message.
	Role Role
	// Content is the text of the message.
	Content string
	// CreatedAt is when the message was persisted.
	CreatedAt time.Time
}

// Session is a chat session. Messages is populated by GetSession and left nil
// by ListSessions.
type Session struct {
	// ID is the numeric session identifier. IDs are monotonic and never
	// reused, even after the highest session is deleted.
	ID int64
	// Title is the human-readable session label, derived from the first user
	// message.
	Title string
	// CreatedAt is when the session was created.
	CreatedAt time.Time
	// Messages is the full transcript, oldest first.
	Messages []Message
}

// Feedback is a single rating of one assistant answer.
type Feedback struct {
	// SessionID is the rated session.
	SessionID int64
	// MessageIndex is the zero-based position of the rated message within the
	// session transcript.
	MessageIndex int
	// Day is the calendar day partition in "2006-01-02" form. Filled from the
	// current date when empty.
	Day string
	// Rating is the 1–5 score.
	Rating int
	// Question is the user question the rated answer responded to.
	Question string
	// CreatedAt is when the feedback was last written.
	CreatedAt time.Time
}

// SessionStore persists and retrieves chat sessions. Implementations must be
// safe for concurrent use.
type SessionStore interface {
	// CreateSession allocates a new empty session and returns its ID.
	CreateSession(ctx context.Context) (int64, error)
	// GetSession returns a session with its full transcript.
	// Returns ErrSessionNotFound for unknown IDs.
	GetSession(ctx context.Context, id int64) (*Session, error)
	// ListSessions returns all sessions newest-first, without transcripts.
	ListSessions(ctx context.Context) ([]Session, error)
	// DeleteSession removes a session and its transcript.
	// Returns ErrSessionNotFound for unknown IDs.
	DeleteSession(ctx context.Context, id int64) error
	// AppendMessage adds one message to the session transcript.
	// Returns ErrSessionNotFound for unknown IDs.
	AppendMessage(ctx context.Context, id int64, role Role, content string) error
	// SetTitle updates the session title.
	// Returns ErrSessionNotFound for unknown IDs.
	SetTitle(ctx context.Context, id int64, title string) error
}

// FeedbackStore persists answer ratings. Implementations must be safe for
// concurrent use.
type FeedbackStore interface {
	// SaveFeedback inserts a rating, or overwrites the existing rating for the
	// same (session, message, day) triple.
	// Returns ErrSessionNotFound for unknown sessions and ErrInvalidRating for
	// ratings outside 1..5.
	SaveFeedback(ctx context.Context, fb Feedback) error
	// ListFeedback returns ratings for one calendar day, or all ratings when
	// day is empty, newest-first.
	ListFeedback(ctx context.Context, day string) ([]Feedback, error)
}

// SQLiteStore implements SessionStore and FeedbackStore on a local SQLite
// database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// sessionTitleRunes is how many leading runes of the first user message become
// the session title.
const sessionTitleRunes = 10

// SessionTitle derives a session title from the first user message: the
// leading runes followed by an ellipsis marker.
func SessionTitle(message string) string {
	runes := []rune(message)
	if len(runes) > sessionTitleRunes {
		runes = runes[:sessionTitleRunes]
	}
	return string(runes) + "..."
}

// DefaultDBPath returns the default path for the screener database. It
// resolves to ~/.screener/screener.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".screener")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "screener.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist. AUTOINCREMENT on
// sessions keeps IDs monotonic so a deleted session's ID is never handed out
// again.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    title      TEXT    NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE TABLE IF NOT EXISTS session_messages (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER NOT NULL,
    role       TEXT    NOT NULL CHECK(role IN ('user','assistant')),
    content    TEXT    NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_messages_session
    ON session_messages (session_id, id);
CREATE TABLE IF NOT EXISTS feedback (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id    INTEGER NOT NULL,
    message_index INTEGER NOT NULL,
    day           TEXT    NOT NULL,
    rating        INTEGER NOT NULL CHECK(rating BETWEEN 1 AND 5),
    question      TEXT    NOT NULL DEFAULT '',
    created_at    INTEGER NOT NULL,
    UNIQUE (session_id, message_index, day)
);
CREATE INDEX IF NOT EXISTS idx_feedback_day ON feedback (day);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// CreateSession allocates a new empty session and returns its ID.
func (s *SQLiteStore) CreateSession(ctx context.Context) (int64, error) {
	const q = `INSERT INTO sessions (title, created_at) VALUES ('', ?)`
	res, err := s.db.ExecContext(ctx, q, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("store: create session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: create session id: %w", err)
	}
	return id, nil
}

// GetSession returns a session with its full transcript, oldest message first.
func (s *SQLiteStore) GetSession(ctx context.Context, id int64) (*Session, error) {
	const q = `SELECT title, created_at FROM sessions WHERE id = ?`

	sess := &Session{ID: id}
	var ts int64
	err := s.db.QueryRowContext(ctx, q, id).Scan(&sess.Title, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session: %w", err)
	}
	sess.CreatedAt = time.Unix(ts, 0)

	const mq = `SELECT role, content, created_at FROM session_messages WHERE session_id = ? ORDER BY id ASC`
	rows, err := s.db.QueryContext(ctx, mq, id)
	if err != nil {
		return nil, fmt.Errorf("store: get session messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m Message
		var role string
		var mts int64
		if err := rows.Scan(&role, &m.Content, &mts); err != nil {
			return nil, fmt.Errorf("store: get session scan: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt = time.Unix(mts, 0)
		sess.Messages = append(sess.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: get session rows: %w", err)
	}
	return sess, nil
}

// ListSessions returns all sessions newest-first, without transcripts.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]Session, error) {
	const q = `SELECT id, title, created_at FROM sessions ORDER BY id DESC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var ts int64
		if err := rows.Scan(&sess.ID, &sess.Title, &ts); err != nil {
			return nil, fmt.Errorf("store: list sessions scan: %w", err)
		}
		sess.CreatedAt = time.Unix(ts, 0)
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list sessions rows: %w", err)
	}
	return sessions, nil
}

// DeleteSession removes a session and its transcript in one transaction.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: delete session begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete session rows: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("store: delete session messages: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: delete session commit: %w", err)
	}
	return nil
}

// AppendMessage adds one message to the session transcript.
func (s *SQLiteStore) AppendMessage(ctx context.Context, id int64, role Role, content string) error {
	if err := s.requireSession(ctx, id); err != nil {
		return err
	}
	const q = `INSERT INTO session_messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, id, string(role), content, time.Now().Unix()); err != nil {
		return fmt.Errorf("store: append message: %w", err)
	}
	return nil
}

// SetTitle updates the session title.
func (s *SQLiteStore) SetTitle(ctx context.Context, id int64, title string) error {
	const q = `UPDATE sessions SET title = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, title, id)
	if err != nil {
		return fmt.Errorf("store: set title: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: set title rows: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// requireSession returns ErrSessionNotFound unless the session exists.
func (s *SQLiteStore) requireSession(ctx context.Context, id int64) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("store: check session: %w", err)
	}
	return nil
}

// SaveFeedback inserts a rating, overwriting any existing rating for the same
// (session, message, day) triple so re-rating within a day updates in place.
func (s *SQLiteStore) SaveFeedback(ctx context.Context, fb Feedback) error {
	if fb.Rating < 1 || fb.Rating > 5 {
		return fmt.Errorf("%w, got %d", ErrInvalidRating, fb.Rating)
	}
	if err := s.requireSession(ctx, fb.SessionID); err != nil {
		return err
	}
	if fb.Day == "" {
		fb.Day = time.Now().Format("2006-01-02")
	}
	const q = `
INSERT INTO feedback (session_id, message_index, day, rating, question, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (session_id, message_index, day)
DO UPDATE SET rating = excluded.rating, question = excluded.question, created_at = excluded.created_at`
	if _, err := s.db.ExecContext(ctx, q, fb.SessionID, fb.MessageIndex, fb.Day, fb.Rating, fb.Question, time.Now().Unix()); err != nil {
		return fmt.Errorf("store: save feedback: %w", err)
	}
	return nil
}

// ListFeedback returns ratings for one calendar day, or all ratings when day
// is empty, newest-first.
func (s *SQLiteStore) ListFeedback(ctx context.Context, day string) ([]Feedback, error) {
	q := `SELECT session_id, message_index, day, rating, question, created_at FROM feedback ORDER BY id DESC`
	args := []any{}
	if day != "" {
		q = `SELECT session_id, message_index, day, rating, question, created_at FROM feedback WHERE day = ? ORDER BY id DESC`
		args = append(args, day)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list feedback: %w", err)
	}
	defer rows.Close()

	var out []Feedback
	for rows.Next() {
		var fb Feedback
		var ts int64
		if err := rows.Scan(&fb.SessionID, &fb.MessageIndex, &fb.Day, &fb.Rating, &fb.Question, &ts); err != nil {
			return nil, fmt.Errorf("store: list feedback scan: %w", err)
		}
		fb.CreatedAt = time.Unix(ts, 0)
		out = append(out, fb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list feedback rows: %w", err)
	}
	return out, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
