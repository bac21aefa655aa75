// Package sqlite is a single-file session and feedback backend for
// deployments without postgres.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Keyring-Network/gavryn-tutor/internal/llm"
	"github.com/Keyring-Network/gavryn-tutor/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS tutor_sessions (
	id TEXT PRIMARY KEY,
	history TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tutor_feedback (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	session_id TEXT,
	question TEXT NOT NULL,
	answer TEXT NOT NULL,
	feedback TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

type SQLiteStore struct {
	db *sql.DB
}

func New(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; sqlite serialises writes anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialise schema: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.seedFeedback(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) seedFeedback(ctx context.Context) error {
	seed := store.SeedFeedback()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tutor_feedback (id, question, answer, feedback, created_at)
		SELECT ?, ?, ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM tutor_feedback)
	`, uuid.NewString(), seed.Question, seed.Answer, seed.Label, store.Now())
	if err != nil {
		return fmt.Errorf("seed feedback: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*store.Session, error) {
	var (
		session store.Session
		history string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, history, created_at, updated_at FROM tutor_sessions WHERE id = ?",
		sessionID,
	).Scan(&session.ID, &history, &session.CreatedAt, &session.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(history), &session.History); err != nil {
		return nil, fmt.Errorf("decode history for session %s: %w", sessionID, err)
	}
	return &session, nil
}

func (s *SQLiteStore) SaveSession(ctx context.Context, session store.Session) error {
	history := session.History
	if history == nil {
		history = []llm.Message{}
	}
	encoded, err := json.Marshal(history)
	if err != nil {
		return err
	}
	now := store.Now()
	createdAt := session.CreatedAt
	if createdAt == "" {
		createdAt = now
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tutor_sessions (id, history, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			history = excluded.history,
			updated_at = excluded.updated_at
	`, session.ID, string(encoded), createdAt, now)
	return err
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM tutor_sessions WHERE id = ?", sessionID)
	return err
}

func (s *SQLiteStore) AppendFeedback(ctx context.Context, feedback store.Feedback) error {
	if feedback.ID == "" {
		feedback.ID = uuid.NewString()
	}
	if feedback.CreatedAt == "" {
		feedback.CreatedAt = store.Now()
	}
	var sessionID any
	if feedback.SessionID != "" {
		sessionID = feedback.SessionID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tutor_feedback (id, session_id, question, answer, feedback, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, feedback.ID, sessionID, feedback.Question, feedback.Answer, feedback.Label, feedback.CreatedAt)
	return err
}

func (s *SQLiteStore) ListFeedback(ctx context.Context) ([]store.Feedback, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, session_id, question, answer, feedback, created_at FROM tutor_feedback ORDER BY seq ASC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []store.Feedback{}
	for rows.Next() {
		var (
			record    store.Feedback
			sessionID sql.NullString
		)
		if err := rows.Scan(&record.ID, &sessionID, &record.Question, &record.Answer, &record.Label, &record.CreatedAt); err != nil {
			return nil, err
		}
		record.SessionID = sessionID.String
		results = append(results, record)
	}
	return results, rows.Err()
}
