package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Keyring-Network/gavryn-tutor/internal/llm"
	"github.com/Keyring-Network/gavryn-tutor/internal/store"
)

type PostgresStore struct {
	db *sql.DB
}

var openDB = sql.Open

func New(conn string) (*PostgresStore, error) {
	db, err := openDB("pgx", conn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := verifySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	pgStore := &PostgresStore{db: db}
	if err := pgStore.seedFeedback(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return pgStore, nil
}

func verifySchema(ctx context.Context, db *sql.DB) error {
	required := []string{
		"tutor_sessions",
		"tutor_feedback",
	}
	for _, table := range required {
		var regclass sql.NullString
		if err := db.QueryRowContext(ctx, "SELECT to_regclass($1)", fmt.Sprintf("public.%s", table)).Scan(&regclass); err != nil {
			return err
		}
		if !regclass.Valid {
			return fmt.Errorf("database schema missing: %s table not found (run infra/migrations/001_init.sql)", table)
		}
	}
	return nil
}

func (p *PostgresStore) seedFeedback(ctx context.Context) error {
	seed := store.SeedFeedback()
	const query = `
		INSERT INTO tutor_feedback (id, question, answer, feedback, created_at)
		SELECT $1, $2, $3, $4, $5
		WHERE NOT EXISTS (SELECT 1 FROM tutor_feedback)
	`
	_, err := p.db.ExecContext(ctx, query, uuid.NewString(), seed.Question, seed.Answer, seed.Label, time.Now().UTC())
	return err
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStore) GetSession(ctx context.Context, sessionID string) (*store.Session, error) {
	const query = `
		SELECT id, history, created_at, updated_at
		FROM tutor_sessions
		WHERE id = $1
	`
	var (
		session   store.Session
		history   []byte
		createdAt time.Time
		updatedAt time.Time
	)
	err := p.db.QueryRowContext(ctx, query, sessionID).Scan(&session.ID, &history, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(history, &session.History); err != nil {
		return nil, fmt.Errorf("decode history for session %s: %w", sessionID, err)
	}
	session.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
	session.UpdatedAt = updatedAt.UTC().Format(time.RFC3339Nano)
	return &session, nil
}

func (p *PostgresStore) SaveSession(ctx context.Context, session store.Session) error {
	history := session.History
	if history == nil {
		history = []llm.Message{}
	}
	historyBytes, err := json.Marshal(history)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO tutor_sessions (id, history, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			history = EXCLUDED.history,
			updated_at = EXCLUDED.updated_at
	`
	_, err = p.db.ExecContext(
		ctx,
		query,
		session.ID,
		historyBytes,
		parseTimestampValue(session.CreatedAt),
		time.Now().UTC(),
	)
	return err
}

func (p *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := p.db.ExecContext(ctx, "DELETE FROM tutor_sessions WHERE id = $1", sessionID)
	return err
}

func (p *PostgresStore) AppendFeedback(ctx context.Context, feedback store.Feedback) error {
	id := feedback.ID
	if id == "" {
		id = uuid.NewString()
	}
	const query = `
		INSERT INTO tutor_feedback (id, session_id, question, answer, feedback, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := p.db.ExecContext(
		ctx,
		query,
		id,
		nullString(feedback.SessionID),
		feedback.Question,
		feedback.Answer,
		feedback.Label,
		parseTimestampValue(feedback.CreatedAt),
	)
	return err
}

func (p *PostgresStore) ListFeedback(ctx context.Context) ([]store.Feedback, error) {
	const query = `
		SELECT id, session_id, question, answer, feedback, created_at
		FROM tutor_feedback
		ORDER BY seq ASC
	`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []store.Feedback{}
	for rows.Next() {
		var (
			record    store.Feedback
			sessionID sql.NullString
			createdAt time.Time
		)
		if err := rows.Scan(&record.ID, &sessionID, &record.Question, &record.Answer, &record.Label, &createdAt); err != nil {
			return nil, err
		}
		record.SessionID = sessionID.String
		record.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func parseTimestampValue(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
	if err != nil {
		return time.Now().UTC()
	}
	return parsed.UTC()
}

func nullString(value string) any {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return value
}
