// Package store defines the session and feedback persistence contracts shared
// by the memory, jsonfile, postgres and sqlite backends.
package store

import (
	"context"
	"time"

	"github.com/Keyring-Network/gavryn-tutor/internal/llm"
)

// Session is one student's conversation. History[0] is the system prompt.
type Session struct {
	ID        string
	History   []llm.Message
	CreatedAt string
	UpdatedAt string
}

type Feedback struct {
	ID        string `json:"id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Label     string `json:"feedback"`
	CreatedAt string `json:"created_at,omitempty"`
}

const (
	FeedbackUp   = "up"
	FeedbackDown = "down"
)

// SeedFeedback is written once when a feedback sink is first created.
func SeedFeedback() Feedback {
	return Feedback{Question: "blank", Answer: "blank", Label: FeedbackUp}
}

// SessionStore returns (nil, nil) from GetSession when the id is unknown.
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	SaveSession(ctx context.Context, session Session) error
	DeleteSession(ctx context.Context, sessionID string) error
}

type FeedbackStore interface {
	AppendFeedback(ctx context.Context, feedback Feedback) error
	ListFeedback(ctx context.Context) ([]Feedback, error)
}

// Pinger is implemented by backends that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

func CloneSession(session Session) Session {
	cloned := session
	cloned.History = append([]llm.Message(nil), session.History...)
	return cloned
}

func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
