package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Keyring-Network/gavryn-tutor/internal/store"
)

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]store.Session
	feedback []store.Feedback
}

// New returns an empty store whose feedback sink already holds the seed
// record.
func New() *MemoryStore {
	seed := store.SeedFeedback()
	seed.ID = uuid.NewString()
	seed.CreatedAt = store.Now()
	return &MemoryStore{
		sessions: map[string]store.Session{},
		feedback: []store.Feedback{seed},
	}
}

func (m *MemoryStore) GetSession(ctx context.Context, sessionID string) (*store.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	cloned := store.CloneSession(session)
	return &cloned, nil
}

func (m *MemoryStore) SaveSession(ctx context.Context, session store.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := store.Now()
	if existing, ok := m.sessions[session.ID]; ok && strings.TrimSpace(session.CreatedAt) == "" {
		session.CreatedAt = existing.CreatedAt
	}
	if strings.TrimSpace(session.CreatedAt) == "" {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	m.sessions[session.ID] = store.CloneSession(session)
	return nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func (m *MemoryStore) AppendFeedback(ctx context.Context, feedback store.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if feedback.ID == "" {
		feedback.ID = uuid.NewString()
	}
	if feedback.CreatedAt == "" {
		feedback.CreatedAt = store.Now()
	}
	m.feedback = append(m.feedback, feedback)
	return nil
}

func (m *MemoryStore) ListFeedback(ctx context.Context) ([]store.Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]store.Feedback{}, m.feedback...), nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
