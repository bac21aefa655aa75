// Package events fans session turn events out to live subscribers.
package events

import (
	"context"
	"strings"
	"sync"
	"time"
)

const (
	TypeTurnRejected             = "turn.rejected"
	TypeTurnAnswered             = "turn.answered"
	TypeTurnConfirmationRequired = "turn.confirmation_required"
	TypeFeedbackRecorded         = "feedback.recorded"
)

type TurnEvent struct {
	SessionID string         `json:"session_id"`
	Seq       int64          `json:"seq"`
	Type      string         `json:"type"`
	Ts        string         `json:"ts"`
	Payload   map[string]any `json:"payload"`
}

// Broker delivers events to subscribers of the same session. Delivery is best
// effort: a subscriber whose buffer is full misses the event.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan TurnEvent]struct{}
	seqMu       sync.Mutex
	seq         map[string]int64
}

func NormalizeType(eventType string) string {
	return strings.TrimSpace(strings.ToLower(eventType))
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: map[string]map[chan TurnEvent]struct{}{},
		seq:         map[string]int64{},
	}
}

func (b *Broker) Subscribe(ctx context.Context, sessionID string) <-chan TurnEvent {
	ch := make(chan TurnEvent, 16)

	b.mu.Lock()
	if b.subscribers[sessionID] == nil {
		b.subscribers[sessionID] = map[chan TurnEvent]struct{}{}
	}
	b.subscribers[sessionID][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if b.subscribers[sessionID] != nil {
			delete(b.subscribers[sessionID], ch)
			if len(b.subscribers[sessionID]) == 0 {
				delete(b.subscribers, sessionID)
			}
		}
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Emit stamps an event with the next per-session sequence number and the
// current time, then publishes it.
func (b *Broker) Emit(sessionID string, eventType string, payload map[string]any) TurnEvent {
	b.seqMu.Lock()
	b.seq[sessionID]++
	seq := b.seq[sessionID]
	b.seqMu.Unlock()

	if payload == nil {
		payload = map[string]any{}
	}
	event := TurnEvent{
		SessionID: sessionID,
		Seq:       seq,
		Type:      NormalizeType(eventType),
		Ts:        time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	}
	b.Publish(event)
	return event
}

func (b *Broker) Publish(event TurnEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers[event.SessionID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Forget drops the sequence counter of a reset session.
func (b *Broker) Forget(sessionID string) {
	b.seqMu.Lock()
	delete(b.seq, sessionID)
	b.seqMu.Unlock()
}

func (b *Broker) SubscriberCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[sessionID])
}
