package events

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func receiveEvent(t *testing.T, ch <-chan TurnEvent) TurnEvent {
	t.Helper()

	timer := time.NewTimer(500 * time.Millisecond)
	defer timer.Stop()

	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("channel closed before receive")
		}
		return ev
	case <-timer.C:
		t.Fatal("timed out waiting for event")
	}

	return TurnEvent{}
}

func waitForClosed(t *testing.T, ch <-chan TurnEvent) {
	t.Helper()

	timer := time.NewTimer(500 * time.Millisecond)
	defer timer.Stop()

	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-timer.C:
			t.Fatal("timed out waiting for channel close")
		}
	}
}

func expectNoEvent(t *testing.T, ch <-chan TurnEvent) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestSubscribe_UnsubscribesOnCancel(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())

	ch := b.Subscribe(ctx, "session-1")
	if got := b.SubscriberCount("session-1"); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}

	cancel()
	waitForClosed(t, ch)

	b.mu.RLock()
	_, exists := b.subscribers["session-1"]
	b.mu.RUnlock()
	if exists {
		t.Fatal("expected session entry to be removed")
	}
}

func TestEmit_SequencesPerSession(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := b.Subscribe(ctx, "a")

	b.Emit("a", TypeTurnAnswered, map[string]any{"source": "Direct LLM"})
	b.Emit("b", TypeTurnRejected, nil)
	b.Emit("a", " Turn.Confirmation_Required ", nil)

	first := receiveEvent(t, ch)
	second := receiveEvent(t, ch)
	if first.Seq != 1 || second.Seq != 2 {
		t.Fatalf("expected seq 1 and 2, got %d and %d", first.Seq, second.Seq)
	}
	if first.Type != TypeTurnAnswered || first.Payload["source"] != "Direct LLM" {
		t.Fatalf("unexpected first event %+v", first)
	}
	if second.Type != TypeTurnConfirmationRequired {
		t.Fatalf("expected normalised type, got %q", second.Type)
	}
	if _, err := time.Parse(time.RFC3339Nano, first.Ts); err != nil {
		t.Fatalf("expected RFC3339 timestamp, got %q", first.Ts)
	}
	expectNoEvent(t, ch)

	if ev := b.Emit("b", TypeTurnAnswered, nil); ev.Seq != 2 {
		t.Fatalf("expected independent sequence for b, got %d", ev.Seq)
	}
}

func TestForget_ResetsSequence(t *testing.T) {
	b := NewBroker()
	b.Emit("a", TypeTurnAnswered, nil)
	b.Emit("a", TypeTurnAnswered, nil)
	b.Forget("a")
	if ev := b.Emit("a", TypeTurnAnswered, nil); ev.Seq != 1 {
		t.Fatalf("expected sequence to restart, got %d", ev.Seq)
	}
}

func TestPublish_NoSubscribers(t *testing.T) {
	b := NewBroker()
	b.Publish(TurnEvent{SessionID: "nobody", Type: TypeFeedbackRecorded})
}

func TestPublish_MultipleSubscribers(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := b.Subscribe(ctx, "s")
	second := b.Subscribe(ctx, "s")
	b.Publish(TurnEvent{SessionID: "s", Seq: 7, Type: TypeFeedbackRecorded})

	for _, ch := range []<-chan TurnEvent{first, second} {
		if ev := receiveEvent(t, ch); ev.Seq != 7 {
			t.Fatalf("expected seq 7, got %d", ev.Seq)
		}
	}
}

func TestPublish_FullBufferDropsEvent(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := b.Subscribe(ctx, "s")

	for i := 0; i < 20; i++ {
		b.Publish(TurnEvent{SessionID: "s", Seq: int64(i)})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("expected buffer to be full, got %d/%d", len(ch), cap(ch))
	}
}

func TestConcurrent_SubscribeEmitCancel(t *testing.T) {
	b := NewBroker()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		sessionID := fmt.Sprintf("s-%d", i%3)
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			defer wg.Done()
			ch := b.Subscribe(ctx, sessionID)
			cancel()
			waitForClosed(t, ch)
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				b.Emit(sessionID, TypeTurnAnswered, nil)
			}
		}()
	}
	wg.Wait()
}
