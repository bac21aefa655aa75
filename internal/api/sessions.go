package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Keyring-Network/gavryn-tutor/internal/events"
	"github.com/Keyring-Network/gavryn-tutor/internal/store"
)

func (s *Server) recordFeedback(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(r)
	if err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	label := strings.TrimSpace(fields["feedback"])
	if label == "" {
		http.Error(w, "feedback required", http.StatusBadRequest)
		return
	}
	sessionID := strings.TrimSpace(fields["session_id"])
	if sessionID == "" {
		sessionID = strings.TrimSpace(r.Header.Get(SessionHeader))
	}

	record := store.Feedback{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Question:  fields["question"],
		Answer:    fields["answer"],
		Label:     label,
		CreatedAt: store.Now(),
	}
	if err := s.feedback.AppendFeedback(r.Context(), record); err != nil {
		s.logger.Error("record feedback", "session_id", sessionID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if sessionID != "" {
		s.broker.Emit(sessionID, events.TypeFeedbackRecorded, map[string]any{
			"feedback_id": record.ID,
			"feedback":    record.Label,
		})
	}
	writeJSONStatus(w, map[string]string{"status": "success"}, http.StatusOK)
}

func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := s.tutor.Reset(r.Context(), sessionID); err != nil {
		s.writeTurnError(w, sessionID, "reset", err)
		return
	}
	s.broker.Forget(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	eventsChan := s.broker.Subscribe(ctx, sessionID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-eventsChan:
			if !ok {
				return
			}
			sendSSE(w, event)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func sendSSE(w http.ResponseWriter, event events.TurnEvent) {
	payload, _ := json.Marshal(event)
	fmt.Fprintf(w, "id: %s:%d\n", event.SessionID, event.Seq)
	fmt.Fprint(w, "event: turn_event\n")
	fmt.Fprintf(w, "data: %s\n\n", payload)
}
