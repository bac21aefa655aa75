package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/Keyring-Network/gavryn-tutor/internal/agent"
	"github.com/Keyring-Network/gavryn-tutor/internal/events"
)

const maxFormMemory = 1 << 20

type turnResponse struct {
	Response  string `json:"response"`
	Source    string `json:"source,omitempty"`
	SessionID string `json:"session_id"`
}

type confirmationResponse struct {
	NeedsConfirmation  bool   `json:"needsConfirmation"`
	PermissionRequired bool   `json:"permission_required"`
	Message            string `json:"message"`
	Question           string `json:"question"`
	SessionID          string `json:"session_id"`
}

type errorResponse struct {
	Response  string          `json:"response"`
	Kind      agent.ErrorKind `json:"kind,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(r)
	if err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	question := fields["question"]
	if strings.TrimSpace(question) == "" {
		http.Error(w, "question required", http.StatusBadRequest)
		return
	}
	sessionID := resolveSessionID(w, r, fields)

	result, err := s.tutor.Ask(r.Context(), sessionID, question)
	if err != nil {
		s.writeTurnError(w, sessionID, "ask", err)
		return
	}

	switch result.Kind {
	case agent.KindRejected:
		s.broker.Emit(sessionID, events.TypeTurnRejected, map[string]any{"question": question})
		writeJSONStatus(w, turnResponse{Response: result.Display(), SessionID: sessionID}, http.StatusOK)
	case agent.KindNeedsConfirmation:
		s.broker.Emit(sessionID, events.TypeTurnConfirmationRequired, map[string]any{"question": result.Question})
		writeJSONStatus(w, confirmationResponse{
			NeedsConfirmation:  true,
			PermissionRequired: true,
			Message:            result.Message,
			Question:           result.Question,
			SessionID:          sessionID,
		}, http.StatusOK)
	default:
		s.broker.Emit(sessionID, events.TypeTurnAnswered, answeredPayload(question, result))
		writeJSONStatus(w, turnResponse{
			Response:  result.Display(),
			Source:    string(result.Source),
			SessionID: sessionID,
		}, http.StatusOK)
	}
}

func (s *Server) webSearch(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(r)
	if err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	question := fields["question"]
	if strings.TrimSpace(question) == "" {
		http.Error(w, "question required", http.StatusBadRequest)
		return
	}
	sessionID := resolveSessionID(w, r, fields)

	result, err := s.tutor.SearchAndAnswer(r.Context(), sessionID, question)
	if err != nil {
		s.writeTurnError(w, sessionID, "web_search", err)
		return
	}
	s.broker.Emit(sessionID, events.TypeTurnAnswered, answeredPayload(question, result))
	writeJSONStatus(w, turnResponse{Response: result.Display(), Source: "web", SessionID: sessionID}, http.StatusOK)
}

func answeredPayload(question string, result agent.Result) map[string]any {
	payload := map[string]any{
		"question": question,
		"source":   string(result.Source),
	}
	if result.Match != nil {
		payload["similarity"] = result.Match.Score
		payload["position"] = result.Match.Position
	}
	return payload
}

func (s *Server) writeTurnError(w http.ResponseWriter, sessionID string, op string, err error) {
	kind := agent.KindOf(err)
	if kind == agent.ErrClassificationRejected {
		s.broker.Emit(sessionID, events.TypeTurnRejected, nil)
		writeJSONStatus(w, errorResponse{Response: agent.RefusalText, Kind: kind, SessionID: sessionID}, http.StatusBadRequest)
		return
	}
	status := statusForKind(kind)
	s.logger.Error("turn failed", "op", op, "session_id", sessionID, "kind", kind, "status", status, "error", err)
	writeJSONStatus(w, errorResponse{Response: "Error: " + err.Error(), Kind: kind, SessionID: sessionID}, status)
}

func statusForKind(kind agent.ErrorKind) int {
	switch kind {
	case agent.ErrProviderError:
		return http.StatusBadGateway
	case agent.ErrProviderUnavailable:
		return http.StatusServiceUnavailable
	case agent.ErrClassificationRejected:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// resolveSessionID prefers the body field, then the header, and otherwise
// mints a new id. The chosen id is echoed in the response header.
func resolveSessionID(w http.ResponseWriter, r *http.Request, fields map[string]string) string {
	sessionID := strings.TrimSpace(fields["session_id"])
	if sessionID == "" {
		sessionID = strings.TrimSpace(r.Header.Get(SessionHeader))
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	w.Header().Set(SessionHeader, sessionID)
	return sessionID
}

// readFields accepts form posts (urlencoded or multipart) and JSON objects.
// Non-string JSON values are ignored.
func readFields(r *http.Request) (map[string]string, error) {
	fields := map[string]string{}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var body map[string]any
		if r.Body != nil {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}
		}
		for key, value := range body {
			if text, ok := value.(string); ok {
				fields[key] = text
			}
		}
		return fields, nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			return nil, err
		}
	default:
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
	}
	for key := range r.PostForm {
		fields[key] = r.PostForm.Get(key)
	}
	return fields, nil
}
