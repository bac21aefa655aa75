package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Keyring-Network/gavryn-tutor/internal/agent"
	"github.com/Keyring-Network/gavryn-tutor/internal/config"
	"github.com/Keyring-Network/gavryn-tutor/internal/events"
	"github.com/Keyring-Network/gavryn-tutor/internal/knowledge"
	"github.com/Keyring-Network/gavryn-tutor/internal/store"
	"github.com/Keyring-Network/gavryn-tutor/internal/store/memory"
)

type MockTutor struct {
	mock.Mock
}

func (m *MockTutor) Ask(ctx context.Context, sessionID string, query string) (agent.Result, error) {
	args := m.Called(ctx, sessionID, query)
	return args.Get(0).(agent.Result), args.Error(1)
}

func (m *MockTutor) SearchAndAnswer(ctx context.Context, sessionID string, query string) (agent.Result, error) {
	args := m.Called(ctx, sessionID, query)
	return args.Get(0).(agent.Result), args.Error(1)
}

func (m *MockTutor) Reset(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

type testDeps struct {
	tutor    *MockTutor
	broker   *events.Broker
	feedback *memory.MemoryStore
}

func newTestServer(t *testing.T, deps testDeps, probes map[string]store.Pinger) *httptest.Server {
	t.Helper()
	server := NewServer(Options{
		Tutor:          deps.tutor,
		Feedback:       deps.feedback,
		Broker:         deps.broker,
		Probes:         probes,
		KnowledgeSize:  3,
		HeartbeatEvery: time.Hour,
	}, config.Config{RequestTimeout: 5 * time.Second})
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return ts
}

func newDeps() testDeps {
	return testDeps{tutor: &MockTutor{}, broker: events.NewBroker(), feedback: memory.New()}
}

func postJSON(t *testing.T, target string, body map[string]string, header http.Header) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, target, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, newDeps(), nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", decodeBody(t, resp)["status"])
}

func TestReady(t *testing.T) {
	t.Run("ready when probes pass", func(t *testing.T) {
		deps := newDeps()
		ts := newTestServer(t, deps, map[string]store.Pinger{"sessions": deps.feedback})

		resp, err := http.Get(ts.URL + "/ready")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		var payload readinessResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		require.Equal(t, "ok", payload.Status)
		require.Equal(t, "ok", payload.Subsystems["sessions"].Status)
		require.Equal(t, 3, payload.Subsystems["knowledge"].Entries)
	})

	t.Run("degraded when a probe fails", func(t *testing.T) {
		failing := pingerFunc(func(ctx context.Context) error { return errors.New("connection refused") })
		ts := newTestServer(t, newDeps(), map[string]store.Pinger{"feedback": failing})

		resp, err := http.Get(ts.URL + "/ready")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		var payload readinessResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		require.Equal(t, "degraded", payload.Status)
		require.Equal(t, "connection refused", payload.Subsystems["feedback"].Error)
	})
}

func TestAskAnswer(t *testing.T) {
	deps := newDeps()
	deps.tutor.On("Ask", mock.Anything, "s-1", "what is a prime number").
		Return(agent.Result{Kind: agent.KindAnswer, Text: "A prime has two divisors.", Source: agent.SourceDirect}, nil).Once()
	ts := newTestServer(t, deps, nil)

	resp := postJSON(t, ts.URL+"/ask", map[string]string{"question": "what is a prime number", "session_id": "s-1"}, nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "s-1", resp.Header.Get(SessionHeader))
	payload := decodeBody(t, resp)
	require.Equal(t, "A prime has two divisors.\n\n Source: Direct LLM", payload["response"])
	require.Equal(t, "Direct LLM", payload["source"])
	require.Equal(t, "s-1", payload["session_id"])
	deps.tutor.AssertExpectations(t)
}

func TestAskFormPostWithSessionHeader(t *testing.T) {
	deps := newDeps()
	deps.tutor.On("Ask", mock.Anything, "from-header", "solve x + 2 = 5").
		Return(agent.Result{Kind: agent.KindAnswer, Text: "x = 3", Source: agent.SourceKnowledgeBase}, nil).Once()
	ts := newTestServer(t, deps, nil)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/ask", strings.NewReader(url.Values{"question": {"solve x + 2 = 5"}}.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(SessionHeader, "from-header")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "from-header", decodeBody(t, resp)["session_id"])
	deps.tutor.AssertExpectations(t)
}

func TestAskGeneratesSessionID(t *testing.T) {
	deps := newDeps()
	deps.tutor.On("Ask", mock.Anything, mock.AnythingOfType("string"), "2 + 2").
		Return(agent.Result{Kind: agent.KindAnswer, Text: "4", Source: agent.SourceDirect}, nil).Once()
	ts := newTestServer(t, deps, nil)

	resp := postJSON(t, ts.URL+"/ask", map[string]string{"question": "2 + 2"}, nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	generated := resp.Header.Get(SessionHeader)
	require.NotEmpty(t, generated)
	require.Equal(t, generated, decodeBody(t, resp)["session_id"])
	require.Equal(t, generated, deps.tutor.Calls[0].Arguments.String(1))
}

func TestAskNeedsConfirmation(t *testing.T) {
	deps := newDeps()
	deps.tutor.On("Ask", mock.Anything, "s-1", "integrate sec^3 x").
		Return(agent.Result{
			Kind:     agent.KindNeedsConfirmation,
			Question: "integrate sec^3 x",
			Message:  agent.ConfirmWebSearchText,
		}, nil).Once()
	ts := newTestServer(t, deps, nil)

	resp := postJSON(t, ts.URL+"/ask", map[string]string{"question": "integrate sec^3 x", "session_id": "s-1"}, nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	payload := decodeBody(t, resp)
	require.Equal(t, true, payload["needsConfirmation"])
	require.Equal(t, true, payload["permission_required"])
	require.Equal(t, agent.ConfirmWebSearchText, payload["message"])
	require.Equal(t, "integrate sec^3 x", payload["question"])
}

func TestAskPassesQuestionVerbatim(t *testing.T) {
	raw := "  integrate sec^3 x \n"
	deps := newDeps()
	deps.tutor.On("Ask", mock.Anything, "s-1", raw).
		Return(agent.Result{Kind: agent.KindNeedsConfirmation, Question: raw, Message: agent.ConfirmWebSearchText}, nil).Once()
	deps.tutor.On("SearchAndAnswer", mock.Anything, "s-1", raw).
		Return(agent.Result{Kind: agent.KindAnswer, Text: "Use parts.", Source: agent.SourceInternet}, nil).Once()
	ts := newTestServer(t, deps, nil)

	resp := postJSON(t, ts.URL+"/ask", map[string]string{"question": raw, "session_id": "s-1"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, raw, decodeBody(t, resp)["question"])

	resp = postJSON(t, ts.URL+"/web_search", map[string]string{"question": raw, "session_id": "s-1"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	deps.tutor.AssertExpectations(t)
}

func TestAskRejected(t *testing.T) {
	deps := newDeps()
	deps.tutor.On("Ask", mock.Anything, "s-1", "tell me a joke").
		Return(agent.Result{Kind: agent.KindRejected, Text: agent.RefusalText}, nil).Once()
	ts := newTestServer(t, deps, nil)

	resp := postJSON(t, ts.URL+"/ask", map[string]string{"question": "tell me a joke", "session_id": "s-1"}, nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	payload := decodeBody(t, resp)
	require.Equal(t, agent.RefusalText, payload["response"])
	require.NotContains(t, payload, "source")
}

func TestAskErrorStatus(t *testing.T) {
	cases := []struct {
		name   string
		kind   agent.ErrorKind
		status int
	}{
		{name: "provider error", kind: agent.ErrProviderError, status: http.StatusBadGateway},
		{name: "provider unavailable", kind: agent.ErrProviderUnavailable, status: http.StatusServiceUnavailable},
		{name: "storage", kind: agent.ErrStorage, status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			deps := newDeps()
			deps.tutor.On("Ask", mock.Anything, "s-1", "solve x^2 = 4").
				Return(agent.Result{}, &agent.Error{Kind: tc.kind, Op: "ask", Err: errors.New("boom")}).Once()
			ts := newTestServer(t, deps, nil)

			resp := postJSON(t, ts.URL+"/ask", map[string]string{"question": "solve x^2 = 4", "session_id": "s-1"}, nil)

			require.Equal(t, tc.status, resp.StatusCode)
			payload := decodeBody(t, resp)
			require.True(t, strings.HasPrefix(payload["response"].(string), "Error: "))
			require.Equal(t, string(tc.kind), payload["kind"])
		})
	}
}

func TestAskRequiresQuestion(t *testing.T) {
	ts := newTestServer(t, newDeps(), nil)

	resp := postJSON(t, ts.URL+"/ask", map[string]string{"question": "   "}, nil)

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSearch(t *testing.T) {
	t.Run("answers from the web", func(t *testing.T) {
		deps := newDeps()
		deps.tutor.On("SearchAndAnswer", mock.Anything, "s-1", "integrate sec^3 x").
			Return(agent.Result{Kind: agent.KindAnswer, Text: "Use parts.", Source: agent.SourceInternet}, nil).Once()
		ts := newTestServer(t, deps, nil)

		resp := postJSON(t, ts.URL+"/web_search", map[string]string{"question": "integrate sec^3 x", "session_id": "s-1"}, nil)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		payload := decodeBody(t, resp)
		require.Equal(t, "web", payload["source"])
		require.Equal(t, "Use parts.\n\n Source: Internet Source", payload["response"])
	})

	t.Run("refuses non-math questions", func(t *testing.T) {
		deps := newDeps()
		deps.tutor.On("SearchAndAnswer", mock.Anything, "s-1", "weather today").
			Return(agent.Result{}, &agent.Error{Kind: agent.ErrClassificationRejected, Op: "search"}).Once()
		ts := newTestServer(t, deps, nil)

		resp := postJSON(t, ts.URL+"/web_search", map[string]string{"question": "weather today", "session_id": "s-1"}, nil)

		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, agent.RefusalText, decodeBody(t, resp)["response"])
	})
}

func TestFeedback(t *testing.T) {
	deps := newDeps()
	ts := newTestServer(t, deps, nil)

	form := url.Values{
		"question":   {"2 + 2"},
		"answer":     {"4"},
		"feedback":   {store.FeedbackDown},
		"session_id": {"s-1"},
	}
	resp, err := http.PostForm(ts.URL+"/feedback", form)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "success", decodeBody(t, resp)["status"])

	records, err := deps.feedback.ListFeedback(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "blank", records[0].Question)
	require.Equal(t, "2 + 2", records[1].Question)
	require.Equal(t, store.FeedbackDown, records[1].Label)
	require.Equal(t, "s-1", records[1].SessionID)
}

func TestFeedbackRequiresLabel(t *testing.T) {
	ts := newTestServer(t, newDeps(), nil)

	resp, err := http.PostForm(ts.URL+"/feedback", url.Values{"question": {"q"}, "answer": {"a"}})
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestResetSession(t *testing.T) {
	deps := newDeps()
	deps.tutor.On("Reset", mock.Anything, "s-1").Return(nil).Once()
	deps.broker.Emit("s-1", events.TypeTurnAnswered, nil)
	ts := newTestServer(t, deps, nil)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/sessions/s-1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	deps.tutor.AssertExpectations(t)
	require.Equal(t, int64(1), deps.broker.Emit("s-1", events.TypeTurnAnswered, nil).Seq)
}

func TestStreamEvents(t *testing.T) {
	deps := newDeps()
	deps.tutor.On("Ask", mock.Anything, "s-1", "what is pi").
		Return(agent.Result{
			Kind:   agent.KindAnswer,
			Text:   "About 3.14159.",
			Source: agent.SourceKnowledgeBase,
			Match:  &knowledge.Match{Position: 2, Score: 0.9},
		}, nil).Once()
	ts := newTestServer(t, deps, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sessions/s-1/events", nil)
	require.NoError(t, err)
	stream, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	require.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	postJSON(t, ts.URL+"/ask", map[string]string{"question": "what is pi", "session_id": "s-1"}, nil)

	reader := bufio.NewReader(stream.Body)
	var data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}

	var event events.TurnEvent
	require.NoError(t, json.Unmarshal([]byte(data), &event))
	require.Equal(t, "s-1", event.SessionID)
	require.Equal(t, events.TypeTurnAnswered, event.Type)
	require.Equal(t, int64(1), event.Seq)
	require.Equal(t, "Knowledge Base", event.Payload["source"])
	require.Equal(t, float64(2), event.Payload["position"])
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, newDeps(), nil)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/ask", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), SessionHeader)
}

func TestShouldSuppressRequestLog(t *testing.T) {
	require.True(t, shouldSuppressRequestLog(http.MethodGet, "/sessions/abc/events"))
	require.True(t, shouldSuppressRequestLog(http.MethodGet, "/health"))
	require.True(t, shouldSuppressRequestLog(http.MethodOptions, "/ask"))
	require.False(t, shouldSuppressRequestLog(http.MethodPost, "/ask"))
}
