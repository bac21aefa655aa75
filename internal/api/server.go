package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Keyring-Network/gavryn-tutor/internal/agent"
	"github.com/Keyring-Network/gavryn-tutor/internal/config"
	"github.com/Keyring-Network/gavryn-tutor/internal/events"
	"github.com/Keyring-Network/gavryn-tutor/internal/store"
)

const SessionHeader = "X-Session-ID"

// Tutor is the part of the agent the HTTP layer drives.
type Tutor interface {
	Ask(ctx context.Context, sessionID string, query string) (agent.Result, error)
	SearchAndAnswer(ctx context.Context, sessionID string, query string) (agent.Result, error)
	Reset(ctx context.Context, sessionID string) error
}

type Broker interface {
	Emit(sessionID string, eventType string, payload map[string]any) events.TurnEvent
	Subscribe(ctx context.Context, sessionID string) <-chan events.TurnEvent
	Forget(sessionID string)
}

type Options struct {
	Tutor    Tutor
	Feedback store.FeedbackStore
	Broker   Broker
	// Probes are checked by /ready, keyed by subsystem name.
	Probes         map[string]store.Pinger
	KnowledgeSize  int
	Logger         *slog.Logger
	HeartbeatEvery time.Duration
}

type Server struct {
	tutor         Tutor
	feedback      store.FeedbackStore
	broker        Broker
	probes        map[string]store.Pinger
	knowledgeSize int
	cfg           config.Config
	logger        *slog.Logger
	heartbeat     time.Duration
}

func NewServer(opts Options, cfg config.Config) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	heartbeat := opts.HeartbeatEvery
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &Server{
		tutor:         opts.Tutor,
		feedback:      opts.Feedback,
		broker:        opts.Broker,
		probes:        opts.Probes,
		knowledgeSize: opts.KnowledgeSize,
		cfg:           cfg,
		logger:        logger.With("component", "api"),
		heartbeat:     heartbeat,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(quietRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Get("/sessions/{id}/events", s.streamEvents)

	r.Group(func(r chi.Router) {
		if s.cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))
		}
		r.Post("/ask", s.ask)
		r.Post("/web_search", s.webSearch)
		r.Post("/feedback", s.recordFeedback)
		r.Delete("/sessions/{id}", s.resetSession)
	})

	return r
}

func quietRequestLogger(next http.Handler) http.Handler {
	logged := middleware.Logger(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSuppressRequestLog(r.Method, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		logged.ServeHTTP(w, r)
	})
}

func shouldSuppressRequestLog(method string, path string) bool {
	cleanPath := strings.TrimSpace(path)
	if method == http.MethodGet && strings.HasSuffix(cleanPath, "/events") {
		return true
	}
	if method == http.MethodGet && (cleanPath == "/health" || cleanPath == "/ready") {
		return true
	}
	return method == http.MethodOptions
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSONStatus(w, map[string]string{"status": "ok"}, http.StatusOK)
}

type subsystemStatus struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Entries int    `json:"entries,omitempty"`
}

type readinessResponse struct {
	Status     string                     `json:"status"`
	Subsystems map[string]subsystemStatus `json:"subsystems"`
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	subsystems := map[string]subsystemStatus{}
	overall := http.StatusOK

	names := make([]string, 0, len(s.probes))
	for name := range s.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.probes[name].Ping(ctx); err != nil {
			subsystems[name] = subsystemStatus{Status: "error", Error: err.Error()}
			overall = http.StatusServiceUnavailable
			continue
		}
		subsystems[name] = subsystemStatus{Status: "ok"}
	}

	if s.knowledgeSize > 0 {
		subsystems["knowledge"] = subsystemStatus{Status: "ok", Entries: s.knowledgeSize}
	} else {
		subsystems["knowledge"] = subsystemStatus{Status: "error", Error: "knowledge index is empty"}
		overall = http.StatusServiceUnavailable
	}

	status := "ok"
	if overall != http.StatusOK {
		status = "degraded"
	}
	writeJSONStatus(w, readinessResponse{Status: status, Subsystems: subsystems}, overall)
}

func writeJSONStatus(w http.ResponseWriter, value any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Last-Event-ID, "+SessionHeader)
		w.Header().Set("Access-Control-Expose-Headers", SessionHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()
	return server.ListenAndServe()
}
