// Package agent routes a student question to a direct answer, a knowledge base
// grounded answer, or a request for consent to search the web.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Keyring-Network/gavryn-tutor/internal/knowledge"
	"github.com/Keyring-Network/gavryn-tutor/internal/llm"
	"github.com/Keyring-Network/gavryn-tutor/internal/store"
	"github.com/Keyring-Network/gavryn-tutor/internal/websearch"
)

const DefaultSessionID = "default"

type Classifier interface {
	IsMathQuestion(text string) bool
	IsBasicArithmeticOrTheory(text string) bool
}

type Retriever interface {
	Retrieve(ctx context.Context, query string) (*knowledge.Match, error)
}

type Options struct {
	Classifier   Classifier
	Retriever    Retriever
	Provider     llm.Provider
	Searcher     websearch.Searcher
	Sessions     store.SessionStore
	SystemPrompt string
	History      HistoryPolicy
	Logger       *slog.Logger
}

type Agent struct {
	classifier   Classifier
	retriever    Retriever
	provider     llm.Provider
	searcher     websearch.Searcher
	sessions     store.SessionStore
	systemPrompt string
	history      HistoryPolicy
	logger       *slog.Logger
	locks        *sessionLocks
}

func New(opts Options) (*Agent, error) {
	switch {
	case opts.Classifier == nil:
		return nil, errors.New("agent: classifier is required")
	case opts.Retriever == nil:
		return nil, errors.New("agent: retriever is required")
	case opts.Provider == nil:
		return nil, errors.New("agent: language model provider is required")
	case opts.Sessions == nil:
		return nil, errors.New("agent: session store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		classifier:   opts.Classifier,
		retriever:    opts.Retriever,
		provider:     opts.Provider,
		searcher:     opts.Searcher,
		sessions:     opts.Sessions,
		systemPrompt: opts.SystemPrompt,
		history:      opts.History,
		logger:       logger.With("component", "agent"),
		locks:        newSessionLocks(),
	}, nil
}

// Ask runs one turn for sessionID. Rejections and web search confirmations are
// results, not errors, and leave the session untouched.
func (a *Agent) Ask(ctx context.Context, sessionID string, query string) (Result, error) {
	sessionID = normalizeSessionID(sessionID)
	if !a.classifier.IsMathQuestion(query) {
		a.logger.Info("question rejected", "session_id", sessionID, "tier", "reject")
		return Result{Kind: KindRejected, Text: RefusalText}, nil
	}

	release, err := a.locks.acquire(ctx, sessionID)
	if err != nil {
		return Result{}, &Error{Kind: ErrProviderUnavailable, Op: "ask", Err: err}
	}
	defer release()

	if a.classifier.IsBasicArithmeticOrTheory(query) {
		a.logger.Info("answering directly", "session_id", sessionID, "tier", "direct")
		reply, err := a.converse(ctx, "ask", sessionID, DirectPrompt(query))
		if err != nil {
			return Result{}, err
		}
		return Result{Kind: KindAnswer, Text: reply, Source: SourceDirect}, nil
	}

	match, err := a.retriever.Retrieve(ctx, query)
	if err != nil {
		return Result{}, retrievalError(err)
	}
	if match == nil {
		a.logger.Info("knowledge base miss, asking for web search consent", "session_id", sessionID, "tier", "confirm")
		return Result{Kind: KindNeedsConfirmation, Question: query, Message: ConfirmWebSearchText}, nil
	}

	a.logger.Info("answering from knowledge base",
		"session_id", sessionID,
		"tier", "knowledge_base",
		"similarity", match.Score,
		"position", match.Position,
	)
	reply, err := a.converse(ctx, "ask", sessionID, VerifiedPrompt(query, match.Entry))
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: KindAnswer, Text: reply, Source: SourceKnowledgeBase, Match: match}, nil
}

// AnswerWithWeb answers query using a web result the caller already holds.
func (a *Agent) AnswerWithWeb(ctx context.Context, sessionID string, query string, webResult string) (Result, error) {
	sessionID = normalizeSessionID(sessionID)
	release, err := a.locks.acquire(ctx, sessionID)
	if err != nil {
		return Result{}, &Error{Kind: ErrProviderUnavailable, Op: "answer_with_web", Err: err}
	}
	defer release()

	a.logger.Info("answering from web result", "session_id", sessionID, "tier", "web")
	reply, err := a.converse(ctx, "answer_with_web", sessionID, WebPrompt(query, webResult))
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: KindAnswer, Text: reply, Source: SourceInternet}, nil
}

// SearchAndAnswer runs the consented web search for query and answers from
// its result. Non-math questions are refused with ErrClassificationRejected.
func (a *Agent) SearchAndAnswer(ctx context.Context, sessionID string, query string) (Result, error) {
	if !a.classifier.IsMathQuestion(query) {
		return Result{}, &Error{Kind: ErrClassificationRejected, Op: "web_search", Err: errors.New(RefusalText)}
	}
	if a.searcher == nil {
		return Result{}, &Error{Kind: ErrProviderUnavailable, Op: "web_search", Err: errors.New("no web searcher configured")}
	}
	webResult, err := a.searcher.Search(websearch.WithSessionID(ctx, normalizeSessionID(sessionID)), query)
	if err != nil {
		return Result{}, &Error{Kind: ErrProviderError, Op: "web_search", Err: err}
	}
	return a.AnswerWithWeb(ctx, sessionID, query, webResult)
}

// Reset forgets sessionID's history.
func (a *Agent) Reset(ctx context.Context, sessionID string) error {
	sessionID = normalizeSessionID(sessionID)
	release, err := a.locks.acquire(ctx, sessionID)
	if err != nil {
		return &Error{Kind: ErrStorage, Op: "reset", Err: err}
	}
	defer release()
	if err := a.sessions.DeleteSession(ctx, sessionID); err != nil {
		return &Error{Kind: ErrStorage, Op: "reset", Err: err}
	}
	return nil
}

// History returns a copy of sessionID's messages, starting with the system
// prompt. Unknown sessions report just the system prompt.
func (a *Agent) History(ctx context.Context, sessionID string) ([]llm.Message, error) {
	session, err := a.loadSession(ctx, normalizeSessionID(sessionID))
	if err != nil {
		return nil, &Error{Kind: ErrStorage, Op: "history", Err: err}
	}
	return session.History, nil
}

// converse sends the session history plus prompt to the model and commits
// prompt and reply only when the call succeeds. Callers hold the session lock.
func (a *Agent) converse(ctx context.Context, op string, sessionID string, prompt string) (string, error) {
	session, err := a.loadSession(ctx, sessionID)
	if err != nil {
		return "", &Error{Kind: ErrStorage, Op: op, Err: err}
	}
	userMessage := llm.Message{Role: llm.RoleUser, Content: prompt}
	request := append(append([]llm.Message{}, session.History...), userMessage)

	reply, err := a.provider.Generate(ctx, request)
	if err != nil {
		a.logger.Warn("language model call failed", "session_id", sessionID, "op", op, "error", err)
		return "", providerError(op, err)
	}

	session.History = a.history.Trim(append(request, llm.Message{Role: llm.RoleAssistant, Content: reply}))
	if err := a.sessions.SaveSession(ctx, session); err != nil {
		return "", &Error{Kind: ErrStorage, Op: op, Err: fmt.Errorf("save session: %w", err)}
	}
	return reply, nil
}

func (a *Agent) loadSession(ctx context.Context, sessionID string) (store.Session, error) {
	existing, err := a.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return store.Session{}, fmt.Errorf("load session: %w", err)
	}
	if existing != nil {
		return *existing, nil
	}
	return store.Session{
		ID:      sessionID,
		History: []llm.Message{{Role: llm.RoleSystem, Content: a.systemPrompt}},
	}, nil
}

func providerError(op string, err error) error {
	switch {
	case errors.Is(err, llm.ErrMissingAPIKey),
		errors.Is(err, llm.ErrMissingModel),
		errors.Is(err, llm.ErrLocalModeUnset):
		return &Error{Kind: ErrProviderUnavailable, Op: op, Err: err}
	default:
		return &Error{Kind: ErrProviderError, Op: op, Err: err}
	}
}

func retrievalError(err error) error {
	if errors.Is(err, knowledge.ErrDimensionMismatch) {
		return &Error{Kind: ErrStorage, Op: "retrieve", Err: err}
	}
	return &Error{Kind: ErrProviderError, Op: "retrieve", Err: err}
}

func normalizeSessionID(sessionID string) string {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return DefaultSessionID
	}
	return sessionID
}
