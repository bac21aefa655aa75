// Package websearch looks questions up on the web through Serper.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultURL     = "https://google.serper.dev/search"
	DefaultTimeout = 10 * time.Second

	NoResults   = "Sorry, I could not find a reliable answer online."
	Unavailable = "Web search is not available (API key missing)."
)

// Searcher returns a text snippet for query. The sentinel texts NoResults and
// Unavailable are successful results; only transport failures are errors.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

type sessionKey struct{}

// WithSessionID tags ctx with the session a lookup is made for, so searchers
// that hand work off to another process can carry it along.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

func SessionIDFrom(ctx context.Context) string {
	sessionID, _ := ctx.Value(sessionKey{}).(string)
	return sessionID
}

// Error reports a failed lookup. Status is zero for transport failures.
type Error struct {
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("web search %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("web search %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Config struct {
	APIKey  string
	URL     string
	Timeout time.Duration
}

type SerperClient struct {
	apiKey string
	url    string
	client *http.Client
}

func NewSerper(cfg Config) *SerperClient {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		url = DefaultURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SerperClient{
		apiKey: cfg.APIKey,
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type serperRequest struct {
	Q  string `json:"q"`
	GL string `json:"gl"`
	HL string `json:"hl"`
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func (c *SerperClient) Search(ctx context.Context, query string) (string, error) {
	if c.apiKey == "" {
		return Unavailable, nil
	}
	payload, err := json.Marshal(serperRequest{Q: query, GL: "in", HL: "en"})
	if err != nil {
		return "", &Error{Op: "encode", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", &Error{Op: "request", Err: err}
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &Error{Op: "request", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &Error{Op: "request", Status: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(body)))}
	}

	var parsed serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &Error{Op: "decode", Err: err}
	}
	if len(parsed.Organic) == 0 {
		return NoResults, nil
	}
	top := parsed.Organic[0]
	return fmt.Sprintf("Web Search Result: %s\n(Source: %s)", top.Snippet, top.Link), nil
}

// IsSentinel reports whether result is one of the fixed no-answer texts.
func IsSentinel(result string) bool {
	return result == NoResults || result == Unavailable
}
