package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	embedder, err := New(Config{Provider: "ollama", Model: "all-minilm"})
	require.NoError(t, err)
	require.IsType(t, &Ollama{}, embedder)
	require.Equal(t, "ollama/all-minilm", embedder.Model())

	embedder, err = New(Config{Provider: "openai", OpenAIAPIKey: "k"})
	require.NoError(t, err)
	require.IsType(t, &OpenAI{}, embedder)
	require.Equal(t, "openai/text-embedding-3-small", embedder.Model())

	_, err = New(Config{Provider: "word2vec"})
	var unsupported ErrUnsupportedProvider
	require.ErrorAs(t, err, &unsupported)
	require.Equal(t, "unsupported embedding provider: word2vec", err.Error())
}

func TestOllama_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "all-minilm", req.Model)
		require.Equal(t, "area of a circle", req.Prompt)
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	}))
	defer server.Close()

	embedder := NewOllama(server.URL+"/", "")
	vector, err := embedder.Embed(context.Background(), "area of a circle")
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, vector)
}

func TestOllama_EmbedErrors(t *testing.T) {
	status := http.StatusInternalServerError
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{})
	}))
	defer server.Close()

	embedder := NewOllama(server.URL, "all-minilm")
	_, err := embedder.Embed(context.Background(), "x")
	require.Error(t, err)

	status = http.StatusOK
	_, err = embedder.Embed(context.Background(), "x")
	require.ErrorIs(t, err, ErrEmptyEmbedding)
}

func TestOllama_EmbedBatch(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{float32(calls)}})
	}))
	defer server.Close()

	vectors, err := NewOllama(server.URL, "m").EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1}, {2}, {3}}, vectors)
}

func TestOpenAI_EmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		var body struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, []string{"first", "second"}, body.Input)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  body.Model,
			"data": []map[string]any{
				{"object": "embedding", "index": 1, "embedding": []float64{0, 1}},
				{"object": "embedding", "index": 0, "embedding": []float64{1, 0}},
			},
			"usage": map[string]any{"prompt_tokens": 2, "total_tokens": 2},
		})
	}))
	defer server.Close()

	embedder := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: server.URL})
	vectors, err := embedder.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)
}

func TestOpenAI_MissingKey(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{}).Embed(context.Background(), "x")
	require.Error(t, err)
}

type countingEmbedder struct {
	calls int
	err   error
}

func (c *countingEmbedder) Model() string { return "test/counting" }

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text))}, nil
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		vector, err := c.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = vector
	}
	return results, nil
}

func TestCached(t *testing.T) {
	inner := &countingEmbedder{}
	cached, err := NewCached(inner, 2)
	require.NoError(t, err)
	require.Equal(t, "test/counting", cached.Model())

	first, err := cached.Embed(context.Background(), "abc")
	require.NoError(t, err)
	first[0] = 99

	second, err := cached.Embed(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, []float32{3}, second)
	require.Equal(t, 1, inner.calls)

	_, _ = cached.Embed(context.Background(), "d")
	_, _ = cached.Embed(context.Background(), "ef")
	require.Equal(t, 2, cached.Len())
	_, _ = cached.Embed(context.Background(), "abc")
	require.Equal(t, 4, inner.calls)
}

func TestCached_ErrorsNotCached(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("down")}
	cached, err := NewCached(inner, 0)
	require.NoError(t, err)
	_, err = cached.Embed(context.Background(), "x")
	require.Error(t, err)
	require.Equal(t, 0, cached.Len())
}
