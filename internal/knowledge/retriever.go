package knowledge

import (
	"context"
	"fmt"

	"github.com/Keyring-Network/gavryn-tutor/internal/embedding"
)

const DefaultThreshold = 0.76

type Match struct {
	Entry    Entry
	Position int
	Score    float64
}

// Retriever finds the single closest knowledge base entry to a question. It is
// read-only after construction.
type Retriever struct {
	entries   []Entry
	index     *Index
	embedder  embedding.Embedder
	threshold float64
}

func NewRetriever(entries []Entry, index *Index, embedder embedding.Embedder, threshold float64) (*Retriever, error) {
	if index == nil || index.Len() != len(entries) {
		return nil, fmt.Errorf("knowledge index does not cover %d entries", len(entries))
	}
	if embedder.Model() != index.Model() {
		return nil, fmt.Errorf("embedding model %q does not match index model %q", embedder.Model(), index.Model())
	}
	return &Retriever{
		entries:   entries,
		index:     index,
		embedder:  embedder,
		threshold: threshold,
	}, nil
}

// Retrieve returns the best match when its similarity is strictly above the
// threshold and nil otherwise. Ties resolve to the lowest position.
func (r *Retriever) Retrieve(ctx context.Context, query string) (*Match, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	scores, err := r.index.Similarities(vector)
	if err != nil {
		return nil, err
	}
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	score := float64(scores[best])
	if score <= r.threshold {
		return nil, nil
	}
	return &Match{Entry: r.entries[best], Position: best, Score: score}, nil
}

func (r *Retriever) Threshold() float64 {
	return r.threshold
}

func (r *Retriever) Len() int {
	return len(r.entries)
}
