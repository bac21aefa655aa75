package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/Keyring-Network/gavryn-tutor/internal/embedding"
)

var ErrDimensionMismatch = errors.New("embedding dimension does not match index")

// Index keeps one L2-normalised row per entry in a flat row-major matrix so a
// query is scored against every entry with a single Gemv.
type Index struct {
	model       string
	fingerprint string
	dim         int
	n           int
	flat        []float32
}

// Fingerprint identifies the pair (embedding model, embedded texts). Any edit to
// a problem statement or a model change yields a different fingerprint.
func Fingerprint(model string, entries []Entry) string {
	hasher := sha256.New()
	_, _ = hasher.Write([]byte(model))
	_, _ = hasher.Write([]byte{0})
	for _, text := range problems(entries) {
		_, _ = hasher.Write([]byte(text))
		_, _ = hasher.Write([]byte{0})
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

func CachePath(dir string, fingerprint string) string {
	return filepath.Join(dir, fmt.Sprintf("kb_embeddings-%s.bin", fingerprint[:16]))
}

// BuildIndex returns the cached index for entries when one exists under
// cacheDir, otherwise embeds every problem and persists the result. An empty
// cacheDir disables persistence.
func BuildIndex(ctx context.Context, entries []Entry, embedder embedding.Embedder, cacheDir string) (*Index, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyKnowledgeBase
	}
	fingerprint := Fingerprint(embedder.Model(), entries)
	path := ""
	if cacheDir != "" {
		path = CachePath(cacheDir, fingerprint)
		cached, err := readCache(path, len(entries))
		switch {
		case err == nil && cached.fingerprint == fingerprint && cached.n == len(entries):
			slog.Info("knowledge index loaded from cache", "path", path, "entries", cached.n, "dim", cached.dim)
			return cached, nil
		case err == nil:
			slog.Warn("knowledge index cache does not match knowledge base, rebuilding", "path", path)
		case !errors.Is(err, os.ErrNotExist):
			slog.Warn("knowledge index cache unreadable, rebuilding", "path", path, "error", err)
		}
	}

	vectors, err := embedder.EmbedBatch(ctx, problems(entries))
	if err != nil {
		return nil, fmt.Errorf("embed knowledge base: %w", err)
	}
	index, err := newIndex(embedder.Model(), fingerprint, vectors)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := writeCache(path, index, vectors); err != nil {
			return nil, fmt.Errorf("persist knowledge index: %w", err)
		}
		slog.Info("knowledge index built", "path", path, "entries", index.n, "dim", index.dim)
	}
	return index, nil
}

func newIndex(model string, fingerprint string, vectors [][]float32) (*Index, error) {
	if len(vectors) == 0 {
		return nil, ErrEmptyKnowledgeBase
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, embedding.ErrEmptyEmbedding
	}
	flat := make([]float32, len(vectors)*dim)
	for i, vector := range vectors {
		if len(vector) != dim {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrDimensionMismatch, i, len(vector), dim)
		}
		row := flat[i*dim : (i+1)*dim]
		copy(row, vector)
		normalize(row)
	}
	return &Index{
		model:       model,
		fingerprint: fingerprint,
		dim:         dim,
		n:           len(vectors),
		flat:        flat,
	}, nil
}

func (idx *Index) Len() int {
	return idx.n
}

func (idx *Index) Dim() int {
	return idx.dim
}

func (idx *Index) Model() string {
	return idx.model
}

func (idx *Index) Fingerprint() string {
	return idx.fingerprint
}

// Similarities returns the cosine similarity between query and every row.
func (idx *Index) Similarities(query []float32) ([]float32, error) {
	if len(query) != idx.dim {
		return nil, fmt.Errorf("%w: query has %d values, index has %d", ErrDimensionMismatch, len(query), idx.dim)
	}
	q := append([]float32{}, query...)
	normalize(q)
	out := make([]float32, idx.n)
	blas32.Gemv(
		blas.NoTrans, 1.0,
		blas32.General{Rows: idx.n, Cols: idx.dim, Stride: idx.dim, Data: idx.flat},
		blas32.Vector{N: idx.dim, Inc: 1, Data: q}, 0.0,
		blas32.Vector{N: idx.n, Inc: 1, Data: out},
	)
	return out, nil
}

// normalize scales v to unit length in place. Zero vectors stay zero and
// therefore score 0 against everything.
func normalize(v []float32) {
	vec := blas32.Vector{N: len(v), Inc: 1, Data: v}
	norm := blas32.Nrm2(vec)
	if norm == 0 {
		return
	}
	blas32.Scal(1/norm, vec)
}
