package processor

import (
	"context"
	"fmt"

	"github.com/adverant/nexus/inkcompare/internal/logging"
	"github.com/adverant/nexus/inkcompare/internal/similarity"
)

// ModelEmbedder is an embedder that can name its model
type ModelEmbedder interface {
	similarity.Embedder
	Model() string
}

// EmbeddingStore caches segment vectors per model
type EmbeddingStore interface {
	Lookup(ctx context.Context, model string, texts []string) (map[int][]float32, error)
	Store(ctx context.Context, model string, texts []string, vectors [][]float32) error
}

// CachingEmbedder serves repeated segments from an EmbeddingStore and only
// sends the misses to the wrapped embedder. Store failures never fail Embed.
type CachingEmbedder struct {
	inner  ModelEmbedder
	store  EmbeddingStore
	logger *logging.Logger
}

// NewCachingEmbedder wraps inner with store
func NewCachingEmbedder(inner ModelEmbedder, store EmbeddingStore) *CachingEmbedder {
	return &CachingEmbedder{
		inner:  inner,
		store:  store,
		logger: logging.NewLogger("embedding-cache"),
	}
}

// Model returns the wrapped model name
func (c *CachingEmbedder) Model() string {
	return c.inner.Model()
}

// Embed returns one vector per text, in input order
func (c *CachingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	model := c.inner.Model()

	cached, err := c.store.Lookup(ctx, model, texts)
	if err != nil {
		c.logger.Warn("Embedding cache lookup failed", "error", err, "texts", len(texts))
		cached = map[int][]float32{}
	}

	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, t := range texts {
		if v, ok := cached[i]; ok {
			out[i] = v
			continue
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		c.logger.Debug("All embeddings served from cache", "texts", len(texts))
		return out, nil
	}

	fresh, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(fresh), len(missTexts))
	}
	for j, i := range missIdx {
		out[i] = fresh[j]
	}

	if err := c.store.Store(ctx, model, missTexts, fresh); err != nil {
		c.logger.Warn("Embedding cache store failed", "error", err, "texts", len(missTexts))
	}

	c.logger.Debug("Embeddings resolved", "cached", len(texts)-len(missTexts), "fresh", len(missTexts))
	return out, nil
}
