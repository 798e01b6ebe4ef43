package processor

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	apperrors "github.com/adverant/nexus/inkcompare/internal/errors"
)

const (
	defaultGeminiEmbeddingModel = "text-embedding-004"
	geminiBatchSize             = 100
)

// GeminiEmbedder implements similarity.Embedder on the Gemini embedding API
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

// GeminiConfig holds Gemini embedding configuration
type GeminiConfig struct {
	APIKey string
	Model  string
	// Endpoint overrides the API base URL, for tests
	Endpoint string
}

// NewGeminiEmbedder creates a Gemini client. Call Close when done.
func NewGeminiEmbedder(ctx context.Context, cfg *GeminiConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiEmbeddingModel
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: model}, nil
}

// Model returns the embedding model name
func (e *GeminiEmbedder) Model() string {
	return e.model
}

// Embed returns one vector per text, in input order
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	em := e.client.EmbeddingModel(e.model)
	out := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += geminiBatchSize {
		end := min(i+geminiBatchSize, len(texts))

		batch := em.NewBatch()
		for _, t := range texts[i:end] {
			batch.AddContent(genai.Text(t))
		}

		res, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, apperrors.NewAPICallError("gemini", 0, err)
		}
		if len(res.Embeddings) != end-i {
			return nil, fmt.Errorf("unexpected number of embeddings: got %d, expected %d", len(res.Embeddings), end-i)
		}
		for _, emb := range res.Embeddings {
			if emb == nil {
				return nil, fmt.Errorf("gemini returned an empty embedding")
			}
			out = append(out, emb.Values)
		}
	}
	return out, nil
}

// Close releases the underlying client
func (e *GeminiEmbedder) Close() error {
	return e.client.Close()
}
