/**
 * VoyageAI segment embedder
 *
 * Embeds text segments through the VoyageAI batch endpoint, 100 texts per
 * request, falling back to one request per text when a batch fails.
 */

package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	apperrors "github.com/adverant/nexus/inkcompare/internal/errors"
	"github.com/adverant/nexus/inkcompare/internal/logging"
)

const (
	defaultVoyageURL   = "https://api.voyageai.com/v1/embeddings"
	defaultVoyageModel = "voyage-3"
	voyageBatchSize    = 100
	voyageMaxChars     = 16000
)

// VoyageEmbedder implements similarity.Embedder on VoyageAI
type VoyageEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// VoyageConfig holds VoyageAI configuration
type VoyageConfig struct {
	APIKey string
	Model  string
	// Dimensions, when positive, is enforced on every returned vector
	Dimensions int
	// BaseURL overrides the endpoint, for tests
	BaseURL string
}

type voyageRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type voyageResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// NewVoyageEmbedder creates a VoyageAI embedder
func NewVoyageEmbedder(cfg *VoyageConfig) (*VoyageEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("VoyageAI API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultVoyageModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultVoyageURL
	}
	return &VoyageEmbedder{
		apiKey:     cfg.APIKey,
		model:      model,
		dimensions: cfg.Dimensions,
		baseURL:    baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logging.NewLogger("voyage"),
	}, nil
}

// Model returns the embedding model name
func (e *VoyageEmbedder) Model() string {
	return e.model
}

// Embed returns one vector per text, in input order
func (e *VoyageEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += voyageBatchSize {
		end := min(i+voyageBatchSize, len(texts))
		batch := texts[i:end]

		vectors, err := e.embedBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("Batch embedding failed, falling back to individual requests", "from", i, "to", end-1, "error", err)

			for j, text := range batch {
				single, err := e.embedBatch(ctx, []string{text})
				if err != nil {
					return nil, fmt.Errorf("failed to embed text %d: %w", i+j, err)
				}
				all = append(all, single[0])
			}
			continue
		}
		all = append(all, vectors...)
	}

	e.logger.Debug("Embeddings generated", "count", len(all), "model", e.model)
	return all, nil
}

func (e *VoyageEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = truncateUTF8(t, voyageMaxChars)
	}

	jsonData, err := json.Marshal(voyageRequest{Input: input, Model: e.model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", e.apiKey))

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewAPICallError("voyage", 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewAPICallError("voyage", resp.StatusCode,
			fmt.Errorf("VoyageAI API returned status %d: %s", resp.StatusCode, string(body)))
	}

	var parsed voyageResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("unexpected number of embeddings: got %d, expected %d", len(parsed.Data), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range parsed.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("invalid embedding index: %d", data.Index)
		}
		if e.dimensions > 0 && len(data.Embedding) != e.dimensions {
			return nil, fmt.Errorf("unexpected embedding dimensions for text %d: got %d, expected %d", data.Index, len(data.Embedding), e.dimensions)
		}
		embeddings[data.Index] = data.Embedding
	}
	for i, v := range embeddings {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for text %d", i)
		}
	}

	return embeddings, nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
