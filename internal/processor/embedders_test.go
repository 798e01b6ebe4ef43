package processor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/adverant/nexus/inkcompare/internal/errors"
)

// lengthVector embeds a text as [len, 1]
func lengthVector(text string) []float32 {
	return []float32{float32(len(text)), 1}
}

func TestVoyageEmbed(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "Bearer voyage-key", r.Header.Get("Authorization"))

		var req voyageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "voyage-3", req.Model)

		// answer in reverse order to exercise index placement
		resp := voyageResponse{}
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{lengthVector(req.Input[i]), i})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e, err := NewVoyageEmbedder(&VoyageConfig{APIKey: "voyage-key", BaseURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "voyage-3", e.Model())

	texts := make([]string, 150)
	for i := range texts {
		texts[i] = string(make([]byte, i%7+1))
	}

	vectors, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 150)
	for i, v := range vectors {
		assert.Equal(t, lengthVector(texts[i]), v)
	}
	assert.Equal(t, int32(2), requests.Load())

	empty, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestVoyageEmbedFallsBackToSingleRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req voyageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if len(req.Input) > 1 {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"embedding": lengthVector(req.Input[0]), "index": 0}},
		})
	}))
	defer srv.Close()

	e, err := NewVoyageEmbedder(&VoyageConfig{APIKey: "voyage-key", BaseURL: srv.URL})
	require.NoError(t, err)

	vectors, err := e.Embed(context.Background(), []string{"a", "bbb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {3, 1}}, vectors)
}

func TestVoyageEmbedErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		dims    int
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}, 0},
		{"wrong dimensions", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":[{"embedding":[1,2,3],"index":0}]}`))
		}, 2},
		{"bad index", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":[{"embedding":[1,2],"index":4}]}`))
		}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			e, err := NewVoyageEmbedder(&VoyageConfig{APIKey: "voyage-key", BaseURL: srv.URL, Dimensions: tt.dims})
			require.NoError(t, err)

			_, err = e.Embed(context.Background(), []string{"only"})
			assert.Error(t, err)
		})
	}
}

func TestVoyageServerErrorIsAPICallError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e, err := NewVoyageEmbedder(&VoyageConfig{APIKey: "voyage-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = e.embedBatch(context.Background(), []string{"x"})
	assert.Equal(t, apperrors.ErrorAPICallFailed, apperrors.CodeOf(err))
}

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc"},
		{"aé", 2, "a"},
		{"aé", 3, "aé"},
		{"日本", 4, "日"},
		{"日本", 2, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncateUTF8(tt.in, tt.n), tt.in)
	}
}

func TestVoyageEmbedTruncatesOnRuneBoundary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req voyageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 1)
		assert.LessOrEqual(t, len(req.Input[0]), voyageMaxChars)
		assert.NotContains(t, req.Input[0], string(utf8.RuneError))
		assert.True(t, strings.HasSuffix(req.Input[0], "é"))

		resp := voyageResponse{}
		resp.Data = append(resp.Data, struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{lengthVector(req.Input[0]), 0})
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e, err := NewVoyageEmbedder(&VoyageConfig{APIKey: "voyage-key", BaseURL: srv.URL})
	require.NoError(t, err)

	vectors, err := e.Embed(context.Background(), []string{"a" + strings.Repeat("é", voyageMaxChars)})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, float32(voyageMaxChars-1), vectors[0][0])
}

type geminiBatchRequest struct {
	Model    string `json:"model"`
	Requests []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"requests"`
}

func TestGeminiEmbed(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1beta/models/text-embedding-004:batchEmbedContents"), r.URL.Path)
		assert.Equal(t, "gemini-key", r.URL.Query().Get("key"))

		var req geminiBatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "models/text-embedding-004", req.Model)

		embeddings := make([]map[string]interface{}, len(req.Requests))
		for i, item := range req.Requests {
			require.Len(t, item.Content.Parts, 1)
			embeddings[i] = map[string]interface{}{"values": lengthVector(item.Content.Parts[0].Text)}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"embeddings": embeddings})
	}))
	defer srv.Close()

	e, err := NewGeminiEmbedder(context.Background(), &GeminiConfig{APIKey: "gemini-key", Endpoint: srv.URL})
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, "text-embedding-004", e.Model())

	texts := make([]string, 120)
	for i := range texts {
		texts[i] = strings.Repeat("x", i%5+1)
	}

	vectors, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 120)
	for i, v := range vectors {
		assert.Equal(t, lengthVector(texts[i]), v)
	}
	assert.Equal(t, int32(2), requests.Load())
}

func TestGeminiEmbedErrors(t *testing.T) {
	tests := []struct {
		name     string
		apiError bool
		handler  http.HandlerFunc
	}{
		{"bad request", true, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": {"code": 400, "message": "API key not valid", "status": "INVALID_ARGUMENT"}}`))
		}},
		{"short batch", false, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"embeddings": [{"values": [1, 2]}]}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			e, err := NewGeminiEmbedder(context.Background(), &GeminiConfig{APIKey: "gemini-key", Endpoint: srv.URL})
			require.NoError(t, err)
			defer e.Close()

			_, err = e.Embed(context.Background(), []string{"one", "two"})
			require.Error(t, err)
			if tt.apiError {
				assert.Equal(t, apperrors.ErrorAPICallFailed, apperrors.CodeOf(err))
			}
		})
	}
}

func TestNewGeminiEmbedderRequiresKey(t *testing.T) {
	_, err := NewGeminiEmbedder(context.Background(), &GeminiConfig{})
	assert.Error(t, err)
}

func TestOpenAIEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer openai-key", r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		data := make([]map[string]interface{}, len(req.Input))
		for i, in := range req.Input {
			data[len(req.Input)-1-i] = map[string]interface{}{
				"object":    "embedding",
				"embedding": lengthVector(in),
				"index":     i,
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 2, "total_tokens": 2},
		})
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(&OpenAIConfig{APIKey: "openai-key", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	vectors, err := e.Embed(context.Background(), []string{"ab", "abcd"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{2, 1}, {4, 1}}, vectors)
}

func TestOpenAIEmbedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(&OpenAIConfig{APIKey: "openai-key", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), []string{"x"})
	assert.Equal(t, apperrors.ErrorAPICallFailed, apperrors.CodeOf(err))
}

type countingEmbedder struct {
	mu    sync.Mutex
	seen  [][]string
	err   error
	model string
}

func (c *countingEmbedder) Model() string { return c.model }

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.seen = append(c.seen, append([]string{}, texts...))
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = lengthVector(t)
	}
	return out, nil
}

type memoryStore struct {
	vectors   map[string][]float32
	lookupErr error
	storeErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{vectors: map[string][]float32{}}
}

func (m *memoryStore) Lookup(_ context.Context, model string, texts []string) (map[int][]float32, error) {
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	out := map[int][]float32{}
	for i, t := range texts {
		if v, ok := m.vectors[model+"/"+t]; ok {
			out[i] = v
		}
	}
	return out, nil
}

func (m *memoryStore) Store(_ context.Context, model string, texts []string, vectors [][]float32) error {
	if m.storeErr != nil {
		return m.storeErr
	}
	for i, t := range texts {
		m.vectors[model+"/"+t] = vectors[i]
	}
	return nil
}

func TestCachingEmbedderServesRepeats(t *testing.T) {
	inner := &countingEmbedder{model: "m1"}
	store := newMemoryStore()
	c := NewCachingEmbedder(inner, store)
	assert.Equal(t, "m1", c.Model())

	first, err := c.Embed(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)

	second, err := c.Embed(context.Background(), []string{"bb", "ccc", "a"})
	require.NoError(t, err)

	assert.Equal(t, [][]float32{{1, 1}, {2, 1}}, first)
	assert.Equal(t, [][]float32{{2, 1}, {3, 1}, {1, 1}}, second)
	assert.Equal(t, [][]string{{"a", "bb"}, {"ccc"}}, inner.seen)

	_, err = c.Embed(context.Background(), []string{"a", "ccc"})
	require.NoError(t, err)
	assert.Len(t, inner.seen, 2)
}

func TestCachingEmbedderStoreFailures(t *testing.T) {
	inner := &countingEmbedder{model: "m1"}
	store := newMemoryStore()
	store.lookupErr = errors.New("qdrant unavailable")
	store.storeErr = errors.New("qdrant unavailable")

	vectors, err := NewCachingEmbedder(inner, store).Embed(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {2, 1}}, vectors)
	assert.Equal(t, [][]string{{"a", "bb"}}, inner.seen)
}

func TestCachingEmbedderInnerError(t *testing.T) {
	inner := &countingEmbedder{model: "m1", err: errors.New("rate limited")}
	_, err := NewCachingEmbedder(inner, newMemoryStore()).Embed(context.Background(), []string{"a"})
	assert.Error(t, err)
}
