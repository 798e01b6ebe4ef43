package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/inkcompare/internal/config"
	"github.com/adverant/nexus/inkcompare/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("OCR_PROVIDER", "tesseract")
	t.Setenv("EMBEDDING_PROVIDER", "none")
	t.Setenv("CACHE_BACKEND", "file")
	t.Setenv("CACHE_DIR", t.TempDir())
	t.Setenv("REPORTS_DIR", t.TempDir())
	t.Setenv("DATABASE_URL", "")
	t.Setenv("QDRANT_URL", "")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	return cfg
}

func TestNewFromConfig(t *testing.T) {
	cfg := testConfig(t)
	mgr, err := storage.NewManager(cfg)
	require.NoError(t, err)
	defer mgr.Close()

	proc, cleanup, err := NewFromConfig(context.Background(), cfg, mgr)
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, cfg.WeightText, proc.cfg.WeightText)
	assert.Equal(t, cfg.ProcessingTimeoutDuration(), proc.cfg.Timeout)
	assert.Equal(t, cfg.TextMatchThreshold, proc.cfg.Thresholds.Text)
	assert.Nil(t, proc.cfg.History)
	assert.NotNil(t, proc.cfg.Cache)
	assert.NotNil(t, proc.cfg.Reports)
}

func TestNewRecognizer(t *testing.T) {
	cfg := testConfig(t)

	rec, err := NewRecognizer(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "tesseract", rec.Name())

	cfg.OCRProvider = "vision"
	cfg.GoogleCloudAPIKey = ""
	_, err = NewRecognizer(context.Background(), cfg)
	assert.Error(t, err)

	cfg.OCRProvider = "abbyy"
	_, err = NewRecognizer(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewEmbedder(t *testing.T) {
	cfg := testConfig(t)

	e, closeFn, err := NewEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.Nil(t, closeFn)

	cfg.EmbeddingProvider = "voyage"
	cfg.VoyageAPIKey = "key"
	e, _, err = NewEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "voyage-3", e.Model())

	cfg.EmbeddingProvider = "openai"
	cfg.OpenAIAPIKey = "key"
	e, _, err = NewEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.OpenAIEmbeddingModel, e.Model())

	cfg.EmbeddingProvider = "word2vec"
	_, _, err = NewEmbedder(context.Background(), cfg)
	assert.Error(t, err)
}

func TestPageCountRejectsGarbage(t *testing.T) {
	_, err := PageCount([]byte("%PDF-not really a pdf"))
	assert.Error(t, err)

	_, err = NewPdftoppmRasterizer(&RasterizerConfig{}).Rasterize(context.Background(), []byte("garbage"))
	assert.Error(t, err)
}
