package processor

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/adverant/nexus/inkcompare/internal/errors"
	"github.com/adverant/nexus/inkcompare/internal/models"
	"github.com/adverant/nexus/inkcompare/internal/report"
	"github.com/adverant/nexus/inkcompare/internal/storage"
)

type brokenBackend struct{}

func (brokenBackend) Load(context.Context, string) ([]byte, error) {
	return nil, errors.New("disk on fire")
}
func (brokenBackend) Save(context.Context, string, []byte) error { return errors.New("disk on fire") }
func (brokenBackend) Close() error                                { return nil }

type recordingHistory struct {
	mu      sync.Mutex
	records []string
	err     error
}

func (h *recordingHistory) Record(_ context.Context, result *models.Result, reportID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, result.ComparisonID+":"+reportID)
	return h.err
}

type fixture struct {
	processor  *ComparisonProcessor
	recognizer *wordRecognizer
	history    *recordingHistory
	reportsDir string
}

func newFixture(t *testing.T, cache *storage.Cache, modify ...func(*ProcessorConfig)) *fixture {
	t.Helper()

	rec := &wordRecognizer{}
	reportsDir := t.TempDir()
	renderer, err := report.NewRenderer(reportsDir)
	require.NoError(t, err)
	history := &recordingHistory{}

	cfg := &ProcessorConfig{
		Rasterizer:  splitRasterizer{},
		Extractor:   testExtractor(rec, nil),
		Cache:       cache,
		History:     history,
		Reports:     renderer,
		WeightText:  0.5,
		MaxFileSize: 1024,
	}
	for _, m := range modify {
		m(cfg)
	}

	p, err := NewComparisonProcessor(cfg)
	require.NoError(t, err)
	return &fixture{processor: p, recognizer: rec, history: history, reportsDir: reportsDir}
}

func fileCache(t *testing.T) *storage.Cache {
	t.Helper()
	backend, err := storage.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	return storage.NewCache(backend)
}

func weight(w float64) *float64 { return &w }

const (
	docA = "%PDF-the quick brown|fox jumps over"
	docB = "%PDF-completely different|handwritten maths homework sheet"
)

func TestNewComparisonProcessorRequiresCollaborators(t *testing.T) {
	_, err := NewComparisonProcessor(nil)
	assert.Error(t, err)

	_, err = NewComparisonProcessor(&ProcessorConfig{Extractor: testExtractor(&wordRecognizer{}, nil)})
	assert.Error(t, err)

	_, err = NewComparisonProcessor(&ProcessorConfig{Rasterizer: splitRasterizer{}})
	assert.Error(t, err)
}

func TestCompareIdenticalDocuments(t *testing.T) {
	f := newFixture(t, fileCache(t))

	resp, err := f.processor.Compare(context.Background(), &CompareRequest{
		ComparisonID: "cmp-identical",
		File1:        []byte(docA),
		File2:        []byte(docA),
	})
	require.NoError(t, err)

	r := resp.Result
	assert.Equal(t, "cmp-identical", r.ComparisonID)
	assert.InDelta(t, 1.0, r.TextSimilarity, 1e-9)
	assert.InDelta(t, 1.0, r.HandwritingSimilarity, 1e-9)
	assert.InDelta(t, 1.0, r.SimilarityIndex, 1e-9)
	assert.Equal(t, "lexical", r.TextMethod)
	assert.False(t, r.CacheHit)
	assert.Len(t, r.FeatureScores, 4)
	assert.Len(t, r.RegionTextMatches, 2)
	assert.NotEmpty(t, r.RegionTextMatches[0])
	assert.Len(t, resp.Features1, 2)
	assert.Equal(t, resp.Text1, resp.Text2)

	require.NotEmpty(t, resp.ReportID)
	assert.Equal(t, report.URL(resp.ReportID), r.ReportURL)
	_, err = os.Stat(filepath.Join(f.reportsDir, report.FileName(resp.ReportID)))
	assert.NoError(t, err)

	assert.Equal(t, []string{"cmp-identical:" + resp.ReportID}, f.history.records)
}

func TestCompareDifferentDocuments(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := f.processor.Compare(context.Background(), &CompareRequest{
		File1: []byte(docA),
		File2: []byte(docB),
	})
	require.NoError(t, err)

	r := resp.Result
	assert.NotEmpty(t, r.ComparisonID)
	assert.Less(t, r.TextSimilarity, 0.5)
	for _, v := range []float64{r.TextSimilarity, r.HandwritingSimilarity, r.SimilarityIndex} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.InDelta(t, 0.5*r.TextSimilarity+0.5*r.HandwritingSimilarity, r.SimilarityIndex, 1e-9)
	assert.NotNil(t, r.Anomalies.Document1)
	assert.NotNil(t, r.Variations.Document2)
}

func TestCompareSecondCallIsCacheHit(t *testing.T) {
	f := newFixture(t, fileCache(t))
	ctx := context.Background()

	first, err := f.processor.Compare(ctx, &CompareRequest{File1: []byte(docA), File2: []byte(docB)})
	require.NoError(t, err)
	calls := f.recognizer.Calls()
	require.Positive(t, calls)

	second, err := f.processor.Compare(ctx, &CompareRequest{
		File1:      []byte(docA),
		File2:      []byte(docB),
		WeightText: weight(0),
	})
	require.NoError(t, err)

	assert.Equal(t, calls, f.recognizer.Calls())
	assert.True(t, second.Result.CacheHit)
	assert.Equal(t, first.Result.CacheKey, second.Result.CacheKey)
	assert.NotEqual(t, first.Result.ComparisonID, second.Result.ComparisonID)
	assert.Equal(t, first.Result.TextSimilarity, second.Result.TextSimilarity)
	assert.Equal(t, first.Text1, second.Text1)
	assert.Equal(t, first.Features2, second.Features2)

	// the cached entry is re-weighted for the new request
	assert.Equal(t, 0.0, second.Result.WeightText)
	assert.InDelta(t, second.Result.HandwritingSimilarity, second.Result.SimilarityIndex, 1e-12)
	assert.NotEmpty(t, second.ReportID)
	assert.Len(t, f.history.records, 2)
}

func TestCompareOrderedPairKey(t *testing.T) {
	f := newFixture(t, fileCache(t))
	ctx := context.Background()

	_, err := f.processor.Compare(ctx, &CompareRequest{File1: []byte(docA), File2: []byte(docB)})
	require.NoError(t, err)

	swapped, err := f.processor.Compare(ctx, &CompareRequest{File1: []byte(docB), File2: []byte(docA)})
	require.NoError(t, err)
	assert.False(t, swapped.Result.CacheHit)
}

func TestCompareTextCacheIsPerTextSource(t *testing.T) {
	cache := fileCache(t)
	ctx := context.Background()

	regions := newFixture(t, cache)
	first, err := regions.processor.Compare(ctx, &CompareRequest{File1: []byte(docA), File2: []byte(docB)})
	require.NoError(t, err)
	assert.Contains(t, first.Text1, "quick")
	assert.NotContains(t, first.Text1, "QUICK")

	withText := newFixture(t, cache, func(cfg *ProcessorConfig) {
		cfg.Extractor = testExtractor(&wordRecognizer{}, pageTextRecognizer{})
	})
	second, err := withText.processor.Compare(ctx, &CompareRequest{File1: []byte(docA), File2: []byte(docA)})
	require.NoError(t, err)
	assert.False(t, second.Result.CacheHit)
	assert.Equal(t, "THE QUICK BROWN\n\nFOX JUMPS OVER", second.Text1)
}

func TestCompareSurvivesBrokenCache(t *testing.T) {
	f := newFixture(t, storage.NewCache(brokenBackend{}))

	resp, err := f.processor.Compare(context.Background(), &CompareRequest{File1: []byte(docA), File2: []byte(docA)})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, resp.Result.SimilarityIndex, 1e-9)
	assert.False(t, resp.Result.CacheHit)
}

type failingRenderer struct{}

func (failingRenderer) Render(*models.Result, string, string) (string, error) {
	return "", errors.New("read-only file system")
}

func TestCompareSurvivesHistoryAndReportFailure(t *testing.T) {
	f := newFixture(t, nil, func(cfg *ProcessorConfig) {
		cfg.Reports = failingRenderer{}
	})
	f.history.err = errors.New("database unavailable")

	resp, err := f.processor.Compare(context.Background(), &CompareRequest{File1: []byte(docA), File2: []byte(docB)})
	require.NoError(t, err)
	assert.Empty(t, resp.ReportID)
	assert.Empty(t, resp.Result.ReportURL)
	assert.Equal(t, []string{resp.Result.ComparisonID + ":"}, f.history.records)
}

func TestCompareValidation(t *testing.T) {
	big := append([]byte("%PDF-"), make([]byte, 2048)...)

	tests := []struct {
		name  string
		req   *CompareRequest
		field string
	}{
		{"missing file1", &CompareRequest{File2: []byte(docA)}, "file1"},
		{"empty file2", &CompareRequest{File1: []byte(docA), File2: []byte{}}, "file2"},
		{"not a pdf", &CompareRequest{File1: []byte("GIF89a"), File2: []byte(docA)}, "file1"},
		{"too large", &CompareRequest{File1: []byte(docA), File2: big}, "file2"},
		{"weight above one", &CompareRequest{File1: []byte(docA), File2: []byte(docA), WeightText: weight(1.5)}, "weight_text"},
		{"weight negative", &CompareRequest{File1: []byte(docA), File2: []byte(docA), WeightText: weight(-0.1)}, "weight_text"},
		{"weight NaN", &CompareRequest{File1: []byte(docA), File2: []byte(docA), WeightText: weight(math.NaN())}, "weight_text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			_, err := f.processor.Compare(context.Background(), tt.req)
			require.Error(t, err)

			var ce *apperrors.ComparisonError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, apperrors.ErrorInvalidInput, ce.Code)
			assert.Equal(t, tt.field, ce.Details["field"])
			assert.Zero(t, f.recognizer.Calls())
		})
	}
}

func TestCompareExtractionFailure(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.processor.Compare(context.Background(), &CompareRequest{
		File1: []byte(docA),
		File2: []byte("%PDF-fail one|fail two"),
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrorExtractionFailed))
	assert.ErrorIs(t, err, ErrAllPagesFailed)
}

func TestCompareBlankDocumentIsExtractionError(t *testing.T) {
	cache := fileCache(t)
	f := newFixture(t, cache)
	blank := []byte("%PDF- | ")

	_, err := f.processor.Compare(context.Background(), &CompareRequest{File1: blank, File2: blank})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrorExtractionFailed))
	assert.ErrorIs(t, err, ErrNoRegions)

	_, ok, err := cache.GetComparison(context.Background(), storage.PairKey(blank, blank))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, f.history.records)
}

func TestCompareTimeout(t *testing.T) {
	f := newFixture(t, nil, func(cfg *ProcessorConfig) {
		cfg.Timeout = 30 * time.Millisecond
		cfg.Extractor = NewFeatureExtractor(&wordRecognizer{}, nil, ExtractorConfig{PageTimeout: time.Second, Attempts: 1})
	})

	_, err := f.processor.Compare(context.Background(), &CompareRequest{
		File1: []byte(docA),
		File2: []byte("%PDF-slow page"),
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorProcessingTimeout, apperrors.CodeOf(err))
}

func TestCompareEmptyDocumentsStillProduceResult(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := f.processor.Compare(context.Background(), &CompareRequest{
		File1: []byte("%PDF-"),
		File2: []byte(docA),
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, resp.Result.TextSimilarity)
	assert.Equal(t, 0.0, resp.Result.HandwritingSimilarity)
	assert.Empty(t, resp.Result.FeatureScores)
	assert.Empty(t, resp.Result.RegionTextMatches)
}
