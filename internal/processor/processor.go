/**
 * Comparison Processor for inkcompare
 *
 * Orchestrates one document comparison end to end:
 * - input validation (presence, size, PDF magic bytes)
 * - content cache lookup keyed by the ordered file pair
 * - concurrent feature extraction of both documents
 * - text and handwriting similarity, region cross-matching
 * - per-document anomaly and page variation analysis
 * - cache write, report rendering and history recording (all non-fatal)
 */

package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/inkcompare/internal/anomaly"
	apperrors "github.com/adverant/nexus/inkcompare/internal/errors"
	"github.com/adverant/nexus/inkcompare/internal/features"
	"github.com/adverant/nexus/inkcompare/internal/logging"
	"github.com/adverant/nexus/inkcompare/internal/metrics"
	"github.com/adverant/nexus/inkcompare/internal/models"
	"github.com/adverant/nexus/inkcompare/internal/report"
	"github.com/adverant/nexus/inkcompare/internal/similarity"
	"github.com/adverant/nexus/inkcompare/internal/storage"
)

// pdfMagic is the header every accepted upload must start with
var pdfMagic = []byte("%PDF-")

// Pipeline states, logged as numbered steps and counted in metrics
const (
	StateReceived          = "RECEIVED"
	StateValidate          = "VALIDATE"
	StateCacheLookup       = "CACHE_LOOKUP"
	StateAssembleFromCache = "ASSEMBLE_FROM_CACHE"
	StateExtract           = "EXTRACT"
	StateSimilarity        = "SIMILARITY_COMPUTE"
	StateAnomaly           = "ANOMALY_COMPUTE"
	StateAssemble          = "ASSEMBLE"
	StateCacheWrite        = "CACHE_WRITE"
	StateReport            = "REPORT"
	StateHistory           = "HISTORY"
	StateDone              = "DONE"
	StateFailed            = "FAILED"
)

// ComparisonProcessorInterface defines the interface for document comparison
type ComparisonProcessorInterface interface {
	Compare(ctx context.Context, req *CompareRequest) (*CompareResponse, error)
}

// HistoryRecorder persists finished comparisons
type HistoryRecorder interface {
	Record(ctx context.Context, result *models.Result, reportID string) error
}

// ReportRenderer writes a report and returns its id
type ReportRenderer interface {
	Render(result *models.Result, text1, text2 string) (string, error)
}

// CompareRequest represents one comparison request
type CompareRequest struct {
	ComparisonID string
	File1        []byte
	File2        []byte
	Filename1    string
	Filename2    string
	// WeightText overrides the configured text weight when set
	WeightText *float64
}

// CompareResponse is the comparison result plus the extracted artifacts
type CompareResponse struct {
	Result    *models.Result
	Features1 features.Document
	Features2 features.Document
	Text1     string
	Text2     string
	ReportID  string
	Duration  time.Duration
}

// ProcessorConfig holds the collaborators of a ComparisonProcessor. Cache,
// History and Reports are optional.
type ProcessorConfig struct {
	Rasterizer   Rasterizer
	Extractor    *FeatureExtractor
	TextAnalyzer *similarity.TextAnalyzer
	Detector     *anomaly.Detector
	Cache        *storage.Cache
	History      HistoryRecorder
	Reports      ReportRenderer

	Weights     similarity.Weights
	Thresholds  similarity.Thresholds
	WeightText  float64
	MaxFileSize int64
	Timeout     time.Duration
}

// ComparisonProcessor runs comparisons. It holds no per-request state and is
// safe for concurrent use.
type ComparisonProcessor struct {
	cfg    ProcessorConfig
	logger *logging.Logger
}

// NewComparisonProcessor creates a new comparison processor
func NewComparisonProcessor(cfg *ProcessorConfig) (*ComparisonProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Rasterizer == nil {
		return nil, fmt.Errorf("rasterizer is required")
	}
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("feature extractor is required")
	}

	c := *cfg
	if c.TextAnalyzer == nil {
		c.TextAnalyzer = similarity.NewTextAnalyzer(nil, similarity.DefaultConsistencyThreshold)
	}
	if c.Detector == nil {
		c.Detector = anomaly.NewDetector()
	}
	if c.Weights == (similarity.Weights{}) {
		c.Weights = similarity.DefaultWeights()
	}
	if c.Thresholds == (similarity.Thresholds{}) {
		c.Thresholds = similarity.DefaultThresholds()
	}

	return &ComparisonProcessor{
		cfg:    c,
		logger: logging.NewLogger("processor"),
	}, nil
}

// Compare runs one comparison through the complete pipeline
func (p *ComparisonProcessor) Compare(ctx context.Context, req *CompareRequest) (*CompareResponse, error) {
	start := time.Now()

	if req.ComparisonID == "" {
		req.ComparisonID = uuid.New().String()
	}
	id := req.ComparisonID

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	p.step(id, 0, StateReceived, "Starting comparison (%s vs %s)", nameOr(req.Filename1, "file1"), nameOr(req.Filename2, "file2"))

	resp, err := p.run(ctx, req, start)
	if err != nil {
		metrics.ComparisonStates.WithLabelValues(StateFailed).Inc()
		metrics.Comparisons.WithLabelValues("error", "unknown").Inc()
		p.logger.Error(fmt.Sprintf("[Compare %s] Comparison failed", id), "error", err, "code", apperrors.CodeOf(err))
		return nil, err
	}

	resp.Duration = time.Since(start)
	cacheLabel := "miss"
	if resp.Result.CacheHit {
		cacheLabel = "hit"
	}
	metrics.Comparisons.WithLabelValues("success", cacheLabel).Inc()
	metrics.ComparisonDuration.WithLabelValues(cacheLabel).Observe(resp.Duration.Seconds())
	metrics.SimilarityIndex.Observe(resp.Result.SimilarityIndex)

	p.step(id, 10, StateDone, "Comparison complete: index=%.4f text=%.4f handwriting=%.4f cache_hit=%t duration=%v",
		resp.Result.SimilarityIndex, resp.Result.TextSimilarity, resp.Result.HandwritingSimilarity, resp.Result.CacheHit, resp.Duration)
	return resp, nil
}

func (p *ComparisonProcessor) run(ctx context.Context, req *CompareRequest, start time.Time) (*CompareResponse, error) {
	id := req.ComparisonID

	// Step 1: Validate before any oracle call
	p.step(id, 1, StateValidate, "Validating input (%d + %d bytes)", len(req.File1), len(req.File2))
	weightText, err := p.validate(req)
	if err != nil {
		return nil, err
	}

	// Step 2: Cache lookup
	key := storage.PairKey(req.File1, req.File2)
	p.step(id, 2, StateCacheLookup, "Looking up cache key %s", key)

	var resp *CompareResponse
	if rec := p.lookup(ctx, id, key); rec != nil {
		p.step(id, 3, StateAssembleFromCache, "Cache hit, skipping extraction")
		rec.Result.ComparisonID = id
		rec.Result.CacheKey = key
		rec.Result.CacheHit = true
		rec.Result.Reweight(weightText)
		rec.Result.Normalize()

		resp = &CompareResponse{
			Result:    &rec.Result,
			Features1: rec.Features1,
			Features2: rec.Features2,
			Text1:     rec.Text1,
			Text2:     rec.Text2,
		}
	} else {
		resp, err = p.compute(ctx, req, key, weightText, start)
		if err != nil {
			return nil, err
		}
	}

	// Step 8: Report (non-fatal)
	p.renderReport(id, resp)

	// Step 9: History (non-fatal)
	p.recordHistory(ctx, id, resp)

	return resp, nil
}

// compute runs the cache-miss branch: extraction, similarity, anomalies,
// assembly and the cache write.
func (p *ComparisonProcessor) compute(ctx context.Context, req *CompareRequest, key string, weightText float64, start time.Time) (*CompareResponse, error) {
	id := req.ComparisonID

	// Step 3: Extract both documents concurrently
	p.step(id, 3, StateExtract, "Extracting features from both documents")
	var (
		doc1, doc2   features.Document
		text1, text2 string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		doc1, text1, err = p.extractDocument(gctx, id, "file1", req.File1)
		return err
	})
	g.Go(func() error {
		var err error
		doc2, text2, err = p.extractDocument(gctx, id, "file2", req.File2)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, p.timeoutOr(ctx, id, start, err)
	}
	p.logger.Info(fmt.Sprintf("[Compare %s] Extraction complete", id),
		"regions1", doc1.RegionCount(), "regions2", doc2.RegionCount(),
		"pages1", len(doc1), "pages2", len(doc2))

	// Step 4: Similarity
	p.step(id, 4, StateSimilarity, "Computing text and handwriting similarity")
	textResult, err := p.cfg.TextAnalyzer.Compare(ctx, text1, text2)
	if err != nil {
		if ctx.Err() != nil {
			return nil, p.timeoutOr(ctx, id, start, err)
		}
		return nil, apperrors.NewComputationError(id, StateSimilarity, err)
	}
	regionScorer, err := p.cfg.TextAnalyzer.RegionScorer(ctx, doc1, doc2)
	if err != nil {
		return nil, p.timeoutOr(ctx, id, start, err)
	}
	handwriting, featureScores := similarity.CompareHandwriting(doc1, doc2, p.cfg.Weights)
	textMatches, handwritingMatches := similarity.MatchRegions(doc1, doc2, p.cfg.Thresholds, regionScorer)

	// Step 5: Anomalies
	p.step(id, 5, StateAnomaly, "Detecting anomalies and page variations")
	anomalies1, variations1 := p.cfg.Detector.Detect(doc1)
	anomalies2, variations2 := p.cfg.Detector.Detect(doc2)

	p.step(id, 6, StateAssemble, "Assembling result")
	result := &models.Result{
		ComparisonID:             id,
		TextSimilarity:           textResult.Score,
		TextMethod:               textResult.Method,
		TextConsistency:          textResult.Consistency,
		HandwritingSimilarity:    handwriting,
		SimilarityIndex:          similarity.SimilarityIndex(textResult.Score, handwriting, weightText),
		WeightText:               weightText,
		FeatureScores:            featureScores,
		Anomalies:                models.AnomalySet{Document1: anomalies1, Document2: anomalies2},
		Variations:               models.VariationSet{Document1: variations1, Document2: variations2},
		RegionTextMatches:        textMatches,
		RegionHandwritingMatches: handwritingMatches,
		CacheKey:                 key,
	}
	result.Normalize()

	resp := &CompareResponse{
		Result:    result,
		Features1: doc1,
		Features2: doc2,
		Text1:     text1,
		Text2:     text2,
	}

	// Step 7: Cache write (non-fatal)
	p.step(id, 7, StateCacheWrite, "Writing cache entry %s", key)
	p.store(ctx, id, key, req, resp)

	return resp, nil
}

// validate checks the request and returns the effective text weight
func (p *ComparisonProcessor) validate(req *CompareRequest) (float64, error) {
	id := req.ComparisonID
	files := []struct {
		field string
		data  []byte
	}{
		{"file1", req.File1},
		{"file2", req.File2},
	}

	for _, f := range files {
		switch {
		case f.data == nil:
			return 0, apperrors.NewInvalidInputError(id, f.field, "file is missing")
		case len(f.data) == 0:
			return 0, apperrors.NewInvalidInputError(id, f.field, "file is empty")
		case p.cfg.MaxFileSize > 0 && int64(len(f.data)) > p.cfg.MaxFileSize:
			return 0, apperrors.NewInvalidInputError(id, f.field,
				fmt.Sprintf("file exceeds maximum size of %d bytes", p.cfg.MaxFileSize))
		case !bytes.HasPrefix(f.data, pdfMagic):
			return 0, apperrors.NewInvalidInputError(id, f.field, "file is not a PDF")
		}
	}

	weightText := p.cfg.WeightText
	if req.WeightText != nil {
		weightText = *req.WeightText
	}
	if weightText < 0 || weightText > 1 || weightText != weightText {
		return 0, apperrors.NewInvalidInputError(id, "weight_text", "must be between 0 and 1")
	}
	return weightText, nil
}

// extractDocument rasterizes and recognizes one file. The extracted text is
// served from the per-file text cache when available.
func (p *ComparisonProcessor) extractDocument(ctx context.Context, id, field string, data []byte) (features.Document, string, error) {
	pages, err := p.cfg.Rasterizer.Rasterize(ctx, data)
	if err != nil {
		return nil, "", apperrors.NewExtractionError(id, field, err)
	}

	doc, err := p.cfg.Extractor.Extract(ctx, pages)
	if err != nil {
		return nil, "", apperrors.NewExtractionError(id, field, err)
	}

	fileKey := storage.FileKey(data)
	if p.cfg.Cache != nil {
		text, ok, err := p.cfg.Cache.GetText(ctx, fileKey, p.cfg.Extractor.TextSource())
		if err != nil {
			p.cacheFailure(id, "read_text", err)
		} else if ok {
			p.logger.Debug(fmt.Sprintf("[Compare %s] Text cache hit for %s", id, field))
			return doc, text, nil
		}
	}

	text, err := p.cfg.Extractor.ExtractText(ctx, pages, doc)
	if err != nil {
		return nil, "", apperrors.NewExtractionError(id, field, err)
	}
	return doc, text, nil
}

func (p *ComparisonProcessor) lookup(ctx context.Context, id, key string) *storage.ComparisonRecord {
	if p.cfg.Cache == nil {
		return nil
	}
	rec, ok, err := p.cfg.Cache.GetComparison(ctx, key)
	if err != nil {
		p.cacheFailure(id, "read", err)
		return nil
	}
	if !ok {
		return nil
	}
	return rec
}

func (p *ComparisonProcessor) store(ctx context.Context, id, key string, req *CompareRequest, resp *CompareResponse) {
	if p.cfg.Cache == nil {
		return
	}

	err := p.cfg.Cache.PutComparison(ctx, key, &storage.ComparisonRecord{
		Result:    *resp.Result,
		Features1: resp.Features1,
		Features2: resp.Features2,
		Text1:     resp.Text1,
		Text2:     resp.Text2,
	})
	if err != nil {
		p.cacheFailure(id, "write", err)
	}

	for _, f := range []struct {
		data []byte
		text string
	}{{req.File1, resp.Text1}, {req.File2, resp.Text2}} {
		if err := p.cfg.Cache.PutText(ctx, storage.FileKey(f.data), p.cfg.Extractor.TextSource(), f.text); err != nil {
			p.cacheFailure(id, "write_text", err)
		}
	}
}

func (p *ComparisonProcessor) renderReport(id string, resp *CompareResponse) {
	if p.cfg.Reports == nil {
		return
	}
	p.step(id, 8, StateReport, "Rendering report")

	reportID, err := p.cfg.Reports.Render(resp.Result, resp.Text1, resp.Text2)
	if err != nil {
		p.logger.Warn(fmt.Sprintf("[Compare %s] WARNING: Failed to render report", id), "error", err)
		return
	}
	resp.ReportID = reportID
	resp.Result.ReportURL = report.URL(reportID)
}

func (p *ComparisonProcessor) recordHistory(ctx context.Context, id string, resp *CompareResponse) {
	if p.cfg.History == nil {
		return
	}
	p.step(id, 9, StateHistory, "Recording comparison history")

	if err := p.cfg.History.Record(ctx, resp.Result, resp.ReportID); err != nil {
		p.logger.Warn(fmt.Sprintf("[Compare %s] WARNING: Failed to record history", id),
			"error", apperrors.NewStorageFailedError(id, err))
	}
}

func (p *ComparisonProcessor) cacheFailure(id, operation string, err error) {
	metrics.CacheErrors.WithLabelValues(operation).Inc()
	p.logger.Warn(fmt.Sprintf("[Compare %s] WARNING: Cache %s failed, continuing", id, operation), "error", err)
}

// timeoutOr converts deadline expiry into a timeout error and otherwise
// returns err unchanged.
func (p *ComparisonProcessor) timeoutOr(ctx context.Context, id string, start time.Time, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.NewProcessingTimeoutError(id, time.Since(start), err)
	}
	return err
}

func (p *ComparisonProcessor) step(id string, n int, state, format string, args ...interface{}) {
	metrics.ComparisonStates.WithLabelValues(state).Inc()
	p.logger.Info(fmt.Sprintf("[Compare %s] Step %d: %s", id, n, fmt.Sprintf(format, args...)), "state", state)
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
