package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/adverant/nexus/inkcompare/internal/anomaly"
	"github.com/adverant/nexus/inkcompare/internal/config"
	"github.com/adverant/nexus/inkcompare/internal/logging"
	"github.com/adverant/nexus/inkcompare/internal/report"
	"github.com/adverant/nexus/inkcompare/internal/similarity"
	"github.com/adverant/nexus/inkcompare/internal/storage"
)

// NewFromConfig wires a ComparisonProcessor from configuration and an open
// storage manager. The returned cleanup releases clients the processor owns.
func NewFromConfig(ctx context.Context, cfg *config.Config, mgr *storage.Manager) (*ComparisonProcessor, func() error, error) {
	logger := logging.NewLogger("processor")
	var closers []func() error
	cleanup := func() error {
		var firstErr error
		for _, c := range closers {
			if err := c(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	recognizer, err := NewRecognizer(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Recognizer configured", "provider", recognizer.Name())

	var textRecognizer TextRecognizer
	if cfg.MathpixAppID != "" && cfg.MathpixAppKey != "" {
		mathpix, err := NewMathpixOCR(&MathpixConfig{AppID: cfg.MathpixAppID, AppKey: cfg.MathpixAppKey})
		if err != nil {
			return nil, nil, err
		}
		textRecognizer = mathpix
		logger.Info("Text recognizer configured", "provider", mathpix.Name())
	}

	embedder, closeEmbedder, err := NewEmbedder(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if closeEmbedder != nil {
		closers = append(closers, closeEmbedder)
	}

	var textEmbedder similarity.Embedder
	if embedder != nil {
		textEmbedder = embedder
		if mgr.Embeddings != nil {
			textEmbedder = NewCachingEmbedder(embedder, mgr.Embeddings)
		}
		logger.Info("Embedder configured", "provider", cfg.EmbeddingProvider, "model", embedder.Model(), "cached", mgr.Embeddings != nil)
	} else {
		logger.Warn("No embedding provider configured, text similarity will be lexical")
	}

	renderer, err := report.NewRenderer(cfg.ReportsDir)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	pcfg := &ProcessorConfig{
		Rasterizer: NewPdftoppmRasterizer(&RasterizerConfig{
			PdftoppmPath: cfg.PdftoppmPath,
			DPI:          cfg.RasterDPI,
			TempDir:      cfg.TempDir,
		}),
		Extractor: NewFeatureExtractor(recognizer, textRecognizer, ExtractorConfig{
			Concurrency: cfg.ExtractConcurrency,
			PageTimeout: cfg.PageTimeoutDuration(),
			Attempts:    cfg.PageRetries,
			RetryDelay:  DefaultRetryDelay,
		}),
		TextAnalyzer: similarity.NewTextAnalyzer(textEmbedder, cfg.ConsistencyThreshold),
		Detector:     anomaly.NewDetector(),
		Cache:        mgr.Cache,
		Reports:      renderer,
		Weights: similarity.Weights{
			Confidence:        cfg.WeightConfidence,
			SymbolDensity:     cfg.WeightSymbolDensity,
			LineBreaks:        cfg.WeightLineBreaks,
			AverageConfidence: cfg.WeightAvgConfidence,
		},
		Thresholds: similarity.Thresholds{
			Text:        cfg.TextMatchThreshold,
			Handwriting: cfg.HandwritingMatchThreshold,
		},
		WeightText:  cfg.WeightText,
		MaxFileSize: cfg.MaxFileSize,
		Timeout:     cfg.ProcessingTimeoutDuration(),
	}
	if mgr.History != nil {
		pcfg.History = mgr.History
	}

	proc, err := NewComparisonProcessor(pcfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return proc, cleanup, nil
}

// NewRecognizer builds the structural recognizer named by cfg.OCRProvider
func NewRecognizer(ctx context.Context, cfg *config.Config) (Recognizer, error) {
	switch cfg.OCRProvider {
	case "", "vision":
		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return NewVisionOCR(initCtx, &VisionConfig{APIKey: cfg.GoogleCloudAPIKey})
	case "tesseract":
		return NewTesseractOCR(&TesseractConfig{Languages: cfg.TesseractLanguages}), nil
	default:
		return nil, fmt.Errorf("unknown OCR provider %q", cfg.OCRProvider)
	}
}

// NewEmbedder builds the embedder named by cfg.EmbeddingProvider. It returns
// a nil embedder for "none".
func NewEmbedder(ctx context.Context, cfg *config.Config) (ModelEmbedder, func() error, error) {
	switch cfg.EmbeddingProvider {
	case "", "none":
		return nil, nil, nil
	case "voyage":
		e, err := NewVoyageEmbedder(&VoyageConfig{APIKey: cfg.VoyageAPIKey, Dimensions: cfg.EmbeddingDimensions})
		return e, nil, err
	case "openai":
		e, err := NewOpenAIEmbedder(&OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.OpenAIEmbeddingModel,
			Dimensions: cfg.EmbeddingDimensions,
		})
		return e, nil, err
	case "gemini":
		e, err := NewGeminiEmbedder(ctx, &GeminiConfig{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiEmbeddingModel})
		if err != nil {
			return nil, nil, err
		}
		return e, e.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}
