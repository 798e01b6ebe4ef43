/**
 * Feature Extractor
 *
 * Fans page images out to the recognizer over a bounded pool, retries and
 * times out each page independently, and reassembles the results in page
 * order. A failed page becomes an empty page rather than failing the
 * document.
 */

package processor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/inkcompare/internal/features"
	"github.com/adverant/nexus/inkcompare/internal/logging"
	"github.com/adverant/nexus/inkcompare/internal/metrics"
)

// ErrAllPagesFailed is returned when no page of a non-empty document could
// be recognized.
var ErrAllPagesFailed = errors.New("every page failed recognition")

// ErrNoRegions is returned when a non-empty document was recognized but not
// one page produced a region.
var ErrNoRegions = errors.New("no regions recognized")

// Extractor defaults
const (
	DefaultExtractConcurrency = 4
	DefaultPageTimeout        = 120 * time.Second
	DefaultPageRetries        = 2
	DefaultRetryDelay         = 500 * time.Millisecond
)

// ExtractorConfig tunes the page pool
type ExtractorConfig struct {
	Concurrency int
	PageTimeout time.Duration
	Attempts    int
	RetryDelay  time.Duration
}

// FeatureExtractor turns page images into a features.Document
type FeatureExtractor struct {
	recognizer     Recognizer
	textRecognizer TextRecognizer
	cfg            ExtractorConfig
	logger         *logging.Logger
}

// pageOutcome is the tagged result of one page task
type pageOutcome struct {
	index   int
	regions features.Page
	text    string
	err     error
}

// NewFeatureExtractor creates an extractor. textRecognizer may be nil, in
// which case document text is assembled from region text.
func NewFeatureExtractor(recognizer Recognizer, textRecognizer TextRecognizer, cfg ExtractorConfig) *FeatureExtractor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultExtractConcurrency
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = DefaultPageTimeout
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultPageRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return &FeatureExtractor{
		recognizer:     recognizer,
		textRecognizer: textRecognizer,
		cfg:            cfg,
		logger:         logging.NewLogger("extractor"),
	}
}

// Extract recognizes every page and returns one features.Page per input page,
// in page order.
func (e *FeatureExtractor) Extract(ctx context.Context, pages []PageImage) (features.Document, error) {
	outcomes, err := e.fanOut(ctx, pages, func(ctx context.Context, page PageImage) pageOutcome {
		paragraphs, err := e.recognizer.Recognize(ctx, page.Data)
		if err != nil {
			return pageOutcome{err: err}
		}
		regions := features.Page{}
		for _, p := range paragraphs {
			if r, ok := features.FromParagraph(p, page.Index); ok {
				regions = append(regions, r)
			}
		}
		return pageOutcome{regions: regions}
	}, e.recognizer.Name())
	if err != nil {
		return nil, err
	}

	doc := make(features.Document, len(outcomes))
	failed, regions := 0, 0
	for i, o := range outcomes {
		if o.err != nil {
			failed++
			e.logger.Warn("Page recognition failed, using empty page", "page", o.index, "recognizer", e.recognizer.Name(), "error", o.err)
			doc[i] = features.Page{}
			continue
		}
		doc[i] = o.regions
		regions += len(o.regions)
	}

	if len(pages) > 0 && failed == len(pages) {
		return nil, fmt.Errorf("%w: %d pages", ErrAllPagesFailed, len(pages))
	}
	if len(pages) > 0 && regions == 0 {
		return nil, fmt.Errorf("%w: %d pages, %d failed", ErrNoRegions, len(pages), failed)
	}
	return doc, nil
}

// TextSource names where ExtractText takes its text from
func (e *FeatureExtractor) TextSource() string {
	if e.textRecognizer != nil {
		return e.textRecognizer.Name()
	}
	return "regions-" + e.recognizer.Name()
}

// ExtractText returns the full document text. With a text recognizer the
// successful page texts are joined by blank lines; otherwise, or when every
// page fails, the region text of doc is used.
func (e *FeatureExtractor) ExtractText(ctx context.Context, pages []PageImage, doc features.Document) (string, error) {
	if e.textRecognizer == nil || len(pages) == 0 {
		return doc.Text(), nil
	}

	outcomes, err := e.fanOut(ctx, pages, func(ctx context.Context, page PageImage) pageOutcome {
		text, err := e.textRecognizer.RecognizeText(ctx, page.Data)
		return pageOutcome{text: text, err: err}
	}, e.textRecognizer.Name())
	if err != nil {
		return "", err
	}

	var parts []string
	for _, o := range outcomes {
		if o.err != nil {
			e.logger.Warn("Page text recognition failed, skipping page", "page", o.index, "recognizer", e.textRecognizer.Name(), "error", o.err)
			continue
		}
		if t := strings.TrimSpace(o.text); t != "" {
			parts = append(parts, t)
		}
	}

	if len(parts) == 0 {
		e.logger.Warn("No page text recognized, using region text", "pages", len(pages))
		return doc.Text(), nil
	}
	return strings.Join(parts, "\n\n"), nil
}

// fanOut runs task for every page under the bounded pool and returns the
// outcomes sorted by page index. Only cancellation of ctx is returned as an
// error; page failures are carried in the outcomes.
func (e *FeatureExtractor) fanOut(ctx context.Context, pages []PageImage, task func(context.Context, PageImage) pageOutcome, recognizer string) ([]pageOutcome, error) {
	results := make(chan pageOutcome, len(pages))

	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Concurrency)

	for _, page := range pages {
		g.Go(func() error {
			results <- e.runPage(ctx, page, task, recognizer)
			return nil
		})
	}
	g.Wait()
	close(results)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("extraction cancelled: %w", err)
	}

	outcomes := make([]pageOutcome, 0, len(pages))
	for o := range results {
		outcomes = append(outcomes, o)
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].index < outcomes[j].index })
	return outcomes, nil
}

// runPage calls task with a per-attempt timeout and retries failed attempts
func (e *FeatureExtractor) runPage(ctx context.Context, page PageImage, task func(context.Context, PageImage) pageOutcome, recognizer string) pageOutcome {
	start := time.Now()
	var out pageOutcome

	err := retry.Do(
		func() error {
			attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.PageTimeout)
			defer cancel()
			out = task(attemptCtx, page)
			if out.err == nil {
				return nil
			}
			if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return fmt.Errorf("page %d timed out after %s: %w", page.Index, e.cfg.PageTimeout, out.err)
			}
			return out.err
		},
		retry.Context(ctx),
		retry.Attempts(uint(e.cfg.Attempts)),
		retry.Delay(e.cfg.RetryDelay),
		retry.LastErrorOnly(true),
	)

	status := "ok"
	if err != nil {
		status = "failed"
		out = pageOutcome{err: err}
	}
	out.index = page.Index

	metrics.PagesRecognized.WithLabelValues(recognizer, status).Inc()
	metrics.PageDuration.WithLabelValues(recognizer).Observe(time.Since(start).Seconds())
	return out
}
