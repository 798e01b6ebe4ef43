/**
 * Similarity report renderer
 *
 * Writes a PDF report of one comparison to the reports directory and
 * resolves report ids back to files. The PDF carries the full YAML summary
 * as an embedded attachment.
 */

package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/wudi/pdfkit/writer"
	"gopkg.in/yaml.v3"

	"github.com/adverant/nexus/inkcompare/internal/anomaly"
	"github.com/adverant/nexus/inkcompare/internal/models"
	"github.com/adverant/nexus/inkcompare/internal/similarity"
)

const (
	// ExcerptLength is the number of characters of each document text kept
	ExcerptLength = 500

	// ContentType is the media type reports are served with
	ContentType = "application/pdf"

	// SummaryName is the name of the YAML attachment inside each report
	SummaryName = "summary.yaml"
)

// ErrNotFound is returned by Lookup for unknown or malformed ids
var ErrNotFound = errors.New("report not found")

// Renderer writes reports into a directory
type Renderer struct {
	dir string
}

// Document is the content of a report. Its YAML form is the attachment.
type Document struct {
	ID           string    `yaml:"id"`
	ComparisonID string    `yaml:"comparison_id,omitempty"`
	GeneratedAt  time.Time `yaml:"generated_at"`
	CacheKey     string    `yaml:"cache_key"`
	CacheHit     bool      `yaml:"cache_hit"`

	Scores        Scores             `yaml:"scores"`
	FeatureScores map[string]float64 `yaml:"feature_scores"`

	Anomalies     DocumentPair[[]anomaly.Anomaly]   `yaml:"anomalies"`
	Variations    DocumentPair[[]anomaly.Variation] `yaml:"variations"`
	Inconsistency DocumentPair[int]                 `yaml:"text_inconsistencies"`
	RegionMatches RegionMatches                     `yaml:"region_matches"`
	TextExcerpts  DocumentPair[string]              `yaml:"text_excerpts"`
}

// Scores holds the headline numbers
type Scores struct {
	TextSimilarity        float64 `yaml:"text_similarity"`
	TextMethod            string  `yaml:"text_method"`
	HandwritingSimilarity float64 `yaml:"handwriting_similarity"`
	SimilarityIndex       float64 `yaml:"similarity_index"`
	WeightText            float64 `yaml:"weight_text"`
}

// DocumentPair holds one value per compared document
type DocumentPair[T any] struct {
	Document1 T `yaml:"doc1"`
	Document2 T `yaml:"doc2"`
}

// RegionMatches counts near-duplicate regions
type RegionMatches struct {
	Text        int `yaml:"text"`
	Handwriting int `yaml:"handwriting"`
}

// NewRenderer creates dir if needed
func NewRenderer(dir string) (*Renderer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create reports directory %s: %w", dir, err)
	}
	return &Renderer{dir: dir}, nil
}

// FileName is the report file name for id
func FileName(id string) string {
	return fmt.Sprintf("similarity_report_%s.pdf", id)
}

// URL is the HTTP path a report is served under
func URL(id string) string {
	return "/reports/" + id
}

// Build assembles the report document for a result
func Build(id string, result *models.Result, text1, text2 string) *Document {
	return &Document{
		ID:           id,
		ComparisonID: result.ComparisonID,
		GeneratedAt:  time.Now().UTC(),
		CacheKey:     result.CacheKey,
		CacheHit:     result.CacheHit,
		Scores: Scores{
			TextSimilarity:        result.TextSimilarity,
			TextMethod:            result.TextMethod,
			HandwritingSimilarity: result.HandwritingSimilarity,
			SimilarityIndex:       result.SimilarityIndex,
			WeightText:            result.WeightText,
		},
		FeatureScores: result.FeatureScores,
		Anomalies: DocumentPair[[]anomaly.Anomaly]{
			Document1: result.Anomalies.Document1,
			Document2: result.Anomalies.Document2,
		},
		Variations: DocumentPair[[]anomaly.Variation]{
			Document1: result.Variations.Document1,
			Document2: result.Variations.Document2,
		},
		Inconsistency: DocumentPair[int]{
			Document1: len(result.TextConsistency.Document1),
			Document2: len(result.TextConsistency.Document2),
		},
		RegionMatches: RegionMatches{
			Text:        countMatches(result.RegionTextMatches),
			Handwriting: countMatches(result.RegionHandwritingMatches),
		},
		TextExcerpts: DocumentPair[string]{
			Document1: excerpt(text1),
			Document2: excerpt(text2),
		},
	}
}

// Summary encodes doc as YAML
func Summary(doc *Document) ([]byte, error) {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report summary: %w", err)
	}
	return data, nil
}

// Encode lays out doc and serializes it to PDF bytes
func Encode(ctx context.Context, doc *Document) ([]byte, error) {
	pdf, err := Compose(doc)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writer.NewWriter().Write(ctx, pdf, &buf, writer.Config{Deterministic: true}); err != nil {
		return nil, fmt.Errorf("failed to write report PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// Render writes a new report for result and returns its id
func (r *Renderer) Render(result *models.Result, text1, text2 string) (string, error) {
	id := uuid.New().String()

	data, err := Encode(context.Background(), Build(id, result, text1, text2))
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(r.dir, "report-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close report: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(r.dir, FileName(id))); err != nil {
		return "", fmt.Errorf("failed to move report into place: %w", err)
	}
	return id, nil
}

// Lookup returns the path of report id
func (r *Renderer) Lookup(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", ErrNotFound
	}
	path := filepath.Join(r.dir, FileName(id))
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to stat report: %w", err)
	}
	return path, nil
}

func countMatches(pages [][]similarity.Match) int {
	n := 0
	for _, p := range pages {
		n += len(p)
	}
	return n
}

// excerpt keeps the first ExcerptLength characters of text
func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= ExcerptLength {
		return text
	}
	return string(runes[:ExcerptLength])
}
