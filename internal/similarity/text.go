package similarity

import (
	"context"
	"fmt"

	"github.com/adverant/nexus/inkcompare/internal/features"
	"github.com/adverant/nexus/inkcompare/internal/logging"
	"github.com/adverant/nexus/inkcompare/internal/stats"
)

// DefaultConsistencyThreshold is the adjacent-segment cosine below which a
// document is considered to shift topic or style abruptly.
const DefaultConsistencyThreshold = 0.5

const (
	MethodSemantic = "semantic"
	MethodLexical  = "lexical"
)

// Embedder returns one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Inconsistency records an abrupt change between two adjacent segments
type Inconsistency struct {
	SegmentIndex    int     `json:"segment_index"`
	SegmentText     string  `json:"segment_text"`
	NextSegmentText string  `json:"next_segment_text"`
	SimilarityScore float64 `json:"similarity_score"`
}

// Consistency holds the internal inconsistencies of both documents
type Consistency struct {
	Document1 []Inconsistency `json:"doc1"`
	Document2 []Inconsistency `json:"doc2"`
}

// TextResult is the outcome of comparing two full document texts
type TextResult struct {
	Score       float64     `json:"similarity_score"`
	Method      string      `json:"method"`
	Consistency Consistency `json:"consistency_analysis"`
}

// TextAnalyzer compares document texts by nearest-neighbour segment
// embeddings, falling back to lexical TF-IDF when no embedder is available.
type TextAnalyzer struct {
	embedder             Embedder
	consistencyThreshold float64
	logger               *logging.Logger
}

// NewTextAnalyzer creates a text analyzer. embedder may be nil.
func NewTextAnalyzer(embedder Embedder, consistencyThreshold float64) *TextAnalyzer {
	if consistencyThreshold <= 0 {
		consistencyThreshold = DefaultConsistencyThreshold
	}
	return &TextAnalyzer{
		embedder:             embedder,
		consistencyThreshold: consistencyThreshold,
		logger:               logging.NewLogger("text-similarity"),
	}
}

// Compare scores text1 against text2. The score is asymmetric: it averages,
// over the segments of text1, the best match found in text2.
func (a *TextAnalyzer) Compare(ctx context.Context, text1, text2 string) (*TextResult, error) {
	segments1 := Segment(text1)
	segments2 := Segment(text2)

	empty := &TextResult{
		Method:      MethodLexical,
		Consistency: Consistency{Document1: []Inconsistency{}, Document2: []Inconsistency{}},
	}
	if a.embedder != nil {
		empty.Method = MethodSemantic
	}
	if len(segments1) == 0 || len(segments2) == 0 {
		return empty, nil
	}

	if a.embedder == nil {
		return a.lexical(text1, text2), nil
	}

	embeddings, err := a.embedder.Embed(ctx, append(append([]string{}, segments1...), segments2...))
	if err == nil && len(embeddings) != len(segments1)+len(segments2) {
		err = fmt.Errorf("embedder returned %d vectors for %d segments", len(embeddings), len(segments1)+len(segments2))
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("text similarity cancelled: %w", ctxErr)
		}
		a.logger.Warn("Embedding failed, falling back to lexical similarity", "error", err, "segments", len(segments1)+len(segments2))
		return a.lexical(text1, text2), nil
	}

	emb1 := embeddings[:len(segments1)]
	emb2 := embeddings[len(segments1):]

	return &TextResult{
		Score:  SemanticScore(emb1, emb2),
		Method: MethodSemantic,
		Consistency: Consistency{
			Document1: a.inconsistencies(segments1, emb1),
			Document2: a.inconsistencies(segments2, emb2),
		},
	}, nil
}

// RegionScorer returns the TextScorer MatchRegions uses for region text. With
// an embedder, every distinct boxed region text of both documents is
// segmented and embedded in one batch and pairs are scored with
// SemanticScore. Without one, or when embedding fails, regions are scored
// lexically. Only cancellation of ctx is returned as an error.
func (a *TextAnalyzer) RegionScorer(ctx context.Context, doc1, doc2 features.Document) (TextScorer, error) {
	if a.embedder == nil {
		return LexicalSimilarity, nil
	}

	spans := map[string][2]int{}
	var segments []string
	for _, doc := range []features.Document{doc1, doc2} {
		for _, page := range doc {
			for _, r := range page {
				if r.BoundingBox == nil || !r.HasText() {
					continue
				}
				if _, seen := spans[r.Text]; seen {
					continue
				}
				segs := Segment(r.Text)
				spans[r.Text] = [2]int{len(segments), len(segments) + len(segs)}
				segments = append(segments, segs...)
			}
		}
	}
	if len(segments) == 0 {
		return LexicalSimilarity, nil
	}

	embeddings, err := a.embedder.Embed(ctx, segments)
	if err == nil && len(embeddings) != len(segments) {
		err = fmt.Errorf("embedder returned %d vectors for %d segments", len(embeddings), len(segments))
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("region similarity cancelled: %w", ctxErr)
		}
		a.logger.Warn("Region embedding failed, scoring regions lexically", "error", err, "segments", len(segments))
		return LexicalSimilarity, nil
	}

	return func(x, y string) float64 {
		sx, okx := spans[x]
		sy, oky := spans[y]
		if !okx || !oky || sx[0] == sx[1] || sy[0] == sy[1] {
			return LexicalSimilarity(x, y)
		}
		return SemanticScore(embeddings[sx[0]:sx[1]], embeddings[sy[0]:sy[1]])
	}, nil
}

func (a *TextAnalyzer) lexical(text1, text2 string) *TextResult {
	return &TextResult{
		Score:       LexicalSimilarity(text1, text2),
		Method:      MethodLexical,
		Consistency: Consistency{Document1: []Inconsistency{}, Document2: []Inconsistency{}},
	}
}

// SemanticScore is the mean over emb1 of the maximum cosine similarity to any
// vector of emb2, clamped to [0, 1].
func SemanticScore(emb1, emb2 [][]float32) float64 {
	if len(emb1) == 0 || len(emb2) == 0 {
		return 0
	}
	best := make([]float64, len(emb1))
	for i, e1 := range emb1 {
		best[i] = stats.Cosine(e1, emb2[0])
		for _, e2 := range emb2[1:] {
			best[i] = max(best[i], stats.Cosine(e1, e2))
		}
	}
	return stats.Clamp01(stats.Mean(best))
}

func (a *TextAnalyzer) inconsistencies(segments []string, embeddings [][]float32) []Inconsistency {
	out := []Inconsistency{}
	for i := 0; i+1 < len(segments); i++ {
		score := stats.Cosine(embeddings[i], embeddings[i+1])
		if score < a.consistencyThreshold {
			out = append(out, Inconsistency{
				SegmentIndex:    i,
				SegmentText:     segments[i],
				NextSegmentText: segments[i+1],
				SimilarityScore: score,
			})
		}
	}
	return out
}
