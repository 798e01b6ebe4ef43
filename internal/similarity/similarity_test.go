package similarity

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/inkcompare/internal/features"
)

// letterEmbedder embeds text as a 26-dim letter histogram
type letterEmbedder struct {
	calls int
	err   error
}

func (e *letterEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 26)
		for _, r := range strings.ToLower(t) {
			if r >= 'a' && r <= 'z' {
				v[r-'a']++
			}
		}
		out[i] = v
	}
	return out, nil
}

type shortEmbedder struct{}

func (shortEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	return [][]float32{{1}}, nil
}

func TestSegment(t *testing.T) {
	text := "The sum of 2+2 equals 4. Pi is 3.14!\n\n  \n\nIs it? Yes\n\nlast"
	assert.Equal(t, []string{
		"The sum of 2+2 equals 4.",
		"Pi is 3.14!",
		"Is it?",
		"Yes",
		"last",
	}, Segment(text))
	assert.Empty(t, Segment("  \n\n "))
}

func TestPreprocessMath(t *testing.T) {
	assert.Equal(t, "2 plus 2 equals 4", Preprocess("2+2=4"))
	assert.Equal(t, "x power 2 minus 1 less than or equal to y", Preprocess("x^2 - 1 <= y"))
	assert.Equal(t, "fraction a b times pi", Preprocess(`$\frac{a}{b} \times \pi$`))
	assert.Equal(t, "5 minus 3 minus 1", Preprocess("5-3-1"))
	assert.Equal(t, "well-known", Preprocess("Well-Known"))
}

func TestLexicalSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, LexicalSimilarity("The SUM of 2+2", "the sum of 2 + 2"))
	assert.Equal(t, 0.0, LexicalSimilarity("", "anything"))
	assert.Equal(t, 0.0, LexicalSimilarity("$ $", "anything"))
	assert.Equal(t, 0.0, LexicalSimilarity("", ""))

	near := LexicalSimilarity("the quick brown fox jumps", "the quick brown fox jumped")
	far := LexicalSimilarity("the quick brown fox jumps", "integral of x squared")
	assert.Greater(t, near, 0.5)
	assert.Less(t, far, near)
	assert.GreaterOrEqual(t, far, 0.0)
	assert.LessOrEqual(t, near, 1.0)
}

func TestCompareSameTextIsOne(t *testing.T) {
	a := NewTextAnalyzer(&letterEmbedder{}, 0)
	res, err := a.Compare(context.Background(), "The sum of 2+2 equals 4.", "The sum of 2+2 equals 4.")
	require.NoError(t, err)

	assert.Equal(t, MethodSemantic, res.Method)
	assert.InDelta(t, 1.0, res.Score, 1e-6)
	assert.Empty(t, res.Consistency.Document1)
}

func TestCompareIsAsymmetric(t *testing.T) {
	a := NewTextAnalyzer(&letterEmbedder{}, 0)
	long := "Alpha beta gamma.\n\nZzz qqq xxx."
	short := "Alpha beta gamma."

	ab, err := a.Compare(context.Background(), long, short)
	require.NoError(t, err)
	ba, err := a.Compare(context.Background(), short, long)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, ba.Score, 1e-6)
	assert.Less(t, ab.Score, ba.Score)
}

func TestCompareRecordsInconsistencies(t *testing.T) {
	a := NewTextAnalyzer(&letterEmbedder{}, 0.5)
	res, err := a.Compare(context.Background(), "aaa aaa.\n\nzzz zzz. zzz.", "aaa")
	require.NoError(t, err)

	require.Len(t, res.Consistency.Document1, 1)
	inc := res.Consistency.Document1[0]
	assert.Equal(t, 0, inc.SegmentIndex)
	assert.Equal(t, "aaa aaa.", inc.SegmentText)
	assert.Equal(t, "zzz zzz.", inc.NextSegmentText)
	assert.InDelta(t, 0.0, inc.SimilarityScore, 1e-9)
	assert.Empty(t, res.Consistency.Document2)
}

func TestCompareFallsBackToLexical(t *testing.T) {
	tests := []struct {
		name     string
		embedder Embedder
	}{
		{"no embedder", nil},
		{"embedder error", &letterEmbedder{err: errors.New("503 from oracle")}},
		{"wrong vector count", shortEmbedder{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewTextAnalyzer(tt.embedder, 0)
			res, err := a.Compare(context.Background(), "2+2=4", "2 + 2 = 4")
			require.NoError(t, err)
			assert.Equal(t, MethodLexical, res.Method)
			assert.Equal(t, 1.0, res.Score)
		})
	}
}

func TestCompareCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewTextAnalyzer(&letterEmbedder{err: context.Canceled}, 0)
	_, err := a.Compare(ctx, "one", "two")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompareEmptyText(t *testing.T) {
	emb := &letterEmbedder{}
	a := NewTextAnalyzer(emb, 0)
	res, err := a.Compare(context.Background(), "", "something")
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.Score)
	assert.Zero(t, emb.calls)
	assert.NotNil(t, res.Consistency.Document1)
}

func region(conf, density float64, breaks int, avg float64) features.Region {
	return features.Region{
		Confidence:              conf,
		WordCount:               5,
		SymbolDensity:           density,
		LineBreaks:              breaks,
		AverageSymbolConfidence: avg,
		BoundingBox:             &features.BoundingBox{Left: 1, Top: 2, Width: 30, Height: 10},
	}
}

func TestCompareHandwritingSelf(t *testing.T) {
	doc := features.Document{
		{region(0.95, 0.1, 0, 0.93), region(0.80, 0.3, 2, 0.81)},
		{region(0.70, 0.2, 1, 0.75)},
	}

	sim, scores := CompareHandwriting(doc, doc, DefaultWeights())
	assert.InDelta(t, 1.0, sim, 1e-9)
	require.Len(t, scores, 4)
	for k, v := range scores {
		assert.Equal(t, 1.0, v, k)
	}
}

func TestCompareHandwritingEmpty(t *testing.T) {
	empty := features.Document{{}}
	full := features.Document{{region(0.9, 0.1, 0, 0.9)}}

	for _, pair := range [][2]features.Document{{empty, empty}, {empty, full}, {full, nil}} {
		sim, scores := CompareHandwriting(pair[0], pair[1], DefaultWeights())
		assert.Equal(t, 0.0, sim)
		assert.NotNil(t, scores)
		assert.Empty(t, scores)
	}
}

func TestCompareHandwritingWeighted(t *testing.T) {
	d1 := features.Document{{region(0.9, 0.1, 0, 0.9)}}
	d2 := features.Document{{region(0.7, 0.1, 3, 0.8)}}

	sim, scores := CompareHandwriting(d1, d2, DefaultWeights())
	assert.InDelta(t, 0.8, scores[ScoreConfidence], 1e-9)
	assert.InDelta(t, 1.0, scores[ScoreSymbolDensity], 1e-9)
	assert.InDelta(t, 0.0, scores[ScoreLineBreaks], 1e-9)
	assert.InDelta(t, 0.9, scores[ScoreAverageConfidence], 1e-9)
	assert.InDelta(t, 0.3*0.8+0.3*1.0+0.2*0+0.2*0.9, sim, 1e-9)

	onlyConfidence := Weights{Confidence: 1}
	sim, _ = CompareHandwriting(d1, d2, onlyConfidence)
	assert.InDelta(t, 0.8, sim, 1e-9)
}

func TestMatchRegions(t *testing.T) {
	a := region(0.9, 0.1, 0, 0.9)
	a.Text = "The sum of 2+2 equals 4."
	b := region(0.88, 0.12, 0, 0.9)
	b.Text = "the sum of 2 + 2 equals 4."
	far := region(0.2, 2.5, 6, 0.3)
	far.Text = "completely unrelated words"
	noBox := region(0.9, 0.1, 0, 0.9)
	noBox.BoundingBox = nil

	doc1 := features.Document{{a, noBox}, {a}}
	doc2 := features.Document{{b, far}}

	textMatches, hwMatches := MatchRegions(doc1, doc2, DefaultThresholds(), nil)
	require.Len(t, textMatches, 1)
	require.Len(t, hwMatches, 1)

	require.Len(t, textMatches[0], 1)
	assert.Equal(t, 1.0, textMatches[0][0].Score)
	assert.Equal(t, a.BoundingBox, textMatches[0][0].BoundingBox)

	require.Len(t, hwMatches[0], 1)
	assert.InDelta(t, (0.98+0.98+1.0)/3, hwMatches[0][0].Score, 1e-9)
}

func TestRegionScorerSemantic(t *testing.T) {
	a := region(0.9, 0.1, 0, 0.9)
	a.Text = "listen"
	b := region(0.9, 0.1, 0, 0.9)
	b.Text = "silent"
	doc1, doc2 := features.Document{{a}}, features.Document{{b}}

	// anagrams share a letter histogram but no character n-grams
	lexical, _ := MatchRegions(doc1, doc2, DefaultThresholds(), nil)
	assert.Empty(t, lexical[0])

	emb := &letterEmbedder{}
	scorer, err := NewTextAnalyzer(emb, 0).RegionScorer(context.Background(), doc1, doc2)
	require.NoError(t, err)
	assert.Equal(t, 1, emb.calls)

	semantic, _ := MatchRegions(doc1, doc2, DefaultThresholds(), scorer)
	require.Len(t, semantic[0], 1)
	assert.InDelta(t, 1.0, semantic[0][0].Score, 1e-6)

	// texts outside the batch are scored lexically
	assert.Equal(t, 1.0, scorer("2+2=4", "2 + 2 = 4"))
}

func TestRegionScorerFallsBackToLexical(t *testing.T) {
	a := region(0.9, 0.1, 0, 0.9)
	a.Text = "listen"
	b := region(0.9, 0.1, 0, 0.9)
	b.Text = "silent"
	doc, other := features.Document{{a}}, features.Document{{b}}

	for _, emb := range []Embedder{nil, &letterEmbedder{err: errors.New("503 from oracle")}, shortEmbedder{}} {
		scorer, err := NewTextAnalyzer(emb, 0).RegionScorer(context.Background(), doc, other)
		require.NoError(t, err)
		assert.InDelta(t, 0.0, scorer("listen", "silent"), 1e-9)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTextAnalyzer(&letterEmbedder{err: context.Canceled}, 0).RegionScorer(ctx, doc, other)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMatchRegionsThresholdOverride(t *testing.T) {
	a := region(0.9, 0.1, 0, 0.9)
	// closeness 0.3, 1, 1 averages to about 0.767
	b := region(0.2, 0.1, 0, 0.9)

	_, hw := MatchRegions(features.Document{{a}}, features.Document{{b}}, DefaultThresholds(), nil)
	assert.Empty(t, hw[0])

	_, hw = MatchRegions(features.Document{{a}}, features.Document{{b}}, Thresholds{Text: 1, Handwriting: 0.75}, nil)
	assert.Len(t, hw[0], 1)
}

func TestSimilarityIndex(t *testing.T) {
	assert.InDelta(t, 1.0, SimilarityIndex(1, 1, DefaultWeightText), 1e-12)
	assert.InDelta(t, 0.7, SimilarityIndex(1, 0.4, 0.5), 1e-12)
	assert.InDelta(t, 0.4, SimilarityIndex(1, 0.4, 0), 1e-12)
	assert.InDelta(t, 1.0, SimilarityIndex(1, 0.4, 1), 1e-12)
}
