package similarity

import (
	"github.com/adverant/nexus/inkcompare/internal/features"
	"github.com/adverant/nexus/inkcompare/internal/stats"
)

// Near-duplicate region thresholds
const (
	DefaultTextMatchThreshold        = 0.90
	DefaultHandwritingMatchThreshold = 0.80
	DefaultWeightText                = 0.5
)

// Thresholds decide when a region pair counts as a match
type Thresholds struct {
	Text        float64
	Handwriting float64
}

// DefaultThresholds returns the 0.90 text / 0.80 handwriting thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		Text:        DefaultTextMatchThreshold,
		Handwriting: DefaultHandwritingMatchThreshold,
	}
}

// Match is a region of document 1 that closely resembles a region of document 2
type Match struct {
	Score       float64               `json:"score"`
	BoundingBox *features.BoundingBox `json:"bounding_box"`
}

// TextScorer scores the text of two regions
type TextScorer func(a, b string) float64

// MatchRegions pairs every region of page i in doc1 with every region of page
// i in doc2, up to the shorter document. Only pairs where both regions carry
// a bounding box are considered. The returned slices have one entry per
// compared page.
func MatchRegions(doc1, doc2 features.Document, th Thresholds, scorer TextScorer) (textMatches, handwritingMatches [][]Match) {
	if scorer == nil {
		scorer = LexicalSimilarity
	}

	pages := min(len(doc1), len(doc2))
	textMatches = make([][]Match, pages)
	handwritingMatches = make([][]Match, pages)

	for p := 0; p < pages; p++ {
		textMatches[p] = []Match{}
		handwritingMatches[p] = []Match{}

		for _, r1 := range doc1[p] {
			if r1.BoundingBox == nil {
				continue
			}
			for _, r2 := range doc2[p] {
				if r2.BoundingBox == nil {
					continue
				}

				if r1.HasText() && r2.HasText() {
					if score := scorer(r1.Text, r2.Text); score >= th.Text {
						textMatches[p] = append(textMatches[p], Match{Score: score, BoundingBox: r1.BoundingBox})
					}
				}

				if score := RegionSimilarity(r1, r2); score >= th.Handwriting {
					handwritingMatches[p] = append(handwritingMatches[p], Match{Score: score, BoundingBox: r1.BoundingBox})
				}
			}
		}
	}

	return textMatches, handwritingMatches
}

// SimilarityIndex blends text and handwriting similarity:
// weightText*text + (1-weightText)*handwriting.
func SimilarityIndex(text, handwriting, weightText float64) float64 {
	w := stats.Clamp01(weightText)
	return stats.Clamp01(w*text + (1-w)*handwriting)
}
