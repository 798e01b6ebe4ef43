package similarity

import (
	"github.com/adverant/nexus/inkcompare/internal/features"
	"github.com/adverant/nexus/inkcompare/internal/stats"
)

// Feature score keys reported alongside the handwriting similarity
const (
	ScoreConfidence        = "confidence_similarity"
	ScoreSymbolDensity     = "symbol_density_similarity"
	ScoreLineBreaks        = "line_break_similarity"
	ScoreAverageConfidence = "average_confidence_similarity"
)

// Weights blend the four handwriting sub-metrics. They should sum to 1.
type Weights struct {
	Confidence        float64 `json:"confidence"`
	SymbolDensity     float64 `json:"symbol_density"`
	LineBreaks        float64 `json:"line_breaks"`
	AverageConfidence float64 `json:"avg_confidence"`
}

// DefaultWeights returns the standard 0.3/0.3/0.2/0.2 blend
func DefaultWeights() Weights {
	return Weights{
		Confidence:        0.3,
		SymbolDensity:     0.3,
		LineBreaks:        0.2,
		AverageConfidence: 0.2,
	}
}

// CompareHandwriting compares the mean handwriting features of two documents
// over all of their regions. Either document having no regions yields 0 and
// an empty score map.
func CompareHandwriting(doc1, doc2 features.Document, w Weights) (float64, map[string]float64) {
	r1, r2 := doc1.Regions(), doc2.Regions()
	if len(r1) == 0 || len(r2) == 0 {
		return 0, map[string]float64{}
	}

	conf := stats.Closeness(meanOf(r1, confidence), meanOf(r2, confidence))
	density := stats.Closeness(meanOf(r1, symbolDensity), meanOf(r2, symbolDensity))
	breaks := stats.Closeness(meanOf(r1, lineBreaks), meanOf(r2, lineBreaks))
	avgConf := stats.Closeness(meanOf(r1, avgConfidence), meanOf(r2, avgConfidence))

	scores := map[string]float64{
		ScoreConfidence:        conf,
		ScoreSymbolDensity:     density,
		ScoreLineBreaks:        breaks,
		ScoreAverageConfidence: avgConf,
	}

	similarity := w.Confidence*conf +
		w.SymbolDensity*density +
		w.LineBreaks*breaks +
		w.AverageConfidence*avgConf

	return stats.Clamp01(similarity), scores
}

// RegionSimilarity compares two single regions on confidence, symbol density
// and line breaks.
func RegionSimilarity(r1, r2 features.Region) float64 {
	return stats.Mean([]float64{
		stats.Closeness(r1.Confidence, r2.Confidence),
		stats.Closeness(r1.SymbolDensity, r2.SymbolDensity),
		stats.Closeness(float64(r1.LineBreaks), float64(r2.LineBreaks)),
	})
}

func confidence(r features.Region) float64    { return r.Confidence }
func symbolDensity(r features.Region) float64 { return r.SymbolDensity }
func lineBreaks(r features.Region) float64    { return float64(r.LineBreaks) }
func avgConfidence(r features.Region) float64 { return r.AverageSymbolConfidence }

func meanOf(regions []features.Region, f func(features.Region) float64) float64 {
	values := make([]float64, len(regions))
	for i, r := range regions {
		values[i] = f(r)
	}
	return stats.Mean(values)
}
