/**
 * Similarity Result - the complete outcome of comparing two documents
 */

package models

import (
	"github.com/adverant/nexus/inkcompare/internal/anomaly"
	"github.com/adverant/nexus/inkcompare/internal/similarity"
	"github.com/adverant/nexus/inkcompare/internal/stats"
)

// AnomalySet groups the anomalies found in each document
type AnomalySet struct {
	Document1 []anomaly.Anomaly `json:"doc1"`
	Document2 []anomaly.Anomaly `json:"doc2"`
}

// VariationSet groups the page variations found in each document
type VariationSet struct {
	Document1 []anomaly.Variation `json:"doc1"`
	Document2 []anomaly.Variation `json:"doc2"`
}

// Result is the assembled comparison of two documents. It is the value
// cached per file pair and returned to callers.
type Result struct {
	ComparisonID string `json:"comparison_id,omitempty"`

	TextSimilarity        float64                `json:"text_similarity"`
	TextMethod            string                 `json:"text_method"`
	TextConsistency       similarity.Consistency `json:"text_consistency"`
	HandwritingSimilarity float64                `json:"handwriting_similarity"`
	SimilarityIndex       float64                `json:"similarity_index"`
	WeightText            float64                `json:"weight_text"`
	FeatureScores         map[string]float64     `json:"feature_scores"`

	Anomalies  AnomalySet   `json:"anomalies"`
	Variations VariationSet `json:"variations"`

	RegionTextMatches        [][]similarity.Match `json:"region_text_matches"`
	RegionHandwritingMatches [][]similarity.Match `json:"region_handwriting_matches"`

	CacheKey  string `json:"cache_key"`
	CacheHit  bool   `json:"cache_hit"`
	ReportURL string `json:"report_url"`
}

// Normalize replaces non-finite numbers with 0, clamps scores to [0, 1] and
// turns nil collections into empty ones so the JSON shape is stable.
func (r *Result) Normalize() {
	r.TextSimilarity = stats.Clamp01(r.TextSimilarity)
	r.HandwritingSimilarity = stats.Clamp01(r.HandwritingSimilarity)
	r.SimilarityIndex = stats.Clamp01(r.SimilarityIndex)
	r.WeightText = stats.Clamp01(r.WeightText)

	if r.FeatureScores == nil {
		r.FeatureScores = map[string]float64{}
	}
	for k, v := range r.FeatureScores {
		r.FeatureScores[k] = stats.Clamp01(v)
	}

	r.TextConsistency.Document1 = normalizeInconsistencies(r.TextConsistency.Document1)
	r.TextConsistency.Document2 = normalizeInconsistencies(r.TextConsistency.Document2)

	r.Anomalies.Document1 = normalizeAnomalies(r.Anomalies.Document1)
	r.Anomalies.Document2 = normalizeAnomalies(r.Anomalies.Document2)

	r.Variations.Document1 = normalizeVariations(r.Variations.Document1)
	r.Variations.Document2 = normalizeVariations(r.Variations.Document2)

	r.RegionTextMatches = normalizeMatches(r.RegionTextMatches)
	r.RegionHandwritingMatches = normalizeMatches(r.RegionHandwritingMatches)
}

// Reweight recomputes the similarity index for a different text weight
func (r *Result) Reweight(weightText float64) {
	r.WeightText = stats.Clamp01(weightText)
	r.SimilarityIndex = similarity.SimilarityIndex(r.TextSimilarity, r.HandwritingSimilarity, r.WeightText)
}

func normalizeInconsistencies(in []similarity.Inconsistency) []similarity.Inconsistency {
	if in == nil {
		return []similarity.Inconsistency{}
	}
	for i := range in {
		in[i].SimilarityScore = stats.Finite(in[i].SimilarityScore)
	}
	return in
}

func normalizeAnomalies(in []anomaly.Anomaly) []anomaly.Anomaly {
	if in == nil {
		return []anomaly.Anomaly{}
	}
	for i := range in {
		for _, d := range []*anomaly.Deviation{in[i].Confidence, in[i].SymbolDensity, in[i].LineBreaks} {
			if d != nil {
				d.Value = stats.Finite(d.Value)
				d.Mean = stats.Finite(d.Mean)
				d.Deviation = stats.Finite(d.Deviation)
			}
		}
	}
	return in
}

func normalizeVariations(in []anomaly.Variation) []anomaly.Variation {
	if in == nil {
		return []anomaly.Variation{}
	}
	for i := range in {
		if in[i].Changes == nil {
			in[i].Changes = []anomaly.Change{}
		}
		for j := range in[i].Changes {
			in[i].Changes[j].Difference = stats.Finite(in[i].Changes[j].Difference)
		}
	}
	return in
}

func normalizeMatches(in [][]similarity.Match) [][]similarity.Match {
	if in == nil {
		return [][]similarity.Match{}
	}
	for p := range in {
		if in[p] == nil {
			in[p] = []similarity.Match{}
		}
		for i := range in[p] {
			in[p][i].Score = stats.Clamp01(in[p][i].Score)
		}
	}
	return in
}
