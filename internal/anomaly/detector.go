/**
 * Anomaly & Variation Detector
 *
 * Flags paragraphs whose handwriting features sit far from their page mean,
 * and pages whose average features shift sharply from the previous page.
 */

package anomaly

import (
	"fmt"
	"math"
	"strings"

	"github.com/adverant/nexus/inkcompare/internal/features"
	"github.com/adverant/nexus/inkcompare/internal/stats"
)

// Defaults for the outlier and page-shift tests
const (
	DefaultSigma              = 2.0
	DefaultVariationThreshold = 0.15
)

// Feature names used in anomalies and variation changes
const (
	FeatureConfidence    = "confidence"
	FeatureSymbolDensity = "symbol_density"
	FeatureLineBreaks    = "line_breaks"
)

// Deviation describes how far one value strays from its page mean, in
// standard deviations.
type Deviation struct {
	Value     float64 `json:"value" yaml:"value"`
	Mean      float64 `json:"mean" yaml:"mean"`
	Deviation float64 `json:"deviation" yaml:"deviation"`
}

// Anomaly is a paragraph with at least one outlying feature
type Anomaly struct {
	Confidence     *Deviation `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	SymbolDensity  *Deviation `json:"symbol_density,omitempty" yaml:"symbol_density,omitempty"`
	LineBreaks     *Deviation `json:"line_breaks,omitempty" yaml:"line_breaks,omitempty"`
	ParagraphIndex int        `json:"paragraph_index" yaml:"paragraph_index"`
	PageNumber     int        `json:"page_number" yaml:"page_number"`
}

// PageProfile holds the mean features of one non-empty page
type PageProfile struct {
	PageNumber    int     `json:"page_number"`
	Confidence    float64 `json:"confidence"`
	SymbolDensity float64 `json:"symbol_density"`
	LineBreaks    float64 `json:"line_breaks"`
}

// Change is one feature that moved more than the threshold between pages
type Change struct {
	Type        string  `json:"type" yaml:"type"`
	Difference  float64 `json:"difference" yaml:"difference"`
	Description string  `json:"description" yaml:"description"`
}

// Variation lists the feature changes between two consecutive profiled pages
type Variation struct {
	FromPage int      `json:"from_page" yaml:"from_page"`
	ToPage   int      `json:"to_page" yaml:"to_page"`
	Changes  []Change `json:"changes" yaml:"changes"`
}

// Detector runs the outlier and variation analysis over one document
type Detector struct {
	Sigma              float64
	VariationThreshold float64
}

// NewDetector returns a detector with the default 2 sigma / 0.15 settings
func NewDetector() *Detector {
	return &Detector{
		Sigma:              DefaultSigma,
		VariationThreshold: DefaultVariationThreshold,
	}
}

// Detect returns the anomalies and page variations of doc. Both slices are
// non-nil. Page numbers are 1-based; empty pages are skipped.
func (d *Detector) Detect(doc features.Document) ([]Anomaly, []Variation) {
	anomalies := []Anomaly{}
	profiles := []PageProfile{}

	for i, page := range doc {
		if len(page) == 0 {
			continue
		}
		anomalies = append(anomalies, d.pageAnomalies(page, i+1)...)
		profiles = append(profiles, Profile(page, i+1))
	}

	if len(profiles) < 2 {
		return anomalies, []Variation{}
	}
	return anomalies, d.Variations(profiles)
}

// Profile computes the mean features of a page
func Profile(page features.Page, pageNumber int) PageProfile {
	conf, density, breaks := columns(page)
	return PageProfile{
		PageNumber:    pageNumber,
		Confidence:    stats.Mean(conf),
		SymbolDensity: stats.Mean(density),
		LineBreaks:    stats.Mean(breaks),
	}
}

// Variations compares each profile with the one before it. Pairs without a
// change above the threshold are omitted.
func (d *Detector) Variations(profiles []PageProfile) []Variation {
	out := []Variation{}
	for i := 1; i < len(profiles); i++ {
		prev, curr := profiles[i-1], profiles[i]

		deltas := []struct {
			name  string
			value float64
		}{
			{FeatureConfidence, math.Abs(curr.Confidence - prev.Confidence)},
			{FeatureSymbolDensity, math.Abs(curr.SymbolDensity - prev.SymbolDensity)},
			{FeatureLineBreaks, math.Abs(curr.LineBreaks - prev.LineBreaks)},
		}

		v := Variation{FromPage: prev.PageNumber, ToPage: curr.PageNumber, Changes: []Change{}}
		for _, delta := range deltas {
			if delta.value > d.VariationThreshold {
				v.Changes = append(v.Changes, Change{
					Type:        delta.name,
					Difference:  delta.value,
					Description: Describe(delta.name, delta.value),
				})
			}
		}
		if len(v.Changes) > 0 {
			out = append(out, v)
		}
	}
	return out
}

// Describe renders a change as e.g. "Symbol Density changed by 25.0%"
func Describe(feature string, difference float64) string {
	words := strings.Split(feature, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return fmt.Sprintf("%s changed by %.1f%%", strings.Join(words, " "), difference*100)
}

func (d *Detector) pageAnomalies(page features.Page, pageNumber int) []Anomaly {
	conf, density, breaks := columns(page)
	confMean, confStd := stats.MeanStd(conf)
	densityMean, densityStd := stats.MeanStd(density)
	breaksMean, breaksStd := stats.MeanStd(breaks)

	var out []Anomaly
	for i := range page {
		a := Anomaly{
			Confidence:     d.outlier(conf[i], confMean, confStd),
			SymbolDensity:  d.outlier(density[i], densityMean, densityStd),
			LineBreaks:     d.outlier(breaks[i], breaksMean, breaksStd),
			ParagraphIndex: i,
			PageNumber:     pageNumber,
		}
		if a.Confidence != nil || a.SymbolDensity != nil || a.LineBreaks != nil {
			out = append(out, a)
		}
	}
	return out
}

// outlier returns nil unless value is more than Sigma deviations from mean.
// A page with zero spread has no outliers.
func (d *Detector) outlier(value, mean, std float64) *Deviation {
	if std <= 0 {
		return nil
	}
	diff := math.Abs(value - mean)
	if diff <= d.Sigma*std {
		return nil
	}
	return &Deviation{Value: value, Mean: mean, Deviation: diff / std}
}

func columns(page features.Page) (conf, density, breaks []float64) {
	conf = make([]float64, len(page))
	density = make([]float64, len(page))
	breaks = make([]float64, len(page))
	for i, r := range page {
		conf[i] = r.Confidence
		density[i] = r.SymbolDensity
		breaks[i] = float64(r.LineBreaks)
	}
	return conf, density, breaks
}
