// Package metrics holds the prometheus instruments of the comparison
// pipeline. Everything registers on the default registry and is served by
// the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ComparisonStates counts pipeline state transitions
	ComparisonStates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkcompare_comparison_states_total",
		Help: "Comparison pipeline state transitions by state",
	}, []string{"state"})

	// Comparisons counts finished comparisons by outcome
	Comparisons = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkcompare_comparisons_total",
		Help: "Finished comparisons by outcome and cache result",
	}, []string{"outcome", "cache"})

	// ComparisonDuration tracks end-to-end comparison latency
	ComparisonDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inkcompare_comparison_duration_seconds",
		Help:    "Comparison duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 16), // 10ms to ~5.5min
	}, []string{"cache"})

	// PagesRecognized counts page recognition calls by recognizer and status
	PagesRecognized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkcompare_pages_recognized_total",
		Help: "Page recognition calls by recognizer and status",
	}, []string{"recognizer", "status"})

	// PageDuration tracks per-page recognition latency including retries
	PageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inkcompare_page_duration_seconds",
		Help:    "Page recognition duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"recognizer"})

	// CacheErrors counts non-fatal cache failures
	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkcompare_cache_errors_total",
		Help: "Non-fatal cache failures by operation",
	}, []string{"operation"})

	// SimilarityIndex records the distribution of produced similarity indices
	SimilarityIndex = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "inkcompare_similarity_index",
		Help:    "Similarity index of finished comparisons",
		Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
	})
)
