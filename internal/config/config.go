/**
 * Configuration for inkcompare
 *
 * Loads configuration from environment variables (optionally seeded from .env)
 */

package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds service configuration
type Config struct {
	// HTTP server
	Port string `validate:"required,numeric"`

	// Redis configuration (queue and optional redis cache)
	RedisURL  string `validate:"required_if=CacheBackend redis"`
	QueueName string `validate:"required"`

	// PostgreSQL comparison history (optional)
	DatabaseURL string

	// Qdrant segment embedding cache (optional)
	QdrantURL        string
	QdrantCollection string `validate:"required_with=QdrantURL"`

	// Recognition oracles
	OCRProvider        string `validate:"oneof=vision tesseract"`
	GoogleCloudAPIKey  string `validate:"required_if=OCRProvider vision"`
	TesseractLanguages []string
	MathpixAppID       string `validate:"required_with=MathpixAppKey"`
	MathpixAppKey      string `validate:"required_with=MathpixAppID"`

	// Embedding oracle
	EmbeddingProvider    string `validate:"oneof=voyage openai gemini none"`
	VoyageAPIKey         string `validate:"required_if=EmbeddingProvider voyage"`
	OpenAIAPIKey         string `validate:"required_if=EmbeddingProvider openai"`
	OpenAIEmbeddingModel string
	GeminiAPIKey         string `validate:"required_if=EmbeddingProvider gemini"`
	GeminiEmbeddingModel string
	EmbeddingDimensions  int `validate:"gte=0,lte=8192"`

	// Content cache
	CacheBackend string `validate:"oneof=file redis badger"`
	CacheDir     string `validate:"required_if=CacheBackend file"`
	BadgerPath   string `validate:"required_if=CacheBackend badger"`

	// Artifacts
	ReportsDir string `validate:"required"`
	TempDir    string

	// Pipeline configuration
	ExtractConcurrency int   `validate:"gte=1,lte=64"`
	PageTimeout        int   `validate:"gte=1000"` // milliseconds
	PageRetries        int   `validate:"gte=1,lte=10"`
	ProcessingTimeout  int   `validate:"gte=1000"` // milliseconds
	WorkerConcurrency  int   `validate:"gte=1,lte=100"`
	MaxFileSize        int64 `validate:"gte=1024,lte=1073741824"`
	RasterDPI          int   `validate:"gte=72,lte=1200"`
	PdftoppmPath       string

	// Similarity tuning
	WeightText                float64 `validate:"gte=0,lte=1"`
	TextMatchThreshold        float64 `validate:"gte=0,lte=1"`
	HandwritingMatchThreshold float64 `validate:"gte=0,lte=1"`
	ConsistencyThreshold      float64 `validate:"gte=0,lte=1"`
	WeightConfidence          float64 `validate:"gte=0,lte=1"`
	WeightSymbolDensity       float64 `validate:"gte=0,lte=1"`
	WeightLineBreaks          float64 `validate:"gte=0,lte=1"`
	WeightAvgConfidence       float64 `validate:"gte=0,lte=1"`

	// Logging
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=text json"`
}

var validate = validator.New()

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:                      getEnvOrDefault("PORT", "8080"),
		RedisURL:                  getEnvOrDefault("REDIS_URL", ""),
		QueueName:                 getEnvOrDefault("QUEUE_NAME", "inkcompare"),
		DatabaseURL:               getEnvOrDefault("DATABASE_URL", ""),
		QdrantURL:                 getEnvOrDefault("QDRANT_URL", ""),
		QdrantCollection:          getEnvOrDefault("QDRANT_COLLECTION", "inkcompare_segments"),
		OCRProvider:               getEnvOrDefault("OCR_PROVIDER", "vision"),
		GoogleCloudAPIKey:         getEnvOrDefault("GOOGLE_CLOUD_API_KEY", ""),
		TesseractLanguages:        getEnvAsListOrDefault("TESSERACT_LANGUAGES", []string{"eng"}),
		MathpixAppID:              getEnvOrDefault("MATHPIX_APP_ID", ""),
		MathpixAppKey:             getEnvOrDefault("MATHPIX_APP_KEY", ""),
		EmbeddingProvider:         getEnvOrDefault("EMBEDDING_PROVIDER", "none"),
		VoyageAPIKey:              getEnvOrDefault("VOYAGE_API_KEY", ""),
		OpenAIAPIKey:              getEnvOrDefault("OPENAI_API_KEY", ""),
		OpenAIEmbeddingModel:      getEnvOrDefault("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		GeminiAPIKey:              getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiEmbeddingModel:      getEnvOrDefault("GEMINI_EMBEDDING_MODEL", "text-embedding-004"),
		EmbeddingDimensions:       getEnvAsIntOrDefault("EMBEDDING_DIMENSIONS", 0),
		CacheBackend:              getEnvOrDefault("CACHE_BACKEND", "file"),
		CacheDir:                  getEnvOrDefault("CACHE_DIR", "cached_data"),
		BadgerPath:                getEnvOrDefault("BADGER_PATH", "cached_data/badger"),
		ReportsDir:                getEnvOrDefault("REPORTS_DIR", "reports"),
		TempDir:                   getEnvOrDefault("TEMP_DIR", ""),
		ExtractConcurrency:        getEnvAsIntOrDefault("EXTRACT_CONCURRENCY", 4),
		PageTimeout:               getEnvAsIntOrDefault("PAGE_TIMEOUT", 120000),      // 2 minutes
		PageRetries:               getEnvAsIntOrDefault("PAGE_RETRIES", 2),
		ProcessingTimeout:         getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 600000), // 10 minutes
		WorkerConcurrency:         getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		MaxFileSize:               getEnvAsInt64OrDefault("MAX_FILE_SIZE", 16777216), // 16MB
		RasterDPI:                 getEnvAsIntOrDefault("RASTER_DPI", 200),
		PdftoppmPath:              getEnvOrDefault("PDFTOPPM_PATH", "pdftoppm"),
		WeightText:                getEnvAsFloatOrDefault("WEIGHT_TEXT", 0.5),
		TextMatchThreshold:        getEnvAsFloatOrDefault("TEXT_MATCH_THRESHOLD", 0.90),
		HandwritingMatchThreshold: getEnvAsFloatOrDefault("HANDWRITING_MATCH_THRESHOLD", 0.80),
		ConsistencyThreshold:      getEnvAsFloatOrDefault("CONSISTENCY_THRESHOLD", 0.5),
		WeightConfidence:          getEnvAsFloatOrDefault("HW_WEIGHT_CONFIDENCE", 0.3),
		WeightSymbolDensity:       getEnvAsFloatOrDefault("HW_WEIGHT_SYMBOL_DENSITY", 0.3),
		WeightLineBreaks:          getEnvAsFloatOrDefault("HW_WEIGHT_LINE_BREAKS", 0.2),
		WeightAvgConfidence:       getEnvAsFloatOrDefault("HW_WEIGHT_AVG_CONFIDENCE", 0.2),
		LogLevel:                  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		LogFormat:                 strings.ToLower(getEnvOrDefault("LOG_FORMAT", "text")),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	sum := c.WeightConfidence + c.WeightSymbolDensity + c.WeightLineBreaks + c.WeightAvgConfidence
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("handwriting weights must sum to 1.0, got %.4f", sum)
	}

	return nil
}

// PageTimeoutDuration returns the per-page recognition timeout
func (c *Config) PageTimeoutDuration() time.Duration {
	return time.Duration(c.PageTimeout) * time.Millisecond
}

// ProcessingTimeoutDuration returns the whole-comparison timeout
func (c *Config) ProcessingTimeoutDuration() time.Duration {
	return time.Duration(c.ProcessingTimeout) * time.Millisecond
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsFloatOrDefault gets environment variable as float64 or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsListOrDefault splits a comma separated environment variable
func getEnvAsListOrDefault(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
