/**
 * Storage Manager for inkcompare
 *
 * Builds and owns every persistence dependency of the pipeline: the content
 * cache backend, the optional PostgreSQL history and the optional Qdrant
 * segment embedding cache.
 */

package storage

import (
	"fmt"

	"github.com/adverant/nexus/inkcompare/internal/config"
	"github.com/adverant/nexus/inkcompare/internal/logging"
)

// Manager holds the storage layer built from configuration
type Manager struct {
	Cache      *Cache
	History    *HistoryStore
	Embeddings *EmbeddingCache

	logger *logging.Logger
}

// NewManager opens the configured cache backend. History and the embedding
// cache are optional: when their URL is set but the service is unreachable
// the manager logs a warning and continues without them.
func NewManager(cfg *config.Config) (*Manager, error) {
	logger := logging.NewLogger("storage")

	backend, err := NewBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s cache: %w", cfg.CacheBackend, err)
	}

	m := &Manager{
		Cache:  NewCache(backend),
		logger: logger,
	}

	if cfg.DatabaseURL != "" {
		history, err := NewHistoryStore(cfg.DatabaseURL)
		if err != nil {
			logger.Warn("Comparison history disabled", "error", err)
		} else {
			m.History = history
			logger.Info("Comparison history connected")
		}
	}

	if cfg.QdrantURL != "" && cfg.EmbeddingProvider != "none" {
		embeddings, err := NewEmbeddingCache(cfg.QdrantURL, cfg.QdrantCollection, cfg.EmbeddingDimensions)
		if err != nil {
			logger.Warn("Embedding cache disabled", "error", err)
		} else {
			m.Embeddings = embeddings
			logger.Info("Embedding cache connected", "collection", cfg.QdrantCollection)
		}
	}

	return m, nil
}

// NewBackend builds the cache backend named by cfg.CacheBackend
func NewBackend(cfg *config.Config) (CacheBackend, error) {
	switch cfg.CacheBackend {
	case "", "file":
		return NewFileBackend(cfg.CacheDir)
	case "redis":
		return NewRedisBackend(cfg.RedisURL)
	case "badger":
		bc := DefaultBadgerConfig(cfg.BadgerPath)
		bc.Logger = logging.NewLogger("badger").Slog()
		return NewBadgerBackend(bc)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// Close closes every open store and returns the first error
func (m *Manager) Close() error {
	var firstErr error
	record := func(what string, err error) {
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close %s: %w", what, err)
		}
	}

	if m.Cache != nil {
		record("cache", m.Cache.Close())
	}
	if m.History != nil {
		record("PostgreSQL", m.History.Close())
	}
	if m.Embeddings != nil {
		record("Qdrant", m.Embeddings.Close())
	}
	return firstErr
}
