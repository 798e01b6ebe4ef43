/**
 * Content Cache for inkcompare
 *
 * Stores comparison results per ordered file pair and extracted text per
 * single file, so a repeated comparison never calls the recognition oracles.
 * Entries never expire.
 */

package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "github.com/adverant/nexus/inkcompare/internal/errors"
	"github.com/adverant/nexus/inkcompare/internal/features"
	"github.com/adverant/nexus/inkcompare/internal/logging"
	"github.com/adverant/nexus/inkcompare/internal/models"
	"github.com/adverant/nexus/inkcompare/internal/stats"
)

// ErrCacheMiss is returned by a backend when the key is absent
var ErrCacheMiss = errors.New("cache miss")

// CacheBackend is a raw key/value store for cache entries
type CacheBackend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Close() error
}

// ComparisonRecord is the cached outcome of comparing one ordered file pair
type ComparisonRecord struct {
	Result    models.Result     `json:"result"`
	Features1 features.Document `json:"features1"`
	Features2 features.Document `json:"features2"`
	Text1     string            `json:"text1"`
	Text2     string            `json:"text2"`
}

type textRecord struct {
	Text string `json:"text"`
}

// FileKey is the hex md5 of a file's bytes
func FileKey(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// PairKey is md5hex(FileKey(a) + FileKey(b)). Order matters.
func PairKey(a, b []byte) string {
	sum := md5.Sum([]byte(FileKey(a) + FileKey(b)))
	return hex.EncodeToString(sum[:])
}

// TextKey is the cache key for the text one recognizer extracted from a file
func TextKey(fileKey, source string) string {
	return "text-" + source + "-" + fileKey
}

// Cache is the typed layer over a CacheBackend
type Cache struct {
	backend CacheBackend
	logger  *logging.Logger
}

// NewCache wraps a backend
func NewCache(backend CacheBackend) *Cache {
	return &Cache{
		backend: backend,
		logger:  logging.NewLogger("cache"),
	}
}

// GetComparison returns the record for key. A missing or undecodable entry
// returns (nil, false, nil); backend failures return a CacheError.
func (c *Cache) GetComparison(ctx context.Context, key string) (*ComparisonRecord, bool, error) {
	var rec ComparisonRecord
	ok, err := c.load(ctx, key, &rec)
	if !ok || err != nil {
		return nil, false, err
	}
	rec.Result.Normalize()
	return &rec, true, nil
}

// PutComparison writes the record for key
func (c *Cache) PutComparison(ctx context.Context, key string, rec *ComparisonRecord) error {
	stored := *rec
	stored.Result.Normalize()
	stored.Features1 = finiteDocument(rec.Features1)
	stored.Features2 = finiteDocument(rec.Features2)
	return c.save(ctx, key, &stored)
}

// GetText returns the text source extracted from a file, if cached
func (c *Cache) GetText(ctx context.Context, fileKey, source string) (string, bool, error) {
	var rec textRecord
	ok, err := c.load(ctx, TextKey(fileKey, source), &rec)
	if !ok || err != nil {
		return "", false, err
	}
	return rec.Text, true, nil
}

// PutText stores the text source extracted from a file
func (c *Cache) PutText(ctx context.Context, fileKey, source, text string) error {
	return c.save(ctx, TextKey(fileKey, source), &textRecord{Text: text})
}

// Close releases the backend
func (c *Cache) Close() error {
	return c.backend.Close()
}

func (c *Cache) load(ctx context.Context, key string, v interface{}) (bool, error) {
	data, err := c.backend.Load(ctx, key)
	if errors.Is(err, ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewCacheError("read", key, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		c.logger.Warn("Discarding corrupt cache entry", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

func (c *Cache) save(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.NewCacheError("encode", key, err)
	}
	if err := c.backend.Save(ctx, key, data); err != nil {
		return apperrors.NewCacheError("write", key, fmt.Errorf("save %d bytes: %w", len(data), err))
	}
	return nil
}

func finiteDocument(doc features.Document) features.Document {
	out := make(features.Document, len(doc))
	for p, page := range doc {
		out[p] = make(features.Page, len(page))
		for i, r := range page {
			r.Confidence = stats.Finite(r.Confidence)
			r.SymbolDensity = stats.Finite(r.SymbolDensity)
			r.AverageSymbolConfidence = stats.Finite(r.AverageSymbolConfidence)
			out[p][i] = r
		}
	}
	return out
}
