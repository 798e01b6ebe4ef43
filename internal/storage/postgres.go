/**
 * PostgreSQL comparison history
 *
 * Records every completed comparison so results can be fetched by id after
 * the HTTP request or queue task that produced them has finished.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"

	"github.com/adverant/nexus/inkcompare/internal/models"
)

// ErrComparisonNotFound is returned when no history row exists for an id
var ErrComparisonNotFound = errors.New("comparison not found")

const historySchema = `
	CREATE SCHEMA IF NOT EXISTS inkcompare;
	CREATE TABLE IF NOT EXISTS inkcompare.comparisons (
		id                     UUID PRIMARY KEY,
		cache_key              TEXT NOT NULL,
		text_similarity        NUMERIC(5,4) NOT NULL,
		handwriting_similarity NUMERIC(5,4) NOT NULL,
		similarity_index       NUMERIC(5,4) NOT NULL,
		text_method            TEXT NOT NULL,
		cache_hit              BOOLEAN NOT NULL DEFAULT FALSE,
		report_id              TEXT,
		result                 JSONB NOT NULL,
		created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS comparisons_cache_key_idx ON inkcompare.comparisons (cache_key);
`

// HistoryRecord is one stored comparison
type HistoryRecord struct {
	ID        string
	ReportID  string
	Result    *models.Result
	CreatedAt time.Time
}

// HistoryStore persists comparison results to PostgreSQL
type HistoryStore struct {
	db *sql.DB
}

// sanitizeScore rounds to 4 decimals and clamps to [0, 1] to fit NUMERIC(5,4)
func sanitizeScore(score float64) float64 {
	if score != score || score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return float64(int(score*10000+0.5)) / 10000
}

// NewHistoryStore connects to databaseURL and creates the schema if needed
func NewHistoryStore(databaseURL string) (*HistoryStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}

	return &HistoryStore{db: db}, nil
}

// Record upserts the result under its comparison id
func (p *HistoryStore) Record(ctx context.Context, result *models.Result, reportID string) error {
	if result == nil || result.ComparisonID == "" {
		return fmt.Errorf("comparison ID is required")
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	resultJSON = sanitizeJSONForPostgres(resultJSON)

	query := `
		INSERT INTO inkcompare.comparisons (
			id, cache_key, text_similarity, handwriting_similarity, similarity_index,
			text_method, cache_hit, report_id, result, created_at, updated_at
		) VALUES (
			$1::uuid, $2, $3::NUMERIC(5,4), $4::NUMERIC(5,4), $5::NUMERIC(5,4),
			$6, $7, NULLIF($8, ''), $9::jsonb, NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			cache_key = EXCLUDED.cache_key,
			text_similarity = EXCLUDED.text_similarity,
			handwriting_similarity = EXCLUDED.handwriting_similarity,
			similarity_index = EXCLUDED.similarity_index,
			text_method = EXCLUDED.text_method,
			cache_hit = EXCLUDED.cache_hit,
			report_id = COALESCE(EXCLUDED.report_id, inkcompare.comparisons.report_id),
			result = EXCLUDED.result,
			updated_at = NOW()
	`

	_, err = p.db.ExecContext(ctx, query,
		result.ComparisonID,
		result.CacheKey,
		sanitizeScore(result.TextSimilarity),
		sanitizeScore(result.HandwritingSimilarity),
		sanitizeScore(result.SimilarityIndex),
		result.TextMethod,
		result.CacheHit,
		reportID,
		resultJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to record comparison (id=%s, index=%.4f): %w",
			result.ComparisonID, sanitizeScore(result.SimilarityIndex), err)
	}
	return nil
}

// Get returns the stored comparison for id
func (p *HistoryStore) Get(ctx context.Context, id string) (*HistoryRecord, error) {
	query := `
		SELECT id, report_id, result, created_at
		FROM inkcompare.comparisons
		WHERE id = $1::uuid
	`

	var (
		rec        HistoryRecord
		reportID   sql.NullString
		resultJSON []byte
	)
	err := p.db.QueryRowContext(ctx, query, id).Scan(&rec.ID, &reportID, &resultJSON, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrComparisonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get comparison: %w", err)
	}

	rec.ReportID = reportID.String
	rec.Result = &models.Result{}
	if err := json.Unmarshal(resultJSON, rec.Result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	rec.Result.Normalize()
	return &rec, nil
}

// Ping checks database connectivity
func (p *HistoryStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *HistoryStore) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// jsonEscape matches an escaped backslash or a control character escape.
// Escaped backslashes are consumed as pairs so the encoded form of a literal
// backslash followed by "u0001" is left alone.
var jsonEscape = regexp.MustCompile(`\\(?:\\|u00[01][0-9a-fA-F])`)

// sanitizeJSONForPostgres strips escapes JSONB rejects. OCR text can carry
// NUL and other control characters: NUL is dropped, the rest become spaces.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	return jsonEscape.ReplaceAllFunc(jsonBytes, func(m []byte) []byte {
		switch {
		case m[1] == '\\':
			return m
		case string(m) == `\u0000`:
			return []byte{}
		default:
			return []byte(" ")
		}
	})
}
