package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/keyword-intel/internal/core/domain"
	"github.com/kirillkom/keyword-intel/internal/core/keyspace"
	"github.com/kirillkom/keyword-intel/internal/infrastructure/schema"
)

// CacheStore keeps SERP documents and volume rows as JSONB. Timestamps are
// assigned and compared by the database.
type CacheStore struct {
	db         *sql.DB
	staleAfter time.Duration
	logger     *slog.Logger
}

func NewCacheStore(db *sql.DB, staleAfter time.Duration, logger *slog.Logger) *CacheStore {
	if staleAfter <= 0 {
		staleAfter = domain.StaleAfter
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheStore{db: db, staleAfter: staleAfter, logger: logger}
}

func (s *CacheStore) GetSerp(ctx context.Context, key string) (domain.SerpLookup, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT payload, updated_at, now()
FROM serp_cache
WHERE cache_key = $1
`, keyspace.StorageKey(key))

	var payload []byte
	var updatedAt, dbNow time.Time
	if err := row.Scan(&payload, &updatedAt, &dbNow); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SerpLookup{Outcome: domain.CacheMiss}, nil
		}
		return domain.SerpLookup{}, wrapStoreError("get serp cache", err)
	}

	age := dbNow.Sub(updatedAt)
	if domain.Freshness(age, s.staleAfter) == domain.CacheStale {
		return domain.SerpLookup{Outcome: domain.CacheStale, Age: age}, nil
	}

	doc, partial, err := schema.DecodeSerpDocument(payload)
	if err != nil {
		s.logger.Warn("serp_cache_decode_failed", "key", key, "error", err)
		return domain.SerpLookup{Outcome: domain.CacheMiss, Age: age}, nil
	}
	if partial {
		s.logger.Warn("serp_cache_partial_recovery", "key", key)
	}
	doc.UpdatedAt = updatedAt
	return domain.SerpLookup{Outcome: domain.CacheFresh, Document: doc, Partial: partial, Age: age}, nil
}

func (s *CacheStore) PutSerp(ctx context.Context, doc *domain.SerpDocument) error {
	if doc == nil || doc.Key == "" {
		return domain.WrapError(domain.ErrInvalidInput, "put serp cache", errors.New("document key is required"))
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal serp document: %w", err)
	}
	keywords, err := json.Marshal(doc.Keywords)
	if err != nil {
		return fmt.Errorf("marshal serp keywords: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO serp_cache (cache_key, keywords, region, language, payload, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (cache_key) DO UPDATE
SET keywords = EXCLUDED.keywords,
	region = EXCLUDED.region,
	language = EXCLUDED.language,
	payload = EXCLUDED.payload,
	updated_at = GREATEST(serp_cache.updated_at, EXCLUDED.updated_at)
`, keyspace.StorageKey(doc.Key), keywords, doc.Region, doc.Language, payload)
	if err != nil {
		return wrapStoreError("put serp cache", err)
	}
	return nil
}

// MergeResultField attaches patch to the organic result of keyword whose URL
// equals matchURL. It rewrites the whole document without a lock, so
// concurrent merges are last-writer-wins. updated_at is not touched.
func (s *CacheStore) MergeResultField(ctx context.Context, key, keyword, matchURL string, patch domain.HTMLAnalysis) error {
	storageKey := keyspace.StorageKey(key)
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM serp_cache WHERE cache_key = $1`, storageKey)

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("serp_merge_skipped", "reason", "document not found", "key", key)
			return domain.WrapError(domain.ErrNotFound, "merge serp result", fmt.Errorf("cache key %q", key))
		}
		return wrapStoreError("merge serp result", err)
	}

	doc, _, err := schema.DecodeSerpDocument(payload)
	if err != nil {
		s.logger.Warn("serp_merge_skipped", "reason", "undecodable document", "key", key, "error", err)
		return err
	}

	result, ok := doc.Results[keyword]
	if !ok {
		s.logger.Warn("serp_merge_skipped", "reason", "keyword not found", "key", key, "keyword", keyword)
		return domain.WrapError(domain.ErrNotFound, "merge serp result", fmt.Errorf("keyword %q", keyword))
	}
	idx := -1
	for i := range result.OrganicResults {
		if result.OrganicResults[i].URL == matchURL {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.logger.Warn("serp_merge_skipped", "reason", "url not found", "key", key, "keyword", keyword, "url", matchURL)
		return domain.WrapError(domain.ErrNotFound, "merge serp result", fmt.Errorf("url %q", matchURL))
	}

	analysis := patch
	result.OrganicResults[idx].HTMLAnalysis = &analysis
	doc.Results[keyword] = result

	updated, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal merged serp document: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE serp_cache SET payload = $2 WHERE cache_key = $1`, storageKey, updated); err != nil {
		return wrapStoreError("merge serp result", err)
	}
	return nil
}

// GetVolumes returns fresh rows keyed by lower-cased keyword.
func (s *CacheStore) GetVolumes(ctx context.Context, keywords []string, region, language string) (map[string]domain.CachedVolume, error) {
	out := make(map[string]domain.CachedVolume)
	if len(keywords) == 0 {
		return out, nil
	}
	keys := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		keys = append(keys, volumeKey(kw))
	}
	keysJSON, err := json.Marshal(keys)
	if err != nil {
		return nil, fmt.Errorf("marshal volume keys: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT keyword_key, payload, updated_at, now()
FROM volume_cache
WHERE region = $1 AND language = $2
	AND keyword_key IN (SELECT jsonb_array_elements_text($3::jsonb))
`, region, language, keysJSON)
	if err != nil {
		return nil, wrapStoreError("get volume cache", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var payload []byte
		var updatedAt, dbNow time.Time
		if err := rows.Scan(&key, &payload, &updatedAt, &dbNow); err != nil {
			return nil, wrapStoreError("scan volume cache", err)
		}
		age := dbNow.Sub(updatedAt)
		if domain.Freshness(age, s.staleAfter) == domain.CacheStale {
			continue
		}
		var volume domain.KeywordVolume
		if err := json.Unmarshal(payload, &volume); err != nil || volume.Keyword == "" || volume.SearchVolume < 0 {
			s.logger.Warn("volume_cache_decode_failed", "keyword", key, "error", err)
			continue
		}
		out[key] = domain.CachedVolume{Volume: volume, UpdatedAt: updatedAt, Age: age}
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError("iterate volume cache", err)
	}
	return out, nil
}

// PutVolumes upserts all rows in one transaction.
func (s *CacheStore) PutVolumes(ctx context.Context, region, language string, volumes []domain.KeywordVolume) error {
	if len(volumes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapStoreError("begin volume cache tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, volume := range volumes {
		payload, err := json.Marshal(volume)
		if err != nil {
			return fmt.Errorf("marshal keyword volume: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO volume_cache (keyword_key, region, language, payload, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (keyword_key, region, language) DO UPDATE
SET payload = EXCLUDED.payload,
	updated_at = GREATEST(volume_cache.updated_at, EXCLUDED.updated_at)
`, volumeKey(volume.Keyword), region, language, payload)
		if err != nil {
			return wrapStoreError("put volume cache", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapStoreError("commit volume cache tx", err)
	}
	return nil
}

func volumeKey(keyword string) string {
	return strings.ToLower(strings.TrimSpace(keyword))
}
