// internal/storage/embeddings.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/redis/go-redis/v9"

	"resume-matcher/internal/common/logger"
	"resume-matcher/internal/common/metrics"
	"resume-matcher/internal/models"
)

const embeddingCachePrefix = "embedding:applicant:"

// EmbeddingStore reads applicant embeddings from Postgres. Single lookups go
// through a Redis cache keyed on the row's updated_at, so a newer write in
// Postgres always wins over a cached vector.
type EmbeddingStore struct {
	db     *sql.DB
	redis  *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

type cachedEmbedding struct {
	UpdatedAt time.Time `json:"updated_at"`
	Vector    []float64 `json:"vector"`
}

func NewEmbeddingStore(db *sql.DB, rdb *redis.Client, ttl time.Duration, log logger.Logger) *EmbeddingStore {
	return &EmbeddingStore{
		db:     db,
		redis:  rdb,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"store": "embeddings"}),
	}
}

// ApplicantEmbedding returns the applicant's latest vector. found is false when
// the applicant has no stored embedding.
func (s *EmbeddingStore) ApplicantEmbedding(ctx context.Context, applicantID string) ([]float64, bool, error) {
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT updated_at FROM applicant_embeddings
		WHERE applicant_id = $1 AND embedding IS NOT NULL`, applicantID).Scan(&updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query applicant embedding version %s: %w", applicantID, err)
	}

	cacheKey := embeddingCachePrefix + applicantID
	if vec, ok := s.cached(ctx, cacheKey, applicantID, updatedAt); ok {
		metrics.CacheLookups.WithLabelValues("embeddings", "hit").Inc()
		return vec, true, nil
	}
	if s.redis != nil {
		metrics.CacheLookups.WithLabelValues("embeddings", "miss").Inc()
	}

	var v pgvector.Vector
	err = s.db.QueryRowContext(ctx, `
		SELECT embedding, updated_at FROM applicant_embeddings
		WHERE applicant_id = $1 AND embedding IS NOT NULL`, applicantID).Scan(&v, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query applicant embedding %s: %w", applicantID, err)
	}

	vec := toFloat64(v)
	if len(vec) == 0 {
		return nil, false, nil
	}

	if s.redis != nil {
		data, _ := json.Marshal(cachedEmbedding{UpdatedAt: updatedAt, Vector: vec})
		if err := s.redis.Set(ctx, cacheKey, data, s.ttl).Err(); err != nil {
			s.logger.Warn("embedding cache write failed", map[string]interface{}{
				"applicant_id": applicantID,
				"error":        err,
			})
		}
	}
	return vec, true, nil
}

// cached returns the cached vector when it was taken from the row version
// stored at updatedAt.
func (s *EmbeddingStore) cached(ctx context.Context, key, applicantID string, updatedAt time.Time) ([]float64, bool) {
	if s.redis == nil {
		return nil, false
	}
	val, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("embedding cache read failed", map[string]interface{}{
				"applicant_id": applicantID,
				"error":        err,
			})
		}
		return nil, false
	}
	var entry cachedEmbedding
	if err := json.Unmarshal([]byte(val), &entry); err != nil || len(entry.Vector) == 0 {
		return nil, false
	}
	if !entry.UpdatedAt.Equal(updatedAt) {
		return nil, false
	}
	return entry.Vector, true
}

// AllApplicantEmbeddings returns every stored embedding keyed by applicant.
func (s *EmbeddingStore) AllApplicantEmbeddings(ctx context.Context) (map[string][]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT applicant_id, embedding FROM applicant_embeddings
		WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("query applicant embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float64)
	for rows.Next() {
		var (
			id string
			v  pgvector.Vector
		)
		if err := rows.Scan(&id, &v); err != nil {
			return nil, fmt.Errorf("scan applicant embedding: %w", err)
		}
		out[id] = toFloat64(v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applicant embeddings: %w", err)
	}
	return out, nil
}

// Upsert stores the applicant's embedding, replacing any previous vector, and
// drops the cached copy.
func (s *EmbeddingStore) Upsert(ctx context.Context, e models.ApplicantEmbedding) error {
	if !e.Usable() {
		return fmt.Errorf("embedding for %s is empty", e.ApplicantID)
	}
	recordedAt := e.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO applicant_embeddings (applicant_id, embedding, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (applicant_id) DO UPDATE
		SET embedding = EXCLUDED.embedding, updated_at = EXCLUDED.updated_at`,
		e.ApplicantID, toVector(e.Vector), recordedAt)
	if err != nil {
		return fmt.Errorf("upsert applicant embedding %s: %w", e.ApplicantID, err)
	}

	if s.redis != nil {
		if err := s.redis.Del(ctx, embeddingCachePrefix+e.ApplicantID).Err(); err != nil {
			s.logger.Warn("embedding cache invalidation failed", map[string]interface{}{
				"applicant_id": e.ApplicantID,
				"error":        err,
			})
		}
	}
	return nil
}
