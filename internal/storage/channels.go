// internal/storage/channels.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"resume-matcher/internal/common/logger"
	"resume-matcher/internal/common/metrics"
)

const channelCachePrefix = "channel:applicant:"

// ChannelStore resolves an applicant's notification handle, cached in Redis.
type ChannelStore struct {
	db     *sql.DB
	redis  *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewChannelStore(db *sql.DB, rdb *redis.Client, ttl time.Duration, log logger.Logger) *ChannelStore {
	return &ChannelStore{
		db:     db,
		redis:  rdb,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"store": "channels"}),
	}
}

// Resolve returns the handle registered for the applicant. Absence is not an
// error and is never cached.
func (s *ChannelStore) Resolve(ctx context.Context, applicantID string) (string, bool, error) {
	cacheKey := channelCachePrefix + applicantID
	if s.redis != nil {
		handle, err := s.redis.Get(ctx, cacheKey).Result()
		switch {
		case err == nil && handle != "":
			metrics.CacheLookups.WithLabelValues("channels", "hit").Inc()
			return handle, true, nil
		case err != nil && !errors.Is(err, redis.Nil):
			s.logger.Warn("channel cache read failed", map[string]interface{}{
				"applicant_id": applicantID,
				"error":        err,
			})
		}
		metrics.CacheLookups.WithLabelValues("channels", "miss").Inc()
	}

	var handle sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT channel_handle FROM notification_channels WHERE applicant_id = $1`,
		applicantID).Scan(&handle)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query notification channel %s: %w", applicantID, err)
	}
	if !handle.Valid || handle.String == "" {
		return "", false, nil
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, cacheKey, handle.String, s.ttl).Err(); err != nil {
			s.logger.Warn("channel cache write failed", map[string]interface{}{
				"applicant_id": applicantID,
				"error":        err,
			})
		}
	}
	return handle.String, true, nil
}
