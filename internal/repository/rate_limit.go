package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"employee_directory/pkg/logger"
)

type RateLimitRepository interface {
	// Hit counts one request against key in a fixed window and returns the
	// count so far.
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

type rateLimitRepository struct {
	redis *redis.Client
	log   logger.Logger
}

// NewRateLimitRepository returns a Redis backed counter, or one that never
// limits when rdb is nil.
func NewRateLimitRepository(rdb *redis.Client, log logger.Logger) RateLimitRepository {
	if rdb == nil {
		log.Warn("Redis disabled, rate limits are not enforced")
		return noRateLimit{}
	}
	return &rateLimitRepository{redis: rdb, log: log}
}

func (r *rateLimitRepository) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	key = "ratelimit:" + key

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		r.log.Error("Failed to increment rate limit", "error", err)
		return 0, err
	}

	if count == 1 {
		if err := r.redis.Expire(ctx, key, window).Err(); err != nil {
			r.log.Warn("Failed to set rate limit window", "error", err)
		}
	}
	return count, nil
}

type noRateLimit struct{}

func (noRateLimit) Hit(context.Context, string, time.Duration) (int64, error) {
	return 0, nil
}
