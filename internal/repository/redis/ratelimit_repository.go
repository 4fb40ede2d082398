package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/domain/repository"
)

// rateLimitTTL keeps day counters around long enough to span timezone
// skew between clients and the service.
const rateLimitTTL = 48 * time.Hour

type rateLimitRepository struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRateLimitRepository(client *redis.Client, logger *zap.Logger) repository.RateLimitRepository {
	return &rateLimitRepository{client: client, logger: logger}
}

// CheckAndIncrement atomically bumps the per (key, path, day) counter.
// The INCR result is authoritative, so concurrent callers see strictly
// increasing counts and exactly maxReq of them are allowed.
func (r *rateLimitRepository) CheckAndIncrement(
	ctx context.Context,
	key, path string,
	day time.Time,
	maxReq int,
) (bool, int, error) {
	counter := fmt.Sprintf("apilimit:%s:%s:%s", key, path, day.UTC().Format("20060102"))

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, counter)
	pipe.Expire(ctx, counter, rateLimitTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to increment rate limit",
			zap.String("counter", counter),
			zap.Error(err))
		return false, 0, fmt.Errorf("ratelimit error: %w", err)
	}

	used := incr.Val()
	if maxReq <= 0 {
		return true, 0, nil
	}
	remaining := maxReq - int(used)
	if remaining < 0 {
		remaining = 0
	}
	return used <= int64(maxReq), remaining, nil
}
