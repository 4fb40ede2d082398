package repository

import (
	"context"
	"time"

	"github.com/ichnaea-service/internal/domain"
)

// KeyRepository resolves API keys to their typed policy records.
type KeyRepository interface {
	// Get returns nil without error for unknown keys.
	Get(ctx context.Context, key string) (*domain.APIKey, error)
}

// RateLimitRepository tracks per (key, path, day) usage counters.
type RateLimitRepository interface {
	// CheckAndIncrement atomically bumps the counter and reports whether
	// the call is allowed under maxReq (0 means unlimited) plus the
	// remaining budget.
	CheckAndIncrement(ctx context.Context, key, path string, day time.Time, maxReq int) (bool, int, error)
}

// CacheRepository is the shared key-value cache, used for fallback
// provider responses.
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
