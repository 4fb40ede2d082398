package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/domain"
)

// fallbackCacheKey fingerprints a query for the shared provider cache.
// The canonical form sorts network ids so equivalent queries hit the
// same entry regardless of client ordering.
func fallbackCacheKey(providerName string, query *domain.LocateQuery) string {
	type canonical struct {
		Provider string   `json:"provider"`
		Blues    []string `json:"blues,omitempty"`
		Wifis    []string `json:"wifis,omitempty"`
		Cells    []string `json:"cells,omitempty"`
	}
	c := canonical{Provider: providerName}
	for i := range query.Blues {
		c.Blues = append(c.Blues, string(query.Blues[i].MAC))
	}
	for i := range query.Wifis {
		c.Wifis = append(c.Wifis, string(query.Wifis[i].MAC))
	}
	for _, id := range queryCellIDs(query) {
		c.Cells = append(c.Cells, id.String())
	}
	sort.Strings(c.Blues)
	sort.Strings(c.Wifis)
	sort.Strings(c.Cells)

	payload, _ := json.Marshal(c)
	sum := sha256.Sum256(payload)
	return "fallback:" + hex.EncodeToString(sum[:])
}

type cachedFallback struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Accuracy float64 `json:"accuracy"`
	// Miss marks a cached negative answer.
	Miss bool `json:"miss,omitempty"`
}

// positionFromFallback asks the key's configured external provider.
// Results, including misses, are cached per canonical query; the
// provider's own rate limit is enforced before any outbound call.
func (uc *LocateUseCase) positionFromFallback(ctx context.Context, query *domain.LocateQuery, now time.Time) (*domain.LocateResult, error) {
	key := query.APIKey
	if key == nil || !key.AllowFallback || key.FallbackURL == "" {
		return nil, nil
	}
	// The client can opt out of every fallback via the query flags.
	if !query.Fallbacks.IPF && !query.Fallbacks.LACF {
		return nil, nil
	}
	// An IP-only query has nothing to forward.
	if len(query.Blues)+len(query.Wifis)+len(query.Cells) == 0 {
		return nil, nil
	}

	cacheKey := fallbackCacheKey(key.FallbackName, query)
	if cached, err := uc.cache.Get(ctx, cacheKey); err != nil {
		uc.logger.Warn("Fallback cache read failed", zap.Error(err))
	} else if cached != nil {
		var entry cachedFallback
		if json.Unmarshal(cached, &entry) == nil {
			if entry.Miss {
				return nil, nil
			}
			// The wire fallback marker is reserved for "lacf" and
			// "ipf"; provider answers carry none.
			return &domain.LocateResult{
				Lat:      entry.Lat,
				Lon:      entry.Lon,
				Accuracy: entry.Accuracy,
				Source:   domain.ResultFallback,
			}, nil
		}
	}

	if key.FallbackRateLimit > 0 {
		allowed, _, err := uc.rateLimits.CheckAndIncrement(ctx, "fallback:"+key.FallbackName, "provider", now, key.FallbackRateLimit)
		if err != nil {
			uc.logger.Warn("Fallback rate limit check failed", zap.Error(err))
			return nil, nil
		}
		if !allowed {
			uc.logger.Debug("Fallback provider rate limited",
				zap.String("provider", key.FallbackName))
			return nil, nil
		}
	}

	result, err := uc.fallback.Locate(ctx, key.FallbackURL, query)
	if err != nil {
		// Provider trouble degrades to the remaining sources instead of
		// failing the query.
		uc.logger.Warn("Fallback provider call failed",
			zap.String("provider", key.FallbackName), zap.Error(err))
		return nil, nil
	}

	ttl := time.Duration(key.FallbackCacheSeconds()) * time.Second
	entry := cachedFallback{Miss: result == nil}
	if result != nil {
		entry.Lat, entry.Lon, entry.Accuracy = result.Lat, result.Lon, result.Accuracy
		result.Fallback = ""
	}
	if payload, err := json.Marshal(entry); err == nil {
		if err := uc.cache.Set(ctx, cacheKey, payload, ttl); err != nil {
			uc.logger.Warn("Fallback cache write failed", zap.Error(err))
		}
	}
	return result, nil
}
