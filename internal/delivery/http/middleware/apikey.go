package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/domain"
	"github.com/ichnaea-service/internal/domain/repository"
	"github.com/ichnaea-service/internal/pkg/utils"
)

// apiKeyLocal is the fiber locals slot holding the resolved key record.
const apiKeyLocal = "apiKey"

// Permission selects which per-key allow flag gates an endpoint.
type Permission int

const (
	PermitLocate Permission = iota
	PermitRegion
	PermitSubmit
)

// APIKey resolves and enforces the key policy: the key must exist, must
// allow the endpoint, and must be under its daily request limit.
func APIKey(
	keys repository.KeyRepository,
	limits repository.RateLimitRepository,
	permission Permission,
	logger *zap.Logger,
) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Query("key")
		if raw == "" {
			return utils.SendKeyError(c)
		}

		key, err := keys.Get(c.UserContext(), raw)
		if err != nil {
			logger.Error("API key lookup failed", zap.Error(err))
			return utils.SendError(c, err)
		}
		if key == nil || !allowed(key, permission) {
			return utils.SendKeyError(c)
		}

		if key.MaxReq > 0 {
			ok, _, err := limits.CheckAndIncrement(c.UserContext(), key.Key, c.Path(), time.Now().UTC(), key.MaxReq)
			if err != nil {
				// A broken limiter must not take the API down.
				logger.Warn("Rate limit check failed", zap.Error(err))
			} else if !ok {
				return utils.SendLimitExceeded(c)
			}
		}

		c.Locals(apiKeyLocal, key)
		return c.Next()
	}
}

// KeyFromContext returns the key record resolved by the APIKey
// middleware.
func KeyFromContext(c *fiber.Ctx) *domain.APIKey {
	key, _ := c.Locals(apiKeyLocal).(*domain.APIKey)
	return key
}

func allowed(key *domain.APIKey, permission Permission) bool {
	switch permission {
	case PermitLocate:
		return key.AllowLocate
	case PermitRegion:
		return key.AllowRegion
	default:
		return true
	}
}
