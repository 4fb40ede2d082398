package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/repository/cache"
	"github.com/ichnaea-service/internal/repository/postgres"
)

// HealthHandler answers liveness and readiness probes.
type HealthHandler struct {
	db     *postgres.DB
	redis  *cache.Redis
	logger *zap.Logger
}

func NewHealthHandler(db *postgres.DB, redis *cache.Redis, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, logger: logger}
}

// Live handles GET /__lbheartbeat__: the process is up.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Ready handles GET /__heartbeat__: the backing stores answer.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	status := fiber.StatusOK
	dbOK, redisOK := true, true

	if err := h.db.Health(c.UserContext()); err != nil {
		h.logger.Warn("Database health check failed", zap.Error(err))
		dbOK = false
		status = fiber.StatusServiceUnavailable
	}
	if err := h.redis.Health(c.UserContext()); err != nil {
		h.logger.Warn("Redis health check failed", zap.Error(err))
		redisOK = false
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(fiber.Map{
		"database": dbOK,
		"redis":    redisOK,
	})
}
