package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/pkg/utils"
	"github.com/ichnaea-service/internal/usecase"
)

// StatsHandler exposes the published coverage statistics.
type StatsHandler struct {
	statsUC *usecase.StatsUseCase
	logger  *zap.Logger
}

func NewStatsHandler(statsUC *usecase.StatsUseCase, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{statsUC: statsUC, logger: logger}
}

type regionStatItem struct {
	Region string `json:"region"`
	GSM    int64  `json:"gsm"`
	WCDMA  int64  `json:"wcdma"`
	LTE    int64  `json:"lte"`
	Blue   int64  `json:"blue"`
	Wifi   int64  `json:"wifi"`
}

// RegionStats handles GET /v1/stats/regions.
func (h *StatsHandler) RegionStats(c *fiber.Ctx) error {
	stats, err := h.statsUC.Stats(c.UserContext())
	if err != nil {
		h.logger.Error("Region stats read failed", zap.Error(err))
		return utils.SendError(c, err)
	}

	items := make([]regionStatItem, len(stats))
	for i, s := range stats {
		items[i] = regionStatItem{
			Region: s.Region,
			GSM:    s.GSM,
			WCDMA:  s.WCDMA,
			LTE:    s.LTE,
			Blue:   s.Blue,
			Wifi:   s.Wifi,
		}
	}
	return c.JSON(fiber.Map{"regions": items})
}
