package usecase

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/config"
	"github.com/ichnaea-service/internal/domain/repository"
	"github.com/ichnaea-service/internal/geo"
)

// DatamapUseCase marks coverage grid cells as seen.
type DatamapUseCase struct {
	datamaps repository.DatamapRepository
	queues   repository.QueueRepository
	cfg      config.IngestConfig
	logger   *zap.Logger

	now func() time.Time
}

func NewDatamapUseCase(
	datamaps repository.DatamapRepository,
	queues repository.QueueRepository,
	cfg config.IngestConfig,
	logger *zap.Logger,
) *DatamapUseCase {
	return &DatamapUseCase{
		datamaps: datamaps,
		queues:   queues,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// ProcessQueue drains one datamap shard queue batch and upserts the
// grids. Returns the number of distinct grids written.
func (uc *DatamapUseCase) ProcessQueue(ctx context.Context, queue string) (int, error) {
	quadrant := geo.GridQuadrant(strings.TrimPrefix(queue, "update_datamap_"))

	payloads, err := uc.queues.DequeueUnique(ctx, queue, uc.cfg.BatchDatamap)
	if err != nil {
		return 0, err
	}
	if len(payloads) == 0 {
		return 0, nil
	}

	seen := make(map[geo.GridID]struct{}, len(payloads))
	grids := make([]geo.GridID, 0, len(payloads))
	for _, payload := range payloads {
		v, err := strconv.ParseUint(string(payload), 10, 64)
		if err != nil {
			uc.logger.Warn("Malformed datamap grid dropped",
				zap.String("queue", queue), zap.Error(err))
			continue
		}
		grid := geo.GridID(v)
		if _, dup := seen[grid]; dup {
			continue
		}
		seen[grid] = struct{}{}
		grids = append(grids, grid)
	}
	if len(grids) == 0 {
		return 0, nil
	}

	if err := uc.datamaps.Upsert(ctx, quadrant, grids, uc.now().UTC()); err != nil {
		return 0, err
	}
	return len(grids), nil
}
