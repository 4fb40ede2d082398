package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/config"
	"github.com/ichnaea-service/internal/domain"
	"github.com/ichnaea-service/internal/domain/repository"
	"github.com/ichnaea-service/internal/geo"
)

// AreaUseCase recomputes cell-area aggregates from their member cells.
type AreaUseCase struct {
	areas   repository.AreaRepository
	queues  repository.QueueRepository
	regions *geo.RegionIndex
	cfg     config.IngestConfig
	logger  *zap.Logger

	now func() time.Time
}

func NewAreaUseCase(
	areas repository.AreaRepository,
	queues repository.QueueRepository,
	regions *geo.RegionIndex,
	cfg config.IngestConfig,
	logger *zap.Logger,
) *AreaUseCase {
	return &AreaUseCase{
		areas:   areas,
		queues:  queues,
		regions: regions,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// ProcessAreas drains one batch of pending area ids and rebuilds each
// aggregate. An area whose last unblocked member cell disappeared is
// deleted. Returns the number of areas handled.
func (uc *AreaUseCase) ProcessAreas(ctx context.Context) (int, error) {
	payloads, err := uc.queues.DequeueUnique(ctx, domain.QueueCellArea, uc.cfg.BatchArea)
	if err != nil {
		return 0, err
	}
	if len(payloads) == 0 {
		return 0, nil
	}

	now := uc.now().UTC()
	var updates []domain.CellArea
	handled := 0

	for _, payload := range payloads {
		id, err := domain.ParseAreaID(string(payload))
		if err != nil {
			uc.logger.Warn("Malformed area id dropped", zap.Error(err))
			continue
		}
		handled++

		cells, err := uc.areas.CellsForArea(ctx, id)
		if err != nil {
			return handled, err
		}

		usable := cells[:0]
		for _, c := range cells {
			if c.HasPosition() && !c.Blocked(now) {
				usable = append(usable, c)
			}
		}
		if len(usable) == 0 {
			if err := uc.areas.Delete(ctx, id); err != nil {
				return handled, err
			}
			continue
		}

		updates = append(updates, uc.aggregateArea(id, usable, now))
	}

	if len(updates) > 0 {
		if err := uc.areas.Upsert(ctx, updates); err != nil {
			return handled, err
		}
	}
	return handled, nil
}

// aggregateArea folds the member cells into one area record: sample
// weighted centroid, covering radius, and the dominant member region.
func (uc *AreaUseCase) aggregateArea(id domain.AreaID, cells []*domain.Station, now time.Time) domain.CellArea {
	points := make([]geo.LatLon, len(cells))
	weights := make([]float64, len(cells))
	for i, c := range cells {
		points[i] = geo.LatLon{Lat: *c.Lat, Lon: *c.Lon}
		w := float64(c.Samples)
		if w < 1 {
			w = 1
		}
		weights[i] = w
	}
	center := geo.Centroid(points, weights)

	radius := 0.0
	sumCellRadius := 0.0
	regionVotes := make(map[string]int)
	for i, c := range cells {
		covering := geo.DistanceLL(center, points[i]) + c.Radius
		if covering > radius {
			radius = covering
		}
		sumCellRadius += c.Radius
		if c.Region != "" {
			regionVotes[c.Region]++
		}
	}

	region := ""
	best := 0
	for code, votes := range regionVotes {
		if votes > best || (votes == best && code < region) {
			region, best = code, votes
		}
	}
	if region == "" && uc.regions != nil {
		region = uc.regions.Lookup(center.Lat, center.Lon)
	}

	return domain.CellArea{
		ID:            id,
		Lat:           center.Lat,
		Lon:           center.Lon,
		Radius:        radius,
		NumCells:      len(cells),
		AvgCellRadius: sumCellRadius / float64(len(cells)),
		Region:        region,
		LastSeen:      now.Format("2006-01-02"),
	}
}

// StatsUseCase refreshes the per-region station counts.
type StatsUseCase struct {
	regionStats repository.RegionStatRepository
	logger      *zap.Logger
}

func NewStatsUseCase(regionStats repository.RegionStatRepository, logger *zap.Logger) *StatsUseCase {
	return &StatsUseCase{regionStats: regionStats, logger: logger}
}

// Recount rebuilds the region_stat table from the live station shards.
func (uc *StatsUseCase) Recount(ctx context.Context) error {
	stats, err := uc.regionStats.Recount(ctx)
	if err != nil {
		return err
	}
	if err := uc.regionStats.Replace(ctx, stats); err != nil {
		return err
	}
	uc.logger.Info("Region stats recounted", zap.Int("regions", len(stats)))
	return nil
}

// Stats returns the published per-region counts.
func (uc *StatsUseCase) Stats(ctx context.Context) ([]domain.RegionStat, error) {
	return uc.regionStats.GetAll(ctx)
}
