package usecase

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/config"
	"github.com/ichnaea-service/internal/domain"
	"github.com/ichnaea-service/internal/domain/repository"
	"github.com/ichnaea-service/internal/geo"
)

// UpdaterUseCase folds queued observations into the station store. One
// instance serves one shard queue, so all writes to a shard stay on a
// single goroutine and need no row locking.
type UpdaterUseCase struct {
	stations repository.StationRepository
	queues   repository.QueueRepository
	regions  *geo.RegionIndex
	cfg      config.IngestConfig
	logger   *zap.Logger

	now func() time.Time
}

func NewUpdaterUseCase(
	stations repository.StationRepository,
	queues repository.QueueRepository,
	regions *geo.RegionIndex,
	cfg config.IngestConfig,
	logger *zap.Logger,
) *UpdaterUseCase {
	return &UpdaterUseCase{
		stations: stations,
		queues:   queues,
		regions:  regions,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// ProcessShard drains one batch from a shard queue and applies it. It
// returns the number of stations written.
func (uc *UpdaterUseCase) ProcessShard(ctx context.Context, queue string) (int, error) {
	kind, shard, err := domain.ShardKindFromQueue(queue)
	if err != nil {
		return 0, err
	}

	payloads, err := uc.queues.Dequeue(ctx, queue, uc.cfg.BatchShard)
	if err != nil {
		return 0, err
	}
	if len(payloads) == 0 {
		return 0, nil
	}

	byID := make(map[string][]domain.Observation)
	for _, payload := range payloads {
		var obs domain.Observation
		if err := json.Unmarshal(payload, &obs); err != nil {
			uc.logger.Warn("Malformed observation dropped",
				zap.String("queue", queue), zap.Error(err))
			continue
		}
		byID[obs.ID] = append(byID[obs.ID], obs)
	}
	if len(byID) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	current, err := uc.stations.GetMany(ctx, kind, shard, ids)
	if err != nil {
		return 0, err
	}

	now := uc.now().UTC()
	var regionFor domain.RegionLookup
	if uc.regions != nil {
		regionFor = uc.regions.Lookup
	}

	updates := make([]domain.Station, 0, len(ids))
	areas := make(map[domain.AreaID]struct{})
	blocked := 0

	for i, id := range ids {
		station := current[i]
		if station.Blocked(now) {
			// Observations for suppressed stations are discarded; the
			// block window must expire untouched.
			continue
		}
		next, wasBlocked := domain.MergeStation(station, byID[id], now, regionFor)
		if wasBlocked {
			blocked++
		}
		updates = append(updates, next)

		if kind == domain.KindCell {
			if cellID, err := domain.ParseCellID(id); err == nil {
				areas[cellID.Area()] = struct{}{}
			}
		}
	}
	if len(updates) == 0 {
		return 0, nil
	}

	if err := uc.stations.Upsert(ctx, kind, shard, updates); err != nil {
		return 0, err
	}
	if blocked > 0 {
		uc.logger.Info("Stations blocked after position jump",
			zap.String("queue", queue), zap.Int("count", blocked))
	}

	uc.enqueueAreas(ctx, areas)
	return len(updates), nil
}

// enqueueAreas schedules the touched cell-areas for recomputation. The
// area queue has set semantics, so repeat updates collapse.
func (uc *UpdaterUseCase) enqueueAreas(ctx context.Context, areas map[domain.AreaID]struct{}) {
	if len(areas) == 0 {
		return
	}
	items := make([][]byte, 0, len(areas))
	for id := range areas {
		items = append(items, []byte(id.String()))
	}
	if err := uc.queues.EnqueueUnique(ctx, domain.QueueCellArea, items, uc.cfg.QueueExpire); err != nil {
		uc.logger.Warn("Cell area enqueue failed", zap.Error(err))
	}
}
