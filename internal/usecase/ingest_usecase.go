package usecase

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/config"
	"github.com/ichnaea-service/internal/domain"
	"github.com/ichnaea-service/internal/domain/repository"
	"github.com/ichnaea-service/internal/geo"
)

// IngestUseCase drains the incoming report queue and fans the contained
// observations out to the per-shard station queues and the datamap
// queues.
type IngestUseCase struct {
	queues repository.QueueRepository
	cfg    config.IngestConfig
	logger *zap.Logger
}

func NewIngestUseCase(
	queues repository.QueueRepository,
	cfg config.IngestConfig,
	logger *zap.Logger,
) *IngestUseCase {
	return &IngestUseCase{
		queues: queues,
		cfg:    cfg,
		logger: logger,
	}
}

// ProcessIncoming handles one drain round. It returns the number of
// reports taken off the incoming queue; zero means the queue was empty.
func (uc *IngestUseCase) ProcessIncoming(ctx context.Context) (int, error) {
	payloads, err := uc.queues.Dequeue(ctx, domain.QueueIncoming, uc.cfg.BatchIncoming)
	if err != nil {
		return 0, err
	}
	if len(payloads) == 0 {
		return 0, nil
	}

	byQueue := make(map[string][][]byte)
	grids := make(map[geo.GridID]struct{})
	parsed := 0

	for _, payload := range payloads {
		var report domain.Report
		if err := json.Unmarshal(payload, &report); err != nil {
			uc.logger.Warn("Malformed report dropped", zap.Error(err))
			continue
		}
		if !report.Valid() {
			continue
		}
		parsed++

		for _, obs := range reportObservations(&report) {
			payload, err := json.Marshal(&obs)
			if err != nil {
				continue
			}
			queue := domain.ObservationQueue(&obs)
			byQueue[queue] = append(byQueue[queue], payload)
		}
		grids[geo.GridEncode(report.Position.Lat, report.Position.Lon)] = struct{}{}
	}

	queues := make([]string, 0, len(byQueue))
	for queue := range byQueue {
		queues = append(queues, queue)
	}
	sort.Strings(queues)
	for _, queue := range queues {
		uc.distribute(ctx, queue, byQueue[queue])
	}

	uc.enqueueGrids(ctx, grids)
	return parsed, nil
}

// distribute pushes one shard queue's share, honoring the per-queue high
// watermark and routing persistently failing items to the dead letter
// queue.
func (uc *IngestUseCase) distribute(ctx context.Context, queue string, items [][]byte) {
	depth, err := uc.queues.Size(ctx, queue)
	if err == nil && depth >= uc.cfg.HighWatermark {
		uc.logger.Warn("Shard queue over high watermark, dropping observations",
			zap.String("queue", queue),
			zap.Int64("depth", depth),
			zap.Int("dropped", len(items)))
		return
	}

	var lastErr error
	for attempt := 0; attempt < uc.cfg.EnqueueRetries; attempt++ {
		lastErr = uc.queues.Enqueue(ctx, queue, items, uc.cfg.BatchShard, uc.cfg.QueueExpire)
		if lastErr == nil {
			return
		}
	}

	uc.logger.Error("Shard enqueue failed, moving to dead letter queue",
		zap.String("queue", queue), zap.Error(lastErr))
	if err := uc.queues.Enqueue(ctx, domain.QueueDeadLetter, items, uc.cfg.BatchShard, uc.cfg.QueueExpire); err != nil {
		uc.logger.Error("Dead letter enqueue failed, observations lost",
			zap.String("queue", queue),
			zap.Int("lost", len(items)),
			zap.Error(err))
	}
}

func (uc *IngestUseCase) enqueueGrids(ctx context.Context, grids map[geo.GridID]struct{}) {
	byQueue := make(map[string][][]byte)
	for grid := range grids {
		queue := domain.DatamapQueue(grid)
		byQueue[queue] = append(byQueue[queue], []byte(strconv.FormatUint(uint64(grid), 10)))
	}
	// Set semantics: a grid already pending in the queue is not queued
	// twice, no matter how many reports touched it.
	for queue, items := range byQueue {
		if err := uc.queues.EnqueueUnique(ctx, queue, items, uc.cfg.QueueExpire); err != nil {
			uc.logger.Warn("Datamap enqueue failed",
				zap.String("queue", queue), zap.Error(err))
		}
	}
}

// reportObservations slices a report into per-network observations. A
// network that appears twice in one report keeps only the strongest
// signal reading.
func reportObservations(report *domain.Report) []domain.Observation {
	obs := make([]domain.Observation, 0, len(report.Blues)+len(report.Wifis)+len(report.Cells))
	byID := make(map[string]int)

	add := func(o domain.Observation) {
		if idx, dup := byID[o.ID]; dup {
			if strongerSignal(o.Signal, obs[idx].Signal) {
				obs[idx] = o
			}
			return
		}
		byID[o.ID] = len(obs)
		obs = append(obs, o)
	}

	base := domain.Observation{
		Lat:      report.Position.Lat,
		Lon:      report.Position.Lon,
		Accuracy: report.Position.Accuracy,
		Source:   report.Position.Source,
	}
	if base.Source == "" {
		base.Source = domain.SourceGNSS
	}

	for i := range report.Blues {
		b := &report.Blues[i]
		o := base
		o.Kind = domain.KindBlue
		o.ID = string(b.MAC)
		o.Signal = b.Signal
		o.AgeMS = b.AgeMS
		add(o)
	}
	for i := range report.Wifis {
		w := &report.Wifis[i]
		o := base
		o.Kind = domain.KindWifi
		o.ID = string(w.MAC)
		o.Signal = w.Signal
		o.AgeMS = w.AgeMS
		add(o)
	}
	for i := range report.Cells {
		c := &report.Cells[i]
		radio, err := domain.ParseRadio(c.Radio)
		if err != nil {
			if radio, err = domain.ParseRadio(report.RadioType); err != nil {
				continue
			}
		}
		id := domain.CellID{Radio: radio, MCC: c.MCC, MNC: c.MNC, LAC: c.LAC, CID: c.CID}
		if !id.Valid() {
			continue
		}
		o := base
		o.Kind = domain.KindCell
		o.ID = id.String()
		o.Radio = radio
		o.Signal = c.Signal
		o.AgeMS = c.AgeMS
		add(o)
	}
	return obs
}

// strongerSignal prefers a present reading over nil and a higher dBm
// value over a lower one.
func strongerSignal(a, b *int) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return *a > *b
}
