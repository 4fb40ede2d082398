package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/domain"
	"github.com/ichnaea-service/internal/domain/repository"
	"github.com/ichnaea-service/internal/worker"
)

// MonitorWorker periodically gauges the depth of every update queue, so
// operators can spot a stalled updater or an ingest backlog from the logs.
type MonitorWorker struct {
	*worker.BaseWorker
	queues   repository.QueueRepository
	interval time.Duration
}

func NewMonitorWorker(queues repository.QueueRepository, interval time.Duration, logger *zap.Logger) *MonitorWorker {
	return &MonitorWorker{
		BaseWorker: worker.NewBaseWorker("monitor", logger),
		queues:     queues,
		interval:   interval,
	}
}

func (w *MonitorWorker) Start(ctx context.Context) error {
	logger := w.Logger()
	logger.Info("Starting monitor worker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.StopChan():
			logger.Info("Worker stopped")
			return nil
		case <-ctx.Done():
			logger.Info("Context cancelled")
			return ctx.Err()
		case <-ticker.C:
			w.gauge(ctx)
		}
	}
}

func (w *MonitorWorker) gauge(ctx context.Context) {
	logger := w.Logger()

	names := []string{domain.QueueIncoming, domain.QueueCellArea, domain.QueueDeadLetter}
	names = append(names, domain.StationShardQueues()...)
	names = append(names, domain.DatamapQueues()...)

	var total int64
	for _, name := range names {
		depth, err := w.queues.Size(ctx, name)
		if err != nil {
			logger.Warn("Queue depth probe failed", zap.String("queue", name), zap.Error(err))
			continue
		}
		total += depth
		if depth > 0 {
			logger.Info("Queue depth", zap.String("queue", name), zap.Int64("depth", depth))
		}
	}
	logger.Info("Queue depth total", zap.Int64("depth", total))
}
