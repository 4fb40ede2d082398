package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/usecase"
	"github.com/ichnaea-service/internal/worker"
)

// UpdaterWorker owns exactly one station shard queue. Running one
// worker per shard keeps every station row single-writer.
type UpdaterWorker struct {
	*worker.BaseWorker
	updaterUC  *usecase.UpdaterUseCase
	queue      string
	emptySleep time.Duration
}

func NewUpdaterWorker(updaterUC *usecase.UpdaterUseCase, queue string, emptySleep time.Duration, logger *zap.Logger) *UpdaterWorker {
	return &UpdaterWorker{
		BaseWorker: worker.NewBaseWorker("updater-"+queue, logger),
		updaterUC:  updaterUC,
		queue:      queue,
		emptySleep: emptySleep,
	}
}

func (w *UpdaterWorker) Start(ctx context.Context) error {
	logger := w.Logger()
	logger.Info("Starting updater worker", zap.String("queue", w.queue))

	for {
		select {
		case <-w.StopChan():
			logger.Info("Worker stopped", zap.String("queue", w.queue))
			return nil
		case <-ctx.Done():
			logger.Info("Context cancelled", zap.String("queue", w.queue))
			return ctx.Err()
		default:
			written, err := w.updaterUC.ProcessShard(ctx, w.queue)
			if err != nil {
				logger.Error("Shard batch failed",
					zap.String("queue", w.queue), zap.Error(err))
				time.Sleep(errorPause)
				continue
			}
			if written == 0 {
				time.Sleep(w.emptySleep)
			}
		}
	}
}
