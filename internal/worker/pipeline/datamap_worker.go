package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/usecase"
	"github.com/ichnaea-service/internal/worker"
)

// DatamapWorker owns one coverage grid quadrant queue.
type DatamapWorker struct {
	*worker.BaseWorker
	datamapUC  *usecase.DatamapUseCase
	queue      string
	emptySleep time.Duration
}

func NewDatamapWorker(datamapUC *usecase.DatamapUseCase, queue string, emptySleep time.Duration, logger *zap.Logger) *DatamapWorker {
	return &DatamapWorker{
		BaseWorker: worker.NewBaseWorker("datamap-"+queue, logger),
		datamapUC:  datamapUC,
		queue:      queue,
		emptySleep: emptySleep,
	}
}

func (w *DatamapWorker) Start(ctx context.Context) error {
	logger := w.Logger()
	logger.Info("Starting datamap worker", zap.String("queue", w.queue))

	for {
		select {
		case <-w.StopChan():
			logger.Info("Worker stopped", zap.String("queue", w.queue))
			return nil
		case <-ctx.Done():
			logger.Info("Context cancelled", zap.String("queue", w.queue))
			return ctx.Err()
		default:
			written, err := w.datamapUC.ProcessQueue(ctx, w.queue)
			if err != nil {
				logger.Error("Datamap batch failed",
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
