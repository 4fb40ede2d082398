package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/usecase"
	"github.com/ichnaea-service/internal/worker"
)

// AreaWorker rebuilds cell-area aggregates from the pending area set.
type AreaWorker struct {
	*worker.BaseWorker
	areaUC   *usecase.AreaUseCase
	interval time.Duration
}

func NewAreaWorker(areaUC *usecase.AreaUseCase, interval time.Duration, logger *zap.Logger) *AreaWorker {
	return &AreaWorker{
		BaseWorker: worker.NewBaseWorker("area", logger),
		areaUC:     areaUC,
		interval:   interval,
	}
}

func (w *AreaWorker) Start(ctx context.Context) error {
	logger := w.Logger()
	logger.Info("Starting area worker", zap.Duration("interval", w.interval))

	for {
		select {
		case <-w.StopChan():
			logger.Info("Worker stopped")
			return nil
		case <-ctx.Done():
			logger.Info("Context cancelled")
			return ctx.Err()
		default:
			handled, err := w.areaUC.ProcessAreas(ctx)
			if err != nil {
				logger.Error("Area batch failed", zap.Error(err))
				time.Sleep(errorPause)
				continue
			}
			if handled == 0 {
				time.Sleep(w.interval)
			}
		}
	}
}
