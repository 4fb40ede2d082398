package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/usecase"
	"github.com/ichnaea-service/internal/worker"
)

const errorPause = time.Second

// IngestWorker drains the incoming report queue and distributes the
// observations to the shard queues.
type IngestWorker struct {
	*worker.BaseWorker
	ingestUC   *usecase.IngestUseCase
	emptySleep time.Duration
}

func NewIngestWorker(ingestUC *usecase.IngestUseCase, emptySleep time.Duration, logger *zap.Logger) *IngestWorker {
	return &IngestWorker{
		BaseWorker: worker.NewBaseWorker("ingest", logger),
		ingestUC:   ingestUC,
		emptySleep: emptySleep,
	}
}

func (w *IngestWorker) Start(ctx context.Context) error {
	logger := w.Logger()
	logger.Info("Starting ingest worker")

	for {
		select {
		case <-w.StopChan():
			logger.Info("Worker stopped")
			return nil
		case <-ctx.Done():
			logger.Info("Context cancelled")
			return ctx.Err()
		default:
			processed, err := w.ingestUC.ProcessIncoming(ctx)
			if err != nil {
				logger.Error("Incoming batch failed", zap.Error(err))
				time.Sleep(errorPause)
				continue
			}
			if processed == 0 {
				time.Sleep(w.emptySleep)
			}
		}
	}
}
