package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/usecase"
	"github.com/ichnaea-service/internal/worker"
)

// StatsWorker periodically recounts the per-region station statistics.
type StatsWorker struct {
	*worker.BaseWorker
	statsUC  *usecase.StatsUseCase
	interval time.Duration
}

func NewStatsWorker(statsUC *usecase.StatsUseCase, interval time.Duration, logger *zap.Logger) *StatsWorker {
	return &StatsWorker{
		BaseWorker: worker.NewBaseWorker("stats", logger),
		statsUC:    statsUC,
		interval:   interval,
	}
}

func (w *StatsWorker) Start(ctx context.Context) error {
	logger := w.Logger()
	logger.Info("Starting stats worker", zap.Duration("interval", w.interval))

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
			if err := w.statsUC.Recount(ctx); err != nil {
				logger.Error("Region stat recount failed", zap.Error(err))
			}
		}
	}
}
