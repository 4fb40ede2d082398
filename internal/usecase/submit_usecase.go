package usecase

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/config"
	"github.com/ichnaea-service/internal/domain"
	"github.com/ichnaea-service/internal/domain/repository"
	"github.com/ichnaea-service/internal/pkg/errors"
)

// SubmitUseCase accepts measurement reports on the web tier and parks
// them on the incoming queue. All heavy processing happens in workers.
type SubmitUseCase struct {
	queues repository.QueueRepository
	cfg    config.IngestConfig
	logger *zap.Logger
}

func NewSubmitUseCase(
	queues repository.QueueRepository,
	cfg config.IngestConfig,
	logger *zap.Logger,
) *SubmitUseCase {
	return &SubmitUseCase{
		queues: queues,
		cfg:    cfg,
		logger: logger,
	}
}

// Queue serializes the reports onto the incoming queue. Reports are
// dropped with a log line when the queue already holds more than the
// high watermark; submission clients never see backpressure errors.
func (uc *SubmitUseCase) Queue(ctx context.Context, reports []domain.Report) error {
	if len(reports) == 0 {
		return nil
	}

	depth, err := uc.queues.Size(ctx, domain.QueueIncoming)
	if err != nil {
		uc.logger.Warn("Incoming queue depth check failed", zap.Error(err))
	} else if depth >= uc.cfg.HighWatermark {
		uc.logger.Warn("Incoming queue over high watermark, dropping reports",
			zap.Int64("depth", depth),
			zap.Int("dropped", len(reports)))
		return nil
	}

	items := make([][]byte, 0, len(reports))
	for i := range reports {
		payload, err := json.Marshal(&reports[i])
		if err != nil {
			uc.logger.Warn("Report serialization failed", zap.Error(err))
			continue
		}
		items = append(items, payload)
	}
	if len(items) == 0 {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < uc.cfg.EnqueueRetries; attempt++ {
		lastErr = uc.queues.Enqueue(ctx, domain.QueueIncoming, items, uc.cfg.BatchIncoming, uc.cfg.QueueExpire)
		if lastErr == nil {
			return nil
		}
		uc.logger.Warn("Incoming enqueue failed",
			zap.Int("attempt", attempt+1), zap.Error(lastErr))
	}
	return errors.ErrQueueFull
}
