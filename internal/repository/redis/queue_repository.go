package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/domain/repository"
	apperrors "github.com/ichnaea-service/internal/pkg/errors"
)

type queueRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueueRepository backs the durable update queues with Redis lists;
// set-semantic queues use Redis sets. Matches the storage model of the
// original deployment.
func NewQueueRepository(client *redis.Client, logger *zap.Logger) repository.QueueRepository {
	return &queueRepository{client: client, logger: logger}
}

func (r *queueRepository) Enqueue(
	ctx context.Context,
	queue string,
	items [][]byte,
	batchSize int,
	expire time.Duration,
) error {
	if len(items) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = len(items)
	}

	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		chunk := make([]interface{}, 0, end-start)
		for _, item := range items[start:end] {
			chunk = append(chunk, item)
		}

		pipe := r.client.TxPipeline()
		pipe.RPush(ctx, queue, chunk...)
		if expire > 0 {
			pipe.Expire(ctx, queue, expire)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			if isOOM(err) {
				return apperrors.ErrQueueFull
			}
			r.logger.Error("Failed to enqueue",
				zap.String("queue", queue),
				zap.Int("items", end-start),
				zap.Error(err))
			return fmt.Errorf("queue enqueue error: %w", err)
		}
	}
	return nil
}

func (r *queueRepository) Dequeue(ctx context.Context, queue string, max int) ([][]byte, error) {
	if max <= 0 {
		return nil, nil
	}

	vals, err := r.client.LPopCount(ctx, queue, max).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to dequeue", zap.String("queue", queue), zap.Error(err))
		return nil, fmt.Errorf("queue dequeue error: %w", err)
	}

	items := make([][]byte, 0, len(vals))
	for _, v := range vals {
		items = append(items, []byte(v))
	}
	return items, nil
}

func (r *queueRepository) EnqueueUnique(
	ctx context.Context,
	queue string,
	items [][]byte,
	expire time.Duration,
) error {
	if len(items) == 0 {
		return nil
	}
	members := make([]interface{}, 0, len(items))
	for _, item := range items {
		members = append(members, item)
	}

	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, queue, members...)
	if expire > 0 {
		pipe.Expire(ctx, queue, expire)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		if isOOM(err) {
			return apperrors.ErrQueueFull
		}
		r.logger.Error("Failed to enqueue unique",
			zap.String("queue", queue),
			zap.Error(err))
		return fmt.Errorf("queue enqueue error: %w", err)
	}
	return nil
}

func (r *queueRepository) DequeueUnique(ctx context.Context, queue string, max int) ([][]byte, error) {
	if max <= 0 {
		return nil, nil
	}

	vals, err := r.client.SPopN(ctx, queue, int64(max)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to dequeue unique", zap.String("queue", queue), zap.Error(err))
		return nil, fmt.Errorf("queue dequeue error: %w", err)
	}

	items := make([][]byte, 0, len(vals))
	for _, v := range vals {
		items = append(items, []byte(v))
	}
	return items, nil
}

func (r *queueRepository) Size(ctx context.Context, queue string) (int64, error) {
	// FIFO queues are lists, unique queues are sets; check both forms.
	size, err := r.client.LLen(ctx, queue).Result()
	if err == nil && size > 0 {
		return size, nil
	}
	if err != nil && !isWrongType(err) {
		r.logger.Error("Failed to size queue", zap.String("queue", queue), zap.Error(err))
		return 0, fmt.Errorf("queue size error: %w", err)
	}
	return r.client.SCard(ctx, queue).Result()
}

func isOOM(err error) bool {
	return err != nil && strings.Contains(err.Error(), "OOM")
}

func isWrongType(err error) bool {
	return err != nil && strings.Contains(err.Error(), "WRONGTYPE")
}
