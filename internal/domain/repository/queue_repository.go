package repository

import (
	"context"
	"time"
)

// QueueRepository is the durable FIFO layer backing the update pipeline.
// FIFO queues preserve order per queue; unique queues have set semantics
// and deduplicate by payload.
type QueueRepository interface {
	// Enqueue appends items in chunks of batchSize and refreshes the
	// queue expiry. Fails with ErrQueueFull only when storage is
	// exhausted; callers retry with backoff.
	Enqueue(ctx context.Context, queue string, items [][]byte, batchSize int, expire time.Duration) error

	// Dequeue atomically reads and removes up to max items from the head.
	Dequeue(ctx context.Context, queue string, max int) ([][]byte, error)

	// EnqueueUnique adds items to a set-semantic queue, dropping
	// duplicates already pending.
	EnqueueUnique(ctx context.Context, queue string, items [][]byte, expire time.Duration) error

	// DequeueUnique removes up to max items from a set-semantic queue.
	DequeueUnique(ctx context.Context, queue string, max int) ([][]byte, error)

	// Size returns the pending item count.
	Size(ctx context.Context, queue string) (int64, error)
}
