package usecase_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/domain"
	"github.com/ichnaea-service/internal/pkg/errors"
	"github.com/ichnaea-service/internal/usecase"
)

// MockQueueRepository is a mock of QueueRepository
type MockQueueRepository struct {
	mock.Mock
}

func (m *MockQueueRepository) Enqueue(ctx context.Context, queue string, items [][]byte, batchSize int, expire time.Duration) error {
	args := m.Called(ctx, queue, items, batchSize, expire)
	return args.Error(0)
}

func (m *MockQueueRepository) Dequeue(ctx context.Context, queue string, max int) ([][]byte, error) {
	args := m.Called(ctx, queue, max)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]byte), args.Error(1)
}

func (m *MockQueueRepository) EnqueueUnique(ctx context.Context, queue string, items [][]byte, expire time.Duration) error {
	args := m.Called(ctx, queue, items, expire)
	return args.Error(0)
}

func (m *MockQueueRepository) DequeueUnique(ctx context.Context, queue string, max int) ([][]byte, error) {
	args := m.Called(ctx, queue, max)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]byte), args.Error(1)
}

func (m *MockQueueRepository) Size(ctx context.Context, queue string) (int64, error) {
	args := m.Called(ctx, queue)
	return args.Get(0).(int64), args.Error(1)
}

func testReport(lat, lon float64) domain.Report {
	return domain.Report{
		Timestamp: time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC),
		Position:  domain.Position{Lat: lat, Lon: lon, Accuracy: 10, Source: domain.SourceGNSS},
		Wifis: []domain.WifiNetwork{
			{MAC: "0023456789ab"},
			{MAC: "0023456789ac"},
		},
	}
}

func TestSubmitUseCase_Queue(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()

	t.Run("reports land on the incoming queue", func(t *testing.T) {
		queues := &MockQueueRepository{}
		uc := usecase.NewSubmitUseCase(queues, ingestTestConfig(), logger)

		queues.On("Size", ctx, domain.QueueIncoming).Return(int64(12), nil)
		queues.On("Enqueue", ctx, domain.QueueIncoming,
			mock.MatchedBy(func(items [][]byte) bool { return len(items) == 2 }),
			5000, 24*time.Hour).Return(nil)

		err := uc.Queue(ctx, []domain.Report{testReport(51.5, -0.1), testReport(51.6, -0.2)})
		require.NoError(t, err)
		queues.AssertExpectations(t)
	})

	t.Run("over the watermark reports are dropped silently", func(t *testing.T) {
		queues := &MockQueueRepository{}
		uc := usecase.NewSubmitUseCase(queues, ingestTestConfig(), logger)

		queues.On("Size", ctx, domain.QueueIncoming).Return(int64(100000), nil)

		err := uc.Queue(ctx, []domain.Report{testReport(51.5, -0.1)})
		require.NoError(t, err)
		queues.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("exhausted retries surface as queue full", func(t *testing.T) {
		queues := &MockQueueRepository{}
		uc := usecase.NewSubmitUseCase(queues, ingestTestConfig(), logger)

		queues.On("Size", ctx, domain.QueueIncoming).Return(int64(0), nil)
		queues.On("Enqueue", ctx, domain.QueueIncoming, mock.Anything, 5000, 24*time.Hour).
			Return(stderrors.New("redis gone"))

		err := uc.Queue(ctx, []domain.Report{testReport(51.5, -0.1)})
		assert.ErrorIs(t, err, errors.ErrQueueFull)
		queues.AssertNumberOfCalls(t, "Enqueue", 2)
	})

	t.Run("empty input is a no-op", func(t *testing.T) {
		queues := &MockQueueRepository{}
		uc := usecase.NewSubmitUseCase(queues, ingestTestConfig(), logger)

		require.NoError(t, uc.Queue(ctx, nil))
		queues.AssertNotCalled(t, "Size", mock.Anything, mock.Anything)
	})
}
