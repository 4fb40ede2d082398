package usecase_test

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/domain"
	"github.com/ichnaea-service/internal/geo"
	"github.com/ichnaea-service/internal/usecase"
)

func intPtr(v int) *int {
	return &v
}

func marshalReport(t *testing.T, report domain.Report) []byte {
	t.Helper()
	payload, err := json.Marshal(&report)
	require.NoError(t, err)
	return payload
}

func TestIngestUseCase_ProcessIncoming(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()

	t.Run("fans one report out to shard and datamap queues", func(t *testing.T) {
		queues := &MockQueueRepository{}
		uc := usecase.NewIngestUseCase(queues, ingestTestConfig(), logger)

		report := domain.Report{
			Timestamp: time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC),
			Position:  domain.Position{Lat: 51.5, Lon: -0.1, Accuracy: 10, Source: domain.SourceGNSS},
			Blues: []domain.BlueNetwork{
				{MAC: "a01234567890"},
			},
			Wifis: []domain.WifiNetwork{
				{MAC: "0023456789ab", Signal: intPtr(-80)},
				// Same access point twice; the stronger reading wins.
				{MAC: "0023456789ab", Signal: intPtr(-60)},
			},
			Cells: []domain.CellNetwork{
				{Radio: "lte", MCC: 234, MNC: 15, LAC: 2, CID: 1234},
			},
		}

		queues.On("Dequeue", ctx, domain.QueueIncoming, 5000).
			Return([][]byte{marshalReport(t, report)}, nil)

		for _, queue := range []string{"update_blue_a", "update_cell_lte", "update_wifi_0"} {
			queues.On("Size", ctx, queue).Return(int64(0), nil)
		}
		queues.On("Enqueue", ctx, "update_blue_a", mock.Anything, 500, 24*time.Hour).Return(nil)
		queues.On("Enqueue", ctx, "update_cell_lte", mock.Anything, 500, 24*time.Hour).Return(nil)
		queues.On("Enqueue", ctx, "update_wifi_0",
			mock.MatchedBy(func(items [][]byte) bool {
				if len(items) != 1 {
					return false
				}
				var obs domain.Observation
				if json.Unmarshal(items[0], &obs) != nil {
					return false
				}
				return obs.Signal != nil && *obs.Signal == -60
			}), 500, 24*time.Hour).Return(nil)

		gridPayload := strconv.FormatUint(uint64(geo.GridEncode(51.5, -0.1)), 10)
		queues.On("EnqueueUnique", ctx, "update_datamap_nw",
			mock.MatchedBy(func(items [][]byte) bool {
				return len(items) == 1 && string(items[0]) == gridPayload
			}), 24*time.Hour).Return(nil)

		parsed, err := uc.ProcessIncoming(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, parsed)
		queues.AssertExpectations(t)
	})

	t.Run("empty queue is a clean round", func(t *testing.T) {
		queues := &MockQueueRepository{}
		uc := usecase.NewIngestUseCase(queues, ingestTestConfig(), logger)

		queues.On("Dequeue", ctx, domain.QueueIncoming, 5000).Return([][]byte{}, nil)

		parsed, err := uc.ProcessIncoming(ctx)
		require.NoError(t, err)
		assert.Zero(t, parsed)
	})

	t.Run("malformed payloads are dropped", func(t *testing.T) {
		queues := &MockQueueRepository{}
		uc := usecase.NewIngestUseCase(queues, ingestTestConfig(), logger)

		queues.On("Dequeue", ctx, domain.QueueIncoming, 5000).
			Return([][]byte{[]byte("not json")}, nil)

		parsed, err := uc.ProcessIncoming(ctx)
		require.NoError(t, err)
		assert.Zero(t, parsed)
		queues.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("full shard queue drops its share only", func(t *testing.T) {
		queues := &MockQueueRepository{}
		uc := usecase.NewIngestUseCase(queues, ingestTestConfig(), logger)

		report := domain.Report{
			Position: domain.Position{Lat: 51.5, Lon: -0.1, Accuracy: 10, Source: domain.SourceGNSS},
			Wifis:    []domain.WifiNetwork{{MAC: "0023456789ab"}},
		}
		queues.On("Dequeue", ctx, domain.QueueIncoming, 5000).
			Return([][]byte{marshalReport(t, report)}, nil)
		queues.On("Size", ctx, "update_wifi_0").Return(int64(100000), nil)
		queues.On("EnqueueUnique", ctx, "update_datamap_nw", mock.Anything, 24*time.Hour).Return(nil)

		parsed, err := uc.ProcessIncoming(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, parsed)
		queues.AssertNotCalled(t, "Enqueue", ctx, "update_wifi_0", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestIngestUseCase_CellRadioFallback(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()
	queues := &MockQueueRepository{}
	uc := usecase.NewIngestUseCase(queues, ingestTestConfig(), logger)

	// The tower has no radio of its own; the report radio applies.
	report := domain.Report{
		Position:  domain.Position{Lat: 51.5, Lon: -0.1, Accuracy: 10, Source: domain.SourceGNSS},
		RadioType: "gsm",
		Cells: []domain.CellNetwork{
			{MCC: 234, MNC: 15, LAC: 2, CID: 1234},
			// Incomplete tower, dropped.
			{Radio: "lte", MCC: 234, MNC: 15, LAC: 2},
		},
	}
	queues.On("Dequeue", ctx, domain.QueueIncoming, 5000).
		Return([][]byte{marshalReport(t, report)}, nil)
	queues.On("Size", ctx, "update_cell_gsm").Return(int64(0), nil)
	queues.On("Enqueue", ctx, "update_cell_gsm",
		mock.MatchedBy(func(items [][]byte) bool {
			if len(items) != 1 {
				return false
			}
			var obs domain.Observation
			if json.Unmarshal(items[0], &obs) != nil {
				return false
			}
			return obs.ID == "gsm_234_15_2_1234" && obs.Radio == domain.RadioGSM
		}), 500, 24*time.Hour).Return(nil)
	queues.On("EnqueueUnique", ctx, "update_datamap_nw", mock.Anything, 24*time.Hour).Return(nil)

	parsed, err := uc.ProcessIncoming(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, parsed)
	queues.AssertExpectations(t)
}
