package dto_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ichnaea-service/internal/domain"
	"github.com/ichnaea-service/internal/usecase/dto"
)

func float64Ptr(v float64) *float64 { return &v }
func int64Ptr(v int64) *int64       { return &v }

var submitNow = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func TestParseSubmitRequest(t *testing.T) {
	req, err := dto.ParseSubmitRequest([]byte(`{
		"items": [{
			"timestamp": 1718020800000,
			"position": {"latitude": 51.5, "longitude": -0.1, "accuracy": 10, "source": "gnss"},
			"wifiAccessPoints": [{"macAddress": "00:23:45:67:89:ab", "signalStrength": -60}]
		}]
	}`))
	require.NoError(t, err)
	require.Len(t, req.Items, 1)

	_, err = dto.ParseSubmitRequest([]byte(`{"items": [`))
	assert.Error(t, err)
}

func TestSubmitRequestToReports(t *testing.T) {
	t.Run("nested position wins over flat fields", func(t *testing.T) {
		req := &dto.SubmitRequest{Items: []dto.SubmitItem{{
			Latitude:  float64Ptr(10),
			Longitude: float64Ptr(20),
			Accuracy:  float64Ptr(100),
			Position: &dto.PositionDTO{
				Latitude:  float64Ptr(51.5),
				Longitude: float64Ptr(-0.1),
				Accuracy:  float64Ptr(10),
				Source:    "fused",
			},
			WifiAccessPoints: []dto.WifiAccessPointDTO{{MacAddress: "0023456789ab"}},
		}}}

		reports := req.ToReports(submitNow)
		require.Len(t, reports, 1)
		assert.InDelta(t, 51.5, reports[0].Position.Lat, 1e-9)
		assert.InDelta(t, -0.1, reports[0].Position.Lon, 1e-9)
		assert.InDelta(t, 10.0, reports[0].Position.Accuracy, 1e-9)
		assert.Equal(t, domain.SourceFused, reports[0].Position.Source)
	})

	t.Run("flat position alone works", func(t *testing.T) {
		req := &dto.SubmitRequest{Items: []dto.SubmitItem{{
			Latitude:         float64Ptr(48.85),
			Longitude:        float64Ptr(2.35),
			Accuracy:         float64Ptr(25),
			WifiAccessPoints: []dto.WifiAccessPointDTO{{MacAddress: "0023456789ab"}},
		}}}

		reports := req.ToReports(submitNow)
		require.Len(t, reports, 1)
		assert.InDelta(t, 48.85, reports[0].Position.Lat, 1e-9)
		assert.Equal(t, domain.SourceGNSS, reports[0].Position.Source)
	})

	t.Run("timestamp in milliseconds, defaulting to now", func(t *testing.T) {
		item := dto.SubmitItem{
			Timestamp:        int64Ptr(1718020800000), // 2024-06-10T12:00:00Z
			Latitude:         float64Ptr(51.5),
			Longitude:        float64Ptr(-0.1),
			WifiAccessPoints: []dto.WifiAccessPointDTO{{MacAddress: "0023456789ab"}},
		}
		reports := (&dto.SubmitRequest{Items: []dto.SubmitItem{item}}).ToReports(submitNow)
		require.Len(t, reports, 1)
		assert.Equal(t, time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC), reports[0].Timestamp)

		item.Timestamp = nil
		reports = (&dto.SubmitRequest{Items: []dto.SubmitItem{item}}).ToReports(submitNow)
		require.Len(t, reports, 1)
		assert.Equal(t, submitNow, reports[0].Timestamp)
	})

	t.Run("unknown source degrades to gnss", func(t *testing.T) {
		req := &dto.SubmitRequest{Items: []dto.SubmitItem{{
			Position: &dto.PositionDTO{
				Latitude:  float64Ptr(51.5),
				Longitude: float64Ptr(-0.1),
				Source:    "carrier-pigeon",
			},
			WifiAccessPoints: []dto.WifiAccessPointDTO{{MacAddress: "0023456789ab"}},
		}}}

		reports := req.ToReports(submitNow)
		require.Len(t, reports, 1)
		assert.Equal(t, domain.SourceGNSS, reports[0].Position.Source)
	})

	t.Run("items without position or networks drop", func(t *testing.T) {
		req := &dto.SubmitRequest{Items: []dto.SubmitItem{
			{
				// No position at all.
				WifiAccessPoints: []dto.WifiAccessPointDTO{{MacAddress: "0023456789ab"}},
			},
			{
				// Position but nothing observed.
				Latitude:  float64Ptr(51.5),
				Longitude: float64Ptr(-0.1),
			},
			{
				// Out of range.
				Latitude:         float64Ptr(95),
				Longitude:        float64Ptr(-0.1),
				WifiAccessPoints: []dto.WifiAccessPointDTO{{MacAddress: "0023456789ab"}},
			},
		}}
		assert.Empty(t, req.ToReports(submitNow))
	})
}
