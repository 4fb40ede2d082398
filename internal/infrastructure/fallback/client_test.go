package fallback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/domain"
)

func testQuery() *domain.LocateQuery {
	signal := -60
	return &domain.LocateQuery{
		Wifis: []domain.WifiNetwork{
			{MAC: "0023456789ab", Signal: &signal},
			{MAC: "0023456789ac"},
		},
		Cells: []domain.CellNetwork{
			{Radio: "lte", MCC: 234, MNC: 15, LAC: 2, CID: 1234},
		},
		Fallbacks: domain.FallbackFlags{LACF: true, IPF: true},
	}
}

func TestClient_Locate(t *testing.T) {
	logger := zap.NewNop()

	t.Run("successful request", func(t *testing.T) {
		var got wireRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"location": map[string]float64{"lat": 51.5, "lng": -0.1},
				"accuracy": 1500.0,
			})
		}))
		defer server.Close()

		client := NewClient(2*time.Second, logger)
		result, err := client.Locate(context.Background(), server.URL, testQuery())
		require.NoError(t, err)
		require.NotNil(t, result)

		assert.InDelta(t, 51.5, result.Lat, 1e-9)
		assert.InDelta(t, -0.1, result.Lon, 1e-9)
		assert.InDelta(t, 1500.0, result.Accuracy, 1e-9)
		assert.Equal(t, domain.ResultFallback, result.Source)

		// The forwarded body carries the query's networks.
		require.Len(t, got.WifiAccessPoints, 2)
		assert.Equal(t, "0023456789ab", got.WifiAccessPoints[0].MAC)
		require.Len(t, got.CellTowers, 1)
		assert.Equal(t, "lte", got.CellTowers[0].RadioType)
		assert.Equal(t, 1234, got.CellTowers[0].CID)
	})

	t.Run("404 is a miss, not an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := NewClient(2*time.Second, logger)
		result, err := client.Locate(context.Background(), server.URL, testQuery())
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("5xx retries once", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"location": map[string]float64{"lat": 48.85, "lng": 2.35},
				"accuracy": 900.0,
			})
		}))
		defer server.Close()

		client := NewClient(2*time.Second, logger)
		result, err := client.Locate(context.Background(), server.URL, testQuery())
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.InDelta(t, 900.0, result.Accuracy, 1e-9)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("persistent 5xx fails after the retry", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		client := NewClient(2*time.Second, logger)
		_, err := client.Locate(context.Background(), server.URL, testQuery())
		assert.Error(t, err)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("4xx fails immediately", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		client := NewClient(2*time.Second, logger)
		_, err := client.Locate(context.Background(), server.URL, testQuery())
		assert.Error(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("zero accuracy is a miss", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"location": map[string]float64{"lat": 0, "lng": 0},
				"accuracy": 0.0,
			})
		}))
		defer server.Close()

		client := NewClient(2*time.Second, logger)
		result, err := client.Locate(context.Background(), server.URL, testQuery())
		require.NoError(t, err)
		assert.Nil(t, result)
	})
}
