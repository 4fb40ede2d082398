package dto_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ichnaea-service/internal/domain"
	"github.com/ichnaea-service/internal/usecase/dto"
)

func boolPtr(v bool) *bool { return &v }
func intPtr(v int) *int    { return &v }

func TestFlexInt(t *testing.T) {
	var payload struct {
		MCC *dto.FlexInt `json:"mcc,omitempty"`
	}

	t.Run("plain number", func(t *testing.T) {
		require.NoError(t, json.Unmarshal([]byte(`{"mcc":234}`), &payload))
		require.NotNil(t, payload.MCC)
		assert.Equal(t, dto.FlexInt(234), *payload.MCC)
	})

	t.Run("quoted number", func(t *testing.T) {
		require.NoError(t, json.Unmarshal([]byte(`{"mcc":"262"}`), &payload))
		require.NotNil(t, payload.MCC)
		assert.Equal(t, dto.FlexInt(262), *payload.MCC)
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		assert.Error(t, json.Unmarshal([]byte(`{"mcc":"abc"}`), &payload))
	})
}

func TestParseGeolocateRequest(t *testing.T) {
	t.Run("empty body is an ip-only query", func(t *testing.T) {
		req, err := dto.ParseGeolocateRequest(nil)
		require.NoError(t, err)
		require.NotNil(t, req)
		assert.Empty(t, req.WifiAccessPoints)
	})

	t.Run("malformed body is rejected", func(t *testing.T) {
		_, err := dto.ParseGeolocateRequest([]byte(`{"wifiAccessPoints":`))
		assert.Error(t, err)
	})
}

func TestGeolocateRequestToQuery(t *testing.T) {
	t.Run("macs normalize and invalid networks drop", func(t *testing.T) {
		req := &dto.GeolocateRequest{
			WifiAccessPoints: []dto.WifiAccessPointDTO{
				{MacAddress: "00:23:45:67:89:AB", SignalStrength: intPtr(-60)},
				{MacAddress: "00:23:45:67:89:AC", SignalStrength: intPtr(-5)}, // implausible dBm
				{MacAddress: "not-a-mac"},
			},
		}
		q := req.ToQuery(nil, "1.2.3.4")

		require.Len(t, q.Wifis, 2)
		assert.Equal(t, domain.MAC("0023456789ab"), q.Wifis[0].MAC)
		require.NotNil(t, q.Wifis[0].Signal)
		assert.Equal(t, -60, *q.Wifis[0].Signal)
		assert.Nil(t, q.Wifis[1].Signal)
		assert.Equal(t, "1.2.3.4", q.ClientIP)
	})

	t.Run("accuracy target follows the best network class", func(t *testing.T) {
		mcc, mnc, lac, cid := dto.FlexInt(234), dto.FlexInt(15), dto.FlexInt(2), dto.FlexInt(1234)
		cases := []struct {
			name string
			req  dto.GeolocateRequest
			want float64
		}{
			{"bluetooth", dto.GeolocateRequest{
				BluetoothBeacons: []dto.BlueBeaconDTO{{MacAddress: "a01234567890"}},
			}, 100},
			{"wifi", dto.GeolocateRequest{
				WifiAccessPoints: []dto.WifiAccessPointDTO{{MacAddress: "0023456789ab"}},
			}, 500},
			{"cell", dto.GeolocateRequest{
				CellTowers: []dto.CellTowerDTO{{
					RadioType: "lte", MobileCountryCode: &mcc, MobileNetworkCode: &mnc,
					LocationAreaCode: &lac, CellID: &cid,
				}},
			}, 50000},
			{"ip only", dto.GeolocateRequest{}, 100000},
		}
		for _, c := range cases {
			t.Run(c.name, func(t *testing.T) {
				q := c.req.ToQuery(nil, "")
				assert.InDelta(t, c.want, q.MaxAccuracy, 1e-9)
			})
		}
	})

	t.Run("considerIp default and fallbacks override", func(t *testing.T) {
		q := (&dto.GeolocateRequest{}).ToQuery(nil, "")
		assert.True(t, q.Fallbacks.IPF)
		assert.True(t, q.Fallbacks.LACF)

		q = (&dto.GeolocateRequest{ConsiderIP: boolPtr(false)}).ToQuery(nil, "")
		assert.False(t, q.Fallbacks.IPF)

		q = (&dto.GeolocateRequest{
			ConsiderIP: boolPtr(false),
			Fallbacks:  &dto.FallbacksDTO{LACF: boolPtr(false), IPF: boolPtr(true)},
		}).ToQuery(nil, "")
		assert.True(t, q.Fallbacks.IPF, "explicit fallbacks section wins")
		assert.False(t, q.Fallbacks.LACF)
	})

	t.Run("tower radio falls back to the query radio", func(t *testing.T) {
		mcc := dto.FlexInt(234)
		req := &dto.GeolocateRequest{
			RadioType: "umts",
			CellTowers: []dto.CellTowerDTO{
				{MobileCountryCode: &mcc},
				{RadioType: "lte", MobileCountryCode: &mcc},
			},
		}
		q := req.ToQuery(nil, "")

		require.Len(t, q.Cells, 2)
		assert.Equal(t, "wcdma", q.Cells[0].Radio)
		assert.Equal(t, "lte", q.Cells[1].Radio)
	})

	t.Run("towers without a resolvable radio drop", func(t *testing.T) {
		mcc := dto.FlexInt(234)
		req := &dto.GeolocateRequest{
			CellTowers: []dto.CellTowerDTO{
				{RadioType: "cdma", MobileCountryCode: &mcc},
				{MobileCountryCode: &mcc},
			},
		}
		q := req.ToQuery(nil, "")
		assert.Empty(t, q.Cells)
	})

	t.Run("legacy psc alias", func(t *testing.T) {
		mcc := dto.FlexInt(234)
		req := &dto.GeolocateRequest{
			CellTowers: []dto.CellTowerDTO{
				{RadioType: "wcdma", MobileCountryCode: &mcc, PSC: intPtr(12)},
			},
		}
		q := req.ToQuery(nil, "")

		require.Len(t, q.Cells, 1)
		require.NotNil(t, q.Cells[0].PSC)
		assert.Equal(t, 12, *q.Cells[0].PSC)
	})
}
