package dto

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/ichnaea-service/internal/domain"
)

// FlexInt accepts both JSON numbers and numeric strings. Mobile clients
// are inconsistent about quoting mcc/mnc values.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.Atoi(string(data))
	if err != nil {
		return err
	}
	*f = FlexInt(v)
	return nil
}

// BlueBeaconDTO is one Bluetooth beacon in the wire format.
type BlueBeaconDTO struct {
	MacAddress     string `json:"macAddress"`
	Name           string `json:"name,omitempty"`
	SignalStrength *int   `json:"signalStrength,omitempty"`
	Age            *int64 `json:"age,omitempty"`
}

// WifiAccessPointDTO is one access point in the wire format.
type WifiAccessPointDTO struct {
	MacAddress         string `json:"macAddress"`
	SSID               string `json:"ssid,omitempty"`
	Channel            *int   `json:"channel,omitempty"`
	Frequency          *int   `json:"frequency,omitempty"`
	SignalStrength     *int   `json:"signalStrength,omitempty"`
	SignalToNoiseRatio *int   `json:"signalToNoiseRatio,omitempty"`
	Age                *int64 `json:"age,omitempty"`
}

// CellTowerDTO is one cell tower in the wire format.
type CellTowerDTO struct {
	RadioType             string   `json:"radioType,omitempty"`
	MobileCountryCode     *FlexInt `json:"mobileCountryCode,omitempty"`
	MobileNetworkCode     *FlexInt `json:"mobileNetworkCode,omitempty"`
	LocationAreaCode      *FlexInt `json:"locationAreaCode,omitempty"`
	CellID                *FlexInt `json:"cellId,omitempty"`
	PrimaryScramblingCode *int     `json:"primaryScramblingCode,omitempty"`
	PSC                   *int     `json:"psc,omitempty"` // legacy alias
	SignalStrength        *int     `json:"signalStrength,omitempty"`
	TimingAdvance         *int     `json:"timingAdvance,omitempty"`
	Age                   *int64   `json:"age,omitempty"`
}

// FallbacksDTO carries the client's fallback toggles.
type FallbacksDTO struct {
	LACF *bool `json:"lacf,omitempty"`
	IPF  *bool `json:"ipf,omitempty"`
}

// GeolocateRequest is the position query wire format.
type GeolocateRequest struct {
	CarrierName           string               `json:"carrier,omitempty"`
	ConsiderIP            *bool                `json:"considerIp,omitempty"`
	RadioType             string               `json:"radioType,omitempty"`
	HomeMobileCountryCode *FlexInt             `json:"homeMobileCountryCode,omitempty"`
	HomeMobileNetworkCode *FlexInt             `json:"homeMobileNetworkCode,omitempty"`
	BluetoothBeacons      []BlueBeaconDTO      `json:"bluetoothBeacons,omitempty"`
	CellTowers            []CellTowerDTO       `json:"cellTowers,omitempty"`
	WifiAccessPoints      []WifiAccessPointDTO `json:"wifiAccessPoints,omitempty"`
	Fallbacks             *FallbacksDTO        `json:"fallbacks,omitempty"`
}

// Accuracy targets per network class; a source result at least this good
// stops the chain.
const (
	BlueTargetAccuracy = 100.0    // meters
	WifiTargetAccuracy = 500.0    // meters
	CellTargetAccuracy = 50000.0  // meters
	IPTargetAccuracy   = 100000.0 // meters
)

// ParseGeolocateRequest decodes the JSON body. An empty body is a valid
// IP-only query.
func ParseGeolocateRequest(body []byte) (*GeolocateRequest, error) {
	req := &GeolocateRequest{}
	if len(bytes.TrimSpace(body)) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(body, req); err != nil {
		return nil, err
	}
	return req, nil
}

// ToQuery canonicalizes the request: invalid networks are dropped
// silently, signals and ages are clamped, fallback flags get their
// defaults.
func (r *GeolocateRequest) ToQuery(key *domain.APIKey, clientIP string) *domain.LocateQuery {
	q := &domain.LocateQuery{
		APIKey:   key,
		Radio:    normalizeRadio(r.RadioType),
		ClientIP: clientIP,
	}

	for _, b := range r.BluetoothBeacons {
		mac := domain.NormalizeMAC(b.MacAddress)
		if !mac.Valid() {
			continue
		}
		q.Blues = append(q.Blues, domain.BlueNetwork{
			MAC:    mac,
			Name:   b.Name,
			Signal: domain.ClampSignal(b.SignalStrength),
			AgeMS:  domain.ClampAge(b.Age),
		})
	}

	for _, w := range r.WifiAccessPoints {
		mac := domain.NormalizeMAC(w.MacAddress)
		if !mac.Valid() {
			continue
		}
		q.Wifis = append(q.Wifis, domain.WifiNetwork{
			MAC:       mac,
			SSID:      w.SSID,
			Channel:   w.Channel,
			Frequency: w.Frequency,
			Signal:    domain.ClampSignal(w.SignalStrength),
			SNR:       w.SignalToNoiseRatio,
			AgeMS:     domain.ClampAge(w.Age),
		})
	}

	for _, c := range r.CellTowers {
		cell := c.toDomain(q.Radio)
		if cell == nil {
			continue
		}
		q.Cells = append(q.Cells, *cell)
	}

	// considerIp defaults to true; an explicit fallbacks section wins.
	q.Fallbacks.LACF = true
	q.Fallbacks.IPF = r.ConsiderIP == nil || *r.ConsiderIP
	if r.Fallbacks != nil {
		if r.Fallbacks.LACF != nil {
			q.Fallbacks.LACF = *r.Fallbacks.LACF
		}
		if r.Fallbacks.IPF != nil {
			q.Fallbacks.IPF = *r.Fallbacks.IPF
		}
	}

	switch {
	case len(q.Blues) > 0:
		q.MaxAccuracy = BlueTargetAccuracy
	case len(q.Wifis) > 0:
		q.MaxAccuracy = WifiTargetAccuracy
	case len(q.Cells) > 0:
		q.MaxAccuracy = CellTargetAccuracy
	default:
		q.MaxAccuracy = IPTargetAccuracy
	}

	return q
}

func (c *CellTowerDTO) toDomain(queryRadio string) *domain.CellNetwork {
	// mcc and cid are mandatory for an exact match; partial towers are
	// still usable for the area fallback, so only mcc is required here.
	if c.MobileCountryCode == nil {
		return nil
	}
	cell := &domain.CellNetwork{
		Radio:  normalizeRadio(c.RadioType),
		MCC:    int(*c.MobileCountryCode),
		Signal: domain.ClampSignal(c.SignalStrength),
		TA:     c.TimingAdvance,
		AgeMS:  domain.ClampAge(c.Age),
	}
	if cell.Radio == "" {
		cell.Radio = queryRadio
	}
	if c.MobileNetworkCode != nil {
		cell.MNC = int(*c.MobileNetworkCode)
	}
	if c.LocationAreaCode != nil {
		cell.LAC = int(*c.LocationAreaCode)
	}
	if c.CellID != nil {
		cell.CID = int(*c.CellID)
	}
	if c.PrimaryScramblingCode != nil {
		cell.PSC = c.PrimaryScramblingCode
	} else if c.PSC != nil {
		cell.PSC = c.PSC
	}

	if _, err := domain.ParseRadio(cell.Radio); err != nil {
		return nil
	}
	return cell
}

func normalizeRadio(radio string) string {
	if r, err := domain.ParseRadio(radio); err == nil {
		return r.String()
	}
	return ""
}
