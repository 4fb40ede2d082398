package dto

import (
	"encoding/json"
	"time"

	"github.com/ichnaea-service/internal/domain"
)

// PositionDTO is the nested position block of a geosubmit item.
type PositionDTO struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Source    string   `json:"source,omitempty"`
	Age       *int64   `json:"age,omitempty"`
}

// SubmitItem is one measurement in a geosubmit batch. Older clients put
// the position fields directly on the item; the nested position block
// wins when both are present.
type SubmitItem struct {
	Timestamp *int64       `json:"timestamp,omitempty"` // unix milliseconds
	Position  *PositionDTO `json:"position,omitempty"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`

	RadioType        string               `json:"radioType,omitempty"`
	BluetoothBeacons []BlueBeaconDTO      `json:"bluetoothBeacons,omitempty"`
	CellTowers       []CellTowerDTO       `json:"cellTowers,omitempty"`
	WifiAccessPoints []WifiAccessPointDTO `json:"wifiAccessPoints,omitempty"`
}

// SubmitRequest is the geosubmit wire format.
type SubmitRequest struct {
	Items []SubmitItem `json:"items"`
}

// ParseSubmitRequest decodes a geosubmit body.
func ParseSubmitRequest(body []byte) (*SubmitRequest, error) {
	req := &SubmitRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		return nil, err
	}
	return req, nil
}

// ToReports converts the batch into domain reports, dropping items
// without a usable position. Invalid networks inside a kept item are
// dropped individually.
func (r *SubmitRequest) ToReports(now time.Time) []domain.Report {
	reports := make([]domain.Report, 0, len(r.Items))
	for i := range r.Items {
		if report, ok := r.Items[i].toReport(now); ok {
			reports = append(reports, report)
		}
	}
	return reports
}

func (it *SubmitItem) toReport(now time.Time) (domain.Report, bool) {
	report := domain.Report{
		Timestamp: now,
		RadioType: normalizeRadio(it.RadioType),
	}
	if it.Timestamp != nil && *it.Timestamp > 0 {
		report.Timestamp = time.UnixMilli(*it.Timestamp).UTC()
	}

	lat, lon, acc := it.Latitude, it.Longitude, it.Accuracy
	source := domain.SourceGNSS
	if it.Position != nil {
		if it.Position.Latitude != nil {
			lat = it.Position.Latitude
		}
		if it.Position.Longitude != nil {
			lon = it.Position.Longitude
		}
		if it.Position.Accuracy != nil {
			acc = it.Position.Accuracy
		}
		switch domain.ReportSource(it.Position.Source) {
		case domain.SourceGNSS, domain.SourceQuery, domain.SourceFused:
			source = domain.ReportSource(it.Position.Source)
		}
	}
	if lat == nil || lon == nil {
		return domain.Report{}, false
	}
	report.Position = domain.Position{
		Lat:    *lat,
		Lon:    *lon,
		Source: source,
	}
	if acc != nil && *acc > 0 {
		report.Position.Accuracy = *acc
	}
	if !report.Valid() {
		return domain.Report{}, false
	}

	for _, b := range it.BluetoothBeacons {
		mac := domain.NormalizeMAC(b.MacAddress)
		if !mac.Valid() {
			continue
		}
		report.Blues = append(report.Blues, domain.BlueNetwork{
			MAC:    mac,
			Name:   b.Name,
			Signal: domain.ClampSignal(b.SignalStrength),
			AgeMS:  domain.ClampAge(b.Age),
		})
	}
	for _, w := range it.WifiAccessPoints {
		mac := domain.NormalizeMAC(w.MacAddress)
		if !mac.Valid() {
			continue
		}
		report.Wifis = append(report.Wifis, domain.WifiNetwork{
			MAC:       mac,
			SSID:      w.SSID,
			Channel:   w.Channel,
			Frequency: w.Frequency,
			Signal:    domain.ClampSignal(w.SignalStrength),
			SNR:       w.SignalToNoiseRatio,
			AgeMS:     domain.ClampAge(w.Age),
		})
	}
	for _, c := range it.CellTowers {
		if cell := c.toDomain(report.RadioType); cell != nil {
			report.Cells = append(report.Cells, *cell)
		}
	}

	if len(report.Blues)+len(report.Wifis)+len(report.Cells) == 0 {
		return domain.Report{}, false
	}
	return report, true
}
