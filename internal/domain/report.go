package domain

import (
	"math"
	"time"
)

// ReportSource tells how the position of a report was obtained. GNSS
// positions carry the highest trust.
type ReportSource string

const (
	SourceGNSS  ReportSource = "gnss"
	SourceQuery ReportSource = "query"
	SourceFused ReportSource = "fused"
)

// SourceTrust is the base observation weight per report source.
func SourceTrust(s ReportSource) float64 {
	switch s {
	case SourceGNSS:
		return 4
	case SourceFused:
		return 2
	default:
		return 1
	}
}

const (
	MinSignal = -150 // dBm
	MaxSignal = -10
	MaxAgeMS  = 60000
)

// Position is the GNSS-tagged location attached to a report.
type Position struct {
	Lat      float64      `json:"latitude"`
	Lon      float64      `json:"longitude"`
	Accuracy float64      `json:"accuracy"`
	Source   ReportSource `json:"source"`
}

// BlueNetwork is one observed Bluetooth beacon inside a report.
type BlueNetwork struct {
	MAC    MAC    `json:"macAddress"`
	Name   string `json:"name,omitempty"`
	Signal *int   `json:"signalStrength,omitempty"`
	AgeMS  *int64 `json:"age,omitempty"`
}

// WifiNetwork is one observed access point inside a report.
type WifiNetwork struct {
	MAC       MAC    `json:"macAddress"`
	SSID      string `json:"ssid,omitempty"`
	Channel   *int   `json:"channel,omitempty"`
	Frequency *int   `json:"frequency,omitempty"`
	Signal    *int   `json:"signalStrength,omitempty"`
	SNR       *int   `json:"signalToNoiseRatio,omitempty"`
	AgeMS     *int64 `json:"age,omitempty"`
}

// CellNetwork is one observed cell tower inside a report.
type CellNetwork struct {
	Radio  string `json:"radioType,omitempty"` // overrides the report radio
	MCC    int    `json:"mobileCountryCode"`
	MNC    int    `json:"mobileNetworkCode"`
	LAC    int    `json:"locationAreaCode"`
	CID    int    `json:"cellId"`
	PSC    *int   `json:"primaryScramblingCode,omitempty"`
	Signal *int   `json:"signalStrength,omitempty"`
	TA     *int   `json:"timingAdvance,omitempty"`
	AgeMS  *int64 `json:"age,omitempty"`
}

// Report is one crowd-sourced measurement: a position plus the networks
// visible from it.
type Report struct {
	Timestamp time.Time     `json:"timestamp"`
	Position  Position      `json:"position"`
	RadioType string        `json:"radioType,omitempty"`
	Blues     []BlueNetwork `json:"bluetoothBeacons,omitempty"`
	Cells     []CellNetwork `json:"cellTowers,omitempty"`
	Wifis     []WifiNetwork `json:"wifiAccessPoints,omitempty"`
}

// Valid reports whether the report as a whole is usable. Individual bad
// networks are dropped later without rejecting the report.
func (r *Report) Valid() bool {
	if r.Position.Lat == 0 && r.Position.Lon == 0 && r.Position.Accuracy == 0 {
		return false
	}
	return r.Position.Lat >= -90 && r.Position.Lat <= 90 &&
		r.Position.Lon >= -180 && r.Position.Lon <= 180
}

// Observation is the per-network slice of a report, the unit flowing
// through the shard queues.
type Observation struct {
	Kind  StationKind `json:"kind"`
	ID    string      `json:"id"`
	Radio Radio       `json:"radio,omitempty"` // cells only

	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Accuracy float64 `json:"accuracy"`

	AgeMS  *int64       `json:"age,omitempty"`
	Signal *int         `json:"signal,omitempty"`
	Source ReportSource `json:"source"`
}

// Weight combines source trust, measurement age and signal strength into
// the scalar used for centroid updates.
func (o *Observation) Weight() float64 {
	w := SourceTrust(o.Source)

	age := int64(1)
	if o.AgeMS != nil && *o.AgeMS > 1 {
		age = *o.AgeMS
	}
	w *= math.Min(math.Sqrt(2000.0/float64(age)), 1.0)

	if o.Signal != nil && *o.Signal != 0 {
		s := float64(*o.Signal)
		w *= 1.0 / (s * s)
	}
	return w
}

// ClampSignal returns nil for signal readings outside the plausible dBm
// range; the observation itself is kept.
func ClampSignal(signal *int) *int {
	if signal == nil || *signal < MinSignal || *signal > MaxSignal {
		return nil
	}
	return signal
}

// ClampAge returns nil for ages outside [0, 60s].
func ClampAge(age *int64) *int64 {
	if age == nil || *age < 0 || *age > MaxAgeMS {
		return nil
	}
	return age
}
