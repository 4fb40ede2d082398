package domain

import (
	"time"
)

// StationKind partitions stations by network technology.
type StationKind string

const (
	KindBlue StationKind = "blue"
	KindWifi StationKind = "wifi"
	KindCell StationKind = "cell"
)

const (
	// TempBlockDays is the cool-down after a detected station move during
	// which the station stays out of queries and updates.
	TempBlockDays = 7

	// PermanentBlockThreshold is the number of block episodes after which
	// a station is never trusted again.
	PermanentBlockThreshold = 6

	// PositionJumpMeters is the distance between a station's estimate and
	// a new merged centroid that counts as a move.
	PositionJumpMeters = 100000.0
)

// Station is the persisted position estimate for one network.
// Lat/Lon are nil until the station has at least one accepted observation
// and after every block reset.
type Station struct {
	Kind  StationKind `db:"-"`
	ID    string      `db:"id"`
	Radio Radio       `db:"-"` // cells only

	Lat    *float64 `db:"lat"`
	Lon    *float64 `db:"lon"`
	MaxLat *float64 `db:"max_lat"`
	MinLat *float64 `db:"min_lat"`
	MaxLon *float64 `db:"max_lon"`
	MinLon *float64 `db:"min_lon"`

	Radius  float64      `db:"radius"`
	Samples uint64       `db:"samples"`
	Weight  float64      `db:"weight"`
	Source  ReportSource `db:"source"`
	Region  string       `db:"region"`

	Created  time.Time `db:"created"`
	Modified time.Time `db:"modified"`
	LastSeen time.Time `db:"last_seen"` // date granularity

	BlockFirst *time.Time `db:"block_first"`
	BlockLast  *time.Time `db:"block_last"`
	BlockCount int        `db:"block_count"`
}

// HasPosition reports whether the station carries a usable estimate.
func (s *Station) HasPosition() bool {
	return s != nil && s.Lat != nil && s.Lon != nil
}

// Blocked reports whether the station is suppressed on the given date:
// either still inside the temporary cool-down window or permanently
// blocked by repeat offenses.
func (s *Station) Blocked(today time.Time) bool {
	if s == nil {
		return false
	}
	if s.BlockCount >= PermanentBlockThreshold {
		return true
	}
	if s.BlockLast == nil {
		return false
	}
	cutoff := today.AddDate(0, 0, -TempBlockDays)
	return !s.BlockLast.Before(cutoff)
}

// Score is the cluster-selection score of a station: its stored weight
// with a bonus when the station was confirmed today.
func (s *Station) Score(today time.Time) float64 {
	score := s.Weight
	if sameDate(s.LastSeen, today) {
		score *= SeenTodayBonus
	}
	return score
}

// SeenTodayBonus boosts stations confirmed on the query day during
// cluster selection.
const SeenTodayBonus = 1.25

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
