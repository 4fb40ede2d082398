package domain

import (
	"math"
	"sort"
	"time"

	"github.com/ichnaea-service/internal/geo"
)

// RegionLookup resolves a position to an ISO-3166 alpha-2 region code, or
// "" when unknown.
type RegionLookup func(lat, lon float64) string

// MergeStation folds a batch of observations into a station's incremental
// estimate. It is pure and deterministic: observations are re-sorted by a
// stable key before summation so equal inputs always produce bit-equal
// output.
//
// When the new centroid sits further than PositionJumpMeters from the
// station's current estimate the merge is rejected instead: the position,
// bounding box, weight and sample count reset and the block record
// advances.
//
// The returned bool is true when the station was blocked by this batch.
func MergeStation(current *Station, obs []Observation, now time.Time, regionFor RegionLookup) (Station, bool) {
	var next Station
	if current != nil {
		next = *current
	}

	if len(obs) == 0 {
		return next, false
	}

	sorted := make([]Observation, len(obs))
	copy(sorted, obs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Lat != sorted[j].Lat {
			return sorted[i].Lat < sorted[j].Lat
		}
		return sorted[i].Lon < sorted[j].Lon
	})

	next.Kind = sorted[0].Kind
	next.ID = sorted[0].ID
	next.Radio = sorted[0].Radio
	if current == nil || next.Created.IsZero() {
		next.Created = now
	}

	var sumW, sumLat, sumLon, maxAccuracy float64
	for i := range sorted {
		o := &sorted[i]
		w := o.Weight()
		sumW += w
		sumLat += w * o.Lat
		sumLon += w * o.Lon
		if o.Accuracy > maxAccuracy {
			maxAccuracy = o.Accuracy
		}
	}

	baseWeight, baseLat, baseLon := 0.0, 0.0, 0.0
	if current.HasPosition() {
		baseWeight = current.Weight
		baseLat = *current.Lat
		baseLon = *current.Lon
	}

	lat := (baseLat*baseWeight + sumLat) / (baseWeight + sumW)
	lon := (baseLon*baseWeight + sumLon) / (baseWeight + sumW)

	if current.HasPosition() {
		jump := geo.Distance(*current.Lat, *current.Lon, lat, lon)
		if jump > PositionJumpMeters {
			return blockStation(next, now), true
		}
	}

	next.Lat = &lat
	next.Lon = &lon
	next.Samples += uint64(len(sorted))
	next.Weight = baseWeight + sumW

	for i := range sorted {
		o := &sorted[i]
		next.MinLat = minPtr(next.MinLat, o.Lat)
		next.MaxLat = maxPtr(next.MaxLat, o.Lat)
		next.MinLon = minPtr(next.MinLon, o.Lon)
		next.MaxLon = maxPtr(next.MaxLon, o.Lon)
	}
	// The centroid must stay inside the box even when it is built from
	// the current estimate alone.
	next.MinLat = minPtr(next.MinLat, lat)
	next.MaxLat = maxPtr(next.MaxLat, lat)
	next.MinLon = minPtr(next.MinLon, lon)
	next.MaxLon = maxPtr(next.MaxLon, lon)

	next.Radius = boxRadius(lat, lon, next)
	if next.Radius < maxAccuracy {
		next.Radius = maxAccuracy
	}

	next.Source = bestSource(next.Source, sorted)
	if regionFor != nil {
		if region := regionFor(lat, lon); region != "" {
			next.Region = region
		}
	}
	next.Modified = now
	next.LastSeen = dateOf(now)

	return next, false
}

func blockStation(s Station, now time.Time) Station {
	today := dateOf(now)
	s.Lat, s.Lon = nil, nil
	s.MinLat, s.MaxLat, s.MinLon, s.MaxLon = nil, nil, nil, nil
	s.Radius = 0
	s.Samples = 0
	s.Weight = 0
	if s.BlockFirst == nil {
		s.BlockFirst = &today
	}
	s.BlockLast = &today
	s.BlockCount++
	s.Modified = now
	s.LastSeen = today
	return s
}

// boxRadius is the largest distance from the centroid to a bounding-box
// corner.
func boxRadius(lat, lon float64, s Station) float64 {
	if s.MinLat == nil || s.MaxLat == nil || s.MinLon == nil || s.MaxLon == nil {
		return 0
	}
	radius := 0.0
	for _, corner := range [][2]float64{
		{*s.MinLat, *s.MinLon},
		{*s.MinLat, *s.MaxLon},
		{*s.MaxLat, *s.MinLon},
		{*s.MaxLat, *s.MaxLon},
	} {
		radius = math.Max(radius, geo.Distance(lat, lon, corner[0], corner[1]))
	}
	return radius
}

func bestSource(cur ReportSource, obs []Observation) ReportSource {
	best := cur
	if best == "" {
		best = SourceQuery
	}
	for i := range obs {
		if SourceTrust(obs[i].Source) > SourceTrust(best) {
			best = obs[i].Source
		}
	}
	return best
}

func minPtr(cur *float64, v float64) *float64 {
	if cur == nil || v < *cur {
		return &v
	}
	return cur
}

func maxPtr(cur *float64, v float64) *float64 {
	if cur == nil || v > *cur {
		return &v
	}
	return cur
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
