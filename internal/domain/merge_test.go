package domain_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ichnaea-service/internal/domain"
)

func blueObs(lat, lon, accuracy float64, source domain.ReportSource) domain.Observation {
	return domain.Observation{
		Kind:     domain.KindBlue,
		ID:       "a01234567890",
		Lat:      lat,
		Lon:      lon,
		Accuracy: accuracy,
		Source:   source,
	}
}

func TestMergeStationNew(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 30, 0, 0, time.UTC)
	obs := []domain.Observation{
		blueObs(51.5, -0.1, 10, domain.SourceGNSS),
		blueObs(51.5001, -0.1, 20, domain.SourceGNSS),
	}

	next, blocked := domain.MergeStation(nil, obs, now, func(lat, lon float64) string {
		return "GB"
	})
	require.False(t, blocked)

	require.True(t, next.HasPosition())
	assert.InDelta(t, 51.50005, *next.Lat, 1e-9)
	assert.InDelta(t, -0.1, *next.Lon, 1e-9)

	assert.Equal(t, domain.KindBlue, next.Kind)
	assert.Equal(t, "a01234567890", next.ID)
	assert.Equal(t, uint64(2), next.Samples)
	assert.InDelta(t, 8.0, next.Weight, 1e-9)
	assert.Equal(t, domain.SourceGNSS, next.Source)
	assert.Equal(t, "GB", next.Region)

	// The station footprint is meters across; the radius floor is the
	// worst observation accuracy.
	assert.InDelta(t, 20.0, next.Radius, 1e-9)

	require.NotNil(t, next.MinLat)
	assert.InDelta(t, 51.5, *next.MinLat, 1e-9)
	assert.InDelta(t, 51.5001, *next.MaxLat, 1e-9)

	assert.Equal(t, now, next.Created)
	assert.Equal(t, now, next.Modified)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), next.LastSeen)
}

func TestMergeStationEmptyBatch(t *testing.T) {
	lat, lon := 51.5, -0.1
	current := &domain.Station{ID: "a01234567890", Lat: &lat, Lon: &lon, Weight: 4, Samples: 1}

	next, blocked := domain.MergeStation(current, nil, time.Now(), nil)
	assert.False(t, blocked)
	assert.Equal(t, *current, next)
}

func TestMergeStationDeterministic(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 30, 0, 0, time.UTC)
	obs := []domain.Observation{
		blueObs(51.5003, -0.1002, 10, domain.SourceGNSS),
		blueObs(51.5001, -0.0998, 15, domain.SourceQuery),
		blueObs(51.4999, -0.1001, 20, domain.SourceFused),
	}
	permuted := []domain.Observation{obs[2], obs[0], obs[1]}

	a, _ := domain.MergeStation(nil, obs, now, nil)
	b, _ := domain.MergeStation(nil, permuted, now, nil)

	require.True(t, a.HasPosition())
	require.True(t, b.HasPosition())
	assert.Equal(t, math.Float64bits(*a.Lat), math.Float64bits(*b.Lat))
	assert.Equal(t, math.Float64bits(*a.Lon), math.Float64bits(*b.Lon))
	assert.Equal(t, math.Float64bits(a.Weight), math.Float64bits(b.Weight))
	assert.Equal(t, math.Float64bits(a.Radius), math.Float64bits(b.Radius))
}

func TestMergeStationJumpBlocks(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 30, 0, 0, time.UTC)
	lat, lon := 51.5, -0.1
	minLat, maxLat := 51.49, 51.51
	current := &domain.Station{
		Kind: domain.KindBlue, ID: "a01234567890",
		Lat: &lat, Lon: &lon,
		MinLat: &minLat, MaxLat: &maxLat, MinLon: &lon, MaxLon: &lon,
		Radius: 500, Samples: 12, Weight: 1,
	}

	// One strong observation 1.5 degrees north drags the merged centroid
	// well past the 100 km jump limit.
	next, blocked := domain.MergeStation(current, []domain.Observation{
		blueObs(53.0, -0.1, 10, domain.SourceGNSS),
	}, now, nil)
	require.True(t, blocked)

	assert.False(t, next.HasPosition())
	assert.Nil(t, next.MinLat)
	assert.Nil(t, next.MaxLat)
	assert.Nil(t, next.MinLon)
	assert.Nil(t, next.MaxLon)
	assert.Zero(t, next.Radius)
	assert.Zero(t, next.Samples)
	assert.Zero(t, next.Weight)

	assert.Equal(t, 1, next.BlockCount)
	require.NotNil(t, next.BlockFirst)
	require.NotNil(t, next.BlockLast)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), *next.BlockLast)

	// Blocked stations stay addressable.
	assert.Equal(t, "a01234567890", next.ID)
}

func TestMergeStationIncremental(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 30, 0, 0, time.UTC)
	lat, lon := 51.5, -0.1
	current := &domain.Station{
		Kind: domain.KindBlue, ID: "a01234567890",
		Lat: &lat, Lon: &lon,
		MinLat: &lat, MaxLat: &lat, MinLon: &lon, MaxLon: &lon,
		Samples: 3, Weight: 4, Source: domain.SourceQuery,
	}

	next, blocked := domain.MergeStation(current, []domain.Observation{
		blueObs(51.5002, -0.1, 10, domain.SourceGNSS),
	}, now, nil)
	require.False(t, blocked)

	// (51.5*4 + 51.5002*4) / 8
	assert.InDelta(t, 51.5001, *next.Lat, 1e-9)
	assert.Equal(t, uint64(4), next.Samples)
	assert.InDelta(t, 8.0, next.Weight, 1e-9)
	assert.Equal(t, domain.SourceGNSS, next.Source)
}

func TestMergeStationAssociative(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 30, 0, 0, time.UTC)
	lat, lon := 51.5, -0.1
	base := func() *domain.Station {
		return &domain.Station{
			Kind: domain.KindBlue, ID: "a01234567890",
			Lat: &lat, Lon: &lon,
			MinLat: &lat, MaxLat: &lat, MinLon: &lon, MaxLon: &lon,
			Samples: 2, Weight: 2, Source: domain.SourceQuery,
		}
	}
	xs := []domain.Observation{
		blueObs(51.5001, -0.1, 10, domain.SourceGNSS),
		blueObs(51.5002, -0.1002, 20, domain.SourceFused),
	}
	ys := []domain.Observation{
		blueObs(51.4999, -0.0999, 15, domain.SourceQuery),
		blueObs(51.5003, -0.1001, 10, domain.SourceGNSS),
	}

	// Folding two batches one after the other must agree with folding
	// their concatenation in one go.
	step, blocked := domain.MergeStation(base(), xs, now, nil)
	require.False(t, blocked)
	twoStep, blocked := domain.MergeStation(&step, ys, now, nil)
	require.False(t, blocked)

	oneStep, blocked := domain.MergeStation(base(), append(append([]domain.Observation{}, xs...), ys...), now, nil)
	require.False(t, blocked)

	assert.InDelta(t, *oneStep.Lat, *twoStep.Lat, 1e-9)
	assert.InDelta(t, *oneStep.Lon, *twoStep.Lon, 1e-9)
	assert.InDelta(t, oneStep.Weight, twoStep.Weight, 1e-9)
	assert.Equal(t, oneStep.Samples, twoStep.Samples)
	assert.InDelta(t, *oneStep.MinLat, *twoStep.MinLat, 1e-12)
	assert.InDelta(t, *oneStep.MaxLat, *twoStep.MaxLat, 1e-12)
	assert.InDelta(t, *oneStep.MinLon, *twoStep.MinLon, 1e-12)
	assert.InDelta(t, *oneStep.MaxLon, *twoStep.MaxLon, 1e-12)
	assert.InDelta(t, oneStep.Radius, twoStep.Radius, 1e-6)
	assert.Equal(t, oneStep.Source, twoStep.Source)
}
