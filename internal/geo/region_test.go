package geo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ichnaea-service/internal/geo"
)

func TestRegionIndexLookup(t *testing.T) {
	idx, err := geo.NewRegionIndex()
	require.NoError(t, err)

	t.Run("major cities resolve", func(t *testing.T) {
		assert.Equal(t, "GB", idx.Lookup(51.5074, -0.1278)) // London
		assert.Equal(t, "DE", idx.Lookup(52.52, 13.405))    // Berlin
		assert.Equal(t, "US", idx.Lookup(40.71, -74.01))    // New York
		assert.Equal(t, "JP", idx.Lookup(35.68, 139.69))    // Tokyo
	})

	t.Run("smallest polygon wins overlaps", func(t *testing.T) {
		// Monaco sits inside the France polygon; the enclave must win.
		assert.Equal(t, "MC", idx.Lookup(43.74, 7.42))
		// Just outside the enclave it is France again.
		assert.Equal(t, "FR", idx.Lookup(43.74, 7.3))
	})

	t.Run("open ocean misses", func(t *testing.T) {
		assert.Equal(t, "", idx.Lookup(0.0, -30.0))
	})
}

func TestRegionName(t *testing.T) {
	assert.Equal(t, "United Kingdom", geo.RegionName("GB"))
	assert.Equal(t, "Germany", geo.RegionName("DE"))
	// Unknown codes fall back to the code itself.
	assert.Equal(t, "XX", geo.RegionName("XX"))
}
