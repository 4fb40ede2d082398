package geo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ichnaea-service/internal/geo"
)

func TestGridEncode(t *testing.T) {
	t.Run("known encoding", func(t *testing.T) {
		// floor(51.5*1000)+90000 = 141500, floor(-0.1*1000)+180000 = 179900
		g := geo.GridEncode(51.5, -0.1)
		assert.Equal(t, geo.GridID(141500<<32|179900), g)
	})

	t.Run("decode returns the cell corner", func(t *testing.T) {
		g := geo.GridEncode(51.5004, -0.1002)
		lat, lon := g.Decode()
		assert.InDelta(t, 51.500, lat, 1e-9)
		assert.InDelta(t, -0.101, lon, 1e-9)
	})

	t.Run("nearby points share a cell", func(t *testing.T) {
		assert.Equal(t, geo.GridEncode(51.5001, -0.1001), geo.GridEncode(51.5009, -0.1009))
		assert.NotEqual(t, geo.GridEncode(51.5001, -0.1001), geo.GridEncode(51.5011, -0.1001))
	})
}

func TestGridQuadrant(t *testing.T) {
	cases := []struct {
		lat, lon float64
		want     geo.GridQuadrant
	}{
		{51.5, 13.4, geo.GridNE},
		{51.5, -0.1, geo.GridNW},
		{-33.9, 151.2, geo.GridSE},
		{-23.5, -46.6, geo.GridSW},
		{0, 0, geo.GridNE},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, geo.GridEncode(c.lat, c.lon).Quadrant())
	}
}
