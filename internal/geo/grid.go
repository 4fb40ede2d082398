package geo

import "math"

// GridID is the 64-bit encoding of a 0.001 degree datamap cell. The upper
// 32 bits carry floor(lat*1000)+90000, the lower 32 bits
// floor(lon*1000)+180000.
type GridID uint64

// GridQuadrant names the four datamap partitions.
type GridQuadrant string

const (
	GridNE GridQuadrant = "ne"
	GridNW GridQuadrant = "nw"
	GridSE GridQuadrant = "se"
	GridSW GridQuadrant = "sw"
)

const (
	gridLatOffset = 90000
	gridLonOffset = 180000
)

// GridEncode maps a position to its datamap cell.
func GridEncode(lat, lon float64) GridID {
	scaledLat := uint64(int64(math.Floor(lat*1000)) + gridLatOffset)
	scaledLon := uint64(int64(math.Floor(lon*1000)) + gridLonOffset)
	return GridID(scaledLat<<32 | scaledLon&0xffffffff)
}

// Decode returns the south-west corner of the grid cell.
func (g GridID) Decode() (lat, lon float64) {
	scaledLat := int64(g>>32) - gridLatOffset
	scaledLon := int64(g&0xffffffff) - gridLonOffset
	return float64(scaledLat) / 1000.0, float64(scaledLon) / 1000.0
}

// Quadrant returns the datamap shard for a grid cell, by the sign of the
// scaled latitude and longitude. Cells on the equator or prime meridian
// count as north/east.
func (g GridID) Quadrant() GridQuadrant {
	lat, lon := g.Decode()
	north := lat >= 0
	east := lon >= 0
	switch {
	case north && east:
		return GridNE
	case north:
		return GridNW
	case east:
		return GridSE
	default:
		return GridSW
	}
}
