package geo

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/golang/geo/s2"
	geojson "github.com/paulmach/go.geojson"
)

//go:embed regions.geojson
var bundledRegions []byte

// RegionIndex answers ISO-3166 alpha-2 region lookups for positions by
// point-in-polygon tests against a set of country polygons. When a point
// lies inside several polygons (border areas, enclaves) the polygon with
// the smallest spherical area wins, deterministically.
type RegionIndex struct {
	regions []regionPolygon
}

type regionPolygon struct {
	code string
	loop *s2.Loop
	area float64
}

// NewRegionIndex builds an index from the bundled country polygons.
func NewRegionIndex() (*RegionIndex, error) {
	return newRegionIndexFromGeoJSON(bundledRegions)
}

// NewRegionIndexFromFile builds an index from an external GeoJSON file,
// overriding the bundled dataset.
func NewRegionIndexFromFile(path string) (*RegionIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read region file: %w", err)
	}
	return newRegionIndexFromGeoJSON(data)
}

func newRegionIndexFromGeoJSON(data []byte) (*RegionIndex, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse region polygons: %w", err)
	}

	idx := &RegionIndex{}
	for _, f := range fc.Features {
		code, err := f.PropertyString("alpha2")
		if err != nil || len(code) != 2 {
			continue
		}
		if f.Geometry.IsPolygon() {
			idx.addPolygon(code, f.Geometry.Polygon)
		} else if f.Geometry.IsMultiPolygon() {
			for _, poly := range f.Geometry.MultiPolygon {
				idx.addPolygon(code, poly)
			}
		}
	}

	// Smallest polygon first so the first containing hit wins ties.
	sort.SliceStable(idx.regions, func(i, j int) bool {
		return idx.regions[i].area < idx.regions[j].area
	})
	return idx, nil
}

// addPolygon indexes the outer ring of one polygon. Holes are rare in the
// country dataset and covered by the enclave polygon sorting first.
func (idx *RegionIndex) addPolygon(code string, rings [][][]float64) {
	if len(rings) == 0 || len(rings[0]) < 4 {
		return
	}
	outer := rings[0]

	// GeoJSON rings repeat the first vertex at the end; s2 loops do not.
	points := make([]s2.Point, 0, len(outer)-1)
	for _, coord := range outer[:len(outer)-1] {
		points = append(points, s2.PointFromLatLng(s2.LatLngFromDegrees(coord[1], coord[0])))
	}

	loop := s2.LoopFromPoints(points)
	loop.Normalize()
	idx.regions = append(idx.regions, regionPolygon{
		code: code,
		loop: loop,
		area: loop.Area(),
	})
}

// Lookup returns the region code containing the position, or "" when no
// polygon matches (open sea, unmapped territory).
func (idx *RegionIndex) Lookup(lat, lon float64) string {
	point := s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lon))
	for _, r := range idx.regions {
		if r.loop.ContainsPoint(point) {
			return r.code
		}
	}
	return ""
}
