package usecase

import (
	"context"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/ichnaea-service/internal/domain"
	"github.com/ichnaea-service/internal/geo"
)

const (
	// Single-linkage cluster cutoffs: two stations further apart than
	// this can not belong to the same physical neighborhood.
	BlueClusterMeters = 100.0
	WifiClusterMeters = 500.0

	// MaxClusterSize caps how many stations contribute to one position.
	MaxClusterSize = 10

	// MinClusterSize is the number of distinct matched stations needed
	// before a MAC-based answer is trusted at all.
	MinClusterSize = 2

	BlueMinAccuracy = 10.0
	BlueMaxAccuracy = 1000.0
	WifiMinAccuracy = 20.0
	WifiMaxAccuracy = 5000.0

	positionIterations = 20
)

// macQueryNet is one network reference inside a locate query.
type macQueryNet struct {
	mac    domain.MAC
	signal *int
	age    *int64
}

// macMember pairs a matched station with the query-side signal and age
// of the network that referenced it.
type macMember struct {
	station *domain.Station
	signal  *int
	age     *int64
}

// queryWeight is min(sqrt(2000/age), 1) / signal^2, the residual weight
// of one query network in the position estimate. Missing readings fall
// back to the neutral factor 1.
func (m macMember) queryWeight() float64 {
	w := 1.0
	if m.age != nil && *m.age > 1 {
		w *= math.Min(math.Sqrt(2000.0/float64(*m.age)), 1.0)
	}
	if m.signal != nil && *m.signal != 0 {
		s := float64(*m.signal)
		w /= s * s
	}
	return w
}

// positionFromMacs resolves a set of observed MAC networks to a position
// candidate, or nil when no trustworthy cluster exists.
func (uc *LocateUseCase) positionFromMacs(ctx context.Context, kind domain.StationKind, nets []macQueryNet, now time.Time) (*domain.LocateResult, error) {
	if len(nets) < MinClusterSize {
		return nil, nil
	}

	stations, err := uc.fetchMacStations(ctx, kind, nets)
	if err != nil {
		return nil, err
	}

	// Pair every matched station back to its query network; duplicate
	// references keep the strongest signal reading.
	byID := make(map[string]macQueryNet, len(nets))
	for _, n := range nets {
		prev, ok := byID[string(n.mac)]
		if !ok || (n.signal != nil && (prev.signal == nil || *n.signal > *prev.signal)) {
			byID[string(n.mac)] = n
		}
	}

	usable := make([]macMember, 0, len(stations))
	for _, s := range stations {
		if s.HasPosition() && !s.Blocked(now) {
			net := byID[s.ID]
			usable = append(usable, macMember{station: s, signal: net.signal, age: net.age})
		}
	}
	if len(usable) < MinClusterSize {
		return nil, nil
	}

	cutoff := WifiClusterMeters
	source := domain.ResultWifi
	minAcc, maxAcc := WifiMinAccuracy, WifiMaxAccuracy
	if kind == domain.KindBlue {
		cutoff = BlueClusterMeters
		source = domain.ResultBlue
		minAcc, maxAcc = BlueMinAccuracy, BlueMaxAccuracy
	}

	cluster := bestCluster(usable, cutoff, now)
	if len(cluster) < MinClusterSize {
		return nil, nil
	}

	lat, lon, accuracy := aggregatePosition(cluster)
	result := &domain.LocateResult{
		Lat:      lat,
		Lon:      lon,
		Accuracy: clampAccuracy(accuracy, minAcc, maxAcc),
		Source:   source,
	}
	return result, nil
}

// fetchMacStations loads the query's stations shard by shard, preserving
// only hits.
func (uc *LocateUseCase) fetchMacStations(ctx context.Context, kind domain.StationKind, nets []macQueryNet) ([]*domain.Station, error) {
	byShard := make(map[string][]string)
	seen := make(map[domain.MAC]struct{}, len(nets))
	for _, n := range nets {
		if _, dup := seen[n.mac]; dup {
			continue
		}
		seen[n.mac] = struct{}{}
		shard := n.mac.ShardID()
		byShard[shard] = append(byShard[shard], string(n.mac))
	}

	shards := make([]string, 0, len(byShard))
	for shard := range byShard {
		shards = append(shards, shard)
	}
	sort.Strings(shards)

	var stations []*domain.Station
	for _, shard := range shards {
		rows, err := uc.stations.GetMany(ctx, kind, shard, byShard[shard])
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if row != nil {
				stations = append(stations, row)
			}
		}
	}
	return stations, nil
}

// bestCluster runs single-linkage agglomerative clustering with the
// given distance cutoff and returns the cluster with the highest summed
// station score, capped at MaxClusterSize members. Score ties between
// clusters prefer more members, then the smaller geographic diameter.
func bestCluster(members []macMember, cutoff float64, now time.Time) []macMember {
	n := len(members)
	stations := make([]*domain.Station, n)
	for i := range members {
		stations[i] = members[i].station
	}
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	// Single linkage: joining any pair below the cutoff merges their
	// clusters transitively.
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := geo.Distance(*stations[i].Lat, *stations[i].Lon, *stations[j].Lat, *stations[j].Lon)
			if d <= cutoff {
				parent[find(i)] = find(j)
			}
		}
	}

	clusters := make(map[int][]macMember)
	for i := 0; i < n; i++ {
		root := find(i)
		clusters[root] = append(clusters[root], members[i])
	}

	var best []macMember
	bestScore := -1.0
	bestDiameter := 0.0
	roots := make([]int, 0, len(clusters))
	for root := range clusters {
		roots = append(roots, root)
	}
	sort.Ints(roots) // final tie-break: lowest input index wins
	for _, root := range roots {
		candidate := clusters[root]
		score := 0.0
		for _, m := range candidate {
			score += m.station.Score(now)
		}
		switch {
		case score > bestScore:
		case score < bestScore:
			continue
		case len(candidate) != len(best):
			if len(candidate) < len(best) {
				continue
			}
		default:
			if clusterDiameter(candidate) >= bestDiameter {
				continue
			}
		}
		bestScore = score
		bestDiameter = clusterDiameter(candidate)
		best = candidate
	}

	// Order members by score, strongest query signal breaking ties, so
	// truncation keeps the best sample of networks.
	sort.SliceStable(best, func(i, j int) bool {
		si, sj := best[i].station.Score(now), best[j].station.Score(now)
		if si != sj {
			return si > sj
		}
		gi, gj := math.Inf(-1), math.Inf(-1)
		if best[i].signal != nil {
			gi = float64(*best[i].signal)
		}
		if best[j].signal != nil {
			gj = float64(*best[j].signal)
		}
		if gi != gj {
			return gi > gj
		}
		return best[i].station.ID < best[j].station.ID
	})
	if len(best) > MaxClusterSize {
		best = best[:MaxClusterSize]
	}
	return best
}

// clusterDiameter is the largest pairwise member distance.
func clusterDiameter(members []macMember) float64 {
	diameter := 0.0
	for i := range members {
		for j := i + 1; j < len(members); j++ {
			d := geo.Distance(
				*members[i].station.Lat, *members[i].station.Lon,
				*members[j].station.Lat, *members[j].station.Lon)
			if d > diameter {
				diameter = d
			}
		}
	}
	return diameter
}

// aggregatePosition estimates a position from a cluster: weighted
// centroid start, then a damped Gauss-Newton refinement of the summed
// squared residuals, then the 95th percentile member distance as the
// accuracy radius. Each member's residual is its distance scaled by the
// query-side age and signal factors, so a strong fresh reading pulls
// the estimate harder than a weak stale one.
func aggregatePosition(cluster []macMember) (lat, lon, accuracy float64) {
	weights := make([]float64, len(cluster))
	points := make([]geo.LatLon, len(cluster))
	for i, m := range cluster {
		qw := m.queryWeight()
		weights[i] = qw * qw
		points[i] = geo.LatLon{Lat: *m.station.Lat, Lon: *m.station.Lon}
	}

	center := geo.Centroid(points, weights)
	center = refinePosition(center, points, weights)

	distances := make([]float64, len(points))
	for i, p := range points {
		distances[i] = geo.DistanceLL(center, p)
	}
	sorted := append([]float64(nil), distances...)
	sort.Float64s(sorted)
	accuracy = stat.Quantile(0.95, stat.Empirical, sorted, nil)

	return center.Lat, center.Lon, accuracy
}

// refinePosition runs up to positionIterations damped Gauss-Newton steps
// on the weighted squared-distance objective. The planar centroid is
// already close; the refinement corrects for longitude compression at
// the cluster's latitude.
func refinePosition(start geo.LatLon, points []geo.LatLon, weights []float64) geo.LatLon {
	const (
		latStep = 1e-7 // degrees, finite-difference step
		tol     = 1e-10
	)
	current := start

	objective := func(p geo.LatLon) float64 {
		sum := 0.0
		for i := range points {
			d := geo.DistanceLL(p, points[i])
			sum += weights[i] * d * d
		}
		return sum
	}

	lambda := 1e-3
	for iter := 0; iter < positionIterations; iter++ {
		// Numeric gradient and Hessian of the objective in degree space.
		f0 := objective(current)
		fLat := objective(geo.LatLon{Lat: current.Lat + latStep, Lon: current.Lon})
		fLon := objective(geo.LatLon{Lat: current.Lat, Lon: current.Lon + latStep})
		fLatLat := objective(geo.LatLon{Lat: current.Lat - latStep, Lon: current.Lon})
		fLonLon := objective(geo.LatLon{Lat: current.Lat, Lon: current.Lon - latStep})
		fCross := objective(geo.LatLon{Lat: current.Lat + latStep, Lon: current.Lon + latStep})

		gLat := (fLat - fLatLat) / (2 * latStep)
		gLon := (fLon - fLonLon) / (2 * latStep)
		hLatLat := (fLat - 2*f0 + fLatLat) / (latStep * latStep)
		hLonLon := (fLon - 2*f0 + fLonLon) / (latStep * latStep)
		hCross := (fCross - fLat - fLon + f0) / (latStep * latStep)

		hessian := mat.NewSymDense(2, []float64{
			hLatLat + lambda, hCross,
			hCross, hLonLon + lambda,
		})
		gradient := mat.NewVecDense(2, []float64{gLat, gLon})

		var step mat.VecDense
		var chol mat.Cholesky
		if !chol.Factorize(hessian) {
			lambda *= 10
			continue
		}
		if err := chol.SolveVecTo(&step, gradient); err != nil {
			lambda *= 10
			continue
		}

		next := geo.LatLon{
			Lat: current.Lat - step.AtVec(0),
			Lon: current.Lon - step.AtVec(1),
		}
		if !geo.ValidateCoordinates(next.Lat, next.Lon) {
			break
		}
		if objective(next) >= f0 {
			lambda *= 10
			if lambda > 1e9 {
				break
			}
			continue
		}
		moved := geo.DistanceLL(current, next)
		current = next
		lambda /= 10
		if moved < tol*geo.EarthRadiusMeters {
			break
		}
	}
	return current
}

func clampAccuracy(accuracy, min, max float64) float64 {
	if accuracy < min {
		return min
	}
	if max > 0 && accuracy > max {
		return max
	}
	return accuracy
}
