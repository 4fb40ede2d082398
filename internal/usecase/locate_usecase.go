package usecase

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/config"
	"github.com/ichnaea-service/internal/domain"
	"github.com/ichnaea-service/internal/domain/repository"
	"github.com/ichnaea-service/internal/geo"
)

// LocateUseCase answers position queries. Sources are consulted from
// most to least precise; the chain stops as soon as the best answer
// satisfies the query's accuracy target.
type LocateUseCase struct {
	stations   repository.StationRepository
	areas      repository.AreaRepository
	geoip      repository.GeoIPRepository
	fallback   repository.FallbackClient
	cache      repository.CacheRepository
	rateLimits repository.RateLimitRepository
	regions    *geo.RegionIndex
	submit     *SubmitUseCase
	cfg        config.LocateConfig
	logger     *zap.Logger

	now func() time.Time
}

func NewLocateUseCase(
	stations repository.StationRepository,
	areas repository.AreaRepository,
	geoip repository.GeoIPRepository,
	fallback repository.FallbackClient,
	cache repository.CacheRepository,
	rateLimits repository.RateLimitRepository,
	regions *geo.RegionIndex,
	submit *SubmitUseCase,
	cfg config.LocateConfig,
	logger *zap.Logger,
) *LocateUseCase {
	return &LocateUseCase{
		stations:   stations,
		areas:      areas,
		geoip:      geoip,
		fallback:   fallback,
		cache:      cache,
		rateLimits: rateLimits,
		regions:    regions,
		submit:     submit,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Locate runs the source chain for one query. A nil result with a nil
// error means no source could answer; the transport layer turns that
// into a not-found response.
func (uc *LocateUseCase) Locate(ctx context.Context, query *domain.LocateQuery) (*domain.LocateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.cfg.Deadline)
	defer cancel()

	now := uc.now().UTC()
	var best *domain.LocateResult

	consider := func(candidate *domain.LocateResult) bool {
		if candidate == nil {
			return false
		}
		if candidate.Better(best) {
			best = candidate
		}
		return best.Accuracy <= query.MaxAccuracy
	}

	type source struct {
		name string
		run  func() (*domain.LocateResult, error)
	}
	sources := []source{
		{"blue", func() (*domain.LocateResult, error) {
			nets := make([]macQueryNet, len(query.Blues))
			for i := range query.Blues {
				nets[i] = macQueryNet{mac: query.Blues[i].MAC, signal: query.Blues[i].Signal, age: query.Blues[i].AgeMS}
			}
			return uc.positionFromMacs(ctx, domain.KindBlue, nets, now)
		}},
		{"wifi", func() (*domain.LocateResult, error) {
			nets := make([]macQueryNet, len(query.Wifis))
			for i := range query.Wifis {
				nets[i] = macQueryNet{mac: query.Wifis[i].MAC, signal: query.Wifis[i].Signal, age: query.Wifis[i].AgeMS}
			}
			return uc.positionFromMacs(ctx, domain.KindWifi, nets, now)
		}},
		{"cell", func() (*domain.LocateResult, error) {
			return uc.positionFromCells(ctx, query, now)
		}},
		{"cellarea", func() (*domain.LocateResult, error) {
			return uc.positionFromAreas(ctx, query)
		}},
		{"fallback", func() (*domain.LocateResult, error) {
			return uc.positionFromFallback(ctx, query, now)
		}},
		{"geoip", func() (*domain.LocateResult, error) {
			return uc.positionFromGeoIP(query)
		}},
	}

	for _, src := range sources {
		candidate, err := src.run()
		if err != nil {
			// A failing source degrades the answer, not the query.
			uc.logger.Warn("Locate source failed",
				zap.String("source", src.name), zap.Error(err))
			continue
		}
		if consider(candidate) {
			break
		}
	}

	if best == nil {
		return nil, nil
	}

	uc.regionForResult(best)
	uc.checkConsistency(query, best)
	uc.maybeSample(ctx, query, best)

	return best, nil
}

// positionFromGeoIP is the last-resort source: the client IP resolved
// against the local GeoIP database.
func (uc *LocateUseCase) positionFromGeoIP(query *domain.LocateQuery) (*domain.LocateResult, error) {
	if !query.Fallbacks.IPF || query.ClientIP == "" || uc.geoip == nil {
		return nil, nil
	}
	record, err := uc.geoip.Lookup(query.ClientIP)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}
	return &domain.LocateResult{
		Lat:      record.Lat,
		Lon:      record.Lon,
		Accuracy: record.Radius,
		Source:   domain.ResultGeoIP,
		Region:   record.Region,
		Fallback: "ipf",
	}, nil
}

// checkConsistency compares a station-derived answer against the GeoIP
// view of the client. Disagreement is logged, never corrected;
// travelling devices legitimately query far from their IP location.
// GeoIP is the only reference compared against: the source chain
// short-circuits, so candidates from lower-priority station sources are
// usually never produced, while the GeoIP record is always available.
func (uc *LocateUseCase) checkConsistency(query *domain.LocateQuery, result *domain.LocateResult) {
	if uc.geoip == nil || query.ClientIP == "" || result.Source == domain.ResultGeoIP {
		return
	}
	record, err := uc.geoip.Lookup(query.ClientIP)
	if err != nil || record == nil {
		return
	}
	distance := geo.Distance(result.Lat, result.Lon, record.Lat, record.Lon)
	if distance > record.Radius {
		uc.logger.Debug("Locate answer outside GeoIP area",
			zap.String("source", string(result.Source)),
			zap.Float64("distance_m", distance),
			zap.Float64("geoip_radius_m", record.Radius))
	}
}

// maybeSample re-submits a fraction of successful locate queries as
// reports, per the key's store_sample_locate percentage. The sampled
// report uses the answer as a query-sourced position.
func (uc *LocateUseCase) maybeSample(ctx context.Context, query *domain.LocateQuery, result *domain.LocateResult) {
	key := query.APIKey
	if key == nil || key.StoreSampleLocate <= 0 || uc.submit == nil {
		return
	}
	// Only precise station answers are worth feeding back.
	if result.Source != domain.ResultBlue && result.Source != domain.ResultWifi && result.Source != domain.ResultCell {
		return
	}
	if rand.Intn(100) >= key.StoreSampleLocate {
		return
	}

	report := domain.Report{
		Timestamp: uc.now().UTC(),
		Position: domain.Position{
			Lat:      result.Lat,
			Lon:      result.Lon,
			Accuracy: result.Accuracy,
			Source:   domain.SourceQuery,
		},
		Blues: query.Blues,
		Wifis: query.Wifis,
		Cells: query.Cells,
	}
	if err := uc.submit.Queue(ctx, []domain.Report{report}); err != nil {
		uc.logger.Warn("Locate sample enqueue failed", zap.Error(err))
	}
}

// Region answers the coarse country query. GeoIP alone usually
// suffices; when the client supplied networks the full chain runs and
// the answer's position resolves through the polygon index.
func (uc *LocateUseCase) Region(ctx context.Context, query *domain.LocateQuery) (string, error) {
	if query.ClientIP != "" && uc.geoip != nil {
		if record, err := uc.geoip.Lookup(query.ClientIP); err == nil && record != nil && record.Region != "" {
			return record.Region, nil
		}
	}

	if len(query.Blues)+len(query.Wifis)+len(query.Cells) == 0 {
		return "", nil
	}
	result, err := uc.Locate(ctx, query)
	if err != nil || result == nil {
		return "", err
	}
	return result.Region, nil
}
