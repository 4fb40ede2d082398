package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/config"
	"github.com/ichnaea-service/internal/domain"
	"github.com/ichnaea-service/internal/domain/repository"
	"github.com/ichnaea-service/internal/usecase"
)

// MockStationRepository is a mock of StationRepository
type MockStationRepository struct {
	mock.Mock
}

func (m *MockStationRepository) GetMany(ctx context.Context, kind domain.StationKind, shard string, ids []string) ([]*domain.Station, error) {
	args := m.Called(ctx, kind, shard, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Station), args.Error(1)
}

func (m *MockStationRepository) Upsert(ctx context.Context, kind domain.StationKind, shard string, stations []domain.Station) error {
	args := m.Called(ctx, kind, shard, stations)
	return args.Error(0)
}

func (m *MockStationRepository) ScanModifiedSince(ctx context.Context, kind domain.StationKind, shard string, since time.Time, limit int) ([]*domain.Station, error) {
	args := m.Called(ctx, kind, shard, since, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Station), args.Error(1)
}

func (m *MockStationRepository) IterByBoundingBox(ctx context.Context, kind domain.StationKind, shard string, minLat, maxLat, minLon, maxLon float64, limit int) ([]*domain.Station, error) {
	args := m.Called(ctx, kind, shard, minLat, maxLat, minLon, maxLon, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Station), args.Error(1)
}

// MockAreaRepository is a mock of AreaRepository
type MockAreaRepository struct {
	mock.Mock
}

func (m *MockAreaRepository) Get(ctx context.Context, id domain.AreaID) (*domain.CellArea, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CellArea), args.Error(1)
}

func (m *MockAreaRepository) Upsert(ctx context.Context, areas []domain.CellArea) error {
	args := m.Called(ctx, areas)
	return args.Error(0)
}

func (m *MockAreaRepository) Delete(ctx context.Context, id domain.AreaID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAreaRepository) CellsForArea(ctx context.Context, id domain.AreaID) ([]*domain.Station, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Station), args.Error(1)
}

// MockGeoIPRepository is a mock of GeoIPRepository
type MockGeoIPRepository struct {
	mock.Mock
}

func (m *MockGeoIPRepository) Lookup(ip string) (*repository.GeoIPRecord, error) {
	args := m.Called(ip)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.GeoIPRecord), args.Error(1)
}

// MockFallbackClient is a mock of FallbackClient
type MockFallbackClient struct {
	mock.Mock
}

func (m *MockFallbackClient) Locate(ctx context.Context, url string, query *domain.LocateQuery) (*domain.LocateResult, error) {
	args := m.Called(ctx, url, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LocateResult), args.Error(1)
}

// MockCacheRepository is a mock of CacheRepository
type MockCacheRepository struct {
	mock.Mock
}

func (m *MockCacheRepository) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockCacheRepository) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockCacheRepository) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// MockRateLimitRepository is a mock of RateLimitRepository
type MockRateLimitRepository struct {
	mock.Mock
}

func (m *MockRateLimitRepository) CheckAndIncrement(ctx context.Context, key, path string, day time.Time, maxReq int) (bool, int, error) {
	args := m.Called(ctx, key, path, day, maxReq)
	return args.Bool(0), args.Int(1), args.Error(2)
}

type locateMocks struct {
	stations   *MockStationRepository
	areas      *MockAreaRepository
	geoip      *MockGeoIPRepository
	fallback   *MockFallbackClient
	cache      *MockCacheRepository
	rateLimits *MockRateLimitRepository
	queues     *MockQueueRepository
}

func newLocateUseCase(t *testing.T) (*usecase.LocateUseCase, *locateMocks) {
	t.Helper()
	m := &locateMocks{
		stations:   &MockStationRepository{},
		areas:      &MockAreaRepository{},
		geoip:      &MockGeoIPRepository{},
		fallback:   &MockFallbackClient{},
		cache:      &MockCacheRepository{},
		rateLimits: &MockRateLimitRepository{},
		queues:     &MockQueueRepository{},
	}
	logger := zap.NewNop()
	submit := usecase.NewSubmitUseCase(m.queues, ingestTestConfig(), logger)
	uc := usecase.NewLocateUseCase(
		m.stations, m.areas, m.geoip, m.fallback, m.cache, m.rateLimits,
		nil, submit,
		config.LocateConfig{Deadline: 5 * time.Second, FallbackTimeout: time.Second},
		logger,
	)
	return uc, m
}

func ingestTestConfig() config.IngestConfig {
	return config.IngestConfig{
		HighWatermark:  100000,
		EnqueueRetries: 2,
		BatchIncoming:  5000,
		BatchShard:     500,
		BatchArea:      100,
		BatchDatamap:   500,
		QueueExpire:    24 * time.Hour,
	}
}

func stationAt(kind domain.StationKind, id string, lat, lon, radius float64) *domain.Station {
	return &domain.Station{
		Kind: kind, ID: id,
		Lat: &lat, Lon: &lon,
		Radius: radius, Samples: 5, Weight: 4,
	}
}

func TestLocateUseCase_BlueCluster(t *testing.T) {
	uc, m := newLocateUseCase(t)
	ctx := context.Background()

	query := &domain.LocateQuery{
		Blues: []domain.BlueNetwork{
			{MAC: "a01234567890"},
			{MAC: "a01234567891"},
		},
		MaxAccuracy: 100,
	}

	m.stations.On("GetMany", mock.Anything, domain.KindBlue, "a",
		[]string{"a01234567890", "a01234567891"}).Return([]*domain.Station{
		stationAt(domain.KindBlue, "a01234567890", 51.5, -0.1, 10),
		stationAt(domain.KindBlue, "a01234567891", 51.5001, -0.1, 10),
	}, nil)

	result, err := uc.Locate(ctx, query)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, domain.ResultBlue, result.Source)
	assert.InDelta(t, 51.50005, result.Lat, 1e-5)
	assert.InDelta(t, -0.1, result.Lon, 1e-5)
	// Two beacons meters apart; the accuracy floor applies.
	assert.InDelta(t, 10.0, result.Accuracy, 1e-9)

	// The answer satisfied the accuracy target, so no other source ran.
	m.stations.AssertNumberOfCalls(t, "GetMany", 1)
	m.geoip.AssertNotCalled(t, "Lookup", mock.Anything)
}

func TestLocateUseCase_BlueClusterSignalWeighting(t *testing.T) {
	uc, m := newLocateUseCase(t)
	ctx := context.Background()

	// Three beacons in a row, strongest reading at the southern end: the
	// estimate lands well south of the plain centroid of 51.5000100.
	query := &domain.LocateQuery{
		Blues: []domain.BlueNetwork{
			{MAC: "a01234567890", Signal: intPtr(-50)},
			{MAC: "a01234567891", Signal: intPtr(-60)},
			{MAC: "a01234567892", Signal: intPtr(-70)},
		},
		MaxAccuracy: 100,
	}

	blues := []*domain.Station{
		stationAt(domain.KindBlue, "a01234567890", 51.5000000, -0.1, 10),
		stationAt(domain.KindBlue, "a01234567891", 51.5000100, -0.1, 10),
		stationAt(domain.KindBlue, "a01234567892", 51.5000200, -0.1, 10),
	}
	for _, s := range blues {
		s.Weight = 1
	}
	m.stations.On("GetMany", mock.Anything, domain.KindBlue, "a",
		[]string{"a01234567890", "a01234567891", "a01234567892"}).Return(blues, nil)

	result, err := uc.Locate(ctx, query)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, domain.ResultBlue, result.Source)
	assert.InDelta(t, 51.5000035, result.Lat, 3e-6)
	assert.Less(t, result.Lat, 51.5000100)
	assert.InDelta(t, -0.1, result.Lon, 1e-7)
	assert.InDelta(t, 10.0, result.Accuracy, 1e-9)
}

func TestLocateUseCase_ClusterTieBreaks(t *testing.T) {
	ctx := context.Background()

	t.Run("equal score prefers more members", func(t *testing.T) {
		uc, m := newLocateUseCase(t)

		query := &domain.LocateQuery{
			Wifis: []domain.WifiNetwork{
				{MAC: "001111111111"},
				{MAC: "001111111112"},
				{MAC: "001111111113"},
				{MAC: "001111111114"},
				{MAC: "001111111115"},
			},
			MaxAccuracy: 100,
		}

		// Two stations of weight 3 versus three of weight 2: both
		// clusters score 6, the three-member one wins.
		pair := []*domain.Station{
			stationAt(domain.KindWifi, "001111111111", 51.5000, -0.1, 50),
			stationAt(domain.KindWifi, "001111111112", 51.5001, -0.1, 50),
		}
		trio := []*domain.Station{
			stationAt(domain.KindWifi, "001111111113", 52.0000, -0.1, 50),
			stationAt(domain.KindWifi, "001111111114", 52.0001, -0.1, 50),
			stationAt(domain.KindWifi, "001111111115", 52.0002, -0.1, 50),
		}
		for _, s := range pair {
			s.Weight = 3
		}
		for _, s := range trio {
			s.Weight = 2
		}
		m.stations.On("GetMany", mock.Anything, domain.KindWifi, "0", mock.Anything).
			Return(append(pair, trio...), nil)

		result, err := uc.Locate(ctx, query)
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.InDelta(t, 52.0001, result.Lat, 1e-5)
	})

	t.Run("equal score and members prefers smaller diameter", func(t *testing.T) {
		uc, m := newLocateUseCase(t)

		query := &domain.LocateQuery{
			Wifis: []domain.WifiNetwork{
				{MAC: "001111111111"},
				{MAC: "001111111112"},
				{MAC: "001111111113"},
				{MAC: "001111111114"},
			},
			MaxAccuracy: 500,
		}

		// The wide pair comes first in the store answer; the tight pair
		// still wins the tie.
		wide := []*domain.Station{
			stationAt(domain.KindWifi, "001111111111", 51.5000, -0.1, 50),
			stationAt(domain.KindWifi, "001111111112", 51.5040, -0.1, 50),
		}
		tight := []*domain.Station{
			stationAt(domain.KindWifi, "001111111113", 52.0000, -0.1, 50),
			stationAt(domain.KindWifi, "001111111114", 52.0001, -0.1, 50),
		}
		for _, s := range append(wide, tight...) {
			s.Weight = 2
		}
		m.stations.On("GetMany", mock.Anything, domain.KindWifi, "0", mock.Anything).
			Return(append(wide, tight...), nil)

		result, err := uc.Locate(ctx, query)
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.InDelta(t, 52.00005, result.Lat, 1e-5)
	})
}

func TestLocateUseCase_SingleWifiMatchIsNotEnough(t *testing.T) {
	uc, m := newLocateUseCase(t)
	ctx := context.Background()

	query := &domain.LocateQuery{
		Wifis: []domain.WifiNetwork{
			{MAC: "0023456789ab"},
			{MAC: "0023456789ac"},
		},
		MaxAccuracy: 500,
	}

	// Only one access point is known; a single station never answers.
	m.stations.On("GetMany", mock.Anything, domain.KindWifi, "0",
		[]string{"0023456789ab", "0023456789ac"}).Return([]*domain.Station{
		stationAt(domain.KindWifi, "0023456789ab", 48.85, 2.35, 50),
		nil,
	}, nil)

	result, err := uc.Locate(ctx, query)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestLocateUseCase_CellTower(t *testing.T) {
	uc, m := newLocateUseCase(t)
	ctx := context.Background()

	query := &domain.LocateQuery{
		Cells: []domain.CellNetwork{
			{Radio: "lte", MCC: 234, MNC: 15, LAC: 2, CID: 1234},
		},
		MaxAccuracy: 50000,
	}

	m.stations.On("GetMany", mock.Anything, domain.KindCell, "lte",
		[]string{"lte_234_15_2_1234"}).Return([]*domain.Station{
		stationAt(domain.KindCell, "lte_234_15_2_1234", 51.5, -0.1, 2500),
	}, nil)

	result, err := uc.Locate(ctx, query)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, domain.ResultCell, result.Source)
	assert.InDelta(t, 51.5, result.Lat, 1e-9)
	assert.InDelta(t, 2500.0, result.Accuracy, 1e-9)
	assert.Empty(t, result.Fallback)
}

func TestLocateUseCase_CellTowerAccuracyFloor(t *testing.T) {
	uc, m := newLocateUseCase(t)
	ctx := context.Background()

	query := &domain.LocateQuery{
		Cells: []domain.CellNetwork{
			{Radio: "gsm", MCC: 234, MNC: 15, LAC: 2, CID: 99},
		},
		MaxAccuracy: 50000,
	}

	// A tower with a tiny footprint still answers at the cell floor.
	m.stations.On("GetMany", mock.Anything, domain.KindCell, "gsm",
		[]string{"gsm_234_15_2_99"}).Return([]*domain.Station{
		stationAt(domain.KindCell, "gsm_234_15_2_99", 51.5, -0.1, 30),
	}, nil)

	result, err := uc.Locate(ctx, query)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.InDelta(t, 100.0, result.Accuracy, 1e-9)
}

func TestLocateUseCase_CellAreaFallback(t *testing.T) {
	uc, m := newLocateUseCase(t)
	ctx := context.Background()

	query := &domain.LocateQuery{
		Cells: []domain.CellNetwork{
			// No cell id, so only the area can match.
			{Radio: "lte", MCC: 234, MNC: 15, LAC: 2},
		},
		Fallbacks:   domain.FallbackFlags{LACF: true},
		MaxAccuracy: 50000,
	}

	areaID := domain.AreaID{Radio: domain.RadioLTE, MCC: 234, MNC: 15, LAC: 2}
	m.areas.On("Get", mock.Anything, areaID).Return(&domain.CellArea{
		ID: areaID, Lat: 51.5, Lon: -0.1, Radius: 30000, NumCells: 12, Region: "GB",
	}, nil)

	result, err := uc.Locate(ctx, query)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, domain.ResultCellArea, result.Source)
	assert.Equal(t, "lacf", result.Fallback)
	assert.Equal(t, "GB", result.Region)
	assert.InDelta(t, 30000.0, result.Accuracy, 1e-9)
}

func TestLocateUseCase_GeoIPLastResort(t *testing.T) {
	uc, m := newLocateUseCase(t)
	ctx := context.Background()

	query := &domain.LocateQuery{
		ClientIP:    "81.2.69.142",
		Fallbacks:   domain.FallbackFlags{IPF: true},
		MaxAccuracy: 100000,
	}

	m.geoip.On("Lookup", "81.2.69.142").Return(&repository.GeoIPRecord{
		Lat: 51.51, Lon: -0.09, Radius: 25000, Region: "GB", City: true,
	}, nil)

	result, err := uc.Locate(ctx, query)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, domain.ResultGeoIP, result.Source)
	assert.Equal(t, "ipf", result.Fallback)
	assert.Equal(t, "GB", result.Region)
	assert.InDelta(t, 25000.0, result.Accuracy, 1e-9)
}

func TestLocateUseCase_GeoIPDisabledByFlag(t *testing.T) {
	uc, m := newLocateUseCase(t)
	ctx := context.Background()

	query := &domain.LocateQuery{
		ClientIP:    "81.2.69.142",
		Fallbacks:   domain.FallbackFlags{IPF: false},
		MaxAccuracy: 100000,
	}

	result, err := uc.Locate(ctx, query)
	require.NoError(t, err)
	assert.Nil(t, result)
	m.geoip.AssertNotCalled(t, "Lookup", mock.Anything)
}

func TestLocateUseCase_FallbackProvider(t *testing.T) {
	uc, m := newLocateUseCase(t)
	ctx := context.Background()

	key := &domain.APIKey{
		Key:               "test",
		AllowLocate:       true,
		AllowFallback:     true,
		FallbackName:      "combain",
		FallbackURL:       "https://provider.example/v1/locate",
		FallbackRateLimit: 10,
	}
	query := &domain.LocateQuery{
		APIKey: key,
		Wifis: []domain.WifiNetwork{
			{MAC: "0023456789ab"},
			{MAC: "0023456789ac"},
		},
		Fallbacks:   domain.FallbackFlags{LACF: true, IPF: true},
		MaxAccuracy: 500,
	}

	// Neither access point is known locally.
	m.stations.On("GetMany", mock.Anything, domain.KindWifi, "0", mock.Anything).
		Return([]*domain.Station{nil, nil}, nil)
	m.cache.On("Get", mock.Anything, mock.Anything).Return(nil, nil)
	m.rateLimits.On("CheckAndIncrement", mock.Anything, "fallback:combain", "provider", mock.Anything, 10).
		Return(true, 9, nil)
	m.fallback.On("Locate", mock.Anything, key.FallbackURL, query).Return(&domain.LocateResult{
		Lat: 51.5, Lon: -0.1, Accuracy: 2000, Source: domain.ResultFallback,
	}, nil)
	m.cache.On("Set", mock.Anything, mock.Anything, mock.Anything, 86400*time.Second).Return(nil)

	result, err := uc.Locate(ctx, query)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, domain.ResultFallback, result.Source)
	// Provider answers never leak the provider name into the wire
	// fallback marker.
	assert.Empty(t, result.Fallback)
	assert.InDelta(t, 2000.0, result.Accuracy, 1e-9)
	m.cache.AssertExpectations(t)
	m.fallback.AssertExpectations(t)
}

func TestLocateUseCase_FallbackCachedMiss(t *testing.T) {
	uc, m := newLocateUseCase(t)
	ctx := context.Background()

	key := &domain.APIKey{
		Key:           "test",
		AllowLocate:   true,
		AllowFallback: true,
		FallbackName:  "combain",
		FallbackURL:   "https://provider.example/v1/locate",
	}
	query := &domain.LocateQuery{
		APIKey: key,
		Wifis: []domain.WifiNetwork{
			{MAC: "0023456789ab"},
			{MAC: "0023456789ac"},
		},
		Fallbacks:   domain.FallbackFlags{LACF: true, IPF: true},
		MaxAccuracy: 500,
	}

	m.stations.On("GetMany", mock.Anything, domain.KindWifi, "0", mock.Anything).
		Return([]*domain.Station{nil, nil}, nil)
	m.cache.On("Get", mock.Anything, mock.Anything).Return([]byte(`{"miss":true}`), nil)

	result, err := uc.Locate(ctx, query)
	require.NoError(t, err)
	assert.Nil(t, result)

	// A cached negative answer skips the outbound call entirely.
	m.fallback.AssertNotCalled(t, "Locate", mock.Anything, mock.Anything, mock.Anything)
}

func TestLocateUseCase_FallbackDisabledByQueryFlags(t *testing.T) {
	uc, m := newLocateUseCase(t)
	ctx := context.Background()

	key := &domain.APIKey{
		Key:           "test",
		AllowLocate:   true,
		AllowFallback: true,
		FallbackName:  "combain",
		FallbackURL:   "https://provider.example/v1/locate",
	}
	query := &domain.LocateQuery{
		APIKey: key,
		Wifis: []domain.WifiNetwork{
			{MAC: "0023456789ab"},
			{MAC: "0023456789ac"},
		},
		Fallbacks:   domain.FallbackFlags{LACF: false, IPF: false},
		MaxAccuracy: 500,
	}

	m.stations.On("GetMany", mock.Anything, domain.KindWifi, "0", mock.Anything).
		Return([]*domain.Station{nil, nil}, nil)

	result, err := uc.Locate(ctx, query)
	require.NoError(t, err)
	assert.Nil(t, result)

	// Opting out of every fallback keeps the provider out of the loop.
	m.cache.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	m.fallback.AssertNotCalled(t, "Locate", mock.Anything, mock.Anything, mock.Anything)
}

func TestLocateUseCase_SampleStoredQueries(t *testing.T) {
	ctx := context.Background()

	blueQuery := func(key *domain.APIKey) *domain.LocateQuery {
		return &domain.LocateQuery{
			APIKey: key,
			Blues: []domain.BlueNetwork{
				{MAC: "a01234567890"},
				{MAC: "a01234567891"},
			},
			MaxAccuracy: 100,
		}
	}
	stations := []*domain.Station{
		stationAt(domain.KindBlue, "a01234567890", 51.5, -0.1, 10),
		stationAt(domain.KindBlue, "a01234567891", 51.5001, -0.1, 10),
	}

	t.Run("full sampling feeds the answer back as a report", func(t *testing.T) {
		uc, m := newLocateUseCase(t)
		m.stations.On("GetMany", mock.Anything, domain.KindBlue, "a", mock.Anything).
			Return(stations, nil)
		m.queues.On("Size", mock.Anything, domain.QueueIncoming).Return(int64(0), nil)
		m.queues.On("Enqueue", mock.Anything, domain.QueueIncoming, mock.Anything, 5000, 24*time.Hour).
			Return(nil)

		result, err := uc.Locate(ctx, blueQuery(&domain.APIKey{Key: "test", StoreSampleLocate: 100}))
		require.NoError(t, err)
		require.NotNil(t, result)
		m.queues.AssertExpectations(t)
	})

	t.Run("zero sampling never enqueues", func(t *testing.T) {
		uc, m := newLocateUseCase(t)
		m.stations.On("GetMany", mock.Anything, domain.KindBlue, "a", mock.Anything).
			Return(stations, nil)

		result, err := uc.Locate(ctx, blueQuery(&domain.APIKey{Key: "test", StoreSampleLocate: 0}))
		require.NoError(t, err)
		require.NotNil(t, result)
		m.queues.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestLocateUseCase_Region(t *testing.T) {
	t.Run("geoip answers directly", func(t *testing.T) {
		uc, m := newLocateUseCase(t)
		m.geoip.On("Lookup", "81.2.69.142").Return(&repository.GeoIPRecord{
			Lat: 52.52, Lon: 13.4, Radius: 50000, Region: "DE",
		}, nil)

		region, err := uc.Region(context.Background(), &domain.LocateQuery{ClientIP: "81.2.69.142"})
		require.NoError(t, err)
		assert.Equal(t, "DE", region)
	})

	t.Run("empty query has no answer", func(t *testing.T) {
		uc, _ := newLocateUseCase(t)
		region, err := uc.Region(context.Background(), &domain.LocateQuery{})
		require.NoError(t, err)
		assert.Empty(t, region)
	})
}
