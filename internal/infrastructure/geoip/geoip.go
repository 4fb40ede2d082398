package geoip

import (
	"fmt"
	"net"

	"github.com/oschwald/maxminddb-golang"
	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/domain/repository"
)

// cityRadiusMeters is the accuracy attributed to a city-level match;
// countryRadiusMeters to a country-only match.
const (
	cityRadiusMeters    = 25000.0
	countryRadiusMeters = 5000000.0
)

type reader struct {
	db     *maxminddb.Reader
	logger *zap.Logger
}

// New opens a MaxMind city database from disk.
func New(path string, logger *zap.Logger) (repository.GeoIPRepository, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database: %w", err)
	}
	logger.Info("GeoIP database loaded", zap.String("path", path))
	return &reader{db: db, logger: logger}, nil
}

// disabled answers every lookup with a miss, for deployments without a
// GeoIP database on disk.
type disabled struct{}

func Disabled() repository.GeoIPRepository {
	return disabled{}
}

func (disabled) Lookup(string) (*repository.GeoIPRecord, error) {
	return nil, nil
}

type mmRecord struct {
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	Location struct {
		Latitude       float64 `maxminddb:"latitude"`
		Longitude      float64 `maxminddb:"longitude"`
		AccuracyRadius uint16  `maxminddb:"accuracy_radius"`
	} `maxminddb:"location"`
}

func (r *reader) Lookup(ip string) (*repository.GeoIPRecord, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("unparseable ip %q", ip)
	}

	var record mmRecord
	if err := r.db.Lookup(parsed, &record); err != nil {
		return nil, fmt.Errorf("geoip lookup failed: %w", err)
	}
	if record.Location.Latitude == 0 && record.Location.Longitude == 0 && record.Country.ISOCode == "" {
		return nil, nil
	}

	city := len(record.City.Names) > 0
	radius := countryRadiusMeters
	if city {
		radius = cityRadiusMeters
	}
	// The database reports its own accuracy radius in kilometers; trust
	// it when present.
	if record.Location.AccuracyRadius > 0 {
		radius = float64(record.Location.AccuracyRadius) * 1000.0
	}

	return &repository.GeoIPRecord{
		Lat:    record.Location.Latitude,
		Lon:    record.Location.Longitude,
		Radius: radius,
		Region: record.Country.ISOCode,
		City:   city,
	}, nil
}
