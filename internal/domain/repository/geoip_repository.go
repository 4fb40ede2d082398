package repository

import (
	"context"

	"github.com/ichnaea-service/internal/domain"
)

// GeoIPRecord is a city-granularity IP position.
type GeoIPRecord struct {
	Lat    float64
	Lon    float64
	Radius float64 // city radius in meters
	Region string
	City   bool
}

// GeoIPRepository answers client-IP lookups from a local database.
type GeoIPRepository interface {
	Lookup(ip string) (*GeoIPRecord, error)
}

// FallbackClient forwards a locate query to an external provider.
type FallbackClient interface {
	Locate(ctx context.Context, url string, query *domain.LocateQuery) (*domain.LocateResult, error)
}
