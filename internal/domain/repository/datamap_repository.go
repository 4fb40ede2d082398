package repository

import (
	"context"
	"time"

	"github.com/ichnaea-service/internal/domain"
	"github.com/ichnaea-service/internal/geo"
)

// DatamapRepository stores the 0.001 degree coverage grid, sharded by
// geographic quadrant.
type DatamapRepository interface {
	Upsert(ctx context.Context, quadrant geo.GridQuadrant, grids []geo.GridID, seen time.Time) error
	Count(ctx context.Context, quadrant geo.GridQuadrant) (int64, error)
}

// RegionStatRepository keeps per-region station counts for the public
// statistics page consumers.
type RegionStatRepository interface {
	Replace(ctx context.Context, stats []domain.RegionStat) error
	GetAll(ctx context.Context) ([]domain.RegionStat, error)
	// Recount aggregates the live station shards into fresh counts
	// without touching the stored table.
	Recount(ctx context.Context) ([]domain.RegionStat, error)
}

// ExportConfigRepository reads the configured export targets.
type ExportConfigRepository interface {
	GetAll(ctx context.Context) ([]domain.ExportConfig, error)
}
