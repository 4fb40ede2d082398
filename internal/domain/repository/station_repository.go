package repository

import (
	"context"
	"time"

	"github.com/ichnaea-service/internal/domain"
)

// StationRepository is the sharded station store. A shard is addressed by
// (kind, shard id): MAC prefix shards for blue/wifi, radio shards for
// cells. Rows are mutated only by the shard's updater worker; readers are
// eventually consistent.
type StationRepository interface {
	// GetMany resolves ids in order; misses yield nil entries.
	GetMany(ctx context.Context, kind domain.StationKind, shard string, ids []string) ([]*domain.Station, error)

	// Upsert writes station states atomically per id, batched in one
	// transaction per call.
	Upsert(ctx context.Context, kind domain.StationKind, shard string, stations []domain.Station) error

	// ScanModifiedSince pages stations touched after the given time,
	// used by export tooling and area recomputation.
	ScanModifiedSince(ctx context.Context, kind domain.StationKind, shard string, since time.Time, limit int) ([]*domain.Station, error)

	// IterByBoundingBox pages stations inside a box, used by the dump
	// tooling.
	IterByBoundingBox(ctx context.Context, kind domain.StationKind, shard string, minLat, maxLat, minLon, maxLon float64, limit int) ([]*domain.Station, error)
}

// AreaRepository stores the per-area aggregates over member cells.
type AreaRepository interface {
	Get(ctx context.Context, id domain.AreaID) (*domain.CellArea, error)
	Upsert(ctx context.Context, areas []domain.CellArea) error
	Delete(ctx context.Context, id domain.AreaID) error
	// CellsForArea reads the unblocked member cells of one area.
	CellsForArea(ctx context.Context, id domain.AreaID) ([]*domain.Station, error)
}
