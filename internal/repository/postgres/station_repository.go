package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/domain"
	"github.com/ichnaea-service/internal/domain/repository"
	apperrors "github.com/ichnaea-service/internal/pkg/errors"
)

type stationRepository struct {
	db     *DB
	logger *zap.Logger
}

func NewStationRepository(db *DB) repository.StationRepository {
	return &stationRepository{db: db, logger: db.logger}
}

// shardTable maps (kind, shard) to its physical table: blue_shard_0..f,
// wifi_shard_0..f, cell_gsm|wcdma|lte.
func shardTable(kind domain.StationKind, shard string) string {
	if kind == domain.KindCell {
		return fmt.Sprintf("cell_%s", shard)
	}
	return fmt.Sprintf("%s_shard_%s", kind, shard)
}

const stationColumns = `id, lat, lon, max_lat, min_lat, max_lon, min_lon,
	radius, samples, weight, source, region,
	created, modified, last_seen, block_first, block_last, block_count`

func (r *stationRepository) GetMany(
	ctx context.Context,
	kind domain.StationKind,
	shard string,
	ids []string,
) ([]*domain.Station, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(
		`SELECT %s FROM %s WHERE id = ANY($1)`,
		stationColumns, shardTable(kind, shard),
	)

	rows, err := r.db.RO.QueryxContext(ctx, query, pq.Array(ids))
	if err != nil {
		r.logger.Error("Failed to read stations",
			zap.String("kind", string(kind)),
			zap.String("shard", shard),
			zap.Error(err))
		return nil, apperrors.ErrDatabaseError
	}
	defer rows.Close()

	byID := make(map[string]*domain.Station, len(ids))
	for rows.Next() {
		station, err := scanStation(rows, kind, shard)
		if err != nil {
			r.logger.Error("Failed to scan station", zap.Error(err))
			continue
		}
		byID[station.ID] = station
	}

	// Preserve request order; misses stay nil.
	result := make([]*domain.Station, len(ids))
	for i, id := range ids {
		result[i] = byID[id]
	}
	return result, nil
}

func (r *stationRepository) Upsert(
	ctx context.Context,
	kind domain.StationKind,
	shard string,
	stations []domain.Station,
) error {
	if len(stations) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (:id, :lat, :lon, :max_lat, :min_lat, :max_lon, :min_lon,
			:radius, :samples, :weight, :source, :region,
			:created, :modified, :last_seen, :block_first, :block_last, :block_count)
		ON CONFLICT (id) DO UPDATE SET
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon,
			max_lat = EXCLUDED.max_lat,
			min_lat = EXCLUDED.min_lat,
			max_lon = EXCLUDED.max_lon,
			min_lon = EXCLUDED.min_lon,
			radius = EXCLUDED.radius,
			samples = EXCLUDED.samples,
			weight = EXCLUDED.weight,
			source = EXCLUDED.source,
			region = EXCLUDED.region,
			modified = EXCLUDED.modified,
			last_seen = EXCLUDED.last_seen,
			block_first = EXCLUDED.block_first,
			block_last = EXCLUDED.block_last,
			block_count = EXCLUDED.block_count
	`, shardTable(kind, shard), stationColumns)

	tx, err := r.db.RW.BeginTxx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin upsert transaction", zap.Error(err))
		return apperrors.ErrDatabaseError
	}
	defer tx.Rollback()

	for i := range stations {
		if _, err := tx.NamedExecContext(ctx, query, stationRow(&stations[i])); err != nil {
			r.logger.Error("Failed to upsert station",
				zap.String("id", stations[i].ID),
				zap.Error(err))
			return apperrors.ErrDatabaseError
		}
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to commit upsert transaction", zap.Error(err))
		return apperrors.ErrDatabaseError
	}
	return nil
}

func (r *stationRepository) ScanModifiedSince(
	ctx context.Context,
	kind domain.StationKind,
	shard string,
	since time.Time,
	limit int,
) ([]*domain.Station, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM %s WHERE modified >= $1 ORDER BY modified, id LIMIT $2`,
		stationColumns, shardTable(kind, shard),
	)
	return r.queryStations(ctx, kind, shard, query, since, limit)
}

func (r *stationRepository) IterByBoundingBox(
	ctx context.Context,
	kind domain.StationKind,
	shard string,
	minLat, maxLat, minLon, maxLon float64,
	limit int,
) ([]*domain.Station, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE lat IS NOT NULL
		  AND lat BETWEEN $1 AND $2
		  AND lon BETWEEN $3 AND $4
		ORDER BY id
		LIMIT $5
	`, stationColumns, shardTable(kind, shard))
	return r.queryStations(ctx, kind, shard, query, minLat, maxLat, minLon, maxLon, limit)
}

func (r *stationRepository) queryStations(
	ctx context.Context,
	kind domain.StationKind,
	shard string,
	query string,
	args ...interface{},
) ([]*domain.Station, error) {
	rows, err := r.db.RO.QueryxContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query stations",
			zap.String("kind", string(kind)),
			zap.String("shard", shard),
			zap.Error(err))
		return nil, apperrors.ErrDatabaseError
	}
	defer rows.Close()

	var stations []*domain.Station
	for rows.Next() {
		station, err := scanStation(rows, kind, shard)
		if err != nil {
			r.logger.Error("Failed to scan station", zap.Error(err))
			continue
		}
		stations = append(stations, station)
	}
	return stations, nil
}

func scanStation(rows *sqlx.Rows, kind domain.StationKind, shard string) (*domain.Station, error) {
	var s domain.Station
	if err := rows.StructScan(&s); err != nil {
		return nil, err
	}
	s.Kind = kind
	if kind == domain.KindCell {
		if radio, err := domain.ParseRadio(shard); err == nil {
			s.Radio = radio
		}
	}
	return &s, nil
}

// stationRow adapts a Station for named-parameter binding; sqlx binds the
// db-tagged fields directly.
func stationRow(s *domain.Station) map[string]interface{} {
	return map[string]interface{}{
		"id":          s.ID,
		"lat":         s.Lat,
		"lon":         s.Lon,
		"max_lat":     s.MaxLat,
		"min_lat":     s.MinLat,
		"max_lon":     s.MaxLon,
		"min_lon":     s.MinLon,
		"radius":      s.Radius,
		"samples":     int64(s.Samples),
		"weight":      s.Weight,
		"source":      string(s.Source),
		"region":      s.Region,
		"created":     s.Created,
		"modified":    s.Modified,
		"last_seen":   s.LastSeen,
		"block_first": s.BlockFirst,
		"block_last":  s.BlockLast,
		"block_count": s.BlockCount,
	}
}
