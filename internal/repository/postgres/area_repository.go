package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/domain"
	"github.com/ichnaea-service/internal/domain/repository"
	apperrors "github.com/ichnaea-service/internal/pkg/errors"
)

type areaRepository struct {
	db     *DB
	logger *zap.Logger
}

func NewAreaRepository(db *DB) repository.AreaRepository {
	return &areaRepository{db: db, logger: db.logger}
}

type areaRow struct {
	AreaID        string  `db:"areaid"`
	Lat           float64 `db:"lat"`
	Lon           float64 `db:"lon"`
	Radius        float64 `db:"radius"`
	NumCells      int     `db:"num_cells"`
	AvgCellRadius float64 `db:"avg_cell_radius"`
	Region        string  `db:"region"`
	LastSeen      string  `db:"last_seen"`
}

func (r *areaRepository) Get(ctx context.Context, id domain.AreaID) (*domain.CellArea, error) {
	var row areaRow
	err := r.db.RO.GetContext(ctx, &row, `
		SELECT areaid, lat, lon, radius, num_cells, avg_cell_radius,
		       COALESCE(region, '') AS region, last_seen::text AS last_seen
		FROM cell_area
		WHERE areaid = $1
	`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to read cell area", zap.String("areaid", id.String()), zap.Error(err))
		return nil, apperrors.ErrDatabaseError
	}

	area := &domain.CellArea{
		ID:            id,
		Lat:           row.Lat,
		Lon:           row.Lon,
		Radius:        row.Radius,
		NumCells:      row.NumCells,
		AvgCellRadius: row.AvgCellRadius,
		Region:        row.Region,
		LastSeen:      row.LastSeen,
	}
	return area, nil
}

func (r *areaRepository) Upsert(ctx context.Context, areas []domain.CellArea) error {
	if len(areas) == 0 {
		return nil
	}

	tx, err := r.db.RW.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.ErrDatabaseError
	}
	defer tx.Rollback()

	for i := range areas {
		a := &areas[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cell_area
				(areaid, lat, lon, radius, num_cells, avg_cell_radius, region, last_seen)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8::date)
			ON CONFLICT (areaid) DO UPDATE SET
				lat = EXCLUDED.lat,
				lon = EXCLUDED.lon,
				radius = EXCLUDED.radius,
				num_cells = EXCLUDED.num_cells,
				avg_cell_radius = EXCLUDED.avg_cell_radius,
				region = EXCLUDED.region,
				last_seen = EXCLUDED.last_seen
		`, a.ID.String(), a.Lat, a.Lon, a.Radius, a.NumCells, a.AvgCellRadius, a.Region, a.LastSeen)
		if err != nil {
			r.logger.Error("Failed to upsert cell area",
				zap.String("areaid", a.ID.String()),
				zap.Error(err))
			return apperrors.ErrDatabaseError
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.ErrDatabaseError
	}
	return nil
}

func (r *areaRepository) Delete(ctx context.Context, id domain.AreaID) error {
	if _, err := r.db.RW.ExecContext(ctx,
		`DELETE FROM cell_area WHERE areaid = $1`, id.String()); err != nil {
		r.logger.Error("Failed to delete cell area", zap.String("areaid", id.String()), zap.Error(err))
		return apperrors.ErrDatabaseError
	}
	return nil
}

// CellsForArea reads every member cell of the area from the radio shard.
// Blocked cells are filtered by the caller, which owns the date logic.
func (r *areaRepository) CellsForArea(ctx context.Context, id domain.AreaID) ([]*domain.Station, error) {
	// Cell ids are "radio_mcc_mnc_lac_cid"; escape the separator so LIKE
	// matches it literally.
	prefix := strings.ReplaceAll(id.String(), "_", `\_`) + `\_%`
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE id LIKE $1 ESCAPE '\' AND lat IS NOT NULL
		ORDER BY id
	`, stationColumns, shardTable(domain.KindCell, id.Radio.String()))

	rows, err := r.db.RO.QueryxContext(ctx, query, prefix)
	if err != nil {
		r.logger.Error("Failed to read area cells", zap.String("areaid", id.String()), zap.Error(err))
		return nil, apperrors.ErrDatabaseError
	}
	defer rows.Close()

	var cells []*domain.Station
	for rows.Next() {
		cell, err := scanStation(rows, domain.KindCell, id.Radio.String())
		if err != nil {
			r.logger.Error("Failed to scan area cell", zap.Error(err))
			continue
		}
		cells = append(cells, cell)
	}
	return cells, nil
}
