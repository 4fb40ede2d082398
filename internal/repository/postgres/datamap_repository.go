package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/domain"
	"github.com/ichnaea-service/internal/domain/repository"
	"github.com/ichnaea-service/internal/geo"
	apperrors "github.com/ichnaea-service/internal/pkg/errors"
)

type datamapRepository struct {
	db     *DB
	logger *zap.Logger
}

func NewDatamapRepository(db *DB) repository.DatamapRepository {
	return &datamapRepository{db: db, logger: db.logger}
}

func datamapTable(q geo.GridQuadrant) string {
	return fmt.Sprintf("datamap_%s", q)
}

func (r *datamapRepository) Upsert(
	ctx context.Context,
	quadrant geo.GridQuadrant,
	grids []geo.GridID,
	seen time.Time,
) error {
	if len(grids) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (grid, created, modified)
		VALUES ($1, $2, $2)
		ON CONFLICT (grid) DO UPDATE SET modified = EXCLUDED.modified
	`, datamapTable(quadrant))

	tx, err := r.db.RW.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.ErrDatabaseError
	}
	defer tx.Rollback()

	for _, grid := range grids {
		if _, err := tx.ExecContext(ctx, query, int64(grid), seen); err != nil {
			r.logger.Error("Failed to upsert datamap grid",
				zap.String("quadrant", string(quadrant)),
				zap.Uint64("grid", uint64(grid)),
				zap.Error(err))
			return apperrors.ErrDatabaseError
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.ErrDatabaseError
	}
	return nil
}

func (r *datamapRepository) Count(ctx context.Context, quadrant geo.GridQuadrant) (int64, error) {
	var count int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, datamapTable(quadrant))
	if err := r.db.RO.GetContext(ctx, &count, query); err != nil {
		r.logger.Error("Failed to count datamap grids", zap.Error(err))
		return 0, apperrors.ErrDatabaseError
	}
	return count, nil
}

type regionStatRepository struct {
	db     *DB
	logger *zap.Logger
}

func NewRegionStatRepository(db *DB) repository.RegionStatRepository {
	return &regionStatRepository{db: db, logger: db.logger}
}

func (r *regionStatRepository) Replace(ctx context.Context, stats []domain.RegionStat) error {
	tx, err := r.db.RW.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.ErrDatabaseError
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM region_stat`); err != nil {
		r.logger.Error("Failed to clear region stats", zap.Error(err))
		return apperrors.ErrDatabaseError
	}
	for i := range stats {
		s := &stats[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO region_stat (region, gsm, wcdma, lte, blue, wifi)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, s.Region, s.GSM, s.WCDMA, s.LTE, s.Blue, s.Wifi)
		if err != nil {
			r.logger.Error("Failed to insert region stat",
				zap.String("region", s.Region),
				zap.Error(err))
			return apperrors.ErrDatabaseError
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.ErrDatabaseError
	}
	return nil
}

// Recount scans every station shard grouped by region. The UNION ALL
// over the shard tables runs on the read replica; blocked and
// positionless stations are excluded from the counts.
func (r *regionStatRepository) Recount(ctx context.Context) ([]domain.RegionStat, error) {
	counts := make(map[string]*domain.RegionStat)
	bump := func(region, column string, n int64) {
		if region == "" {
			return
		}
		s, ok := counts[region]
		if !ok {
			s = &domain.RegionStat{Region: region}
			counts[region] = s
		}
		switch column {
		case "gsm":
			s.GSM += n
		case "wcdma":
			s.WCDMA += n
		case "lte":
			s.LTE += n
		case "blue":
			s.Blue += n
		case "wifi":
			s.Wifi += n
		}
	}

	type tableGroup struct {
		column string
		tables []string
	}
	groups := []tableGroup{
		{column: "gsm", tables: []string{"cell_gsm"}},
		{column: "wcdma", tables: []string{"cell_wcdma"}},
		{column: "lte", tables: []string{"cell_lte"}},
	}
	blue := tableGroup{column: "blue"}
	wifi := tableGroup{column: "wifi"}
	for _, shard := range domain.MacShardIDs {
		blue.tables = append(blue.tables, "blue_shard_"+shard)
		wifi.tables = append(wifi.tables, "wifi_shard_"+shard)
	}
	groups = append(groups, blue, wifi)

	type regionCount struct {
		Region string `db:"region"`
		Count  int64  `db:"count"`
	}
	for _, group := range groups {
		for _, table := range group.tables {
			query := fmt.Sprintf(`
				SELECT region, COUNT(*) AS count
				FROM %s
				WHERE lat IS NOT NULL AND region <> '' AND block_count < %d
				GROUP BY region
			`, table, domain.PermanentBlockThreshold)

			var rows []regionCount
			if err := r.db.RO.SelectContext(ctx, &rows, query); err != nil {
				r.logger.Error("Failed to recount region stats",
					zap.String("table", table), zap.Error(err))
				return nil, apperrors.ErrDatabaseError
			}
			for _, row := range rows {
				bump(row.Region, group.column, row.Count)
			}
		}
	}

	stats := make([]domain.RegionStat, 0, len(counts))
	for _, s := range counts {
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Region < stats[j].Region })
	return stats, nil
}

func (r *regionStatRepository) GetAll(ctx context.Context) ([]domain.RegionStat, error) {
	var stats []domain.RegionStat
	err := r.db.RO.SelectContext(ctx, &stats, `
		SELECT region, gsm, wcdma, lte, blue, wifi
		FROM region_stat
		ORDER BY region
	`)
	if err != nil {
		r.logger.Error("Failed to read region stats", zap.Error(err))
		return nil, apperrors.ErrDatabaseError
	}
	return stats, nil
}
