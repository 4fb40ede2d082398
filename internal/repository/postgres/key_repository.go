package postgres

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/domain"
	"github.com/ichnaea-service/internal/domain/repository"
	apperrors "github.com/ichnaea-service/internal/pkg/errors"
)

type keyRepository struct {
	db     *DB
	logger *zap.Logger
}

func NewKeyRepository(db *DB) repository.KeyRepository {
	return &keyRepository{db: db, logger: db.logger}
}

func (r *keyRepository) Get(ctx context.Context, key string) (*domain.APIKey, error) {
	var k domain.APIKey
	err := r.db.RO.GetContext(ctx, &k, `
		SELECT valid_key, maxreq,
		       allow_locate, allow_region, allow_fallback,
		       COALESCE(fallback_name, '') AS fallback_name,
		       COALESCE(fallback_url, '') AS fallback_url,
		       COALESCE(fallback_ratelimit, 0) AS fallback_ratelimit,
		       COALESCE(fallback_cache_expire, 0) AS fallback_cache_expire,
		       store_sample_locate, store_sample_submit
		FROM api_key
		WHERE valid_key = $1
	`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to read api key", zap.Error(err))
		return nil, apperrors.ErrDatabaseError
	}
	return &k, nil
}

type exportConfigRepository struct {
	db     *DB
	logger *zap.Logger
}

func NewExportConfigRepository(db *DB) repository.ExportConfigRepository {
	return &exportConfigRepository{db: db, logger: db.logger}
}

func (r *exportConfigRepository) GetAll(ctx context.Context) ([]domain.ExportConfig, error) {
	var configs []domain.ExportConfig
	err := r.db.RO.SelectContext(ctx, &configs, `
		SELECT name, batch, schema,
		       COALESCE(url, '') AS url,
		       COALESCE(skip_keys, '') AS skip_keys,
		       COALESCE(skip_sources, '') AS skip_sources
		FROM export_config
		ORDER BY name
	`)
	if err != nil {
		r.logger.Error("Failed to read export configs", zap.Error(err))
		return nil, apperrors.ErrDatabaseError
	}
	return configs, nil
}
