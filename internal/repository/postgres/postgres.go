package postgres

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/config"
)

// DB holds the read-only / read-write connection pair. Locate reads go
// through RO, the updater workers write through RW.
type DB struct {
	RO     *sqlx.DB
	RW     *sqlx.DB
	logger *zap.Logger
}

func New(cfg *config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	rw, err := connect(cfg, cfg.ReadWriteURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect read-write database: %w", err)
	}

	ro := rw
	if cfg.ReadOnlyURI != "" && cfg.ReadOnlyURI != cfg.ReadWriteURI {
		ro, err = connect(cfg, cfg.ReadOnlyURI)
		if err != nil {
			return nil, fmt.Errorf("failed to connect read-only database: %w", err)
		}
	}

	logger.Info("PostgreSQL connected",
		zap.Bool("split_read_write", ro != rw),
	)

	return &DB{RO: ro, RW: rw, logger: logger}, nil
}

func connect(cfg *config.DatabaseConfig, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

func (db *DB) Close() error {
	db.logger.Info("Closing PostgreSQL connections")
	if db.RO != db.RW {
		if err := db.RO.Close(); err != nil {
			db.logger.Error("Failed to close read-only pool", zap.Error(err))
		}
	}
	return db.RW.Close()
}

func (db *DB) Health(ctx context.Context) error {
	if err := db.RO.PingContext(ctx); err != nil {
		return err
	}
	return db.RW.PingContext(ctx)
}

// NewDBForTest wraps an existing connection for tests.
func NewDBForTest(sqlxDB *sqlx.DB, logger *zap.Logger) *DB {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DB{RO: sqlxDB, RW: sqlxDB, logger: logger}
}
