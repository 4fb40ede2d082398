package testhelpers

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/domain"
)

// TestDB is a migrated Postgres connection for repository tests.
type TestDB struct {
	DB     *sqlx.DB
	Logger *zap.Logger
}

// SetupTestDB connects to the test database, applies migrations and
// returns the handle. Tests are skipped when no database is reachable.
func SetupTestDB(t *testing.T) *TestDB {
	host := getEnv("TEST_DB_HOST", "localhost")
	port := getEnv("TEST_DB_PORT", "5433")
	user := getEnv("TEST_DB_USER", "postgres")
	password := getEnv("TEST_DB_PASSWORD", "postgres")
	dbname := getEnv("TEST_DB_NAME", "ichnaea_test")
	sslmode := getEnv("TEST_DB_SSLMODE", "disable")

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode,
	)

	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		t.Skipf("Test database not available: %v", err)
	}

	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Minute)

	if err := ApplyMigrations(db.DB, migrationsDir(t)); err != nil {
		db.Close()
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	return &TestDB{DB: db, Logger: zap.NewNop()}
}

func (tdb *TestDB) Close() {
	if tdb.DB != nil {
		tdb.DB.Close()
	}
}

// Cleanup truncates every table the engine writes to.
func (tdb *TestDB) Cleanup(ctx context.Context) error {
	tables := []string{
		"cell_area", "api_key", "region_stat", "export_config",
		"datamap_ne", "datamap_nw", "datamap_se", "datamap_sw",
	}
	for _, shard := range domain.MacShardIDs {
		tables = append(tables, "blue_shard_"+shard, "wifi_shard_"+shard)
	}
	tables = append(tables, "cell_gsm", "cell_wcdma", "cell_lte")

	for _, table := range tables {
		if _, err := tdb.DB.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s", table)); err != nil {
			return err
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
