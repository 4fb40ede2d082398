package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/ichnaea-service/internal/pkg/validator"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	GeoIP    GeoIPConfig
	Log      LogConfig
	Locate   LocateConfig
	Ingest   IngestConfig
	Worker   WorkerConfig
}

type ServerConfig struct {
	Host string
	Port int
	Env  string
	// SecretKey is part of the deployment environment contract; the core
	// engine itself signs nothing with it.
	SecretKey string
}

type DatabaseConfig struct {
	ReadOnlyURI     string
	ReadWriteURI    string `validate:"required"`
	MaxConns        int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	Timeout         time.Duration
}

type RedisConfig struct {
	URI     string `validate:"required"`
	Timeout time.Duration
}

type GeoIPConfig struct {
	Path string
}

type LogConfig struct {
	Level string
	// SentryDSN is read for the deployment environment contract; error
	// reporting itself goes through zap.
	SentryDSN string
}

type LocateConfig struct {
	// Deadline bounds one locate query end to end.
	Deadline        time.Duration
	FallbackTimeout time.Duration
}

type IngestConfig struct {
	// HighWatermark is the shard queue depth past which new observations
	// for that shard are dropped.
	HighWatermark  int64
	EnqueueRetries int
	BatchIncoming  int
	BatchShard     int
	BatchArea      int
	BatchDatamap   int
	QueueExpire    time.Duration
}

type WorkerConfig struct {
	Enabled       bool
	DrainInterval time.Duration
	// AreaInterval and StatInterval drive the periodic scheduler for
	// cell-area recomputation and region stat recounts.
	AreaInterval time.Duration
	StatInterval time.Duration
	// MonitorInterval drives the queue-depth gauge loop.
	MonitorInterval time.Duration
}

func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	// The .env file is optional; the environment alone is a valid source.
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Host:      viper.GetString("API_HOST"),
			Port:      viper.GetInt("API_PORT"),
			Env:       viper.GetString("API_ENV"),
			SecretKey: viper.GetString("SECRET_KEY"),
		},
		Database: DatabaseConfig{
			ReadOnlyURI:     viper.GetString("DB_READONLY_URI"),
			ReadWriteURI:    viper.GetString("DB_READWRITE_URI"),
			MaxConns:        viper.GetInt("DB_MAX_CONNS"),
			MaxIdleConns:    viper.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: time.Duration(viper.GetInt("DB_CONN_MAX_LIFETIME")) * time.Second,
			ConnMaxIdleTime: time.Duration(viper.GetInt("DB_CONN_MAX_IDLE_TIME")) * time.Second,
			Timeout:         time.Duration(viper.GetInt("DB_TIMEOUT_MS")) * time.Millisecond,
		},
		Redis: RedisConfig{
			URI:     viper.GetString("REDIS_URI"),
			Timeout: time.Duration(viper.GetInt("REDIS_TIMEOUT_MS")) * time.Millisecond,
		},
		GeoIP: GeoIPConfig{
			Path: viper.GetString("GEOIP_PATH"),
		},
		Log: LogConfig{
			Level:     viper.GetString("LOG_LEVEL"),
			SentryDSN: viper.GetString("SENTRY_DSN"),
		},
		Locate: LocateConfig{
			Deadline:        time.Duration(viper.GetInt("LOCATE_DEADLINE_MS")) * time.Millisecond,
			FallbackTimeout: time.Duration(viper.GetInt("FALLBACK_TIMEOUT_MS")) * time.Millisecond,
		},
		Ingest: IngestConfig{
			HighWatermark:  viper.GetInt64("QUEUE_HIGH_WATERMARK"),
			EnqueueRetries: viper.GetInt("ENQUEUE_RETRIES"),
			BatchIncoming:  viper.GetInt("BATCH_INCOMING"),
			BatchShard:     viper.GetInt("BATCH_SHARD"),
			BatchArea:      viper.GetInt("BATCH_AREA"),
			BatchDatamap:   viper.GetInt("BATCH_DATAMAP"),
			QueueExpire:    time.Duration(viper.GetInt("QUEUE_EXPIRE_HOURS")) * time.Hour,
		},
		Worker: WorkerConfig{
			Enabled:         viper.GetBool("WORKER_ENABLED"),
			DrainInterval:   time.Duration(viper.GetInt("WORKER_DRAIN_MS")) * time.Millisecond,
			AreaInterval:    time.Duration(viper.GetInt("WORKER_AREA_INTERVAL_S")) * time.Second,
			StatInterval:    time.Duration(viper.GetInt("WORKER_STAT_INTERVAL_S")) * time.Second,
			MonitorInterval: time.Duration(viper.GetInt("WORKER_MONITOR_INTERVAL_S")) * time.Second,
		},
	}

	applyDefaults(cfg)

	if err := validator.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.ReadOnlyURI == "" {
		cfg.Database.ReadOnlyURI = cfg.Database.ReadWriteURI
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Database.Timeout == 0 {
		cfg.Database.Timeout = time.Second
	}
	if cfg.Redis.Timeout == 0 {
		cfg.Redis.Timeout = time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Locate.Deadline == 0 {
		cfg.Locate.Deadline = 3 * time.Second
	}
	if cfg.Locate.FallbackTimeout == 0 {
		cfg.Locate.FallbackTimeout = 5 * time.Second
	}
	if cfg.Ingest.HighWatermark == 0 {
		cfg.Ingest.HighWatermark = 100000
	}
	if cfg.Ingest.EnqueueRetries == 0 {
		cfg.Ingest.EnqueueRetries = 3
	}
	if cfg.Ingest.BatchIncoming == 0 {
		cfg.Ingest.BatchIncoming = 5000
	}
	if cfg.Ingest.BatchShard == 0 {
		cfg.Ingest.BatchShard = 500
	}
	if cfg.Ingest.BatchArea == 0 {
		cfg.Ingest.BatchArea = 100
	}
	if cfg.Ingest.BatchDatamap == 0 {
		cfg.Ingest.BatchDatamap = 500
	}
	if cfg.Ingest.QueueExpire == 0 {
		cfg.Ingest.QueueExpire = 24 * time.Hour
	}
	if cfg.Worker.DrainInterval == 0 {
		cfg.Worker.DrainInterval = 100 * time.Millisecond
	}
	if cfg.Worker.AreaInterval == 0 {
		cfg.Worker.AreaInterval = 30 * time.Second
	}
	if cfg.Worker.StatInterval == 0 {
		cfg.Worker.StatInterval = time.Hour
	}
	if cfg.Worker.MonitorInterval == 0 {
		cfg.Worker.MonitorInterval = time.Minute
	}
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
