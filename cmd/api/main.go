package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/config"
	httpDelivery "github.com/ichnaea-service/internal/delivery/http"
	"github.com/ichnaea-service/internal/delivery/http/handler"
	"github.com/ichnaea-service/internal/geo"
	"github.com/ichnaea-service/internal/infrastructure/fallback"
	"github.com/ichnaea-service/internal/infrastructure/geoip"
	"github.com/ichnaea-service/internal/pkg/logger"
	"github.com/ichnaea-service/internal/repository/cache"
	"github.com/ichnaea-service/internal/repository/postgres"
	redisRepo "github.com/ichnaea-service/internal/repository/redis"
	"github.com/ichnaea-service/internal/usecase"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. Initialize logger
	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting Ichnaea API")
	log.Info("Configuration loaded",
		zap.String("env", cfg.Server.Env),
		zap.String("server_addr", cfg.GetServerAddr()),
	)

	// 3. Connect to PostgreSQL
	db, err := postgres.New(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close PostgreSQL connection", zap.Error(err))
		}
	}()
	log.Info("PostgreSQL connected")

	// 4. Connect to Redis
	redisClient, err := cache.NewRedis(&cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("Failed to close Redis connection", zap.Error(err))
		}
	}()
	log.Info("Redis connected")

	// 5. Health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.Health(ctx); err != nil {
		log.Fatal("PostgreSQL health check failed", zap.Error(err))
	}
	if err := redisClient.Health(ctx); err != nil {
		log.Fatal("Redis health check failed", zap.Error(err))
	}
	log.Info("All connections healthy")

	// 6. Region polygons and GeoIP
	regions, err := geo.NewRegionIndex()
	if err != nil {
		log.Fatal("Failed to load region polygons", zap.Error(err))
	}

	var geoipRepo = geoip.Disabled()
	if cfg.GeoIP.Path != "" {
		geoipRepo, err = geoip.New(cfg.GeoIP.Path, log)
		if err != nil {
			log.Fatal("Failed to open GeoIP database", zap.Error(err))
		}
	} else {
		log.Warn("GEOIP_PATH not set, IP lookups disabled")
	}

	// 7. Initialize repositories
	stationRepo := postgres.NewStationRepository(db)
	areaRepo := postgres.NewAreaRepository(db)
	keyRepo := postgres.NewKeyRepository(db)
	regionStatRepo := postgres.NewRegionStatRepository(db)
	queueRepo := redisRepo.NewQueueRepository(redisClient.Client(), log)
	rateLimitRepo := redisRepo.NewRateLimitRepository(redisClient.Client(), log)
	cacheRepo := cache.NewCacheRepository(redisClient)
	fallbackClient := fallback.NewClient(cfg.Locate.FallbackTimeout, log)
	log.Info("Repositories initialized")

	// 8. Initialize use cases
	submitUC := usecase.NewSubmitUseCase(queueRepo, cfg.Ingest, log)
	locateUC := usecase.NewLocateUseCase(
		stationRepo,
		areaRepo,
		geoipRepo,
		fallbackClient,
		cacheRepo,
		rateLimitRepo,
		regions,
		submitUC,
		cfg.Locate,
		log,
	)
	statsUC := usecase.NewStatsUseCase(regionStatRepo, log)

	// 9. Initialize handlers and server
	server := httpDelivery.NewServer(
		cfg,
		log,
		keyRepo,
		rateLimitRepo,
		handler.NewLocateHandler(locateUC, log),
		handler.NewSubmitHandler(submitUC, log),
		handler.NewRegionHandler(locateUC, log),
		handler.NewStatsHandler(statsUC, log),
		handler.NewHealthHandler(db, redisClient, log),
	)

	// 10. Start with graceful shutdown
	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Fatal("Server failed", zap.Error(err))
	case sig := <-quit:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	log.Info("Server stopped")
}
