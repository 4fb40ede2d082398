package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/config"
	"github.com/ichnaea-service/internal/domain"
	"github.com/ichnaea-service/internal/geo"
	"github.com/ichnaea-service/internal/pkg/logger"
	"github.com/ichnaea-service/internal/repository/cache"
	"github.com/ichnaea-service/internal/repository/postgres"
	redisRepo "github.com/ichnaea-service/internal/repository/redis"
	"github.com/ichnaea-service/internal/usecase"
	"github.com/ichnaea-service/internal/worker"
	"github.com/ichnaea-service/internal/worker/pipeline"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	if !cfg.Worker.Enabled {
		fmt.Println("Worker is disabled in configuration. Set WORKER_ENABLED=true to enable.")
		os.Exit(0)
	}

	// 2. Initialize logger
	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting Ichnaea pipeline worker")

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

	// 5. Region polygons
	regions, err := geo.NewRegionIndex()
	if err != nil {
		log.Fatal("Failed to load region polygons", zap.Error(err))
	}

	// 6. Initialize repositories and use cases
	stationRepo := postgres.NewStationRepository(db)
	areaRepo := postgres.NewAreaRepository(db)
	datamapRepo := postgres.NewDatamapRepository(db)
	regionStatRepo := postgres.NewRegionStatRepository(db)
	queueRepo := redisRepo.NewQueueRepository(redisClient.Client(), log)

	ingestUC := usecase.NewIngestUseCase(queueRepo, cfg.Ingest, log)
	updaterUC := usecase.NewUpdaterUseCase(stationRepo, queueRepo, regions, cfg.Ingest, log)
	areaUC := usecase.NewAreaUseCase(areaRepo, queueRepo, regions, cfg.Ingest, log)
	datamapUC := usecase.NewDatamapUseCase(datamapRepo, queueRepo, cfg.Ingest, log)
	statsUC := usecase.NewStatsUseCase(regionStatRepo, log)

	// 7. Register workers: one ingest drain loop, one updater per shard
	// queue, one datamap loop per quadrant, plus area, stats and the
	// queue-depth monitor.
	manager := worker.NewManager(log)
	manager.Register(pipeline.NewIngestWorker(ingestUC, cfg.Worker.DrainInterval, log))
	for _, queue := range domain.StationShardQueues() {
		manager.Register(pipeline.NewUpdaterWorker(updaterUC, queue, cfg.Worker.DrainInterval, log))
	}
	for _, queue := range domain.DatamapQueues() {
		manager.Register(pipeline.NewDatamapWorker(datamapUC, queue, cfg.Worker.DrainInterval, log))
	}
	manager.Register(pipeline.NewAreaWorker(areaUC, cfg.Worker.AreaInterval, log))
	manager.Register(pipeline.NewStatsWorker(statsUC, cfg.Worker.StatInterval, log))
	manager.Register(pipeline.NewMonitorWorker(queueRepo, cfg.Worker.MonitorInterval, log))

	// 8. Run until a shutdown signal arrives
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := manager.Start(ctx); err != nil {
		log.Fatal("Failed to start workers", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("Shutdown signal received", zap.String("signal", sig.String()))

	cancel()
	if err := manager.Stop(); err != nil {
		log.Error("Worker shutdown failed", zap.Error(err))
	}
	log.Info("Worker stopped")
}
