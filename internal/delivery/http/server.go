package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/config"
	"github.com/ichnaea-service/internal/delivery/http/handler"
	"github.com/ichnaea-service/internal/delivery/http/middleware"
	"github.com/ichnaea-service/internal/domain/repository"
)

// Server is the Fiber HTTP front end.
type Server struct {
	app    *fiber.App
	config *config.Config
	logger *zap.Logger

	keys   repository.KeyRepository
	limits repository.RateLimitRepository

	locateHandler *handler.LocateHandler
	submitHandler *handler.SubmitHandler
	regionHandler *handler.RegionHandler
	statsHandler  *handler.StatsHandler
	healthHandler *handler.HealthHandler
}

func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	keys repository.KeyRepository,
	limits repository.RateLimitRepository,
	locateHandler *handler.LocateHandler,
	submitHandler *handler.SubmitHandler,
	regionHandler *handler.RegionHandler,
	statsHandler *handler.StatsHandler,
	healthHandler *handler.HealthHandler,
) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "Ichnaea Service",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorHandler: errorHandler(logger),
	})

	s := &Server{
		app:           app,
		config:        cfg,
		logger:        logger,
		keys:          keys,
		limits:        limits,
		locateHandler: locateHandler,
		submitHandler: submitHandler,
		regionHandler: regionHandler,
		statsHandler:  statsHandler,
		healthHandler: healthHandler,
	}

	s.setupMiddlewares()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddlewares() {
	s.app.Use(middleware.Recovery())
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Logger(s.logger))
	s.app.Use(middleware.CORS())
	s.app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
}

func (s *Server) setupRoutes() {
	// Operational probes stay outside the key gate.
	s.app.Get("/__lbheartbeat__", s.healthHandler.Live)
	s.app.Get("/__heartbeat__", s.healthHandler.Ready)

	locateKey := middleware.APIKey(s.keys, s.limits, middleware.PermitLocate, s.logger)
	regionKey := middleware.APIKey(s.keys, s.limits, middleware.PermitRegion, s.logger)
	submitKey := middleware.APIKey(s.keys, s.limits, middleware.PermitSubmit, s.logger)

	s.app.Post("/v1/geolocate", locateKey, s.locateHandler.Geolocate)
	s.app.Post("/v1/country", regionKey, s.regionHandler.Country)
	s.app.Post("/v1/geosubmit", submitKey, s.submitHandler.Geosubmit)
	s.app.Post("/v2/geosubmit", submitKey, s.submitHandler.Geosubmit)

	s.app.Get("/v1/stats/regions", s.statsHandler.RegionStats)
}

func (s *Server) Start() error {
	addr := s.config.GetServerAddr()
	s.logger.Info("Starting HTTP server", zap.String("address", addr))
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the fiber instance for handler tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		logger.Error("HTTP Error",
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		)

		return c.Status(code).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    code,
				"message": err.Error(),
			},
		})
	}
}
