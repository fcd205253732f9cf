package main

import (
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"homeradius/server/config"
	"homeradius/server/internal/api"
	"homeradius/server/internal/cache"
	"homeradius/server/internal/geocoding"
	"homeradius/server/internal/isochrone"
	"homeradius/server/internal/listings"
	"homeradius/server/internal/mortgage"
	"homeradius/server/internal/ratequeue"
	"homeradius/server/internal/scheduler"
	"homeradius/server/internal/search"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if err := config.LoadAnchors(); err != nil {
		logger.WithError(err).Error("Failed to load saved anchors")
	}

	store, err := newStore(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize cache backend")
	}
	sharedCache := cache.New(store, logger)

	// One process-wide queue paces every listings call.
	queue := ratequeue.NewWithRetry(cfg.Listings.RequestsPerSecond, cfg.Listings.MaxRetries, 5*time.Second, logger)
	queue.Start()
	defer queue.Close()

	geoClient := geocoding.NewClient(cfg.Geo.APIKey, logger)
	resolver := isochrone.NewResolver(geoClient, sharedCache, logger)

	listingsClient := listings.NewClient(listings.ClientConfig{
		APIKey:      cfg.Listings.APIKey,
		APIHost:     cfg.Listings.APIHost,
		City:        cfg.Listings.City,
		StateCode:   cfg.Listings.StateCode,
		MaxPrice:    cfg.Listings.MaxPrice,
		NoForeclose: cfg.Listings.NoForeclose,
	}, logger)
	fetcher := listings.NewFetcher(listingsClient, queue, sharedCache, logger)

	terms := mortgage.Terms{
		InterestRate: cfg.Mortgage.InterestRate,
		TermYears:    cfg.Mortgage.TermYears,
	}
	orchestrator := search.NewOrchestrator(resolver, fetcher, terms, logger)
	tracker := search.NewJobTracker(orchestrator, logger)

	refresher := scheduler.NewScheduler(orchestrator, logger)
	if err := refresher.Start(cfg.Scheduler.RefreshCron); err != nil {
		logger.WithError(err).Fatal("Failed to start refresh schedule")
	}
	defer refresher.Stop()

	router := gin.Default()
	api.SetupRoutes(router, api.NewHandler(orchestrator, tracker, logger))

	logger.Infof("Starting server on port %s", cfg.Server.Port)
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		logger.WithError(err).Fatal("Server failed to start")
	}
}

// newStore picks the cache backend from configuration.
func newStore(cfg *config.Config, logger *logrus.Logger) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "sqlite":
		return cache.NewSQLiteStore(cfg.Cache.SQLitePath, logger)
	case "redis":
		return cache.NewRedisStore(cfg.Cache.RedisAddr, cfg.Cache.RedisPass, cfg.Cache.RedisDB, "homeradius:", logger)
	case "memory":
		return cache.NewMemoryStore(), nil
	default:
		return cache.NewFileStore(cfg.Cache.Dir, logger), nil
	}
}
