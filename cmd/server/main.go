package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/placepicker/backend/internal/catalog"
	"github.com/placepicker/backend/internal/config"
	"github.com/placepicker/backend/internal/db"
	"github.com/placepicker/backend/internal/events"
	"github.com/placepicker/backend/internal/geocode"
	httpapi "github.com/placepicker/backend/internal/http"
	"github.com/placepicker/backend/internal/kv"
	"github.com/placepicker/backend/internal/locate"
	"github.com/placepicker/backend/internal/service"
	"github.com/placepicker/backend/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "placepicker-backend").Logger()

	places, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load catalog")
	}

	ctx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	var (
		store  kv.Store
		health kv.Pinger
	)
	switch cfg.StoreBackend {
	case config.StorePostgres:
		pg, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect db")
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare schema")
		}
		store, health = pg, pg
	case config.StoreS3:
		s3, err := storage.NewS3Store(ctx, storage.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init s3 store")
		}
		store, health = s3, s3
	default:
		store = kv.NewMemory()
		logger.Info().Msg("using in-memory selection store")
	}

	var locator locate.Locator
	switch {
	case cfg.LocatorURL != "":
		locator = locate.HTTPLocator{URL: cfg.LocatorURL}
	case cfg.LocationQuery != "":
		locator = locate.GeocodeLocator{
			Geocoder: geocode.NewNominatim(cfg.NominatimURL, ""),
			Query:    geocode.BuildQuery(cfg.LocationQuery, cfg.LocationCountry),
		}
	default:
		logger.Info().Msg("no server locator configured, waiting for client positions")
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.KafkaBrokers != "" {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		publisher = kp
	}

	sessions := service.NewSessions(service.SessionsConfig{
		Catalog:   places,
		Store:     store,
		Key:       cfg.SelectionKey,
		Publisher: publisher,
		Logger:    logger,
		Locator:   locator,
		BaseCtx:   ctx,
		IdleTTL:   cfg.SessionIdleTTL,
	})

	router := httpapi.Router(cfg, sessions, places, health, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Str("store", cfg.StoreBackend).Int("places", places.Len()).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancelBase()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
