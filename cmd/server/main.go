package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/imissapixel/ai-media-gen/internal/auth"
	"github.com/imissapixel/ai-media-gen/internal/http/handlers"
	httpapi "github.com/imissapixel/ai-media-gen/internal/http/httpapi"
	"github.com/imissapixel/ai-media-gen/internal/infra"
	"github.com/imissapixel/ai-media-gen/internal/infra/credentials"
	"github.com/imissapixel/ai-media-gen/internal/infra/geoip"
	"github.com/imissapixel/ai-media-gen/internal/jobs"
	"github.com/imissapixel/ai-media-gen/internal/middleware"
	"github.com/imissapixel/ai-media-gen/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	creds, err := credentials.Initialize(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("credential initialization failed")
	}

	db, err := jobs.Open(cfg.JobDBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open job store")
	}

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open file store")
	}

	queue, err := jobs.NewQueue(jobs.Options{
		Repo:           jobs.NewRepo(db),
		Store:          store,
		Logger:         logger,
		WebhookTimeout: cfg.WebhookTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build job queue")
	}

	var geo geoip.CountryResolver
	if cfg.GeoIPDBPath != "" {
		geo, err = geoip.NewResolver(cfg.GeoIPDBPath)
		if err != nil {
			logger.Warn().Err(err).Msg("geoip database unavailable, login audit will omit country")
		}
	}

	app := &handlers.App{
		Logger:      logger,
		Config:      cfg,
		Credentials: creds,
		Tokens:      auth.NewTokens(cfg.SessionSecret, creds.Hash()),
		Limiter:     auth.NewLimiter(cfg.LoginMaxAttempts, cfg.LoginWindow),
		Queue:       queue,
		Store:       store,
		Geo:         geo,
	}

	cache := middleware.NewResponseCache(cfg.CacheGeneration)
	router := httpapi.NewRouter(app, cache)
	server := infra.NewHTTPServer(cfg, router)

	// Pick up jobs left pending by the previous run.
	if count, err := queue.Resume(context.Background()); err != nil {
		logger.Error().Err(err).Msg("startup resume sweep failed")
	} else if count > 0 {
		logger.Info().Int("count", count).Msg("resumed pending jobs")
	}

	go func() {
		logger.Info().Msgf("server listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
