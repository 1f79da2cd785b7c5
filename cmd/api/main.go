package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"studio/internal/adapter/repo"
	"studio/internal/assets"
	"studio/internal/http/handlers"
	httpapi "studio/internal/http/httpapi"
	"studio/internal/imagemeta"
	"studio/internal/infra"
	"studio/internal/poller"
	"studio/internal/providers/webhook"
	"studio/internal/render"
	"studio/internal/storage"
	"studio/internal/studio"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()
	sql := infra.NewSQLRunner(dbpool, logger)

	resolver := assets.NewResolver(cfg.AssetBaseURL, cfg.SourceAllowedHosts...)
	assetRepo := repo.NewAssetRepository(sql)
	projectRepo := repo.NewProjectRepository(sql, resolver)

	dispatcher, err := render.NewDispatcher(render.Options{
		Endpoint: cfg.RenderEndpoint,
		Budget:   cfg.RenderBudget,
		Token:    cfg.RenderProxyToken,
		Logger:   &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure render dispatcher")
	}

	registry := studio.NewRegistry(studio.Deps{
		Jobs:       repo.NewJobRepository(sql),
		Persister:  projectRepo,
		Dispatcher: dispatcher,
		Poller: poller.New(poller.Options{
			Store:    assetRepo,
			Resolver: resolver,
			Photo:    poller.Budget{Attempts: cfg.PhotoPollAttempts, Interval: cfg.PhotoPollInterval},
			Video:    poller.Budget{Attempts: cfg.VideoPollAttempts, Interval: cfg.VideoPollInterval},
			Logger:   &logger,
		}),
		Measurer: imagemeta.NewMeasurer(imagemeta.Options{Allow: resolver.Trusted, Logger: &logger}),
		Resolver: resolver,
		Logger:   &logger,
	}, projectRepo.LoadSeed, cfg.SessionTTL)

	forwarder := webhook.NewForwarder(webhook.Options{
		Photo:           webhook.Endpoint{URL: cfg.PhotoWebhookURL, Secret: cfg.PhotoWebhookSecret},
		Video:           webhook.Endpoint{URL: cfg.VideoWebhookURL, Secret: cfg.VideoWebhookSecret},
		SignatureHeader: cfg.WebhookSignatureHeader,
		Timeout:         cfg.WebhookTimeout,
		Logger:          &logger,
	})

	app := handlers.NewApp(registry, forwarder, &logger)
	routerOpts := httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		RenderToken:     cfg.RenderProxyToken,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Logger:          logger,
	}
	if cfg.MediaDir != "" {
		media, err := storage.NewFileStore(cfg.MediaDir, 0)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open media directory")
		}
		app.Media = media
		app.Sources = projectRepo
		routerOpts.Static = media.Handler()
	}
	router := httpapi.NewRouter(app, routerOpts)

	server := infra.NewHTTPServer(cfg, router)
	logger.Info().Str("addr", server.Addr()).Str("render_endpoint", cfg.RenderEndpoint).Msg("studio API listening")
	if err := server.Run(ctx, cfg.HTTPIdleTimeout); err != nil {
		logger.Error().Err(err).Msg("http server failed")
		os.Exit(1)
	}

	// In-flight jobs get one render budget to settle; later results are picked up from the
	// asset store when the project is reopened.
	done := make(chan struct{})
	go func() {
		app.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(cfg.RenderBudget):
		logger.Warn().Msg("studio jobs still running at shutdown")
	}
	logger.Info().Msg("server stopped")
}
