package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"finease/internal/auth"
	"finease/internal/backend"
	"finease/internal/cache"
	"finease/internal/cli"
	"finease/internal/config"
	apphttp "finease/internal/http"
	"finease/internal/log"
	"finease/internal/metrics"
	"finease/internal/middleware/ratelimit"
	"finease/internal/services"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig((*config.Config).Validate)
	ctx, stop := cli.SignalContext(logger)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	be, err := backend.NewFactory(logger).Open(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to open data backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	m := metrics.New()
	authSvc := auth.NewService(be.Store, cfg.JWTSecret, cfg.JWTTTL, logger)
	txns := services.NewTransactionService(be.Store, services.Config{
		SummaryTTL:    cfg.SummaryCacheTTL,
		Publisher:     be.Publisher,
		Metrics:       m,
		CacheObserver: m,
		Logger:        logger,
	})

	caches := cache.NewManager(logger.WithComponent(log.ComponentCache).Logger)
	caches.Register(txns.SummaryCache())

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Auth:           authSvc,
		Transactions:   txns,
		Store:          be.Store,
		Metrics:        m,
		Logger:         logger,
		CORSOrigins:    cfg.CORSOrigins,
		TrustedProxies: cfg.TrustedProxies,
		RateLimit:      ratelimit.DefaultConfig(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		caches.Run(gctx, 5*time.Minute)
		return nil
	})
	g.Go(func() error {
		logger.Info("Starting finease server", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
