package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"vahan/internal/amqp"
	"vahan/internal/backend"
	"vahan/internal/cache"
	"vahan/internal/cli"
	apphttp "vahan/internal/http"
	applog "vahan/internal/log"
	"vahan/internal/metrics"
	"vahan/internal/services"
	"vahan/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		applog.New(applog.DefaultConfig()).Error("vahan exited with error", applog.FieldError, err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	boot := cli.SetupLogger("info")
	cfg := cli.LoadAndValidateConfig(boot.Logger)
	logger := cli.SetupLogger(cfg.LogLevel)

	ctx, stop := cli.SignalContext(logger.Logger)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("Failed to close backend", applog.FieldError, err)
		}
	}()

	m := metrics.New()

	datasets := cache.NewLoading[*services.Dataset](cfg.CacheSize, cfg.CacheTTL,
		cache.WithObserver[*services.Dataset](m.ObserveCache))
	caches := cache.NewManager()
	caches.Register(datasets)
	caches.StartCleanup(ctx, cfg.CacheCleanupInterval)
	defer caches.Stop()

	reports := services.NewReportService(res.Source, datasets,
		services.WithMetrics(m),
		services.WithLogger(logger),
		services.WithSourceName(res.Name),
		services.WithDefaultTopN(cfg.DefaultTopN))

	refresher := worker.NewRefreshWorker(reports, m)
	refresher.StartupWarm(ctx)

	opts := []apphttp.Option{
		apphttp.WithMetrics(m),
		apphttp.WithLogger(logger),
	}
	if res.Store != nil {
		opts = append(opts, apphttp.WithReadinessCheck("sqlite", res.Store.Ping))
	}

	// Refresh notifications are optional: without a broker the dashboard still
	// picks up file changes through the source identity.
	var consumer *amqp.Client
	if cfg.AMQPEnabled() {
		consumer, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, refresh notifications disabled", applog.FieldError, err)
		} else {
			defer consumer.Close()
		}
	}

	srv := apphttp.NewServer(":"+cfg.Port, reports, opts...)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting vahan server",
			"port", cfg.Port,
			applog.FieldBackend, cfg.DataBackend,
			applog.FieldSource, res.Name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		cli.Shutdown(logger.Logger, shutdownTimeout, srv.Shutdown)
		return nil
	})

	if consumer != nil {
		g.Go(func() error {
			logger.Info("Consuming dataset notifications", "queue", cfg.AMQPQueue)
			err := consumer.ConsumeDatasetLoaded(gctx, refresher.HandleDatasetLoaded)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", applog.FieldError, err)
			}
			return nil
		})
	}

	if res.Polled && cfg.RefreshInterval > 0 {
		g.Go(func() error {
			logger.Info("Polling source", "interval", cfg.RefreshInterval)
			refresher.PeriodicRefresh(gctx, cfg.RefreshInterval)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
