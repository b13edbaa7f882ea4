package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tension-monitor/internal/cache"
	"tension-monitor/internal/config"
	"tension-monitor/internal/handlers"
	"tension-monitor/internal/logging"
	"tension-monitor/internal/monitor"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)
	defer logging.Sync()

	if err := run(cfg, logger); err != nil {
		logging.Error("Shutdown error", zap.Error(err))
		os.Exit(1)
	}
	logging.Info("Server stopped gracefully")
}

func run(cfg config.Config, logger *zap.Logger) error {
	logging.Info("Starting tension monitor", zap.String("port", cfg.Server.Port))

	var opts []monitor.Option
	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisCache(
			cfg.Redis.Addr,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.Retention(),
			logging.Named(logger, "redis"),
		)
		if err != nil {
			return err
		}
		defer rc.Close()
		redisCache = rc
		opts = append(opts, monitor.WithSink(rc))
		logging.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	mon, err := monitor.New(cfg.Telemetry, logging.Named(logger, "monitor"), opts...)
	if err != nil {
		return err
	}

	// nil *RedisCache не должен попасть в интерфейс
	var mirror handlers.Mirror
	if redisCache != nil {
		mirror = redisCache
	}
	handler := handlers.NewHandler(mon, mirror, logging.Named(logger, "http"))

	router := handler.Routes()
	router.Handle("/prometheus", promhttp.Handler())

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	mon.Start(ctx)
	defer mon.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logging.Info("Server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logging.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if redisCache != nil {
		g.Go(func() error {
			mirrorHealth(gctx, mon, redisCache, cfg.Telemetry.ExportInterval())
			return nil
		})
	}

	return g.Wait()
}

// mirrorHealth периодически сохраняет оценки здоровья в Redis
func mirrorHealth(ctx context.Context, mon *monitor.Monitor, rc *cache.RedisCache, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rc.StoreHealth(mon.Health(), mon.SystemHealth()); err != nil {
				logging.Warn("Failed to mirror health", zap.Error(err))
			}
		}
	}
}
