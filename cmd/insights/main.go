package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"trader-insights/internal/artifacts"
	"trader-insights/internal/cfg"
	"trader-insights/internal/dashboard"
	"trader-insights/internal/metrics"
	"trader-insights/internal/ml"
	"trader-insights/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	loader := artifacts.NewLoader(artifacts.Config{
		Model: ml.Options{
			Backend:    c.ModelBackend,
			Path:       c.ModelPath,
			ServerURL:  c.ModelServerURL,
			PythonPath: c.PythonPath,
			Timeout:    c.InferenceTimeout,
		},
		TradesPath:      c.TradesPath,
		PredictionsPath: c.PredictionsPath,
	}, mw)

	art, err := loader.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("artifact load failed")
	}
	defer loader.Close()

	// A nil *storage.Store must not become a non-nil interface
	var cache dashboard.SummaryStore
	if store := initializeStorage(c); store != nil {
		defer store.Close()
		cache = store
	}
	summaries := dashboard.NewSummaryService(cache, mw)

	startMetricsServer(ctx, c)

	var wg sync.WaitGroup
	startModelAgeReporter(ctx, &wg, loader)

	server := dashboard.NewServer(art, summaries, mw, dashboard.Options{
		Port:             c.ListenPort,
		PredictRateLimit: c.PredictRateLimit,
	})
	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("insights server start failed")
	}

	waitForShutdown(ctx, cancel, &wg)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("insights server shutdown failed")
	}
}

func setupLogging(c cfg.Settings) {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		log.Warn().Str("level", c.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if c.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// initializeStorage opens the summary cache if DATA_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	if err := os.MkdirAll(c.DataPath, 0o755); err != nil {
		log.Warn().Err(err).Str("path", c.DataPath).Msg("cannot create data path, continuing without summary cache")
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without summary cache")
		return nil
	}
	return store
}

// startMetricsServer starts the Prometheus metrics HTTP server
func startMetricsServer(ctx context.Context, c cfg.Settings) {
	go func() {
		mux := http.NewServeMux()

		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", c.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			if err := server.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shutdown metrics server")
			}
		}()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// startModelAgeReporter refreshes the model age gauge until ctx is done
func startModelAgeReporter(ctx context.Context, wg *sync.WaitGroup, loader *artifacts.Loader) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				loader.ObserveAge()
			}
		}
	}()
}

// waitForShutdown waits for shutdown signals and handles graceful shutdown
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all goroutines stopped")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}
