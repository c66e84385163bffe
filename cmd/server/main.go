// Package main is the entry point for the multivec tile server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/multivec-tiles/server/internal/api"
	"github.com/multivec-tiles/server/internal/cache"
	"github.com/multivec-tiles/server/internal/config"
	"github.com/multivec-tiles/server/internal/data/zarr"
	"github.com/multivec-tiles/server/internal/multivec"
	"github.com/multivec-tiles/server/internal/render"
	"github.com/multivec-tiles/server/internal/service"
	"github.com/multivec-tiles/server/internal/store"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/server.yaml", "Path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := cfg.Logging.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	logger.Info("starting multivec tile server", "port", cfg.Server.Port)

	ctx := context.Background()

	// Initialize cache manager (shared across all datasets)
	cacheManager, err := cache.NewManager(cache.Config{
		TileCacheSizeMB: cfg.Cache.TileSizeMB,
		TileTTL:         time.Duration(cfg.Cache.TileTTLMinutes) * time.Minute,
		InfoCacheSize:   cfg.Cache.InfoEntries,
	})
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	defer cacheManager.Close()

	// Initialize tile renderer (shared across all datasets)
	tileRenderer := render.NewTileRenderer(render.Config{
		RowHeight:       cfg.Render.RowHeight,
		DefaultColormap: cfg.Render.DefaultColormap,
	})

	// Initialize dataset registry
	datasetIDs := cfg.Datasets.IDs()
	registry := api.NewDatasetRegistry(cfg.Datasets.Default(), datasetIDs)

	logger.Info("initializing datasets", "count", len(datasetIDs), "default", cfg.Datasets.Default())

	for _, datasetID := range datasetIDs {
		ds, _ := cfg.Datasets.Get(datasetID)

		st, err := store.Open(ctx, ds.URL)
		if err != nil {
			return fmt.Errorf("open store for dataset %q: %w", datasetID, err)
		}
		defer st.Close()

		zarrReader, err := zarr.NewReader(st)
		if err != nil {
			return fmt.Errorf("initialize zarr reader for dataset %q: %w", datasetID, err)
		}
		defer zarrReader.Close()

		fetcher := multivec.NewFetcher(zarrReader, multivec.Options{
			BinCapacity: ds.BinCapacity,
			TileTimeout: cfg.Fetch.TileTimeout(),
			Logger:      logger.With("dataset", datasetID),
		})

		// Metadata problems are reported per request; a bad dataset does not
		// stop the others from serving.
		if info, err := fetcher.TilesetInfo(ctx); err != nil {
			logger.Warn("dataset metadata unavailable", "dataset", datasetID, "url", ds.URL, "err", err)
		} else {
			logger.Info("dataset loaded",
				"dataset", datasetID,
				"url", ds.URL,
				"samples", info.NumSamples(),
				"max_zoom", info.MaxZoom,
				"chromosomes", len(info.ChromSizes),
			)
		}

		registry.Register(datasetID, service.NewTileService(service.TileServiceConfig{
			DatasetID: datasetID,
			Name:      ds.Name,
			Fetcher:   fetcher,
			Cache:     cacheManager,
			Renderer:  tileRenderer,
			Logger:    logger,
		}))
	}

	// Set up HTTP router
	router := api.NewRouter(api.RouterConfig{
		Registry:    registry,
		Cache:       cacheManager,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      logger,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * cfg.Fetch.TileTimeout(),
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", fmt.Sprintf("http://localhost:%d", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", "err", err)
	}

	logger.Info("server stopped")
	return nil
}
