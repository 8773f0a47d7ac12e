// Package main is the entry point for the lighting tile and statistics server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/api"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/cache"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/config"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/dataset"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/render"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/service"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/server.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting %s on port %d", cfg.Server.Title, cfg.Server.Port)

	ctx := context.Background()

	cacheManager, err := cache.NewManager(cache.Config{
		TileCacheSizeMB: cfg.Cache.TileSizeMB,
		TileTTL:         time.Duration(cfg.Cache.TileTTLMinutes) * time.Minute,
		StatsCacheSize:  cfg.Cache.StatsCacheSize,
	})
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	defer cacheManager.Close()

	tileRenderer := render.NewTileRenderer(render.Config{
		TileSize:        cfg.Render.TileSize,
		DefaultColormap: cfg.Render.DefaultColormap,
	})

	store := dataset.NewStore(&dataset.FileLoader{
		VectorPath:  cfg.Data.VectorPath,
		VectorTable: cfg.Data.VectorTable,
		RasterPath:  cfg.Data.RasterPath,
	})
	defer store.Close()

	// Data endpoints answer 503 until a reload succeeds.
	if snap, err := store.Load(ctx, false); err != nil {
		log.Printf("Datasets not loaded: %v", err)
	} else {
		log.Printf("Vector grid: %s (%d features, %s)", cfg.Data.VectorPath, snap.Native.Len(), snap.Native.CRS())
		log.Printf("Raster: %s (%dx%d, %s)", cfg.Data.RasterPath, snap.Raster.Width, snap.Raster.Height, snap.Raster.CRS)
	}

	tileService := service.NewTileService(service.TileServiceConfig{
		Store:    store,
		Cache:    cacheManager,
		Renderer: tileRenderer,
		MaxZoom:  cfg.Render.MaxZoom,
	})
	statsService := service.NewStatsService(service.StatsServiceConfig{
		Store:         store,
		Cache:         cacheManager,
		MaxConcurrent: cfg.Stats.MaxConcurrent,
	})
	datasetService := service.NewDatasetService(store, cacheManager, cfg.Data.MetadataPath)
	log.Printf("Stats: max_concurrent=%d, default_bins=%d", cfg.Stats.MaxConcurrent, cfg.Stats.DefaultBins)

	// Set up HTTP router
	router := api.NewRouter(api.RouterConfig{
		Tiles:          tileService,
		Stats:          statsService,
		Datasets:       datasetService,
		Title:          cfg.Server.Title,
		CORSOrigins:    cfg.Server.CORSOrigins,
		DefaultBins:    cfg.Stats.DefaultBins,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Duration(cfg.Server.RequestTimeoutSeconds+10) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on http://localhost:%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Reload datasets on SIGHUP, stop on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range quit {
		if sig != syscall.SIGHUP {
			break
		}
		if snap, err := datasetService.Reload(ctx); err != nil {
			log.Printf("Reload failed: %v", err)
		} else {
			log.Printf("Reloaded datasets, version %s", snap.Version)
		}
	}

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
