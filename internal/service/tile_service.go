// Package service provides the tile and zonal statistics logic of the
// lighting server.
package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/paulmach/orb/maptile"
	"golang.org/x/sync/singleflight"

	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/cache"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/coord"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/dataset"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/metrics"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/raster"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/render"
)

// Tile kinds, used in cache keys and metrics labels.
const (
	KindRaster      = "raster"
	KindVector      = "vector"
	KindGridPreview = "grid_png"
)

// TileServiceConfig contains tile service configuration.
type TileServiceConfig struct {
	Store    *dataset.Store
	Cache    *cache.Manager
	Renderer *render.TileRenderer
	MaxZoom  int
}

// TileService renders raster, vector and preview tiles from the current
// dataset snapshot. Identical concurrent misses render once.
type TileService struct {
	store    *dataset.Store
	cache    *cache.Manager
	renderer *render.TileRenderer
	maxZoom  int
	tileSize int

	group singleflight.Group
}

// NewTileService creates a new tile service.
func NewTileService(cfg TileServiceConfig) *TileService {
	maxZoom := cfg.MaxZoom
	if maxZoom <= 0 || maxZoom > coord.MaxZoom {
		maxZoom = coord.MaxZoom
	}
	return &TileService{
		store:    cfg.Store,
		cache:    cfg.Cache,
		renderer: cfg.Renderer,
		maxZoom:  maxZoom,
		tileSize: cfg.Renderer.TileSize(),
	}
}

type tileRenderFunc func(snap *dataset.Snapshot, tile maptile.Tile, bounds coord.BBox) ([]byte, error)

// RasterTile returns the raster window under tile (z, x, y) stretched to
// 8 bits. An empty colormap yields a grayscale PNG, otherwise the window is
// painted through the named colormap.
func (s *TileService) RasterTile(ctx context.Context, z, x, y int, colormap string) ([]byte, error) {
	return s.tile(ctx, KindRaster, z, x, y, colormap, func(snap *dataset.Snapshot, _ maptile.Tile, bounds coord.BBox) ([]byte, error) {
		a := raster.NormalizeTo8Bit(s.rasterWindow(snap.Raster, bounds))
		if colormap == "" {
			return render.EncodeRasterTile(a)
		}
		return s.renderer.RenderColormapTile(a, colormap)
	})
}

// VectorTile returns the grid cells intersecting tile (z, x, y) as a vector
// tile. Cells with zero intensity are kept.
func (s *TileService) VectorTile(ctx context.Context, z, x, y int) ([]byte, error) {
	return s.tile(ctx, KindVector, z, x, y, "", func(snap *dataset.Snapshot, tile maptile.Tile, bounds coord.BBox) ([]byte, error) {
		features := snap.WGS84.SelectIntersecting(bounds.Bound())
		return render.EncodeVectorTile(tile, features)
	})
}

// GridPreviewTile paints the grid cells intersecting tile (z, x, y),
// coloured by intensity over the collection's range.
func (s *TileService) GridPreviewTile(ctx context.Context, z, x, y int, colormap string) ([]byte, error) {
	return s.tile(ctx, KindGridPreview, z, x, y, colormap, func(snap *dataset.Snapshot, tile maptile.Tile, bounds coord.BBox) ([]byte, error) {
		features := snap.WGS84.SelectIntersecting(bounds.Bound())
		lo, hi := snap.WGS84.IntensityRange()
		return s.renderer.RenderGridTile(tile, features, lo, hi, colormap)
	})
}

func (s *TileService) tile(ctx context.Context, kind string, z, x, y int, colormap string, fn tileRenderFunc) ([]byte, error) {
	if z > s.maxZoom {
		metrics.TileRequestsTotal.WithLabelValues(kind, "invalid").Inc()
		return nil, fmt.Errorf("%w: zoom %d above max zoom %d", coord.ErrInvalidTileCoordinate, z, s.maxZoom)
	}
	bounds, err := coord.TileBounds(z, x, y)
	if err != nil {
		metrics.TileRequestsTotal.WithLabelValues(kind, "invalid").Inc()
		return nil, err
	}
	snap, err := s.store.Snapshot()
	if err != nil {
		metrics.TileRequestsTotal.WithLabelValues(kind, "unavailable").Inc()
		return nil, err
	}

	cacheKey := cache.TileKey(snap.Version, kind, z, x, y, colormap)
	if data, ok := s.cache.GetTile(cacheKey); ok {
		metrics.CacheHitsTotal.WithLabelValues("tile").Inc()
		metrics.TileRequestsTotal.WithLabelValues(kind, "ok").Inc()
		return data, nil
	}
	metrics.CacheMissesTotal.WithLabelValues("tile").Inc()

	ch := s.group.DoChan(cacheKey, func() (interface{}, error) {
		start := time.Now()
		tile := maptile.New(uint32(x), uint32(y), maptile.Zoom(z))
		data, err := fn(snap, tile, bounds)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s tile %d/%d/%d: %w", kind, z, x, y, err)
		}
		metrics.TileRenderDurationMs.WithLabelValues(kind).Observe(float64(time.Since(start).Microseconds()) / 1000)

		if err := s.cache.SetTile(cacheKey, data); err != nil {
			log.Printf("[TileService] failed to cache %s: %v", cacheKey, err)
		}
		return data, nil
	})

	select {
	case <-ctx.Done():
		metrics.TileRequestsTotal.WithLabelValues(kind, "cancelled").Inc()
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			metrics.TileRequestsTotal.WithLabelValues(kind, "error").Inc()
			return nil, res.Err
		}
		metrics.TileRequestsTotal.WithLabelValues(kind, "ok").Inc()
		return res.Val.([]byte), nil
	}
}

// rasterWindow samples the raster under WGS84 bounds at tile resolution.
// Bounds that cannot be expressed in the raster CRS read as outside.
func (s *TileService) rasterWindow(g *raster.Grid, bounds coord.BBox) [][]float64 {
	native, err := coord.ReprojectBBox(bounds, g.CRS)
	if err != nil {
		log.Printf("[TileService] tile bounds not representable in %s, treating as outside: %v", g.CRS, err)
		native = coord.BBox{CRS: g.CRS}
	}
	return raster.SampleWindow(g, native, s.tileSize, s.tileSize)
}
