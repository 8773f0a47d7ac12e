package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"golang.org/x/sync/semaphore"

	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/cache"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/coord"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/dataset"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/metrics"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/raster"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/spatial"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/stats"
)

// Options select the optional parts of a stats result.
type Options struct {
	ReturnValues    bool
	ReturnHistogram bool
	NBins           int
}

// VectorStats summarises the grid cells inside a polygon.
type VectorStats struct {
	Mean   float64   `json:"mean"`
	Min    float64   `json:"min"`
	Max    float64   `json:"max"`
	Count  int       `json:"count"`
	Values []float64 `json:"values"`
}

// RasterStats summarises the raster samples inside a polygon. Histogram is
// nil unless requested and computable.
type RasterStats struct {
	Mean      float64          `json:"mean"`
	Min       float64          `json:"min"`
	Max       float64          `json:"max"`
	Count     int              `json:"count"`
	Histogram *stats.Histogram `json:"histogram"`
}

// Result is the zonal statistics response.
type Result struct {
	VectorStats VectorStats `json:"vector_stats"`
	RasterStats RasterStats `json:"raster_stats"`
}

// StatsServiceConfig contains stats service configuration.
type StatsServiceConfig struct {
	Store         *dataset.Store
	Cache         *cache.Manager
	MaxConcurrent int
}

// StatsService computes zonal statistics with bounded concurrency.
type StatsService struct {
	store *dataset.Store
	cache *cache.Manager
	sem   *semaphore.Weighted
}

// NewStatsService creates a new stats service.
func NewStatsService(cfg StatsServiceConfig) *StatsService {
	n := cfg.MaxConcurrent
	if n <= 0 {
		n = 1
	}
	return &StatsService{
		store: cfg.Store,
		cache: cfg.Cache,
		sem:   semaphore.NewWeighted(int64(n)),
	}
}

// Compute returns the vector and raster statistics of polygon, given in
// WGS84. Waiting for a slot honours ctx.
func (s *StatsService) Compute(ctx context.Context, polygon orb.Geometry, opts Options) (*Result, error) {
	if opts.ReturnHistogram {
		if opts.NBins < 1 {
			return nil, fmt.Errorf("%w: nbins must be >= 1, got %d", stats.ErrInvalidHistogramRequest, opts.NBins)
		}
	} else {
		opts.NBins = 0
	}
	if err := spatial.ValidatePolygon(polygon); err != nil {
		return nil, err
	}
	snap, err := s.store.Snapshot()
	if err != nil {
		return nil, err
	}

	body, err := wkb.Marshal(polygon)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", spatial.ErrInvalidGeometry, err)
	}
	key := cache.StatsKey(snap.Version, body, opts.ReturnValues, opts.ReturnHistogram, opts.NBins)
	if data, ok := s.cache.GetStats(key); ok {
		var res Result
		if err := json.Unmarshal(data, &res); err == nil {
			metrics.CacheHitsTotal.WithLabelValues("stats").Inc()
			return &res, nil
		}
	}
	metrics.CacheMissesTotal.WithLabelValues("stats").Inc()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	start := time.Now()
	vs, err := vectorStats(snap.Native, polygon, opts.ReturnValues)
	if err != nil {
		return nil, err
	}
	res := &Result{
		VectorStats: vs,
		RasterStats: rasterStats(snap.Raster, polygon, opts),
	}
	metrics.StatsDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000)

	if data, err := json.Marshal(res); err == nil {
		s.cache.SetStats(key, data)
	}
	return res, nil
}

// vectorStats clips the native collection to polygon and summarises the
// clipped cells' intensities.
func vectorStats(c *spatial.Collection, polygon orb.Geometry, returnValues bool) (VectorStats, error) {
	native, err := coord.ReprojectGeometry(polygon, coord.WGS84, c.CRS())
	if err != nil {
		return VectorStats{}, fmt.Errorf("failed to reproject polygon to %s: %w", c.CRS(), err)
	}

	clipped := c.ClipToPolygon(native)
	if len(clipped) == 0 {
		return VectorStats{}, nil
	}
	values := make([]float64, len(clipped))
	for i, f := range clipped {
		values[i] = f.MeanIntensity
	}

	sum := stats.Summarize(values)
	vs := VectorStats{Mean: sum.Mean, Min: sum.Min, Max: sum.Max, Count: sum.Count}
	if returnValues {
		vs.Values = values
	}
	return vs, nil
}

// rasterStats summarises the raster under polygon. A polygon outside the
// raster, or outside the domain of its CRS, yields empty stats.
func rasterStats(g *raster.Grid, polygon orb.Geometry, opts Options) RasterStats {
	native, err := coord.ReprojectGeometry(polygon, coord.WGS84, g.CRS)
	if err != nil {
		log.Printf("[StatsService] polygon not representable in %s: %v", g.CRS, err)
		return RasterStats{}
	}

	values := raster.MaskByPolygon(g, native)
	if len(values) == 0 {
		return RasterStats{}
	}
	sum := stats.Summarize(values)
	rs := RasterStats{Mean: sum.Mean, Min: sum.Min, Max: sum.Max, Count: sum.Count}

	if opts.ReturnHistogram {
		h, err := stats.ComputeHistogram(values, g.Min, g.Max, opts.NBins)
		if err == nil {
			rs.Histogram = &h
		}
	}
	return rs
}
