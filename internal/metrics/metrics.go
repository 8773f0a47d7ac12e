// Package metrics holds the Prometheus collectors of the lighting server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TileRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lighting_tile_requests_total",
		Help: "Tile requests by kind and outcome",
	}, []string{"kind", "status"})
	TileRenderDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lighting_tile_render_duration_ms",
		Help:    "Time spent producing a tile on a cache miss, in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"kind"})
	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lighting_cache_hits_total",
		Help: "Cache hits by cache",
	}, []string{"cache"})
	CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lighting_cache_misses_total",
		Help: "Cache misses by cache",
	}, []string{"cache"})
	StatsDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lighting_stats_duration_ms",
		Help:    "Zonal statistics computation time in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
	})
	ReloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lighting_dataset_reloads_total",
		Help: "Dataset loads by outcome",
	}, []string{"status"})
	DatasetFeatures = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lighting_dataset_features",
		Help: "Number of vector grid features in the current snapshot",
	})
)

func init() {
	prometheus.MustRegister(TileRequestsTotal)
	prometheus.MustRegister(TileRenderDurationMs)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(StatsDurationMs)
	prometheus.MustRegister(ReloadsTotal)
	prometheus.MustRegister(DatasetFeatures)
}

// Handler exposes the registered collectors for scraping.
func Handler() http.Handler { return promhttp.Handler() }
