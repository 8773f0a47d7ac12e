// Package api provides HTTP handlers for the lighting server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/paulmach/orb"

	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/coord"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/dataset"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/metrics"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/service"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/spatial"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/stats"
)

// maxBodyBytes bounds the size of a stats request body.
const maxBodyBytes = 8 << 20

// RouterConfig contains router configuration.
type RouterConfig struct {
	Tiles          *service.TileService
	Stats          *service.StatsService
	Datasets       *service.DatasetService
	Title          string
	CORSOrigins    []string
	DefaultBins    int
	RequestTimeout time.Duration
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	if cfg.Title == "" {
		cfg.Title = "Urban Lighting API"
	}
	if cfg.DefaultBins <= 0 {
		cfg.DefaultBins = 30
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": cfg.Title + " is running"})
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Tile endpoints
	r.Get("/lighting/tiles/{z}/{x}/{y}.png", rasterTileHandler(cfg.Tiles))
	r.Get("/lighting/vector/tiles/{z}/{x}/{y}.pbf", vectorTileHandler(cfg.Tiles))
	r.Get("/vector/tiles/{z}/{x}/{y}.pbf", vectorTileHandler(cfg.Tiles))
	r.Get("/vector/tiles/{z}/{x}/{y}.png", gridPreviewHandler(cfg.Tiles))

	// Vector grid as GeoJSON
	r.Get("/vector", vectorHandler(cfg.Datasets))

	// Zonal statistics
	r.Post("/lighting/stats", statsHandler(cfg.Stats, cfg.DefaultBins))
	r.Post("/lighting/export", exportHandler(cfg.Stats, cfg.DefaultBins))

	r.Get("/metadata", metadataHandler(cfg.Datasets))
	r.Post("/admin/reload", reloadHandler(cfg.Datasets))
	r.Handle("/metrics", metrics.Handler())

	return r
}

// tileCoords parses the {z}/{x}/{y} URL parameters.
func tileCoords(r *http.Request) (z, x, y int, err error) {
	parse := func(name string) (int, error) {
		v, err := strconv.Atoi(chi.URLParam(r, name))
		if err != nil {
			return 0, fmt.Errorf("%w: invalid %s", coord.ErrInvalidTileCoordinate, name)
		}
		return v, nil
	}
	if z, err = parse("z"); err != nil {
		return
	}
	if x, err = parse("x"); err != nil {
		return
	}
	y, err = parse("y")
	return
}

func rasterTileHandler(svc *service.TileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		z, x, y, err := tileCoords(r)
		if err != nil {
			writeError(w, err)
			return
		}
		data, err := svc.RasterTile(r.Context(), z, x, y, r.URL.Query().Get("colormap"))
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Write(data)
	}
}

func vectorTileHandler(svc *service.TileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		z, x, y, err := tileCoords(r)
		if err != nil {
			writeError(w, err)
			return
		}
		data, err := svc.VectorTile(r.Context(), z, x, y)
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/x-protobuf")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Write(data)
	}
}

func gridPreviewHandler(svc *service.TileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		z, x, y, err := tileCoords(r)
		if err != nil {
			writeError(w, err)
			return
		}
		data, err := svc.GridPreviewTile(r.Context(), z, x, y, r.URL.Query().Get("colormap"))
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Write(data)
	}
}

func vectorHandler(svc *service.DatasetService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		var bound *orb.Bound
		if raw := query.Get("bbox"); raw != "" {
			b, err := parseBBox(raw)
			if err != nil {
				writeDetail(w, http.StatusBadRequest, err.Error())
				return
			}
			bound = &b
		} else if full, _ := strconv.ParseBool(query.Get("full")); !full {
			writeDetail(w, http.StatusBadRequest, "Must provide bbox or set full=True")
			return
		}

		fc, err := svc.VectorFeatures(bound)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		json.NewEncoder(w).Encode(fc)
	}
}

// parseBBox parses "minx,miny,maxx,maxy" in WGS84.
func parseBBox(raw string) (orb.Bound, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return orb.Bound{}, errors.New("bbox must be minx,miny,maxx,maxy")
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, errors.New("bbox must be minx,miny,maxx,maxy")
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, errors.New("bbox must be minx,miny,maxx,maxy")
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

type statsRequest struct {
	GeoJSON json.RawMessage `json:"geojson"`
}

// parseStatsRequest reads the polygon from the body and the options from
// the query string.
func parseStatsRequest(r *http.Request, defaultBins int) (orb.Geometry, service.Options, error) {
	query := r.URL.Query()
	opts := service.Options{NBins: defaultBins}

	boolParam := func(name string) (bool, error) {
		raw := query.Get(name)
		if raw == "" {
			return false, nil
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return false, fmt.Errorf("invalid %s: %q", name, raw)
		}
		return v, nil
	}
	var err error
	if opts.ReturnValues, err = boolParam("return_values"); err != nil {
		return nil, opts, err
	}
	if opts.ReturnHistogram, err = boolParam("return_histogram"); err != nil {
		return nil, opts, err
	}
	if raw := query.Get("nbins"); raw != "" {
		if opts.NBins, err = strconv.Atoi(raw); err != nil {
			return nil, opts, fmt.Errorf("%w: invalid nbins %q", stats.ErrInvalidHistogramRequest, raw)
		}
	}

	var req statsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		return nil, opts, fmt.Errorf("%w: invalid request body: %v", spatial.ErrInvalidGeometry, err)
	}
	if len(req.GeoJSON) == 0 || string(req.GeoJSON) == "null" {
		return nil, opts, fmt.Errorf("%w: geojson is required", spatial.ErrInvalidGeometry)
	}
	polygon, err := spatial.ParsePolygonGeoJSON(req.GeoJSON)
	if err != nil {
		return nil, opts, err
	}
	return polygon, opts, nil
}

func statsHandler(svc *service.StatsService, defaultBins int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		polygon, opts, err := parseStatsRequest(r, defaultBins)
		if err != nil {
			writeDetailOrError(w, err)
			return
		}
		res, err := svc.Compute(r.Context(), polygon, opts)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func exportHandler(svc *service.StatsService, defaultBins int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		polygon, opts, err := parseStatsRequest(r, defaultBins)
		if err != nil {
			writeDetailOrError(w, err)
			return
		}
		res, err := svc.Compute(r.Context(), polygon, opts)
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename="+service.ExportFilename)
		if err := service.ExportCSV(w, res, opts); err != nil {
			log.Printf("[API] failed to write CSV export: %v", err)
		}
	}
}

func metadataHandler(svc *service.DatasetService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meta, err := svc.Metadata()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, meta)
	}
}

func reloadHandler(svc *service.DatasetService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := svc.Reload(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"version": snap.Version,
		})
	}
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, coord.ErrInvalidTileCoordinate),
		errors.Is(err, spatial.ErrInvalidGeometry),
		errors.Is(err, stats.ErrInvalidHistogramRequest),
		errors.Is(err, coord.ErrUnsupportedCRS):
		return http.StatusBadRequest
	case errors.Is(err, dataset.ErrDatasetUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("[API] internal error: %v", err)
	}
	writeDetail(w, status, err.Error())
}

// writeDetailOrError reports errors from request parsing: known kinds keep
// their mapping, anything else is a bad request.
func writeDetailOrError(w http.ResponseWriter, err error) {
	if status := statusFor(err); status != http.StatusInternalServerError {
		writeDetail(w, status, err.Error())
		return
	}
	writeDetail(w, http.StatusBadRequest, err.Error())
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
