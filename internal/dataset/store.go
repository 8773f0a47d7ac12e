// Package dataset owns the loaded lighting datasets and swaps them atomically
// on reload.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/coord"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/metrics"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/raster"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/spatial"
)

// ErrDatasetUnavailable is returned before the first successful load and
// wraps load failures.
var ErrDatasetUnavailable = errors.New("dataset unavailable")

// Snapshot is one immutable generation of the loaded datasets.
type Snapshot struct {
	Version  string
	LoadedAt time.Time
	Native   *spatial.Collection
	WGS84    *spatial.Collection
	Raster   *raster.Grid
}

// Collection returns the vector grid in crs: "native" (or the native tag)
// or WGS84.
func (s *Snapshot) Collection(crs string) (*spatial.Collection, error) {
	switch strings.ToLower(strings.TrimSpace(crs)) {
	case "", "native":
		return s.Native, nil
	case "wgs84":
		return s.WGS84, nil
	}
	code, err := coord.Normalize(crs)
	if err != nil {
		return nil, err
	}
	switch code {
	case s.Native.CRS():
		return s.Native, nil
	case coord.WGS84:
		return s.WGS84, nil
	}
	return nil, fmt.Errorf("%w: %s", coord.ErrUnsupportedCRS, code)
}

// Store holds the current snapshot. Reads are lock-free; loads are
// serialized.
type Store struct {
	loader  Loader
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

// NewStore creates an empty store backed by loader.
func NewStore(loader Loader) *Store {
	return &Store{loader: loader}
}

// Load parses the datasets unless a snapshot is already present and force is
// false. On failure the previous snapshot stays current.
func (s *Store) Load(ctx context.Context, force bool) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur := s.current.Load(); cur != nil && !force {
		return cur, nil
	}

	start := time.Now()
	snap, err := s.build(ctx)
	if err != nil {
		metrics.ReloadsTotal.WithLabelValues("failure").Inc()
		log.Printf("[Dataset] load failed: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrDatasetUnavailable, err)
	}
	s.current.Store(snap)

	metrics.ReloadsTotal.WithLabelValues("success").Inc()
	metrics.DatasetFeatures.Set(float64(snap.Native.Len()))
	log.Printf("[Dataset] loaded version %s: %d features (%s), raster %dx%d (%s) in %v",
		snap.Version, snap.Native.Len(), snap.Native.CRS(),
		snap.Raster.Width, snap.Raster.Height, snap.Raster.CRS, time.Since(start))
	return snap, nil
}

// Reload forces a fresh load.
func (s *Store) Reload(ctx context.Context) error {
	_, err := s.Load(ctx, true)
	return err
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, fmt.Errorf("%w: not loaded", ErrDatasetUnavailable)
	}
	return snap, nil
}

// Collection returns the vector grid of the current snapshot in crs.
func (s *Store) Collection(crs string) (*spatial.Collection, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Collection(crs)
}

// Close drops the current snapshot.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Store(nil)
}

func (s *Store) build(ctx context.Context) (*Snapshot, error) {
	vec, err := s.loader.LoadVector(ctx)
	if err != nil {
		return nil, fmt.Errorf("vector: %w", err)
	}
	grid, err := s.loader.LoadRaster(ctx)
	if err != nil {
		return nil, fmt.Errorf("raster: %w", err)
	}

	crs, err := coord.Normalize(vec.CRS)
	if err != nil {
		return nil, fmt.Errorf("vector: %w", err)
	}
	native := spatial.NewCollection(crs, vec.Features)

	wgs84 := native
	if crs != coord.WGS84 {
		toWGS84, err := coord.NewTransformer(crs, coord.WGS84)
		if err != nil {
			return nil, fmt.Errorf("vector: %w", err)
		}
		features := make([]spatial.Feature, len(vec.Features))
		for i, f := range vec.Features {
			g, err := coord.Apply(f.Geometry, toWGS84)
			if err != nil {
				return nil, fmt.Errorf("vector feature %d: %w", i, err)
			}
			features[i] = spatial.Feature{Geometry: g, MeanIntensity: f.MeanIntensity, Name: f.Name}
		}
		wgs84 = spatial.NewCollection(coord.WGS84, features)
	}

	return &Snapshot{
		Version:  uuid.NewString(),
		LoadedAt: time.Now().UTC(),
		Native:   native,
		WGS84:    wgs84,
		Raster:   grid,
	}, nil
}
