package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/cache"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/coord"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/dataset"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/spatial"
)

// DatasetService exposes the loaded datasets: reload, metadata and GeoJSON
// export of the grid.
type DatasetService struct {
	store        *dataset.Store
	cache        *cache.Manager
	metadataPath string
}

// NewDatasetService creates a new dataset service.
func NewDatasetService(store *dataset.Store, c *cache.Manager, metadataPath string) *DatasetService {
	return &DatasetService{store: store, cache: c, metadataPath: metadataPath}
}

// Reload swaps in freshly parsed datasets and drops cached results of the
// old snapshot.
func (s *DatasetService) Reload(ctx context.Context) (*dataset.Snapshot, error) {
	snap, err := s.store.Load(ctx, true)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Reset(); err != nil {
		log.Printf("[DatasetService] failed to reset caches: %v", err)
	}
	return snap, nil
}

// VectorSummary describes the loaded vector grid.
type VectorSummary struct {
	CRS          string     `json:"crs"`
	FeatureCount int        `json:"feature_count"`
	Bounds       [4]float64 `json:"bounds"`
	IntensityMin float64    `json:"intensity_min"`
	IntensityMax float64    `json:"intensity_max"`
}

// Metadata returns the contents of the metadata file merged with summaries
// of the loaded datasets, the accepted CRS codes and cache counters. A
// missing file contributes nothing.
func (s *DatasetService) Metadata() (map[string]interface{}, error) {
	meta := map[string]interface{}{}
	if s.metadataPath != "" {
		data, err := os.ReadFile(s.metadataPath)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, &meta); err != nil {
				return nil, fmt.Errorf("failed to decode metadata JSON: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read metadata: %w", err)
		}
	}

	snap, err := s.store.Snapshot()
	if err != nil {
		return nil, err
	}
	b := snap.WGS84.Bound()
	lo, hi := snap.Native.IntensityRange()
	meta["vector"] = VectorSummary{
		CRS:          snap.Native.CRS(),
		FeatureCount: snap.Native.Len(),
		Bounds:       [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]},
		IntensityMin: lo,
		IntensityMax: hi,
	}
	meta["raster"] = snap.Raster.Metadata()
	meta["supported_crs"] = coord.Supported()
	meta["cache"] = s.cache.Stats()
	meta["version"] = snap.Version
	meta["loaded_at"] = snap.LoadedAt.Format(time.RFC3339)
	return meta, nil
}

// VectorFeatures returns the WGS84 grid cells intersecting bound, or every
// cell when bound is nil, as a GeoJSON feature collection.
func (s *DatasetService) VectorFeatures(bound *orb.Bound) (*geojson.FeatureCollection, error) {
	c, err := s.store.Collection("wgs84")
	if err != nil {
		return nil, err
	}

	var features []spatial.Feature
	if bound == nil {
		features = c.Features()
	} else {
		features = c.SelectIntersecting(*bound)
	}

	fc := geojson.NewFeatureCollection()
	for i, f := range features {
		gf := geojson.NewFeature(f.Geometry)
		gf.ID = i
		gf.Properties["mean_intensity"] = f.MeanIntensity
		gf.Properties["name"] = f.Name
		fc.Append(gf)
	}
	return fc, nil
}
