package dataset

import (
	"context"
	"fmt"
	"log"

	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/coord"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/data/gpkg"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/data/zarr"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/raster"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/spatial"
)

// VectorSource is a parsed vector grid in its native CRS.
type VectorSource struct {
	CRS      string
	Features []spatial.Feature
}

// Loader parses the source datasets.
type Loader interface {
	LoadVector(ctx context.Context) (*VectorSource, error)
	LoadRaster(ctx context.Context) (*raster.Grid, error)
}

// FileLoader reads the vector grid from a GeoPackage and the raster from a
// Zarr v3 array.
type FileLoader struct {
	VectorPath  string
	VectorTable string
	RasterPath  string
}

// LoadVector implements Loader.
func (l *FileLoader) LoadVector(ctx context.Context) (*VectorSource, error) {
	r, err := gpkg.Open(l.VectorPath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	layer, features, err := r.ReadFeatures(ctx, l.VectorTable)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", l.VectorPath, err)
	}
	crs, err := coord.Normalize(layer.CRS)
	if err != nil {
		return nil, err
	}
	return &VectorSource{CRS: crs, Features: features}, nil
}

// LoadRaster implements Loader.
func (l *FileLoader) LoadRaster(ctx context.Context) (*raster.Grid, error) {
	r, err := zarr.NewReader(l.RasterPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open raster %s: %w", l.RasterPath, err)
	}
	defer r.Close()

	meta := r.Meta()
	log.Printf("[Dataset] raster %s: shape=%v chunks=%v dtype=%s", l.RasterPath, meta.Shape, meta.ChunkGrid.Configuration.ChunkShape, meta.DataType)
	return r.ReadGrid(ctx)
}
