// Package coord converts slippy-map tile coordinates into geographic bounds and
// reprojects bounds and geometries between the coordinate reference systems the
// lighting datasets are stored in.
package coord

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// MaxZoom is the deepest zoom level TileBounds accepts.
const MaxZoom = 30

var (
	// ErrInvalidTileCoordinate is returned for z/x/y triples outside the tile pyramid.
	ErrInvalidTileCoordinate = errors.New("invalid tile coordinate")
)

// BBox is an axis-aligned bounding box in a stated CRS.
type BBox struct {
	MinX float64 `json:"minx"`
	MinY float64 `json:"miny"`
	MaxX float64 `json:"maxx"`
	MaxY float64 `json:"maxy"`
	CRS  string  `json:"crs"`
}

// Empty reports whether the box has no area. Clamping a box to a dataset
// extent it does not overlap produces an empty box.
func (b BBox) Empty() bool {
	return !(b.MinX < b.MaxX) || !(b.MinY < b.MaxY)
}

// Intersect clamps b to other. Both boxes must share a CRS.
func (b BBox) Intersect(other BBox) BBox {
	return BBox{
		MinX: math.Max(b.MinX, other.MinX),
		MinY: math.Max(b.MinY, other.MinY),
		MaxX: math.Min(b.MaxX, other.MaxX),
		MaxY: math.Min(b.MaxY, other.MaxY),
		CRS:  b.CRS,
	}
}

// Bound returns the box as an orb.Bound.
func (b BBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinX, b.MinY}, Max: orb.Point{b.MaxX, b.MaxY}}
}

// FromBound wraps an orb.Bound with a CRS tag.
func FromBound(b orb.Bound, crs string) BBox {
	return BBox{MinX: b.Min[0], MinY: b.Min[1], MaxX: b.Max[0], MaxY: b.Max[1], CRS: crs}
}

// ValidateTile checks that (z, x, y) addresses a tile in the standard pyramid.
func ValidateTile(z, x, y int) error {
	if z < 0 || z > MaxZoom {
		return fmt.Errorf("%w: zoom %d outside [0, %d]", ErrInvalidTileCoordinate, z, MaxZoom)
	}
	n := 1 << z
	if x < 0 || x >= n || y < 0 || y >= n {
		return fmt.Errorf("%w: %d/%d/%d (tiles_per_axis=%d)", ErrInvalidTileCoordinate, z, x, y, n)
	}
	return nil
}

// TileBounds returns the EPSG:4326 bounds of tile (z, x, y).
func TileBounds(z, x, y int) (BBox, error) {
	if err := ValidateTile(z, x, y); err != nil {
		return BBox{}, err
	}
	n := float64(int(1) << z)
	return BBox{
		MinX: tileLon(float64(x), n),
		MinY: tileLat(float64(y+1), n),
		MaxX: tileLon(float64(x+1), n),
		MaxY: tileLat(float64(y), n),
		CRS:  WGS84,
	}, nil
}

func tileLon(x, n float64) float64 {
	return x/n*360.0 - 180.0
}

// tileLat is the inverse Mercator (Gudermannian) of a tile row edge.
func tileLat(y, n float64) float64 {
	return math.Atan(math.Sinh(math.Pi*(1-2*y/n))) * 180.0 / math.Pi
}
