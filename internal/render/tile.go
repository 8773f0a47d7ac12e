// Package render encodes lighting tiles: vector tiles for the grid, grayscale
// PNGs for the raster, and colour previews drawn with fogleman/gg.
package render

import (
	"bytes"
	"image/color"
	"image/png"
	"sync"

	"github.com/fogleman/gg"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"

	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/spatial"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/pkg/colormap"
)

// Config contains renderer configuration.
type Config struct {
	TileSize        int
	DefaultColormap string
}

// TileRenderer draws colour tiles. It is safe for concurrent use.
type TileRenderer struct {
	config      Config
	contextPool sync.Pool
	bufferPool  sync.Pool
}

// NewTileRenderer creates a new tile renderer.
func NewTileRenderer(cfg Config) *TileRenderer {
	if cfg.TileSize <= 0 {
		cfg.TileSize = 256
	}
	return &TileRenderer{
		config: cfg,
		contextPool: sync.Pool{
			New: func() interface{} {
				return gg.NewContext(cfg.TileSize, cfg.TileSize)
			},
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 32*1024))
			},
		},
	}
}

// TileSize returns the edge length of rendered tiles in pixels.
func (r *TileRenderer) TileSize() int { return r.config.TileSize }

func (r *TileRenderer) colormap(name string) colormap.Colormap {
	if c, ok := colormap.Lookup(name); ok {
		return c
	}
	if c, ok := colormap.Lookup(r.config.DefaultColormap); ok {
		return c
	}
	return colormap.Lighting
}

// RenderColormapTile paints a normalized raster window through a colormap.
// Zero pixels stay transparent.
func (r *TileRenderer) RenderColormapTile(a [][]uint8, colormapName string) ([]byte, error) {
	dc := r.contextPool.Get().(*gg.Context)
	defer r.contextPool.Put(dc)

	dc.SetColor(color.Transparent)
	dc.Clear()

	cmap := r.colormap(colormapName)
	size := r.config.TileSize
	for y := 0; y < len(a) && y < size; y++ {
		for x := 0; x < len(a[y]) && x < size; x++ {
			v := a[y][x]
			if v == 0 {
				continue
			}
			dc.SetColor(cmap.At(float64(v) / 255))
			dc.SetPixel(x, y)
		}
	}
	return r.encodeContext(dc)
}

// RenderGridTile fills each WGS84 grid cell in tile, coloured by where its
// mean intensity falls in [lo, hi].
func (r *TileRenderer) RenderGridTile(tile maptile.Tile, features []spatial.Feature, lo, hi float64, colormapName string) ([]byte, error) {
	dc := r.contextPool.Get().(*gg.Context)
	defer r.contextPool.Put(dc)

	dc.SetColor(color.Transparent)
	dc.Clear()

	if len(features) == 0 {
		return r.encodeContext(dc)
	}

	cmap := r.colormap(colormapName)
	toPixel := pixelProjector(tile, float64(r.config.TileSize))
	dc.SetFillRule(gg.FillRuleEvenOdd)

	for _, f := range features {
		t := 0.0
		if hi > lo {
			t = (f.MeanIntensity - lo) / (hi - lo)
		}
		drawn := false
		for _, p := range polygonsOf(f.Geometry) {
			for _, ring := range p {
				if len(ring) < 3 {
					continue
				}
				for i, pt := range ring {
					x, y := toPixel(pt)
					if i == 0 {
						dc.MoveTo(x, y)
					} else {
						dc.LineTo(x, y)
					}
				}
				dc.ClosePath()
				drawn = true
			}
		}
		if !drawn {
			continue
		}
		dc.SetColor(cmap.At(t))
		dc.Fill()
	}

	return r.encodeContext(dc)
}

func polygonsOf(g orb.Geometry) []orb.Polygon {
	switch g := g.(type) {
	case orb.Polygon:
		return []orb.Polygon{g}
	case orb.MultiPolygon:
		return g
	}
	return nil
}

// pixelProjector maps WGS84 points to pixel coordinates of tile.
func pixelProjector(tile maptile.Tile, size float64) func(orb.Point) (float64, float64) {
	b := tile.Bound()
	lo := project.WGS84.ToMercator(b.Min)
	hi := project.WGS84.ToMercator(b.Max)
	w, h := hi[0]-lo[0], hi[1]-lo[1]
	return func(p orb.Point) (float64, float64) {
		m := project.WGS84.ToMercator(p)
		return (m[0] - lo[0]) / w * size, (hi[1] - m[1]) / h * size
	}
}

func (r *TileRenderer) encodeContext(dc *gg.Context) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, dc.Image()); err != nil {
		return nil, err
	}

	// the buffer is reused, hand out a copy
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}
