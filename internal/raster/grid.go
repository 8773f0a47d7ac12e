// Package raster holds a single-band intensity raster in memory and samples
// it into tile windows and polygon masks.
package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/coord"
)

// Affine maps pixel (col, row) to CRS coordinates:
//
//	x = A*col + B*row + C
//	y = D*col + E*row + F
type Affine struct {
	A, B, C, D, E, F float64
}

// Apply maps a pixel position to CRS coordinates.
func (t Affine) Apply(col, row float64) (x, y float64) {
	return t.A*col + t.B*row + t.C, t.D*col + t.E*row + t.F
}

// Inverse returns the transform mapping CRS coordinates back to pixels.
func (t Affine) Inverse() (Affine, error) {
	det := t.A*t.E - t.B*t.D
	if det == 0 || math.IsNaN(det) {
		return Affine{}, errors.New("affine transform is not invertible")
	}
	return Affine{
		A: t.E / det,
		B: -t.B / det,
		C: (t.B*t.F - t.E*t.C) / det,
		D: -t.D / det,
		E: t.A / det,
		F: (t.D*t.C - t.A*t.F) / det,
	}, nil
}

// Grid is a row-major single-band raster.
type Grid struct {
	Width     int
	Height    int
	Data      []float32
	Transform Affine
	CRS       string
	NoData    *float64

	// Min and Max summarise all finite, non-no-data samples. Both are zero
	// when the grid holds no valid sample.
	Min   float64
	Max   float64
	Valid int

	inverse Affine
	bounds  coord.BBox
}

// NewGrid validates the raster and computes its global range.
func NewGrid(width, height int, data []float32, transform Affine, crs string, nodata *float64) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid raster shape %dx%d", width, height)
	}
	if len(data) != width*height {
		return nil, fmt.Errorf("raster data has %d samples, want %d", len(data), width*height)
	}
	inv, err := transform.Inverse()
	if err != nil {
		return nil, err
	}
	code, err := coord.Normalize(crs)
	if err != nil {
		return nil, err
	}

	g := &Grid{
		Width:     width,
		Height:    height,
		Data:      data,
		Transform: transform,
		CRS:       code,
		NoData:    nodata,
		inverse:   inv,
	}
	g.bounds = g.computeBounds()
	g.computeRange()
	return g, nil
}

func (g *Grid) computeBounds() coord.BBox {
	b := coord.BBox{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
		CRS: g.CRS,
	}
	for _, c := range [][2]float64{{0, 0}, {float64(g.Width), 0}, {0, float64(g.Height)}, {float64(g.Width), float64(g.Height)}} {
		x, y := g.Transform.Apply(c[0], c[1])
		b.MinX = math.Min(b.MinX, x)
		b.MinY = math.Min(b.MinY, y)
		b.MaxX = math.Max(b.MaxX, x)
		b.MaxY = math.Max(b.MaxY, y)
	}
	return b
}

func (g *Grid) computeRange() {
	first := true
	for i := range g.Data {
		v, ok := g.value(i)
		if !ok {
			continue
		}
		g.Valid++
		if first {
			g.Min, g.Max = v, v
			first = false
			continue
		}
		if v < g.Min {
			g.Min = v
		}
		if v > g.Max {
			g.Max = v
		}
	}
}

// value returns sample i and whether it holds data.
func (g *Grid) value(i int) (float64, bool) {
	v := float64(g.Data[i])
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if g.NoData != nil && v == float64(float32(*g.NoData)) {
		return 0, false
	}
	return v, true
}

// At returns the sample at (col, row) and whether it holds data.
func (g *Grid) At(col, row int) (float64, bool) {
	if col < 0 || row < 0 || col >= g.Width || row >= g.Height {
		return 0, false
	}
	return g.value(row*g.Width + col)
}

// Bounds returns the raster extent in its CRS.
func (g *Grid) Bounds() coord.BBox { return g.bounds }

// PixelOf maps CRS coordinates to fractional pixel coordinates.
func (g *Grid) PixelOf(x, y float64) (col, row float64) {
	return g.inverse.Apply(x, y)
}

// Metadata is the JSON summary of a raster.
type Metadata struct {
	CRS       string     `json:"crs"`
	Bounds    coord.BBox `json:"bounds"`
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	Transform [6]float64 `json:"transform"`
	NoData    *float64   `json:"nodata"`
	Min       float64    `json:"global_min"`
	Max       float64    `json:"global_max"`
}

// Metadata summarises the grid.
func (g *Grid) Metadata() Metadata {
	t := g.Transform
	return Metadata{
		CRS:       g.CRS,
		Bounds:    g.bounds,
		Width:     g.Width,
		Height:    g.Height,
		Transform: [6]float64{t.A, t.B, t.C, t.D, t.E, t.F},
		NoData:    g.NoData,
		Min:       g.Min,
		Max:       g.Max,
	}
}
