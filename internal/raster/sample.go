package raster

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/coord"
)

// SampleWindow reads the part of g covered by b, given in g's CRS, into an
// outH x outW array using nearest-neighbour resampling. A window that misses
// the raster yields all zeros. Missing samples read as 0.
func SampleWindow(g *Grid, b coord.BBox, outW, outH int) [][]float64 {
	out := make([][]float64, outH)
	for i := range out {
		out[i] = make([]float64, outW)
	}

	w := b.Intersect(g.Bounds())
	if w.Empty() {
		return out
	}

	dx := (w.MaxX - w.MinX) / float64(outW)
	dy := (w.MaxY - w.MinY) / float64(outH)
	for i := 0; i < outH; i++ {
		y := w.MaxY - (float64(i)+0.5)*dy
		row := out[i]
		for j := 0; j < outW; j++ {
			x := w.MinX + (float64(j)+0.5)*dx
			c, r := g.PixelOf(x, y)
			if v, ok := g.At(int(math.Floor(c)), int(math.Floor(r))); ok {
				row[j] = v
			}
		}
	}
	return out
}

// NormalizeTo8Bit stretches a from its own min/max onto 0..255. A constant
// array maps to all zeros.
func NormalizeTo8Bit(a [][]float64) [][]uint8 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range a {
		for _, v := range row {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}

	out := make([][]uint8, len(a))
	for i, row := range a {
		out[i] = make([]uint8, len(row))
		if !(hi > lo) {
			continue
		}
		for j, v := range row {
			out[i][j] = uint8((v - lo) / (hi - lo) * 255)
		}
	}
	return out
}

// MaskByPolygon returns every valid sample whose pixel centre lies inside
// polygon, given in g's CRS, in row-major order.
func MaskByPolygon(g *Grid, polygon orb.Geometry) []float64 {
	if polygon == nil {
		return nil
	}
	pb := polygon.Bound()
	w := coord.FromBound(pb, g.CRS).Intersect(g.Bounds())
	if w.MinX > w.MaxX || w.MinY > w.MaxY {
		return nil
	}

	colMin, colMax := math.Inf(1), math.Inf(-1)
	rowMin, rowMax := math.Inf(1), math.Inf(-1)
	for _, p := range [][2]float64{{w.MinX, w.MinY}, {w.MinX, w.MaxY}, {w.MaxX, w.MinY}, {w.MaxX, w.MaxY}} {
		c, r := g.PixelOf(p[0], p[1])
		colMin, colMax = math.Min(colMin, c), math.Max(colMax, c)
		rowMin, rowMax = math.Min(rowMin, r), math.Max(rowMax, r)
	}
	c0 := max(0, int(math.Floor(colMin)))
	c1 := min(g.Width-1, int(math.Ceil(colMax)))
	r0 := max(0, int(math.Floor(rowMin)))
	r1 := min(g.Height-1, int(math.Ceil(rowMax)))

	var values []float64
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			v, ok := g.At(c, r)
			if !ok {
				continue
			}
			x, y := g.Transform.Apply(float64(c)+0.5, float64(r)+0.5)
			if contains(polygon, orb.Point{x, y}) {
				values = append(values, v)
			}
		}
	}
	return values
}

func contains(g orb.Geometry, p orb.Point) bool {
	switch g := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	case orb.Bound:
		return g.Contains(p)
	}
	return false
}
