package coord

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// DensifyPoints is the number of interior points sampled along each bbox edge
// by ReprojectBBox.
const DensifyPoints = 21

// Transformer maps a point from one CRS to another.
type Transformer func(orb.Point) (orb.Point, error)

// NewTransformer builds the point transform from src to dst. The same
// pipeline is used in both directions so a round trip is stable.
func NewTransformer(src, dst string) (Transformer, error) {
	from, err := Lookup(src)
	if err != nil {
		return nil, err
	}
	to, err := Lookup(dst)
	if err != nil {
		return nil, err
	}

	switch {
	case from.Code == to.Code:
		return func(p orb.Point) (orb.Point, error) { return p, nil }, nil
	case from.Code == WGS84 && to.Code == WebMercator:
		return exact(project.WGS84.ToMercator), nil
	case from.Code == WebMercator && to.Code == WGS84:
		return exact(project.Mercator.ToWGS84), nil
	}

	srcSR, err := spatialRef(from)
	if err != nil {
		return nil, err
	}
	dstSR, err := spatialRef(to)
	if err != nil {
		return nil, err
	}
	t, err := srcSR.NewTransform(dstSR)
	if err != nil {
		return nil, fmt.Errorf("failed to build transform %s -> %s: %w", from.Code, to.Code, err)
	}
	return func(p orb.Point) (orb.Point, error) {
		x, y, err := t(p[0], p[1])
		if err != nil {
			return orb.Point{}, err
		}
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			return orb.Point{}, fmt.Errorf("transform %s -> %s produced non-finite point for %v", from.Code, to.Code, p)
		}
		return orb.Point{x, y}, nil
	}, nil
}

func exact(p orb.Projection) Transformer {
	return func(pt orb.Point) (orb.Point, error) {
		return p(pt), nil
	}
}

// ReprojectBBox transforms b into dst and returns the box enclosing the
// transformed edges. Each edge is densified so curved edges are bounded.
func ReprojectBBox(b BBox, dst string) (BBox, error) {
	t, err := NewTransformer(b.CRS, dst)
	if err != nil {
		return BBox{}, err
	}
	out, err := ReprojectBBoxWith(b, t)
	if err != nil {
		return BBox{}, fmt.Errorf("failed to reproject bbox: %w", err)
	}
	out.CRS, _ = Normalize(dst)
	return out, nil
}

// ReprojectGeometry transforms every vertex of g from src to dst. The input
// is not modified.
func ReprojectGeometry(g orb.Geometry, src, dst string) (orb.Geometry, error) {
	t, err := NewTransformer(src, dst)
	if err != nil {
		return nil, err
	}
	return Apply(g, t)
}

// Apply runs t over every vertex of g and returns a new geometry of the same shape.
func Apply(g orb.Geometry, t Transformer) (orb.Geometry, error) {
	switch g := g.(type) {
	case nil:
		return nil, nil
	case orb.Point:
		return t(g)
	case orb.MultiPoint:
		pts, err := applyPoints(g, t)
		return orb.MultiPoint(pts), err
	case orb.LineString:
		pts, err := applyPoints(g, t)
		return orb.LineString(pts), err
	case orb.Ring:
		pts, err := applyPoints(g, t)
		return orb.Ring(pts), err
	case orb.Polygon:
		return applyPolygon(g, t)
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(g))
		for i, p := range g {
			tp, err := applyPolygon(p, t)
			if err != nil {
				return nil, err
			}
			out[i] = tp
		}
		return out, nil
	case orb.Bound:
		b, err := ReprojectBBoxWith(FromBound(g, ""), t)
		if err != nil {
			return nil, err
		}
		return b.Bound(), nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %s", g.GeoJSONType())
	}
}

// ReprojectBBoxWith is ReprojectBBox for an already constructed transformer.
func ReprojectBBoxWith(b BBox, t Transformer) (BBox, error) {
	poly := orb.Polygon{densifiedRing(b)}
	g, err := applyPolygon(poly, t)
	if err != nil {
		return BBox{}, err
	}
	return FromBound(g.Bound(), b.CRS), nil
}

func densifiedRing(b BBox) orb.Ring {
	steps := DensifyPoints + 1
	ring := make(orb.Ring, 0, 4*steps+1)
	for i := 0; i < steps; i++ {
		f := float64(i) / float64(steps)
		ring = append(ring, orb.Point{b.MinX + f*(b.MaxX-b.MinX), b.MinY})
	}
	for i := 0; i < steps; i++ {
		f := float64(i) / float64(steps)
		ring = append(ring, orb.Point{b.MaxX, b.MinY + f*(b.MaxY-b.MinY)})
	}
	for i := 0; i < steps; i++ {
		f := float64(i) / float64(steps)
		ring = append(ring, orb.Point{b.MaxX - f*(b.MaxX-b.MinX), b.MaxY})
	}
	for i := 0; i < steps; i++ {
		f := float64(i) / float64(steps)
		ring = append(ring, orb.Point{b.MinX, b.MaxY - f*(b.MaxY-b.MinY)})
	}
	return append(ring, ring[0])
}

func applyPolygon(p orb.Polygon, t Transformer) (orb.Polygon, error) {
	out := make(orb.Polygon, len(p))
	for i, r := range p {
		pts, err := applyPoints(r, t)
		if err != nil {
			return nil, err
		}
		out[i] = orb.Ring(pts)
	}
	return out, nil
}

func applyPoints(pts []orb.Point, t Transformer) ([]orb.Point, error) {
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		tp, err := t(p)
		if err != nil {
			return nil, err
		}
		out[i] = tp
	}
	return out, nil
}
