package spatial

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Intersects reports whether a and b share at least one point. Touching
// boundaries count. Supported geometries are Bound, Ring, Polygon and
// MultiPolygon; anything else never intersects.
func Intersects(a, b orb.Geometry) bool {
	pa, pb := polygons(a), polygons(b)
	if len(pa) == 0 || len(pb) == 0 {
		return false
	}
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}
	for _, p := range pa {
		for _, q := range pb {
			if polygonsIntersect(p, q) {
				return true
			}
		}
	}
	return false
}

func polygons(g orb.Geometry) []orb.Polygon {
	switch g := g.(type) {
	case orb.Bound:
		return []orb.Polygon{g.ToPolygon()}
	case orb.Ring:
		return []orb.Polygon{{g}}
	case orb.Polygon:
		if len(g) == 0 {
			return nil
		}
		return []orb.Polygon{g}
	case orb.MultiPolygon:
		out := make([]orb.Polygon, 0, len(g))
		for _, p := range g {
			if len(p) > 0 {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}

func polygonsIntersect(p, q orb.Polygon) bool {
	if !p.Bound().Intersects(q.Bound()) {
		return false
	}
	for _, pt := range q[0] {
		if planar.PolygonContains(p, pt) {
			return true
		}
	}
	for _, pt := range p[0] {
		if planar.PolygonContains(q, pt) {
			return true
		}
	}
	for _, rp := range p {
		for _, rq := range q {
			if ringsCross(rp, rq) {
				return true
			}
		}
	}
	return false
}

func ringsCross(r, s orb.Ring) bool {
	for i := 1; i < len(r); i++ {
		a1, a2 := r[i-1], r[i]
		for j := 1; j < len(s); j++ {
			if segmentsIntersect(a1, a2, s[j-1], s[j]) {
				return true
			}
		}
	}
	return false
}

// segmentsIntersect includes collinear overlap and shared endpoints.
func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := orient(q1, q2, p1)
	d2 := orient(q1, q2, p2)
	d3 := orient(p1, p2, q1)
	d4 := orient(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	switch {
	case d1 == 0 && onSegment(q1, q2, p1):
		return true
	case d2 == 0 && onSegment(q1, q2, p2):
		return true
	case d3 == 0 && onSegment(p1, p2, q1):
		return true
	case d4 == 0 && onSegment(p1, p2, q2):
		return true
	}
	return false
}

func orient(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return min(a[0], b[0]) <= p[0] && p[0] <= max(a[0], b[0]) &&
		min(a[1], b[1]) <= p[1] && p[1] <= max(a[1], b[1])
}
