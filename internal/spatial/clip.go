package spatial

import (
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/ctessum/geom"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ClipToPolygon returns the features intersecting polygon with each geometry
// replaced by its intersection with polygon. Features that only touch
// polygon keep an empty MultiPolygon so their attributes still count. When
// clipping a single feature fails, that feature is returned unclipped.
func (c *Collection) ClipToPolygon(polygon orb.Geometry) []Feature {
	selected := c.SelectIntersecting(polygon)
	if len(selected) == 0 {
		return selected
	}
	clipper := toGeomPolygon(polygon)

	out := make([]Feature, len(selected))
	for i, f := range selected {
		clipped, err := clipGeometry(f.Geometry, clipper)
		if err != nil {
			log.Printf("[Spatial] clip failed, keeping unclipped cell %q: %v", f.Name, err)
			out[i] = f
			continue
		}
		f.Geometry = clipped
		out[i] = f
	}
	return out
}

func clipGeometry(g orb.Geometry, clipper geom.Polygon) (result orb.Geometry, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("polygon clip panicked: %v", r)
		}
	}()
	subject := toGeomPolygon(g)
	if len(subject) == 0 {
		return nil, fmt.Errorf("unsupported geometry %T", g)
	}
	var isect geom.Polygonal = subject.Intersection(clipper)
	if isect == nil {
		return orb.MultiPolygon{}, nil
	}
	var rings []orb.Ring
	for _, p := range isect.Polygons() {
		for _, path := range p {
			if r := toRing(path); r != nil {
				rings = append(rings, r)
			}
		}
	}
	return assemble(rings), nil
}

// toGeomPolygon flattens every ring of g into one even-odd polygon without
// closing points.
func toGeomPolygon(g orb.Geometry) geom.Polygon {
	var out geom.Polygon
	for _, p := range polygons(g) {
		for _, r := range p {
			n := len(r)
			if n > 1 && r[0] == r[n-1] {
				n--
			}
			if distinctPoints(r[:n]) < 3 {
				continue
			}
			path := make(geom.Path, n)
			for i := 0; i < n; i++ {
				path[i] = geom.Point{X: r[i][0], Y: r[i][1]}
			}
			out = append(out, path)
		}
	}
	return out
}

// distinctPoints counts distinct points in r, stopping at three.
func distinctPoints(r orb.Ring) int {
	var seen []orb.Point
	for _, p := range r {
		dup := false
		for _, q := range seen {
			if p == q {
				dup = true
				break
			}
		}
		if !dup {
			if seen = append(seen, p); len(seen) == 3 {
				break
			}
		}
	}
	return len(seen)
}

func toRing(path geom.Path) orb.Ring {
	if len(path) < 3 {
		return nil
	}
	r := make(orb.Ring, 0, len(path)+1)
	for _, p := range path {
		r = append(r, orb.Point{p.X, p.Y})
	}
	if r[0] != r[len(r)-1] {
		r = append(r, r[0])
	}
	if planar.Area(r) == 0 {
		return nil
	}
	return r
}

// assemble groups loose rings into polygons by containment depth: even depth
// rings are shells, odd depth rings are holes of their innermost shell.
func assemble(rings []orb.Ring) orb.MultiPolygon {
	if len(rings) == 0 {
		return orb.MultiPolygon{}
	}
	area := make([]float64, len(rings))
	for i, r := range rings {
		area[i] = math.Abs(planar.Area(r))
	}
	order := make([]int, len(rings))
	for i := range order {
		order[i] = i
	}
	// largest first so parents precede children
	sort.SliceStable(order, func(a, b int) bool { return area[order[a]] > area[order[b]] })

	parent := make([]int, len(rings))
	depth := make([]int, len(rings))
	for oi, i := range order {
		parent[i] = -1
		probe := interiorProbe(rings[i])
		for oj := oi - 1; oj >= 0; oj-- {
			j := order[oj]
			if planar.RingContains(rings[j], probe) {
				parent[i] = j
				depth[i] = depth[j] + 1
				break
			}
		}
	}

	shellIndex := make(map[int]int)
	var mp orb.MultiPolygon
	for _, i := range order {
		if depth[i]%2 == 0 {
			shellIndex[i] = len(mp)
			mp = append(mp, orb.Polygon{rings[i]})
		}
	}
	for _, i := range order {
		if depth[i]%2 == 1 {
			k := shellIndex[parent[i]]
			mp[k] = append(mp[k], rings[i])
		}
	}
	return mp
}

// interiorProbe returns a point just inside r near its first edge.
func interiorProbe(r orb.Ring) orb.Point {
	a, b := r[0], r[1]
	mid := orb.Point{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
	dx, dy := b[0]-a[0], b[1]-a[1]
	l := math.Hypot(dx, dy)
	if l == 0 {
		return mid
	}
	// left normal points inward for counter-clockwise rings
	nx, ny := -dy/l, dx/l
	if r.Orientation() == orb.CW {
		nx, ny = -nx, -ny
	}
	eps := l * 1e-6
	return orb.Point{mid[0] + nx*eps, mid[1] + ny*eps}
}
