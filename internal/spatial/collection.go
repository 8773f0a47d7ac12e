// Package spatial holds the lighting vector grid in memory and answers
// bounding-box and polygon selections against it.
package spatial

import (
	"math"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/paulmach/orb"
)

// DefaultName is the label given to cells without one.
const DefaultName = "lamp"

// Feature is one cell of the vector grid. Identity is its position in the
// owning Collection.
type Feature struct {
	Geometry      orb.Geometry
	MeanIntensity float64
	Name          string
}

// Collection is an immutable, indexed set of features in a single CRS.
type Collection struct {
	crs      string
	features []Feature
	tree     *rtree.Rtree
	bound    orb.Bound
	minMean  float64
	maxMean  float64
}

// indexed ties an R-tree entry back to its feature.
type indexed struct {
	geom.Polygonal
	pos int
}

// NewCollection builds a collection and its R-tree. features is retained and
// must not be modified afterwards.
func NewCollection(crs string, features []Feature) *Collection {
	c := &Collection{
		crs:      crs,
		features: features,
		tree:     rtree.NewTree(25, 50),
	}
	first := true
	for i, f := range features {
		if f.Geometry == nil {
			continue
		}
		b := f.Geometry.Bound()
		c.tree.Insert(&indexed{Polygonal: toBounds(b), pos: i})
		if first {
			c.bound = b
			c.minMean, c.maxMean = f.MeanIntensity, f.MeanIntensity
			first = false
			continue
		}
		c.bound = c.bound.Union(b)
		c.minMean = math.Min(c.minMean, f.MeanIntensity)
		c.maxMean = math.Max(c.maxMean, f.MeanIntensity)
	}
	return c
}

// CRS returns the collection's CRS tag.
func (c *Collection) CRS() string { return c.crs }

// Len returns the number of features.
func (c *Collection) Len() int { return len(c.features) }

// Features returns the features in load order. The slice is shared.
func (c *Collection) Features() []Feature { return c.features }

// Bound returns the extent of all features.
func (c *Collection) Bound() orb.Bound { return c.bound }

// IntensityRange returns the smallest and largest mean intensity.
func (c *Collection) IntensityRange() (lo, hi float64) { return c.minMean, c.maxMean }

// candidates returns positions of features whose bounds touch b, ascending.
func (c *Collection) candidates(b orb.Bound) []int {
	// pad so features sharing only an edge with b are returned
	eps := 1e-9 * math.Max(1, math.Max(math.Abs(b.Max[0]), math.Abs(b.Max[1])))
	q := toBounds(b.Pad(eps))
	hits := c.tree.SearchIntersect(q)
	pos := make([]int, 0, len(hits))
	for _, h := range hits {
		pos = append(pos, h.(*indexed).pos)
	}
	sort.Ints(pos)
	return pos
}

// SelectIntersecting returns every feature sharing at least one point with
// boundary, in collection order.
func (c *Collection) SelectIntersecting(boundary orb.Geometry) []Feature {
	if boundary == nil || len(c.features) == 0 {
		return nil
	}
	var out []Feature
	for _, i := range c.candidates(boundary.Bound()) {
		f := c.features[i]
		if Intersects(f.Geometry, boundary) {
			out = append(out, f)
		}
	}
	return out
}

func toBounds(b orb.Bound) *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: b.Min[0], Y: b.Min[1]},
		Max: geom.Point{X: b.Max[0], Y: b.Max[1]},
	}
}
