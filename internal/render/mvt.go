package render

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/spatial"
)

// Vector tile layout.
const (
	LayerName = "grid_layer"
	Extent    = mvt.DefaultExtent
	version   = 2
)

// ErrEncodingFailure wraps unexpected conditions while serialising a tile.
var ErrEncodingFailure = errors.New("tile encoding failure")

// protobuf field numbers of the vector tile schema
const (
	tileLayers = 3

	layerName     = 1
	layerFeatures = 2
	layerKeys     = 3
	layerValues   = 4
	layerExtent   = 5
	layerVersion  = 15

	featureID       = 1
	featureTags     = 2
	featureType     = 3
	featureGeometry = 4

	valueString = 1
	valueDouble = 3

	geomPolygon = 3

	cmdMoveTo    = 1
	cmdLineTo    = 2
	cmdClosePath = 7
)

// EncodeVectorTile encodes WGS84 features into a single-layer vector tile
// for tile. The output depends only on the inputs. An empty feature list
// yields a tile holding one empty layer.
func EncodeVectorTile(tile maptile.Tile, features []spatial.Feature) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for i, f := range features {
		if f.Geometry == nil {
			continue
		}
		gf := geojson.NewFeature(orb.Clone(f.Geometry))
		gf.ID = uint64(i + 1)
		gf.Properties["mean"] = f.MeanIntensity
		gf.Properties["name"] = f.Name
		fc.Append(gf)
	}

	layer := mvt.NewLayer(LayerName, fc)
	layer.ProjectToTile(tile)
	layer.Clip(mvt.MapboxGLDefaultExtentBound)

	enc := newLayerEncoder()
	for _, f := range layer.Features {
		if err := enc.addFeature(f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncodingFailure, err)
		}
	}

	var out []byte
	out = protowire.AppendTag(out, tileLayers, protowire.BytesType)
	out = protowire.AppendBytes(out, enc.bytes())
	return out, nil
}

type valueKey struct {
	s      string
	f      uint64
	double bool
}

type layerEncoder struct {
	features [][]byte
	keys     []string
	keyIndex map[string]uint32
	values   []valueKey
	valIndex map[valueKey]uint32
}

func newLayerEncoder() *layerEncoder {
	return &layerEncoder{
		keyIndex: make(map[string]uint32),
		valIndex: make(map[valueKey]uint32),
	}
}

func (e *layerEncoder) addFeature(f *geojson.Feature) error {
	geometry := encodeGeometry(f.Geometry)
	if len(geometry) == 0 {
		return nil
	}

	names := make([]string, 0, len(f.Properties))
	for k := range f.Properties {
		names = append(names, k)
	}
	sort.Strings(names)

	tags := make([]uint32, 0, 2*len(names))
	for _, k := range names {
		var v valueKey
		switch val := f.Properties[k].(type) {
		case float64:
			v = valueKey{f: math.Float64bits(val), double: true}
		case string:
			v = valueKey{s: val}
		default:
			return fmt.Errorf("property %q has unsupported type %T", k, val)
		}
		tags = append(tags, e.key(k), e.value(v))
	}

	var b []byte
	if id, ok := f.ID.(uint64); ok {
		b = protowire.AppendTag(b, featureID, protowire.VarintType)
		b = protowire.AppendVarint(b, id)
	}
	b = protowire.AppendTag(b, featureTags, protowire.BytesType)
	b = protowire.AppendBytes(b, packed(tags))
	b = protowire.AppendTag(b, featureType, protowire.VarintType)
	b = protowire.AppendVarint(b, geomPolygon)
	b = protowire.AppendTag(b, featureGeometry, protowire.BytesType)
	b = protowire.AppendBytes(b, packed(geometry))
	e.features = append(e.features, b)
	return nil
}

func (e *layerEncoder) key(k string) uint32 {
	if i, ok := e.keyIndex[k]; ok {
		return i
	}
	i := uint32(len(e.keys))
	e.keys = append(e.keys, k)
	e.keyIndex[k] = i
	return i
}

func (e *layerEncoder) value(v valueKey) uint32 {
	if i, ok := e.valIndex[v]; ok {
		return i
	}
	i := uint32(len(e.values))
	e.values = append(e.values, v)
	e.valIndex[v] = i
	return i
}

func (e *layerEncoder) bytes() []byte {
	var b []byte
	b = protowire.AppendTag(b, layerVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, version)
	b = protowire.AppendTag(b, layerName, protowire.BytesType)
	b = protowire.AppendString(b, LayerName)
	for _, f := range e.features {
		b = protowire.AppendTag(b, layerFeatures, protowire.BytesType)
		b = protowire.AppendBytes(b, f)
	}
	for _, k := range e.keys {
		b = protowire.AppendTag(b, layerKeys, protowire.BytesType)
		b = protowire.AppendString(b, k)
	}
	for _, v := range e.values {
		var vb []byte
		if v.double {
			vb = protowire.AppendTag(vb, valueDouble, protowire.Fixed64Type)
			vb = protowire.AppendFixed64(vb, v.f)
		} else {
			vb = protowire.AppendTag(vb, valueString, protowire.BytesType)
			vb = protowire.AppendString(vb, v.s)
		}
		b = protowire.AppendTag(b, layerValues, protowire.BytesType)
		b = protowire.AppendBytes(b, vb)
	}
	b = protowire.AppendTag(b, layerExtent, protowire.VarintType)
	b = protowire.AppendVarint(b, Extent)
	return b
}

func packed(vs []uint32) []byte {
	var b []byte
	for _, v := range vs {
		b = protowire.AppendVarint(b, uint64(v))
	}
	return b
}

// encodeGeometry returns the command stream for a polygonal geometry in tile
// coordinates.
func encodeGeometry(g orb.Geometry) []uint32 {
	var polys []orb.Polygon
	switch g := g.(type) {
	case orb.Polygon:
		polys = []orb.Polygon{g}
	case orb.MultiPolygon:
		polys = g
	default:
		return nil
	}

	var (
		cmds   []uint32
		cx, cy int32
	)
	for _, p := range polys {
		for i, r := range p {
			pts := tileRing(r)
			if len(pts) < 3 {
				if i == 0 {
					break
				}
				continue
			}
			area := ringArea(pts)
			if area == 0 {
				if i == 0 {
					break
				}
				continue
			}
			// shells are positive, holes negative in y-down tile space
			if (i == 0) != (area > 0) {
				reverse(pts)
			}

			cmds = append(cmds, command(cmdMoveTo, 1))
			cmds = append(cmds, zigzag(pts[0][0]-cx), zigzag(pts[0][1]-cy))
			cx, cy = pts[0][0], pts[0][1]
			cmds = append(cmds, command(cmdLineTo, len(pts)-1))
			for _, pt := range pts[1:] {
				cmds = append(cmds, zigzag(pt[0]-cx), zigzag(pt[1]-cy))
				cx, cy = pt[0], pt[1]
			}
			cmds = append(cmds, command(cmdClosePath, 1))
		}
	}
	return cmds
}

// tileRing rounds r to integer tile coordinates, dropping repeated points and
// the closing point.
func tileRing(r orb.Ring) [][2]int32 {
	pts := make([][2]int32, 0, len(r))
	for _, p := range r {
		q := [2]int32{int32(math.Round(p[0])), int32(math.Round(p[1]))}
		if n := len(pts); n > 0 && pts[n-1] == q {
			continue
		}
		pts = append(pts, q)
	}
	for len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	return pts
}

// ringArea is twice the shoelace area.
func ringArea(pts [][2]int32) int64 {
	var sum int64
	for i := range pts {
		j := (i + 1) % len(pts)
		sum += int64(pts[i][0])*int64(pts[j][1]) - int64(pts[j][0])*int64(pts[i][1])
	}
	return sum
}

func reverse(pts [][2]int32) {
	for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
		pts[i], pts[j] = pts[j], pts[i]
	}
}

func command(id uint32, count int) uint32 {
	return (id & 0x7) | uint32(count)<<3
}

func zigzag(v int32) uint32 {
	return uint32(protowire.EncodeZigZag(int64(v)))
}
