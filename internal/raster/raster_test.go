package raster

import (
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/coord"
)

// testGrid returns a 10x10 grid in EPSG:25832 with 10 m pixels whose value
// is row*10 + col, origin at (500000, 5900100).
func testGrid(t *testing.T, nodata *float64) *Grid {
	t.Helper()
	data := make([]float32, 100)
	for i := range data {
		data[i] = float32(i)
	}
	g, err := NewGrid(10, 10, data, Affine{A: 10, C: 500000, E: -10, F: 5900100}, "EPSG:25832", nodata)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	return g
}

func TestNewGridBoundsAndRange(t *testing.T) {
	g := testGrid(t, nil)
	b := g.Bounds()
	if b.MinX != 500000 || b.MaxX != 500100 || b.MinY != 5900000 || b.MaxY != 5900100 {
		t.Fatalf("Bounds = %+v", b)
	}
	if g.Min != 0 || g.Max != 99 || g.Valid != 100 {
		t.Fatalf("range = [%v, %v] valid=%d", g.Min, g.Max, g.Valid)
	}
	col, row := g.PixelOf(500015, 5900085)
	if math.Abs(col-1.5) > 1e-9 || math.Abs(row-1.5) > 1e-9 {
		t.Fatalf("PixelOf = %v, %v", col, row)
	}
}

func TestNewGridRangeSkipsNoDataAndNaN(t *testing.T) {
	nd := -9999.0
	data := []float32{-9999, 3, float32(math.NaN()), 7, 5, float32(math.Inf(1))}
	g, err := NewGrid(3, 2, data, Affine{A: 1, E: -1, F: 2}, "EPSG:4326", &nd)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	if g.Min != 3 || g.Max != 7 || g.Valid != 3 {
		t.Fatalf("range = [%v, %v] valid=%d", g.Min, g.Max, g.Valid)
	}
	if _, ok := g.At(0, 0); ok {
		t.Fatalf("no-data sample reported valid")
	}
}

func TestNewGridRejectsBadInput(t *testing.T) {
	if _, err := NewGrid(0, 2, nil, Affine{A: 1, E: -1}, "EPSG:4326", nil); err == nil {
		t.Errorf("expected error for zero width")
	}
	if _, err := NewGrid(2, 2, make([]float32, 3), Affine{A: 1, E: -1}, "EPSG:4326", nil); err == nil {
		t.Errorf("expected error for short data")
	}
	if _, err := NewGrid(2, 2, make([]float32, 4), Affine{}, "EPSG:4326", nil); err == nil {
		t.Errorf("expected error for singular transform")
	}
	if _, err := NewGrid(2, 2, make([]float32, 4), Affine{A: 1, E: -1}, "bogus", nil); err == nil {
		t.Errorf("expected error for bad crs")
	}
}

func TestSampleWindowOutsideIsZero(t *testing.T) {
	g := testGrid(t, nil)
	out := SampleWindow(g, coord.BBox{MinX: 0, MinY: 0, MaxX: 100, MaxY: 100, CRS: g.CRS}, 256, 128)
	if len(out) != 128 || len(out[0]) != 256 {
		t.Fatalf("shape = %dx%d, want 128x256", len(out), len(out[0]))
	}
	for _, row := range out {
		for _, v := range row {
			if v != 0 {
				t.Fatalf("expected all zeros, found %v", v)
			}
		}
	}
}

func TestSampleWindowFullExtent(t *testing.T) {
	g := testGrid(t, nil)
	out := SampleWindow(g, g.Bounds(), 10, 10)
	for r := 0; r < 10; r++ {
		for c := 0; c < 10; c++ {
			if out[r][c] != float64(r*10+c) {
				t.Fatalf("out[%d][%d] = %v, want %v", r, c, out[r][c], r*10+c)
			}
		}
	}

	// upsampling a 2x2 pixel corner to 4x4 repeats each pixel twice
	corner := coord.BBox{MinX: 500000, MinY: 5900080, MaxX: 500020, MaxY: 5900100, CRS: g.CRS}
	up := SampleWindow(g, corner, 4, 4)
	want := [][]float64{{0, 0, 1, 1}, {0, 0, 1, 1}, {10, 10, 11, 11}, {10, 10, 11, 11}}
	for r := range want {
		for c := range want[r] {
			if up[r][c] != want[r][c] {
				t.Fatalf("upsampled = %v, want %v", up, want)
			}
		}
	}
}

func TestSampleWindowNoDataReadsZero(t *testing.T) {
	nd := 11.0
	g := testGrid(t, &nd)
	corner := coord.BBox{MinX: 500000, MinY: 5900080, MaxX: 500020, MaxY: 5900100, CRS: g.CRS}
	out := SampleWindow(g, corner, 2, 2)
	if out[1][1] != 0 || out[1][0] != 10 {
		t.Fatalf("out = %v", out)
	}
}

func TestNormalizeTo8Bit(t *testing.T) {
	flat := [][]float64{{5, 5}, {5, 5}}
	for _, row := range NormalizeTo8Bit(flat) {
		for _, v := range row {
			if v != 0 {
				t.Fatalf("constant input should normalise to zeros, got %v", v)
			}
		}
	}

	got := NormalizeTo8Bit([][]float64{{0, 50}, {100, 25}})
	want := [][]uint8{{0, 127}, {255, 63}}
	for i := range want {
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				t.Fatalf("NormalizeTo8Bit = %v, want %v", got, want)
			}
		}
	}
}

func TestMaskByPolygon(t *testing.T) {
	g := testGrid(t, nil)

	// covers pixel centres of columns 1-2 in rows 0-1
	poly := orb.Polygon{{
		{500010, 5900080}, {500030, 5900080}, {500030, 5900100}, {500010, 5900100}, {500010, 5900080},
	}}
	got := MaskByPolygon(g, poly)
	want := []float64{1, 2, 11, 12}
	if len(got) != len(want) {
		t.Fatalf("MaskByPolygon = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("MaskByPolygon = %v, want %v", got, want)
		}
	}

	outside := orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}}
	if vals := MaskByPolygon(g, outside); len(vals) != 0 {
		t.Fatalf("outside polygon returned %v", vals)
	}

	// too small to contain any pixel centre
	tiny := orb.Polygon{{{500001, 5900091}, {500002, 5900091}, {500002, 5900092}, {500001, 5900092}, {500001, 5900091}}}
	if vals := MaskByPolygon(g, tiny); len(vals) != 0 {
		t.Fatalf("tiny polygon returned %v", vals)
	}
}

func TestMaskByPolygonSkipsNoData(t *testing.T) {
	nd := 12.0
	g := testGrid(t, &nd)
	mp := orb.MultiPolygon{{{
		{500010, 5900080}, {500030, 5900080}, {500030, 5900100}, {500010, 5900100}, {500010, 5900080},
	}}}
	got := MaskByPolygon(g, mp)
	if len(got) != 3 {
		t.Fatalf("MaskByPolygon = %v, want 3 values", got)
	}
}

func TestMetadata(t *testing.T) {
	g := testGrid(t, nil)
	m := g.Metadata()
	if m.Width != 10 || m.Height != 10 || m.CRS != "EPSG:25832" || m.Max != 99 {
		t.Fatalf("Metadata = %+v", m)
	}
	if m.Transform != [6]float64{10, 0, 500000, 0, -10, 5900100} {
		t.Fatalf("Transform = %v", m.Transform)
	}
}
