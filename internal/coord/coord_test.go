package coord

import (
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/paulmach/orb"
)

func TestTileBoundsRootTile(t *testing.T) {
	b, err := TileBounds(0, 0, 0)
	if err != nil {
		t.Fatalf("TileBounds: %v", err)
	}
	if b.MinX != -180 || b.MaxX != 180 {
		t.Fatalf("lon range = [%v, %v], want [-180, 180]", b.MinX, b.MaxX)
	}
	const maxLat = 85.0511287798066
	if math.Abs(b.MaxY-maxLat) > 1e-9 || math.Abs(b.MinY+maxLat) > 1e-9 {
		t.Fatalf("lat range = [%v, %v], want +/-%v", b.MinY, b.MaxY, maxLat)
	}
	if b.CRS != WGS84 {
		t.Fatalf("crs = %q, want %q", b.CRS, WGS84)
	}
}

func TestTileBoundsAdjacentTilesShareEdges(t *testing.T) {
	z, x, y := 12, 2170, 1324
	b, err := TileBounds(z, x, y)
	if err != nil {
		t.Fatalf("TileBounds: %v", err)
	}
	right, err := TileBounds(z, x+1, y)
	if err != nil {
		t.Fatalf("TileBounds right: %v", err)
	}
	below, err := TileBounds(z, x, y+1)
	if err != nil {
		t.Fatalf("TileBounds below: %v", err)
	}
	if math.Abs(b.MaxX-right.MinX) > 1e-9 {
		t.Errorf("east edge %v != neighbour west edge %v", b.MaxX, right.MinX)
	}
	if math.Abs(b.MinY-below.MaxY) > 1e-9 {
		t.Errorf("south edge %v != neighbour north edge %v", b.MinY, below.MaxY)
	}
	if !(b.MinX < b.MaxX && b.MinY < b.MaxY) {
		t.Errorf("degenerate bounds %+v", b)
	}
}

func TestTileBoundsRejectsInvalidCoordinates(t *testing.T) {
	cases := []struct {
		name    string
		z, x, y int
	}{
		{"negative zoom", -1, 0, 0},
		{"zoom too deep", MaxZoom + 1, 0, 0},
		{"x past edge", 3, 8, 0},
		{"y past edge", 3, 0, 8},
		{"negative x", 5, -1, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := TileBounds(tc.z, tc.x, tc.y)
			if !errors.Is(err, ErrInvalidTileCoordinate) {
				t.Fatalf("err = %v, want ErrInvalidTileCoordinate", err)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"EPSG:25832":  "EPSG:25832",
		"epsg:25832":  "EPSG:25832",
		"25832":       "EPSG:25832",
		" EPSG:4326 ": "EPSG:4326",
		"wgs84":       "EPSG:4326",
		"CRS84":       "EPSG:4326",
	}
	for in, want := range cases {
		got, err := Normalize(in)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := Normalize("mercator"); !errors.Is(err, ErrUnsupportedCRS) {
		t.Errorf("Normalize(mercator) err = %v, want ErrUnsupportedCRS", err)
	}
}

func TestSupported(t *testing.T) {
	codes := Supported()
	if !sort.StringsAreSorted(codes) {
		t.Fatalf("codes not sorted: %v", codes)
	}
	found := map[string]bool{}
	for _, code := range codes {
		if _, err := Lookup(code); err != nil {
			t.Errorf("Lookup(%q): %v", code, err)
		}
		found[code] = true
	}
	for _, want := range []string{WGS84, "EPSG:25832"} {
		if !found[want] {
			t.Errorf("Supported() = %v, missing %s", codes, want)
		}
	}
}

func TestLookupUnknownCode(t *testing.T) {
	if _, err := Lookup("EPSG:9999"); !errors.Is(err, ErrUnsupportedCRS) {
		t.Fatalf("err = %v, want ErrUnsupportedCRS", err)
	}
	c, err := Lookup("4326")
	if err != nil {
		t.Fatalf("Lookup(4326): %v", err)
	}
	if !c.IsGeographic() {
		t.Errorf("EPSG:4326 should be geographic")
	}
}

func TestTransformerRoundTrip(t *testing.T) {
	pts := []orb.Point{
		{9.9937, 53.5511},
		{10.2, 53.4},
		{9.7, 53.7},
	}
	for _, dst := range []string{WebMercator, ETRS89UTM32N} {
		t.Run(dst, func(t *testing.T) {
			fwd, err := NewTransformer(WGS84, dst)
			if err != nil {
				t.Fatalf("NewTransformer fwd: %v", err)
			}
			inv, err := NewTransformer(dst, WGS84)
			if err != nil {
				t.Fatalf("NewTransformer inv: %v", err)
			}
			for _, p := range pts {
				q, err := fwd(p)
				if err != nil {
					t.Fatalf("forward %v: %v", p, err)
				}
				r, err := inv(q)
				if err != nil {
					t.Fatalf("inverse %v: %v", q, err)
				}
				if math.Abs(r[0]-p[0]) > 1e-6 || math.Abs(r[1]-p[1]) > 1e-6 {
					t.Errorf("round trip %v -> %v -> %v", p, q, r)
				}
			}
		})
	}
}

func TestTransformerUTMHamburg(t *testing.T) {
	fwd, err := NewTransformer(WGS84, ETRS89UTM32N)
	if err != nil {
		t.Fatalf("NewTransformer: %v", err)
	}
	p, err := fwd(orb.Point{10.0, 53.55})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if p[0] < 560000 || p[0] > 572000 {
		t.Errorf("easting = %v, want ~566000", p[0])
	}
	if p[1] < 5.92e6 || p[1] > 5.95e6 {
		t.Errorf("northing = %v, want ~5.934e6", p[1])
	}
}

func TestReprojectBBoxContainsCorners(t *testing.T) {
	b := BBox{MinX: 9.7, MinY: 53.4, MaxX: 10.3, MaxY: 53.7, CRS: WGS84}
	out, err := ReprojectBBox(b, "25832")
	if err != nil {
		t.Fatalf("ReprojectBBox: %v", err)
	}
	if out.CRS != ETRS89UTM32N {
		t.Fatalf("crs = %q", out.CRS)
	}
	fwd, _ := NewTransformer(WGS84, ETRS89UTM32N)
	for _, c := range []orb.Point{{b.MinX, b.MinY}, {b.MinX, b.MaxY}, {b.MaxX, b.MinY}, {b.MaxX, b.MaxY}} {
		p, _ := fwd(c)
		if p[0] < out.MinX || p[0] > out.MaxX || p[1] < out.MinY || p[1] > out.MaxY {
			t.Errorf("corner %v -> %v outside %+v", c, p, out)
		}
	}
}

func TestReprojectGeometryLeavesInputUntouched(t *testing.T) {
	poly := orb.Polygon{{{10, 53}, {10.1, 53}, {10.1, 53.1}, {10, 53.1}, {10, 53}}}
	g, err := ReprojectGeometry(poly, WGS84, WebMercator)
	if err != nil {
		t.Fatalf("ReprojectGeometry: %v", err)
	}
	if poly[0][1] != (orb.Point{10.1, 53}) {
		t.Fatalf("input mutated: %v", poly[0])
	}
	out, ok := g.(orb.Polygon)
	if !ok {
		t.Fatalf("got %T, want orb.Polygon", g)
	}
	if len(out[0]) != len(poly[0]) {
		t.Fatalf("ring length %d, want %d", len(out[0]), len(poly[0]))
	}
	if out[0][0][0] < 1.1e6 || out[0][0][0] > 1.12e6 {
		t.Errorf("x = %v, want ~1113194", out[0][0][0])
	}

	if _, err := ReprojectGeometry(poly, WGS84, "EPSG:1234"); !errors.Is(err, ErrUnsupportedCRS) {
		t.Errorf("err = %v, want ErrUnsupportedCRS", err)
	}
}

func TestBBoxEmptyAndIntersect(t *testing.T) {
	a := BBox{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	b := BBox{MinX: 5, MinY: 5, MaxX: 15, MaxY: 15}
	i := a.Intersect(b)
	if i.Empty() || i.MinX != 5 || i.MaxX != 10 {
		t.Fatalf("Intersect = %+v", i)
	}
	c := BBox{MinX: 20, MinY: 20, MaxX: 30, MaxY: 30}
	if !a.Intersect(c).Empty() {
		t.Fatalf("disjoint intersection should be empty")
	}
}
