package dataset

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/paulmach/orb"

	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/coord"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/data/gpkg"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/raster"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/spatial"
)

type stubLoader struct {
	mu       sync.Mutex
	calls    int
	fail     error
	crs      string
	features []spatial.Feature
}

func (l *stubLoader) LoadVector(ctx context.Context) (*VectorSource, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.fail != nil {
		return nil, l.fail
	}
	return &VectorSource{CRS: l.crs, Features: l.features}, nil
}

func (l *stubLoader) LoadRaster(ctx context.Context) (*raster.Grid, error) {
	return raster.NewGrid(2, 2, []float32{1, 2, 3, 4}, raster.Affine{A: 0.5, C: 9, E: -0.5, F: 54}, coord.WGS84, nil)
}

func (l *stubLoader) setFail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fail = err
}

// utmCell is a 100 m square in EPSG:25832 near Hamburg.
func utmCell(e, n float64) orb.Polygon {
	return orb.Polygon{{{e, n}, {e + 100, n}, {e + 100, n + 100}, {e, n + 100}, {e, n}}}
}

func newStubLoader() *stubLoader {
	return &stubLoader{
		crs: "epsg:25832",
		features: []spatial.Feature{
			{Geometry: utmCell(565800, 5933600), MeanIntensity: 1, Name: "lamp"},
			{Geometry: utmCell(565900, 5933600), MeanIntensity: 2, Name: "lamp"},
		},
	}
}

func TestSnapshotBeforeLoad(t *testing.T) {
	s := NewStore(newStubLoader())
	if _, err := s.Snapshot(); !errors.Is(err, ErrDatasetUnavailable) {
		t.Fatalf("err = %v, want ErrDatasetUnavailable", err)
	}
	if _, err := s.Collection("native"); !errors.Is(err, ErrDatasetUnavailable) {
		t.Fatalf("err = %v, want ErrDatasetUnavailable", err)
	}
}

func TestLoadIsIdempotent(t *testing.T) {
	loader := newStubLoader()
	s := NewStore(loader)
	ctx := context.Background()

	first, err := s.Load(ctx, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	second, err := s.Load(ctx, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if first != second || loader.calls != 1 {
		t.Fatalf("second load should be a no-op (calls=%d)", loader.calls)
	}
	if first.Version == "" || first.Native.CRS() != "EPSG:25832" {
		t.Fatalf("snapshot = %+v", first)
	}
}

func TestReloadSwapsAndKeepsOldOnFailure(t *testing.T) {
	loader := newStubLoader()
	s := NewStore(loader)
	ctx := context.Background()

	old, err := s.Load(ctx, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	cur, _ := s.Snapshot()
	if cur == old || cur.Version == old.Version {
		t.Fatalf("reload did not swap the snapshot")
	}

	loader.setFail(errors.New("disk gone"))
	err = s.Reload(ctx)
	if !errors.Is(err, ErrDatasetUnavailable) {
		t.Fatalf("err = %v, want ErrDatasetUnavailable", err)
	}
	after, err := s.Snapshot()
	if err != nil || after != cur {
		t.Fatalf("failed reload replaced the snapshot")
	}
}

func TestFailedFirstLoad(t *testing.T) {
	loader := newStubLoader()
	loader.fail = errors.New("missing")
	s := NewStore(loader)
	if _, err := s.Load(context.Background(), false); !errors.Is(err, ErrDatasetUnavailable) {
		t.Fatalf("err = %v, want ErrDatasetUnavailable", err)
	}
	if _, err := s.Snapshot(); !errors.Is(err, ErrDatasetUnavailable) {
		t.Fatalf("err = %v, want ErrDatasetUnavailable", err)
	}
}

func TestCollectionByCRS(t *testing.T) {
	s := NewStore(newStubLoader())
	if _, err := s.Load(context.Background(), false); err != nil {
		t.Fatalf("Load: %v", err)
	}

	for _, tag := range []string{"native", "EPSG:25832", "25832"} {
		c, err := s.Collection(tag)
		if err != nil || c.CRS() != "EPSG:25832" {
			t.Fatalf("Collection(%q) = %v, %v", tag, c, err)
		}
	}

	wgs, err := s.Collection("EPSG:4326")
	if err != nil {
		t.Fatalf("Collection(EPSG:4326): %v", err)
	}
	if wgs.Len() != 2 || wgs.CRS() != coord.WGS84 {
		t.Fatalf("wgs84 collection = %d features in %s", wgs.Len(), wgs.CRS())
	}
	b := wgs.Bound()
	if b.Min[0] < 9.9 || b.Max[0] > 10.1 || b.Min[1] < 53.5 || b.Max[1] > 53.6 {
		t.Fatalf("wgs84 bound = %v, want near Hamburg", b)
	}
	if w, _ := s.Collection("wgs84"); w != wgs {
		t.Fatalf("wgs84 alias returned a different collection")
	}

	for _, tag := range []string{"EPSG:3857", "bogus"} {
		if _, err := s.Collection(tag); !errors.Is(err, coord.ErrUnsupportedCRS) {
			t.Fatalf("Collection(%q) err = %v, want ErrUnsupportedCRS", tag, err)
		}
	}
}

func TestReadersSeeWholeSnapshots(t *testing.T) {
	s := NewStore(newStubLoader())
	ctx := context.Background()
	if _, err := s.Load(ctx, false); err != nil {
		t.Fatalf("Load: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				snap, err := s.Snapshot()
				if err != nil {
					errs <- err
					return
				}
				if snap.Native.Len() != snap.WGS84.Len() || snap.Raster == nil {
					errs <- errors.New("partial snapshot")
					return
				}
			}
		}()
	}
	for i := 0; i < 5; i++ {
		if err := s.Reload(ctx); err != nil {
			t.Fatalf("Reload: %v", err)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()

	// vector grid
	vecPath := filepath.Join(dir, "grid.gpkg")
	db, err := sql.Open("sqlite", vecPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	stmts := []string{
		`CREATE TABLE gpkg_spatial_ref_sys (srs_name TEXT, srs_id INTEGER PRIMARY KEY, organization TEXT, organization_coordsys_id INTEGER, definition TEXT)`,
		`INSERT INTO gpkg_spatial_ref_sys VALUES ('WGS 84', 4326, 'EPSG', 4326, 'undefined')`,
		`CREATE TABLE gpkg_contents (table_name TEXT PRIMARY KEY, data_type TEXT, srs_id INTEGER)`,
		`INSERT INTO gpkg_contents VALUES ('grid', 'features', 4326)`,
		`CREATE TABLE gpkg_geometry_columns (table_name TEXT, column_name TEXT, geometry_type_name TEXT, srs_id INTEGER, z INTEGER, m INTEGER)`,
		`INSERT INTO gpkg_geometry_columns VALUES ('grid', 'geom', 'POLYGON', 4326, 0, 0)`,
		`CREATE TABLE grid (fid INTEGER PRIMARY KEY, geom BLOB, mean_intensity REAL)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
	cell := orb.Polygon{{{10, 53.5}, {10.01, 53.5}, {10.01, 53.51}, {10, 53.51}, {10, 53.5}}}
	blob, err := gpkg.EncodeGeometry(4326, cell)
	if err != nil {
		t.Fatalf("EncodeGeometry: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO grid (geom, mean_intensity) VALUES (?, ?)`, blob, 7.0); err != nil {
		t.Fatalf("insert: %v", err)
	}
	db.Close()

	// raster: 1x2 uncompressed float32 array
	rasterPath := filepath.Join(dir, "raster.zarr")
	if err := os.MkdirAll(filepath.Join(rasterPath, "c", "0"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	meta, _ := json.Marshal(map[string]interface{}{
		"zarr_format": 3,
		"node_type":   "array",
		"shape":       []int{1, 2},
		"data_type":   "float32",
		"chunk_grid":  map[string]interface{}{"name": "regular", "configuration": map[string]interface{}{"chunk_shape": []int{1, 2}}},
		"fill_value":  0,
		"codecs":      []map[string]interface{}{{"name": "bytes", "configuration": map[string]interface{}{"endian": "little"}}},
		"attributes":  map[string]interface{}{"crs": "EPSG:4326", "transform": []float64{0.1, 0, 10, 0, -0.1, 53.6}},
	})
	if err := os.WriteFile(filepath.Join(rasterPath, "zarr.json"), meta, 0o644); err != nil {
		t.Fatalf("write meta: %v", err)
	}
	chunk := make([]byte, 8)
	binary.LittleEndian.PutUint32(chunk[0:], math.Float32bits(2.5))
	binary.LittleEndian.PutUint32(chunk[4:], math.Float32bits(4.5))
	if err := os.WriteFile(filepath.Join(rasterPath, "c", "0", "0"), chunk, 0o644); err != nil {
		t.Fatalf("write chunk: %v", err)
	}

	s := NewStore(&FileLoader{VectorPath: vecPath, RasterPath: rasterPath})
	snap, err := s.Load(context.Background(), false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.Native != snap.WGS84 {
		t.Fatalf("a WGS84 source should share its collection")
	}
	features := snap.Native.Features()
	if len(features) != 1 || features[0].MeanIntensity != 7 || features[0].Name != "lamp" {
		t.Fatalf("features = %+v", features)
	}
	if snap.Raster.Min != 2.5 || snap.Raster.Max != 4.5 {
		t.Fatalf("raster range = [%v, %v]", snap.Raster.Min, snap.Raster.Max)
	}

	bad := NewStore(&FileLoader{VectorPath: filepath.Join(dir, "missing.gpkg"), RasterPath: rasterPath})
	if _, err := bad.Load(context.Background(), false); !errors.Is(err, ErrDatasetUnavailable) {
		t.Fatalf("err = %v, want ErrDatasetUnavailable", err)
	}
}
