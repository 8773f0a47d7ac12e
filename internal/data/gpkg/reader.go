// Package gpkg reads polygon feature tables from GeoPackage files.
package gpkg

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	_ "modernc.org/sqlite"

	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/spatial"
)

var (
	// ErrNoFeatureTable is returned when the file holds no usable features table.
	ErrNoFeatureTable = errors.New("no features table")
	// ErrInvalidBlob is returned for malformed GeoPackage geometry blobs.
	ErrInvalidBlob = errors.New("invalid geopackage geometry blob")
)

// Attribute columns read alongside the geometry.
const (
	IntensityColumn = "mean_intensity"
	NameColumn      = "name"
)

// Layer describes one features table.
type Layer struct {
	Table          string
	GeometryColumn string
	SRSID          int
	CRS            string
}

// Reader reads a GeoPackage file.
type Reader struct {
	db   *sql.DB
	path string
}

// Open opens the GeoPackage at path for reading.
func Open(path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to stat geopackage: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	return &Reader{db: db, path: path}, nil
}

// Close closes the database connection.
func (r *Reader) Close() error {
	return r.db.Close()
}

// Layer resolves table, or the first features table when table is empty.
func (r *Reader) Layer(ctx context.Context, table string) (*Layer, error) {
	if table == "" {
		err := r.db.QueryRowContext(ctx,
			`SELECT table_name FROM gpkg_contents WHERE data_type = 'features' ORDER BY rowid LIMIT 1`,
		).Scan(&table)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoFeatureTable
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query gpkg_contents: %w", err)
		}
	}

	l := &Layer{Table: table}
	err := r.db.QueryRowContext(ctx,
		`SELECT column_name, srs_id FROM gpkg_geometry_columns WHERE table_name = ?`, table,
	).Scan(&l.GeometryColumn, &l.SRSID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q has no geometry column", ErrNoFeatureTable, table)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query gpkg_geometry_columns: %w", err)
	}

	var (
		org  sql.NullString
		code sql.NullInt64
	)
	err = r.db.QueryRowContext(ctx,
		`SELECT organization, organization_coordsys_id FROM gpkg_spatial_ref_sys WHERE srs_id = ?`, l.SRSID,
	).Scan(&org, &code)
	switch {
	case err == nil && strings.EqualFold(org.String, "epsg") && code.Valid:
		l.CRS = fmt.Sprintf("EPSG:%d", code.Int64)
	case err == nil || errors.Is(err, sql.ErrNoRows):
		l.CRS = fmt.Sprintf("EPSG:%d", l.SRSID)
	default:
		return nil, fmt.Errorf("failed to query gpkg_spatial_ref_sys: %w", err)
	}
	return l, nil
}

// ReadFeatures reads every polygonal row of table in rowid order. A missing or
// NULL mean_intensity reads as 0 and a missing or NULL name as the default
// feature name. Rows with other geometry types are skipped.
func (r *Reader) ReadFeatures(ctx context.Context, table string) (*Layer, []spatial.Feature, error) {
	l, err := r.Layer(ctx, table)
	if err != nil {
		return nil, nil, err
	}

	cols, err := r.columns(ctx, l.Table)
	if err != nil {
		return nil, nil, err
	}
	selectCol := func(name, fallback string) string {
		if cols[strings.ToLower(name)] {
			return quoteIdent(name)
		}
		return fallback
	}
	query := fmt.Sprintf(`SELECT %s, %s, %s FROM %s ORDER BY rowid`,
		quoteIdent(l.GeometryColumn),
		selectCol(IntensityColumn, "NULL"),
		selectCol(NameColumn, "NULL"),
		quoteIdent(l.Table))

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query %s: %w", l.Table, err)
	}
	defer rows.Close()

	var features []spatial.Feature
	for n := 0; rows.Next(); n++ {
		var (
			blob      []byte
			intensity sql.NullFloat64
			name      sql.NullString
		)
		if err := rows.Scan(&blob, &intensity, &name); err != nil {
			return nil, nil, fmt.Errorf("failed to scan row %d: %w", n, err)
		}
		// NULL geometries are allowed and never match a selection
		if len(blob) == 0 {
			continue
		}
		g, err := DecodeGeometry(blob)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", n, err)
		}
		switch g.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			continue
		}

		f := spatial.Feature{Geometry: g, Name: spatial.DefaultName}
		if intensity.Valid {
			f.MeanIntensity = intensity.Float64
		}
		if name.Valid {
			f.Name = name.String
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", l.Table, err)
	}
	return l, features, nil
}

func (r *Reader) columns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   sql.NullString
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[strings.ToLower(name)] = true
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: table %q not found", ErrNoFeatureTable, table)
	}
	return cols, rows.Err()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// envelope sizes in bytes by header indicator
var envelopeSizes = [...]int{0, 32, 48, 48, 64}

// DecodeGeometry decodes a GeoPackage geometry blob: the "GP" header,
// optional envelope and a WKB body. Empty geometries decode to nil.
func DecodeGeometry(blob []byte) (orb.Geometry, error) {
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidBlob)
	}
	flags := blob[3]
	if flags&0x20 != 0 {
		return nil, fmt.Errorf("%w: extended geometry types are not supported", ErrInvalidBlob)
	}
	indicator := int(flags>>1) & 0x07
	if indicator >= len(envelopeSizes) {
		return nil, fmt.Errorf("%w: envelope indicator %d", ErrInvalidBlob, indicator)
	}
	if flags&0x10 != 0 {
		return nil, nil
	}

	// bytes 4..8 hold srs_id, which gpkg_geometry_columns already gives
	start := 8 + envelopeSizes[indicator]
	if len(blob) <= start {
		return nil, fmt.Errorf("%w: truncated", ErrInvalidBlob)
	}
	g, err := wkb.Unmarshal(blob[start:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBlob, err)
	}
	return g, nil
}

// EncodeGeometry builds a little-endian GeoPackage blob without an envelope.
func EncodeGeometry(srsID int32, g orb.Geometry) ([]byte, error) {
	body, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	blob := make([]byte, 8, 8+len(body))
	blob[0], blob[1] = 'G', 'P'
	blob[3] = 0x01
	binary.LittleEndian.PutUint32(blob[4:], uint32(srsID))
	return append(blob, body...), nil
}
