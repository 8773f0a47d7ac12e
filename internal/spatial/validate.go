package spatial

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrInvalidGeometry is returned for malformed or non-polygonal input.
var ErrInvalidGeometry = errors.New("invalid geometry")

// ParsePolygonGeoJSON decodes a GeoJSON Polygon, MultiPolygon, Feature or
// FeatureCollection (first feature) and validates the resulting geometry.
func ParsePolygonGeoJSON(data []byte) (orb.Geometry, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}

	var g orb.Geometry
	switch probe.Type {
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
		}
		g = f.Geometry
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
		}
		if len(fc.Features) == 0 {
			return nil, fmt.Errorf("%w: FeatureCollection is empty", ErrInvalidGeometry)
		}
		g = fc.Features[0].Geometry
	case "Polygon", "MultiPolygon":
		gj, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
		}
		g = gj.Geometry()
	default:
		return nil, fmt.Errorf("%w: unsupported GeoJSON type %q", ErrInvalidGeometry, probe.Type)
	}

	if err := ValidatePolygon(g); err != nil {
		return nil, err
	}
	return g, nil
}

// ValidatePolygon checks that g is a non-empty Polygon or MultiPolygon with
// closed rings of at least four finite points.
func ValidatePolygon(g orb.Geometry) error {
	switch g := g.(type) {
	case orb.Polygon:
		return validatePolygon(g)
	case orb.MultiPolygon:
		if len(g) == 0 {
			return fmt.Errorf("%w: empty MultiPolygon", ErrInvalidGeometry)
		}
		for i, p := range g {
			if err := validatePolygon(p); err != nil {
				return fmt.Errorf("polygon %d: %w", i, err)
			}
		}
		return nil
	case nil:
		return fmt.Errorf("%w: missing geometry", ErrInvalidGeometry)
	default:
		return fmt.Errorf("%w: geometry must be Polygon or MultiPolygon, got %s", ErrInvalidGeometry, g.GeoJSONType())
	}
}

func validatePolygon(p orb.Polygon) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: empty Polygon", ErrInvalidGeometry)
	}
	for i, r := range p {
		if len(r) < 4 {
			return fmt.Errorf("%w: ring %d has %d points, need at least 4", ErrInvalidGeometry, i, len(r))
		}
		if !r.Closed() {
			return fmt.Errorf("%w: ring %d is not closed", ErrInvalidGeometry, i)
		}
		for _, pt := range r {
			if math.IsNaN(pt[0]) || math.IsNaN(pt[1]) || math.IsInf(pt[0], 0) || math.IsInf(pt[1], 0) {
				return fmt.Errorf("%w: ring %d has a non-finite coordinate", ErrInvalidGeometry, i)
			}
		}
	}
	return nil
}
