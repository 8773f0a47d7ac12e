package coord

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ctessum/geom/proj"
)

// Well-known CRS tags.
const (
	WGS84        = "EPSG:4326"
	WebMercator  = "EPSG:3857"
	ETRS89UTM32N = "EPSG:25832"
)

var (
	// ErrUnsupportedCRS is returned for CRS tags missing from the registry.
	ErrUnsupportedCRS = errors.New("unsupported CRS")
)

// CRS describes a coordinate reference system by its EPSG tag and proj4 definition.
type CRS struct {
	Code string
	Proj string
	Name string
}

// IsGeographic reports whether coordinates are longitude/latitude degrees.
func (c *CRS) IsGeographic() bool {
	return strings.Contains(c.Proj, "+proj=longlat")
}

var registry = map[string]*CRS{
	"EPSG:4326": {
		Code: "EPSG:4326",
		Name: "WGS 84",
		Proj: "+proj=longlat +datum=WGS84 +no_defs",
	},
	"EPSG:3857": {
		Code: "EPSG:3857",
		Name: "WGS 84 / Pseudo-Mercator",
		Proj: "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs",
	},
	"EPSG:25832": {
		Code: "EPSG:25832",
		Name: "ETRS89 / UTM zone 32N",
		Proj: "+proj=utm +zone=32 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
	},
	"EPSG:25833": {
		Code: "EPSG:25833",
		Name: "ETRS89 / UTM zone 33N",
		Proj: "+proj=utm +zone=33 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
	},
	"EPSG:32632": {
		Code: "EPSG:32632",
		Name: "WGS 84 / UTM zone 32N",
		Proj: "+proj=utm +zone=32 +datum=WGS84 +units=m +no_defs",
	},
	"EPSG:32633": {
		Code: "EPSG:32633",
		Name: "WGS 84 / UTM zone 33N",
		Proj: "+proj=utm +zone=33 +datum=WGS84 +units=m +no_defs",
	},
	"EPSG:31467": {
		Code: "EPSG:31467",
		Name: "DHDN / 3-degree Gauss-Kruger zone 3",
		Proj: "+proj=tmerc +lat_0=0 +lon_0=9 +k=1 +x_0=3500000 +y_0=0 +ellps=bessel +towgs84=598.1,73.7,418.2,0.202,0.045,-2.455,6.7 +units=m +no_defs",
	},
}

// parsed spatial references, keyed by canonical code
var (
	srMu    sync.Mutex
	srCache = make(map[string]*proj.SR)
)

// Normalize canonicalises a CRS tag: "epsg:25832", "25832" and "EPSG:25832"
// all become "EPSG:25832". "wgs84" and "CRS84" map to EPSG:4326.
func Normalize(tag string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(tag))
	switch t {
	case "":
		return "", fmt.Errorf("%w: empty tag", ErrUnsupportedCRS)
	case "WGS84", "CRS84", "OGC:CRS84":
		return WGS84, nil
	}
	t = strings.TrimPrefix(t, "EPSG:")
	code, err := strconv.Atoi(t)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCRS, tag)
	}
	return "EPSG:" + strconv.Itoa(code), nil
}

// Lookup returns the registered CRS for tag.
func Lookup(tag string) (*CRS, error) {
	code, err := Normalize(tag)
	if err != nil {
		return nil, err
	}
	c, ok := registry[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCRS, code)
	}
	return c, nil
}

// Supported lists the registered CRS codes in sorted order.
func Supported() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func spatialRef(c *CRS) (*proj.SR, error) {
	srMu.Lock()
	defer srMu.Unlock()

	if sr, ok := srCache[c.Code]; ok {
		return sr, nil
	}
	sr, err := proj.Parse(c.Proj)
	if err != nil {
		return nil, fmt.Errorf("failed to parse proj definition for %s: %w", c.Code, err)
	}
	srCache[c.Code] = sr
	return sr, nil
}
