// Package colormap maps normalized intensities to colours for raster and
// grid preview tiles.
package colormap

import (
	"image/color"
	"sort"
	"strings"
)

// Colormap maps normalized values [0, 1] to colors.
type Colormap interface {
	At(t float64) color.Color
}

// LinearColormap interpolates between evenly spaced colour stops.
type LinearColormap struct {
	stops []color.RGBA
}

// NewLinear builds a colormap from at least two stops.
func NewLinear(stops ...color.RGBA) LinearColormap {
	if len(stops) == 1 {
		stops = append(stops, stops[0])
	}
	return LinearColormap{stops: stops}
}

// At returns the color at position t (0-1). NaN maps to the first stop.
func (c LinearColormap) At(t float64) color.Color {
	if !(t > 0) {
		return c.stops[0]
	}
	if t >= 1 {
		return c.stops[len(c.stops)-1]
	}

	idx := t * float64(len(c.stops)-1)
	lower := int(idx)
	upper := min(lower+1, len(c.stops)-1)
	return interpolate(c.stops[lower], c.stops[upper], idx-float64(lower))
}

func interpolate(c1, c2 color.RGBA, t float64) color.RGBA {
	lerp := func(a, b uint8) uint8 {
		return uint8(float64(a) + t*(float64(b)-float64(a)))
	}
	return color.RGBA{
		R: lerp(c1.R, c2.R),
		G: lerp(c1.G, c2.G),
		B: lerp(c1.B, c2.B),
		A: lerp(c1.A, c2.A),
	}
}

// Lighting runs from unlit dark blue through sodium amber to white.
var Lighting = NewLinear(
	color.RGBA{8, 10, 36, 255},
	color.RGBA{46, 30, 92, 255},
	color.RGBA{140, 52, 90, 255},
	color.RGBA{222, 110, 40, 255},
	color.RGBA{252, 186, 60, 255},
	color.RGBA{255, 236, 160, 255},
	color.RGBA{255, 255, 255, 255},
)

// Gray is a black to white ramp.
var Gray = NewLinear(color.RGBA{0, 0, 0, 255}, color.RGBA{255, 255, 255, 255})

// Viridis colormap (matplotlib viridis)
var Viridis = NewLinear(
	color.RGBA{68, 1, 84, 255},
	color.RGBA{72, 35, 116, 255},
	color.RGBA{64, 67, 135, 255},
	color.RGBA{52, 94, 141, 255},
	color.RGBA{41, 120, 142, 255},
	color.RGBA{32, 144, 140, 255},
	color.RGBA{34, 167, 132, 255},
	color.RGBA{68, 190, 112, 255},
	color.RGBA{121, 209, 81, 255},
	color.RGBA{189, 222, 38, 255},
	color.RGBA{253, 231, 37, 255},
)

// Inferno colormap
var Inferno = NewLinear(
	color.RGBA{0, 0, 4, 255},
	color.RGBA{40, 11, 84, 255},
	color.RGBA{101, 21, 110, 255},
	color.RGBA{159, 42, 99, 255},
	color.RGBA{212, 72, 66, 255},
	color.RGBA{245, 125, 21, 255},
	color.RGBA{250, 193, 39, 255},
	color.RGBA{252, 255, 164, 255},
)

// Magma colormap
var Magma = NewLinear(
	color.RGBA{0, 0, 4, 255},
	color.RGBA{28, 16, 68, 255},
	color.RGBA{79, 18, 123, 255},
	color.RGBA{129, 37, 129, 255},
	color.RGBA{181, 54, 122, 255},
	color.RGBA{229, 80, 100, 255},
	color.RGBA{251, 135, 97, 255},
	color.RGBA{254, 194, 135, 255},
	color.RGBA{252, 253, 191, 255},
)

var registry = map[string]Colormap{
	"lighting": Lighting,
	"gray":     Gray,
	"viridis":  Viridis,
	"inferno":  Inferno,
	"magma":    Magma,
}

// Lookup returns the named colormap. Names are case-insensitive.
func Lookup(name string) (Colormap, bool) {
	c, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// Names lists the registered colormaps.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
