// Package colormap provides color schemes for heatmap previews.
package colormap

import (
	"image/color"
	"math"
	"sort"
	"strings"
)

// Colormap maps normalized values [0, 1] to colors.
type Colormap interface {
	At(t float64) color.Color
}

// LinearColormap is a linear interpolation colormap.
type LinearColormap struct {
	colors []color.RGBA
}

// NewLinear builds a colormap interpolating between stops in order.
func NewLinear(stops ...color.RGBA) LinearColormap {
	return LinearColormap{colors: stops}
}

// At returns the color at position t (0-1).
func (c LinearColormap) At(t float64) color.Color {
	if t <= 0 || math.IsNaN(t) {
		return c.colors[0]
	}
	if t >= 1 {
		return c.colors[len(c.colors)-1]
	}

	idx := t * float64(len(c.colors)-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= len(c.colors) {
		upper = len(c.colors) - 1
	}

	frac := idx - float64(lower)
	return interpolate(c.colors[lower], c.colors[upper], frac)
}

// Reversed returns the colormap with its stops in reverse order.
func (c LinearColormap) Reversed() LinearColormap {
	out := make([]color.RGBA, len(c.colors))
	for i, col := range c.colors {
		out[len(out)-1-i] = col
	}
	return LinearColormap{colors: out}
}

func interpolate(c1, c2 color.RGBA, t float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c1.R) + t*(float64(c2.R)-float64(c1.R))),
		G: uint8(float64(c1.G) + t*(float64(c2.G)-float64(c1.G))),
		B: uint8(float64(c1.B) + t*(float64(c2.B)-float64(c1.B))),
		A: 255,
	}
}

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

// Fall is the white-yellow-red-black ramp genome browsers use for heatmaps.
var Fall = NewLinear(
	color.RGBA{255, 255, 255, 255},
	color.RGBA{255, 255, 204, 255},
	color.RGBA{255, 237, 160, 255},
	color.RGBA{254, 217, 118, 255},
	color.RGBA{254, 178, 76, 255},
	color.RGBA{253, 141, 60, 255},
	color.RGBA{252, 78, 42, 255},
	color.RGBA{227, 26, 28, 255},
	color.RGBA{189, 0, 38, 255},
	color.RGBA{128, 0, 38, 255},
	color.RGBA{0, 0, 0, 255},
)

// Greys runs from white to black.
var Greys = NewLinear(
	color.RGBA{255, 255, 255, 255},
	color.RGBA{0, 0, 0, 255},
)

// Blues runs from white to dark blue.
var Blues = NewLinear(
	color.RGBA{247, 251, 255, 255},
	color.RGBA{198, 219, 239, 255},
	color.RGBA{107, 174, 214, 255},
	color.RGBA{33, 113, 181, 255},
	color.RGBA{8, 48, 107, 255},
)

var registry = map[string]Colormap{
	"viridis": Viridis,
	"magma":   Magma,
	"fall":    Fall,
	"greys":   Greys,
	"blues":   Blues,
}

// Lookup returns the named colormap. A "_r" suffix reverses a linear map.
func Lookup(name string) (Colormap, bool) {
	name = strings.ToLower(name)
	if base, ok := strings.CutSuffix(name, "_r"); ok {
		if lin, ok := registry[base].(LinearColormap); ok {
			return lin.Reversed(), true
		}
		return nil, false
	}
	cm, ok := registry[name]
	return cm, ok
}

// Names lists the registered colormaps.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
