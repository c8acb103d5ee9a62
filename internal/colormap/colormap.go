package colormap

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
)

// ErrUnknownColormap is returned for a colormap name that is not supported.
var ErrUnknownColormap = errors.New("unknown colormap")

// RGB is a color with channels in [0, 1].
type RGB [3]float32

// Hex formats the color as #rrggbb.
func (c RGB) Hex() string {
	b := func(v float32) int { return int(math.Round(float64(clamp01(float64(v))) * 255)) }
	return fmt.Sprintf("#%02x%02x%02x", b(c[0]), b(c[1]), b(c[2]))
}

// Map selects a colormap.
type Map int

const (
	Hot Map = iota
	Jet
	Bone
	Cool
	RedBlue
	Viridis
	Grey
	BlackBody
	BlueRed
)

// DefaultMap is used when no colormap has been configured.
const DefaultMap = Hot

var mapNames = []string{
	Hot:     "Hot",
	Jet:     "Jet",
	Bone:    "Bone",
	Cool:    "Cool",
	RedBlue: "RedBlue",
	Viridis: "Viridis",
	Grey:    "Grey",
	// Perceptually uniform maps from gonum/plot.
	BlackBody: "BlackBody",
	BlueRed:   "BlueRed",
}

// Names lists the supported colormaps.
func Names() []string {
	return append([]string(nil), mapNames...)
}

// Parse resolves a colormap name, ignoring case.
func Parse(name string) (Map, error) {
	n := strings.TrimSpace(name)
	for i, mn := range mapNames {
		if strings.EqualFold(mn, n) {
			return Map(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownColormap, name, strings.Join(Names(), ", "))
}

func (m Map) String() string {
	if m >= 0 && int(m) < len(mapNames) {
		return mapNames[m]
	}
	return fmt.Sprintf("Map(%d)", int(m))
}

// Color returns the color for a normalized value; x is clamped to [0, 1].
func (m Map) Color(x float64) RGB {
	x = clamp01(x)
	switch m {
	case Jet:
		return rgb(
			clamp01(1.5-math.Abs(4*x-3)),
			clamp01(1.5-math.Abs(4*x-2)),
			clamp01(1.5-math.Abs(4*x-1)),
		)
	case Bone:
		h := hot(1 - x)
		return rgb(
			(7*x+(1-float64(h[2])))/8,
			(7*x+(1-float64(h[1])))/8,
			(7*x+(1-float64(h[0])))/8,
		)
	case Cool:
		return rgb(x, 1-x, 1)
	case RedBlue:
		if x < 0.5 {
			s := x * 2
			return rgb(s, s, 1)
		}
		s := (1 - x) * 2
		return rgb(1, s, s)
	case Viridis:
		return viridis(x)
	case Grey:
		return rgb(x, x, x)
	case BlackBody:
		return fromPalette(blackBody, x)
	case BlueRed:
		return fromPalette(blueRed, x)
	default:
		return hot(x)
	}
}

// Fill writes the color of each normalized value in xs into dst.
func (m Map) Fill(dst []RGB, xs []float64) {
	for i, x := range xs {
		dst[i] = m.Color(x)
	}
}

var (
	blackBody = unitRange(moreland.BlackBody())
	blueRed   = unitRange(moreland.SmoothBlueRed())
)

func unitRange(c palette.ColorMap) palette.ColorMap {
	c.SetMin(0)
	c.SetMax(1)
	return c
}

// fromPalette samples c at x in [0, 1]. The maps are only read after init,
// so concurrent use is safe.
func fromPalette(c palette.ColorMap, x float64) RGB {
	col, err := c.At(x)
	if err != nil {
		return RGB{}
	}
	r, g, b, _ := col.RGBA()
	return rgb(float64(r)/0xffff, float64(g)/0xffff, float64(b)/0xffff)
}

func hot(x float64) RGB {
	return rgb(
		clamp01(x/0.375),
		clamp01((x-0.375)/0.375),
		clamp01((x-0.75)/0.25),
	)
}

var viridisStops = []RGB{
	{0x44 / 255.0, 0x01 / 255.0, 0x54 / 255.0},
	{0x48 / 255.0, 0x27 / 255.0, 0x77 / 255.0},
	{0x3e / 255.0, 0x49 / 255.0, 0x89 / 255.0},
	{0x31 / 255.0, 0x68 / 255.0, 0x8e / 255.0},
	{0x26 / 255.0, 0x82 / 255.0, 0x8e / 255.0},
	{0x1f / 255.0, 0x9e / 255.0, 0x89 / 255.0},
	{0x35 / 255.0, 0xb7 / 255.0, 0x79 / 255.0},
	{0x6e / 255.0, 0xce / 255.0, 0x58 / 255.0},
	{0xb5 / 255.0, 0xde / 255.0, 0x2b / 255.0},
	{0xfd / 255.0, 0xe7 / 255.0, 0x25 / 255.0},
}

func viridis(x float64) RGB {
	pos := x * float64(len(viridisStops)-1)
	i := int(pos)
	if i >= len(viridisStops)-1 {
		return viridisStops[len(viridisStops)-1]
	}
	f := float32(pos - float64(i))
	a, b := viridisStops[i], viridisStops[i+1]
	return RGB{a[0] + (b[0]-a[0])*f, a[1] + (b[1]-a[1])*f, a[2] + (b[2]-a[2])*f}
}

func rgb(r, g, b float64) RGB { return RGB{float32(r), float32(g), float32(b)} }

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
