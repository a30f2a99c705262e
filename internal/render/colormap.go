// Package render draws panel images, histograms and preview plots as PNG.
package render

import (
	"image/color"
	"math"
)

// Jet is the classic blue-cyan-yellow-red colormap. It satisfies
// gonum.org/v1/plot/palette.Palette.
type Jet struct {
	colors []color.Color
}

// NewJet returns a jet palette with n entries.
func NewJet(n int) Jet {
	if n < 2 {
		n = 2
	}
	cs := make([]color.Color, n)
	for i := range cs {
		cs[i] = jetAt(float64(i) / float64(n-1))
	}
	return Jet{colors: cs}
}

// Colors returns the palette entries from low to high.
func (j Jet) Colors() []color.Color { return j.colors }

// At maps t in [0,1] to a palette entry.
func (j Jet) At(t float64) color.Color {
	i := int(math.Round(t * float64(len(j.colors)-1)))
	i = max(0, min(i, len(j.colors)-1))
	return j.colors[i]
}

func jetAt(t float64) color.RGBA {
	ch := func(offset float64) uint8 {
		v := 1.5 - math.Abs(4*t-offset)
		v = math.Max(0, math.Min(1, v))
		return uint8(math.Round(v * 255))
	}
	return color.RGBA{R: ch(3), G: ch(2), B: ch(1), A: 0xff}
}
