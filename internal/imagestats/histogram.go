package imagestats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Histogram is a fixed-bin count of the finite values of a plane.
// Edges has one more entry than Counts; bins are half-open except the last.
type Histogram struct {
	Edges  []float64 `json:"edges"`
	Counts []float64 `json:"counts"`
}

// NewHistogram bins the finite values into n equal-width bins spanning
// [min, max]. A constant input gets a single unit-wide bin around its value.
func NewHistogram(values []float64, n int) Histogram {
	fin := finite(values)
	if len(fin) == 0 || n <= 0 {
		return Histogram{}
	}
	sort.Float64s(fin)
	lo, hi := fin[0], fin[len(fin)-1]

	if lo == hi {
		return Histogram{Edges: []float64{lo - 0.5, hi + 0.5}, Counts: []float64{float64(len(fin))}}
	}

	dividers := floats.Span(make([]float64, n+1), lo, hi)
	// stat.Histogram needs every value strictly below the last divider
	dividers[n] = math.Nextafter(hi, math.Inf(1))
	counts := stat.Histogram(nil, dividers, fin, nil)
	return Histogram{Edges: dividers, Counts: counts}
}
