// Package imagestats holds the pixel-plane reductions behind the dashboard:
// on/off-source masking, NaN-aware summary statistics, RMS and dynamic range,
// histograms and rectangular region selection.
//
// Every reduction treats NaN and ±Inf as "no data" and excludes it.
package imagestats

import "math"

// Image is a row-major 2-D plane of pixel intensities. Row is the FITS y axis.
type Image struct {
	Rows int
	Cols int
	Data []float64
}

// NewImage allocates a zeroed plane.
func NewImage(rows, cols int) *Image {
	return &Image{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// At returns the pixel at row r, column c.
func (im *Image) At(r, c int) float64 {
	return im.Data[r*im.Cols+c]
}

// Set stores v at row r, column c.
func (im *Image) Set(r, c int, v float64) {
	im.Data[r*im.Cols+c] = v
}

// Sub copies the half-open rectangle [r0,r1) x [c0,c1), clamped to the plane.
func (im *Image) Sub(r0, r1, c0, c1 int) *Image {
	r0, r1 = clampRange(r0, r1, im.Rows)
	c0, c1 = clampRange(c0, c1, im.Cols)
	out := NewImage(r1-r0, c1-c0)
	for r := r0; r < r1; r++ {
		copy(out.Data[(r-r0)*out.Cols:(r-r0+1)*out.Cols], im.Data[r*im.Cols+c0:r*im.Cols+c1])
	}
	return out
}

// Finite returns the pixel values that are neither NaN nor infinite.
func (im *Image) Finite() []float64 {
	return finite(im.Data)
}

func finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// clampRange limits [lo,hi) to [0,n) and never returns hi < lo.
func clampRange(lo, hi, n int) (int, int) {
	lo = max(0, min(lo, n))
	hi = max(0, min(hi, n))
	if hi < lo {
		hi = lo
	}
	return lo, hi
}
