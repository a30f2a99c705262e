package imagestats

import "math"

// Selection is a rectangle in display axis units as reported by the browser.
// X runs along columns and Y along rows.
type Selection struct {
	X0 float64 `json:"x0"`
	X1 float64 `json:"x1"`
	Y0 float64 `json:"y0"`
	Y1 float64 `json:"y1"`
}

// Bounds is a half-open integer rectangle [R0,R1) x [C0,C1).
type Bounds struct {
	R0 int `json:"r0"`
	R1 int `json:"r1"`
	C0 int `json:"c0"`
	C1 int `json:"c1"`
}

// Empty reports whether the rectangle selects nothing.
func (b Bounds) Empty() bool { return b.R1 <= b.R0 || b.C1 <= b.C0 }

// Bounds rounds each edge half-to-even, orders each pair and clamps the
// result to a rows x cols plane. It never fails; a selection entirely outside
// the plane yields an empty rectangle.
func (s Selection) Bounds(rows, cols int) Bounds {
	c0, c1 := roundPair(s.X0, s.X1)
	r0, r1 := roundPair(s.Y0, s.Y1)
	r0, r1 = clampRange(r0, r1, rows)
	c0, c1 = clampRange(c0, c1, cols)
	return Bounds{R0: r0, R1: r1, C0: c0, C1: c1}
}

func roundPair(a, b float64) (int, int) {
	lo, hi := roundIndex(a), roundIndex(b)
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo, hi
}

// roundIndex saturates non-finite and huge values instead of overflowing.
func roundIndex(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	}
	return int(math.RoundToEven(v))
}

// Region extracts the selected rectangle of img.
func (s Selection) Region(img *Image) (*Image, Bounds) {
	b := s.Bounds(img.Rows, img.Cols)
	return img.Sub(b.R0, b.R1, b.C0, b.C1), b
}
