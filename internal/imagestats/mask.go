package imagestats

import (
	"fmt"
	"math"
)

// Pixel is a sub-pixel position on the plane.
type Pixel struct {
	Row float64 `json:"row"`
	Col float64 `json:"col"`
}

// Mask marks pixels with the same shape as the image it was built for.
type Mask struct {
	Rows int
	Cols int
	bits []bool
}

// NewMask returns the on-source mask: true inside a square window of
// halfWidth pixels each side of every center, false elsewhere. Centers are
// truncated down to the pixel holding them and windows are clamped to the plane.
// Non-finite centers are ignored.
func NewMask(rows, cols int, centers []Pixel, halfWidth int) *Mask {
	m := &Mask{Rows: rows, Cols: cols, bits: make([]bool, rows*cols)}
	for _, c := range centers {
		if math.IsNaN(c.Row) || math.IsNaN(c.Col) || math.IsInf(c.Row, 0) || math.IsInf(c.Col, 0) {
			continue
		}
		pr, pc := int(math.Floor(c.Row)), int(math.Floor(c.Col))
		r0, r1 := clampRange(pr-halfWidth, pr+halfWidth, rows)
		c0, c1 := clampRange(pc-halfWidth, pc+halfWidth, cols)
		for r := r0; r < r1; r++ {
			for col := c0; col < c1; col++ {
				m.bits[r*cols+col] = true
			}
		}
	}
	return m
}

// At reports whether pixel (r, c) is selected.
func (m *Mask) At(r, c int) bool {
	return m.bits[r*m.Cols+c]
}

// Count is the number of selected pixels.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.bits {
		if b {
			n++
		}
	}
	return n
}

// Invert returns the logical complement.
func (m *Mask) Invert() *Mask {
	out := &Mask{Rows: m.Rows, Cols: m.Cols, bits: make([]bool, len(m.bits))}
	for i, b := range m.bits {
		out.bits[i] = !b
	}
	return out
}

// Apply copies img keeping selected pixels and replacing the rest with NaN.
func (m *Mask) Apply(img *Image) (*Image, error) {
	if img.Rows != m.Rows || img.Cols != m.Cols {
		return nil, fmt.Errorf("mask %dx%d does not match image %dx%d", m.Rows, m.Cols, img.Rows, img.Cols)
	}
	out := NewImage(img.Rows, img.Cols)
	for i, v := range img.Data {
		if m.bits[i] {
			out.Data[i] = v
		} else {
			out.Data[i] = math.NaN()
		}
	}
	return out, nil
}

// Fill replaces the pixels of masked that m does not select with the
// corresponding pixels of src.
func (m *Mask) Fill(masked, src *Image) (*Image, error) {
	if masked.Rows != m.Rows || masked.Cols != m.Cols || src.Rows != m.Rows || src.Cols != m.Cols {
		return nil, fmt.Errorf("mask %dx%d does not match images", m.Rows, m.Cols)
	}
	out := NewImage(m.Rows, m.Cols)
	for i := range out.Data {
		if m.bits[i] {
			out.Data[i] = masked.Data[i]
		} else {
			out.Data[i] = src.Data[i]
		}
	}
	return out, nil
}
