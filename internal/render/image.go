package render

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"

	"golang.org/x/image/draw"

	"simdash/internal/imagestats"
)

var errEmptyImage = errors.New("render: empty image")

// Colorize maps img onto the jet palette between its finite extrema. Row 0 is
// drawn at the bottom so the picture has a lower-left origin; NaN pixels are
// transparent.
func Colorize(img *imagestats.Image) (*image.RGBA, error) {
	if img == nil || img.Rows == 0 || img.Cols == 0 {
		return nil, errEmptyImage
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range img.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	span := hi - lo
	jet := NewJet(256)

	out := image.NewRGBA(image.Rect(0, 0, img.Cols, img.Rows))
	for r := 0; r < img.Rows; r++ {
		y := img.Rows - 1 - r
		for c := 0; c < img.Cols; c++ {
			v := img.At(r, c)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				out.Set(c, y, color.Transparent)
				continue
			}
			t := 0.5
			if span > 0 {
				t = (v - lo) / span
			}
			out.Set(c, y, jet.At(t))
		}
	}
	return out, nil
}

// Fit scales src so its longer edge is size pixels, keeping the aspect ratio.
// Nearest-neighbour sampling keeps the pixel grid visible for selections.
func Fit(src image.Image, size int) image.Image {
	b := src.Bounds()
	if size <= 0 || (b.Dx() == size && b.Dy() <= size) || (b.Dy() == size && b.Dx() <= size) {
		return src
	}
	w, h := size, size
	if b.Dx() > b.Dy() {
		h = max(1, b.Dy()*size/b.Dx())
	} else {
		w = max(1, b.Dx()*size/b.Dy())
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// ImagePNG renders a panel image scaled to size pixels on its longer edge.
func ImagePNG(img *imagestats.Image, size int) ([]byte, error) {
	rgba, err := Colorize(img)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, Fit(rgba, size)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
