package render

import (
	"bytes"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/plot/palette"

	"simdash/internal/imagestats"
	"simdash/internal/registry"
)

var _ palette.Palette = Jet{}

func ramp(rows, cols int) *imagestats.Image {
	img := imagestats.NewImage(rows, cols)
	for i := range img.Data {
		img.Data[i] = float64(i)
	}
	return img
}

func TestJetEnds(t *testing.T) {
	jet := NewJet(256)
	if len(jet.Colors()) != 256 {
		t.Fatalf("expected 256 colors, got %d", len(jet.Colors()))
	}
	lo := jet.At(0).(color.RGBA)
	hi := jet.At(1).(color.RGBA)
	if lo.B < 100 || lo.R != 0 {
		t.Fatalf("low end should be blue, got %+v", lo)
	}
	if hi.R < 100 || hi.B != 0 {
		t.Fatalf("high end should be red, got %+v", hi)
	}
}

func TestColorizeOriginLowerAndNaN(t *testing.T) {
	img := ramp(4, 3)
	img.Set(1, 1, math.NaN())
	rgba, err := Colorize(img)
	if err != nil {
		t.Fatal(err)
	}
	// row 0 holds the minimum and is drawn at the bottom
	if got := rgba.RGBAAt(0, 3); got != NewJet(256).At(0) {
		t.Fatalf("bottom-left should carry the minimum color, got %+v", got)
	}
	if got := rgba.RGBAAt(1, 2); got.A != 0 {
		t.Fatalf("NaN pixel should be transparent, got %+v", got)
	}
}

func TestImagePNGScales(t *testing.T) {
	data, err := ImagePNG(ramp(20, 40), 100)
	if err != nil {
		t.Fatal(err)
	}
	im, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if b := im.Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Fatalf("unexpected size %v", b)
	}

	if _, err := ImagePNG(imagestats.NewImage(0, 0), 100); err == nil {
		t.Fatal("expected error for an empty image")
	}
}

func TestHistogramPNG(t *testing.T) {
	vals := ramp(10, 10).Data
	h := imagestats.NewHistogram(vals, 16)
	q := imagestats.Measure(vals, imagestats.QualityDecimals)
	data, err := HistogramPNG("Flat Distribution", h, q)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("not a PNG: %v", err)
	}

	empty := imagestats.NewHistogram(nil, 16)
	if _, err := HistogramPNG("empty", empty, imagestats.Measure(nil, 4)); err != nil {
		t.Fatalf("empty histogram should still render: %v", err)
	}
}

func TestAnnotation(t *testing.T) {
	q := imagestats.Measure([]float64{0, 0}, imagestats.QualityDecimals)
	if got := Annotation(q); got != "RMS 0  DR undefined: zero RMS" {
		t.Fatalf("got %q", got)
	}
}

func TestWriteAssets(t *testing.T) {
	dir := t.TempDir()
	run := &registry.Run{Name: "vla_c_test", PSF: ramp(30, 30)}
	paths, err := WriteAssets(dir, run)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "vla_c_test", "psf.png")
	if len(paths) != 1 || paths[0] != want {
		t.Fatalf("wrote %v", paths)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatal(err)
	}
}
