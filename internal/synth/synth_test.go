package synth

import (
	"math"
	"testing"

	"simdash/internal/catalog"
	"simdash/internal/fitsimg"
	"simdash/internal/wcs"
)

func TestWriteRunRoundTrip(t *testing.T) {
	root := t.TempDir()
	o := DefaultOptions()
	o.Size = 32
	o.Sources = [][2]float64{{10, 20}, {25.5, 4.5}}

	files, err := WriteRun(root, "vla_c_x", "FITS_Files", o)
	if err != nil {
		t.Fatalf("WriteRun: %v", err)
	}

	dirs, path, err := catalog.Load(files.Catalogs)
	if err != nil || path != files.Catalogs[0] {
		t.Fatalf("catalog.Load: %v (%s)", err, path)
	}
	if len(dirs) != len(o.Sources) {
		t.Fatalf("got %d directions, want %d", len(dirs), len(o.Sources))
	}

	f, err := fitsimg.Open(files.Flat)
	if err != nil {
		t.Fatalf("open flat: %v", err)
	}
	if f.Image.Rows != 32 || f.Image.Cols != 32 {
		t.Fatalf("unexpected shape %dx%d", f.Image.Rows, f.Image.Cols)
	}
	if peak := f.Image.At(20, 10); math.Abs(peak-o.Peak) > 0.02 {
		t.Fatalf("flat peak at source is %v, want about %v", peak, o.Peak)
	}

	w, err := wcs.Parse(f)
	if err != nil {
		t.Fatalf("wcs.Parse: %v", err)
	}
	for i, d := range dirs {
		x, y, err := w.WorldToPixel(d.RA, d.Dec)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(x-o.Sources[i][0]) > 1e-6 || math.Abs(y-o.Sources[i][1]) > 1e-6 {
			t.Fatalf("source %d projects to (%v, %v), want %v", i, x, y, o.Sources[i])
		}
	}
}

func TestWriteRunWithoutNoise(t *testing.T) {
	o := DefaultOptions()
	o.Size = 16
	o.Noise = 0
	files, err := WriteRun(t.TempDir(), "vla_c_quiet", "FITS_Files", o)
	if err != nil {
		t.Fatal(err)
	}
	f, err := fitsimg.Open(files.Residual)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range f.Image.Data {
		if v != 0 {
			t.Fatalf("residual pixel %d is %v, want 0", i, v)
		}
	}
}
