package render

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"simdash/internal/imagestats"
	"simdash/internal/registry"
)

const (
	histWidth  = 6 * vg.Inch
	histHeight = 3.5 * vg.Inch
	// previewCells caps the heatmap grid edge; larger images are decimated.
	previewCells = 512
)

var histFill = color.RGBA{R: 0x63, G: 0x6e, B: 0xfa, A: 0xff}

// Annotation is the RMS/DR caption drawn on every histogram.
func Annotation(q imagestats.Quality) string {
	return fmt.Sprintf("RMS %s  DR %s", q.RMS, q.DR)
}

// HistogramPNG draws h with the quality caption under the title.
func HistogramPNG(title string, h imagestats.Histogram, q imagestats.Quality) ([]byte, error) {
	p := plot.New()
	p.Title.Text = title + "\n" + Annotation(q)
	p.X.Label.Text = "Jy/beam"
	p.Y.Label.Text = "count"

	if len(h.Counts) == 0 {
		p.X.Min, p.X.Max = 0, 1
		p.Y.Min, p.Y.Max = 0, 1
	} else {
		bins := make([]plotter.HistogramBin, len(h.Counts))
		for i, n := range h.Counts {
			bins[i] = plotter.HistogramBin{Min: h.Edges[i], Max: h.Edges[i+1], Weight: n}
		}
		hist := &plotter.Histogram{
			Bins:      bins,
			Width:     h.Edges[1] - h.Edges[0],
			FillColor: histFill,
			LineStyle: plotter.DefaultLineStyle,
		}
		hist.LineStyle.Width = vg.Points(0.5)
		p.Add(hist)
	}
	return encode(p, histWidth, histHeight)
}

func encode(p *plot.Plot, w, h vg.Length) ([]byte, error) {
	wt, err := p.WriterTo(w, h, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// grid adapts an image to plotter.GridXYZ, sampling every stride pixels.
type grid struct {
	img    *imagestats.Image
	stride int
}

func newGrid(img *imagestats.Image) grid {
	stride := 1
	if edge := max(img.Rows, img.Cols); edge > previewCells {
		stride = int(math.Ceil(float64(edge) / previewCells))
	}
	return grid{img: img, stride: stride}
}

func (g grid) Dims() (c, r int) {
	return (g.img.Cols + g.stride - 1) / g.stride, (g.img.Rows + g.stride - 1) / g.stride
}
func (g grid) Z(c, r int) float64 { return g.img.At(r*g.stride, c*g.stride) }
func (g grid) X(c int) float64    { return float64(c * g.stride) }
func (g grid) Y(r int) float64    { return float64(r * g.stride) }

// PreviewPNG draws img as a jet heatmap with a lower-left origin.
func PreviewPNG(img *imagestats.Image, title string) ([]byte, error) {
	if img == nil || img.Rows == 0 || img.Cols == 0 {
		return nil, errEmptyImage
	}
	hm := plotter.NewHeatMap(newGrid(img), NewJet(256))
	hm.NaN = color.Transparent
	hm.Rasterized = true
	if math.IsInf(hm.Min, 0) || math.IsInf(hm.Max, 0) {
		hm.Min, hm.Max = 0, 1
	}
	if hm.Max <= hm.Min {
		hm.Max = hm.Min + 1
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x [pixel]"
	p.Y.Label.Text = "y [pixel]"
	p.Add(hm)
	return encode(p, 8*vg.Inch, 6*vg.Inch)
}

// WriteAssets renders the PSF and, when present, the sky model previews of
// run into dir/<run>/ and returns the written paths.
func WriteAssets(dir string, run *registry.Run) ([]string, error) {
	out := filepath.Join(dir, run.Name)
	if err := os.MkdirAll(out, 0o755); err != nil {
		return nil, err
	}
	previews := []struct {
		name  string
		title string
		img   *imagestats.Image
	}{
		{"psf.png", "Psf", run.PSF},
		{"skymodel.png", "Skymodel", run.SkyModel},
	}
	var written []string
	for _, pv := range previews {
		if pv.img == nil {
			continue
		}
		data, err := PreviewPNG(pv.img, pv.title)
		if err != nil {
			return written, fmt.Errorf("%s preview for %s: %w", pv.title, run.Name, err)
		}
		path := filepath.Join(out, pv.name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}
