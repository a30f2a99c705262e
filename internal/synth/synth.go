// Package synth writes synthetic simulation runs in the on-disk layout the
// registry expects. The demo command and the package tests use it.
package synth

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/astrogo/fitsio"
	"gonum.org/v1/gonum/stat/distuv"

	"simdash/internal/catalog"
	"simdash/internal/fitsimg"
	"simdash/internal/fsutil"
	"simdash/internal/wcs"
)

// Options shapes a generated run.
type Options struct {
	Size     int          // image edge in pixels
	Sources  [][2]float64 // source positions as (col, row) pixels
	Peak     float64      // source peak in Jy/beam
	Noise    float64      // residual noise sigma; zero disables noise
	BeamFWHM float64      // pixels
	RA, Dec  float64      // phase center in degrees
	CellArc  float64      // pixel size in arcseconds
}

// DefaultOptions returns a 256 pixel field with three sources.
func DefaultOptions() Options {
	return Options{
		Size:     256,
		Sources:  [][2]float64{{64, 80}, {128, 128}, {190, 170}},
		Peak:     1.5,
		Noise:    0.002,
		BeamFWHM: 4,
		RA:       201.365,
		Dec:      -43.019,
		CellArc:  1,
	}
}

type keywords map[string]any

func (k keywords) Float(key string) (float64, bool) {
	v, ok := k[key].(float64)
	return v, ok
}

func (k keywords) String(key string) (string, bool) {
	v, ok := k[key].(string)
	return v, ok
}

func (o Options) header() keywords {
	cdelt := o.CellArc / 3600
	centre := float64(o.Size/2) + 1
	return keywords{
		"NAXIS":  4.0,
		"CTYPE1": "RA---SIN",
		"CTYPE2": "DEC--SIN",
		"CTYPE3": "FREQ",
		"CTYPE4": "STOKES",
		"CRVAL1": o.RA,
		"CRVAL2": o.Dec,
		"CRPIX1": centre,
		"CRPIX2": centre,
		"CDELT1": -cdelt,
		"CDELT2": cdelt,
		"BUNIT":  "Jy/beam",
	}
}

func (o Options) cards() []fitsio.Card {
	kw := o.header()
	order := []string{"CTYPE1", "CRVAL1", "CRPIX1", "CDELT1", "CTYPE2", "CRVAL2", "CRPIX2", "CDELT2", "CTYPE3", "CTYPE4", "BUNIT"}
	cards := make([]fitsio.Card, 0, len(order))
	for _, name := range order {
		cards = append(cards, fitsio.Card{Name: name, Value: kw[name]})
	}
	return cards
}

// Directions returns the sky positions of the configured sources.
func (o Options) Directions() ([]catalog.Direction, error) {
	w, err := wcs.Parse(o.header())
	if err != nil {
		return nil, err
	}
	dirs := make([]catalog.Direction, 0, len(o.Sources))
	for _, s := range o.Sources {
		ra, dec, err := w.PixelToWorld(s[0], s[1])
		if err != nil {
			return nil, fmt.Errorf("source at %v: %w", s, err)
		}
		dirs = append(dirs, catalog.Direction{RA: ra, Dec: dec})
	}
	return dirs, nil
}

func gaussian(size int, centres [][2]float64, peak, fwhm float64) []float64 {
	sigma := fwhm / (2 * math.Sqrt(2*math.Ln2))
	out := make([]float64, size*size)
	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			v := 0.0
			for _, s := range centres {
				dx, dy := float64(c)-s[0], float64(r)-s[1]
				v += peak * math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma))
			}
			out[r*size+c] = v
		}
	}
	return out
}

// WriteRun creates root/folder with the FITS images and a JSON source catalog.
func WriteRun(root, folder, fitsDir string, o Options) (fsutil.RunFiles, error) {
	files := fsutil.RunLayout(root, folder, fitsDir, []string{"sources.json"})
	if err := os.MkdirAll(filepath.Join(files.Dir, fitsDir), 0o755); err != nil {
		return files, err
	}

	dirs, err := o.Directions()
	if err != nil {
		return files, err
	}
	records := make([]map[string]float64, 0, len(dirs))
	for _, d := range dirs {
		records = append(records, map[string]float64{catalog.KeyRA: d.RA, catalog.KeyDec: d.Dec})
	}
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return files, err
	}
	if err := os.WriteFile(files.Catalogs[0], raw, 0o644); err != nil {
		return files, err
	}

	n := o.Size
	model := gaussian(n, o.Sources, o.Peak, o.BeamFWHM)
	residual := make([]float64, n*n)
	if o.Noise > 0 {
		noise := distuv.Normal{Mu: 0, Sigma: o.Noise}
		for i := range residual {
			residual[i] = noise.Rand()
		}
	}
	flat := make([]float64, n*n)
	fidelity := make([]float64, n*n)
	floor := math.Max(o.Noise, 1e-6)
	for i := range flat {
		flat[i] = model[i] + residual[i]
		fidelity[i] = math.Abs(flat[i]) / math.Max(math.Abs(residual[i]), floor)
	}
	sky := make([]float64, n*n)
	for _, s := range o.Sources {
		c, r := int(s[0]), int(s[1])
		if r >= 0 && r < n && c >= 0 && c < n {
			sky[r*n+c] = o.Peak
		}
	}
	psf := gaussian(n, [][2]float64{{float64(n / 2), float64(n / 2)}}, 1, o.BeamFWHM)

	cards := o.cards()
	for path, data := range map[string][]float64{
		files.Flat:     flat,
		files.Residual: residual,
		files.Fidelity: fidelity,
		files.PSF:      psf,
		files.SkyModel: sky,
	} {
		if err := fitsimg.Write(path, n, n, data, cards, 1, 1); err != nil {
			return files, fmt.Errorf("write %s: %w", path, err)
		}
	}
	return files, nil
}
