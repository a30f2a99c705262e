package registry

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats/scalar"

	"simdash/internal/catalog"
	"simdash/internal/config"
	"simdash/internal/fitsimg"
	"simdash/internal/fsutil"
	"simdash/internal/imagestats"
	"simdash/internal/wcs"
)

// PanelKind names one of the three analysed images of a run.
type PanelKind string

const (
	Flat     PanelKind = "flat"
	Residual PanelKind = "residual"
	Fidelity PanelKind = "fidelity"
)

// PanelKinds lists the panels in display order.
var PanelKinds = []PanelKind{Flat, Residual, Fidelity}

// Title is the display name of the panel.
func (k PanelKind) Title() string {
	switch k {
	case Flat:
		return "Flat"
	case Residual:
		return "Residual"
	case Fidelity:
		return "Fidelity"
	}
	return string(k)
}

// ParsePanelKind validates a panel name from a URL or flag.
func ParsePanelKind(s string) (PanelKind, error) {
	for _, k := range PanelKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown panel %q", s)
}

// Subset selects which pixels of a panel a reduction runs over.
type Subset string

const (
	Full      Subset = "full"
	OnSource  Subset = "onsource"
	OffSource Subset = "offsource"
)

// Subsets lists the pixel subsets in display order.
var Subsets = []Subset{Full, OnSource, OffSource}

// ParseSubset validates a subset name.
func ParseSubset(s string) (Subset, error) {
	for _, sub := range Subsets {
		if string(sub) == s {
			return sub, nil
		}
	}
	return "", fmt.Errorf("unknown subset %q", s)
}

// Title is the histogram heading for the subset.
func (s Subset) Title(k PanelKind) string {
	switch s {
	case OnSource:
		return "Onsource Distribution"
	case OffSource:
		return "Offsource Distribution"
	}
	return k.Title() + " Distribution"
}

// Stats are the reductions over one subset of a panel.
type Stats struct {
	Summary   imagestats.Summary   `json:"summary"`
	Quality   imagestats.Quality   `json:"quality"`
	Histogram imagestats.Histogram `json:"-"`
}

// Compute reduces values with the configured precision and binning.
func Compute(values []float64, an config.Analysis) Stats {
	return Stats{
		Summary:   imagestats.Summarize(values, an.StatsDecimals),
		Quality:   imagestats.Measure(values, an.QualityDecimals),
		Histogram: imagestats.NewHistogram(values, an.HistogramBins),
	}
}

// Panel is one analysed image with its masked planes and statistics.
type Panel struct {
	Kind      PanelKind
	Path      string
	Image     *imagestats.Image
	OnSource  *imagestats.Image
	OffSource *imagestats.Image
	Centers   []imagestats.Pixel
	// Unprojected counts directions that fell outside the projection.
	Unprojected int
	Stats       map[Subset]Stats
	Header      []fitsimg.Card
}

// Plane returns the pixels of a subset.
func (p *Panel) Plane(s Subset) *imagestats.Image {
	switch s {
	case OnSource:
		return p.OnSource
	case OffSource:
		return p.OffSource
	}
	return p.Image
}

// Region is the outcome of a rectangular selection on a panel.
type Region struct {
	Bounds imagestats.Bounds `json:"bounds"`
	Whole  bool              `json:"whole"`
	Stats
	Values []float64 `json:"-"`
}

// Select reduces the pixels inside sel. A nil selection stands for the whole
// image and reuses the precomputed full-image statistics.
func (p *Panel) Select(sel *imagestats.Selection, an config.Analysis) Region {
	if sel == nil {
		return Region{
			Bounds: imagestats.Bounds{R1: p.Image.Rows, C1: p.Image.Cols},
			Whole:  true,
			Stats:  p.Stats[Full],
			Values: p.Image.Data,
		}
	}
	sub, b := sel.Region(p.Image)
	return Region{Bounds: b, Stats: Compute(sub.Data, an), Values: sub.Data}
}

// Run is one simulation output folder.
type Run struct {
	Name        string
	Index       int
	Files       fsutil.RunFiles
	Directions  []catalog.Direction
	CatalogPath string
	Panels      map[PanelKind]*Panel
	PSF         *imagestats.Image
	SkyModel    *imagestats.Image // nil when the run has no sky model image
	LoadTime    time.Duration
}

// Panel looks up a panel by kind.
func (r *Run) Panel(k PanelKind) (*Panel, bool) {
	p, ok := r.Panels[k]
	return p, ok
}

// LoadError reports a run that could not be loaded.
type LoadError struct {
	Run  string
	File string
	Err  error
}

func (e *LoadError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("run %s: %v", e.Run, e.Err)
	}
	return fmt.Sprintf("run %s: %s: %v", e.Run, e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// LoadRun reads every input of a run and computes its panels.
// Any failure is returned as a *LoadError.
func LoadRun(files fsutil.RunFiles, index int, an config.Analysis) (*Run, error) {
	start := time.Now()
	fail := func(file string, err error) (*Run, error) {
		return nil, &LoadError{Run: files.Folder, File: file, Err: err}
	}

	dirs, catPath, err := catalog.Load(files.Catalogs)
	if err != nil {
		file := catPath
		if errors.Is(err, catalog.ErrNotFound) && len(files.Catalogs) > 0 {
			file = files.Catalogs[0]
		}
		return fail(file, err)
	}

	run := &Run{
		Name:        files.Folder,
		Index:       index,
		Files:       files,
		Directions:  dirs,
		CatalogPath: catPath,
		Panels:      make(map[PanelKind]*Panel, len(PanelKinds)),
	}

	psf, err := fitsimg.Open(files.PSF)
	if err != nil {
		return fail(files.PSF, err)
	}
	run.PSF = psf.Image

	if fsutil.FirstExisting(files.SkyModel) != "" {
		sky, err := fitsimg.Open(files.SkyModel)
		if err != nil {
			return fail(files.SkyModel, err)
		}
		run.SkyModel = sky.Image
	}

	paths := map[PanelKind]string{Flat: files.Flat, Residual: files.Residual, Fidelity: files.Fidelity}
	for _, k := range PanelKinds {
		p, err := loadPanel(k, paths[k], dirs, an)
		if err != nil {
			return fail(paths[k], err)
		}
		run.Panels[k] = p
	}

	run.LoadTime = time.Since(start)
	return run, nil
}

func loadPanel(kind PanelKind, path string, dirs []catalog.Direction, an config.Analysis) (*Panel, error) {
	f, err := fitsimg.Open(path)
	if err != nil {
		return nil, err
	}
	p := &Panel{Kind: kind, Path: path, Image: f.Image, Header: f.Cards()}

	if len(dirs) > 0 {
		w, err := wcs.Parse(f)
		if err != nil {
			return nil, err
		}
		p.Centers, p.Unprojected = pixelCenters(w, dirs)
	}

	img := f.Image
	on := imagestats.NewMask(img.Rows, img.Cols, p.Centers, an.MaskHalfWidth)
	if p.OnSource, err = on.Apply(img); err != nil {
		return nil, err
	}
	if p.OffSource, err = on.Invert().Apply(img); err != nil {
		return nil, err
	}

	p.Stats = map[Subset]Stats{
		Full:      Compute(img.Data, an),
		OnSource:  Compute(p.OnSource.Data, an),
		OffSource: Compute(p.OffSource.Data, an),
	}
	return p, nil
}

// pixelCenters projects directions onto the image. The longitude axis is
// normally FITS axis 1, so x is the column.
func pixelCenters(w *wcs.WCS, dirs []catalog.Direction) ([]imagestats.Pixel, int) {
	var (
		out     []imagestats.Pixel
		skipped int
	)
	for _, d := range dirs {
		x, y, err := w.WorldToPixel(d.RA, d.Dec)
		if err != nil {
			skipped++
			continue
		}
		if w.LngAxis > w.LatAxis {
			x, y = y, x
		}
		out = append(out, imagestats.Pixel{Row: snap(y), Col: snap(x)})
	}
	return out, skipped
}

// centerTolerance is projection round-off, far below catalog precision.
const centerTolerance = 1e-6

// snap moves a coordinate within centerTolerance of a pixel index onto it, so
// a direction on a pixel boundary floors to the same pixel on every platform.
func snap(v float64) float64 {
	if r := math.Round(v); scalar.EqualWithinAbs(v, r, centerTolerance) {
		return r
	}
	return v
}
