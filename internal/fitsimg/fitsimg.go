// Package fitsimg loads the primary image of a FITS file as a float64 plane.
package fitsimg

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"

	"simdash/internal/imagestats"
)

// File is a decoded FITS primary image.
type File struct {
	Path  string
	Image *imagestats.Image
	// Planes counts the extra planes dropped while squeezing non-celestial axes.
	Planes int

	cards   []fitsio.Card
	index   map[string]int
	derived map[string]float64 // structural keywords fitsio keeps out of the card list
}

// Open reads the primary HDU of the FITS file at path.
func Open(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer fh.Close()

	f, err := fitsio.Open(fh)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	defer f.Close()

	img, ok := f.HDU(0).(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("%s: primary HDU is not an image", path)
	}

	hdr := img.Header()
	axes := hdr.Axes()
	if len(axes) < 2 {
		return nil, fmt.Errorf("%s: need at least 2 axes, got %d", path, len(axes))
	}
	cols, rows := axes[0], axes[1]
	if cols == 0 || rows == 0 {
		return nil, fmt.Errorf("%s: empty image %dx%d", path, cols, rows)
	}
	total := 1
	for _, n := range axes {
		total *= n
	}

	data, err := readPixels(img, hdr.Bitpix(), total)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	out := &File{
		Path:    path,
		Planes:  total/(rows*cols) - 1,
		index:   make(map[string]int),
		derived: map[string]float64{"NAXIS": float64(len(axes)), "BITPIX": float64(hdr.Bitpix())},
	}
	for i, n := range axes {
		out.derived[fmt.Sprintf("NAXIS%d", i+1)] = float64(n)
	}
	for i := 0; i < len(hdr.Keys()); i++ {
		card := hdr.Card(i)
		out.cards = append(out.cards, *card)
		out.index[strings.ToUpper(card.Name)] = len(out.cards) - 1
	}

	scale, zero := 1.0, 0.0
	if v, ok := out.Float("BSCALE"); ok {
		scale = v
	}
	if v, ok := out.Float("BZERO"); ok {
		zero = v
	}

	plane := data[:rows*cols]
	if scale != 1 || zero != 0 {
		for i, v := range plane {
			plane[i] = zero + scale*v
		}
	}
	out.Image = &imagestats.Image{Rows: rows, Cols: cols, Data: plane}
	return out, nil
}

// readPixels decodes the raw pixel buffer; fitsio requires the destination
// element size to match BITPIX.
func readPixels(img fitsio.Image, bitpix, n int) ([]float64, error) {
	out := make([]float64, n)
	switch bitpix {
	case 8:
		buf := make([]uint8, n)
		if err := img.Read(&buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case 16:
		buf := make([]int16, n)
		if err := img.Read(&buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case 32:
		buf := make([]int32, n)
		if err := img.Read(&buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case 64:
		buf := make([]int64, n)
		if err := img.Read(&buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case -32:
		buf := make([]float32, n)
		if err := img.Read(&buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case -64:
		if err := img.Read(&out); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
	}
	return out, nil
}

// Float returns a numeric header value. Integer and numeric-string cards are converted.
func (f *File) Float(key string) (float64, bool) {
	i, ok := f.index[strings.ToUpper(key)]
	if !ok {
		v, ok := f.derived[strings.ToUpper(key)]
		return v, ok
	}
	switch v := f.cards[i].Value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case string:
		d, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return d, true
	}
	return 0, false
}

// String returns a string header value.
func (f *File) String(key string) (string, bool) {
	i, ok := f.index[strings.ToUpper(key)]
	if !ok {
		return "", false
	}
	s, ok := f.cards[i].Value.(string)
	return s, ok
}

// Card is a header entry for display.
type Card struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Comment string `json:"comment,omitempty"`
}

// Cards returns the header in file order.
func (f *File) Cards() []Card {
	out := make([]Card, 0, len(f.cards))
	for _, c := range f.cards {
		out = append(out, Card{Name: c.Name, Value: fmt.Sprintf("%v", c.Value), Comment: c.Comment})
	}
	return out
}
