package fitsimg

import (
	"fmt"
	"os"

	"github.com/astrogo/fitsio"
)

// Write stores a 2-D float64 plane as a BITPIX -64 FITS primary image with
// the given header cards. Extra degenerate axes can be requested through axes.
func Write(path string, rows, cols int, data []float64, cards []fitsio.Card, axes ...int) error {
	if len(data) != rows*cols {
		return fmt.Errorf("data length %d does not match %dx%d", len(data), rows, cols)
	}

	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	f, err := fitsio.Create(fh)
	if err != nil {
		return err
	}
	defer f.Close()

	dims := append([]int{cols, rows}, axes...)
	im := fitsio.NewImage(-64, dims)
	defer im.Close()
	if err := im.Header().Append(cards...); err != nil {
		return err
	}
	if err := im.Write(data); err != nil {
		return err
	}
	return f.Write(im)
}
