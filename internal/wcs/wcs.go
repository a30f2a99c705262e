// Package wcs converts celestial directions to image pixel coordinates for
// FITS images that use one of the zenithal projections (SIN, TAN, ARC, STG, ZEA).
//
// Only the two celestial axes are modelled; spectral and Stokes axes that
// radio images usually carry are ignored.
package wcs

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

const deg = math.Pi / 180

// ErrUnprojectable is returned for directions that have no image on the projection plane.
var ErrUnprojectable = errors.New("wcs: direction outside projection domain")

// Keywords gives typed access to FITS header values.
type Keywords interface {
	Float(key string) (float64, bool)
	String(key string) (string, bool)
}

// Projection is a zenithal projection code.
type Projection string

const (
	SIN Projection = "SIN"
	TAN Projection = "TAN"
	ARC Projection = "ARC"
	STG Projection = "STG"
	ZEA Projection = "ZEA"
)

// WCS is the celestial part of an image's world coordinate system.
type WCS struct {
	Projection Projection
	LngAxis    int // 1-based FITS axis carrying longitude (RA)
	LatAxis    int // 1-based FITS axis carrying latitude (Dec)
	CRVAL      [2]float64
	CRPIX      [2]float64
	LonPole    float64

	// pix2int maps pixel offsets from CRPIX to intermediate world degrees;
	// int2pix is its inverse.
	pix2int *mat.Dense
	int2pix *mat.Dense
}

// Parse builds a WCS from header keywords.
func Parse(kw Keywords) (*WCS, error) {
	lng, lat, proj, err := celestialAxes(kw)
	if err != nil {
		return nil, err
	}

	w := &WCS{Projection: proj, LngAxis: lng, LatAxis: lat}
	axes := [2]int{lng, lat}
	for i, ax := range axes {
		v, ok := kw.Float(fmt.Sprintf("CRVAL%d", ax))
		if !ok {
			return nil, fmt.Errorf("wcs: missing CRVAL%d", ax)
		}
		w.CRVAL[i] = v
		p, ok := kw.Float(fmt.Sprintf("CRPIX%d", ax))
		if !ok {
			return nil, fmt.Errorf("wcs: missing CRPIX%d", ax)
		}
		w.CRPIX[i] = p
	}

	w.pix2int, err = linearTransform(kw, axes)
	if err != nil {
		return nil, err
	}
	w.int2pix = mat.NewDense(2, 2, nil)
	if err := w.int2pix.Inverse(w.pix2int); err != nil {
		return nil, fmt.Errorf("wcs: singular pixel transform: %w", err)
	}

	// zenithal projections put the reference point at the native pole
	w.LonPole = 180
	if w.CRVAL[1] >= 90 {
		w.LonPole = 0
	}
	if v, ok := kw.Float("LONPOLE"); ok {
		w.LonPole = v
	}
	return w, nil
}

func celestialAxes(kw Keywords) (lng, lat int, proj Projection, err error) {
	naxis := 2
	if n, ok := kw.Float("NAXIS"); ok && int(n) > naxis {
		naxis = int(n)
	}
	var lngProj, latProj string
	for ax := 1; ax <= naxis; ax++ {
		ctype, ok := kw.String(fmt.Sprintf("CTYPE%d", ax))
		if !ok {
			continue
		}
		ctype = strings.ToUpper(strings.TrimSpace(ctype))
		code := ""
		if len(ctype) >= 8 {
			code = strings.TrimSpace(ctype[5:8])
		}
		switch {
		case strings.HasPrefix(ctype, "RA-") || strings.HasPrefix(ctype, "GLON") || strings.HasPrefix(ctype, "ELON"):
			lng, lngProj = ax, code
		case strings.HasPrefix(ctype, "DEC-") || strings.HasPrefix(ctype, "GLAT") || strings.HasPrefix(ctype, "ELAT"):
			lat, latProj = ax, code
		}
	}
	if lng == 0 || lat == 0 {
		return 0, 0, "", errors.New("wcs: no celestial axis pair in CTYPEn")
	}
	if lngProj != latProj {
		return 0, 0, "", fmt.Errorf("wcs: mismatched projections %q and %q", lngProj, latProj)
	}
	switch p := Projection(lngProj); p {
	case SIN, TAN, ARC, STG, ZEA:
		return lng, lat, p, nil
	default:
		return 0, 0, "", fmt.Errorf("wcs: unsupported projection %q", lngProj)
	}
}

// linearTransform returns the 2x2 matrix taking pixel offsets to intermediate
// world coordinates, from CDi_j when present and PCi_j*CDELTi otherwise.
func linearTransform(kw Keywords, axes [2]int) (*mat.Dense, error) {
	m := mat.NewDense(2, 2, nil)

	hasCD := false
	for i, ai := range axes {
		for j, aj := range axes {
			if v, ok := kw.Float(fmt.Sprintf("CD%d_%d", ai, aj)); ok {
				m.Set(i, j, v)
				hasCD = true
			}
		}
	}
	if hasCD {
		return m, nil
	}

	for i, ai := range axes {
		cdelt, ok := kw.Float(fmt.Sprintf("CDELT%d", ai))
		if !ok {
			return nil, fmt.Errorf("wcs: missing CDELT%d", ai)
		}
		for j, aj := range axes {
			pc := 0.0
			if i == j {
				pc = 1
			}
			if v, ok := kw.Float(fmt.Sprintf("PC%d_%d", ai, aj)); ok {
				pc = v
			} else if v, ok := kw.Float(fmt.Sprintf("PC%03d%03d", ai, aj)); ok {
				pc = v
			}
			m.Set(i, j, cdelt*pc)
		}
	}
	return m, nil
}

// WorldToPixel converts (ra, dec) in degrees to 0-based pixel coordinates
// along the longitude and latitude axes.
func (w *WCS) WorldToPixel(ra, dec float64) (x, y float64, err error) {
	sinPhi, cosPhi, sinTheta, cosTheta := w.native(ra, dec)

	r, err := w.radius(sinTheta, cosTheta)
	if err != nil {
		return math.NaN(), math.NaN(), err
	}
	ix := r * sinPhi
	iy := -r * cosPhi

	var off mat.VecDense
	off.MulVec(w.int2pix, mat.NewVecDense(2, []float64{ix, iy}))

	// CRPIX is 1-based
	return off.AtVec(0) + w.CRPIX[0] - 1, off.AtVec(1) + w.CRPIX[1] - 1, nil
}

// PixelToWorld is the inverse of WorldToPixel.
func (w *WCS) PixelToWorld(x, y float64) (ra, dec float64, err error) {
	var iw mat.VecDense
	iw.MulVec(w.pix2int, mat.NewVecDense(2, []float64{x + 1 - w.CRPIX[0], y + 1 - w.CRPIX[1]}))
	ix, iy := iw.AtVec(0), iw.AtVec(1)

	r := math.Hypot(ix, iy)
	phi := 0.0
	if r != 0 {
		phi = math.Atan2(ix, -iy) / deg
	}
	theta, err := w.theta(r)
	if err != nil {
		return math.NaN(), math.NaN(), err
	}
	return w.celestial(phi, theta)
}

// native returns the native longitude and latitude of (ra, dec) as sines and
// cosines. Angles are never formed near the reference point, where theta is
// close to 90 and asin loses most of its precision.
func (w *WCS) native(ra, dec float64) (sinPhi, cosPhi, sinTheta, cosTheta float64) {
	d0 := w.CRVAL[1] * deg
	d := dec * deg
	da := (ra - w.CRVAL[0]) * deg

	sh := math.Sin(da / 2)
	a := -math.Cos(d) * math.Sin(da)
	b := math.Sin(d-d0) + 2*math.Cos(d)*math.Sin(d0)*sh*sh
	sinTheta = math.Sin(d)*math.Sin(d0) + math.Cos(d)*math.Cos(d0)*math.Cos(da)
	cosTheta = math.Hypot(a, b)
	if cosTheta == 0 {
		return 0, 1, sinTheta, 0
	}

	// phi = LONPOLE + atan2(a, b)
	sinL, cosL := math.Sincos(w.LonPole * deg)
	sa, ca := a/cosTheta, b/cosTheta
	return sinL*ca + cosL*sa, cosL*ca - sinL*sa, sinTheta, cosTheta
}

func (w *WCS) celestial(phi, theta float64) (ra, dec float64, err error) {
	a0, d0 := w.CRVAL[0]*deg, w.CRVAL[1]*deg
	p, t := (phi-w.LonPole)*deg, theta*deg

	d := math.Asin(math.Sin(t)*math.Sin(d0) + math.Cos(t)*math.Cos(d0)*math.Cos(p))
	a := a0 + math.Atan2(
		-math.Cos(t)*math.Sin(p),
		math.Sin(t)*math.Cos(d0)-math.Cos(t)*math.Sin(d0)*math.Cos(p),
	)
	ra = math.Mod(a/deg, 360)
	if ra < 0 {
		ra += 360
	}
	return ra, d / deg, nil
}

// radius is R(theta) in degrees for the projection.
func (w *WCS) radius(sinTheta, cosTheta float64) (float64, error) {
	switch w.Projection {
	case SIN:
		if sinTheta < 0 {
			return 0, ErrUnprojectable
		}
		return cosTheta / deg, nil
	case TAN:
		if sinTheta <= 0 {
			return 0, ErrUnprojectable
		}
		return cosTheta / sinTheta / deg, nil
	case ARC:
		return math.Atan2(cosTheta, sinTheta) / deg, nil
	case STG:
		if 1+sinTheta <= 0 {
			return 0, ErrUnprojectable
		}
		return 2 * cosTheta / (1 + sinTheta) / deg, nil
	case ZEA:
		return 2 * math.Sin(math.Atan2(cosTheta, sinTheta)/2) / deg, nil
	}
	return 0, fmt.Errorf("wcs: unsupported projection %q", w.Projection)
}

// theta inverts radius.
func (w *WCS) theta(r float64) (float64, error) {
	rr := r * deg
	switch w.Projection {
	case SIN:
		if rr > 1 {
			return 0, ErrUnprojectable
		}
		return math.Acos(rr) / deg, nil
	case TAN:
		return math.Atan2(1, rr) / deg, nil
	case ARC:
		return 90 - r, nil
	case STG:
		return 90 - 2*math.Atan(rr/2)/deg, nil
	case ZEA:
		if rr > 2 {
			return 0, ErrUnprojectable
		}
		return 90 - 2*math.Asin(rr/2)/deg, nil
	}
	return 0, fmt.Errorf("wcs: unsupported projection %q", w.Projection)
}
