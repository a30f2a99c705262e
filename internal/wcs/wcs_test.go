package wcs

import (
	"errors"
	"math"
	"testing"
)

type header map[string]any

func (h header) Float(key string) (float64, bool) {
	v, ok := h[key].(float64)
	return v, ok
}

func (h header) String(key string) (string, bool) {
	v, ok := h[key].(string)
	return v, ok
}

func casaHeader(proj string) header {
	return header{
		"NAXIS":  4.0,
		"CTYPE1": "RA---" + proj,
		"CTYPE2": "DEC--" + proj,
		"CTYPE3": "STOKES",
		"CTYPE4": "FREQ",
		"CRVAL1": 150.0,
		"CRVAL2": 30.0,
		"CRPIX1": 101.0,
		"CRPIX2": 101.0,
		"CDELT1": -1.0 / 3600,
		"CDELT2": 1.0 / 3600,
	}
}

func TestReferencePointMapsToCRPIX(t *testing.T) {
	for _, proj := range []string{"SIN", "TAN", "ARC", "STG", "ZEA"} {
		t.Run(proj, func(t *testing.T) {
			w, err := Parse(casaHeader(proj))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			x, y, err := w.WorldToPixel(150, 30)
			if err != nil {
				t.Fatalf("WorldToPixel: %v", err)
			}
			if math.Abs(x-100) > 1e-9 || math.Abs(y-100) > 1e-9 {
				t.Fatalf("expected (100,100), got (%f,%f)", x, y)
			}
		})
	}
}

func TestOffsetsFollowAxisSigns(t *testing.T) {
	w, err := Parse(casaHeader("SIN"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	// 10 arcsec north is +10 pixels along the latitude axis
	_, y, err := w.WorldToPixel(150, 30+10.0/3600)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(y-110) > 1e-3 {
		t.Fatalf("expected y≈110, got %f", y)
	}

	// RA increases to the left when CDELT1 is negative
	x, _, err := w.WorldToPixel(150+10.0/3600/math.Cos(30*deg), 30)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(x-90) > 1e-3 {
		t.Fatalf("expected x≈90, got %f", x)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, proj := range []string{"SIN", "TAN", "ARC", "STG", "ZEA"} {
		w, err := Parse(casaHeader(proj))
		if err != nil {
			t.Fatalf("%s: Parse: %v", proj, err)
		}
		ra, dec, err := w.PixelToWorld(37.5, 160.25)
		if err != nil {
			t.Fatalf("%s: PixelToWorld: %v", proj, err)
		}
		x, y, err := w.WorldToPixel(ra, dec)
		if err != nil {
			t.Fatalf("%s: WorldToPixel: %v", proj, err)
		}
		if math.Abs(x-37.5) > 1e-9 || math.Abs(y-160.25) > 1e-9 {
			t.Fatalf("%s: round trip gave (%f,%f)", proj, x, y)
		}
	}
}

func TestRoundTripNearReference(t *testing.T) {
	for _, proj := range []string{"SIN", "TAN", "ARC", "STG", "ZEA"} {
		w, err := Parse(casaHeader(proj))
		if err != nil {
			t.Fatalf("%s: Parse: %v", proj, err)
		}
		for _, p := range [][2]float64{{150, 60}, {40, 160}, {101, 99}, {100, 100.5}, {0, 0}} {
			ra, dec, err := w.PixelToWorld(p[0], p[1])
			if err != nil {
				t.Fatalf("%s: PixelToWorld: %v", proj, err)
			}
			x, y, err := w.WorldToPixel(ra, dec)
			if err != nil {
				t.Fatalf("%s: WorldToPixel: %v", proj, err)
			}
			if math.Abs(x-p[0]) > 1e-9 || math.Abs(y-p[1]) > 1e-9 {
				t.Errorf("%s: %v round trip gave (%.12f,%.12f)", proj, p, x, y)
			}
		}
	}
}

func TestCDMatrixPreferred(t *testing.T) {
	h := casaHeader("TAN")
	h["CD1_1"] = -2.0 / 3600
	h["CD2_2"] = 2.0 / 3600
	w, err := Parse(h)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	_, y, err := w.WorldToPixel(150, 30+10.0/3600)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(y-105) > 1e-3 {
		t.Fatalf("expected CD scale to halve the offset, got y=%f", y)
	}
}

func TestFarSideUnprojectable(t *testing.T) {
	w, err := Parse(casaHeader("SIN"))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := w.WorldToPixel(330, -30); !errors.Is(err, ErrUnprojectable) {
		t.Fatalf("expected ErrUnprojectable, got %v", err)
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]func(h header){
		"no celestial axes": func(h header) { delete(h, "CTYPE1"); delete(h, "CTYPE2") },
		"unsupported":       func(h header) { h["CTYPE1"] = "RA---CAR"; h["CTYPE2"] = "DEC--CAR" },
		"missing crval":     func(h header) { delete(h, "CRVAL2") },
		"missing cdelt":     func(h header) { delete(h, "CDELT1") },
		"singular":          func(h header) { h["CDELT1"] = 0.0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			h := casaHeader("SIN")
			mutate(h)
			if _, err := Parse(h); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
