package imagestats

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func filled(rows, cols int, f func(r, c int) float64) *Image {
	img := NewImage(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			img.Set(r, c, f(r, c))
		}
	}
	return img
}

func TestMaskWindowAroundCenter(t *testing.T) {
	m := NewMask(200, 200, []Pixel{{Row: 100, Col: 100}}, 50)
	for r := 0; r < 200; r++ {
		for c := 0; c < 200; c++ {
			want := r >= 50 && r <= 149 && c >= 50 && c <= 149
			if m.At(r, c) != want {
				t.Fatalf("pixel (%d,%d): got %v, want %v", r, c, m.At(r, c), want)
			}
		}
	}
	if m.Count() != 100*100 {
		t.Fatalf("expected 10000 selected pixels, got %d", m.Count())
	}
}

func TestMaskClampsAtEdges(t *testing.T) {
	cases := []struct {
		name   string
		center Pixel
		want   int
	}{
		{"corner", Pixel{Row: 10.7, Col: 190.2}, 60 * 60},
		{"outside", Pixel{Row: -500, Col: 20}, 0},
		{"negative partial", Pixel{Row: -20.5, Col: 100}, 29 * 100},
		{"nan", Pixel{Row: math.NaN(), Col: 5}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMask(200, 200, []Pixel{tc.center}, 50)
			if got := m.Count(); got != tc.want {
				t.Fatalf("selected %d, want %d", got, tc.want)
			}
		})
	}
}

func TestOnOffMasksAreComplements(t *testing.T) {
	centers := []Pixel{{Row: 5, Col: 5}, {Row: 30, Col: 12}, {Row: 31, Col: 13}}
	on := NewMask(40, 25, centers, 4)
	off := on.Invert()
	for r := 0; r < 40; r++ {
		for c := 0; c < 25; c++ {
			if on.At(r, c) == off.At(r, c) {
				t.Fatalf("pixel (%d,%d) is not complementary", r, c)
			}
		}
	}
}

func TestApplyAndFillReconstructOriginal(t *testing.T) {
	img := filled(30, 20, func(r, c int) float64 { return float64(r*100 + c) })
	img.Set(3, 3, math.NaN())
	m := NewMask(30, 20, []Pixel{{Row: 10, Col: 10}}, 5)

	on, err := m.Apply(img)
	if err != nil {
		t.Fatal(err)
	}
	off, err := m.Invert().Apply(img)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(on.At(0, 0)) || on.At(10, 10) != 1010 {
		t.Fatalf("on-source plane kept the wrong pixels")
	}
	if !math.IsNaN(off.At(10, 10)) || off.At(0, 0) != 0 {
		t.Fatalf("off-source plane kept the wrong pixels")
	}

	back, err := m.Fill(on, off)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range img.Data {
		got := back.Data[i]
		if got != want && !(math.IsNaN(got) && math.IsNaN(want)) {
			t.Fatalf("index %d: got %v, want %v", i, got, want)
		}
	}
}

func TestApplyRejectsShapeMismatch(t *testing.T) {
	m := NewMask(2, 2, nil, 1)
	if _, err := m.Apply(NewImage(3, 2)); err == nil {
		t.Fatal("expected shape error")
	}
}

func TestSummarizeIgnoresNaN(t *testing.T) {
	s := Summarize([]float64{1, 2, 3, 4, math.NaN()}, StatsDecimals)
	if s.Empty {
		t.Fatal("summary should not be empty")
	}
	checks := []struct {
		name      string
		got, want float64
	}{
		{"mean", s.Mean, 2.5},
		{"max", s.Max, 4},
		{"min", s.Min, 1},
		{"median", s.Median, 2.5},
		{"sum", s.Sum, 10},
		{"sigma", s.Sigma, 1.118},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if s.Size != 4 || s.Total != 5 {
		t.Errorf("size=%d total=%d, want 4 and 5", s.Size, s.Total)
	}
}

func TestSummarizeRoundsToDecimals(t *testing.T) {
	s := Summarize([]float64{-1.23456, 2.34567}, 2)
	if s.Min != -1.23 || s.Max != 2.35 || s.Sum != 1.11 || s.Mean != 0.56 || s.Median != 0.56 {
		t.Fatalf("unexpected rounding %+v", s)
	}
}

func TestSummarizeAllNaN(t *testing.T) {
	s := Summarize([]float64{math.NaN(), math.Inf(1), math.NaN()}, StatsDecimals)
	if !s.Empty || s.Size != 0 || s.Total != 3 {
		t.Fatalf("expected empty summary, got %+v", s)
	}
	if s.Max != 0 || s.Mean != 0 {
		t.Fatalf("empty summary should carry zeros, got %+v", s)
	}
}

func TestRMSAndDynamicRange(t *testing.T) {
	vals := []float64{3, 4, math.NaN()}
	rms := RMS(vals, QualityDecimals)
	if !rms.Valid() || rms.Value != 3.5355 {
		t.Fatalf("RMS = %v", rms)
	}
	dr := DynamicRange(vals, QualityDecimals)
	if !dr.Valid() || dr.Value != 1.1314 {
		t.Fatalf("DR = %v", dr)
	}
}

func TestRMSNonNegative(t *testing.T) {
	rms := RMS([]float64{-5, -1, -2}, QualityDecimals)
	if !rms.Valid() || rms.Value < 0 {
		t.Fatalf("RMS must be non-negative, got %v", rms)
	}
}

func TestUndefinedMetrics(t *testing.T) {
	q := Measure([]float64{math.NaN(), math.NaN()}, QualityDecimals)
	if !errors.Is(q.RMS.Err, ErrNoData) || !errors.Is(q.DR.Err, ErrNoData) {
		t.Fatalf("expected no-data metrics, got %+v", q)
	}

	zero := Measure([]float64{0, 0, 0}, QualityDecimals)
	if !zero.RMS.Valid() || zero.RMS.Value != 0 {
		t.Fatalf("zero plane RMS should be 0, got %v", zero.RMS)
	}
	if !errors.Is(zero.DR.Err, ErrZeroRMS) {
		t.Fatalf("zero RMS must leave DR undefined, got %v", zero.DR)
	}
	if zero.DR.String() != ErrZeroRMS.Error() {
		t.Fatalf("unexpected DR text %q", zero.DR.String())
	}

	raw, err := json.Marshal(zero)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"rms":0,"dr":null}` {
		t.Fatalf("unexpected JSON %s", raw)
	}

	var back Quality
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	if !back.RMS.Valid() || back.RMS.Value != 0 || back.DR.Valid() {
		t.Fatalf("decoded %+v", back)
	}
}

func TestHistogram(t *testing.T) {
	h := NewHistogram([]float64{0, 1, 2, 3, 4, math.NaN()}, 4)
	if len(h.Edges) != 5 || len(h.Counts) != 4 {
		t.Fatalf("unexpected shape: %d edges, %d counts", len(h.Edges), len(h.Counts))
	}
	total := 0.0
	for _, c := range h.Counts {
		total += c
	}
	if total != 5 {
		t.Fatalf("expected 5 binned values, got %v", total)
	}
	// the maximum lands in the last bin
	if h.Counts[3] != 2 {
		t.Fatalf("last bin = %v, want 2", h.Counts[3])
	}

	constant := NewHistogram([]float64{7, 7, 7}, 128)
	if len(constant.Counts) != 1 || constant.Counts[0] != 3 {
		t.Fatalf("constant histogram = %+v", constant)
	}

	if empty := NewHistogram([]float64{math.NaN()}, 128); len(empty.Counts) != 0 {
		t.Fatalf("expected empty histogram, got %+v", empty)
	}
}

func TestSelectionRounding(t *testing.T) {
	cases := []struct {
		name string
		sel  Selection
		want Bounds
	}{
		{"fractional edges", Selection{X0: 10.4, X1: 20.6, Y0: 10.4, Y1: 20.6}, Bounds{R0: 10, R1: 21, C0: 10, C1: 21}},
		{"half to even", Selection{X0: 10.5, X1: 11.5, Y0: 2.5, Y1: 3.5}, Bounds{R0: 2, R1: 4, C0: 10, C1: 12}},
		{"reversed", Selection{X0: 20, X1: 10, Y0: 5, Y1: 1}, Bounds{R0: 1, R1: 5, C0: 10, C1: 20}},
		{"clamped", Selection{X0: -30, X1: 500, Y0: -0.4, Y1: 45}, Bounds{R0: 0, R1: 40, C0: 0, C1: 50}},
		{"outside", Selection{X0: 60, X1: 80, Y0: 0, Y1: 10}, Bounds{R0: 0, R1: 10, C0: 50, C1: 50}},
		{"nan", Selection{X0: math.NaN(), X1: 5, Y0: 0, Y1: math.Inf(1)}, Bounds{R0: 0, R1: 40, C0: 0, C1: 5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.sel.Bounds(40, 50)
			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestSelectionRegion(t *testing.T) {
	img := filled(40, 50, func(r, c int) float64 { return float64(r*1000 + c) })
	sub, b := Selection{X0: 10, X1: 12, Y0: 3, Y1: 6}.Region(img)
	if b.Empty() {
		t.Fatal("bounds should not be empty")
	}
	if sub.Rows != 3 || sub.Cols != 2 {
		t.Fatalf("expected 3x2 region, got %dx%d", sub.Rows, sub.Cols)
	}
	if sub.At(0, 0) != 3010 || sub.At(2, 1) != 5011 {
		t.Fatalf("region picked the wrong pixels: %v", sub.Data)
	}

	empty, b := Selection{X0: 70, X1: 80, Y0: 0, Y1: 5}.Region(img)
	if !b.Empty() || len(empty.Data) != 0 {
		t.Fatalf("expected empty region, got %+v", b)
	}
	if q := Measure(empty.Data, QualityDecimals); q.RMS.Valid() {
		t.Fatal("empty region must report no data")
	}
}
