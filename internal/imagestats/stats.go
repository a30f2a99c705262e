package imagestats

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

var (
	// ErrNoData means a reduction saw no finite values.
	ErrNoData = errors.New("no data")
	// ErrZeroRMS means the dynamic range is undefined because the RMS is zero.
	ErrZeroRMS = errors.New("undefined: zero RMS")
)

const (
	// StatsDecimals is the precision of summary statistics.
	StatsDecimals = 3
	// QualityDecimals is the precision of RMS and dynamic range.
	QualityDecimals = 4
)

// Metric is a reduction result that may be undefined.
type Metric struct {
	Value float64
	Err   error
}

// Valid reports whether the metric carries a value.
func (m Metric) Valid() bool { return m.Err == nil }

func (m Metric) String() string {
	if m.Err != nil {
		return m.Err.Error()
	}
	return strconv.FormatFloat(m.Value, 'f', -1, 64)
}

// MarshalJSON renders undefined metrics as null.
func (m Metric) MarshalJSON() ([]byte, error) {
	if m.Err != nil {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

// errDecodedNull stands in for the reason a metric was undefined when it is
// read back from JSON.
var errDecodedNull = errors.New("undefined")

// UnmarshalJSON accepts a number or null.
func (m *Metric) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Metric{Err: errDecodedNull}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Metric{Value: v}
	return nil
}

// Summary holds descriptive statistics over the finite values of a plane.
type Summary struct {
	Size   int     `json:"size"`  // finite values counted
	Total  int     `json:"total"` // all values, including NaN
	Max    float64 `json:"max"`
	Min    float64 `json:"min"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Sigma  float64 `json:"sigma"` // population standard deviation
	Sum    float64 `json:"sum"`
	Empty  bool    `json:"empty"`
}

// Summarize computes the summary of values, ignoring non-finite entries.
// Results are rounded to decimals places. With no finite values Empty is set
// and every statistic is zero.
func Summarize(values []float64, decimals int) Summary {
	fin := finite(values)
	s := Summary{Size: len(fin), Total: len(values)}
	if len(fin) == 0 {
		s.Empty = true
		return s
	}

	data := stats.Float64Data(fin)
	// montanaflynn/stats only fails on empty input, which is excluded above
	s.Max, _ = data.Max()
	s.Min, _ = data.Min()
	s.Mean, _ = data.Mean()
	s.Median, _ = data.Median()
	s.Sigma, _ = data.StandardDeviationPopulation()
	s.Sum, _ = data.Sum()

	for _, p := range []*float64{&s.Max, &s.Min, &s.Mean, &s.Median, &s.Sigma, &s.Sum} {
		*p = scalar.Round(*p, decimals)
	}
	return s
}

// rms is the unrounded root mean square of the finite values.
func rms(values []float64) (float64, error) {
	fin := finite(values)
	if len(fin) == 0 {
		return 0, ErrNoData
	}
	return math.Sqrt(floats.Dot(fin, fin) / float64(len(fin))), nil
}

// RMS is sqrt(mean(v²)) over the finite values, rounded to decimals places.
func RMS(values []float64, decimals int) Metric {
	v, err := rms(values)
	if err != nil {
		return Metric{Err: err}
	}
	return Metric{Value: scalar.Round(v, decimals)}
}

// DynamicRange is peak / rms over the finite values, rounded to decimals places.
// The unrounded RMS is used as the divisor.
func DynamicRange(values []float64, decimals int) Metric {
	r, err := rms(values)
	if err != nil {
		return Metric{Err: err}
	}
	if r == 0 {
		return Metric{Err: ErrZeroRMS}
	}
	peak := floats.Max(finite(values))
	return Metric{Value: scalar.Round(peak/r, decimals)}
}

// Quality bundles the noise level and dynamic range of a plane.
type Quality struct {
	RMS Metric `json:"rms"`
	DR  Metric `json:"dr"`
}

// Measure computes Quality with the given rounding.
func Measure(values []float64, decimals int) Quality {
	return Quality{RMS: RMS(values, decimals), DR: DynamicRange(values, decimals)}
}
