// Package colormap turns scalar amplitudes into colors: a threshold triple
// normalizes the magnitude into [0, 1] and a named colormap picks the RGB.
package colormap

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidThresholds is returned when the triple is not ordered or not finite.
var ErrInvalidThresholds = errors.New("invalid thresholds")

// Thresholds is a piecewise-linear normalization. Magnitudes up to Low map to
// 0, magnitudes from High up map to 1. Low..Mid covers [0, 0.5] and Mid..High
// covers [0.5, 1], so Mid is an independent breakpoint.
type Thresholds struct {
	Low  float64 `json:"low"`
	Mid  float64 `json:"mid"`
	High float64 `json:"high"`
}

// DefaultThresholds are the startup values.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 0.0, Mid: 5.5, High: 15.0}
}

// Validate requires Low <= Mid <= High with Low < High.
func (t Thresholds) Validate() error {
	for _, v := range []float64{t.Low, t.Mid, t.High} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value in %+v", ErrInvalidThresholds, t)
		}
	}
	if t.Low > t.Mid || t.Mid > t.High || t.Low >= t.High {
		return fmt.Errorf("%w: need low <= mid <= high and low < high, got %+v", ErrInvalidThresholds, t)
	}
	return nil
}

// Normalize maps the magnitude of x into [0, 1]. NaN maps to 0.
func (t Thresholds) Normalize(x float64) float64 {
	m := math.Abs(x)
	switch {
	case math.IsNaN(m) || m <= t.Low:
		return 0
	case m >= t.High:
		return 1
	case m < t.Mid:
		return 0.5 * (m - t.Low) / (t.Mid - t.Low)
	default:
		return 0.5 + 0.5*(m-t.Mid)/(t.High-t.Mid)
	}
}
