// Package volatility estimates realized volatility from historical
// price series.
package volatility

import (
	"errors"
	"fmt"
	"math"
)

// ErrInsufficientData reports a series too small or too dirty to
// estimate from. Surfaced to users as "N/A", never as a zero estimate.
var ErrInsufficientData = errors.New("insufficient data for volatility estimate")

// LogReturns computes the N-1 log returns ln(p[i]/p[i-1]) of a
// chronological price series. Non-positive prices are dropped before
// differencing and non-finite returns after; at least 2 valid prices
// must remain.
func LogReturns(prices []float64) ([]float64, error) {
	valid := make([]float64, 0, len(prices))
	for _, p := range prices {
		if isFinite(p) && p > 0 {
			valid = append(valid, p)
		}
	}
	if len(valid) < 2 {
		return nil, fmt.Errorf("%w: %d valid prices, need at least 2", ErrInsufficientData, len(valid))
	}
	returns := make([]float64, 0, len(valid)-1)
	for i := 1; i < len(valid); i++ {
		r := math.Log(valid[i] / valid[i-1])
		if isFinite(r) {
			returns = append(returns, r)
		}
	}
	if len(returns) == 0 {
		return nil, fmt.Errorf("%w: no finite returns", ErrInsufficientData)
	}
	return returns, nil
}

// filterOutliers drops returns more than 4 population standard
// deviations from the mean. When that would remove over 20% of the
// sample the series is treated as unreliable instead.
func filterOutliers(returns []float64) ([]float64, error) {
	if len(returns) < 2 {
		return returns, nil
	}
	mean := meanOf(returns)
	var sumSq float64
	for _, r := range returns {
		d := r - mean
		sumSq += d * d
	}
	std := math.Sqrt(sumSq / float64(len(returns)))
	if std == 0 {
		return returns, nil
	}
	kept := make([]float64, 0, len(returns))
	for _, r := range returns {
		if math.Abs(r-mean) <= 4*std {
			kept = append(kept, r)
		}
	}
	if float64(len(kept)) < 0.8*float64(len(returns)) {
		return nil, fmt.Errorf("%w: outlier filter would drop %d of %d returns", ErrInsufficientData, len(returns)-len(kept), len(returns))
	}
	return kept, nil
}

// sampleStdDev is the ddof=1 standard deviation.
func sampleStdDev(values []float64) (float64, error) {
	if len(values) < 2 {
		return 0, fmt.Errorf("%w: %d returns, sample stddev needs at least 2", ErrInsufficientData, len(values))
	}
	mean := meanOf(values)
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1)), nil
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
