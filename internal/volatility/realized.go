package volatility

import (
	"errors"
	"fmt"
	"math"

	"hedgerd/internal/market"
)

// ErrOutOfRange reports an annualized estimate beyond the sanity
// ceiling when clamping is not enabled.
var ErrOutOfRange = errors.New("volatility estimate out of range")

const (
	// TradingDaysPerYear is the annualization base for daily bars.
	TradingDaysPerYear = 252
	// tradingMinutesPerDay covers the regular 6.5h US session.
	tradingMinutesPerDay = 6.5 * 60
	// DefaultCeiling caps annualized estimates at 500%.
	DefaultCeiling = 5.0
)

// Method tags how an estimate was produced.
type Method string

const (
	MethodCloseToClose Method = "close_to_close"
	MethodParkinson    Method = "parkinson"
	MethodBlended      Method = "blended"
	MethodImplied      Method = "implied"
)

// Estimate is one annualized volatility sample.
type Estimate struct {
	Value      float64 `json:"value"`
	Method     Method  `json:"method"`
	WindowDays int     `json:"window_days"`
	Samples    int     `json:"samples"`
	Capped     bool    `json:"capped,omitempty"`
}

// Options tunes the realized estimator.
type Options struct {
	WindowDays int
	BarSize    market.BarSize
	// Parkinson blends the high-low range estimator with the
	// close-to-close estimate when high/low data is present.
	Parkinson bool
	// Ceiling caps the annualized value; 0 means DefaultCeiling.
	Ceiling float64
	// ClampAtCap treats the ceiling as a policy clamp (flagged in the
	// estimate) instead of a computation failure.
	ClampAtCap bool
}

func (o Options) ceiling() float64 {
	if o.Ceiling > 0 {
		return o.Ceiling
	}
	return DefaultCeiling
}

// AnnualizationFactor returns the factor whose square root scales a
// per-bar standard deviation to annual terms: 252 for daily bars,
// 252 * 390 / bar_minutes for intraday bars.
func AnnualizationFactor(barSize market.BarSize) float64 {
	minutes := barSize.Minutes()
	if minutes <= 0 {
		return TradingDaysPerYear
	}
	return TradingDaysPerYear * tradingMinutesPerDay / float64(minutes)
}

// Realized estimates annualized volatility from a bar series.
//
// Close-to-close: 4-sigma outlier exclusion, sample stddev (ddof=1) of
// log returns, scaled by sqrt(annualization factor). A flat series
// yields 0, not an error. With Options.Parkinson set and usable
// high/low fields, the Parkinson range estimator
// sqrt(mean(ln(high/low)^2) / (4 ln 2)) is computed as well and the two
// estimates averaged.
func Realized(bars []market.Bar, opts Options) (Estimate, error) {
	closes := make([]float64, 0, len(bars))
	for _, b := range bars {
		closes = append(closes, b.Close)
	}
	returns, err := LogReturns(closes)
	if err != nil {
		return Estimate{}, err
	}
	returns, err = filterOutliers(returns)
	if err != nil {
		return Estimate{}, err
	}
	perBar, err := sampleStdDev(returns)
	if err != nil {
		return Estimate{}, err
	}

	factor := AnnualizationFactor(opts.BarSize)
	annual := perBar * math.Sqrt(factor)
	method := MethodCloseToClose

	if opts.Parkinson {
		if pk, ok := parkinson(bars); ok {
			annual = (annual + pk*math.Sqrt(factor)) / 2
			method = MethodBlended
		}
	}

	if !isFinite(annual) || annual < 0 {
		return Estimate{}, fmt.Errorf("%w: annualized value %v", ErrOutOfRange, annual)
	}
	est := Estimate{
		Value:      annual,
		Method:     method,
		WindowDays: opts.WindowDays,
		Samples:    len(returns),
	}
	if ceil := opts.ceiling(); annual > ceil {
		if !opts.ClampAtCap {
			return Estimate{}, fmt.Errorf("%w: %v exceeds ceiling %v", ErrOutOfRange, annual, ceil)
		}
		est.Value = ceil
		est.Capped = true
	}
	return est, nil
}

// parkinson computes the per-bar high-low range estimator. Bars without
// a usable high/low pair are skipped; ok is false when fewer than 2
// bars contribute.
func parkinson(bars []market.Bar) (float64, bool) {
	var sumSq float64
	n := 0
	for _, b := range bars {
		if b.High <= 0 || b.Low <= 0 || b.High < b.Low {
			continue
		}
		r := math.Log(b.High / b.Low)
		if !isFinite(r) {
			continue
		}
		sumSq += r * r
		n++
	}
	if n < 2 {
		return 0, false
	}
	return math.Sqrt(sumSq / (4 * math.Ln2 * float64(n))), true
}
