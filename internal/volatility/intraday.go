package volatility

import (
	"fmt"

	"hedgerd/internal/market"

	talib "github.com/markcheno/go-talib"
)

// NATR returns the latest normalized average true range (percent of
// price) over the bar series, a cheap intraday volatility proxy shown
// alongside the close-to-close estimate in analytics snapshots.
func NATR(bars []market.Bar, period int) (float64, error) {
	if period <= 0 {
		period = 14
	}
	if len(bars) <= period {
		return 0, fmt.Errorf("%w: %d bars for NATR period %d", ErrInsufficientData, len(bars), period)
	}
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		if b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			return 0, fmt.Errorf("%w: bar %d has non-positive prices", ErrInsufficientData, i)
		}
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
	}
	out := talib.Natr(highs, lows, closes, period)
	latest := out[len(out)-1]
	if !isFinite(latest) || latest < 0 {
		return 0, fmt.Errorf("%w: NATR produced %v", ErrOutOfRange, latest)
	}
	return latest, nil
}
