package market

import "context"

// Bar is one historical price bar.
type Bar struct {
	Time   int64   `json:"time"` // unix seconds, bar open
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// BarSize identifies the sampling frequency of a bar series.
type BarSize string

const (
	BarDaily     BarSize = "1d"
	BarHourly    BarSize = "1h"
	Bar30Minutes BarSize = "30m"
	Bar5Minutes  BarSize = "5m"
	Bar1Minute   BarSize = "1m"
)

// Minutes returns the bar length in minutes, or 0 for daily bars.
func (b BarSize) Minutes() int {
	switch b {
	case BarHourly:
		return 60
	case Bar30Minutes:
		return 30
	case Bar5Minutes:
		return 5
	case Bar1Minute:
		return 1
	default:
		return 0
	}
}

// Quote is a best-effort market snapshot. Zero fields mean the venue
// did not deliver that field; callers pick per MidOrLast.
type Quote struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
	Close  float64 `json:"close"`
}

// MidOrLast resolves a usable price in the order the desk prefers:
// last trade, prior close, then bid/ask midpoint. Returns 0 when the
// quote carries nothing usable.
func (q Quote) MidOrLast() float64 {
	if q.Last > 0 {
		return q.Last
	}
	if q.Close > 0 {
		return q.Close
	}
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2
	}
	return 0
}

// Source supplies historical bars and quotes for an underlying symbol.
// Implementations must bound every call with the context or an internal
// client timeout; a source that can hang stalls volatility calculations.
type Source interface {
	FetchBars(ctx context.Context, symbol string, windowDays int, barSize BarSize) ([]Bar, error)
	FetchQuote(ctx context.Context, symbol string) (Quote, error)
}
