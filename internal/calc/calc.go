// Package calc is the on-demand analytics entry point: implied
// volatility from the listed ATM straddle, realized volatility from
// historical bars, and a combined snapshot. It sits outside the hedge
// loop; a failed calculation is an N/A answer, never a hedging event.
package calc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"hedgerd/internal/gateway/broker"
	"hedgerd/internal/instrument"
	"hedgerd/internal/logger"
	"hedgerd/internal/market"
	"hedgerd/internal/pricing"
	"hedgerd/internal/volatility"
)

// ErrDataUnavailable marks calculations that failed for lack of usable
// market data. Callers surface it as "N/A".
var ErrDataUnavailable = errors.New("market data unavailable")

// minCompleteness is the fraction of expected bars a history response
// must carry before realized volatility is computed from it.
const minCompleteness = 0.8

// Config tunes the calculators.
type Config struct {
	RiskFreeRate float64
	WindowDays   int
	BarSize      market.BarSize
	Parkinson    bool
	NATRPeriod   int
}

func (c Config) withDefaults() Config {
	if c.WindowDays <= 0 {
		c.WindowDays = 30
	}
	if c.BarSize == "" {
		c.BarSize = market.BarDaily
	}
	if c.NATRPeriod <= 0 {
		c.NATRPeriod = 14
	}
	return c
}

// Service bundles the pricing and volatility kernels with market data
// access.
type Service struct {
	greeks broker.Broker
	chains broker.ChainProvider
	source market.Source
	cfg    Config

	nowFn func() time.Time
}

func NewService(b broker.Broker, chains broker.ChainProvider, source market.Source, cfg Config) *Service {
	return &Service{
		greeks: b,
		chains: chains,
		source: source,
		cfg:    cfg.withDefaults(),
		nowFn:  time.Now,
	}
}

// IVResult reports one straddle-implied volatility calculation.
type IVResult struct {
	Symbol  string  `json:"symbol"`
	Value   float64 `json:"value"`
	Spot    float64 `json:"spot"`
	Strike  float64 `json:"strike"`
	Expiry  string  `json:"expiry"` // YYYYMMDD
	CallIV  float64 `json:"call_iv,omitempty"`
	PutIV   float64 `json:"put_iv,omitempty"`
	Legs    int     `json:"legs"` // IVs that converged, 1 or 2
	TimeYrs float64 `json:"time_years"`
}

// ImpliedVol estimates the symbol's at-the-money implied volatility:
// nearest listed expiry, strike closest to spot, both straddle legs
// solved independently and averaged when both converge.
func (s *Service) ImpliedVol(ctx context.Context, symbol string) (IVResult, error) {
	quote, err := s.source.FetchQuote(ctx, symbol)
	if err != nil {
		return IVResult{}, fmt.Errorf("%w: quote %s: %v", ErrDataUnavailable, symbol, err)
	}
	spot := quote.MidOrLast()
	if spot <= 0 {
		return IVResult{}, fmt.Errorf("%w: no usable price for %s", ErrDataUnavailable, symbol)
	}

	chain, err := s.chains.OptionChain(ctx, symbol)
	if err != nil {
		return IVResult{}, fmt.Errorf("%w: option chain %s: %v", ErrDataUnavailable, symbol, err)
	}
	expiry, tYears, err := s.nearestExpiry(chain.Expiries)
	if err != nil {
		return IVResult{}, err
	}
	strike, err := atmStrike(chain.Strikes, spot)
	if err != nil {
		return IVResult{}, err
	}

	result := IVResult{
		Symbol:  symbol,
		Spot:    spot,
		Strike:  strike,
		Expiry:  expiry.Format("20060102"),
		TimeYrs: tYears,
	}
	var sum float64
	for _, right := range []instrument.Right{instrument.Call, instrument.Put} {
		iv, err := s.legIV(ctx, symbol, expiry, spot, strike, tYears, right, chain.Multiplier)
		if err != nil {
			logger.Warnf("calc: %s %s leg IV unavailable: %v", symbol, right, err)
			continue
		}
		sum += iv
		result.Legs++
		if right == instrument.Call {
			result.CallIV = iv
		} else {
			result.PutIV = iv
		}
	}
	if result.Legs == 0 {
		return IVResult{}, fmt.Errorf("%w: no straddle leg produced an IV for %s", ErrDataUnavailable, symbol)
	}
	result.Value = sum / float64(result.Legs)
	return result, nil
}

func (s *Service) legIV(ctx context.Context, symbol string, expiry time.Time, spot, strike, tYears float64, right instrument.Right, multiplier int) (float64, error) {
	opt := instrument.Option{
		Underlying: symbol,
		Expiry:     expiry,
		Strike:     strike,
		Right:      right,
		Multiplier: multiplier,
	}
	g, err := s.greeks.ContractGreeks(ctx, opt)
	if err != nil {
		return 0, err
	}
	marketPrice := g.Quote.MidOrLast()
	if marketPrice <= 0 {
		return 0, fmt.Errorf("%w: no quote for %s", ErrDataUnavailable, opt.Key())
	}
	return pricing.ImpliedVolForRight(marketPrice, spot, strike, tYears, s.cfg.RiskFreeRate, right)
}

// nearestExpiry picks the closest listed expiry still in the future.
func (s *Service) nearestExpiry(expiries []string) (time.Time, float64, error) {
	now := s.nowFn()
	var best time.Time
	for _, raw := range expiries {
		parsed, err := time.Parse("20060102", raw)
		if err != nil {
			continue
		}
		// Options expire end of day.
		parsed = parsed.Add(24 * time.Hour)
		if !parsed.After(now) {
			continue
		}
		if best.IsZero() || parsed.Before(best) {
			best = parsed
		}
	}
	if best.IsZero() {
		return time.Time{}, 0, fmt.Errorf("%w: no future expiry listed", ErrDataUnavailable)
	}
	tYears := best.Sub(now).Hours() / 24 / 365
	return best.Add(-24 * time.Hour), tYears, nil
}

func atmStrike(strikes []float64, spot float64) (float64, error) {
	best := math.NaN()
	for _, k := range strikes {
		if k <= 0 {
			continue
		}
		if math.IsNaN(best) || math.Abs(k-spot) < math.Abs(best-spot) {
			best = k
		}
	}
	if math.IsNaN(best) {
		return 0, fmt.Errorf("%w: no usable strikes listed", ErrDataUnavailable)
	}
	return best, nil
}

// RealizedVol estimates annualized realized volatility over windowDays
// of bars. Responses carrying under 80% of the expected bar count are
// treated as unusable data rather than silently producing a thin
// estimate.
func (s *Service) RealizedVol(ctx context.Context, symbol string, windowDays int) (volatility.Estimate, error) {
	if windowDays <= 0 {
		windowDays = s.cfg.WindowDays
	}
	bars, err := s.source.FetchBars(ctx, symbol, windowDays, s.cfg.BarSize)
	if err != nil {
		return volatility.Estimate{}, fmt.Errorf("%w: bars %s: %v", ErrDataUnavailable, symbol, err)
	}
	if expected := expectedBars(windowDays, s.cfg.BarSize); len(bars) < int(minCompleteness*float64(expected)) {
		return volatility.Estimate{}, fmt.Errorf("%w: %s history incomplete: %d of %d bars",
			ErrDataUnavailable, symbol, len(bars), expected)
	}
	est, err := volatility.Realized(bars, volatility.Options{
		WindowDays: windowDays,
		BarSize:    s.cfg.BarSize,
		Parkinson:  s.cfg.Parkinson,
	})
	if err != nil {
		return volatility.Estimate{}, fmt.Errorf("realized vol %s: %w", symbol, err)
	}
	return est, nil
}

// expectedBars approximates how many bars a complete history response
// holds: 5 trading days per 7 calendar days, 390 session minutes for
// intraday bars.
func expectedBars(windowDays int, barSize market.BarSize) int {
	tradingDays := windowDays * 5 / 7
	if tradingDays < 2 {
		tradingDays = 2
	}
	minutes := barSize.Minutes()
	if minutes <= 0 {
		return tradingDays
	}
	return tradingDays * 390 / minutes
}

// Snapshot is the combined analytics answer for one symbol. Failed
// components are nil with the reason recorded alongside.
type Snapshot struct {
	Symbol      string               `json:"symbol"`
	Implied     *IVResult            `json:"implied,omitempty"`
	ImpliedErr  string               `json:"implied_error,omitempty"`
	Realized    *volatility.Estimate `json:"realized,omitempty"`
	RealizedErr string               `json:"realized_error,omitempty"`
	NATR        *float64             `json:"natr,omitempty"`
	NATRErr     string               `json:"natr_error,omitempty"`
}

// Analytics computes IV, RV and NATR in one pass. Each component fails
// independently; the snapshot is an error only when every component is.
func (s *Service) Analytics(ctx context.Context, symbol string) (Snapshot, error) {
	snap := Snapshot{Symbol: symbol}

	if iv, err := s.ImpliedVol(ctx, symbol); err != nil {
		snap.ImpliedErr = err.Error()
	} else {
		snap.Implied = &iv
	}
	if rv, err := s.RealizedVol(ctx, symbol, 0); err != nil {
		snap.RealizedErr = err.Error()
	} else {
		snap.Realized = &rv
	}
	if natr, err := s.natr(ctx, symbol); err != nil {
		snap.NATRErr = err.Error()
	} else {
		snap.NATR = &natr
	}

	if snap.Implied == nil && snap.Realized == nil && snap.NATR == nil {
		return snap, fmt.Errorf("%w: no analytics available for %s", ErrDataUnavailable, symbol)
	}
	return snap, nil
}

func (s *Service) natr(ctx context.Context, symbol string) (float64, error) {
	bars, err := s.source.FetchBars(ctx, symbol, s.cfg.WindowDays, market.BarDaily)
	if err != nil {
		return 0, fmt.Errorf("%w: bars %s: %v", ErrDataUnavailable, symbol, err)
	}
	return volatility.NATR(bars, s.cfg.NATRPeriod)
}
