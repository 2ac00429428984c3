// Package delta turns brokerage positions into directional exposure in
// units of underlying shares and aggregates it per position key.
package delta

import (
	"context"
	"math"

	"hedgerd/internal/gateway/broker"
	"hedgerd/internal/instrument"
	"hedgerd/internal/logger"
)

// Source resolves the per-contract delta of one option contract. The
// boolean reports availability; an unavailable source defers to the
// next one in the chain.
type Source interface {
	Name() string
	PerContract(ctx context.Context, opt instrument.Option) (float64, bool)
}

// GreeksFetcher is the slice of the broker the delta sources need.
type GreeksFetcher interface {
	ContractGreeks(ctx context.Context, inst instrument.Instrument) (broker.Greeks, error)
}

// LiveSource uses model greeks streamed by the broker.
type LiveSource struct {
	Fetcher GreeksFetcher
}

func (s *LiveSource) Name() string { return "live" }

func (s *LiveSource) PerContract(ctx context.Context, opt instrument.Option) (float64, bool) {
	g, err := s.Fetcher.ContractGreeks(ctx, opt)
	if err != nil {
		logger.Debugf("delta: live greeks unavailable for %s: %v", opt.Key(), err)
		return 0, false
	}
	if !g.HasDelta || g.Delta < -1 || g.Delta > 1 {
		return 0, false
	}
	return g.Delta, true
}

// TheoreticalSource approximates delta from moneyness when no model
// greeks arrive. The curve is a tunable approximation: 0.5 at the
// money, asymptoting toward 0.95 deep ITM and 0.05 deep OTM for calls,
// with the put delta mirrored via call - 1.
type TheoreticalSource struct {
	Fetcher GreeksFetcher
}

func (s *TheoreticalSource) Name() string { return "theoretical" }

func (s *TheoreticalSource) PerContract(ctx context.Context, opt instrument.Option) (float64, bool) {
	if opt.Underlying == "" || opt.Strike <= 0 {
		return 0, false
	}
	// Moneyness needs the underlying's price, not the option's own
	// premium quote.
	g, err := s.Fetcher.ContractGreeks(ctx, instrument.Stock{Symbol: opt.Underlying})
	if err != nil {
		logger.Debugf("delta: no spot for %s: %v", opt.Underlying, err)
		return 0, false
	}
	spot := g.Quote.MidOrLast()
	if spot <= 0 {
		return 0, false
	}
	return TheoreticalDelta(spot, opt.Strike, opt.Right), true
}

// theoreticalSlope controls how fast the curve leaves the ATM value;
// only monotonicity and the boundary values are contractual.
const theoreticalSlope = 3.0

// TheoreticalDelta maps moneyness (price-strike)/strike to an
// approximate per-contract delta.
func TheoreticalDelta(price, strike float64, right instrument.Right) float64 {
	m := (price - strike) / strike
	call := 0.5 + 0.45*math.Tanh(theoreticalSlope*m)
	if right == instrument.Put {
		return call - 1
	}
	return call
}

// FallbackSource is the conservative flat approximation: +0.5 for
// calls, -0.5 for puts. Always available.
type FallbackSource struct{}

func (FallbackSource) Name() string { return "fallback" }

func (FallbackSource) PerContract(_ context.Context, opt instrument.Option) (float64, bool) {
	return 0.5 * opt.Right.Sign(), true
}

// ChainSource tries each source in order and takes the first available
// answer.
type ChainSource struct {
	Sources []Source
}

// NewDefaultChain wires the standard live -> theoretical -> fallback
// resolution order over a shared, cached greeks fetcher.
func NewDefaultChain(fetcher GreeksFetcher) *ChainSource {
	return &ChainSource{Sources: []Source{
		&LiveSource{Fetcher: fetcher},
		&TheoreticalSource{Fetcher: fetcher},
		FallbackSource{},
	}}
}

func (c *ChainSource) Name() string { return "chain" }

func (c *ChainSource) PerContract(ctx context.Context, opt instrument.Option) (float64, bool) {
	for _, s := range c.Sources {
		if d, ok := s.PerContract(ctx, opt); ok {
			logger.Debugf("delta: %s resolved %s -> %.4f", s.Name(), opt.Key(), d)
			return d, true
		}
	}
	return 0, false
}
