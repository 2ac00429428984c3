package delta

import (
	"context"

	"hedgerd/internal/gateway/broker"
	"hedgerd/internal/instrument"
	"hedgerd/internal/logger"
)

// Aggregator sums position-level exposure for one position key.
type Aggregator struct {
	Source Source
}

func NewAggregator(fetcher GreeksFetcher) *Aggregator {
	cached := NewCachedGreeks(fetcher, DefaultCacheTTL)
	return &Aggregator{Source: NewDefaultChain(cached)}
}

// PositionDelta is the signed exposure of one holding in underlying
// shares: quantity for stock, quantity * per-contract delta *
// multiplier for options.
func (a *Aggregator) PositionDelta(ctx context.Context, pos broker.Position) float64 {
	switch inst := pos.Instrument.(type) {
	case instrument.Stock:
		return float64(pos.Quantity)
	case instrument.Option:
		per, ok := a.Source.PerContract(ctx, inst)
		if !ok {
			// The chain ends in the flat fallback, so this only
			// happens with a custom source set.
			logger.Warnf("delta: no source resolved %s, counting 0", inst.Key())
			return 0
		}
		return float64(pos.Quantity) * per * float64(inst.EffectiveMultiplier())
	default:
		return 0
	}
}

// Aggregate sums PositionDelta over the set. An empty set is 0: no
// position means nothing to hedge, not an error.
func (a *Aggregator) Aggregate(ctx context.Context, positions []broker.Position) float64 {
	var total float64
	for _, p := range positions {
		total += a.PositionDelta(ctx, p)
	}
	return total
}
