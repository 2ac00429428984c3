// Package instrument models the tradable instruments the hedger deals
// with: plain stock and single-leg option contracts. A position key
// (the string users configure a hedger with) identifies exactly one
// instrument; see ParseKey for the option key grammar.
package instrument

import (
	"fmt"
	"time"
)

// Right is the option right.
type Right string

const (
	Call Right = "C"
	Put  Right = "P"
)

func (r Right) Valid() bool { return r == Call || r == Put }

// Sign returns +1 for calls and -1 for puts, the sign convention for
// per-contract delta.
func (r Right) Sign() float64 {
	if r == Put {
		return -1
	}
	return 1
}

// DefaultMultiplier is the number of underlying shares one standard
// equity option contract controls.
const DefaultMultiplier = 100

// Instrument is the tagged variant over stock and option contracts.
type Instrument interface {
	// Key returns the canonical position-key string. For options the
	// key round-trips through ParseKey.
	Key() string
	// UnderlyingSymbol is the symbol of the deliverable underlying.
	UnderlyingSymbol() string
	isInstrument()
}

// Stock is a plain equity (or spot crypto) instrument.
type Stock struct {
	Symbol string
}

func (s Stock) Key() string              { return s.Symbol }
func (s Stock) UnderlyingSymbol() string { return s.Symbol }
func (s Stock) isInstrument()            {}

// Option is a single-leg option contract.
type Option struct {
	Underlying string
	Expiry     time.Time
	Strike     float64
	Right      Right
	Multiplier int
}

func (o Option) Key() string {
	return fmt.Sprintf("%s %s%s%08d",
		o.Underlying,
		o.Expiry.Format("060102"),
		o.Right,
		int64(o.Strike*1000+0.5),
	)
}

func (o Option) UnderlyingSymbol() string { return o.Underlying }
func (o Option) isInstrument()            {}

// EffectiveMultiplier falls back to the standard contract size when the
// multiplier was never populated.
func (o Option) EffectiveMultiplier() int {
	if o.Multiplier > 0 {
		return o.Multiplier
	}
	return DefaultMultiplier
}
