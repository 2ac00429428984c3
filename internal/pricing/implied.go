package pricing

import (
	"errors"
	"fmt"
	"math"

	"hedgerd/internal/instrument"
)

// ErrNoConvergence reports that the implied-volatility search exhausted
// its iteration budget without meeting tolerance. Callers surface it as
// "no IV available", never as a partial value.
var ErrNoConvergence = errors.New("implied volatility search did not converge")

const (
	sigmaLow       = 0.0001
	sigmaHigh      = 5.0
	priceTolerance = 1e-5
	maxIterations  = 200
	minVega        = 1e-8
)

// ImpliedVol solves for the sigma at which the Black-Scholes price
// matches marketPrice. Newton-Raphson with vega as the derivative runs
// first; it falls back to bisection over [0.0001, 5.0] when vega
// vanishes or the step leaves the bracket, so termination is guaranteed
// by price monotonicity in sigma. Market prices outside the bracket's
// price range clamp to the nearer bound.
func ImpliedVol(marketPrice float64, in Input) (float64, error) {
	if !isFinite(marketPrice) || marketPrice <= 0 {
		return 0, fmt.Errorf("%w: market price=%v", ErrInvalidInput, marketPrice)
	}
	if err := in.validate(false); err != nil {
		return 0, err
	}

	priceAt := func(sigma float64) float64 {
		in.Sigma = sigma
		return bsPrice(in)
	}

	lowPrice := priceAt(sigmaLow)
	highPrice := priceAt(sigmaHigh)
	if marketPrice <= lowPrice {
		return sigmaLow, nil
	}
	if marketPrice >= highPrice {
		return sigmaHigh, nil
	}

	// Newton from a mid guess, bisection bracket maintained alongside.
	lo, hi := sigmaLow, sigmaHigh
	sigma := 0.5 * (lo + hi)
	for i := 0; i < maxIterations; i++ {
		price := priceAt(sigma)
		diff := price - marketPrice
		if math.Abs(diff) < priceTolerance {
			return sigma, nil
		}
		if diff > 0 {
			hi = sigma
		} else {
			lo = sigma
		}

		next := sigma
		if v := Vega(in); v > minVega { // in.Sigma == sigma after priceAt
			next = sigma - diff/v
		}
		if next <= lo || next >= hi || !isFinite(next) {
			next = 0.5 * (lo + hi)
		}
		sigma = next

		if hi-lo < 1e-9 {
			break
		}
	}

	// The bracket collapsed without meeting price tolerance.
	if math.Abs(priceAt(sigma)-marketPrice) < priceTolerance {
		return sigma, nil
	}
	return 0, fmt.Errorf("%w: after %d iterations (bracket [%g, %g])", ErrNoConvergence, maxIterations, lo, hi)
}

// ImpliedVolForRight is a convenience wrapper used by the calculator
// service when only the contract tuple is at hand.
func ImpliedVolForRight(marketPrice, spot, strike, expiryYears, rate float64, right instrument.Right) (float64, error) {
	return ImpliedVol(marketPrice, Input{
		Spot:   spot,
		Strike: strike,
		Expiry: expiryYears,
		Rate:   rate,
		Right:  right,
	})
}
