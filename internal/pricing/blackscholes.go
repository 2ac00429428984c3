// Package pricing implements the closed-form Black-Scholes pricer and
// the implied-volatility solver that inverts it.
package pricing

import (
	"errors"
	"fmt"
	"math"

	"hedgerd/internal/instrument"
)

// ErrInvalidInput reports pricing inputs outside the model's domain.
var ErrInvalidInput = errors.New("invalid pricing input")

// Input carries the Black-Scholes parameters.
//
//	Spot, Strike  > 0
//	Expiry        > 0, in years
//	Rate          in [0, 1]
//	Sigma         > 0, annualized
type Input struct {
	Spot   float64
	Strike float64
	Expiry float64
	Rate   float64
	Sigma  float64
	Right  instrument.Right
}

func (in Input) validate(checkSigma bool) error {
	vals := []struct {
		name string
		v    float64
	}{
		{"spot", in.Spot},
		{"strike", in.Strike},
		{"expiry", in.Expiry},
	}
	if checkSigma {
		vals = append(vals, struct {
			name string
			v    float64
		}{"sigma", in.Sigma})
	}
	for _, f := range vals {
		if !isFinite(f.v) || f.v <= 0 {
			return fmt.Errorf("%w: %s=%v", ErrInvalidInput, f.name, f.v)
		}
	}
	if !isFinite(in.Rate) || in.Rate < 0 || in.Rate > 1 {
		return fmt.Errorf("%w: rate=%v outside [0,1]", ErrInvalidInput, in.Rate)
	}
	if !in.Right.Valid() {
		return fmt.Errorf("%w: right=%q", ErrInvalidInput, in.Right)
	}
	return nil
}

// Price computes the Black-Scholes price of a European option.
func Price(in Input) (float64, error) {
	if err := in.validate(true); err != nil {
		return 0, err
	}
	price := bsPrice(in)
	if !isFinite(price) || price < 0 {
		return 0, fmt.Errorf("%w: model produced price=%v", ErrInvalidInput, price)
	}
	return price, nil
}

// Vega is the price sensitivity to sigma, used as the Newton derivative.
// Inputs are assumed validated by the caller.
func Vega(in Input) float64 {
	d1 := d1(in)
	return in.Spot * normPDF(d1) * math.Sqrt(in.Expiry)
}

func bsPrice(in Input) float64 {
	sqrtT := math.Sqrt(in.Expiry)
	d1 := d1(in)
	d2 := d1 - in.Sigma*sqrtT
	discK := in.Strike * math.Exp(-in.Rate*in.Expiry)
	if in.Right == instrument.Call {
		return in.Spot*normCDF(d1) - discK*normCDF(d2)
	}
	return discK*normCDF(-d2) - in.Spot*normCDF(-d1)
}

func d1(in Input) float64 {
	sqrtT := math.Sqrt(in.Expiry)
	return (math.Log(in.Spot/in.Strike) + (in.Rate+0.5*in.Sigma*in.Sigma)*in.Expiry) / (in.Sigma * sqrtT)
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
