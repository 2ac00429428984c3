package hedger

import (
	"math"

	"github.com/shopspring/decimal"
)

// orderQuantity converts a delta difference into a signed share
// quantity: round half away from zero, then clamp the magnitude to
// maxQty preserving sign. Decimal arithmetic keeps the rounding exact
// for differences like 0.5 that float math would wobble around.
func orderQuantity(diff float64, maxQty int64) int64 {
	if math.IsNaN(diff) || math.IsInf(diff, 0) {
		return 0
	}
	qty := decimal.NewFromFloat(diff).Round(0).IntPart()
	if maxQty > 0 {
		if qty > maxQty {
			qty = maxQty
		} else if qty < -maxQty {
			qty = -maxQty
		}
	}
	return qty
}

// contractQuantity sizes an option hedge: contracts needed to move
// aggregate delta by diff given the per-contract delta and multiplier.
func contractQuantity(diff, perContract float64, multiplier int, maxQty int64) int64 {
	denom := perContract * float64(multiplier)
	if denom == 0 || math.IsNaN(denom) || math.IsInf(denom, 0) {
		return 0
	}
	contracts := decimal.NewFromFloat(diff).
		Div(decimal.NewFromFloat(denom)).
		Round(0).
		IntPart()
	if maxQty > 0 {
		if contracts > maxQty {
			contracts = maxQty
		} else if contracts < -maxQty {
			contracts = -maxQty
		}
	}
	return contracts
}
