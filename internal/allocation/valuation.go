// Package allocation holds the pure calculation engine: per-asset valuation and
// rebalancing, bucket aggregation and risk-profile comparison. Nothing here keeps
// state or performs I/O, so every function is safe to call concurrently.
package allocation

import (
	"github.com/shopspring/decimal"

	"allocator/internal/models"
)

// FractionalPlaces is the display precision for assets that trade in fractions.
const FractionalPlaces = 8

var hundred = decimal.NewFromInt(100)

// Valuation is the derived view of one asset against its portfolio total.
type Valuation struct {
	AssetID          int64           `json:"asset_id"`
	TargetAmount     decimal.Decimal `json:"target_amount"`
	TargetQuantity   decimal.Decimal `json:"target_quantity"`
	ActualAmount     decimal.Decimal `json:"actual_amount"`
	ActualShare      decimal.Decimal `json:"actual_share"`
	Rebalance        decimal.Decimal `json:"rebalance"`
	RebalanceDisplay string          `json:"rebalance_display"`
	Fractional       bool            `json:"fractional"`
}

// Valuate computes target and actual amounts for a single asset and the delta needed to
// reach target. Lot-traded assets get a whole number of lots (positive buys, negative
// sells); fractional assets get the exact unit delta. A non-positive price never yields
// a target position.
func Valuate(a models.Asset, total decimal.Decimal) Valuation {
	lot := a.Lot()
	price := a.Price

	targetAmount := a.TargetShare.Div(hundred).Mul(total)
	actualAmount := a.Quantity.Mul(price)

	targetQuantity := decimal.Zero
	if price.IsPositive() {
		targetQuantity = targetAmount.Div(price.Mul(lot)).Floor().Mul(lot)
	}

	v := Valuation{
		AssetID:        a.ID,
		TargetAmount:   targetAmount,
		TargetQuantity: targetQuantity,
		ActualAmount:   actualAmount,
		ActualShare:    Percentage(actualAmount, total),
		Fractional:     a.Category.Fractional(),
	}

	if v.Fractional {
		targetUnits := decimal.Zero
		if price.IsPositive() {
			targetUnits = targetAmount.Div(price)
		}
		v.Rebalance = targetUnits.Sub(a.Quantity)
		v.RebalanceDisplay = v.Rebalance.StringFixed(FractionalPlaces)
	} else {
		v.Rebalance = targetQuantity.Sub(a.Quantity).Div(lot).Floor()
		v.RebalanceDisplay = v.Rebalance.String()
	}
	return v
}

// Percentage returns value as a percentage of total, or zero when total is not positive.
func Percentage(value, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	return value.Div(total).Mul(hundred)
}
