package domain

import "math"

// Tiered pricing constants for a configured piece. Values are in the store
// currency and, like every monetary amount in this package, are carried as
// floating decimals; rounding happens only at persist/display boundaries.
const (
	// BaseModelPrice is charged once per cart line, whatever the model kind.
	BaseModelPrice = 9.90
	// CharmTierSize is the number of charms billed at the full tier price.
	CharmTierSize = 5
	// CharmTierPrice applies to each of the first CharmTierSize charms.
	CharmTierPrice = 4.00
	// CharmOverflowPrice applies to every charm beyond the tier.
	CharmOverflowPrice = 2.50
	// ClaspSurcharge is added per charm configured with a physical clasp.
	ClaspSurcharge = 1.20
	// CreatorRewardRate is the share of an item price converted to creator
	// loyalty points (at PointsPerCurrencyUnit points per unit).
	CreatorRewardRate = 0.05
)

// LinePrice computes the deterministic price of one cart line: base model
// price, tiered charm pricing, and the clasp surcharge. Pure, no I/O, always
// non-negative.
func LinePrice(line CartLine) float64 {
	price := BaseModelPrice + charmTierPrice(len(line.Charms))
	for _, charm := range line.Charms {
		if charm.WithClasp {
			price += ClaspSurcharge
		}
	}
	return price
}

func charmTierPrice(n int) float64 {
	if n <= 0 {
		return 0
	}
	if n <= CharmTierSize {
		return float64(n) * CharmTierPrice
	}
	return CharmTierSize*CharmTierPrice + float64(n-CharmTierSize)*CharmOverflowPrice
}

// Subtotal sums the line prices of a cart without intermediate rounding, so
// rounding error cannot compound across a multi-item cart.
func Subtotal(lines []CartLine) float64 {
	var total float64
	for _, line := range lines {
		total += LinePrice(line)
	}
	return total
}

// RoundMonetary rounds a monetary amount to two decimal places. Callers apply
// it only when persisting or displaying values, never mid-calculation.
func RoundMonetary(v float64) float64 {
	return math.Round(v*100) / 100
}

// CreatorPoints converts one item price into the loyalty points owed to its
// creator: floor(price * CreatorRewardRate * PointsPerCurrencyUnit).
func CreatorPoints(price float64) int {
	return int(math.Floor(price * CreatorRewardRate * PointsPerCurrencyUnit))
}
