package market

import (
	"github.com/holiman/uint256"

	"prism/native/fixedpoint"
)

// The fee curve is piecewise linear with a single breakpoint at the stability
// ratio: the healthy region charges an operation's Default tier, the stability
// region Default plus the signed Extra. An operation large enough to cross the
// boundary splits there. Minting charges the two portions as two exact fee
// amounts; redemption blends the two tiers into one ratio weighted by the
// portions and applies it to the payout.

var maxSentinel = new(uint256.Int).SetAllOne()

// isSentinel reports whether amount is the all-ones marker meaning "the
// caller's entire balance".
func isSentinel(amount *uint256.Int) bool {
	return amount != nil && amount.Eq(maxSentinel)
}

// splitAtBoundary cuts amount into the portion at or below boundary and the
// remainder beyond it.
func splitAtBoundary(amount, boundary *uint256.Int) (*uint256.Int, *uint256.Int) {
	if boundary != nil && amount.Gt(boundary) {
		return fixedpoint.Clone(boundary), new(uint256.Int).Sub(amount, boundary)
	}
	return fixedpoint.Clone(amount), new(uint256.Int)
}

// pieceFee charges the first portion at rateFirst and the second at
// rateSecond, each truncating separately.
func pieceFee(first, rateFirst, second, rateSecond *uint256.Int) (*uint256.Int, error) {
	feeFirst, err := fixedpoint.MulUnit(first, rateFirst)
	if err != nil {
		return nil, err
	}
	feeSecond, err := fixedpoint.MulUnit(second, rateSecond)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Add(feeFirst, feeSecond)
}

// blendedRatio weights the two tiers by their portions into a single rate.
func blendedRatio(first, rateFirst, second, rateSecond *uint256.Int) (*uint256.Int, error) {
	weightedFirst, err := fixedpoint.Mul(first, rateFirst)
	if err != nil {
		return nil, err
	}
	weightedSecond, err := fixedpoint.Mul(second, rateSecond)
	if err != nil {
		return nil, err
	}
	numerator, err := fixedpoint.Add(weightedFirst, weightedSecond)
	if err != nil {
		return nil, err
	}
	total, err := fixedpoint.Add(first, second)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Div(numerator, total)
}
