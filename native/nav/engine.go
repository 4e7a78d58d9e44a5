package nav

import (
	"github.com/holiman/uint256"

	"prism/native/fixedpoint"
)

// Every operation below is a pure function over a State snapshot: no field is
// mutated, all division truncates like unsigned integer division, and every
// arithmetic fault surfaces as a fixedpoint error. Derivations use the
// invariant n*v = nf*vf + nx*vx with n the base supply, v the base nav, nf/vf
// the fractional side and nx/vx the leveraged side; ncr is the 18 decimal
// target collateral ratio.

// MaxMintableFractional returns how much base can still be deposited into
// fractional minting before the collateral ratio falls to target, and the
// fractional tokens that deposit would mint. Zero when the current ratio is
// already at or below target.
//
//	(n + dn) * v = (nf + df) * vf + nx * vx
//	(n + dn) * v = ncr * (nf + df) * vf
//	=> dn = (n*v - ncr*nf*vf) / ((ncr - 1) * v)
//	=> df = (n*v - ncr*nf*vf) / ((ncr - 1) * vf)
func (s *State) MaxMintableFractional(target *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if err := validateRatio(target); err != nil {
		return nil, nil, err
	}
	baseVal, err := mul3(s.BaseSupply, s.BaseNav, precision)
	if err != nil {
		return nil, nil, err
	}
	fVal, err := mul3(target, s.FractionalSupply, s.FractionalNav)
	if err != nil {
		return nil, nil, err
	}
	if !baseVal.Gt(fVal) {
		return new(uint256.Int), new(uint256.Int), nil
	}
	delta, err := fixedpoint.Sub(baseVal, fVal)
	if err != nil {
		return nil, nil, err
	}
	margin, err := fixedpoint.Sub(target, precision)
	if err != nil {
		return nil, nil, err
	}
	baseDen, err := fixedpoint.Mul(s.BaseNav, margin)
	if err != nil {
		return nil, nil, err
	}
	maxBaseIn, err := fixedpoint.Div(delta, baseDen)
	if err != nil {
		return nil, nil, err
	}
	mintDen, err := fixedpoint.Mul(s.FractionalNav, margin)
	if err != nil {
		return nil, nil, err
	}
	maxMintable, err := fixedpoint.Div(delta, mintDen)
	if err != nil {
		return nil, nil, err
	}
	return maxBaseIn, maxMintable, nil
}

// MaxMintableLeveraged returns how much base can be deposited into leveraged
// minting before the collateral ratio rises to target, and the leveraged
// tokens minted. Zero when the current ratio is already at or above target.
//
//	(n + dn) * v = ncr * nf * vf
//	=> dn = (ncr*nf*vf - n*v) / v
//	=> dx = dn * v / vx
func (s *State) MaxMintableLeveraged(target *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if err := validateRatio(target); err != nil {
		return nil, nil, err
	}
	targetVal, err := mul3(target, s.FractionalSupply, s.FractionalNav)
	if err != nil {
		return nil, nil, err
	}
	baseVal, err := mul3(s.BaseSupply, s.BaseNav, precision)
	if err != nil {
		return nil, nil, err
	}
	if !targetVal.Gt(baseVal) {
		return new(uint256.Int), new(uint256.Int), nil
	}
	if s.IsUnderCollateralized() {
		return nil, nil, ErrUnderCollateralized
	}
	delta, err := fixedpoint.Sub(targetVal, baseVal)
	if err != nil {
		return nil, nil, err
	}
	baseDen, err := fixedpoint.Mul(s.BaseNav, precision)
	if err != nil {
		return nil, nil, err
	}
	maxBaseIn, err := fixedpoint.Div(delta, baseDen)
	if err != nil {
		return nil, nil, err
	}
	mintDen, err := fixedpoint.Mul(s.LeveragedNav, precision)
	if err != nil {
		return nil, nil, err
	}
	maxMintable, err := fixedpoint.Div(delta, mintDen)
	if err != nil {
		return nil, nil, err
	}
	return maxBaseIn, maxMintable, nil
}

// MaxMintableLeveragedWithIncentive is MaxMintableLeveraged during stability
// mode minting: depositors are credited an extra incentive share funded by a
// fractional nav markdown, so more leveraged tokens fit into the same
// headroom.
//
//	(n + dn) * v = ncr * (nf*vf - dn*v*lambda)
//	=> dn = (ncr*nf*vf - n*v) / (v * (1 + ncr*lambda))
//	=> dx = dn * v * (1 + lambda) / vx
func (s *State) MaxMintableLeveragedWithIncentive(target, incentive *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if err := validateRatio(target); err != nil {
		return nil, nil, err
	}
	incentive = orZero(incentive)
	targetVal, err := mul3(target, s.FractionalSupply, s.FractionalNav)
	if err != nil {
		return nil, nil, err
	}
	baseVal, err := mul3(s.BaseSupply, s.BaseNav, precision)
	if err != nil {
		return nil, nil, err
	}
	if !targetVal.Gt(baseVal) {
		return new(uint256.Int), new(uint256.Int), nil
	}
	if s.IsUnderCollateralized() {
		return nil, nil, ErrUnderCollateralized
	}
	delta, err := fixedpoint.Sub(targetVal, baseVal)
	if err != nil {
		return nil, nil, err
	}
	weighted, err := fixedpoint.MulDiv(target, incentive, precision)
	if err != nil {
		return nil, nil, err
	}
	den, err := fixedpoint.Add(precision, weighted)
	if err != nil {
		return nil, nil, err
	}
	baseDen, err := fixedpoint.Mul(s.BaseNav, den)
	if err != nil {
		return nil, nil, err
	}
	maxBaseIn, err := fixedpoint.Div(delta, baseDen)
	if err != nil {
		return nil, nil, err
	}
	bonus, err := fixedpoint.Add(precision, incentive)
	if err != nil {
		return nil, nil, err
	}
	credited, err := mul3(maxBaseIn, s.BaseNav, bonus)
	if err != nil {
		return nil, nil, err
	}
	credited, err = fixedpoint.Div(credited, precision)
	if err != nil {
		return nil, nil, err
	}
	maxMintable, err := fixedpoint.Div(credited, s.LeveragedNav)
	if err != nil {
		return nil, nil, err
	}
	return maxBaseIn, maxMintable, nil
}

// MaxRedeemableFractional returns the fractional amount that can be redeemed
// while the collateral ratio stays at or above target, and the base paid out
// for it. Zero when the current ratio is already below target: redemption of
// weakly backed claims is shut off rather than sized.
func (s *State) MaxRedeemableFractional(target *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if err := validateRatio(target); err != nil {
		return nil, nil, err
	}
	baseVal, err := mul3(s.BaseSupply, s.BaseNav, precision)
	if err != nil {
		return nil, nil, err
	}
	fVal, err := mul3(target, s.FractionalSupply, s.FractionalNav)
	if err != nil {
		return nil, nil, err
	}
	if !baseVal.Gt(fVal) {
		return new(uint256.Int), new(uint256.Int), nil
	}
	delta, err := fixedpoint.Sub(baseVal, fVal)
	if err != nil {
		return nil, nil, err
	}
	margin, err := fixedpoint.Sub(target, precision)
	if err != nil {
		return nil, nil, err
	}
	redeemDen, err := fixedpoint.Mul(s.FractionalNav, margin)
	if err != nil {
		return nil, nil, err
	}
	maxRedeemable, err := fixedpoint.Div(delta, redeemDen)
	if err != nil {
		return nil, nil, err
	}
	if maxRedeemable.Gt(s.FractionalSupply) {
		maxRedeemable = fixedpoint.Clone(s.FractionalSupply)
	}
	payout, err := fixedpoint.Mul(maxRedeemable, s.FractionalNav)
	if err != nil {
		return nil, nil, err
	}
	maxBaseOut, err := fixedpoint.Div(payout, s.BaseNav)
	if err != nil {
		return nil, nil, err
	}
	return maxBaseOut, maxRedeemable, nil
}

// MaxRedeemableLeveraged returns the leveraged amount redeemable before the
// collateral ratio falls to target, and the base paid out. Zero when the
// current ratio is already at or below target.
//
//	(n - dn) * v = ncr * nf * vf
//	=> dn = (n*v - ncr*nf*vf) / v
//	=> dx = dn * v / vx
func (s *State) MaxRedeemableLeveraged(target *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if err := validateRatio(target); err != nil {
		return nil, nil, err
	}
	baseVal, err := mul3(s.BaseSupply, s.BaseNav, precision)
	if err != nil {
		return nil, nil, err
	}
	fVal, err := mul3(target, s.FractionalSupply, s.FractionalNav)
	if err != nil {
		return nil, nil, err
	}
	if !baseVal.Gt(fVal) || s.IsUnderCollateralized() {
		return new(uint256.Int), new(uint256.Int), nil
	}
	delta, err := fixedpoint.Sub(baseVal, fVal)
	if err != nil {
		return nil, nil, err
	}
	redeemDen, err := fixedpoint.Mul(s.LeveragedNav, precision)
	if err != nil {
		return nil, nil, err
	}
	maxRedeemable, err := fixedpoint.Div(delta, redeemDen)
	if err != nil {
		return nil, nil, err
	}
	if maxRedeemable.Gt(s.LeveragedSupply) {
		maxRedeemable = fixedpoint.Clone(s.LeveragedSupply)
	}
	payout, err := fixedpoint.Mul(maxRedeemable, s.LeveragedNav)
	if err != nil {
		return nil, nil, err
	}
	maxBaseOut, err := fixedpoint.Div(payout, s.BaseNav)
	if err != nil {
		return nil, nil, err
	}
	return maxBaseOut, maxRedeemable, nil
}

// FractionalRedemptionToRatio sizes the fractional redemption that lifts the
// collateral ratio from below target up to it. The market layer uses it to
// split a redemption across the stability boundary for fee blending. Zero
// when the ratio is already at or above target.
//
//	(n - dn) * v = ncr * (nf - df) * vf
//	dn * v = df * vf
//	=> df = (ncr*nf*vf - n*v) / ((ncr - 1) * vf)
func (s *State) FractionalRedemptionToRatio(target *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if err := validateRatio(target); err != nil {
		return nil, nil, err
	}
	fVal, err := mul3(target, s.FractionalSupply, s.FractionalNav)
	if err != nil {
		return nil, nil, err
	}
	baseVal, err := mul3(s.BaseSupply, s.BaseNav, precision)
	if err != nil {
		return nil, nil, err
	}
	if !fVal.Gt(baseVal) {
		return new(uint256.Int), new(uint256.Int), nil
	}
	delta, err := fixedpoint.Sub(fVal, baseVal)
	if err != nil {
		return nil, nil, err
	}
	margin, err := fixedpoint.Sub(target, precision)
	if err != nil {
		return nil, nil, err
	}
	redeemDen, err := fixedpoint.Mul(s.FractionalNav, margin)
	if err != nil {
		return nil, nil, err
	}
	fractionalIn, err := fixedpoint.Div(delta, redeemDen)
	if err != nil {
		return nil, nil, err
	}
	if fractionalIn.Gt(s.FractionalSupply) {
		fractionalIn = fixedpoint.Clone(s.FractionalSupply)
	}
	payout, err := fixedpoint.Mul(fractionalIn, s.FractionalNav)
	if err != nil {
		return nil, nil, err
	}
	baseOut, err := fixedpoint.Div(payout, s.BaseNav)
	if err != nil {
		return nil, nil, err
	}
	return baseOut, fractionalIn, nil
}

// MaxLiquidatable sizes the largest fractional liquidation, paid out with an
// incentive premium, before the collateral ratio recovers to target. Zero
// when the ratio is already at or above target. The target must clear the
// incentive margin or the bounding equation has no positive solution.
//
//	(n - dn) * v = ncr * (nf - df) * vf
//	dn * v = df * vf * (1 + lambda)
//	=> df = (ncr*nf*vf - n*v) / ((ncr - 1 - lambda) * vf)
func (s *State) MaxLiquidatable(target, incentive *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if err := validateRatio(target); err != nil {
		return nil, nil, err
	}
	incentive = orZero(incentive)
	floor, err := fixedpoint.Add(precision, incentive)
	if err != nil {
		return nil, nil, err
	}
	if !target.Gt(floor) {
		return nil, nil, ErrInvalidRatio
	}
	fVal, err := mul3(target, s.FractionalSupply, s.FractionalNav)
	if err != nil {
		return nil, nil, err
	}
	baseVal, err := mul3(s.BaseSupply, s.BaseNav, precision)
	if err != nil {
		return nil, nil, err
	}
	if !fVal.Gt(baseVal) {
		return new(uint256.Int), new(uint256.Int), nil
	}
	delta, err := fixedpoint.Sub(fVal, baseVal)
	if err != nil {
		return nil, nil, err
	}
	margin, err := fixedpoint.Sub(target, floor)
	if err != nil {
		return nil, nil, err
	}
	liqDen, err := fixedpoint.Mul(s.FractionalNav, margin)
	if err != nil {
		return nil, nil, err
	}
	maxIn, err := fixedpoint.Div(delta, liqDen)
	if err != nil {
		return nil, nil, err
	}
	if maxIn.Gt(s.FractionalSupply) {
		maxIn = fixedpoint.Clone(s.FractionalSupply)
	}
	payout, err := mul3(maxIn, s.FractionalNav, floor)
	if err != nil {
		return nil, nil, err
	}
	payoutDen, err := fixedpoint.Mul(precision, s.BaseNav)
	if err != nil {
		return nil, nil, err
	}
	maxBaseOut, err := fixedpoint.Div(payout, payoutDen)
	if err != nil {
		return nil, nil, err
	}
	return maxBaseOut, maxIn, nil
}

// Mint issues both tokens pro rata so neither nav moves, only supply. The
// first deposit into an empty system must go through Bootstrap instead.
//
//	df = nf * dn / n
//	dx = nx * dn / n
func (s *State) Mint(baseIn *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	baseIn = orZero(baseIn)
	if s.BaseSupply.IsZero() {
		return nil, nil, ErrZeroSupply
	}
	fNum, err := fixedpoint.Mul(s.FractionalSupply, baseIn)
	if err != nil {
		return nil, nil, err
	}
	fractionalOut, err := fixedpoint.Div(fNum, s.BaseSupply)
	if err != nil {
		return nil, nil, err
	}
	xNum, err := fixedpoint.Mul(s.LeveragedSupply, baseIn)
	if err != nil {
		return nil, nil, err
	}
	leveragedOut, err := fixedpoint.Div(xNum, s.BaseSupply)
	if err != nil {
		return nil, nil, err
	}
	return fractionalOut, leveragedOut, nil
}

// Bootstrap splits the first deposit by the configured initial mint ratio:
// the fractional side receives ratio times the deposited value, the
// leveraged side the exact remainder so no value is lost to rounding.
func Bootstrap(baseIn, baseNav, initialMintRatio *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	baseIn = orZero(baseIn)
	baseNav = orZero(baseNav)
	if initialMintRatio == nil || initialMintRatio.Gt(precision) {
		return nil, nil, ErrInvalidRatio
	}
	value, err := fixedpoint.MulDiv(baseIn, baseNav, precision)
	if err != nil {
		return nil, nil, err
	}
	fractionalOut, err := fixedpoint.MulDiv(value, initialMintRatio, precision)
	if err != nil {
		return nil, nil, err
	}
	leveragedOut, err := fixedpoint.Sub(value, fractionalOut)
	if err != nil {
		return nil, nil, err
	}
	return fractionalOut, leveragedOut, nil
}

// MintFractional issues fractional tokens at their current nav.
//
//	df = dn * v / vf
func (s *State) MintFractional(baseIn *uint256.Int) (*uint256.Int, error) {
	baseIn = orZero(baseIn)
	value, err := fixedpoint.Mul(baseIn, s.BaseNav)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Div(value, s.FractionalNav)
}

// MintLeveraged issues leveraged tokens against the residual value so the
// fractional side is untouched. Rejected while under collateralized: the
// residual is zero and the formula has no meaning.
//
//	dx = dn * v * nx / (n*v - nf*vf)
func (s *State) MintLeveraged(baseIn *uint256.Int) (*uint256.Int, error) {
	baseIn = orZero(baseIn)
	if s.IsUnderCollateralized() {
		return nil, ErrUnderCollateralized
	}
	residual, err := s.residualValue()
	if err != nil {
		return nil, err
	}
	num, err := mul3(baseIn, s.BaseNav, s.LeveragedSupply)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Div(num, residual)
}

// MintLeveragedWithIncentive credits the deposit with an incentive premium
// and returns the per unit fractional nav markdown that funds it. The caller
// applies the markdown; this function only computes it.
func (s *State) MintLeveragedWithIncentive(baseIn, incentive *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	baseIn = orZero(baseIn)
	incentive = orZero(incentive)
	if s.IsUnderCollateralized() {
		return nil, nil, ErrUnderCollateralized
	}
	residual, err := s.residualValue()
	if err != nil {
		return nil, nil, err
	}
	bonusVal, err := mul3(baseIn, s.BaseNav, incentive)
	if err != nil {
		return nil, nil, err
	}
	bonusVal, err = fixedpoint.Div(bonusVal, precision)
	if err != nil {
		return nil, nil, err
	}
	value, err := fixedpoint.Mul(baseIn, s.BaseNav)
	if err != nil {
		return nil, nil, err
	}
	credited, err := fixedpoint.Add(value, bonusVal)
	if err != nil {
		return nil, nil, err
	}
	num, err := fixedpoint.Mul(credited, s.LeveragedSupply)
	if err != nil {
		return nil, nil, err
	}
	leveragedOut, err := fixedpoint.Div(num, residual)
	if err != nil {
		return nil, nil, err
	}
	navDelta, err := fixedpoint.Div(bonusVal, s.FractionalSupply)
	if err != nil {
		return nil, nil, err
	}
	return leveragedOut, navDelta, nil
}

// Redeem burns the given token amounts and prices the base released. The
// leveraged term uses the residual value directly so truncation happens in
// the same places every time. A wiped out leveraged side redeems for zero.
//
//	dn = (df*vf + dx*(n*v - nf*vf)/nx) / v
func (s *State) Redeem(fractionalIn, leveragedIn *uint256.Int) (*uint256.Int, error) {
	fractionalIn = orZero(fractionalIn)
	leveragedIn = orZero(leveragedIn)
	num, err := fixedpoint.Mul(fractionalIn, s.FractionalNav)
	if err != nil {
		return nil, err
	}
	if !s.LeveragedSupply.IsZero() && !s.IsUnderCollateralized() {
		residual, err := s.residualValue()
		if err != nil {
			return nil, err
		}
		xNum, err := fixedpoint.Mul(leveragedIn, residual)
		if err != nil {
			return nil, err
		}
		xVal, err := fixedpoint.Div(xNum, s.LeveragedSupply)
		if err != nil {
			return nil, err
		}
		num, err = fixedpoint.Add(num, xVal)
		if err != nil {
			return nil, err
		}
	}
	return fixedpoint.Div(num, s.BaseNav)
}

// LiquidateWithIncentive burns fractional tokens at a premium payout and
// returns the per unit nav markdown that the surviving fractional holders
// fund it with.
//
//	dn = df * vf * (1 + lambda) / v
//	dvf = lambda * df / (nf - df)
func (s *State) LiquidateWithIncentive(fractionalIn, incentive *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	fractionalIn = orZero(fractionalIn)
	incentive = orZero(incentive)
	bonusVal, err := mul3(fractionalIn, s.FractionalNav, incentive)
	if err != nil {
		return nil, nil, err
	}
	bonusVal, err = fixedpoint.Div(bonusVal, precision)
	if err != nil {
		return nil, nil, err
	}
	value, err := fixedpoint.Mul(fractionalIn, s.FractionalNav)
	if err != nil {
		return nil, nil, err
	}
	payout, err := fixedpoint.Add(value, bonusVal)
	if err != nil {
		return nil, nil, err
	}
	baseOut, err := fixedpoint.Div(payout, s.BaseNav)
	if err != nil {
		return nil, nil, err
	}
	remaining, err := fixedpoint.Sub(s.FractionalSupply, fractionalIn)
	if err != nil {
		return nil, nil, err
	}
	markdownNum, err := fixedpoint.Mul(incentive, fractionalIn)
	if err != nil {
		return nil, nil, err
	}
	navDelta, err := fixedpoint.Div(markdownNum, remaining)
	if err != nil {
		return nil, nil, err
	}
	return baseOut, navDelta, nil
}

// residualValue is n*v - nf*vf, the value backing the leveraged side.
func (s *State) residualValue() (*uint256.Int, error) {
	baseVal, err := fixedpoint.Mul(s.BaseSupply, s.BaseNav)
	if err != nil {
		return nil, err
	}
	fVal, err := fixedpoint.Mul(s.FractionalSupply, s.FractionalNav)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Sub(baseVal, fVal)
}
