package nav

import (
	"errors"

	"github.com/holiman/uint256"

	"prism/native/fixedpoint"
)

var (
	// ErrInvalidRatio rejects collateral ratio targets at or below one unit,
	// and liquidation targets that do not clear the incentive margin.
	ErrInvalidRatio = errors.New("nav: collateral ratio target must exceed one unit")
	// ErrUnderCollateralized marks operations that need a positive leveraged
	// token value while the system holds none.
	ErrUnderCollateralized = errors.New("nav: system is under collateralized")
	// ErrZeroSupply marks pro rata operations on an empty system; the first
	// deposit goes through Bootstrap instead.
	ErrZeroSupply = errors.New("nav: base supply is zero")
)

var (
	precision   = fixedpoint.MustFromDecimal("1")
	maxLeverage = fixedpoint.MustFromDecimal("100")
	maxRatio    = func() *uint256.Int {
		squared, overflow := new(uint256.Int).MulOverflow(precision, precision)
		if overflow {
			panic("nav: ratio sentinel overflow")
		}
		return squared
	}()
)

// MaxLeverage returns the leverage sentinel (100x). Leverage readings at or
// beyond the insolvency boundary are clamped to it.
func MaxLeverage() *uint256.Int {
	return new(uint256.Int).Set(maxLeverage)
}

// MaxCollateralRatio returns the ratio sentinel reported when no fractional
// claims exist. It sits above every configurable threshold.
func MaxCollateralRatio() *uint256.Int {
	return new(uint256.Int).Set(maxRatio)
}

// State is the ephemeral accounting snapshot a single operation works over.
// It is rebuilt from stored supplies and a fresh oracle price on every call
// and never persisted. Supplies are raw token units, navs are 18 decimal
// prices per unit. The snapshot satisfies
//
//	baseSupply * baseNav == fSupply * fNav + xSupply * xNav
//
// within truncation error: the fractional nav is pegged to one unit and
// floors to the pro rata value once the leveraged side is wiped out.
type State struct {
	BaseSupply       *uint256.Int
	BaseNav          *uint256.Int
	FractionalSupply *uint256.Int
	FractionalNav    *uint256.Int
	LeveragedSupply  *uint256.Int
	LeveragedNav     *uint256.Int
}

// NewState derives the two dependent navs from supplies and the oracle price.
func NewState(baseSupply, baseNav, fractionalSupply, leveragedSupply *uint256.Int) (*State, error) {
	s := &State{
		BaseSupply:       fixedpoint.Clone(baseSupply),
		BaseNav:          fixedpoint.Clone(baseNav),
		FractionalSupply: fixedpoint.Clone(fractionalSupply),
		LeveragedSupply:  fixedpoint.Clone(leveragedSupply),
	}
	baseVal, err := fixedpoint.Mul(s.BaseSupply, s.BaseNav)
	if err != nil {
		return nil, err
	}
	fVal, err := fixedpoint.Mul(s.FractionalSupply, precision)
	if err != nil {
		return nil, err
	}
	if baseVal.Lt(fVal) {
		// Losses exceed the leveraged buffer: the leveraged token is worth
		// nothing and fractional holders absorb the shortfall pro rata.
		s.LeveragedNav = new(uint256.Int)
		if s.FractionalSupply.IsZero() {
			s.FractionalNav = fixedpoint.One()
		} else {
			s.FractionalNav, err = fixedpoint.Div(baseVal, s.FractionalSupply)
			if err != nil {
				return nil, err
			}
		}
		return s, nil
	}
	s.FractionalNav = fixedpoint.One()
	if s.LeveragedSupply.IsZero() {
		s.LeveragedNav = fixedpoint.One()
		return s, nil
	}
	residual, err := fixedpoint.Sub(baseVal, fVal)
	if err != nil {
		return nil, err
	}
	s.LeveragedNav, err = fixedpoint.Div(residual, s.LeveragedSupply)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	return &State{
		BaseSupply:       fixedpoint.Clone(s.BaseSupply),
		BaseNav:          fixedpoint.Clone(s.BaseNav),
		FractionalSupply: fixedpoint.Clone(s.FractionalSupply),
		FractionalNav:    fixedpoint.Clone(s.FractionalNav),
		LeveragedSupply:  fixedpoint.Clone(s.LeveragedSupply),
		LeveragedNav:     fixedpoint.Clone(s.LeveragedNav),
	}
}

// IsUnderCollateralized reports whether the leveraged token has been wiped
// out, the state every single sided leveraged sensitive operation must reject.
func (s *State) IsUnderCollateralized() bool {
	return s.LeveragedNav == nil || s.LeveragedNav.IsZero()
}

// CollateralRatio is total base value over fractional claims at face value,
// 18 decimal. With no fractional claims outstanding it reports the sentinel.
func (s *State) CollateralRatio() (*uint256.Int, error) {
	if s.FractionalSupply.IsZero() {
		return MaxCollateralRatio(), nil
	}
	baseVal, err := mul3(s.BaseSupply, s.BaseNav, precision)
	if err != nil {
		return nil, err
	}
	claims, err := fixedpoint.Mul(s.FractionalSupply, precision)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Div(baseVal, claims)
}

// LeverageRatio reports the leveraged token's effective leverage. With rho
// the fractional share of total value, leverage is 1/(1-rho); readings at or
// past the insolvency boundary clamp to the 100x sentinel.
func (s *State) LeverageRatio() (*uint256.Int, error) {
	baseVal, err := fixedpoint.Mul(s.BaseSupply, s.BaseNav)
	if err != nil {
		return nil, err
	}
	if baseVal.IsZero() {
		return MaxLeverage(), nil
	}
	num, err := mul3(s.FractionalSupply, precision, precision)
	if err != nil {
		return nil, err
	}
	rho, err := fixedpoint.Div(num, baseVal)
	if err != nil {
		return nil, err
	}
	if !rho.Lt(precision) {
		return MaxLeverage(), nil
	}
	margin, err := fixedpoint.Sub(precision, rho)
	if err != nil {
		return nil, err
	}
	squared, err := fixedpoint.Mul(precision, precision)
	if err != nil {
		return nil, err
	}
	leverage, err := fixedpoint.Div(squared, margin)
	if err != nil {
		return nil, err
	}
	if leverage.Gt(maxLeverage) {
		return MaxLeverage(), nil
	}
	return leverage, nil
}

func mul3(a, b, c *uint256.Int) (*uint256.Int, error) {
	product, err := fixedpoint.Mul(a, b)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Mul(product, c)
}

func validateRatio(target *uint256.Int) error {
	if target == nil || !target.Gt(precision) {
		return ErrInvalidRatio
	}
	return nil
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
