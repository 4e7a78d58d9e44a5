package treasury

import (
	"fmt"

	"github.com/holiman/uint256"

	"prism/crypto"
	"prism/native/fixedpoint"
	"prism/native/nav"
)

// Nav bundles the three per-token navs for the view surface.
type Nav struct {
	Base       *uint256.Int
	Fractional *uint256.Int
	Leveraged  *uint256.Int
}

func (e *Engine) snapshot() (*State, *nav.State, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	st, err := e.loadState()
	if err != nil {
		return nil, nil, err
	}
	swap, err := e.loadSwapState(st)
	if err != nil {
		return nil, nil, err
	}
	return st, swap, nil
}

// CurrentNav reports the oracle price alongside both derived token navs.
func (e *Engine) CurrentNav() (Nav, error) {
	_, swap, err := e.snapshot()
	if err != nil {
		return Nav{}, err
	}
	return Nav{
		Base:       fixedpoint.Clone(swap.BaseNav),
		Fractional: fixedpoint.Clone(swap.FractionalNav),
		Leveraged:  fixedpoint.Clone(swap.LeveragedNav),
	}, nil
}

// CollateralRatio reports base value over fractional claim value.
func (e *Engine) CollateralRatio() (*uint256.Int, error) {
	_, swap, err := e.snapshot()
	if err != nil {
		return nil, err
	}
	return swap.CollateralRatio()
}

// LeverageRatio reports the instantaneous leverage of the leveraged token.
func (e *Engine) LeverageRatio() (*uint256.Int, error) {
	_, swap, err := e.snapshot()
	if err != nil {
		return nil, err
	}
	return swap.LeverageRatio()
}

// LeverageEMA reports the smoothed leverage ratio.
func (e *Engine) LeverageEMA() (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	return st.EMA.EmaValue(), nil
}

// MaxMintableFractional quotes the fractional mint headroom down to target.
func (e *Engine) MaxMintableFractional(target *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	_, swap, err := e.snapshot()
	if err != nil {
		return nil, nil, err
	}
	return swap.MaxMintableFractional(target)
}

// MaxMintableLeveraged quotes the leveraged mint headroom up to target.
func (e *Engine) MaxMintableLeveraged(target *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	_, swap, err := e.snapshot()
	if err != nil {
		return nil, nil, err
	}
	return swap.MaxMintableLeveraged(target)
}

// MaxMintableLeveragedWithIncentive quotes the incentivized leveraged mint
// headroom up to target.
func (e *Engine) MaxMintableLeveragedWithIncentive(target, incentive *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	_, swap, err := e.snapshot()
	if err != nil {
		return nil, nil, err
	}
	return swap.MaxMintableLeveragedWithIncentive(target, incentive)
}

// MaxRedeemableFractional quotes the fractional redemption headroom.
func (e *Engine) MaxRedeemableFractional(target *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	_, swap, err := e.snapshot()
	if err != nil {
		return nil, nil, err
	}
	return swap.MaxRedeemableFractional(target)
}

// MaxRedeemableLeveraged quotes the leveraged redemption headroom down to
// target.
func (e *Engine) MaxRedeemableLeveraged(target *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	_, swap, err := e.snapshot()
	if err != nil {
		return nil, nil, err
	}
	return swap.MaxRedeemableLeveraged(target)
}

// FractionalRedemptionToRatio quotes the fractional amount that lifts the
// ratio exactly to target; the market's fee blender uses it when a redemption
// straddles the stability boundary.
func (e *Engine) FractionalRedemptionToRatio(target *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	_, swap, err := e.snapshot()
	if err != nil {
		return nil, nil, err
	}
	return swap.FractionalRedemptionToRatio(target)
}

// MaxLiquidatable quotes the liquidation headroom for external liquidator
// tooling.
func (e *Engine) MaxLiquidatable(target, incentive *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	_, swap, err := e.snapshot()
	if err != nil {
		return nil, nil, err
	}
	return swap.MaxLiquidatable(target, incentive)
}

// ConvertToUnwrapped translates ledger units into accounting units.
func (e *Engine) ConvertToUnwrapped(amount *uint256.Int) (*uint256.Int, error) {
	cloned := fixedpoint.Clone(amount)
	if e == nil || e.rateProvider == nil {
		return cloned, nil
	}
	rate, err := e.rateProvider.Rate()
	if err != nil {
		return nil, fmt.Errorf("treasury: rate provider: %w", err)
	}
	return fixedpoint.MulUnit(cloned, rate)
}

// ConvertToWrapped translates accounting units into ledger units.
func (e *Engine) ConvertToWrapped(amount *uint256.Int) (*uint256.Int, error) {
	cloned := fixedpoint.Clone(amount)
	if e == nil || e.rateProvider == nil {
		return cloned, nil
	}
	rate, err := e.rateProvider.Rate()
	if err != nil {
		return nil, fmt.Errorf("treasury: rate provider: %w", err)
	}
	return fixedpoint.DivUnit(cloned, rate)
}

// IsSettleApproved reports whether the account may take part in settlement
// actions.
func (e *Engine) IsSettleApproved(addr crypto.Address) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	members, err := e.loadWhitelist()
	if err != nil {
		return false, err
	}
	for _, member := range members {
		if member.Equal(addr) {
			return true, nil
		}
	}
	return false, nil
}

// SettleWhitelist returns the approved settlement accounts.
func (e *Engine) SettleWhitelist() ([]crypto.Address, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadWhitelist()
}

// Snapshot returns a copy of the persistent treasury scalars for reporting.
func (e *Engine) Snapshot() (*State, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

// VerifyInvariants cross-checks the accounting identity and the collateral
// custody balance against the stored total. Unit conversions truncate, so the
// custody check allows the rounding of a single ledger unit; any wider
// shortfall is a real divergence.
func (e *Engine) VerifyInvariants() error {
	st, swap, err := e.snapshot()
	if err != nil {
		return err
	}
	if err := verifyIdentity(swap); err != nil {
		return err
	}
	balance, err := e.baseToken.BalanceOf(e.moduleAddr)
	if err != nil {
		return err
	}
	held, err := e.ConvertToUnwrapped(balance)
	if err != nil {
		return err
	}
	slack, err := e.ConvertToUnwrapped(uint256.NewInt(1))
	if err != nil {
		return err
	}
	covered, err := fixedpoint.Add(held, slack)
	if err != nil {
		return err
	}
	covered, err = fixedpoint.Add(covered, uint256.NewInt(1))
	if err != nil {
		return err
	}
	// Surpluses (donated collateral) are harmless; shortfalls are not.
	if st.TotalBaseToken.Gt(covered) {
		return ErrInvariantViolation
	}
	return nil
}

// QuoteMint prices a deposit of baseIn ledger units without touching state.
// It mirrors Mint exactly: same unit conversion, cap and regime checks, same
// truncation, but no EMA fold and no ledger movement. The market layer quotes
// before executing so slippage violations abort with nothing applied.
func (e *Engine) QuoteMint(baseIn *uint256.Int, option MintOption) (*uint256.Int, *uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	if baseIn == nil || baseIn.IsZero() {
		return nil, nil, errInvalidAmount
	}
	if !option.valid() {
		return nil, nil, errInvalidOption
	}
	st, err := e.loadState()
	if err != nil {
		return nil, nil, err
	}
	unwrappedIn, err := e.ConvertToUnwrapped(baseIn)
	if err != nil {
		return nil, nil, err
	}
	if unwrappedIn.IsZero() {
		return nil, nil, errInvalidAmount
	}
	swap, err := e.loadSwapState(st)
	if err != nil {
		return nil, nil, err
	}
	newTotal, err := fixedpoint.Add(st.TotalBaseToken, unwrappedIn)
	if err != nil {
		return nil, nil, err
	}
	if newTotal.Gt(st.BaseTokenCap) {
		return nil, nil, ErrCapExceeded
	}
	return e.computeMint(swap, unwrappedIn, option)
}

// QuoteRedeem prices a redemption without touching state, in ledger units.
func (e *Engine) QuoteRedeem(fractionalIn, leveragedIn *uint256.Int) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	fIn := fixedpoint.Clone(fractionalIn)
	xIn := fixedpoint.Clone(leveragedIn)
	if fIn.IsZero() && xIn.IsZero() {
		return nil, errInvalidAmount
	}
	st, swap, err := e.snapshot()
	if err != nil {
		return nil, err
	}
	baseOut, err := swap.Redeem(fIn, xIn)
	if err != nil {
		return nil, err
	}
	if baseOut.Gt(st.TotalBaseToken) {
		return nil, ErrInvariantViolation
	}
	return e.ConvertToWrapped(baseOut)
}
