package market

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/holiman/uint256"

	"prism/core/events"
	"prism/crypto"
	nativecommon "prism/native/common"
	"prism/native/fixedpoint"
	"prism/native/token"
	"prism/native/treasury"
)

var (
	ErrSlippage          = errors.New("market: output below caller minimum")
	ErrInvalidRedemption = errors.New("market: exactly one side must be redeemed")
	ErrReentrantCall     = errors.New("market: reentrant call")
	ErrUnauthorized      = errors.New("market: caller not authorized")
	ErrMintPaused        = errors.New("market: minting paused")
	ErrRedeemPaused      = errors.New("market: redemption paused")

	errNilState      = errors.New("market: state not configured")
	errNilTreasury   = errors.New("market: treasury not configured")
	errNilTokens     = errors.New("market: token ledgers not configured")
	errInvalidAmount = errors.New("market: amount must be positive")
	errZeroAddress   = errors.New("market: address must not be zero")
)

const moduleName = "market"

// Storage is the narrow persistence surface the market consumes.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Engine wraps the treasury with the fee and regime layer: it resolves the
// caller's request, sizes the portions on either side of the stability
// boundary, charges the tiered fee, checks the slippage bound against a quote
// over the same state the execution will see, and only then moves funds. Fees
// settle at the platform address; the treasury sees deposits net of fees.
type Engine struct {
	state      Storage
	admins     []crypto.Address
	moduleAddr crypto.Address

	treasury   *treasury.Engine
	baseToken  token.Token
	fractional token.Token
	leveraged  token.Token

	emitter events.Emitter
	pauses  nativecommon.PauseView

	defaults Config
	busy     atomic.Bool
}

// NewEngine constructs a market engine authorizing the supplied admin set.
// Its module address is the caller identity the treasury must be bound to.
func NewEngine(admins []crypto.Address) *Engine {
	cloned := make([]crypto.Address, 0, len(admins))
	for _, admin := range admins {
		if !admin.IsZero() {
			cloned = append(cloned, admin)
		}
	}
	return &Engine{
		admins:     cloned,
		moduleAddr: crypto.ModuleAddress(moduleName),
		emitter:    events.NoopEmitter{},
		defaults:   DefaultConfig(),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state Storage) {
	if e == nil {
		return
	}
	e.state = state
}

// SetTreasury wires the treasury the market settles against.
func (e *Engine) SetTreasury(t *treasury.Engine) {
	if e == nil {
		return
	}
	e.treasury = t
}

// SetTokens wires the three ledgers used for balances and fee transfers.
func (e *Engine) SetTokens(base, fractional, leveraged token.Token) {
	if e == nil {
		return
	}
	e.baseToken = base
	e.fractional = fractional
	e.leveraged = leveraged
}

// SetEmitter wires the event sink. A nil emitter restores the discard sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetDefaultConfig replaces the parameter set used before anything was
// persisted. The daemon seeds it from the configuration file at boot.
func (e *Engine) SetDefaultConfig(cfg Config) error {
	if e == nil {
		return errNilState
	}
	cfg.Normalise()
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.defaults = cfg
	return nil
}

// ModuleAddress returns the identity the market presents to the treasury.
func (e *Engine) ModuleAddress() crypto.Address {
	return e.moduleAddr
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.treasury == nil {
		return errNilTreasury
	}
	if e.baseToken == nil || e.fractional == nil || e.leveraged == nil {
		return errNilTokens
	}
	return nil
}

func (e *Engine) enter() error {
	if !e.busy.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

func (e *Engine) leave() {
	e.busy.Store(false)
}

func (e *Engine) isAdmin(caller crypto.Address) bool {
	for _, admin := range e.admins {
		if admin.Equal(caller) {
			return true
		}
	}
	return false
}

func (e *Engine) requireAdmin(caller crypto.Address) error {
	if !e.isAdmin(caller) {
		return ErrUnauthorized
	}
	return nil
}

// resolveAmount maps the all-ones sentinel to the owner's entire balance and
// clones everything else.
func (e *Engine) resolveAmount(amount *uint256.Int, ledger token.Token, owner crypto.Address) (*uint256.Int, error) {
	if amount == nil {
		return new(uint256.Int), nil
	}
	if isSentinel(amount) {
		return ledger.BalanceOf(owner)
	}
	return fixedpoint.Clone(amount), nil
}

func (e *Engine) resolveDeposit(caller, recipient crypto.Address, baseIn *uint256.Int) (*uint256.Int, error) {
	if caller.IsZero() || recipient.IsZero() {
		return nil, errZeroAddress
	}
	amount, err := e.resolveAmount(baseIn, e.baseToken, caller)
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, errInvalidAmount
	}
	return amount, nil
}

func (e *Engine) checkBalance(ledger token.Token, owner crypto.Address, amount *uint256.Int) error {
	balance, err := ledger.BalanceOf(owner)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return token.ErrInsufficientBalance
	}
	return nil
}

func (e *Engine) payFee(payer, platform crypto.Address, fee *uint256.Int) error {
	if fee == nil || fee.IsZero() {
		return nil
	}
	return e.baseToken.Transfer(payer, platform, fee)
}

// MintFractional deposits base token for fractional tokens. The deposit is
// charged the fractional mint fee: the portion that keeps the system out of
// stability mode pays the default tier, the remainder the stability tier.
// With the stability gate active the request clamps to that headroom instead.
func (e *Engine) MintFractional(caller, recipient crypto.Address, baseIn, minFractionalOut *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if err := e.enter(); err != nil {
		return nil, nil, err
	}
	defer e.leave()
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Pauses.Mint {
		return nil, nil, ErrMintPaused
	}
	amount, err := e.resolveDeposit(caller, recipient, baseIn)
	if err != nil {
		return nil, nil, err
	}
	boundaryUnwrapped, _, err := e.treasury.MaxMintableFractional(cfg.StabilityRatio)
	if err != nil {
		return nil, nil, err
	}
	boundary, err := e.treasury.ConvertToWrapped(boundaryUnwrapped)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Pauses.FractionalMintInStability {
		if amount.Gt(boundary) {
			amount = fixedpoint.Clone(boundary)
		}
		if amount.IsZero() {
			return nil, nil, fmt.Errorf("%w: no fractional mint headroom before stability mode", ErrMintPaused)
		}
	}
	if err := e.checkBalance(e.baseToken, caller, amount); err != nil {
		return nil, nil, err
	}
	first, second := splitAtBoundary(amount, boundary)
	fee, err := pieceFee(first, cfg.FractionalMintFee.DefaultTier(), second, cfg.FractionalMintFee.StabilityTier())
	if err != nil {
		return nil, nil, err
	}
	netIn, err := fixedpoint.Sub(amount, fee)
	if err != nil {
		return nil, nil, err
	}
	if netIn.IsZero() {
		return nil, nil, errInvalidAmount
	}
	quoted, _, err := e.treasury.QuoteMint(netIn, treasury.MintFractional)
	if err != nil {
		return nil, nil, err
	}
	if minFractionalOut != nil && quoted.Lt(minFractionalOut) {
		return nil, nil, ErrSlippage
	}
	fractionalOut, _, err := e.treasury.Mint(e.moduleAddr, caller, recipient, netIn, treasury.MintFractional)
	if err != nil {
		return nil, nil, err
	}
	if err := e.payFee(caller, cfg.Platform, fee); err != nil {
		return nil, nil, err
	}
	e.emitter.Emit(events.MarketMint{
		Caller:        caller,
		Recipient:     recipient,
		Option:        treasury.MintFractional.String(),
		BaseIn:        amount,
		FeeBase:       fee,
		FractionalOut: fractionalOut,
		LeveragedOut:  new(uint256.Int),
	})
	return fractionalOut, fee, nil
}

// MintLeveraged deposits base token for leveraged tokens. Tier assignment is
// the mirror of the fractional mint: the portion that fills the gap up to the
// stability ratio pays the stability tier (typically discounted), anything
// beyond pays the default tier.
func (e *Engine) MintLeveraged(caller, recipient crypto.Address, baseIn, minLeveragedOut *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if err := e.enter(); err != nil {
		return nil, nil, err
	}
	defer e.leave()
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Pauses.Mint {
		return nil, nil, ErrMintPaused
	}
	amount, err := e.resolveDeposit(caller, recipient, baseIn)
	if err != nil {
		return nil, nil, err
	}
	boundaryUnwrapped, _, err := e.treasury.MaxMintableLeveraged(cfg.StabilityRatio)
	if err != nil {
		return nil, nil, err
	}
	boundary, err := e.treasury.ConvertToWrapped(boundaryUnwrapped)
	if err != nil {
		return nil, nil, err
	}
	if err := e.checkBalance(e.baseToken, caller, amount); err != nil {
		return nil, nil, err
	}
	first, second := splitAtBoundary(amount, boundary)
	fee, err := pieceFee(first, cfg.LeveragedMintFee.StabilityTier(), second, cfg.LeveragedMintFee.DefaultTier())
	if err != nil {
		return nil, nil, err
	}
	netIn, err := fixedpoint.Sub(amount, fee)
	if err != nil {
		return nil, nil, err
	}
	if netIn.IsZero() {
		return nil, nil, errInvalidAmount
	}
	_, quoted, err := e.treasury.QuoteMint(netIn, treasury.MintLeveraged)
	if err != nil {
		return nil, nil, err
	}
	if minLeveragedOut != nil && quoted.Lt(minLeveragedOut) {
		return nil, nil, ErrSlippage
	}
	_, leveragedOut, err := e.treasury.Mint(e.moduleAddr, caller, recipient, netIn, treasury.MintLeveraged)
	if err != nil {
		return nil, nil, err
	}
	if err := e.payFee(caller, cfg.Platform, fee); err != nil {
		return nil, nil, err
	}
	e.emitter.Emit(events.MarketMint{
		Caller:        caller,
		Recipient:     recipient,
		Option:        treasury.MintLeveraged.String(),
		BaseIn:        amount,
		FeeBase:       fee,
		FractionalOut: new(uint256.Int),
		LeveragedOut:  leveragedOut,
	})
	return leveragedOut, fee, nil
}

// MintBoth deposits base token for both claims pro rata. The operation is
// ratio neutral, so it carries no fee and no regime gating beyond the global
// mint pause.
func (e *Engine) MintBoth(caller, recipient crypto.Address, baseIn, minFractionalOut, minLeveragedOut *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if err := e.enter(); err != nil {
		return nil, nil, err
	}
	defer e.leave()
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Pauses.Mint {
		return nil, nil, ErrMintPaused
	}
	amount, err := e.resolveDeposit(caller, recipient, baseIn)
	if err != nil {
		return nil, nil, err
	}
	if err := e.checkBalance(e.baseToken, caller, amount); err != nil {
		return nil, nil, err
	}
	quotedF, quotedX, err := e.treasury.QuoteMint(amount, treasury.MintBoth)
	if err != nil {
		return nil, nil, err
	}
	if minFractionalOut != nil && quotedF.Lt(minFractionalOut) {
		return nil, nil, ErrSlippage
	}
	if minLeveragedOut != nil && quotedX.Lt(minLeveragedOut) {
		return nil, nil, ErrSlippage
	}
	fractionalOut, leveragedOut, err := e.treasury.Mint(e.moduleAddr, caller, recipient, amount, treasury.MintBoth)
	if err != nil {
		return nil, nil, err
	}
	e.emitter.Emit(events.MarketMint{
		Caller:        caller,
		Recipient:     recipient,
		Option:        treasury.MintBoth.String(),
		BaseIn:        amount,
		FeeBase:       new(uint256.Int),
		FractionalOut: fractionalOut,
		LeveragedOut:  leveragedOut,
	})
	return fractionalOut, leveragedOut, nil
}

// Redeem burns exactly one token side for base token. The redemption fee is a
// single ratio blended from the two tiers by how the amount straddles the
// stability boundary, applied to the payout. Returns the net payout and fee.
func (e *Engine) Redeem(caller, recipient crypto.Address, fractionalIn, leveragedIn, minBaseOut *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if err := e.enter(); err != nil {
		return nil, nil, err
	}
	defer e.leave()
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Pauses.Redeem {
		return nil, nil, ErrRedeemPaused
	}
	if caller.IsZero() || recipient.IsZero() {
		return nil, nil, errZeroAddress
	}
	fIn, err := e.resolveAmount(fractionalIn, e.fractional, caller)
	if err != nil {
		return nil, nil, err
	}
	xIn, err := e.resolveAmount(leveragedIn, e.leveraged, caller)
	if err != nil {
		return nil, nil, err
	}
	if fIn.IsZero() == xIn.IsZero() {
		return nil, nil, ErrInvalidRedemption
	}

	var ratio *uint256.Int
	if !fIn.IsZero() {
		if err := e.checkBalance(e.fractional, caller, fIn); err != nil {
			return nil, nil, err
		}
		// Inside stability mode the first portion lifts the ratio back to the
		// boundary and prices at the stability tier.
		_, boundary, err := e.treasury.FractionalRedemptionToRatio(cfg.StabilityRatio)
		if err != nil {
			return nil, nil, err
		}
		first, second := splitAtBoundary(fIn, boundary)
		ratio, err = blendedRatio(first, cfg.FractionalRedeemFee.StabilityTier(), second, cfg.FractionalRedeemFee.DefaultTier())
		if err != nil {
			return nil, nil, err
		}
	} else {
		if err := e.checkBalance(e.leveraged, caller, xIn); err != nil {
			return nil, nil, err
		}
		// The first portion keeps the system out of stability mode and prices
		// at the default tier; the remainder pushes it under the boundary.
		_, boundary, err := e.treasury.MaxRedeemableLeveraged(cfg.StabilityRatio)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Pauses.LeveragedRedeemInStability {
			if xIn.Gt(boundary) {
				xIn = fixedpoint.Clone(boundary)
			}
			if xIn.IsZero() {
				return nil, nil, fmt.Errorf("%w: no leveraged redemption headroom before stability mode", ErrRedeemPaused)
			}
		}
		first, second := splitAtBoundary(xIn, boundary)
		ratio, err = blendedRatio(first, cfg.LeveragedRedeemFee.DefaultTier(), second, cfg.LeveragedRedeemFee.StabilityTier())
		if err != nil {
			return nil, nil, err
		}
	}

	quoted, err := e.treasury.QuoteRedeem(fIn, xIn)
	if err != nil {
		return nil, nil, err
	}
	fee, err := fixedpoint.MulUnit(quoted, ratio)
	if err != nil {
		return nil, nil, err
	}
	netOut, err := fixedpoint.Sub(quoted, fee)
	if err != nil {
		return nil, nil, err
	}
	if minBaseOut != nil && netOut.Lt(minBaseOut) {
		return nil, nil, ErrSlippage
	}

	baseOut, err := e.treasury.Redeem(e.moduleAddr, caller, fIn, xIn)
	if err != nil {
		return nil, nil, err
	}
	netOut, err = fixedpoint.Sub(baseOut, fee)
	if err != nil {
		return nil, nil, err
	}
	if err := e.baseToken.Transfer(e.moduleAddr, recipient, netOut); err != nil {
		return nil, nil, err
	}
	if err := e.payFee(e.moduleAddr, cfg.Platform, fee); err != nil {
		return nil, nil, err
	}
	e.emitter.Emit(events.MarketRedeem{
		Caller:       caller,
		Recipient:    recipient,
		FractionalIn: fIn,
		LeveragedIn:  xIn,
		FeeBase:      fee,
		BaseOut:      netOut,
	})
	return netOut, fee, nil
}

// RedeemFractional burns fractional tokens for base token.
func (e *Engine) RedeemFractional(caller, recipient crypto.Address, fractionalIn, minBaseOut *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	return e.Redeem(caller, recipient, fractionalIn, nil, minBaseOut)
}

// RedeemLeveraged burns leveraged tokens for base token.
func (e *Engine) RedeemLeveraged(caller, recipient crypto.Address, leveragedIn, minBaseOut *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	return e.Redeem(caller, recipient, nil, leveragedIn, minBaseOut)
}

// Config returns a copy of the live parameter set.
func (e *Engine) Config() (Config, error) {
	if e == nil || e.state == nil {
		return Config{}, errNilState
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return Config{}, err
	}
	return cfg.Clone(), nil
}

// Regime classifies the current collateral ratio against the threshold chain
// and returns both.
func (e *Engine) Regime() (Regime, *uint256.Int, error) {
	if err := e.ready(); err != nil {
		return RegimeHealthy, nil, err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return RegimeHealthy, nil, err
	}
	ratio, err := e.treasury.CollateralRatio()
	if err != nil {
		return RegimeHealthy, nil, err
	}
	return classifyRegime(cfg, ratio), ratio, nil
}

// LiquidationQuote sizes the fractional liquidation that would lift the ratio
// back to the self liquidation threshold at the configured incentive.
func (e *Engine) LiquidationQuote() (*uint256.Int, *uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return e.treasury.MaxLiquidatable(cfg.SelfLiquidationRatio, cfg.LiquidationIncentive)
}

// UpdateStabilityRatios replaces the four regime thresholds in one step so the
// ordering invariant never passes through an invalid intermediate.
func (e *Engine) UpdateStabilityRatios(caller crypto.Address, stability, liquidation, selfLiquidation, recap *uint256.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	cfg.StabilityRatio = fixedpoint.Clone(stability)
	cfg.LiquidationRatio = fixedpoint.Clone(liquidation)
	cfg.SelfLiquidationRatio = fixedpoint.Clone(selfLiquidation)
	cfg.RecapRatio = fixedpoint.Clone(recap)
	if err := e.persistConfig(cfg); err != nil {
		return err
	}
	e.emitter.Emit(events.ConfigUpdated{
		Caller: caller,
		Key:    "regimeThresholds",
		Value:  fmt.Sprintf("%s/%s/%s/%s", cfg.StabilityRatio, cfg.LiquidationRatio, cfg.SelfLiquidationRatio, cfg.RecapRatio),
	})
	return nil
}

// UpdateMintFees replaces both mint fee pairs.
func (e *Engine) UpdateMintFees(caller crypto.Address, fractional, leveraged FeeRatio) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	cfg.FractionalMintFee = fractional.Clone()
	cfg.LeveragedMintFee = leveraged.Clone()
	if err := e.persistConfig(cfg); err != nil {
		return err
	}
	e.emitter.Emit(events.ConfigUpdated{
		Caller: caller,
		Key:    "mintFees",
		Value:  fmt.Sprintf("fractional=%s leveraged=%s", cfg.FractionalMintFee, cfg.LeveragedMintFee),
	})
	return nil
}

// UpdateRedeemFees replaces both redemption fee pairs.
func (e *Engine) UpdateRedeemFees(caller crypto.Address, fractional, leveraged FeeRatio) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	cfg.FractionalRedeemFee = fractional.Clone()
	cfg.LeveragedRedeemFee = leveraged.Clone()
	if err := e.persistConfig(cfg); err != nil {
		return err
	}
	e.emitter.Emit(events.ConfigUpdated{
		Caller: caller,
		Key:    "redeemFees",
		Value:  fmt.Sprintf("fractional=%s leveraged=%s", cfg.FractionalRedeemFee, cfg.LeveragedRedeemFee),
	})
	return nil
}

// UpdatePauseFlags replaces the operation gates.
func (e *Engine) UpdatePauseFlags(caller crypto.Address, flags PauseFlags) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	cfg.Pauses = flags
	if err := e.persistConfig(cfg); err != nil {
		return err
	}
	e.emitter.Emit(events.ConfigUpdated{
		Caller: caller,
		Key:    "pauseFlags",
		Value: fmt.Sprintf("mint=%t redeem=%t fractionalMintInStability=%t leveragedRedeemInStability=%t",
			flags.Mint, flags.Redeem, flags.FractionalMintInStability, flags.LeveragedRedeemInStability),
	})
	return nil
}

// UpdatePlatformAddress replaces the fee sink.
func (e *Engine) UpdatePlatformAddress(caller, platform crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if platform.IsZero() {
		return errZeroAddress
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	cfg.Platform = platform
	if err := e.persistConfig(cfg); err != nil {
		return err
	}
	e.emitter.Emit(events.ConfigUpdated{Caller: caller, Key: "platform", Value: platform.String()})
	return nil
}

// UpdateLiquidationIncentive replaces the incentive used by liquidation
// quotes.
func (e *Engine) UpdateLiquidationIncentive(caller crypto.Address, incentive *uint256.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	cfg.LiquidationIncentive = fixedpoint.Clone(incentive)
	if err := e.persistConfig(cfg); err != nil {
		return err
	}
	e.emitter.Emit(events.ConfigUpdated{Caller: caller, Key: "liquidationIncentive", Value: cfg.LiquidationIncentive.String()})
	return nil
}
