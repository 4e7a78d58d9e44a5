package treasury

import (
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"prism/core/events"
	"prism/crypto"
	nativecommon "prism/native/common"
	"prism/native/fixedpoint"
	"prism/native/nav"
	"prism/native/oracle"
	"prism/native/token"
)

var (
	ErrUnauthorized       = errors.New("treasury: caller not authorized")
	ErrCapExceeded        = errors.New("treasury: base token cap exceeded")
	ErrAlreadyInitialized = errors.New("treasury: reference price already initialized")
	ErrOraclePriceInvalid = errors.New("treasury: oracle price invalid")
	ErrInvariantViolation = errors.New("treasury: accounting invariant violated")

	errNilState      = errors.New("treasury: state not configured")
	errNilOracle     = errors.New("treasury: price oracle not configured")
	errNilTokens     = errors.New("treasury: token ledgers not configured")
	errInvalidAmount = errors.New("treasury: amount must be positive")
	errZeroAddress   = errors.New("treasury: address must not be zero")
	errInvalidOption = errors.New("treasury: unknown mint option")
)

const moduleName = "treasury"

// Default EMA sampling window, overridable through configuration.
const defaultEMASampleInterval = 30 * 60

// MintOption selects which claims a deposit mints.
type MintOption uint8

const (
	MintFractional MintOption = iota + 1
	MintLeveraged
	MintBoth
)

func (o MintOption) String() string {
	switch o {
	case MintFractional:
		return "fractional"
	case MintLeveraged:
		return "leveraged"
	case MintBoth:
		return "both"
	default:
		return "unknown"
	}
}

func (o MintOption) valid() bool {
	switch o {
	case MintFractional, MintLeveraged, MintBoth:
		return true
	default:
		return false
	}
}

// Storage is the narrow persistence surface the treasury consumes.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Engine owns the persistent treasury scalars and orchestrates every deposit
// and redemption. All financial math happens in the nav package over a state
// snapshot rebuilt per call from stored supplies and a fresh oracle read; the
// engine enforces authorization, caps and solvency, then applies the results
// to the token ledgers.
type Engine struct {
	state      Storage
	admins     []crypto.Address
	marketAddr crypto.Address
	moduleAddr crypto.Address

	baseToken  token.Token
	fractional token.Token
	leveraged  token.Token

	oracle       oracle.PriceOracle
	rateProvider oracle.RateProvider
	emitter      events.Emitter
	pauses       nativecommon.PauseView
	clock        func() time.Time

	initialMintRatio      *uint256.Int
	defaultBaseTokenCap   *uint256.Int
	defaultBeta           *uint256.Int
	defaultSampleInterval uint64
}

// NewEngine constructs a treasury engine authorizing the supplied admin set
// and accepting mint/redeem calls only from the market address.
func NewEngine(admins []crypto.Address, marketAddr crypto.Address) *Engine {
	cloned := make([]crypto.Address, 0, len(admins))
	for _, admin := range admins {
		if !admin.IsZero() {
			cloned = append(cloned, admin)
		}
	}
	half := fixedpoint.One()
	half.Rsh(half, 1)
	return &Engine{
		admins:                cloned,
		marketAddr:            marketAddr,
		moduleAddr:            crypto.ModuleAddress(moduleName),
		emitter:               events.NoopEmitter{},
		clock:                 time.Now,
		initialMintRatio:      half,
		defaultBaseTokenCap:   new(uint256.Int),
		defaultBeta:           new(uint256.Int),
		defaultSampleInterval: defaultEMASampleInterval,
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state Storage) {
	if e == nil {
		return
	}
	e.state = state
}

// SetTokens wires the three ledgers the treasury settles against.
func (e *Engine) SetTokens(base, fractional, leveraged token.Token) {
	if e == nil {
		return
	}
	e.baseToken = base
	e.fractional = fractional
	e.leveraged = leveraged
}

// SetPriceOracle wires the collateral price source.
func (e *Engine) SetPriceOracle(po oracle.PriceOracle) {
	if e == nil {
		return
	}
	e.oracle = po
}

// SetRateProvider wires the optional wrapped unit converter. A nil provider
// means the ledger unit and the accounting unit are identical.
func (e *Engine) SetRateProvider(provider oracle.RateProvider) {
	if e == nil {
		return
	}
	e.rateProvider = provider
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

// SetClock overrides the time source. Passing nil restores the wall clock.
func (e *Engine) SetClock(clock func() time.Time) {
	if e == nil {
		return
	}
	if clock == nil {
		e.clock = time.Now
	} else {
		e.clock = clock
	}
}

// SetInitialMintRatio configures the fractional share of the first deposit.
func (e *Engine) SetInitialMintRatio(ratio *uint256.Int) error {
	if e == nil {
		return errNilState
	}
	if ratio == nil || ratio.Gt(fixedpoint.One()) {
		return fmt.Errorf("treasury: initial mint ratio must not exceed one")
	}
	e.initialMintRatio = fixedpoint.Clone(ratio)
	return nil
}

// SetDefaultBaseTokenCap seeds the deposit ceiling applied before the first
// persisted state. A zero cap keeps deposits closed until an admin raises it.
func (e *Engine) SetDefaultBaseTokenCap(cap *uint256.Int) {
	if e == nil {
		return
	}
	e.defaultBaseTokenCap = fixedpoint.Clone(cap)
}

// SetDefaultBeta seeds the volatility multiplier slot applied before the
// first persisted state.
func (e *Engine) SetDefaultBeta(beta *uint256.Int) {
	if e == nil {
		return
	}
	e.defaultBeta = fixedpoint.Clone(beta)
}

// SetDefaultSampleInterval seeds the EMA interval used before the first
// persisted state.
func (e *Engine) SetDefaultSampleInterval(seconds uint64) {
	if e == nil {
		return
	}
	e.defaultSampleInterval = seconds
}

// ModuleAddress returns the address holding the collateral custody balance.
func (e *Engine) ModuleAddress() crypto.Address {
	return e.moduleAddr
}

// MarketAddress returns the only caller accepted for mint and redeem.
func (e *Engine) MarketAddress() crypto.Address {
	return e.marketAddr
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.oracle == nil {
		return errNilOracle
	}
	if e.baseToken == nil || e.fractional == nil || e.leveraged == nil {
		return errNilTokens
	}
	return nil
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

func (e *Engine) requireMarket(caller crypto.Address) error {
	if e.marketAddr.IsZero() || !e.marketAddr.Equal(caller) {
		return ErrUnauthorized
	}
	return nil
}

// loadSwapState rebuilds the accounting snapshot from stored supplies and a
// fresh oracle read. Regime is always derived here, never cached.
func (e *Engine) loadSwapState(st *State) (*nav.State, error) {
	valid, price := e.oracle.Price()
	if !valid || price == nil || price.IsZero() {
		return nil, ErrOraclePriceInvalid
	}
	fractionalSupply, err := e.fractional.TotalSupply()
	if err != nil {
		return nil, err
	}
	leveragedSupply, err := e.leveraged.TotalSupply()
	if err != nil {
		return nil, err
	}
	swap, err := nav.NewState(st.TotalBaseToken, price, fractionalSupply, leveragedSupply)
	if err != nil {
		return nil, err
	}
	if err := verifyIdentity(swap); err != nil {
		return nil, err
	}
	return swap, nil
}

// verifyIdentity checks the fundamental accounting identity within the
// rounding tolerance of its two truncating divisions. A wider gap means the
// derivation is corrupt and the call must abort.
func verifyIdentity(swap *nav.State) error {
	baseVal, err := fixedpoint.Mul(swap.BaseSupply, swap.BaseNav)
	if err != nil {
		return err
	}
	fractionalVal, err := fixedpoint.Mul(swap.FractionalSupply, swap.FractionalNav)
	if err != nil {
		return err
	}
	leveragedVal, err := fixedpoint.Mul(swap.LeveragedSupply, swap.LeveragedNav)
	if err != nil {
		return err
	}
	claims, err := fixedpoint.Add(fractionalVal, leveragedVal)
	if err != nil {
		return err
	}
	diff := new(uint256.Int)
	if baseVal.Gt(claims) {
		diff.Sub(baseVal, claims)
	} else {
		diff.Sub(claims, baseVal)
	}
	tolerance, err := fixedpoint.Add(swap.FractionalSupply, swap.LeveragedSupply)
	if err != nil {
		return err
	}
	if diff.Gt(tolerance) {
		return ErrInvariantViolation
	}
	return nil
}

// computeMint dispatches a converted deposit to the issuance formula for the
// requested option. Pure over the snapshot; shared by Mint and QuoteMint.
func (e *Engine) computeMint(swap *nav.State, unwrappedIn *uint256.Int, option MintOption) (*uint256.Int, *uint256.Int, error) {
	switch option {
	case MintBoth:
		if swap.BaseSupply.IsZero() {
			return nav.Bootstrap(unwrappedIn, swap.BaseNav, e.initialMintRatio)
		}
		return swap.Mint(unwrappedIn)
	case MintFractional:
		if swap.IsUnderCollateralized() {
			return nil, nil, nav.ErrUnderCollateralized
		}
		fractionalOut, err := swap.MintFractional(unwrappedIn)
		if err != nil {
			return nil, nil, err
		}
		return fractionalOut, new(uint256.Int), nil
	case MintLeveraged:
		if swap.IsUnderCollateralized() {
			return nil, nil, nav.ErrUnderCollateralized
		}
		leveragedOut, err := swap.MintLeveraged(unwrappedIn)
		if err != nil {
			return nil, nil, err
		}
		return new(uint256.Int), leveragedOut, nil
	default:
		return nil, nil, errInvalidOption
	}
}

// recordLeverage folds the current leverage ratio into the EMA. Mint and
// redeem call this with the pre-operation snapshot.
func (e *Engine) recordLeverage(st *State, swap *nav.State) error {
	leverage, err := swap.LeverageRatio()
	if err != nil {
		return err
	}
	if err := st.EMA.SaveValue(leverage); err != nil {
		return fmt.Errorf("treasury: ema update: %w", err)
	}
	return nil
}

// Mint deposits baseIn ledger units from payer and credits the minted claims
// to recipient. Only the market may call it. Fractional and leveraged options
// require a healthy system and fold the pre-mint leverage into the EMA;
// minting both sides is always ratio-neutral and skips both.
func (e *Engine) Mint(caller, payer, recipient crypto.Address, baseIn *uint256.Int, option MintOption) (*uint256.Int, *uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	if err := e.requireMarket(caller); err != nil {
		return nil, nil, err
	}
	if payer.IsZero() || recipient.IsZero() {
		return nil, nil, errZeroAddress
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

	if option != MintBoth {
		if swap.IsUnderCollateralized() {
			return nil, nil, nav.ErrUnderCollateralized
		}
		if err := e.recordLeverage(st, swap); err != nil {
			return nil, nil, err
		}
	}
	fractionalOut, leveragedOut, err := e.computeMint(swap, unwrappedIn, option)
	if err != nil {
		return nil, nil, err
	}

	if err := e.baseToken.Transfer(payer, e.moduleAddr, baseIn); err != nil {
		return nil, nil, err
	}
	if err := e.fractional.Mint(recipient, fractionalOut); err != nil {
		return nil, nil, err
	}
	if err := e.leveraged.Mint(recipient, leveragedOut); err != nil {
		return nil, nil, err
	}

	st.TotalBaseToken = newTotal
	if err := e.persistState(st); err != nil {
		return nil, nil, err
	}

	e.emitSupply(e.fractional, fractionalOut, events.SupplyReasonMint)
	e.emitSupply(e.leveraged, leveragedOut, events.SupplyReasonMint)
	return fractionalOut, leveragedOut, nil
}

// Redeem burns the supplied claims from owner and pays the resulting base
// amount, converted to ledger units, to the caller. The market forwards the
// payout net of fees. The pre-redeem leverage always folds into the EMA.
func (e *Engine) Redeem(caller, owner crypto.Address, fractionalIn, leveragedIn *uint256.Int) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.requireMarket(caller); err != nil {
		return nil, err
	}
	if owner.IsZero() {
		return nil, errZeroAddress
	}
	fIn := fixedpoint.Clone(fractionalIn)
	xIn := fixedpoint.Clone(leveragedIn)
	if fIn.IsZero() && xIn.IsZero() {
		return nil, errInvalidAmount
	}

	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	swap, err := e.loadSwapState(st)
	if err != nil {
		return nil, err
	}
	if err := e.recordLeverage(st, swap); err != nil {
		return nil, err
	}

	baseOut, err := swap.Redeem(fIn, xIn)
	if err != nil {
		return nil, err
	}
	newTotal, err := fixedpoint.Sub(st.TotalBaseToken, baseOut)
	if err != nil {
		// Paying out more than the treasury holds means the books are broken.
		if errors.Is(err, fixedpoint.ErrUnderflow) {
			return nil, ErrInvariantViolation
		}
		return nil, err
	}
	wrappedOut, err := e.ConvertToWrapped(baseOut)
	if err != nil {
		return nil, err
	}

	if err := e.fractional.Burn(owner, fIn); err != nil {
		return nil, err
	}
	if err := e.leveraged.Burn(owner, xIn); err != nil {
		return nil, err
	}
	if err := e.baseToken.Transfer(e.moduleAddr, caller, wrappedOut); err != nil {
		return nil, err
	}

	st.TotalBaseToken = newTotal
	if err := e.persistState(st); err != nil {
		return nil, err
	}

	e.emitSupply(e.fractional, fIn, events.SupplyReasonBurn)
	e.emitSupply(e.leveraged, xIn, events.SupplyReasonBurn)
	return wrappedOut, nil
}

// InitializePrice stores the current oracle price as the one-time reference.
func (e *Engine) InitializePrice(caller crypto.Address) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	if !st.LastPermissionedPrice.IsZero() {
		return nil, ErrAlreadyInitialized
	}
	valid, price := e.oracle.Price()
	if !valid || price == nil || price.IsZero() {
		return nil, ErrOraclePriceInvalid
	}
	st.LastPermissionedPrice = fixedpoint.Clone(price)
	if err := e.persistState(st); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.PriceInitialized{Caller: caller, Price: fixedpoint.Clone(price)})
	return fixedpoint.Clone(price), nil
}

// UpdateBeta stores the reserved volatility multiplier slot.
func (e *Engine) UpdateBeta(caller crypto.Address, beta *uint256.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	st, err := e.loadState()
	if err != nil {
		return err
	}
	st.Beta = fixedpoint.Clone(beta)
	if err := e.persistState(st); err != nil {
		return err
	}
	e.emitter.Emit(events.ConfigUpdated{Caller: caller, Key: "beta", Value: st.Beta.String()})
	return nil
}

// UpdatePriceOracle swaps the collateral price source.
func (e *Engine) UpdatePriceOracle(caller crypto.Address, po oracle.PriceOracle) error {
	if e == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if po == nil {
		return errNilOracle
	}
	e.oracle = po
	e.emitter.Emit(events.ConfigUpdated{Caller: caller, Key: "priceOracle", Value: "rotated"})
	return nil
}

// UpdateRateProvider swaps the wrapped unit converter. Nil restores identity
// conversion.
func (e *Engine) UpdateRateProvider(caller crypto.Address, provider oracle.RateProvider) error {
	if e == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.rateProvider = provider
	value := "identity"
	if provider != nil {
		value = "updated"
	}
	e.emitter.Emit(events.ConfigUpdated{Caller: caller, Key: "rateProvider", Value: value})
	return nil
}

// UpdateSettleWhitelist adds or removes an account from the settlement
// whitelist.
func (e *Engine) UpdateSettleWhitelist(caller, member crypto.Address, allowed bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if member.IsZero() {
		return errZeroAddress
	}
	members, err := e.loadWhitelist()
	if err != nil {
		return err
	}
	updated := make([]crypto.Address, 0, len(members)+1)
	present := false
	for _, existing := range members {
		if existing.Equal(member) {
			present = true
			if !allowed {
				continue
			}
		}
		updated = append(updated, existing)
	}
	if allowed && !present {
		updated = append(updated, member)
	}
	if err := e.persistWhitelist(updated); err != nil {
		return err
	}
	e.emitter.Emit(events.ConfigUpdated{
		Caller: caller,
		Key:    "settleWhitelist",
		Value:  fmt.Sprintf("%s=%t", member.String(), allowed),
	})
	return nil
}

// UpdateBaseTokenCap replaces the deposit ceiling.
func (e *Engine) UpdateBaseTokenCap(caller crypto.Address, cap *uint256.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	st, err := e.loadState()
	if err != nil {
		return err
	}
	st.BaseTokenCap = fixedpoint.Clone(cap)
	if err := e.persistState(st); err != nil {
		return err
	}
	e.emitter.Emit(events.ConfigUpdated{Caller: caller, Key: "baseTokenCap", Value: st.BaseTokenCap.String()})
	return nil
}

// UpdateEMASampleInterval flushes any pending window at the old interval and
// then switches to the new one.
func (e *Engine) UpdateEMASampleInterval(caller crypto.Address, seconds uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	st, err := e.loadState()
	if err != nil {
		return err
	}
	if err := st.EMA.UpdateSampleInterval(seconds); err != nil {
		return err
	}
	if err := e.persistState(st); err != nil {
		return err
	}
	e.emitter.Emit(events.ConfigUpdated{
		Caller: caller,
		Key:    "emaSampleInterval",
		Value:  fmt.Sprintf("%d", seconds),
	})
	return nil
}

func (e *Engine) emitSupply(ledger token.Token, delta *uint256.Int, reason string) {
	if delta == nil || delta.IsZero() {
		return
	}
	total, err := ledger.TotalSupply()
	if err != nil {
		return
	}
	e.emitter.Emit(events.TokenSupply{
		Token:  ledger.Symbol(),
		Total:  total,
		Delta:  fixedpoint.Clone(delta),
		Reason: reason,
	})
}
