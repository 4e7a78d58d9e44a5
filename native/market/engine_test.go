package market

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"prism/core/events"
	"prism/crypto"
	nativecommon "prism/native/common"
	"prism/native/fixedpoint"
	"prism/native/oracle"
	"prism/native/token"
	"prism/native/treasury"
)

type memoryStore struct {
	entries map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string][]byte)}
}

func (m *memoryStore) KVGet(key []byte, out interface{}) (bool, error) {
	raw, ok := m.entries[string(key)]
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	return true, rlp.DecodeBytes(raw, out)
}

func (m *memoryStore) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.entries[string(key)] = encoded
	return nil
}

func testAddr(b byte) crypto.Address {
	return crypto.MustNewAddress(crypto.PrismPrefix, bytes.Repeat([]byte{b}, 20))
}

func amt(decimal string) *uint256.Int {
	return fixedpoint.MustFromDecimal(decimal)
}

type marketFixture struct {
	market     *Engine
	treasury   *treasury.Engine
	store      *memoryStore
	oracle     *oracle.ManualOracle
	base       *token.Ledger
	fractional *token.Ledger
	leveraged  *token.Ledger
	admin      crypto.Address
	user       crypto.Address
	recipient  crypto.Address
	platform   crypto.Address
	now        time.Time
}

func (f *marketFixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func newMarketFixture(t *testing.T) *marketFixture {
	t.Helper()
	store := newMemoryStore()
	base, err := token.NewLedger(store, "BASE")
	if err != nil {
		t.Fatalf("base ledger: %v", err)
	}
	fractional, err := token.NewLedger(store, "prUSD")
	if err != nil {
		t.Fatalf("fractional ledger: %v", err)
	}
	leveraged, err := token.NewLedger(store, "prX")
	if err != nil {
		t.Fatalf("leveraged ledger: %v", err)
	}
	manual := oracle.NewManualOracle()
	f := &marketFixture{
		store:      store,
		oracle:     manual,
		base:       base,
		fractional: fractional,
		leveraged:  leveraged,
		admin:      testAddr(0xAA),
		user:       testAddr(0x01),
		recipient:  testAddr(0x02),
		platform:   DefaultConfig().Platform,
		now:        time.Unix(1_700_000_000, 0),
	}
	if err := manual.SetDecimal("1", f.now); err != nil {
		t.Fatalf("seed oracle: %v", err)
	}
	market := NewEngine([]crypto.Address{f.admin})
	tre := treasury.NewEngine([]crypto.Address{f.admin}, market.ModuleAddress())
	tre.SetState(store)
	tre.SetTokens(base, fractional, leveraged)
	tre.SetPriceOracle(manual)
	tre.SetClock(func() time.Time { return f.now })
	tre.SetDefaultBaseTokenCap(amt("1000000"))
	market.SetState(store)
	market.SetTreasury(tre)
	market.SetTokens(base, fractional, leveraged)
	f.market = market
	f.treasury = tre
	return f
}

func (f *marketFixture) fund(t *testing.T, addr crypto.Address, amount *uint256.Int) {
	t.Helper()
	if err := f.base.Mint(addr, amount); err != nil {
		t.Fatalf("fund: %v", err)
	}
}

// bootstrap seeds the book through the market with a fee free MintBoth so the
// collateral ratio starts exactly at 1/ratio.
func (f *marketFixture) bootstrap(t *testing.T, amount, ratio string) {
	t.Helper()
	if err := f.treasury.SetInitialMintRatio(fixedpoint.MustFromDecimal(ratio)); err != nil {
		t.Fatalf("set ratio: %v", err)
	}
	f.fund(t, f.user, amt(amount))
	if _, _, err := f.market.MintBoth(f.user, f.user, amt(amount), nil, nil); err != nil {
		t.Fatalf("bootstrap mint: %v", err)
	}
}

func mustBalance(t *testing.T, ledger token.Token, addr crypto.Address) *uint256.Int {
	t.Helper()
	balance, err := ledger.BalanceOf(addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance
}

func assertAmount(t *testing.T, got *uint256.Int, want string) {
	t.Helper()
	if !got.Eq(amt(want)) {
		t.Fatalf("amount = %s, want %s", got, amt(want))
	}
}

// Book 1000 base against 700 fractional sits at ratio 1.429; the deposit that
// brings it down to the 1.3 boundary is 300. A 500 deposit therefore pays the
// default tier on 300 and the stability tier on the remaining 200.
func TestMintFractionalStraddlesBoundary(t *testing.T) {
	f := newMarketFixture(t)
	f.bootstrap(t, "1000", "0.7")
	f.fund(t, f.user, amt("500"))

	fOut, fee, err := f.market.MintFractional(f.user, f.user, amt("500"), nil)
	if err != nil {
		t.Fatalf("mint fractional: %v", err)
	}
	// 300*0.0025 + 200*0.0125
	assertAmount(t, fee, "3.25")
	assertAmount(t, fOut, "496.75")
	assertAmount(t, mustBalance(t, f.base, f.platform), "3.25")
	assertAmount(t, mustBalance(t, f.base, f.user), "0")
	assertAmount(t, mustBalance(t, f.base, f.treasury.ModuleAddress()), "1496.75")
	assertAmount(t, mustBalance(t, f.fractional, f.user), "1196.75")

	regime, _, err := f.market.Regime()
	if err != nil {
		t.Fatalf("regime: %v", err)
	}
	if regime != RegimeStability {
		t.Fatalf("regime = %s, want stability", regime)
	}
}

// Book 1000 base against 900 fractional sits at ratio 1.111. A leveraged
// deposit of 170 lifts it back to 1.3, priced at the stability tier, which the
// default parameters discount to zero; the remaining 80 pays the default tier.
func TestMintLeveragedDiscountedInStability(t *testing.T) {
	f := newMarketFixture(t)
	f.bootstrap(t, "1000", "0.9")
	f.fund(t, f.user, amt("250"))

	xOut, fee, err := f.market.MintLeveraged(f.user, f.user, amt("250"), nil)
	if err != nil {
		t.Fatalf("mint leveraged: %v", err)
	}
	// 170*0 + 80*0.01
	assertAmount(t, fee, "0.8")
	assertAmount(t, xOut, "249.2")
	assertAmount(t, mustBalance(t, f.base, f.platform), "0.8")
	assertAmount(t, mustBalance(t, f.leveraged, f.user), "349.2")

	regime, _, err := f.market.Regime()
	if err != nil {
		t.Fatalf("regime: %v", err)
	}
	if regime != RegimeHealthy {
		t.Fatalf("regime = %s, want healthy", regime)
	}
}

// Book 1200 base against 960 fractional sits at ratio 1.25. Burning 160
// fractional lifts it to 1.3, priced at the stability tier which the defaults
// discount to zero; the remaining 240 pays the default tier. The fee lands as
// one blended ratio on the payout.
func TestRedeemFractionalBlendsTiersAcrossBoundary(t *testing.T) {
	f := newMarketFixture(t)
	f.bootstrap(t, "1200", "0.8")

	netOut, fee, err := f.market.RedeemFractional(f.user, f.recipient, amt("400"), nil)
	if err != nil {
		t.Fatalf("redeem fractional: %v", err)
	}
	// blended ratio (160*0 + 240*0.0025) / 400 = 0.0015 on a 400 payout
	assertAmount(t, fee, "0.6")
	assertAmount(t, netOut, "399.4")
	assertAmount(t, mustBalance(t, f.base, f.recipient), "399.4")
	assertAmount(t, mustBalance(t, f.base, f.platform), "0.6")
	assertAmount(t, mustBalance(t, f.fractional, f.user), "560")
	assertAmount(t, mustBalance(t, f.base, f.treasury.ModuleAddress()), "800")

	regime, _, err := f.market.Regime()
	if err != nil {
		t.Fatalf("regime: %v", err)
	}
	if regime != RegimeHealthy {
		t.Fatalf("regime = %s, want healthy", regime)
	}
}

// Book 1000 base against 700 fractional tolerates a 90 leveraged redemption
// before crossing the 1.3 boundary. A 150 redemption pays the default tier on
// the first 90 and the stability premium on the remaining 60.
func TestRedeemLeveragedPremiumCrossingBoundary(t *testing.T) {
	f := newMarketFixture(t)
	f.bootstrap(t, "1000", "0.7")

	netOut, fee, err := f.market.RedeemLeveraged(f.user, f.user, amt("150"), nil)
	if err != nil {
		t.Fatalf("redeem leveraged: %v", err)
	}
	// blended ratio (90*0.01 + 60*0.08) / 150 = 0.038 on a 150 payout
	assertAmount(t, fee, "5.7")
	assertAmount(t, netOut, "144.3")
	assertAmount(t, mustBalance(t, f.base, f.platform), "5.7")
	assertAmount(t, mustBalance(t, f.leveraged, f.user), "150")
	assertAmount(t, mustBalance(t, f.base, f.treasury.ModuleAddress()), "850")
}

func TestMintBothChargesNoFee(t *testing.T) {
	f := newMarketFixture(t)
	f.bootstrap(t, "1000", "0.7")
	f.fund(t, f.user, amt("100"))

	fOut, xOut, err := f.market.MintBoth(f.user, f.user, amt("100"), nil, nil)
	if err != nil {
		t.Fatalf("mint both: %v", err)
	}
	assertAmount(t, fOut, "70")
	assertAmount(t, xOut, "30")
	assertAmount(t, mustBalance(t, f.base, f.platform), "0")
	assertAmount(t, mustBalance(t, f.base, f.treasury.ModuleAddress()), "1100")
}

func TestSlippageBoundRejectsWithoutMutation(t *testing.T) {
	f := newMarketFixture(t)
	f.bootstrap(t, "1000", "0.7")
	f.fund(t, f.user, amt("100"))

	_, _, err := f.market.MintFractional(f.user, f.user, amt("100"), amt("100"))
	if !errors.Is(err, ErrSlippage) {
		t.Fatalf("expected ErrSlippage, got %v", err)
	}
	assertAmount(t, mustBalance(t, f.base, f.user), "100")
	assertAmount(t, mustBalance(t, f.base, f.treasury.ModuleAddress()), "1000")
	assertAmount(t, mustBalance(t, f.fractional, f.user), "700")

	_, _, err = f.market.RedeemFractional(f.user, f.user, amt("100"), amt("100"))
	if !errors.Is(err, ErrSlippage) {
		t.Fatalf("expected ErrSlippage, got %v", err)
	}
	assertAmount(t, mustBalance(t, f.fractional, f.user), "700")
}

func TestSentinelAmountSpendsFullBalance(t *testing.T) {
	f := newMarketFixture(t)
	f.bootstrap(t, "1000", "0.7")
	f.fund(t, f.user, amt("1000"))

	sentinel := new(uint256.Int).SetAllOne()
	fOut, fee, err := f.market.MintFractional(f.user, f.user, sentinel, nil)
	if err != nil {
		t.Fatalf("mint fractional: %v", err)
	}
	// 300*0.0025 + 700*0.0125
	assertAmount(t, fee, "9.5")
	assertAmount(t, fOut, "990.5")
	assertAmount(t, mustBalance(t, f.base, f.user), "0")
}

func TestRedeemRequiresExactlyOneSide(t *testing.T) {
	f := newMarketFixture(t)
	f.bootstrap(t, "1000", "0.7")

	_, _, err := f.market.Redeem(f.user, f.user, amt("1"), amt("1"), nil)
	if !errors.Is(err, ErrInvalidRedemption) {
		t.Fatalf("expected ErrInvalidRedemption, got %v", err)
	}
	_, _, err = f.market.Redeem(f.user, f.user, nil, nil, nil)
	if !errors.Is(err, ErrInvalidRedemption) {
		t.Fatalf("expected ErrInvalidRedemption, got %v", err)
	}
}

func TestInsufficientBalanceRejected(t *testing.T) {
	f := newMarketFixture(t)
	f.bootstrap(t, "1000", "0.7")
	f.fund(t, f.user, amt("100"))

	_, _, err := f.market.MintFractional(f.user, f.user, amt("150"), nil)
	if !errors.Is(err, token.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	_, _, err = f.market.RedeemFractional(f.user, f.user, amt("800"), nil)
	if !errors.Is(err, token.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestPauseFlagsGateOperations(t *testing.T) {
	f := newMarketFixture(t)
	f.bootstrap(t, "1000", "0.7")
	f.fund(t, f.user, amt("100"))

	if err := f.market.UpdatePauseFlags(f.admin, PauseFlags{Mint: true}); err != nil {
		t.Fatalf("update pauses: %v", err)
	}
	if _, _, err := f.market.MintFractional(f.user, f.user, amt("10"), nil); !errors.Is(err, ErrMintPaused) {
		t.Fatalf("expected ErrMintPaused, got %v", err)
	}
	if _, _, err := f.market.MintBoth(f.user, f.user, amt("10"), nil, nil); !errors.Is(err, ErrMintPaused) {
		t.Fatalf("expected ErrMintPaused, got %v", err)
	}

	if err := f.market.UpdatePauseFlags(f.admin, PauseFlags{Redeem: true}); err != nil {
		t.Fatalf("update pauses: %v", err)
	}
	if _, _, err := f.market.MintFractional(f.user, f.user, amt("10"), nil); err != nil {
		t.Fatalf("mint after unpause: %v", err)
	}
	if _, _, err := f.market.RedeemFractional(f.user, f.user, amt("10"), nil); !errors.Is(err, ErrRedeemPaused) {
		t.Fatalf("expected ErrRedeemPaused, got %v", err)
	}
}

func TestModulePauseGatesMarket(t *testing.T) {
	f := newMarketFixture(t)
	f.bootstrap(t, "1000", "0.7")
	f.fund(t, f.user, amt("10"))

	pauses := nativecommon.NewPauses()
	f.market.SetPauses(pauses)
	pauses.SetPaused("market", true)
	if _, _, err := f.market.MintBoth(f.user, f.user, amt("10"), nil, nil); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	pauses.SetPaused("market", false)
	if _, _, err := f.market.MintBoth(f.user, f.user, amt("10"), nil, nil); err != nil {
		t.Fatalf("mint after unpause: %v", err)
	}
}

func TestStabilityGateClampsFractionalMint(t *testing.T) {
	f := newMarketFixture(t)
	f.bootstrap(t, "1000", "0.7")
	f.fund(t, f.user, amt("500"))
	if err := f.market.UpdatePauseFlags(f.admin, PauseFlags{FractionalMintInStability: true}); err != nil {
		t.Fatalf("update pauses: %v", err)
	}

	// Clamped to the 300 of headroom; the whole deposit prices at the
	// default tier.
	fOut, fee, err := f.market.MintFractional(f.user, f.user, amt("500"), nil)
	if err != nil {
		t.Fatalf("mint fractional: %v", err)
	}
	assertAmount(t, fee, "0.75")
	assertAmount(t, fOut, "299.25")
	assertAmount(t, mustBalance(t, f.base, f.user), "200")
}

func TestStabilityGateBlocksFractionalMintBelowBoundary(t *testing.T) {
	f := newMarketFixture(t)
	f.bootstrap(t, "1200", "0.8")
	f.fund(t, f.user, amt("10"))
	if err := f.market.UpdatePauseFlags(f.admin, PauseFlags{FractionalMintInStability: true}); err != nil {
		t.Fatalf("update pauses: %v", err)
	}

	_, _, err := f.market.MintFractional(f.user, f.user, amt("10"), nil)
	if !errors.Is(err, ErrMintPaused) {
		t.Fatalf("expected ErrMintPaused, got %v", err)
	}
}

func TestStabilityGateClampsLeveragedRedeem(t *testing.T) {
	f := newMarketFixture(t)
	f.bootstrap(t, "1000", "0.7")
	if err := f.market.UpdatePauseFlags(f.admin, PauseFlags{LeveragedRedeemInStability: true}); err != nil {
		t.Fatalf("update pauses: %v", err)
	}

	// Clamped to the 90 of headroom above the boundary.
	netOut, fee, err := f.market.RedeemLeveraged(f.user, f.user, amt("150"), nil)
	if err != nil {
		t.Fatalf("redeem leveraged: %v", err)
	}
	assertAmount(t, fee, "0.9")
	assertAmount(t, netOut, "89.1")
	assertAmount(t, mustBalance(t, f.leveraged, f.user), "210")
}

func TestStabilityGateBlocksLeveragedRedeemBelowBoundary(t *testing.T) {
	f := newMarketFixture(t)
	f.bootstrap(t, "1200", "0.8")
	if err := f.market.UpdatePauseFlags(f.admin, PauseFlags{LeveragedRedeemInStability: true}); err != nil {
		t.Fatalf("update pauses: %v", err)
	}

	_, _, err := f.market.RedeemLeveraged(f.user, f.user, amt("10"), nil)
	if !errors.Is(err, ErrRedeemPaused) {
		t.Fatalf("expected ErrRedeemPaused, got %v", err)
	}
}

type reentrantBase struct {
	inner  token.Token
	market *Engine
	caller crypto.Address
	fired  bool
	got    error
}

func (r *reentrantBase) Symbol() string { return r.inner.Symbol() }

func (r *reentrantBase) Mint(to crypto.Address, amount *uint256.Int) error {
	return r.inner.Mint(to, amount)
}

func (r *reentrantBase) Burn(from crypto.Address, amount *uint256.Int) error {
	return r.inner.Burn(from, amount)
}

func (r *reentrantBase) TotalSupply() (*uint256.Int, error) { return r.inner.TotalSupply() }

func (r *reentrantBase) BalanceOf(addr crypto.Address) (*uint256.Int, error) {
	return r.inner.BalanceOf(addr)
}

func (r *reentrantBase) Transfer(from, to crypto.Address, amount *uint256.Int) error {
	if !r.fired {
		r.fired = true
		_, _, r.got = r.market.MintBoth(r.caller, r.caller, amt("1"), nil, nil)
	}
	return r.inner.Transfer(from, to, amount)
}

func TestReentrantTransferRejected(t *testing.T) {
	f := newMarketFixture(t)
	f.bootstrap(t, "1000", "0.7")
	f.fund(t, f.user, amt("100"))

	hook := &reentrantBase{inner: f.base, market: f.market, caller: f.user}
	f.market.SetTokens(hook, f.fractional, f.leveraged)

	if _, _, err := f.market.MintFractional(f.user, f.user, amt("100"), nil); err != nil {
		t.Fatalf("mint fractional: %v", err)
	}
	if !hook.fired {
		t.Fatalf("reentrant transfer never fired")
	}
	if !errors.Is(hook.got, ErrReentrantCall) {
		t.Fatalf("expected ErrReentrantCall, got %v", hook.got)
	}
}

func TestAdminSettersRequireAdmin(t *testing.T) {
	f := newMarketFixture(t)
	intruder := testAddr(0x99)

	checks := []error{
		f.market.UpdateStabilityRatios(intruder, amt("1.5"), amt("1.4"), amt("1.3"), amt("1.1")),
		f.market.UpdateMintFees(intruder, DefaultConfig().FractionalMintFee, DefaultConfig().LeveragedMintFee),
		f.market.UpdateRedeemFees(intruder, DefaultConfig().FractionalRedeemFee, DefaultConfig().LeveragedRedeemFee),
		f.market.UpdatePauseFlags(intruder, PauseFlags{}),
		f.market.UpdatePlatformAddress(intruder, testAddr(0x55)),
		f.market.UpdateLiquidationIncentive(intruder, amt("0.01")),
	}
	for i, err := range checks {
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("setter %d: expected ErrUnauthorized, got %v", i, err)
		}
	}
}

func TestConfigUpdatesPersistAcrossEngines(t *testing.T) {
	f := newMarketFixture(t)

	if err := f.market.UpdateStabilityRatios(f.admin, amt("1.5"), amt("1.4"), amt("1.3"), amt("1.1")); err != nil {
		t.Fatalf("update ratios: %v", err)
	}
	fee, err := NewFeeRatio("0.005", "0.02")
	if err != nil {
		t.Fatalf("new fee: %v", err)
	}
	if err := f.market.UpdateMintFees(f.admin, fee, DefaultConfig().LeveragedMintFee); err != nil {
		t.Fatalf("update fees: %v", err)
	}
	if err := f.market.UpdatePlatformAddress(f.admin, testAddr(0x55)); err != nil {
		t.Fatalf("update platform: %v", err)
	}

	fresh := NewEngine([]crypto.Address{f.admin})
	fresh.SetState(f.store)
	fresh.SetTreasury(f.treasury)
	fresh.SetTokens(f.base, f.fractional, f.leveraged)
	cfg, err := fresh.Config()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	assertAmount(t, cfg.StabilityRatio, "1.5")
	assertAmount(t, cfg.RecapRatio, "1.1")
	assertAmount(t, cfg.FractionalMintFee.Default, "0.005")
	if !cfg.Platform.Equal(testAddr(0x55)) {
		t.Fatalf("platform not persisted")
	}
}

func TestInvalidThresholdChainRejected(t *testing.T) {
	f := newMarketFixture(t)

	err := f.market.UpdateStabilityRatios(f.admin, amt("1.2"), amt("1.3"), amt("1.14"), amt("1"))
	if !errors.Is(err, ErrInvalidRatio) {
		t.Fatalf("expected ErrInvalidRatio, got %v", err)
	}
	cfg, err := f.market.Config()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	assertAmount(t, cfg.StabilityRatio, "1.3")
}

func TestRegimeFollowsOraclePrice(t *testing.T) {
	f := newMarketFixture(t)
	f.bootstrap(t, "1000", "0.7")

	cases := []struct {
		price string
		want  Regime
	}{
		{price: "1", want: RegimeHealthy},
		{price: "0.85", want: RegimeStability},
		{price: "0.8", want: RegimeLiquidation},
		{price: "0.77", want: RegimeSelfLiquidation},
		{price: "0.6", want: RegimeRecap},
	}
	for _, tc := range cases {
		f.advance(10 * time.Second)
		if err := f.oracle.SetDecimal(tc.price, f.now); err != nil {
			t.Fatalf("set price: %v", err)
		}
		regime, ratio, err := f.market.Regime()
		if err != nil {
			t.Fatalf("regime at %s: %v", tc.price, err)
		}
		if regime != tc.want {
			t.Fatalf("regime at price %s = %s (ratio %s), want %s", tc.price, regime, ratio, tc.want)
		}
	}
}

func TestLiquidationQuoteMatchesTreasury(t *testing.T) {
	f := newMarketFixture(t)
	f.bootstrap(t, "1000", "0.9")
	f.advance(10 * time.Second)
	if err := f.oracle.SetDecimal("0.999", f.now); err != nil {
		t.Fatalf("set price: %v", err)
	}

	gotOut, gotIn, err := f.market.LiquidationQuote()
	if err != nil {
		t.Fatalf("liquidation quote: %v", err)
	}
	// (1.14*900 - 999) / (1.14 - 1 - 0.05)
	assertAmount(t, gotIn, "300")
	cfg, err := f.market.Config()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	wantOut, wantIn, err := f.treasury.MaxLiquidatable(cfg.SelfLiquidationRatio, cfg.LiquidationIncentive)
	if err != nil {
		t.Fatalf("treasury quote: %v", err)
	}
	if !gotOut.Eq(wantOut) || !gotIn.Eq(wantIn) {
		t.Fatalf("quote mismatch: %s/%s vs %s/%s", gotOut, gotIn, wantOut, wantIn)
	}
}

type captureEmitter struct {
	captured []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) {
	c.captured = append(c.captured, evt)
}

func TestOperationsEmitEvents(t *testing.T) {
	f := newMarketFixture(t)
	f.bootstrap(t, "1000", "0.7")
	f.fund(t, f.user, amt("100"))

	capture := &captureEmitter{}
	f.market.SetEmitter(capture)

	if _, _, err := f.market.MintFractional(f.user, f.user, amt("100"), nil); err != nil {
		t.Fatalf("mint fractional: %v", err)
	}
	if err := f.market.UpdateLiquidationIncentive(f.admin, amt("0.04")); err != nil {
		t.Fatalf("update incentive: %v", err)
	}
	if len(capture.captured) != 2 {
		t.Fatalf("expected 2 events, got %d", len(capture.captured))
	}
	mint, ok := capture.captured[0].(events.MarketMint)
	if !ok {
		t.Fatalf("expected MarketMint, got %T", capture.captured[0])
	}
	if mint.Option != "fractional" {
		t.Fatalf("option = %s", mint.Option)
	}
	assertAmount(t, mint.BaseIn, "100")
	assertAmount(t, mint.FeeBase, "0.25")
	update, ok := capture.captured[1].(events.ConfigUpdated)
	if !ok {
		t.Fatalf("expected ConfigUpdated, got %T", capture.captured[1])
	}
	if update.Key != "liquidationIncentive" {
		t.Fatalf("key = %s", update.Key)
	}
}
