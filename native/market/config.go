package market

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"prism/crypto"
	"prism/native/fixedpoint"
)

var (
	ErrInvalidRatio = errors.New("market: ratio out of range")
	ErrInvalidFee   = errors.New("market: fee ratio out of range")
)

// FeeRatio is a two tier fee: Default applies in the healthy region, Default
// plus the signed Extra applies in the stability region. Extra is stored as a
// magnitude and sign so both tiers stay in unsigned fixed point.
type FeeRatio struct {
	Default  *uint256.Int
	Extra    *uint256.Int
	ExtraNeg bool
}

// NewFeeRatio builds a validated fee pair from decimal strings, with extra
// carrying an optional leading minus sign.
func NewFeeRatio(defaultRatio, extra string) (FeeRatio, error) {
	fee := FeeRatio{}
	parsed, err := fixedpoint.FromDecimal(defaultRatio)
	if err != nil {
		return fee, fmt.Errorf("market: default fee: %w", err)
	}
	fee.Default = parsed
	if len(extra) > 0 && extra[0] == '-' {
		fee.ExtraNeg = true
		extra = extra[1:]
	}
	parsed, err = fixedpoint.FromDecimal(extra)
	if err != nil {
		return fee, fmt.Errorf("market: extra fee: %w", err)
	}
	fee.Extra = parsed
	if err := fee.Validate(); err != nil {
		return FeeRatio{}, err
	}
	return fee, nil
}

func (f FeeRatio) Clone() FeeRatio {
	return FeeRatio{
		Default:  fixedpoint.Clone(f.Default),
		Extra:    fixedpoint.Clone(f.Extra),
		ExtraNeg: f.ExtraNeg,
	}
}

func (f FeeRatio) String() string {
	sign := "+"
	if f.ExtraNeg {
		sign = "-"
	}
	return fixedpoint.Clone(f.Default).String() + sign + fixedpoint.Clone(f.Extra).String()
}

// Validate bounds both tiers to [0, 1]: Default alone and Default plus the
// signed Extra must each stay inside the unit interval.
func (f FeeRatio) Validate() error {
	def := fixedpoint.Clone(f.Default)
	extra := fixedpoint.Clone(f.Extra)
	if def.Gt(fixedpoint.One()) {
		return ErrInvalidFee
	}
	if f.ExtraNeg {
		if extra.Gt(def) {
			return ErrInvalidFee
		}
		return nil
	}
	sum, err := fixedpoint.Add(def, extra)
	if err != nil {
		return ErrInvalidFee
	}
	if sum.Gt(fixedpoint.One()) {
		return ErrInvalidFee
	}
	return nil
}

// DefaultTier is the rate charged in the healthy region.
func (f FeeRatio) DefaultTier() *uint256.Int {
	return fixedpoint.Clone(f.Default)
}

// StabilityTier is the rate charged in the stability region.
func (f FeeRatio) StabilityTier() *uint256.Int {
	def := fixedpoint.Clone(f.Default)
	extra := fixedpoint.Clone(f.Extra)
	if f.ExtraNeg {
		return new(uint256.Int).Sub(def, extra)
	}
	return new(uint256.Int).Add(def, extra)
}

// PauseFlags are the operation level gates. The two stability flags do not
// reject: they clamp the request to the headroom left before the boundary.
type PauseFlags struct {
	Mint                       bool
	Redeem                     bool
	FractionalMintInStability  bool
	LeveragedRedeemInStability bool
}

// Config carries every market parameter: the four regime thresholds in
// strictly decreasing order, the per operation fee pairs, the pause gates, the
// liquidation incentive used by quote views and the platform fee address.
type Config struct {
	StabilityRatio       *uint256.Int
	LiquidationRatio     *uint256.Int
	SelfLiquidationRatio *uint256.Int
	RecapRatio           *uint256.Int

	FractionalMintFee   FeeRatio
	LeveragedMintFee    FeeRatio
	FractionalRedeemFee FeeRatio
	LeveragedRedeemFee  FeeRatio

	LiquidationIncentive *uint256.Int
	Platform             crypto.Address
	Pauses               PauseFlags
}

// DefaultConfig returns the baseline parameter set the daemon starts from
// before the configuration file and admin updates are applied.
func DefaultConfig() Config {
	return Config{
		StabilityRatio:       fixedpoint.MustFromDecimal("1.3"),
		LiquidationRatio:     fixedpoint.MustFromDecimal("1.2"),
		SelfLiquidationRatio: fixedpoint.MustFromDecimal("1.14"),
		RecapRatio:           fixedpoint.MustFromDecimal("1"),
		FractionalMintFee:    FeeRatio{Default: fixedpoint.MustFromDecimal("0.0025"), Extra: fixedpoint.MustFromDecimal("0.01")},
		LeveragedMintFee:     FeeRatio{Default: fixedpoint.MustFromDecimal("0.01"), Extra: fixedpoint.MustFromDecimal("0.01"), ExtraNeg: true},
		FractionalRedeemFee:  FeeRatio{Default: fixedpoint.MustFromDecimal("0.0025"), Extra: fixedpoint.MustFromDecimal("0.0025"), ExtraNeg: true},
		LeveragedRedeemFee:   FeeRatio{Default: fixedpoint.MustFromDecimal("0.01"), Extra: fixedpoint.MustFromDecimal("0.07")},
		LiquidationIncentive: fixedpoint.MustFromDecimal("0.05"),
		Platform:             crypto.ModuleAddress("platform"),
	}
}

func (c *Config) Clone() Config {
	return Config{
		StabilityRatio:       fixedpoint.Clone(c.StabilityRatio),
		LiquidationRatio:     fixedpoint.Clone(c.LiquidationRatio),
		SelfLiquidationRatio: fixedpoint.Clone(c.SelfLiquidationRatio),
		RecapRatio:           fixedpoint.Clone(c.RecapRatio),
		FractionalMintFee:    c.FractionalMintFee.Clone(),
		LeveragedMintFee:     c.LeveragedMintFee.Clone(),
		FractionalRedeemFee:  c.FractionalRedeemFee.Clone(),
		LeveragedRedeemFee:   c.LeveragedRedeemFee.Clone(),
		LiquidationIncentive: fixedpoint.Clone(c.LiquidationIncentive),
		Platform:             c.Platform,
		Pauses:               c.Pauses,
	}
}

// Normalise fills nil amounts with zero and an unset platform address with the
// module default so Validate can assume complete values.
func (c *Config) Normalise() {
	c.StabilityRatio = fixedpoint.Clone(c.StabilityRatio)
	c.LiquidationRatio = fixedpoint.Clone(c.LiquidationRatio)
	c.SelfLiquidationRatio = fixedpoint.Clone(c.SelfLiquidationRatio)
	c.RecapRatio = fixedpoint.Clone(c.RecapRatio)
	c.FractionalMintFee = c.FractionalMintFee.Clone()
	c.LeveragedMintFee = c.LeveragedMintFee.Clone()
	c.FractionalRedeemFee = c.FractionalRedeemFee.Clone()
	c.LeveragedRedeemFee = c.LeveragedRedeemFee.Clone()
	c.LiquidationIncentive = fixedpoint.Clone(c.LiquidationIncentive)
	if c.Platform.IsZero() {
		c.Platform = crypto.ModuleAddress("platform")
	}
}

// Validate enforces the strictly decreasing threshold chain down to one, the
// fee bounds and a liquidation incentive the self liquidation target clears.
func (c *Config) Validate() error {
	if !c.StabilityRatio.Gt(c.LiquidationRatio) {
		return fmt.Errorf("%w: stability ratio must exceed liquidation ratio", ErrInvalidRatio)
	}
	if !c.LiquidationRatio.Gt(c.SelfLiquidationRatio) {
		return fmt.Errorf("%w: liquidation ratio must exceed self liquidation ratio", ErrInvalidRatio)
	}
	if !c.SelfLiquidationRatio.Gt(c.RecapRatio) {
		return fmt.Errorf("%w: self liquidation ratio must exceed recap ratio", ErrInvalidRatio)
	}
	if c.RecapRatio.Lt(fixedpoint.One()) {
		return fmt.Errorf("%w: recap ratio must be at least one", ErrInvalidRatio)
	}
	for _, fee := range []FeeRatio{c.FractionalMintFee, c.LeveragedMintFee, c.FractionalRedeemFee, c.LeveragedRedeemFee} {
		if err := fee.Validate(); err != nil {
			return err
		}
	}
	if !c.LiquidationIncentive.IsZero() {
		floor, err := fixedpoint.Add(fixedpoint.One(), c.LiquidationIncentive)
		if err != nil {
			return ErrInvalidFee
		}
		if !c.SelfLiquidationRatio.Gt(floor) {
			return fmt.Errorf("%w: liquidation incentive leaves no margin below the self liquidation ratio", ErrInvalidFee)
		}
	}
	if c.Platform.IsZero() {
		return fmt.Errorf("market: platform address must not be zero")
	}
	return nil
}

// Regime is the collateral ratio band the system currently operates in.
type Regime uint8

const (
	RegimeHealthy Regime = iota
	RegimeStability
	RegimeLiquidation
	RegimeSelfLiquidation
	RegimeRecap
)

func (r Regime) String() string {
	switch r {
	case RegimeHealthy:
		return "healthy"
	case RegimeStability:
		return "stability"
	case RegimeLiquidation:
		return "liquidation"
	case RegimeSelfLiquidation:
		return "selfLiquidation"
	case RegimeRecap:
		return "recap"
	default:
		return "unknown"
	}
}

// classifyRegime buckets a collateral ratio against the threshold chain.
func classifyRegime(c *Config, ratio *uint256.Int) Regime {
	switch {
	case ratio.Gt(c.StabilityRatio):
		return RegimeHealthy
	case ratio.Gt(c.LiquidationRatio):
		return RegimeStability
	case ratio.Gt(c.SelfLiquidationRatio):
		return RegimeLiquidation
	case ratio.Gt(c.RecapRatio):
		return RegimeSelfLiquidation
	default:
		return RegimeRecap
	}
}
