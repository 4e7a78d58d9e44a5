package market

import (
	"fmt"

	"github.com/holiman/uint256"

	"prism/crypto"
)

var configKey = []byte("market/config")

type storedFee struct {
	Default  string
	Extra    string
	ExtraNeg bool
}

type storedConfig struct {
	StabilityRatio       string
	LiquidationRatio     string
	SelfLiquidationRatio string
	RecapRatio           string

	FractionalMintFee   storedFee
	LeveragedMintFee    storedFee
	FractionalRedeemFee storedFee
	LeveragedRedeemFee  storedFee

	LiquidationIncentive string
	Platform             []byte

	MintPaused                 bool
	RedeemPaused               bool
	FractionalMintInStability  bool
	LeveragedRedeemInStability bool
}

func parseAmount(field, value string) (*uint256.Int, error) {
	if value == "" {
		return new(uint256.Int), nil
	}
	amount, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, fmt.Errorf("market: corrupt %s: %w", field, err)
	}
	return amount, nil
}

func parseFee(field string, stored storedFee) (FeeRatio, error) {
	def, err := parseAmount(field+".default", stored.Default)
	if err != nil {
		return FeeRatio{}, err
	}
	extra, err := parseAmount(field+".extra", stored.Extra)
	if err != nil {
		return FeeRatio{}, err
	}
	return FeeRatio{Default: def, Extra: extra, ExtraNeg: stored.ExtraNeg}, nil
}

func encodeFee(fee FeeRatio) storedFee {
	return storedFee{
		Default:  fee.Default.String(),
		Extra:    fee.Extra.String(),
		ExtraNeg: fee.ExtraNeg,
	}
}

// loadConfig returns the persisted parameter set, or the configured defaults
// before anything was persisted. Stored parameters are revalidated on the way
// in: a config that fails its own invariants is corrupt state, not input.
func (e *Engine) loadConfig() (*Config, error) {
	if e.state == nil {
		return nil, errNilState
	}
	var stored storedConfig
	ok, err := e.state.KVGet(configKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		cfg := e.defaults.Clone()
		return &cfg, nil
	}
	cfg := Config{}
	if cfg.StabilityRatio, err = parseAmount("stabilityRatio", stored.StabilityRatio); err != nil {
		return nil, err
	}
	if cfg.LiquidationRatio, err = parseAmount("liquidationRatio", stored.LiquidationRatio); err != nil {
		return nil, err
	}
	if cfg.SelfLiquidationRatio, err = parseAmount("selfLiquidationRatio", stored.SelfLiquidationRatio); err != nil {
		return nil, err
	}
	if cfg.RecapRatio, err = parseAmount("recapRatio", stored.RecapRatio); err != nil {
		return nil, err
	}
	if cfg.FractionalMintFee, err = parseFee("fractionalMintFee", stored.FractionalMintFee); err != nil {
		return nil, err
	}
	if cfg.LeveragedMintFee, err = parseFee("leveragedMintFee", stored.LeveragedMintFee); err != nil {
		return nil, err
	}
	if cfg.FractionalRedeemFee, err = parseFee("fractionalRedeemFee", stored.FractionalRedeemFee); err != nil {
		return nil, err
	}
	if cfg.LeveragedRedeemFee, err = parseFee("leveragedRedeemFee", stored.LeveragedRedeemFee); err != nil {
		return nil, err
	}
	if cfg.LiquidationIncentive, err = parseAmount("liquidationIncentive", stored.LiquidationIncentive); err != nil {
		return nil, err
	}
	if len(stored.Platform) > 0 {
		addr, err := crypto.NewAddress(crypto.PrismPrefix, stored.Platform)
		if err != nil {
			return nil, fmt.Errorf("market: corrupt platform address: %w", err)
		}
		cfg.Platform = addr
	}
	cfg.Pauses = PauseFlags{
		Mint:                       stored.MintPaused,
		Redeem:                     stored.RedeemPaused,
		FractionalMintInStability:  stored.FractionalMintInStability,
		LeveragedRedeemInStability: stored.LeveragedRedeemInStability,
	}
	cfg.Normalise()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("market: corrupt stored config: %w", err)
	}
	return &cfg, nil
}

func (e *Engine) persistConfig(cfg *Config) error {
	if e.state == nil {
		return errNilState
	}
	cfg.Normalise()
	if err := cfg.Validate(); err != nil {
		return err
	}
	stored := storedConfig{
		StabilityRatio:             cfg.StabilityRatio.String(),
		LiquidationRatio:           cfg.LiquidationRatio.String(),
		SelfLiquidationRatio:       cfg.SelfLiquidationRatio.String(),
		RecapRatio:                 cfg.RecapRatio.String(),
		FractionalMintFee:          encodeFee(cfg.FractionalMintFee),
		LeveragedMintFee:           encodeFee(cfg.LeveragedMintFee),
		FractionalRedeemFee:        encodeFee(cfg.FractionalRedeemFee),
		LeveragedRedeemFee:         encodeFee(cfg.LeveragedRedeemFee),
		LiquidationIncentive:       cfg.LiquidationIncentive.String(),
		Platform:                   cfg.Platform.Bytes(),
		MintPaused:                 cfg.Pauses.Mint,
		RedeemPaused:               cfg.Pauses.Redeem,
		FractionalMintInStability:  cfg.Pauses.FractionalMintInStability,
		LeveragedRedeemInStability: cfg.Pauses.LeveragedRedeemInStability,
	}
	return e.state.KVPut(configKey, stored)
}
