package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/holiman/uint256"

	"prism/crypto"
	nativecommon "prism/native/common"
	"prism/native/fixedpoint"
	"prism/native/market"
)

// Node groups the process level settings.
type Node struct {
	RPCAddress  string `toml:"RPCAddress"`
	DataDir     string `toml:"DataDir"`
	NetworkName string `toml:"NetworkName"`
	LogLevel    string `toml:"LogLevel"`
	LogEnv      string `toml:"LogEnv"`
}

// Protocol groups the treasury and regime parameters. Ratios are decimal
// strings parsed into eighteen digit fixed point at boot.
type Protocol struct {
	StabilityRatio        string `toml:"StabilityRatio"`
	LiquidationRatio      string `toml:"LiquidationRatio"`
	SelfLiquidationRatio  string `toml:"SelfLiquidationRatio"`
	RecapRatio            string `toml:"RecapRatio"`
	LiquidationIncentive  string `toml:"LiquidationIncentive"`
	InitialMintRatio      string `toml:"InitialMintRatio"`
	Beta                  string `toml:"Beta"`
	BaseTokenCap          string `toml:"BaseTokenCap"`
	EMASampleIntervalSecs uint64 `toml:"EMASampleIntervalSecs"`
	PlatformAddress       string `toml:"PlatformAddress"`
}

// FeePair is a two tier fee in decimal form. Extra may carry a leading minus
// to discount the stability tier below the default tier.
type FeePair struct {
	Default string `toml:"Default"`
	Extra   string `toml:"Extra"`
}

// Fees groups the four single sided operation fees.
type Fees struct {
	FractionalMint   FeePair `toml:"FractionalMint"`
	LeveragedMint    FeePair `toml:"LeveragedMint"`
	FractionalRedeem FeePair `toml:"FractionalRedeem"`
	LeveragedRedeem  FeePair `toml:"LeveragedRedeem"`
}

// Tokens names the three ledgers.
type Tokens struct {
	Base       string `toml:"Base"`
	Fractional string `toml:"Fractional"`
	Leveraged  string `toml:"Leveraged"`
}

// Oracle groups the price aggregation knobs.
type Oracle struct {
	Priority        []string `toml:"Priority"`
	MaxQuoteAgeSecs uint64   `toml:"MaxQuoteAgeSecs"`
	MaxDeviationBps uint64   `toml:"MaxDeviationBps"`
}

// Auth groups the RPC authentication settings. An empty resolved secret
// disables authenticated methods entirely rather than allowing them through.
type Auth struct {
	JWTSecret      string   `toml:"JWTSecret"`
	JWTSecretEnv   string   `toml:"JWTSecretEnv"`
	TokenTTLSecs   uint64   `toml:"TokenTTLSecs"`
	AdminAddresses []string `toml:"AdminAddresses"`
}

// RPC groups the transport limits.
type RPC struct {
	RequestsPerMinute   uint32 `toml:"RequestsPerMinute"`
	Burst               uint32 `toml:"Burst"`
	QuotaRequestsPerMin uint32 `toml:"QuotaRequestsPerMin"`
	QuotaEpochSecs      uint32 `toml:"QuotaEpochSecs"`
	ReadTimeoutSecs     uint64 `toml:"ReadTimeoutSecs"`
	WriteTimeoutSecs    uint64 `toml:"WriteTimeoutSecs"`
}

// Telemetry groups the OTLP export settings. An empty endpoint leaves push
// telemetry off; the Prometheus endpoint on the RPC listener is always
// available.
type Telemetry struct {
	Endpoint string            `toml:"Endpoint"`
	Insecure bool              `toml:"Insecure"`
	Traces   bool              `toml:"Traces"`
	Metrics  bool              `toml:"Metrics"`
	Headers  map[string]string `toml:"Headers"`
}

// Enabled reports whether an OTLP collector endpoint is configured.
func (t Telemetry) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

// TreasurySettings carries the parsed treasury boot parameters.
type TreasurySettings struct {
	InitialMintRatio      *uint256.Int
	Beta                  *uint256.Int
	BaseTokenCap          *uint256.Int
	EMASampleIntervalSecs uint64
}

func parseRatio(field, value string) (*uint256.Int, error) {
	parsed, err := fixedpoint.FromDecimal(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", field, err)
	}
	return parsed, nil
}

func parseFee(field string, pair FeePair) (market.FeeRatio, error) {
	def := strings.TrimSpace(pair.Default)
	extra := strings.TrimSpace(pair.Extra)
	if def == "" {
		def = "0"
	}
	if extra == "" {
		extra = "0"
	}
	fee, err := market.NewFeeRatio(def, extra)
	if err != nil {
		return market.FeeRatio{}, fmt.Errorf("config: %s: %w", field, err)
	}
	return fee, nil
}

// MarketConfig assembles and validates the market parameter set from the
// protocol and fee sections.
func (c *Config) MarketConfig() (market.Config, error) {
	cfg := market.Config{}
	var err error
	if cfg.StabilityRatio, err = parseRatio("protocol.StabilityRatio", c.Protocol.StabilityRatio); err != nil {
		return cfg, err
	}
	if cfg.LiquidationRatio, err = parseRatio("protocol.LiquidationRatio", c.Protocol.LiquidationRatio); err != nil {
		return cfg, err
	}
	if cfg.SelfLiquidationRatio, err = parseRatio("protocol.SelfLiquidationRatio", c.Protocol.SelfLiquidationRatio); err != nil {
		return cfg, err
	}
	if cfg.RecapRatio, err = parseRatio("protocol.RecapRatio", c.Protocol.RecapRatio); err != nil {
		return cfg, err
	}
	if cfg.LiquidationIncentive, err = parseRatio("protocol.LiquidationIncentive", c.Protocol.LiquidationIncentive); err != nil {
		return cfg, err
	}
	if cfg.FractionalMintFee, err = parseFee("fees.FractionalMint", c.Fees.FractionalMint); err != nil {
		return cfg, err
	}
	if cfg.LeveragedMintFee, err = parseFee("fees.LeveragedMint", c.Fees.LeveragedMint); err != nil {
		return cfg, err
	}
	if cfg.FractionalRedeemFee, err = parseFee("fees.FractionalRedeem", c.Fees.FractionalRedeem); err != nil {
		return cfg, err
	}
	if cfg.LeveragedRedeemFee, err = parseFee("fees.LeveragedRedeem", c.Fees.LeveragedRedeem); err != nil {
		return cfg, err
	}
	if addr := strings.TrimSpace(c.Protocol.PlatformAddress); addr != "" {
		platform, err := crypto.DecodeAddress(addr)
		if err != nil {
			return cfg, fmt.Errorf("config: protocol.PlatformAddress: %w", err)
		}
		cfg.Platform = platform
	}
	cfg.Normalise()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TreasurySettings parses the treasury boot parameters.
func (c *Config) TreasurySettings() (TreasurySettings, error) {
	out := TreasurySettings{EMASampleIntervalSecs: c.Protocol.EMASampleIntervalSecs}
	var err error
	if out.InitialMintRatio, err = parseRatio("protocol.InitialMintRatio", c.Protocol.InitialMintRatio); err != nil {
		return out, err
	}
	if out.Beta, err = parseRatio("protocol.Beta", c.Protocol.Beta); err != nil {
		return out, err
	}
	if out.BaseTokenCap, err = parseRatio("protocol.BaseTokenCap", c.Protocol.BaseTokenCap); err != nil {
		return out, err
	}
	return out, nil
}

// Admins decodes the configured admin address list.
func (c *Config) Admins() ([]crypto.Address, error) {
	admins := make([]crypto.Address, 0, len(c.Auth.AdminAddresses))
	for _, raw := range c.Auth.AdminAddresses {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("config: auth.AdminAddresses: %w", err)
		}
		admins = append(admins, addr)
	}
	return admins, nil
}

// ResolveJWTSecret returns the shared HMAC secret, preferring the inline
// value and falling back to the named environment variable.
func (c *Config) ResolveJWTSecret() string {
	if secret := strings.TrimSpace(c.Auth.JWTSecret); secret != "" {
		return secret
	}
	if env := strings.TrimSpace(c.Auth.JWTSecretEnv); env != "" {
		return strings.TrimSpace(os.Getenv(env))
	}
	return ""
}

// Quota maps the RPC quota knobs onto the per caller quota checker.
func (c *Config) Quota() nativecommon.Quota {
	return nativecommon.Quota{
		MaxRequestsPerMin: c.RPC.QuotaRequestsPerMin,
		EpochSeconds:      c.RPC.QuotaEpochSecs,
	}
}
