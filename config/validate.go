package config

import (
	"fmt"
	"strings"

	"prism/native/fixedpoint"
)

// Normalise fills absent optional fields with the boot defaults so Validate
// and the daemon can assume complete values.
func (c *Config) Normalise() {
	def := Default()
	if strings.TrimSpace(c.Node.RPCAddress) == "" {
		c.Node.RPCAddress = def.Node.RPCAddress
	}
	if strings.TrimSpace(c.Node.DataDir) == "" {
		c.Node.DataDir = def.Node.DataDir
	}
	if strings.TrimSpace(c.Node.NetworkName) == "" {
		c.Node.NetworkName = def.Node.NetworkName
	}
	if strings.TrimSpace(c.Node.LogLevel) == "" {
		c.Node.LogLevel = def.Node.LogLevel
	}
	if strings.TrimSpace(c.Tokens.Base) == "" {
		c.Tokens.Base = def.Tokens.Base
	}
	if strings.TrimSpace(c.Tokens.Fractional) == "" {
		c.Tokens.Fractional = def.Tokens.Fractional
	}
	if strings.TrimSpace(c.Tokens.Leveraged) == "" {
		c.Tokens.Leveraged = def.Tokens.Leveraged
	}
	if len(c.Oracle.Priority) == 0 {
		c.Oracle.Priority = append([]string{}, def.Oracle.Priority...)
	}
	if c.Oracle.MaxQuoteAgeSecs == 0 {
		c.Oracle.MaxQuoteAgeSecs = def.Oracle.MaxQuoteAgeSecs
	}
	if c.Protocol.EMASampleIntervalSecs == 0 {
		c.Protocol.EMASampleIntervalSecs = def.Protocol.EMASampleIntervalSecs
	}
	fillRatio := func(target *string, fallback string) {
		if strings.TrimSpace(*target) == "" {
			*target = fallback
		}
	}
	fillRatio(&c.Protocol.StabilityRatio, def.Protocol.StabilityRatio)
	fillRatio(&c.Protocol.LiquidationRatio, def.Protocol.LiquidationRatio)
	fillRatio(&c.Protocol.SelfLiquidationRatio, def.Protocol.SelfLiquidationRatio)
	fillRatio(&c.Protocol.RecapRatio, def.Protocol.RecapRatio)
	fillRatio(&c.Protocol.LiquidationIncentive, def.Protocol.LiquidationIncentive)
	fillRatio(&c.Protocol.InitialMintRatio, def.Protocol.InitialMintRatio)
	fillRatio(&c.Protocol.BaseTokenCap, def.Protocol.BaseTokenCap)
	fillRatio(&c.Protocol.Beta, def.Protocol.Beta)
	fillFees := func(target *FeePair, fallback FeePair) {
		if strings.TrimSpace(target.Default) == "" && strings.TrimSpace(target.Extra) == "" {
			*target = fallback
		}
	}
	fillFees(&c.Fees.FractionalMint, def.Fees.FractionalMint)
	fillFees(&c.Fees.LeveragedMint, def.Fees.LeveragedMint)
	fillFees(&c.Fees.FractionalRedeem, def.Fees.FractionalRedeem)
	fillFees(&c.Fees.LeveragedRedeem, def.Fees.LeveragedRedeem)
	if c.Auth.TokenTTLSecs == 0 {
		c.Auth.TokenTTLSecs = def.Auth.TokenTTLSecs
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" && strings.TrimSpace(c.Auth.JWTSecretEnv) == "" {
		c.Auth.JWTSecretEnv = def.Auth.JWTSecretEnv
	}
	if c.RPC.RequestsPerMinute == 0 {
		c.RPC.RequestsPerMinute = def.RPC.RequestsPerMinute
	}
	if c.RPC.Burst == 0 {
		c.RPC.Burst = def.RPC.Burst
	}
	if c.RPC.QuotaEpochSecs == 0 {
		c.RPC.QuotaEpochSecs = def.RPC.QuotaEpochSecs
	}
	if c.RPC.ReadTimeoutSecs == 0 {
		c.RPC.ReadTimeoutSecs = def.RPC.ReadTimeoutSecs
	}
	if c.RPC.WriteTimeoutSecs == 0 {
		c.RPC.WriteTimeoutSecs = def.RPC.WriteTimeoutSecs
	}
	if c.Telemetry.Enabled() && !c.Telemetry.Traces && !c.Telemetry.Metrics {
		c.Telemetry.Traces = true
		c.Telemetry.Metrics = true
	}
}

// Validate parses every protocol parameter and enforces the same invariants
// the engines enforce at runtime, so a bad file fails at boot instead of on
// first use.
func (c *Config) Validate() error {
	if _, err := c.MarketConfig(); err != nil {
		return err
	}
	settings, err := c.TreasurySettings()
	if err != nil {
		return err
	}
	if settings.InitialMintRatio.Gt(fixedpoint.One()) {
		return fmt.Errorf("config: protocol.InitialMintRatio must not exceed one")
	}
	if _, err := c.Admins(); err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, symbol := range []string{c.Tokens.Base, c.Tokens.Fractional, c.Tokens.Leveraged} {
		trimmed := strings.TrimSpace(symbol)
		if trimmed == "" {
			return fmt.Errorf("config: every token needs a symbol")
		}
		if seen[trimmed] {
			return fmt.Errorf("config: duplicate token symbol %q", trimmed)
		}
		seen[trimmed] = true
	}
	return nil
}
