package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"prism/crypto"
	"prism/native/fixedpoint"
	"prism/native/market"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prism.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prism.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, ":8645", cfg.Node.RPCAddress)
	require.Equal(t, "prism-local", cfg.Node.NetworkName)

	// The generated file must load back and validate.
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, reloaded.Validate())
	require.Equal(t, cfg.Protocol.StabilityRatio, reloaded.Protocol.StabilityRatio)
}

func TestLoadParsesFullTree(t *testing.T) {
	admin := crypto.ModuleAddress("test-admin").String()
	platform := crypto.ModuleAddress("test-platform").String()
	path := writeConfig(t, `
[node]
RPCAddress = ":9999"
DataDir = "./data"
NetworkName = "prism-test"
LogLevel = "debug"

[protocol]
StabilityRatio = "1.4"
LiquidationRatio = "1.3"
SelfLiquidationRatio = "1.2"
RecapRatio = "1.05"
LiquidationIncentive = "0.05"
InitialMintRatio = "0.8"
Beta = "0.1"
BaseTokenCap = "500000"
EMASampleIntervalSecs = 600
PlatformAddress = "`+platform+`"

[fees.FractionalMint]
Default = "0.003"
Extra = "0.02"

[fees.LeveragedMint]
Default = "0.01"
Extra = "-0.01"

[fees.FractionalRedeem]
Default = "0.0025"
Extra = "-0.0025"

[fees.LeveragedRedeem]
Default = "0.01"
Extra = "0.08"

[tokens]
Base = "WSTX"
Fractional = "fUSD"
Leveraged = "xLEV"

[oracle]
Priority = ["manual", "aggregate"]
MaxQuoteAgeSecs = 120
MaxDeviationBps = 500

[auth]
JWTSecret = "topsecret"
TokenTTLSecs = 60
AdminAddresses = ["`+admin+`"]

[rpc]
RequestsPerMinute = 300
Burst = 10
QuotaRequestsPerMin = 50
QuotaEpochSecs = 900
ReadTimeoutSecs = 5
WriteTimeoutSecs = 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Node.RPCAddress)
	require.Equal(t, "debug", cfg.Node.LogLevel)
	require.Equal(t, []string{"manual", "aggregate"}, cfg.Oracle.Priority)

	marketCfg, err := cfg.MarketConfig()
	require.NoError(t, err)
	require.True(t, marketCfg.StabilityRatio.Eq(fixedpoint.MustFromDecimal("1.4")))
	require.True(t, marketCfg.FractionalMintFee.Default.Eq(fixedpoint.MustFromDecimal("0.003")))
	require.True(t, marketCfg.LeveragedMintFee.ExtraNeg)
	require.True(t, marketCfg.Platform.Equal(crypto.ModuleAddress("test-platform")))

	settings, err := cfg.TreasurySettings()
	require.NoError(t, err)
	require.True(t, settings.InitialMintRatio.Eq(fixedpoint.MustFromDecimal("0.8")))
	require.True(t, settings.BaseTokenCap.Eq(fixedpoint.MustFromDecimal("500000")))
	require.Equal(t, uint64(600), settings.EMASampleIntervalSecs)

	admins, err := cfg.Admins()
	require.NoError(t, err)
	require.Len(t, admins, 1)
	require.True(t, admins[0].Equal(crypto.ModuleAddress("test-admin")))

	quota := cfg.Quota()
	require.Equal(t, uint32(50), quota.MaxRequestsPerMin)
	require.Equal(t, uint32(900), quota.EpochSeconds)
}

func TestLoadFillsDefaultsForPartialFile(t *testing.T) {
	path := writeConfig(t, `
[node]
RPCAddress = ":7000"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.Node.RPCAddress)
	require.Equal(t, "prism-local", cfg.Node.NetworkName)
	require.Equal(t, "1.3", cfg.Protocol.StabilityRatio)
	require.Equal(t, "BASE", cfg.Tokens.Base)
	require.Equal(t, uint32(600), cfg.RPC.RequestsPerMinute)
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := writeConfig(t, `
[node]
RPCAddress = ":7000"
ValidatorKey = "deadbeef"
`)

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown key")
}

func TestLoadRejectsBrokenThresholdChain(t *testing.T) {
	path := writeConfig(t, `
[protocol]
StabilityRatio = "1.2"
LiquidationRatio = "1.3"
`)

	_, err := Load(path)
	require.ErrorIs(t, err, market.ErrInvalidRatio)
}

func TestLoadRejectsMalformedRatio(t *testing.T) {
	path := writeConfig(t, `
[protocol]
StabilityRatio = "not-a-number"
`)

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "protocol.StabilityRatio")
}

func TestLoadRejectsDuplicateTokenSymbols(t *testing.T) {
	path := writeConfig(t, `
[tokens]
Base = "SAME"
Fractional = "SAME"
Leveraged = "xLEV"
`)

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate token symbol")
}

func TestResolveJWTSecretPrefersInlineValue(t *testing.T) {
	cfg := Default()
	cfg.Auth.JWTSecret = "inline"
	cfg.Auth.JWTSecretEnv = "PRISM_TEST_SECRET"
	t.Setenv("PRISM_TEST_SECRET", "from-env")
	require.Equal(t, "inline", cfg.ResolveJWTSecret())

	cfg.Auth.JWTSecret = ""
	require.Equal(t, "from-env", cfg.ResolveJWTSecret())

	t.Setenv("PRISM_TEST_SECRET", "")
	require.Equal(t, "", cfg.ResolveJWTSecret())
}

func TestInitialMintRatioAboveOneRejected(t *testing.T) {
	cfg := Default()
	cfg.Protocol.InitialMintRatio = "1.5"
	require.Error(t, cfg.Validate())
}

func TestTelemetrySectionDefaultsBothSignals(t *testing.T) {
	path := writeConfig(t, `
[telemetry]
Endpoint = "collector:4318"
Insecure = true

[telemetry.Headers]
authorization = "Bearer abc"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.True(t, cfg.Telemetry.Enabled())
	// Naming only an endpoint turns on both signals.
	require.True(t, cfg.Telemetry.Traces)
	require.True(t, cfg.Telemetry.Metrics)
	require.Equal(t, "Bearer abc", cfg.Telemetry.Headers["authorization"])

	require.False(t, Default().Telemetry.Enabled())
}
