package rpc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"prism/crypto"
	"prism/native/market"
)

// RPCRequest is a single JSON-RPC 2.0 call envelope.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

// RPCResponse carries either a result or an error back to the caller.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// StatusResult summarises the live protocol state for dashboards and bots.
type StatusResult struct {
	Regime          string      `json:"regime"`
	CollateralRatio string      `json:"collateralRatio"`
	Leverage        string      `json:"leverage"`
	LeverageEMA     string      `json:"leverageEma"`
	Nav             TokenTriple `json:"nav"`
	Supply          TokenTriple `json:"supply"`
	TotalBase       string      `json:"totalBase"`
	BaseTokenCap    string      `json:"baseTokenCap"`
	Price           string      `json:"price,omitempty"`
	PriceUpdatedAt  int64       `json:"priceUpdatedAt,omitempty"`
	HaltedModules   []string    `json:"haltedModules,omitempty"`
	EventSeq        uint64      `json:"eventSeq"`
}

// TokenTriple holds one figure per token in the trio.
type TokenTriple struct {
	Base       string `json:"base"`
	Fractional string `json:"fractional"`
	Leveraged  string `json:"leveraged"`
}

// FeeRatioResult mirrors a two tier fee pair. Extra carries a leading minus
// when the stability tier is a discount.
type FeeRatioResult struct {
	Default string `json:"default"`
	Extra   string `json:"extra"`
}

// PauseFlagsResult reports the per-operation pause switches.
type PauseFlagsResult struct {
	Mint                       bool `json:"mint"`
	Redeem                     bool `json:"redeem"`
	FractionalMintInStability  bool `json:"fractionalMintInStability"`
	LeveragedRedeemInStability bool `json:"leveragedRedeemInStability"`
}

// ConfigResult reflects the live market parameter set.
type ConfigResult struct {
	StabilityRatio       string           `json:"stabilityRatio"`
	LiquidationRatio     string           `json:"liquidationRatio"`
	SelfLiquidationRatio string           `json:"selfLiquidationRatio"`
	RecapRatio           string           `json:"recapRatio"`
	MintFractionalFee    FeeRatioResult   `json:"mintFractionalFee"`
	MintLeveragedFee     FeeRatioResult   `json:"mintLeveragedFee"`
	RedeemFractionalFee  FeeRatioResult   `json:"redeemFractionalFee"`
	RedeemLeveragedFee   FeeRatioResult   `json:"redeemLeveragedFee"`
	LiquidationIncentive string           `json:"liquidationIncentive"`
	Platform             string           `json:"platform"`
	Pauses               PauseFlagsResult `json:"pauses"`
}

// BalanceResult lists the three token balances for one account.
type BalanceResult struct {
	Address    string `json:"address"`
	Base       string `json:"base"`
	Fractional string `json:"fractional"`
	Leveraged  string `json:"leveraged"`
}

// MintResult reports the outcome of a mint call.
type MintResult struct {
	Caller        string `json:"caller"`
	Recipient     string `json:"recipient"`
	BaseIn        string `json:"baseIn"`
	FractionalOut string `json:"fractionalOut,omitempty"`
	LeveragedOut  string `json:"leveragedOut,omitempty"`
	Fee           string `json:"fee"`
}

// RedeemResult reports the outcome of a redeem call.
type RedeemResult struct {
	Caller       string `json:"caller"`
	Recipient    string `json:"recipient"`
	FractionalIn string `json:"fractionalIn,omitempty"`
	LeveragedIn  string `json:"leveragedIn,omitempty"`
	BaseOut      string `json:"baseOut"`
	Fee          string `json:"fee"`
}

// QuoteResult carries a fee-free treasury quote. Market fees come on top and
// depend on where the deposit lands relative to the stability boundary.
type QuoteResult struct {
	BaseIn        string `json:"baseIn,omitempty"`
	BaseOut       string `json:"baseOut,omitempty"`
	FractionalOut string `json:"fractionalOut,omitempty"`
	LeveragedOut  string `json:"leveragedOut,omitempty"`
}

// HeadroomResult reports how much of an operation remains before the
// collateral ratio reaches the stability boundary.
type HeadroomResult struct {
	MaxBaseIn  string `json:"maxBaseIn,omitempty"`
	MaxBaseOut string `json:"maxBaseOut,omitempty"`
	MaxMint    string `json:"maxMint,omitempty"`
	MaxRedeem  string `json:"maxRedeem,omitempty"`
}

// LiquidationQuoteResult reports the self-liquidation capacity at the current
// price: how much fractional supply can be bought back and what it pays out.
type LiquidationQuoteResult struct {
	BaseOut      string `json:"baseOut"`
	FractionalIn string `json:"fractionalIn"`
}

// OracleStatusResult reports the price feed health.
type OracleStatusResult struct {
	Price     string `json:"price,omitempty"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
	Fresh     bool   `json:"fresh"`
}

// EventResult is one journal entry rendered for RPC and websocket consumers.
type EventResult struct {
	Sequence   uint64            `json:"sequence"`
	EmittedAt  uint64            `json:"emittedAt"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// formatAmount renders a fixed-point amount as a decimal string of raw units.
func formatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// parseAmountParam accepts a decimal string of raw units. The literal "all"
// maps to the sentinel that spends the caller's entire balance.
func parseAmountParam(field, value string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%s required", field)
	}
	if strings.EqualFold(trimmed, "all") {
		return new(uint256.Int).SetAllOne(), nil
	}
	amount, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %s", field, trimmed)
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("%s must be positive", field)
	}
	return amount, nil
}

// parseOptionalAmount is parseAmountParam for fields that may be omitted;
// empty input yields nil so engine defaults apply.
func parseOptionalAmount(field, value string) (*uint256.Int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	return parseAmountParam(field, value)
}

// parseAddressParam decodes a bech32 account address.
func parseAddressParam(field, value string) (crypto.Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return crypto.Address{}, fmt.Errorf("%s required", field)
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid %s: %s", field, trimmed)
	}
	if addr.IsZero() {
		return crypto.Address{}, fmt.Errorf("%s must not be the zero address", field)
	}
	return addr, nil
}

func feeRatioResult(f market.FeeRatio) FeeRatioResult {
	extra := formatAmount(f.Extra)
	if f.ExtraNeg {
		extra = "-" + extra
	}
	return FeeRatioResult{Default: formatAmount(f.Default), Extra: extra}
}
