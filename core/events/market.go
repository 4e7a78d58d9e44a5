package events

import (
	"strings"

	"github.com/holiman/uint256"

	"prism/crypto"
)

const (
	// TypeMarketMint is emitted whenever a mint through the market settles.
	TypeMarketMint = "market.mint"
	// TypeMarketRedeem is emitted whenever a redemption through the market
	// settles.
	TypeMarketRedeem = "market.redeem"
)

// MarketMint captures a settled mint including the fee charged on the way in.
type MarketMint struct {
	Caller        crypto.Address
	Recipient     crypto.Address
	Option        string
	BaseIn        *uint256.Int
	FeeBase       *uint256.Int
	FractionalOut *uint256.Int
	LeveragedOut  *uint256.Int
}

func (MarketMint) EventType() string { return TypeMarketMint }

func (e MarketMint) EventAttributes() map[string]string {
	return map[string]string{
		"caller":        e.Caller.String(),
		"recipient":     e.Recipient.String(),
		"option":        strings.ToLower(strings.TrimSpace(e.Option)),
		"baseIn":        amountString(e.BaseIn),
		"feeBase":       amountString(e.FeeBase),
		"fractionalOut": amountString(e.FractionalOut),
		"leveragedOut":  amountString(e.LeveragedOut),
	}
}

// MarketRedeem captures a settled redemption including the fee withheld from
// the payout.
type MarketRedeem struct {
	Caller       crypto.Address
	Recipient    crypto.Address
	FractionalIn *uint256.Int
	LeveragedIn  *uint256.Int
	FeeBase      *uint256.Int
	BaseOut      *uint256.Int
}

func (MarketRedeem) EventType() string { return TypeMarketRedeem }

func (e MarketRedeem) EventAttributes() map[string]string {
	return map[string]string{
		"caller":       e.Caller.String(),
		"recipient":    e.Recipient.String(),
		"fractionalIn": amountString(e.FractionalIn),
		"leveragedIn":  amountString(e.LeveragedIn),
		"feeBase":      amountString(e.FeeBase),
		"baseOut":      amountString(e.BaseOut),
	}
}
