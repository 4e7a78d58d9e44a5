package events

import (
	"strconv"

	"github.com/holiman/uint256"

	"prism/crypto"
)

const (
	// TypePriceInitialized is emitted once when the permissioned reference
	// price is seeded.
	TypePriceInitialized = "treasury.priceInitialized"
	// TypeConfigUpdated is emitted whenever an admin setter lands.
	TypeConfigUpdated = "admin.configUpdated"
	// TypeModulePaused is emitted whenever a module is halted or resumed.
	TypeModulePaused = "admin.modulePaused"
	// TypePriceSubmitted is emitted when an admin pushes a quote onto the
	// manual price feed.
	TypePriceSubmitted = "oracle.priceSubmitted"
)

// PriceInitialized records the one time seeding of the reference price.
type PriceInitialized struct {
	Caller crypto.Address
	Price  *uint256.Int
}

func (PriceInitialized) EventType() string { return TypePriceInitialized }

func (e PriceInitialized) EventAttributes() map[string]string {
	return map[string]string{
		"caller": e.Caller.String(),
		"price":  amountString(e.Price),
	}
}

// ConfigUpdated records an admin parameter change for the audit trail.
type ConfigUpdated struct {
	Caller crypto.Address
	Key    string
	Value  string
}

func (ConfigUpdated) EventType() string { return TypeConfigUpdated }

func (e ConfigUpdated) EventAttributes() map[string]string {
	return map[string]string{
		"caller": e.Caller.String(),
		"key":    e.Key,
		"value":  e.Value,
	}
}

// PriceSubmitted records a manual price push to the permissioned feed.
type PriceSubmitted struct {
	Caller crypto.Address
	Price  *uint256.Int
}

func (PriceSubmitted) EventType() string { return TypePriceSubmitted }

func (e PriceSubmitted) EventAttributes() map[string]string {
	return map[string]string{
		"caller": e.Caller.String(),
		"price":  amountString(e.Price),
	}
}

// ModulePaused records a pause flag flip.
type ModulePaused struct {
	Caller crypto.Address
	Module string
	Paused bool
}

func (ModulePaused) EventType() string { return TypeModulePaused }

func (e ModulePaused) EventAttributes() map[string]string {
	return map[string]string{
		"caller": e.Caller.String(),
		"module": e.Module,
		"paused": strconv.FormatBool(e.Paused),
	}
}
