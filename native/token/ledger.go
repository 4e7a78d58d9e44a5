package token

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"prism/crypto"
	"prism/native/fixedpoint"
)

var (
	ErrInvalidSymbol       = errors.New("token: symbol required")
	ErrInvalidAddress      = errors.New("token: address required")
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrSupplyMismatch      = errors.New("token: burn exceeds recorded supply")
)

// Token is the minimal fungible ledger capability the treasury and market
// hold on the base, fractional and leveraged assets. Implementations track
// balances and total supply; they know nothing about navs or fees.
type Token interface {
	Symbol() string
	Mint(to crypto.Address, amount *uint256.Int) error
	Burn(from crypto.Address, amount *uint256.Int) error
	Transfer(from, to crypto.Address, amount *uint256.Int) error
	TotalSupply() (*uint256.Int, error)
	BalanceOf(addr crypto.Address) (*uint256.Int, error)
}

// Storage is the narrow persistence surface the ledger consumes.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Ledger is the key value backed Token implementation used by the daemon.
type Ledger struct {
	state  Storage
	symbol string
}

type storedAmount struct {
	Amount string
}

func NewLedger(state Storage, symbol string) (*Ledger, error) {
	if state == nil {
		return nil, errors.New("token: storage required")
	}
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return nil, ErrInvalidSymbol
	}
	return &Ledger{state: state, symbol: normalized}, nil
}

func (l *Ledger) Symbol() string {
	return l.symbol
}

func (l *Ledger) supplyKey() []byte {
	return []byte("token/" + l.symbol + "/supply")
}

func (l *Ledger) balanceKey(addr crypto.Address) []byte {
	return append([]byte("token/"+l.symbol+"/balance/"), addr.Bytes()...)
}

func (l *Ledger) loadAmount(key []byte) (*uint256.Int, error) {
	var record storedAmount
	ok, err := l.state.KVGet(key, &record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	amount, err := uint256.FromDecimal(record.Amount)
	if err != nil {
		return nil, fmt.Errorf("token: corrupt amount under %q: %w", key, err)
	}
	return amount, nil
}

func (l *Ledger) storeAmount(key []byte, amount *uint256.Int) error {
	return l.state.KVPut(key, storedAmount{Amount: amount.String()})
}

// Mint credits freshly issued units. A zero amount is a no-op so callers can
// forward computed outputs without special casing.
func (l *Ledger) Mint(to crypto.Address, amount *uint256.Int) error {
	if to.IsZero() {
		return ErrInvalidAddress
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	supply, err := l.loadAmount(l.supplyKey())
	if err != nil {
		return err
	}
	newSupply, err := fixedpoint.Add(supply, amount)
	if err != nil {
		return err
	}
	balance, err := l.loadAmount(l.balanceKey(to))
	if err != nil {
		return err
	}
	newBalance, err := fixedpoint.Add(balance, amount)
	if err != nil {
		return err
	}
	if err := l.storeAmount(l.supplyKey(), newSupply); err != nil {
		return err
	}
	return l.storeAmount(l.balanceKey(to), newBalance)
}

// Burn destroys units held by from.
func (l *Ledger) Burn(from crypto.Address, amount *uint256.Int) error {
	if from.IsZero() {
		return ErrInvalidAddress
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	balance, err := l.loadAmount(l.balanceKey(from))
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return ErrInsufficientBalance
	}
	supply, err := l.loadAmount(l.supplyKey())
	if err != nil {
		return err
	}
	if supply.Lt(amount) {
		return ErrSupplyMismatch
	}
	newBalance, err := fixedpoint.Sub(balance, amount)
	if err != nil {
		return err
	}
	newSupply, err := fixedpoint.Sub(supply, amount)
	if err != nil {
		return err
	}
	if err := l.storeAmount(l.balanceKey(from), newBalance); err != nil {
		return err
	}
	return l.storeAmount(l.supplyKey(), newSupply)
}

// Transfer moves units between holders without touching supply.
func (l *Ledger) Transfer(from, to crypto.Address, amount *uint256.Int) error {
	if from.IsZero() || to.IsZero() {
		return ErrInvalidAddress
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	if from.Equal(to) {
		return nil
	}
	fromBalance, err := l.loadAmount(l.balanceKey(from))
	if err != nil {
		return err
	}
	if fromBalance.Lt(amount) {
		return ErrInsufficientBalance
	}
	toBalance, err := l.loadAmount(l.balanceKey(to))
	if err != nil {
		return err
	}
	newFrom, err := fixedpoint.Sub(fromBalance, amount)
	if err != nil {
		return err
	}
	newTo, err := fixedpoint.Add(toBalance, amount)
	if err != nil {
		return err
	}
	if err := l.storeAmount(l.balanceKey(from), newFrom); err != nil {
		return err
	}
	return l.storeAmount(l.balanceKey(to), newTo)
}

func (l *Ledger) TotalSupply() (*uint256.Int, error) {
	return l.loadAmount(l.supplyKey())
}

func (l *Ledger) BalanceOf(addr crypto.Address) (*uint256.Int, error) {
	if addr.IsZero() {
		return nil, ErrInvalidAddress
	}
	return l.loadAmount(l.balanceKey(addr))
}
