package token

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"prism/crypto"
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

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	ledger, err := NewLedger(newMemoryStore(), "prUSD")
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return ledger
}

func TestNewLedgerNormalisesSymbol(t *testing.T) {
	ledger := newTestLedger(t)
	if got := ledger.Symbol(); got != "PRUSD" {
		t.Fatalf("expected PRUSD, got %s", got)
	}
	if _, err := NewLedger(newMemoryStore(), "   "); !errors.Is(err, ErrInvalidSymbol) {
		t.Fatalf("expected ErrInvalidSymbol, got %v", err)
	}
	if _, err := NewLedger(nil, "PRUSD"); err == nil {
		t.Fatalf("expected error for nil storage")
	}
}

func TestMintCreditsBalanceAndSupply(t *testing.T) {
	ledger := newTestLedger(t)
	holder := testAddr(0x01)
	if err := ledger.Mint(holder, uint256.NewInt(500)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Mint(holder, uint256.NewInt(250)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	balance, err := ledger.BalanceOf(holder)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Uint64() != 750 {
		t.Fatalf("expected balance 750, got %s", balance)
	}
	supply, err := ledger.TotalSupply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Uint64() != 750 {
		t.Fatalf("expected supply 750, got %s", supply)
	}
}

func TestMintZeroAmountIsNoop(t *testing.T) {
	ledger := newTestLedger(t)
	holder := testAddr(0x01)
	if err := ledger.Mint(holder, nil); err != nil {
		t.Fatalf("mint nil: %v", err)
	}
	if err := ledger.Mint(holder, new(uint256.Int)); err != nil {
		t.Fatalf("mint zero: %v", err)
	}
	supply, err := ledger.TotalSupply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if !supply.IsZero() {
		t.Fatalf("expected zero supply, got %s", supply)
	}
}

func TestMintRejectsZeroAddress(t *testing.T) {
	ledger := newTestLedger(t)
	if err := ledger.Mint(crypto.Address{}, uint256.NewInt(1)); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestBurnDebitsBalanceAndSupply(t *testing.T) {
	ledger := newTestLedger(t)
	holder := testAddr(0x01)
	if err := ledger.Mint(holder, uint256.NewInt(500)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Burn(holder, uint256.NewInt(200)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	balance, err := ledger.BalanceOf(holder)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Uint64() != 300 {
		t.Fatalf("expected balance 300, got %s", balance)
	}
	supply, err := ledger.TotalSupply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Uint64() != 300 {
		t.Fatalf("expected supply 300, got %s", supply)
	}
}

func TestBurnRejectsOverdraft(t *testing.T) {
	ledger := newTestLedger(t)
	holder := testAddr(0x01)
	if err := ledger.Mint(holder, uint256.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Burn(holder, uint256.NewInt(101)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	balance, err := ledger.BalanceOf(holder)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Uint64() != 100 {
		t.Fatalf("expected untouched balance, got %s", balance)
	}
}

func TestTransferMovesUnits(t *testing.T) {
	ledger := newTestLedger(t)
	from := testAddr(0x01)
	to := testAddr(0x02)
	if err := ledger.Mint(from, uint256.NewInt(400)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Transfer(from, to, uint256.NewInt(150)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	fromBalance, err := ledger.BalanceOf(from)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	toBalance, err := ledger.BalanceOf(to)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if fromBalance.Uint64() != 250 || toBalance.Uint64() != 150 {
		t.Fatalf("expected 250/150, got %s/%s", fromBalance, toBalance)
	}
	supply, err := ledger.TotalSupply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Uint64() != 400 {
		t.Fatalf("transfer must not change supply, got %s", supply)
	}
}

func TestTransferRejectsOverdraft(t *testing.T) {
	ledger := newTestLedger(t)
	from := testAddr(0x01)
	to := testAddr(0x02)
	if err := ledger.Mint(from, uint256.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Transfer(from, to, uint256.NewInt(11)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestTransferToSelfIsNoop(t *testing.T) {
	ledger := newTestLedger(t)
	holder := testAddr(0x01)
	if err := ledger.Mint(holder, uint256.NewInt(42)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Transfer(holder, holder, uint256.NewInt(7)); err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	balance, err := ledger.BalanceOf(holder)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Uint64() != 42 {
		t.Fatalf("expected balance 42, got %s", balance)
	}
}

func TestLedgersAreIsolatedBySymbol(t *testing.T) {
	store := newMemoryStore()
	stable, err := NewLedger(store, "prUSD")
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	leveraged, err := NewLedger(store, "prX")
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	holder := testAddr(0x01)
	if err := stable.Mint(holder, uint256.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	other, err := leveraged.BalanceOf(holder)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !other.IsZero() {
		t.Fatalf("expected isolated ledgers, got %s", other)
	}
}
