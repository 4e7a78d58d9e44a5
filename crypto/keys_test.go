package crypto

import (
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	addr := ModuleAddress("treasury")
	encoded := addr.String()
	if !strings.HasPrefix(encoded, string(PrismPrefix)+"1") {
		t.Fatalf("unexpected encoding %q", encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !decoded.Equal(addr) {
		t.Fatalf("round trip mismatch: %s vs %s", decoded, addr)
	}
}

func TestDecodeRejectsForeignPrefix(t *testing.T) {
	// A valid bech32 string with a non prism prefix.
	foreign := "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"
	if _, err := DecodeAddress(foreign); err == nil {
		t.Fatalf("expected prefix rejection")
	}
}

func TestModuleAddressesAreStable(t *testing.T) {
	first := ModuleAddress("market")
	second := ModuleAddress("market")
	if !first.Equal(second) {
		t.Fatalf("module address derivation is not deterministic")
	}
	if first.Equal(ModuleAddress("treasury")) {
		t.Fatalf("distinct modules share an address")
	}
}

func TestNewAddressLength(t *testing.T) {
	if _, err := NewAddress(PrismPrefix, []byte{1, 2, 3}); err == nil {
		t.Fatalf("expected length validation")
	}
}

func TestZeroAddress(t *testing.T) {
	var addr Address
	if !addr.IsZero() {
		t.Fatalf("zero value must report zero")
	}
	if addr.String() != "" {
		t.Fatalf("zero address must render empty")
	}
}
