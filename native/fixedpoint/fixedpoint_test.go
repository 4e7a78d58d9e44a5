package fixedpoint

import (
	"errors"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
)

func TestAddOverflow(t *testing.T) {
	max := new(uint256.Int).Sub(new(uint256.Int), uint256.NewInt(1))
	if _, err := Add(max, uint256.NewInt(1)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	sum, err := Add(uint256.NewInt(2), uint256.NewInt(3))
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if !sum.Eq(uint256.NewInt(5)) {
		t.Fatalf("unexpected sum %s", sum)
	}
}

func TestSubUnderflow(t *testing.T) {
	if _, err := Sub(uint256.NewInt(1), uint256.NewInt(2)); !errors.Is(err, ErrUnderflow) {
		t.Fatalf("expected underflow, got %v", err)
	}
	diff, err := Sub(uint256.NewInt(5), uint256.NewInt(5))
	if err != nil {
		t.Fatalf("sub failed: %v", err)
	}
	if !diff.IsZero() {
		t.Fatalf("unexpected diff %s", diff)
	}
}

func TestDivByZero(t *testing.T) {
	if _, err := Div(uint256.NewInt(1), uint256.NewInt(0)); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected division by zero, got %v", err)
	}
	if _, err := MulDiv(uint256.NewInt(1), uint256.NewInt(1), uint256.NewInt(0)); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected division by zero, got %v", err)
	}
}

func TestMulDivFullPrecision(t *testing.T) {
	// The intermediate product spans well past 256 bits; only the quotient
	// has to fit.
	a := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	b := new(uint256.Int).Lsh(uint256.NewInt(1), 100)
	got, err := MulDiv(a, b, b)
	if err != nil {
		t.Fatalf("muldiv failed: %v", err)
	}
	if !got.Eq(a) {
		t.Fatalf("expected %s, got %s", a, got)
	}
}

func TestMulDivOverflowingQuotient(t *testing.T) {
	a := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	b := new(uint256.Int).Lsh(uint256.NewInt(1), 100)
	if _, err := MulDiv(a, b, uint256.NewInt(2)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestMulDivTruncates(t *testing.T) {
	got, err := MulDiv(uint256.NewInt(10), uint256.NewInt(1), uint256.NewInt(3))
	if err != nil {
		t.Fatalf("muldiv failed: %v", err)
	}
	if !got.Eq(uint256.NewInt(3)) {
		t.Fatalf("expected floor division, got %s", got)
	}
}

func TestUnitHelpers(t *testing.T) {
	two := MustFromDecimal("2")
	three := MustFromDecimal("3")
	product, err := MulUnit(two, three)
	if err != nil {
		t.Fatalf("mulunit failed: %v", err)
	}
	if !product.Eq(MustFromDecimal("6")) {
		t.Fatalf("unexpected product %s", product)
	}
	quotient, err := DivUnit(product, three)
	if err != nil {
		t.Fatalf("divunit failed: %v", err)
	}
	if !quotient.Eq(two) {
		t.Fatalf("unexpected quotient %s", quotient)
	}
}

func TestFromDecimal(t *testing.T) {
	cases := map[string]string{
		"0.5":  "500000000000000000",
		"1":    "1000000000000000000",
		"1.3":  "1300000000000000000",
		"0":    "0",
		"0.9":  "900000000000000000",
		"100":  "100000000000000000000",
		" 2.0": "2000000000000000000",
	}
	for input, expected := range cases {
		got, err := FromDecimal(input)
		if err != nil {
			t.Fatalf("parse %q failed: %v", input, err)
		}
		if got.String() != expected {
			t.Fatalf("parse %q: expected %s, got %s", input, expected, got)
		}
	}
	if _, err := FromDecimal("-1"); !errors.Is(err, ErrUnderflow) {
		t.Fatalf("expected underflow for negative input, got %v", err)
	}
	if _, err := FromDecimal("abc"); err == nil {
		t.Fatalf("expected parse failure")
	}
	if _, err := FromDecimal(""); err == nil {
		t.Fatalf("expected parse failure for empty input")
	}
}

func TestFromDecimalTruncatesExcessPrecision(t *testing.T) {
	got, err := FromDecimal("0.0000000000000000019")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !got.Eq(uint256.NewInt(1)) {
		t.Fatalf("expected truncation to 1 wei, got %s", got)
	}
}

func TestFromBig(t *testing.T) {
	if _, err := FromBig(big.NewInt(-1)); !errors.Is(err, ErrUnderflow) {
		t.Fatalf("expected underflow, got %v", err)
	}
	huge := new(big.Int).Lsh(big.NewInt(1), 300)
	if _, err := FromBig(huge); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	got, err := FromBig(big.NewInt(42))
	if err != nil {
		t.Fatalf("frombig failed: %v", err)
	}
	if !got.Eq(uint256.NewInt(42)) {
		t.Fatalf("unexpected value %s", got)
	}
}

func TestOneIsIsolated(t *testing.T) {
	first := One()
	first.SetUint64(7)
	if !One().Eq(MustFromDecimal("1")) {
		t.Fatalf("mutating a returned unit must not affect the package constant")
	}
}
