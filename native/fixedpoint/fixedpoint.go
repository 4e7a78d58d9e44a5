package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// Amounts and ratios are unsigned 18-decimal fixed-point values. One() is the
// scaling unit; a ratio of 1.0 is exactly One(). All divisions truncate toward
// zero so results stay bit-exact across implementations.
var (
	ErrOverflow       = errors.New("fixedpoint: arithmetic overflow")
	ErrUnderflow      = errors.New("fixedpoint: arithmetic underflow")
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")
)

var one = uint256.MustFromDecimal("1000000000000000000") // 1e18

// One returns the fixed-point scaling unit (1e18) as a fresh value.
func One() *uint256.Int {
	return new(uint256.Int).Set(one)
}

// IsOne reports whether v equals the scaling unit.
func IsOne(v *uint256.Int) bool {
	return v != nil && v.Eq(one)
}

// Add returns a+b or ErrOverflow.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return sum, nil
}

// Sub returns a-b or ErrUnderflow when b exceeds a.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	diff, borrow := new(uint256.Int).SubOverflow(a, b)
	if borrow {
		return nil, ErrUnderflow
	}
	return diff, nil
}

// Mul returns the raw integer product a*b or ErrOverflow.
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return product, nil
}

// Div returns floor(a/b) or ErrDivisionByZero.
func Div(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	return new(uint256.Int).Div(a, b), nil
}

// MulDiv returns floor(a*b/den) using a full 512-bit intermediate product, so
// the multiply cannot overflow as long as the final quotient fits 256 bits.
func MulDiv(a, b, den *uint256.Int) (*uint256.Int, error) {
	if den.IsZero() {
		return nil, ErrDivisionByZero
	}
	quotient, overflow := new(uint256.Int).MulDivOverflow(a, b, den)
	if overflow {
		return nil, ErrOverflow
	}
	return quotient, nil
}

// MulUnit multiplies two fixed-point values: floor(a*b/1e18).
func MulUnit(a, b *uint256.Int) (*uint256.Int, error) {
	return MulDiv(a, b, one)
}

// DivUnit divides two fixed-point values: floor(a*1e18/b).
func DivUnit(a, b *uint256.Int) (*uint256.Int, error) {
	return MulDiv(a, one, b)
}

// Clone returns a defensive copy, mapping nil to zero.
func Clone(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

// FromBig converts a big.Int amount. Negative values underflow, values beyond
// 256 bits overflow.
func FromBig(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, ErrUnderflow
	}
	converted, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrOverflow
	}
	return converted, nil
}

// FromDecimal parses a non-negative decimal string ("0.5", "1", "1.3") into an
// 18-decimal fixed-point value, truncating excess precision.
func FromDecimal(value string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("fixedpoint: empty decimal")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return nil, fmt.Errorf("fixedpoint: invalid decimal %q", value)
	}
	if rat.Sign() < 0 {
		return nil, ErrUnderflow
	}
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(one.ToBig()))
	quo := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	return FromBig(quo)
}

// MustFromDecimal is FromDecimal for package-level constants; it panics on
// malformed input.
func MustFromDecimal(value string) *uint256.Int {
	parsed, err := FromDecimal(value)
	if err != nil {
		panic(err)
	}
	return parsed
}
