// Package ratemath implements the unsigned 256-bit, 18-decimal
// fixed-point arithmetic required by the strategy engine's rate-policy
// computation (SPEC_FULL.md §4.3.2 step 3), with explicit overflow
// detection in place of wraparound.
package ratemath

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// ErrArithmetic is returned for any overflow, underflow, or division by
// zero encountered while evaluating the rate policy. It is always fatal
// for the execution that produced it.
var ErrArithmetic = errors.New("arithmetic error")

// ArithError wraps ErrArithmetic with a human-readable detail, matching
// the spec's Arithmetic{detail} error shape.
type ArithError struct {
	Detail string
}

func (e *ArithError) Error() string { return fmt.Sprintf("arithmetic error: %s", e.Detail) }
func (e *ArithError) Unwrap() error { return ErrArithmetic }

func arithErr(format string, args ...interface{}) error {
	return &ArithError{Detail: fmt.Sprintf(format, args...)}
}

// One represents 1.0 in 18-decimal fixed point (1e18).
var One = uint256.NewInt(1_000_000_000_000_000_000)

// FromUint64E18 builds a fixed-point value from a plain integer (not
// decimal-scaled); callers that already hold an e18 value should use
// uint256.NewInt directly.
func FromUint64E18(v uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(v), One)
}

// Mul computes a*b/1e18, the fixed-point product, failing on overflow of
// the intermediate 512-bit-capable multiplication result.
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	// MulDivOverflow performs a*b/d with full-width intermediate
	// precision and reports overflow of the final division, which is
	// exactly the fixed-point multiply-then-descale this needs.
	res, overflow := new(uint256.Int).MulDivOverflow(a, b, One)
	if overflow {
		return nil, arithErr("multiplication overflow: %s * %s", a.Dec(), b.Dec())
	}
	return res, nil
}

// Div computes a*1e18/b, the fixed-point quotient, failing on division
// by zero or overflow.
func Div(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, arithErr("division by zero: %s / 0", a.Dec())
	}
	res, overflow := new(uint256.Int).MulDivOverflow(a, One, b)
	if overflow {
		return nil, arithErr("division overflow: %s / %s", a.Dec(), b.Dec())
	}
	return res, nil
}

// Add computes a+b, failing on overflow of the 256-bit width.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	res, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, arithErr("addition overflow: %s + %s", a.Dec(), b.Dec())
	}
	return res, nil
}

// Sub computes a-b, failing on underflow (a<b).
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	if a.Lt(b) {
		return nil, arithErr("subtraction underflow: %s - %s", a.Dec(), b.Dec())
	}
	return new(uint256.Int).Sub(a, b), nil
}

// MulBps scales v by bps/10000, e.g. MulBps(v, 12500) = v*1.25.
func MulBps(v *uint256.Int, bps int64) (*uint256.Int, error) {
	bpsInt := uint256.NewInt(uint64(bps))
	num, overflow := new(uint256.Int).MulOverflow(v, bpsInt)
	if overflow {
		return nil, arithErr("bps scaling overflow: %s * %d", v.Dec(), bps)
	}
	return new(uint256.Int).Div(num, uint256.NewInt(10000)), nil
}
