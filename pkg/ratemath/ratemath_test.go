package ratemath

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func e18(v uint64) *uint256.Int { return FromUint64E18(v) }

func TestMul(t *testing.T) {
	cases := []struct {
		name    string
		a, b    *uint256.Int
		want    *uint256.Int
		wantErr bool
	}{
		{"one times one", One, One, One, false},
		{"two times half", e18(2), uint256.NewInt(500_000_000_000_000_000), e18(1), false},
		{"overflow", new(uint256.Int).Not(uint256.NewInt(0)), new(uint256.Int).Not(uint256.NewInt(0)), nil, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Mul(c.a, c.b)
			if c.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got.Dec())
				}
				if !errors.Is(err, ErrArithmetic) {
					t.Fatalf("expected ErrArithmetic, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Eq(c.want) {
				t.Fatalf("Mul(%s, %s) = %s, want %s", c.a.Dec(), c.b.Dec(), got.Dec(), c.want.Dec())
			}
		})
	}
}

func TestDivByZero(t *testing.T) {
	_, err := Div(One, uint256.NewInt(0))
	if !errors.Is(err, ErrArithmetic) {
		t.Fatalf("expected ErrArithmetic, got %v", err)
	}
}

func TestDiv(t *testing.T) {
	got, err := Div(e18(1), e18(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := uint256.NewInt(250_000_000_000_000_000)
	if !got.Eq(want) {
		t.Fatalf("Div(1,4) = %s, want %s", got.Dec(), want.Dec())
	}
}

func TestSubUnderflow(t *testing.T) {
	_, err := Sub(e18(1), e18(2))
	if !errors.Is(err, ErrArithmetic) {
		t.Fatalf("expected ErrArithmetic, got %v", err)
	}
}

func TestAddOverflow(t *testing.T) {
	max := new(uint256.Int).Not(uint256.NewInt(0))
	_, err := Add(max, uint256.NewInt(1))
	if !errors.Is(err, ErrArithmetic) {
		t.Fatalf("expected ErrArithmetic, got %v", err)
	}
}

func TestMulBps(t *testing.T) {
	got, err := MulBps(e18(100), 12500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := e18(125)
	if !got.Eq(want) {
		t.Fatalf("MulBps(100, 12500) = %s, want %s", got.Dec(), want.Dec())
	}
}

func TestArithErrorUnwraps(t *testing.T) {
	err := arithErr("boom: %d", 7)
	if !errors.Is(err, ErrArithmetic) {
		t.Fatalf("arithErr result does not unwrap to ErrArithmetic")
	}
	var ae *ArithError
	if !errors.As(err, &ae) {
		t.Fatalf("arithErr result is not an *ArithError")
	}
	if ae.Detail != "boom: 7" {
		t.Fatalf("unexpected detail: %s", ae.Detail)
	}
}
