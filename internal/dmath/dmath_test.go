package dmath

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// --- Division tests ---

func TestDiv_Exact(t *testing.T) {
	q, err := Div(d(10), d(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.Equal(d(2)) {
		t.Errorf("expected 10/5 = 2, got %s", q)
	}
}

func TestDiv_ByZero(t *testing.T) {
	_, err := Div(d(10), d(0))
	if err != ErrDivideByZero {
		t.Errorf("expected ErrDivideByZero, got %v", err)
	}
}

func TestDiv_TruncatesNotRounds(t *testing.T) {
	// 2/3 = 0.666... and the 18th digit must stay a 6, never round to 7.
	q, err := Div(d(2), d(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "0." + strings.Repeat("6", 18)
	if q.String() != want {
		t.Errorf("expected truncated quotient %s, got %s", want, q)
	}
}

func TestDiv_PriceRatio(t *testing.T) {
	// The ratio used throughout solvency checks: synthetic price over
	// collateral price.
	q, err := Div(d(5), d(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.Equal(d(0.5)) {
		t.Errorf("expected 5/10 = 0.5, got %s", q)
	}
}

// --- Reciprocal tests ---

func TestRecip_Half(t *testing.T) {
	r, err := Recip(d(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.Equal(d(0.5)) {
		t.Errorf("expected 1/2 = 0.5, got %s", r)
	}
}

func TestRecip_Zero(t *testing.T) {
	_, err := Recip(d(0))
	if err != ErrDivideByZero {
		t.Errorf("expected ErrDivideByZero, got %v", err)
	}
}

func TestRecip_Truncates(t *testing.T) {
	r, err := Recip(d(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "0." + strings.Repeat("3", 18)
	if r.String() != want {
		t.Errorf("expected %s, got %s", want, r)
	}
}

// --- Multiplication tests ---

func TestMul_Basic(t *testing.T) {
	p, err := Mul(d(1.5), d(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Equal(d(3)) {
		t.Errorf("expected 1.5*2 = 3, got %s", p)
	}
}

func TestMul_Overflow(t *testing.T) {
	_, err := Mul(MaxAmount, d(2))
	if err != ErrOverflow {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestMul_TruncatesTinyProducts(t *testing.T) {
	// 1e-10 * 1e-10 = 1e-20, below 18 fractional digits, truncates to zero.
	p, err := Mul(d(1e-10), d(1e-10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.IsZero() {
		t.Errorf("expected sub-precision product to truncate to 0, got %s", p)
	}
}

// --- Addition tests ---

func TestAdd_Basic(t *testing.T) {
	s, err := Add(d(1000), d(500))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.Equal(d(1500)) {
		t.Errorf("expected 1500, got %s", s)
	}
}

func TestAdd_Overflow(t *testing.T) {
	_, err := Add(MaxAmount, d(1))
	if err != ErrOverflow {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestAdd_AtMaxAllowed(t *testing.T) {
	s, err := Add(MaxAmount.Sub(d(1)), d(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.Equal(MaxAmount) {
		t.Errorf("expected MaxAmount, got %s", s)
	}
}

// --- Subtraction tests ---

func TestSub_Basic(t *testing.T) {
	r, err := Sub(d(1000), d(250))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.Equal(d(750)) {
		t.Errorf("expected 1000-250 = 750, got %s", r)
	}
}

func TestSub_Underflow(t *testing.T) {
	_, err := Sub(d(250), d(1000))
	if err != ErrOverflow {
		t.Errorf("expected ErrOverflow for negative result, got %v", err)
	}
}

func TestSub_ToZero(t *testing.T) {
	r, err := Sub(d(1000), d(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.IsZero() {
		t.Errorf("expected 0, got %s", r)
	}
}

// --- MulAmount tests ---

func TestMulAmount_Floors(t *testing.T) {
	p, err := MulAmount(d(7), d(0.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Equal(d(3)) {
		t.Errorf("expected floor(3.5) = 3, got %s", p)
	}
}

func TestMulAmount_Exact(t *testing.T) {
	p, err := MulAmount(d(1000), d(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Equal(d(2000)) {
		t.Errorf("expected 2000, got %s", p)
	}
}

func TestMulAmount_Overflow(t *testing.T) {
	_, err := MulAmount(MaxAmount, d(2))
	if err != ErrOverflow {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestMulAmount_RequiredCollateralChain(t *testing.T) {
	// 1000 synthetic at price 5 against collateral at price 10 with a 1.5
	// minimum ratio requires 750 collateral: 1000*(5/10) = 500, *1.5 = 750.
	ratio, err := Div(d(5), d(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	value, err := MulAmount(d(1000), ratio)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !value.Equal(d(500)) {
		t.Fatalf("expected value 500, got %s", value)
	}
	required, err := MulAmount(value, d(1.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !required.Equal(d(750)) {
		t.Errorf("expected required 750, got %s", required)
	}
}

// --- Min tests ---

func TestMin(t *testing.T) {
	tests := []struct {
		a, b, want float64
	}{
		{1, 2, 1},
		{2, 1, 1},
		{5, 5, 5},
		{0, 3, 0},
	}
	for _, tt := range tests {
		got := Min(d(tt.a), d(tt.b))
		if !got.Equal(d(tt.want)) {
			t.Errorf("Min(%v,%v): expected %v, got %s", tt.a, tt.b, tt.want, got)
		}
	}
}
