package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/alanyoungcy/cryptobet/internal/domain"
)

func TestCheckedAdd(t *testing.T) {
	t.Run("normal addition", func(t *testing.T) {
		sum, err := checkedAdd(10_000_000, 5_000_000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sum != 15_000_000 {
			t.Errorf("sum = %d, want 15000000", sum)
		}
	})

	t.Run("max value plus zero", func(t *testing.T) {
		sum, err := checkedAdd(math.MaxUint64, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sum != math.MaxUint64 {
			t.Errorf("sum = %d, want MaxUint64", sum)
		}
	})

	t.Run("overflow", func(t *testing.T) {
		if _, err := checkedAdd(math.MaxUint64, 1); !errors.Is(err, domain.ErrMathOverflow) {
			t.Errorf("err = %v, want ErrMathOverflow", err)
		}
	})
}

func TestMulDiv(t *testing.T) {
	t.Run("exact division", func(t *testing.T) {
		// 10M shares of a 60M pool with 40M winning shares.
		got, err := mulDiv(10_000_000, 60_000_000, 40_000_000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 15_000_000 {
			t.Errorf("got %d, want 15000000", got)
		}
	})

	t.Run("floors the quotient", func(t *testing.T) {
		got, err := mulDiv(1, 7, 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 3 {
			t.Errorf("got %d, want 3", got)
		}
	})

	t.Run("intermediate product exceeds 64 bits", func(t *testing.T) {
		// a*b does not fit in uint64, but the quotient does.
		a := uint64(1) << 40
		b := uint64(1) << 40
		got, err := mulDiv(a, b, 1<<30)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 1<<50 {
			t.Errorf("got %d, want %d", got, uint64(1)<<50)
		}
	})

	t.Run("division by zero", func(t *testing.T) {
		if _, err := mulDiv(1, 1, 0); !errors.Is(err, domain.ErrDivisionByZero) {
			t.Errorf("err = %v, want ErrDivisionByZero", err)
		}
	})

	t.Run("quotient overflow", func(t *testing.T) {
		if _, err := mulDiv(math.MaxUint64, math.MaxUint64, 2); !errors.Is(err, domain.ErrMathOverflow) {
			t.Errorf("err = %v, want ErrMathOverflow", err)
		}
	})
}
