package engine

import (
	"math/bits"

	"github.com/alanyoungcy/cryptobet/internal/domain"
)

// checkedAdd returns a+b or ErrMathOverflow when the sum does not fit in
// uint64. Counters are never silently saturated.
func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, domain.ErrMathOverflow
	}
	return sum, nil
}

// mulDiv computes floor(a*b/d) using a 128-bit intermediate product so the
// multiplication cannot overflow before the division. It fails with
// ErrDivisionByZero for d == 0 and ErrMathOverflow when the quotient does
// not fit in uint64.
func mulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, domain.ErrDivisionByZero
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		// bits.Div64 panics on quotient overflow; reject it as checked math.
		return 0, domain.ErrMathOverflow
	}
	q, _ := bits.Div64(hi, lo, d)
	return q, nil
}
