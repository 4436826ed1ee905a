package domain

import "fmt"

// Money is a monetary amount in integer micro-units (1e-6 of a currency
// unit). Cost arithmetic stays exact across repeated summation, which keeps
// the persisted total equal to the sum of its components.
type Money int64

// MoneyFromCents converts a whole-cent amount to micro-units.
func MoneyFromCents(cents int64) Money {
	return Money(cents * 10_000)
}

// Cents returns the amount truncated to whole cents.
func (m Money) Cents() int64 {
	return int64(m) / 10_000
}

// Float returns the amount as a floating-point currency value. Intended for
// presentation only, never for arithmetic.
func (m Money) Float() float64 {
	return float64(m) / 1_000_000
}

func (m Money) String() string {
	return fmt.Sprintf("%.6f", m.Float())
}
