package costs

import (
	"fmt"
	"math"
)

// Micros is an amount in millionths of the billing currency.
type Micros int64

const microsPerUnit = 1_000_000

// FromFloat converts a currency amount to micro-units, rounding half away
// from zero.
func FromFloat(amount float64) Micros {
	return Micros(math.Round(amount * microsPerUnit))
}

// Float returns the amount in currency units.
func (m Micros) Float() float64 {
	return float64(m) / microsPerUnit
}

// String formats the amount with two decimals, e.g. "12.30".
func (m Micros) String() string {
	return fmt.Sprintf("%.2f", m.Float())
}
