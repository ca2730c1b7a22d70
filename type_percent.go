package portfolio

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// percentPlaces is the number of decimal places a Percent is reported with.
const percentPlaces = 4

// Percent is an exact percentage: P(1) is 1%.
type Percent struct {
	value decimal.Decimal
}

// P creates a Percent.
func P[T float32 | float64 | int | int32 | int64 | uint | uint32 | uint64 | decimal.Decimal](value T) Percent {
	return Percent{value: newDecimal(value)}
}

// Change returns delta relative to base, as a percentage.
// It is 0 when base is zero.
func Change(delta, base Money) Percent {
	if base.IsZero() {
		return Percent{}
	}
	return Percent{value: delta.value.Div(base.value).Mul(decimal.NewFromInt(100))}
}

func (p Percent) Decimal() decimal.Decimal { return p.value }
func (p Percent) IsZero() bool             { return p.value.IsZero() }

// Equal compares percentages at reporting precision.
func (p Percent) Equal(q Percent) bool {
	return p.value.Round(percentPlaces).Equal(q.value.Round(percentPlaces))
}

func (p Percent) String() string {
	return fmt.Sprintf("%s%%", p.value.StringFixed(2))
}

func (p Percent) SignedString() string {
	r := p.value.Round(2)
	if r.IsZero() {
		return "-"
	}
	if r.IsPositive() {
		return "+" + p.String()
	}
	return p.String()
}

func (p Percent) MarshalJSON() ([]byte, error) {
	return p.value.Round(percentPlaces).MarshalJSON()
}

func (p *Percent) UnmarshalJSON(b []byte) error {
	return p.value.UnmarshalJSON(b)
}
