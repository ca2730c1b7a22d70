package portfolio

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Money represents a monetary value.
//
// Arithmetic is exact: nothing is rounded until the value is reported
// (String, MarshalJSON or Rounded).
type Money struct {
	value decimal.Decimal // as major unit value
	cur   string
}

func M[T float32 | float64 | int | int32 | int64 | uint | uint32 | uint64 | decimal.Decimal](value T, currency string) Money {
	return Money{value: newDecimal(value), cur: currency}
}

// ValidCurrency reports whether code is a known ISO 4217 currency.
func ValidCurrency(code string) bool {
	return money.GetCurrency(code) != nil
}

// currency returns the money's currency
func (m Money) currency() money.Currency {
	// to get a never nil currency I need to call the Money constructor
	return *money.New(0, m.cur).Currency()
}

// String returns the string representation of the money value.
func (m Money) String() string {
	cur := m.currency()
	dec := m.value.Round(int32(cur.Fraction)).Shift(int32(cur.Fraction))
	return cur.Formatter().Format(dec.IntPart())
}

func (m Money) Currency() string                { return m.cur }
func (m Money) Decimal() decimal.Decimal        { return m.value }
func (m Money) Equal(n Money) bool              { return m.value.Equal(n.value) && m.cur == n.cur }
func (m Money) IsZero() bool                    { return m.value.IsZero() }
func (m Money) IsPositive() bool                { return m.value.IsPositive() }
func (m Money) IsNegative() bool                { return m.value.IsNegative() }
func (m Money) LessThan(amount Money) bool      { return m.value.LessThan(amount.value) }
func (m Money) LessThanOrEqual(n Money) bool    { return m.value.LessThanOrEqual(n.value) }
func (m Money) GreaterThan(n Money) bool        { return m.value.GreaterThan(n.value) }
func (m Money) GreaterThanOrEqual(n Money) bool { return m.value.GreaterThanOrEqual(n.value) }
func (m Money) Neg() Money                      { return Money{value: m.value.Neg(), cur: m.cur} }
func (m Money) Abs() Money                      { return Money{value: m.value.Abs(), cur: m.cur} }
func (m Money) Mul(n Quantity) Money            { return Money{value: m.value.Mul(n.value), cur: m.cur} }
func (m Money) Div(n Quantity) Money            { return Money{value: m.value.Div(n.value), cur: m.cur} }
func (m Money) DivPrice(n Money) Quantity       { return Quantity{value: m.value.Div(n.value)} }

// Convert returns m expressed in currency to, using rate units of to per unit of m.
func (m Money) Convert(rate decimal.Decimal, to string) Money {
	return Money{value: m.value.Mul(rate), cur: to}
}

// binary operators.
func (m Money) Add(n Money) Money { return Money{value: m.value.Add(n.value), cur: cur(m, n)} }
func (m Money) Sub(n Money) Money { return Money{value: m.value.Sub(n.value), cur: cur(m, n)} }

// makes the "" currency totally weak.
func cur(A, B Money) string {
	if A.cur == "" {
		return B.cur
	}
	if B.cur == "" {
		return A.cur
	}
	if A.cur != B.cur {
		panic("currency mismatch " + A.cur + "!=" + B.cur)
	}
	return A.cur
}

// Rounded returns m rounded to its currency minor unit.
func (m Money) Rounded() Money {
	m.value = m.value.Round(int32(m.currency().Fraction))
	return m
}

// MinorUnit returns the smallest amount representable in m's currency (0.01 for USD).
func (m Money) MinorUnit() Money {
	return Money{value: decimal.New(1, -int32(m.currency().Fraction)), cur: m.cur}
}

// WithinMinorUnit reports whether m and n differ by at most one minor unit.
func (m Money) WithinMinorUnit(n Money) bool {
	return m.Sub(n).Abs().LessThanOrEqual(m.MinorUnit())
}

// SignedString returns the string representation of the money value with a sign.
// 0 is represented as a "-"
func (m Money) SignedString() string {
	if m.Rounded().IsZero() {
		return "-"
	}
	if m.value.IsPositive() {
		return "+" + m.String()
	}
	return m.String()
}

// MarshalJSON writes the amount as a decimal string rounded to the currency minor unit.
func (m Money) MarshalJSON() ([]byte, error) {
	places := int32(m.currency().Fraction)
	return json.Marshal(struct {
		Currency string `json:"currency,omitempty"`
		Amount   string `json:"amount"`
	}{m.cur, m.value.Round(places).StringFixed(places)})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var raw struct {
		Currency string          `json:"currency"`
		Amount   decimal.Decimal `json:"amount"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Currency != "" && !ValidCurrency(raw.Currency) {
		return fmt.Errorf("unknown currency %q", raw.Currency)
	}
	m.value, m.cur = raw.Amount, strings.ToUpper(raw.Currency)
	return nil
}
