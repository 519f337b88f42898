package uabean

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Amount represents a signed quantity of a currency (or of a traded symbol,
// for brokerage asset postings where the "currency" is the ticker).
type Amount struct {
	value decimal.Decimal
	cur   string
}

// A creates an Amount from any common numeric type.
func A[T float32 | float64 | int | int32 | int64 | decimal.Decimal](value T, currency string) Amount {
	return Amount{value: newDecimal(value), cur: currency}
}

// newDecimal is a convenient factory for decimal.Decimal.
func newDecimal[T float32 | float64 | int | int32 | int64 | decimal.Decimal](value T) decimal.Decimal {
	switch v := any(value).(type) {
	case decimal.Decimal:
		return v
	case float32:
		return decimal.NewFromFloat32(v)
	case float64:
		return decimal.NewFromFloat(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case int32:
		return decimal.NewFromInt32(v)
	case int64:
		return decimal.NewFromInt(v)
	default:
		panic("unsupported type")
	}
}

// ParseAmount parses a decimal number as found in statement files. Both "."
// and "," are accepted as the decimal separator since providers disagree.
func ParseAmount(s, currency string) (Amount, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	s = strings.ReplaceAll(s, " ", "")
	v, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Amount{value: v, cur: currency}, nil
}

func (a Amount) Currency() string         { return a.cur }
func (a Amount) Decimal() decimal.Decimal { return a.value }
func (a Amount) Equal(b Amount) bool      { return a.value.Equal(b.value) && a.cur == b.cur }
func (a Amount) IsZero() bool             { return a.value.IsZero() }
func (a Amount) IsPositive() bool         { return a.value.IsPositive() }
func (a Amount) IsNegative() bool         { return a.value.IsNegative() }
func (a Amount) Neg() Amount              { return Amount{value: a.value.Neg(), cur: a.cur} }
func (a Amount) Abs() Amount              { return Amount{value: a.value.Abs(), cur: a.cur} }

// binary operators.
func (a Amount) Add(b Amount) Amount { return Amount{value: a.value.Add(b.value), cur: cur(a, b)} }
func (a Amount) Sub(b Amount) Amount { return Amount{value: a.value.Sub(b.value), cur: cur(a, b)} }

// makes the "" currency totally weak.
func cur(a, b Amount) string {
	if a.cur == "" {
		return b.cur
	}
	if b.cur == "" {
		return a.cur
	}
	if a.cur != b.cur {
		panic("currency mismatch " + a.cur + " != " + b.cur)
	}
	return a.cur
}

// String renders the amount with the currency's conventional number of
// fraction digits when the currency is a known ISO code, and with all
// recorded digits otherwise (crypto assets, stock tickers).
func (a Amount) String() string {
	if c := money.GetCurrency(a.cur); c != nil {
		return a.value.StringFixed(int32(c.Fraction)) + " " + a.cur
	}
	return a.value.String() + " " + a.cur
}
