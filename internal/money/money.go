// Package money provides fixed-precision decimal helpers for currency and
// quantity arithmetic. Currency amounts round to 2 places half-up at the
// point of persistence; quantities keep whatever precision the caller
// supplied.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CurrencyScale is the number of decimal places kept for currency fields.
const CurrencyScale = 2

// Zero is the additive identity.
var Zero = decimal.Zero

// Round2 rounds a currency amount to 2 decimal places, half-up.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyScale)
}

// Tax computes round2(subtotal * rate / 100).
func Tax(subtotal, rate decimal.Decimal) decimal.Decimal {
	return Round2(subtotal.Mul(rate).Div(decimal.NewFromInt(100)))
}

// LineTotal computes quantity * unit price without rounding; the sum is
// rounded once, when the bill is persisted.
func LineTotal(qty, price decimal.Decimal) decimal.Decimal {
	return qty.Mul(price)
}

// Parse converts a decimal string into a Decimal, rejecting garbage input.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return d, nil
}

// MustParse is Parse for trusted literals, mainly in tests and seeds.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}
