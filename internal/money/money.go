// Package money keeps all price arithmetic on exact decimals. Prices are
// constrained to at most two decimal places so conversion to minor
// currency units is always exact.
package money

import (
	"fmt"

	"github.com/safar/go-storefront/internal/database"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParsePrice parses a price string and rejects negative values and values
// with more than two decimal places.
func ParsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %q: %w", s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("price %q is negative: %w", s, database.ErrFractionalCents)
	}
	if !d.Mul(hundred).IsInteger() {
		return decimal.Zero, fmt.Errorf("price %q has more than two decimal places: %w", s, database.ErrFractionalCents)
	}
	return d, nil
}

// Cents converts a decimal amount to integer minor units. A value that
// does not land on a whole cent is an error, never a truncation.
func Cents(d decimal.Decimal) (int64, error) {
	scaled := d.Mul(hundred)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("amount %s: %w", d, database.ErrFractionalCents)
	}
	return scaled.IntPart(), nil
}

// Subtotal is the single implementation of the subtotal invariant:
// subtotal = unit price * quantity.
func Subtotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// Sum adds up a list of amounts, starting from zero.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
