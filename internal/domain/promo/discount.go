// Package promo resolves which promo applies to a product at a given instant.
package promo

import (
	"regexp"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrMalformedDiscount is returned when a discount string is not of the form
// "N%".
var ErrMalformedDiscount = errors.New("malformed discount")

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero

	// Plain unsigned decimal; no sign or exponent.
	discountNumber = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
)

// ParseDiscount parses a percentage string such as "10%" or "12.5%".
// Surrounding whitespace is ignored. Signs and exponents are rejected. The
// result is not clamped.
func ParseDiscount(s string) (decimal.Decimal, error) {
	v := strings.TrimSpace(s)
	num, ok := strings.CutSuffix(v, "%")
	if !ok {
		return zero, errors.Wrapf(ErrMalformedDiscount, "%q: missing %% suffix", s)
	}
	num = strings.TrimSpace(num)
	if num == "" {
		return zero, errors.Wrapf(ErrMalformedDiscount, "%q: empty value", s)
	}
	if !discountNumber.MatchString(num) {
		return zero, errors.Wrapf(ErrMalformedDiscount, "%q: not a plain number", s)
	}
	d, err := decimal.NewFromString(num)
	if err != nil {
		return zero, errors.Wrapf(ErrMalformedDiscount, "%q: %v", s, err)
	}
	return d, nil
}

// Clamp limits a percentage to [0, 100].
func Clamp(pct decimal.Decimal) decimal.Decimal {
	if pct.IsNegative() {
		return zero
	}
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}
