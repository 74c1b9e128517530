// Package core provides the ledger's value types.
//
// This file contains the Money type and the parsing of user-entered amounts.
// Amounts are kept as decimals rounded to two fraction digits so that the
// stored value and the displayed value are always the same string.
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of fraction digits every amount carries.
const MoneyPlaces = 2

var ErrInvalidAmount = errors.New("invalid amount")

// Money is a monetary amount with exactly two fraction digits.
// The zero value is 0.00.
type Money struct {
	d decimal.Decimal
}

// NewMoney rounds d to two places (half away from zero).
func NewMoney(d decimal.Decimal) Money {
	return Money{d: d.Round(MoneyPlaces)}
}

// MoneyFromCents builds an amount from an integer number of cents.
func MoneyFromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -MoneyPlaces)}
}

const (
	// maxAmountLen bounds the raw input before it reaches the decimal parser.
	maxAmountLen = 64
	// maxIntegerDigits caps the integer part; ledger amounts never come close.
	maxIntegerDigits = 15
	// minExponent keeps rounding cheap for inputs like "1e-99999999".
	minExponent = -maxAmountLen
)

// ParseAmount converts user input to Money.
//
// It trims whitespace, accepts a dot (12.34) or a single comma followed by at
// most two digits (12,34) as the decimal separator, an optional sign and an
// exponent, and rounds half away from zero on the third fraction digit.
// A comma that could be a thousands separator is rejected, as are amounts
// with more than 15 integer digits.
//
// Examples:
//   ParseAmount("12.5")  -> 12.50
//   ParseAmount("7.555") -> 7.56
//   ParseAmount("7,55")  -> 7.55
//   ParseAmount("1,234") -> ErrInvalidAmount
//   ParseAmount("abc")   -> ErrInvalidAmount
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxAmountLen {
		return Money{}, ErrInvalidAmount
	}
	s, err := normalizeSeparator(s)
	if err != nil {
		return Money{}, err
	}
	s = strings.TrimPrefix(s, "+")

	// ".5" and "5." are valid numbers for a browser number input
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	} else if strings.HasPrefix(s, "-.") {
		s = "-0" + s[1:]
	}
	if strings.HasSuffix(s, ".") {
		s += "0"
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if err := checkMagnitude(d); err != nil {
		return Money{}, fmt.Errorf("%w: %q", err, s)
	}
	return NewMoney(d), nil
}

// normalizeSeparator turns a decimal comma into a dot. "1,234" and
// "1,234.56" are ambiguous and rejected.
func normalizeSeparator(s string) (string, error) {
	i := strings.IndexByte(s, ',')
	if i < 0 {
		return s, nil
	}
	frac := s[i+1:]
	if strings.ContainsAny(frac, ",.") || strings.Contains(s[:i], ".") || len(frac) > MoneyPlaces {
		return "", fmt.Errorf("%w: ambiguous separator in %q", ErrInvalidAmount, s)
	}
	return s[:i] + "." + frac, nil
}

// checkMagnitude bounds d before it is rescaled to two places. It only looks
// at the coefficient and exponent, never at the expanded value.
func checkMagnitude(d decimal.Decimal) error {
	exp := int(d.Exponent())
	if exp < minExponent {
		return ErrInvalidAmount
	}
	coef := d.Coefficient()
	digits := len(coef.Abs(coef).String())
	if digits+exp > maxIntegerDigits {
		return ErrInvalidAmount
	}
	return nil
}

// String returns the amount with exactly two fraction digits, e.g. "12.50".
func (m Money) String() string {
	return m.d.StringFixed(MoneyPlaces)
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return Money{d: m.d.Add(o.d)}
}

func (m Money) IsZero() bool {
	return m.d.IsZero()
}

func (m Money) Equal(o Money) bool {
	return m.d.Equal(o.d)
}

// MarshalJSON encodes the amount as a fixed-point string ("12.50").
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts both "12.50" and 12.5.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*m = Money{}
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}
	parsed, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// FormatCurrency prefixes the fixed-point amount with a currency symbol,
// e.g. "¥12.50". Negative amounts keep the sign in front: "-¥3.00".
func FormatCurrency(symbol string, m Money) string {
	if m.d.IsNegative() {
		return "-" + symbol + m.d.Neg().StringFixed(MoneyPlaces)
	}
	return symbol + m.String()
}
