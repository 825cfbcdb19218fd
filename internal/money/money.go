// Package money converts provider decimal amounts to the integer minor units
// stored in the database, using each currency's ISO 4217 fraction.
package money

import (
	"math"
	"strconv"
	"strings"

	gomoney "github.com/Rhymond/go-money"
)

// defaultFraction applies to unofficial or unknown currency codes.
const defaultFraction = 2

// Fraction returns the number of minor-unit digits for a currency code.
func Fraction(code string) int {
	if c := gomoney.GetCurrency(strings.ToUpper(code)); c != nil {
		return c.Fraction
	}
	return defaultFraction
}

// ToMinor converts a decimal amount to minor units, rounding half away from zero.
func ToMinor(amount float64, code string) int64 {
	return int64(math.Round(amount * math.Pow10(Fraction(code))))
}

// ToMinorPtr is ToMinor for optional provider balances.
func ToMinorPtr(amount *float64, code string) *int64 {
	if amount == nil {
		return nil
	}
	v := ToMinor(*amount, code)
	return &v
}

// FromMinor converts minor units back to a decimal amount.
func FromMinor(minor int64, code string) float64 {
	return float64(minor) / math.Pow10(Fraction(code))
}

// FromMinorPtr is FromMinor for optional balances.
func FromMinorPtr(minor *int64, code string) *float64 {
	if minor == nil {
		return nil
	}
	v := FromMinor(*minor, code)
	return &v
}

// Display formats minor units with the currency's symbol and separators,
// such as "$1,234.56". Unknown codes render as "1234.56 XYZ".
func Display(minor int64, code string) string {
	upper := strings.ToUpper(code)
	if gomoney.GetCurrency(upper) != nil {
		return gomoney.New(minor, upper).Display()
	}
	s := strconv.FormatFloat(FromMinor(minor, upper), 'f', defaultFraction, 64)
	if upper == "" {
		return s
	}
	return s + " " + upper
}
