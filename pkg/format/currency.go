// Package format renders amounts and term words for display.
package format

import (
	"strconv"
	"strings"

	"github.com/iwvelando/tamerun-invest/pkg/constants"
	"github.com/iwvelando/tamerun-invest/pkg/mathutil"
	"github.com/shopspring/decimal"
)

// Money returns an amount fixed to two decimals with a space between every
// group of three integer digits, followed by the ruble sign (e.g. "1 234 567.50 ₽").
func Money(amount float64) string {
	if !mathutil.IsFinite(amount) {
		return ""
	}
	return Grouped(amount, " ") + " " + constants.CurrencySymbol
}

// MoneyPtr is Money for values that may be absent. A nil amount renders as
// an empty string.
func MoneyPtr(amount *float64) string {
	if amount == nil {
		return ""
	}
	return Money(*amount)
}

// Grouped returns an amount fixed to two decimals with separator inserted
// between groups of three integer digits (e.g. "-1,234.56" for ",").
func Grouped(amount float64, separator string) string {
	fixed := decimal.NewFromFloat(amount).StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}
	return sign + groupDigits(fixed, separator)
}

func groupDigits(fixed, separator string) string {
	parts := strings.SplitN(fixed, ".", 2)
	decPart := "00"
	if len(parts) == 2 {
		decPart = parts[1]
	}
	return groupInteger(parts[0], separator) + "." + decPart
}

func groupInteger(intPart, separator string) string {
	if len(intPart) <= 3 {
		return intPart
	}
	var builder strings.Builder
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			builder.WriteString(separator)
		}
		builder.WriteRune(digit)
	}
	return builder.String()
}

// Thousands formats a whole number with separator between groups of three
// digits (e.g. "9,000,000" for ",").
func Thousands(n int64, separator string) string {
	digits := strconv.FormatInt(n, 10)
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign = "-"
		digits = digits[1:]
	}
	return sign + groupInteger(digits, separator)
}
