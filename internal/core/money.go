// Package core holds the pure domain of the group ledger: expense records,
// split strategies, the balance engine and the display formatter. Nothing in
// this package performs I/O.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseDecimalToCents converts a decimal string to cents with half-up
// rounding on the third decimal place. Both dot and comma separators are
// accepted. Only positive amounts are valid.
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}

	intPart, fracPart, _ := strings.Cut(s, ".")
	if strings.Contains(fracPart, ".") {
		return 0, ErrInvalidAmount
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}

	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil || whole > (1<<63-1)/100 {
		return 0, ErrInvalidAmount
	}

	var frac int64
	if len(fracPart) > 0 {
		frac = int64(fracPart[0]-'0') * 10
	}
	if len(fracPart) > 1 {
		frac += int64(fracPart[1] - '0')
	}
	if len(fracPart) > 2 && fracPart[2] >= '5' {
		frac++
	}

	cents := whole*100 + frac
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// Float returns the major-unit value for display purposes only. Calculations
// stay on Cents.
func (m Money) Float() float64 {
	return float64(m.Cents) / 100.0
}

// currencySymbols maps the acronyms the product renders with a leading
// symbol; every other currency is prefixed with its acronym, matching the
// en-US formatting of the web client.
var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
}

// FormatAmount renders a monetary amount for display, e.g. "$10,000.00" or
// "ARS 1,234.56". An empty acronym (unknown currency id) yields the bare
// number, the graceful fallback for legacy data.
func FormatAmount(m Money, acronym string) string {
	neg := m.Cents < 0
	cents := m.Cents
	if neg {
		cents = -cents
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	if sym, ok := currencySymbols[acronym]; ok {
		b.WriteString(sym)
	} else if acronym != "" {
		b.WriteString(acronym)
		b.WriteByte(' ')
	}
	b.WriteString(groupThousands(strconv.FormatInt(cents/100, 10)))
	b.WriteByte('.')
	frac := cents % 100
	b.WriteByte(byte('0' + frac/10))
	b.WriteByte(byte('0' + frac%10))
	return b.String()
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
