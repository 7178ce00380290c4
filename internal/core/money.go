// Package core holds the lodge domain: members, sessions, attendance, dues,
// cash movements and polls, plus the pure aggregations computed over them.
//
// This file contains the money helpers: parsing user-entered amounts into
// cents and formatting cents for display in the configured locale.
package core

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. Zero and negative values are
// rejected.
//
//	ParseDecimalToCents("150")    -> 15000, nil
//	ParseDecimalToCents("150,5")  -> 15050, nil
//	ParseDecimalToCents("12.346") -> 1235, nil
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if !plainDecimal(s) {
		return 0, ErrInvalidAmount
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	d, err := decimal.NewFromString(strings.TrimSuffix(s, "."))
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents := d.Shift(2).Round(0)
	if !cents.IsPositive() || cents.GreaterThan(maxCents) {
		return 0, ErrInvalidAmount
	}
	return cents.IntPart(), nil
}

var maxCents = decimal.NewFromInt(math.MaxInt64)

// ParseMoney parses a user-entered amount into Money, reporting a
// ValidationError for the named field.
func ParseMoney(field, s string) (Money, error) {
	cents, err := ParseDecimalToCents(s)
	if err != nil {
		return Money{}, &ValidationError{Field: field, Reason: "must be a positive decimal amount"}
	}
	return Money{Cents: cents}, nil
}

// plainDecimal accepts ASCII digits with at most one dot: no sign, no
// exponent and no digits from other scripts.
func plainDecimal(s string) bool {
	digits, dots := 0, 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}

// Add returns m + o.
func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }

// Sub returns m - o.
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

// Abs returns the magnitude of m.
func (m Money) Abs() Money {
	if m.Cents < 0 {
		return Money{Cents: -m.Cents}
	}
	return m
}

// Units returns the value in whole currency units for display.
// Use Cents for arithmetic.
func (m Money) Units() float64 {
	return float64(m.Cents) / 100.0
}

// Decimal renders the amount as a plain "1234.56" string.
func (m Money) Decimal() string {
	sign := ""
	c := m.Cents
	if c < 0 {
		sign = "-"
		c = -c
	}
	return sign + strconv.FormatInt(c/100, 10) + "." + leftPad2(c%100)
}

func leftPad2(v int64) string {
	if v < 10 {
		return "0" + strconv.FormatInt(v, 10)
	}
	return strconv.FormatInt(v, 10)
}

// Formatter renders Money for a locale and currency.
type Formatter struct {
	printer *message.Printer
	unit    currency.Unit
}

// NewFormatter builds a Formatter. Unknown locales fall back to Brazilian
// Portuguese and unknown currencies to BRL.
func NewFormatter(locale, iso string) Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.BrazilianPortuguese
	}
	unit, err := currency.ParseISO(iso)
	if err != nil {
		unit = currency.BRL
	}
	return Formatter{printer: message.NewPrinter(tag), unit: unit}
}

// Format renders m with the currency symbol, e.g. "R$ 150.00".
func (f Formatter) Format(m Money) string {
	if f.printer == nil {
		f = NewFormatter("pt-BR", "BRL")
	}
	return f.printer.Sprint(currency.Symbol(f.unit.Amount(m.Units())))
}
