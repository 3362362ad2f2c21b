// Package core holds the settlement engine: account records, fees, limit
// checks, transfer settlement and the savings-circle state machine.
//
// This file contains amount parsing and rounding helpers. All amounts are
// decimal.Decimal; binary floating point is never used for money.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// AmountPlaces is the number of fraction digits of the smallest printable
// currency unit.
const AmountPlaces = 2

// ParseAmount converts a decimal string to an amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and keeps
// full precision; rounding happens only where a computation requires it.
// Returns ErrInvalidAmount for invalid formats, negative values, or zero.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("0.005")  -> 0.005, nil
//	ParseAmount("-1")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := parsePlain(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseSignedAmount parses a possibly negative or zero amount, as stored
// balances are. The format is that of ParseAmount plus an optional leading
// '-'.
func ParseSignedAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	neg := strings.HasPrefix(s, "-")
	d, err := parsePlain(strings.TrimPrefix(s, "-"))
	if err != nil {
		return decimal.Zero, err
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

// parsePlain accepts ASCII digits with at most one '.' or ',' separator.
// Signs and exponents are rejected.
func parsePlain(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(s, ",", ".")
	intPart, frac, _ := strings.Cut(s, ".")
	if intPart == "" && frac == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if !digitsOnly(intPart) || !digitsOnly(frac) {
		return decimal.Zero, ErrInvalidAmount
	}
	if intPart == "" {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// RoundHalfUp rounds a non-negative amount to AmountPlaces using
// round-half-up. For negative values it rounds half away from zero.
func RoundHalfUp(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountPlaces)
}

// FormatAmount renders an amount with exactly AmountPlaces fraction digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountPlaces)
}
