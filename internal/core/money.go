// Package core provides money parsing and handling utilities.
//
// This file contains the Money type used for transaction amounts and summary
// totals, plus parsing of decimal strings into cents.
package core

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxCents is the largest amount the store accepts (10 integer digits, 2 decimals).
const MaxCents int64 = 999_999_999_999

// maxAmountLength bounds the textual form of an amount before it is parsed.
const maxAmountLength = 32

var (
	ErrInvalidAmount   = &Error{Kind: ErrValidation, Message: "amount must be greater than zero"}
	ErrAmountTooLarge  = &Error{Kind: ErrValidation, Message: "amount exceeds the maximum of 9999999999.99"}
	ErrMalformedAmount = &Error{Kind: ErrValidation, Message: "amount must be a decimal number"}
)

// Money is a fixed-point amount with two decimals, held in cents.
type Money struct {
	Cents int64
}

// NewMoney returns the amount for the given number of cents.
func NewMoney(cents int64) Money {
	return Money{Cents: cents}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	if m.Cents > MaxCents {
		return ErrAmountTooLarge
	}
	return nil
}

// Decimal returns the amount as a decimal with two fractional digits.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String renders the amount with exactly two decimals, e.g. "12.50".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON writes the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a string such as "12,50".
// The sign is preserved so that Validate can reject non-positive amounts.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return ErrMalformedAmount
		}
	}
	d, err := parseDecimal(raw)
	if err != nil {
		return err
	}
	m.Cents = toCents(d)
	return nil
}

// ParseDecimalToCents converts a decimal string to cents with half-up rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Negative,
// zero and malformed values are rejected.
//
// Examples:
//
//	ParseDecimalToCents("12.34")  -> 1234, nil
//	ParseDecimalToCents("12,34")  -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1235, nil
//	ParseDecimalToCents("12.344") -> 1234, nil
func ParseDecimalToCents(s string) (int64, error) {
	d, err := parseDecimal(s)
	if err != nil {
		return 0, err
	}
	if !d.IsPositive() {
		return 0, ErrInvalidAmount
	}
	cents := toCents(d)
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return decimal.Zero, ErrMalformedAmount
	}
	// Plain fixed-point only. Exponents and very long literals make the
	// comparisons below allocate huge intermediate values.
	if len(s) > maxAmountLength || strings.ContainsAny(s, "eE") {
		return decimal.Zero, ErrMalformedAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrMalformedAmount
	}
	// Anything this large is rejected by Validate; clamp to keep IntPart in range.
	limit := decimal.New(MaxCents+1, -2)
	if d.GreaterThan(limit) {
		d = limit
	} else if d.LessThan(limit.Neg()) {
		d = limit.Neg()
	}
	return d, nil
}

func toCents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}
