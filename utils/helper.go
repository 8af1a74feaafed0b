package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// NormalizeMoney renders a parsed amount as a fixed two-decimal string.
// Anything that does not parse as a finite number normalizes to "0.00".
func NormalizeMoney(raw string) string {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return "0.00"
	}
	return d.StringFixed(2)
}

// MoneyFromString parses a money field, falling back to zero on bad input.
func MoneyFromString(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// NormalizeDescription is the correlation key used to match uploaded assets
// back to just-created items: trimmed, lower-cased.
func NormalizeDescription(description string) string {
	return strings.ToLower(strings.TrimSpace(description))
}

func UniqueSlice[T comparable](input []T) []T {
	seen := make(map[T]bool, len(input))
	out := make([]T, 0, len(input))
	for _, v := range input {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
