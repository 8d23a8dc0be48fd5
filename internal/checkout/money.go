package checkout

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseCents converts a decimal price string to minor currency units.
// "4.99" becomes 499. Amounts use at most two decimal places; this is the
// single conversion path shared by display and billing so rounding cannot
// drift between them.
func ParseCents(price string) (int64, error) {
	trimmed := strings.TrimSpace(price)
	if trimmed == "" {
		return 0, fmt.Errorf("parse price: empty amount")
	}
	whole, frac, _ := strings.Cut(trimmed, ".")
	if whole == "" {
		whole = "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", price, err)
	}
	if units < 0 || strings.HasPrefix(whole, "-") {
		return 0, fmt.Errorf("parse price %q: negative amount", price)
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("parse price %q: more than two decimal places", price)
	}
	cents := int64(0)
	if frac != "" {
		padded := frac + strings.Repeat("0", 2-len(frac))
		cents, err = strconv.ParseInt(padded, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse price %q: %w", price, err)
		}
	}
	return units*100 + cents, nil
}

// FormatCents renders minor currency units as a two-decimal price string.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// MultiplyPrice multiplies a decimal price string by a quantity, preserving
// two-decimal precision. "10.10" times 3 yields "30.30".
func MultiplyPrice(price string, quantity int) (string, error) {
	if quantity <= 0 {
		return "", fmt.Errorf("multiply price: quantity must be positive, got %d", quantity)
	}
	cents, err := ParseCents(price)
	if err != nil {
		return "", err
	}
	return FormatCents(cents * int64(quantity)), nil
}
