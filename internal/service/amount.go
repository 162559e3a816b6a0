package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// maxAmountIntegerDigits keeps cents well inside int64.
const maxAmountIntegerDigits = 13

var amountPattern = regexp.MustCompile(`^(\d+)(?:[.,](\d{1,2}))?$`)

// ParseAmount converts a decimal string such as "42.5" or "42,50" to cents.
func ParseAmount(amount string) (int64, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return 0, fmt.Errorf("%w: amount is required", ErrMalformedInput)
	}

	match := amountPattern.FindStringSubmatch(amount)
	if match == nil {
		return 0, fmt.Errorf("%w: amount must be a non-negative number with at most 2 decimal places", ErrMalformedInput)
	}

	units := strings.TrimLeft(match[1], "0")
	if len(units) > maxAmountIntegerDigits {
		return 0, fmt.Errorf("%w: amount is too large", ErrMalformedInput)
	}
	if units == "" {
		units = "0"
	}

	fraction := match[2]
	for len(fraction) < 2 {
		fraction += "0"
	}

	cents, err := strconv.ParseInt(units+fraction, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: amount is not a number", ErrMalformedInput)
	}

	return cents, nil
}

// FormatAmount renders cents with exactly two decimal places.
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
