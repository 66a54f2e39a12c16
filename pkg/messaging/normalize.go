package messaging

import (
	"fmt"
	"strings"
)

// NormalizePhone converts a raw phone number to international format.
// Non-digits are stripped; a number already carrying the default country
// code and at least 12 digits is kept; a 10-11 digit local number gets the
// country code prepended; anything else passes through. The result always
// carries a leading +.
func NormalizePhone(raw, defaultCountryCode string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)

	if digits == "" {
		return "", fmt.Errorf("phone number has no digits: %q", raw)
	}

	switch {
	case strings.HasPrefix(digits, defaultCountryCode) && len(digits) >= 12:
		return "+" + digits, nil
	case len(digits) >= 10 && len(digits) <= 11:
		return "+" + defaultCountryCode + digits, nil
	default:
		return "+" + digits, nil
	}
}
