package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// KenyaCountryCode is the country calling code the storefront operates in.
const KenyaCountryCode = "254"

var nonDigits = regexp.MustCompile(`\D`)

// NormalizeMSISDN converts a locally or internationally formatted number into
// the international digits-only form: a leading 0 becomes the country code,
// a bare subscriber number starting with 7 or 1 gets the country code prefixed.
// The result must be exactly len(countryCode)+9 digits.
func NormalizeMSISDN(raw, countryCode string) (string, error) {
	digits := nonDigits.ReplaceAllString(raw, "")
	switch {
	case strings.HasPrefix(digits, "0"):
		digits = countryCode + digits[1:]
	case strings.HasPrefix(digits, "7"), strings.HasPrefix(digits, "1"):
		digits = countryCode + digits
	}
	if len(digits) != len(countryCode)+9 || !strings.HasPrefix(digits, countryCode) {
		return "", fmt.Errorf("phone number %q is not a valid %s number", RedactPhone(raw), countryCode)
	}
	return digits, nil
}

// LocalPhoneDigits returns the subscriber digits of raw without country code or trunk prefix.
func LocalPhoneDigits(raw, countryCode string) string {
	digits := nonDigits.ReplaceAllString(raw, "")
	if strings.HasPrefix(digits, countryCode) && len(digits) > len(countryCode)+6 {
		digits = digits[len(countryCode):]
	}
	return strings.TrimLeft(digits, "0")
}

// RedactPhone masks every character except the last four.
func RedactPhone(phone string) string {
	runes := []rune(phone)
	if len(runes) <= 4 {
		return phone
	}
	return strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-4:])
}
