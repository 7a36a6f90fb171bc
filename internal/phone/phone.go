// Package phone converts raw Brazilian phone text into the 10-digit key
// the messaging transport expects.
package phone

import "strings"

const (
	countryCode  = "55"
	mobilePrefix = '9'
	keyLength    = 10

	addressSuffix = "@s.whatsapp.net"
)

// Normalize strips formatting, the country code and the extra mobile digit.
// It always returns its best effort so imports can store the value anyway;
// ok is false when the result is not a 10-digit key.
func Normalize(raw string) (key string, ok bool) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if strings.HasPrefix(digits, countryCode) && len(digits) > keyLength {
		digits = digits[len(countryCode):]
	}

	if len(digits) == 11 && digits[2] == mobilePrefix {
		digits = digits[:2] + digits[3:]
	}

	return digits, len(digits) == keyLength
}

// IsValid reports whether key is a canonical 10-digit key
func IsValid(key string) bool {
	if len(key) != keyLength {
		return false
	}
	for i := 0; i < len(key); i++ {
		if key[i] < '0' || key[i] > '9' {
			return false
		}
	}
	return true
}

// Address formats a canonical key as a transport address
func Address(key string) string {
	return countryCode + key + addressSuffix
}
