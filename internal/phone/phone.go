// Package phone canonicalizes raw phone input into the dialable identifier
// used as the identity key for contacts and chat history.
package phone

import (
	"errors"
	"strings"
)

// ErrInvalidPhone marks input that cannot be turned into a dialable number.
var ErrInvalidPhone = errors.New("invalid phone number")

const (
	defaultTrunkPrefix   = "0"
	defaultCountryPrefix = "62"
	defaultMinDigits     = 10
)

// Normalizer converts arbitrary phone text into a canonical id.
//
// The zero value is not usable; construct with Default() or fill all fields.
// Normalization is pure and idempotent: Normalize(Normalize(x)) == Normalize(x)
// for every accepted input.
type Normalizer struct {
	// TrunkPrefix is the local dialing prefix rewritten to CountryPrefix
	// (e.g. "0" -> "62" for Indonesian numbers).
	TrunkPrefix   string
	CountryPrefix string
	// MinDigits is the minimum digit count after stripping; shorter input
	// fails with ErrInvalidPhone.
	MinDigits int
}

// Default returns the normalizer for Indonesian numbers (trunk "0" -> "62").
func Default() Normalizer {
	return Normalizer{
		TrunkPrefix:   defaultTrunkPrefix,
		CountryPrefix: defaultCountryPrefix,
		MinDigits:     defaultMinDigits,
	}
}

// Normalize strips every non-digit rune, rewrites a leading trunk prefix to
// the international country prefix, and validates minimum length.
func (n Normalizer) Normalize(raw string) (string, error) {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if len(digits) < n.MinDigits {
		return "", ErrInvalidPhone
	}
	if n.TrunkPrefix != "" && strings.HasPrefix(digits, n.TrunkPrefix) {
		digits = n.CountryPrefix + digits[len(n.TrunkPrefix):]
	}
	return digits, nil
}

// IsValid reports whether Normalize would accept raw.
func (n Normalizer) IsValid(raw string) bool {
	_, err := n.Normalize(raw)
	return err == nil
}
