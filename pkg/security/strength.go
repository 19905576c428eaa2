// Package security grades stored passwords and the master password.
//
// Grading is length-first, following NIST SP 800-63B: composition rules are
// not scored, and reuse and known breaches weigh more than character mix.
package security

import (
	"strings"
	"unicode/utf8"
)

// PasswordStrength represents the strength level of a password.
type PasswordStrength int

const (
	// PasswordWeak indicates an insecure password (fewer than 8 characters).
	PasswordWeak PasswordStrength = iota
	// PasswordFair indicates a minimally acceptable password.
	PasswordFair
	// PasswordGood indicates a good password.
	PasswordGood
	// PasswordStrong indicates a strong password.
	PasswordStrong
)

// String returns a human-readable representation of the password strength.
func (s PasswordStrength) String() string {
	switch s {
	case PasswordWeak:
		return "Weak"
	case PasswordFair:
		return "Fair"
	case PasswordGood:
		return "Good"
	case PasswordStrong:
		return "Strong"
	default:
		return "Unknown"
	}
}

// Points returns the score points for this strength level.
// Used in the strength component: Weak=0, Fair=8, Good=17, Strong=25.
func (s PasswordStrength) Points() int {
	switch s {
	case PasswordWeak:
		return 0
	case PasswordFair:
		return 8
	case PasswordGood:
		return 17
	case PasswordStrong:
		return 25
	default:
		return 0
	}
}

// CalculateStrength grades a password by its length in characters (not
// bytes), with a one-level penalty for a single repeated character.
func CalculateStrength(value string) PasswordStrength {
	length := utf8.RuneCountInString(value)

	var s PasswordStrength
	switch {
	case length >= 20:
		s = PasswordStrong
	case length >= 14:
		s = PasswordGood
	case length >= 8:
		s = PasswordFair
	default:
		return PasswordWeak
	}

	if isSingleRune(value) {
		s--
	}
	return s
}

// isSingleRune reports whether value repeats one character.
func isSingleRune(value string) bool {
	r, _ := utf8.DecodeRuneInString(value)
	return strings.Trim(value, string(r)) == ""
}
