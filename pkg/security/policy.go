package security

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Master password length limits, in characters.
const (
	MinMasterPasswordLength = 8
	MaxMasterPasswordLength = 128

	// RecommendedLength is where the length warning stops.
	RecommendedLength = 14
)

var (
	ErrPasswordTooShort = errors.New("security: master password must be at least 8 characters")
	ErrPasswordTooLong  = errors.New("security: master password must be at most 128 characters")
	ErrPasswordEmpty    = errors.New("security: master password is empty")
)

// PolicyResult describes an accepted master password. Warnings are advisory.
type PolicyResult struct {
	Strength PasswordStrength
	Warnings []string
}

// ValidateMasterPassword enforces the length policy and reports advisory
// warnings. email may be empty.
func ValidateMasterPassword(password, email string) (*PolicyResult, error) {
	if password == "" {
		return nil, ErrPasswordEmpty
	}

	n := utf8.RuneCountInString(password)
	if n < MinMasterPasswordLength {
		return nil, ErrPasswordTooShort
	}
	if n > MaxMasterPasswordLength {
		return nil, ErrPasswordTooLong
	}

	result := &PolicyResult{Strength: CalculateStrength(password)}

	if n < RecommendedLength {
		result.Warnings = append(result.Warnings,
			"Consider a longer passphrase (14+ characters recommended)")
	}
	if isSingleRune(password) {
		result.Warnings = append(result.Warnings,
			"Password repeats a single character")
	}
	if local, _, ok := strings.Cut(email, "@"); ok && len(local) >= 3 &&
		strings.Contains(strings.ToLower(password), strings.ToLower(local)) {
		result.Warnings = append(result.Warnings,
			"Password contains part of the account email")
	}
	if strings.TrimSpace(password) != password {
		result.Warnings = append(result.Warnings,
			"Password starts or ends with whitespace")
	}

	return result, nil
}
