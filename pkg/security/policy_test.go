package security

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateMasterPassword(t *testing.T) {
	tests := []struct {
		name         string
		password     string
		email        string
		wantErr      error
		wantWarnings int
	}{
		{"empty", "", "", ErrPasswordEmpty, 0},
		{"too short", "abc1234", "", ErrPasswordTooShort, 0},
		{"too long", strings.Repeat("a1", 65), "", ErrPasswordTooLong, 0},
		{"max length", strings.Repeat("ab", 64), "", nil, 0},
		{"short but valid", "Tr0ub4dor&3", "", nil, 1},
		{"long passphrase", "correct horse battery staple", "", nil, 0},
		{"repeated character", "zzzzzzzz", "", nil, 2},
		{"contains email", "alice-rocks-forever", "alice@example.com", nil, 1},
		{"short local part ignored", "bob-is-a-builder-xyz", "bo@example.com", nil, 0},
		{"surrounding whitespace", " padded passphrase here ", "", nil, 1},
		// 8 characters, 16 bytes.
		{"multibyte at minimum", "пароль12", "", nil, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ValidateMasterPassword(tt.password, tt.email)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(result.Warnings) != tt.wantWarnings {
				t.Errorf("warnings = %v, want %d", result.Warnings, tt.wantWarnings)
			}
		})
	}
}

func TestValidateMasterPasswordStrength(t *testing.T) {
	result, err := ValidateMasterPassword("correct horse battery staple", "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Strength != PasswordStrong {
		t.Errorf("expected Strong, got %v", result.Strength)
	}
}
