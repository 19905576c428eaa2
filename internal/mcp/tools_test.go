package mcp

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestMaskValue(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected string
	}{
		{name: "empty value", value: "", expected: ""},
		// Length 1-4: all asterisks
		{name: "1 character", value: "a", expected: "*"},
		{name: "4 characters", value: "abcd", expected: "****"},
		// Length 5-8: show last 2
		{name: "5 characters", value: "abcde", expected: "***de"},
		{name: "8 characters", value: "abcdefgh", expected: "******gh"},
		// Length 9+: show last 4
		{name: "9 characters", value: "abcdefghi", expected: "*****fghi"},
		{name: "long value", value: "sk-proj-1234567890abcdef", expected: "********************cdef"},
		// Multi-byte characters are counted once.
		{name: "multibyte", value: "pässwörd-ü", expected: "******rd-ü"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := maskValue(tt.value)
			if result != tt.expected {
				t.Errorf("maskValue(%q) = %q, want %q", tt.value, result, tt.expected)
			}
			if !utf8.ValidString(result) {
				t.Errorf("maskValue(%q) produced invalid UTF-8", tt.value)
			}
		})
	}
}

func TestHandlePasswordGenerate(t *testing.T) {
	s := &Server{policy: DefaultPolicy()}
	ctx := context.Background()

	_, out, err := s.handlePasswordGenerate(ctx, nil, PasswordGenerateInput{})
	if err != nil {
		t.Fatalf("handlePasswordGenerate failed: %v", err)
	}
	if out.Length != 24 || utf8.RuneCountInString(out.Password) != 24 {
		t.Errorf("default length = %d, want 24", out.Length)
	}
	if out.Strength == "" {
		t.Error("strength is empty")
	}

	_, out, err = s.handlePasswordGenerate(ctx, nil, PasswordGenerateInput{Length: 32, NoSymbols: true, Exclude: "0O1lI"})
	if err != nil {
		t.Fatalf("handlePasswordGenerate failed: %v", err)
	}
	if out.Length != 32 {
		t.Errorf("Length = %d, want 32", out.Length)
	}
	if strings.ContainsAny(out.Password, "!@#$%^&*0O1lI") {
		t.Errorf("password %q contains excluded characters", out.Password)
	}

	if _, _, err := s.handlePasswordGenerate(ctx, nil, PasswordGenerateInput{Length: 4}); err == nil {
		t.Error("expected error for a too-short length")
	}
}
