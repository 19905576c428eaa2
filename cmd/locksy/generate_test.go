package main

import (
	"strings"
	"testing"
	"unicode"

	"github.com/forest6511/locksy/pkg/generator"
)

func TestValidateGenerateFlags(t *testing.T) {
	tests := []struct {
		name        string
		length      int
		count       int
		exclude     string
		expectError bool
	}{
		{
			name:        "valid defaults",
			length:      generator.DefaultLength,
			count:       defaultPasswordCount,
			exclude:     "",
			expectError: false,
		},
		{
			name:        "minimum length",
			length:      generator.MinLength,
			count:       1,
			exclude:     "",
			expectError: false,
		},
		{
			name:        "maximum length",
			length:      generator.MaxLength,
			count:       1,
			exclude:     "",
			expectError: false,
		},
		{
			name:        "length too short",
			length:      generator.MinLength - 1,
			count:       1,
			exclude:     "",
			expectError: true,
		},
		{
			name:        "length too long",
			length:      generator.MaxLength + 1,
			count:       1,
			exclude:     "",
			expectError: true,
		},
		{
			name:        "count zero",
			length:      24,
			count:       0,
			exclude:     "",
			expectError: true,
		},
		{
			name:        "count too high",
			length:      24,
			count:       maxPasswordCount + 1,
			exclude:     "",
			expectError: true,
		},
		{
			name:        "maximum count",
			length:      24,
			count:       maxPasswordCount,
			exclude:     "",
			expectError: false,
		},
		{
			name:        "exclude too long",
			length:      24,
			count:       1,
			exclude:     strings.Repeat("a", generator.MaxExcludeLength+1),
			expectError: true,
		},
		{
			name:        "valid exclude",
			length:      24,
			count:       1,
			exclude:     "0O1lI",
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Save and restore globals
			oldLength := generateLength
			oldCount := generateCount
			oldExclude := generateExclude
			defer func() {
				generateLength = oldLength
				generateCount = oldCount
				generateExclude = oldExclude
			}()

			generateLength = tt.length
			generateCount = tt.count
			generateExclude = tt.exclude

			err := validateGenerateFlags(generateOptions())
			if tt.expectError && err == nil {
				t.Errorf("expected error but got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestGenerateOptions(t *testing.T) {
	tests := []struct {
		name        string
		noLowercase bool
		noUppercase bool
		noNumbers   bool
		noSymbols   bool
		want        generator.Options
	}{
		{
			name: "all character types",
			want: generator.Options{Length: 24, Lower: true, Upper: true, Digits: true, Symbols: true},
		},
		{
			name:      "no symbols",
			noSymbols: true,
			want:      generator.Options{Length: 24, Lower: true, Upper: true, Digits: true},
		},
		{
			name:        "digits only",
			noLowercase: true,
			noUppercase: true,
			noSymbols:   true,
			want:        generator.Options{Length: 24, Digits: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags(generateCmd)
			generateNoLowercase = tt.noLowercase
			generateNoUppercase = tt.noUppercase
			generateNoNumbers = tt.noNumbers
			generateNoSymbols = tt.noSymbols

			if got := generateOptions(); got != tt.want {
				t.Errorf("generateOptions() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExecuteGenerate(t *testing.T) {
	setupCLI(t)

	out := mustRun(t, "generate", "-n", "5", "-l", "16", "--no-symbols")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d passwords, want 5", len(lines))
	}
	seen := make(map[string]bool)
	for _, p := range lines {
		if len(p) != 16 {
			t.Errorf("password %q has length %d, want 16", p, len(p))
		}
		for _, c := range p {
			if !unicode.IsLetter(c) && !unicode.IsDigit(c) {
				t.Errorf("password %q contains symbol %q", p, c)
			}
		}
		if seen[p] {
			t.Errorf("duplicate password generated: %s", p)
		}
		seen[p] = true
	}
}

func TestExecuteGenerate_Strength(t *testing.T) {
	setupCLI(t)

	out := mustRun(t, "generate", "--strength")
	password, rating, ok := strings.Cut(strings.TrimSpace(out), "\t")
	if !ok {
		t.Fatalf("expected a tab-separated rating, got %q", out)
	}
	if len(password) != generator.DefaultLength {
		t.Errorf("password length = %d, want %d", len(password), generator.DefaultLength)
	}
	if rating == "" {
		t.Error("expected a strength rating")
	}
}

func TestExecuteGenerate_EmptyCharset(t *testing.T) {
	setupCLI(t)

	_, err := runCLI(t, "", "generate", "--no-lowercase", "--no-uppercase", "--no-numbers", "--no-symbols")
	if err == nil {
		t.Error("expected error when every character class is disabled")
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		value, limit int
		filled       int
	}{
		{0, 25, 0},
		{25, 25, 20},
		{10, 25, 8},
		{30, 25, 20},
	}
	for _, tt := range tests {
		bar := progressBar(tt.value, tt.limit)
		if got := strings.Count(bar, "█"); got != tt.filled {
			t.Errorf("progressBar(%d, %d) filled %d, want %d", tt.value, tt.limit, got, tt.filled)
		}
		if got := strings.Count(bar, "█") + strings.Count(bar, "░"); got != 20 {
			t.Errorf("progressBar(%d, %d) width %d, want 20", tt.value, tt.limit, got)
		}
	}
}
