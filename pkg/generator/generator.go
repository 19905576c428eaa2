// Package generator produces random passwords from configurable character
// classes.
package generator

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Character set constants
const (
	CharsetLowercase = "abcdefghijklmnopqrstuvwxyz"
	CharsetUppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	CharsetDigits    = "0123456789"
	CharsetSymbols   = "!@#$%^&*()_+-=[]{}|;:,.<>?"

	MinLength        = 8
	MaxLength        = 256
	DefaultLength    = 24
	MaxExcludeLength = 256
)

var (
	ErrInvalidLength  = fmt.Errorf("generator: length must be between %d and %d", MinLength, MaxLength)
	ErrEmptyCharset   = errors.New("generator: character set is empty: enable at least one character class")
	ErrExcludeTooLong = fmt.Errorf("generator: exclude string must be at most %d characters", MaxExcludeLength)
)

// Options selects the character classes and length.
type Options struct {
	Length  int
	Lower   bool
	Upper   bool
	Digits  bool
	Symbols bool
	Exclude string // characters removed from every class
}

// DefaultOptions enables every class at DefaultLength.
func DefaultOptions() Options {
	return Options{
		Length:  DefaultLength,
		Lower:   true,
		Upper:   true,
		Digits:  true,
		Symbols: true,
	}
}

// Validate checks the length and exclude bounds.
func (o Options) Validate() error {
	if o.Length < MinLength || o.Length > MaxLength {
		return ErrInvalidLength
	}
	if len(o.Exclude) > MaxExcludeLength {
		return ErrExcludeTooLong
	}
	return nil
}

// classes returns the enabled classes with excluded characters removed.
// A class emptied by Exclude is dropped.
func (o Options) classes() []string {
	var out []string
	add := func(enabled bool, set string) {
		if !enabled {
			return
		}
		if set = removeChars(set, o.Exclude); set != "" {
			out = append(out, set)
		}
	}
	add(o.Lower, CharsetLowercase)
	add(o.Upper, CharsetUppercase)
	add(o.Digits, CharsetDigits)
	add(o.Symbols, CharsetSymbols)
	return out
}

// Generate returns a password containing at least one character from every
// enabled class, positioned uniformly at random.
func Generate(opts Options) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}

	classes := opts.classes()
	if len(classes) == 0 {
		return "", ErrEmptyCharset
	}
	pool := strings.Join(classes, "")

	password := make([]byte, 0, opts.Length)
	for _, class := range classes {
		c, err := randomChar(class)
		if err != nil {
			return "", err
		}
		password = append(password, c)
	}
	for len(password) < opts.Length {
		c, err := randomChar(pool)
		if err != nil {
			return "", err
		}
		password = append(password, c)
	}

	if err := shuffle(password); err != nil {
		return "", err
	}
	return string(password), nil
}

// GenerateN returns n passwords.
func GenerateN(opts Options, n int) ([]string, error) {
	if n < 1 {
		return nil, errors.New("generator: count must be at least 1")
	}
	out := make([]string, n)
	for i := range out {
		p, err := Generate(opts)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func randomInt(n int) (int, error) {
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("generator: failed to generate random number: %w", err)
	}
	return int(idx.Int64()), nil
}

func randomChar(charset string) (byte, error) {
	i, err := randomInt(len(charset))
	if err != nil {
		return 0, err
	}
	return charset[i], nil
}

// shuffle is a Fisher-Yates shuffle over crypto/rand.
func shuffle(b []byte) error {
	for i := len(b) - 1; i > 0; i-- {
		j, err := randomInt(i + 1)
		if err != nil {
			return err
		}
		b[i], b[j] = b[j], b[i]
	}
	return nil
}

// removeChars removes specified characters from a string
func removeChars(s, chars string) string {
	if chars == "" {
		return s
	}
	excludeSet := make(map[rune]bool)
	for _, c := range chars {
		excludeSet[c] = true
	}

	var result strings.Builder
	for _, c := range s {
		if !excludeSet[c] {
			result.WriteRune(c)
		}
	}
	return result.String()
}
