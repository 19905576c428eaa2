package main

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/locksy/pkg/generator"
	"github.com/forest6511/locksy/pkg/security"
)

const (
	defaultPasswordCount = 1
	maxPasswordCount     = 100
)

// Generate command flags
var (
	generateLength      int
	generateCount       int
	generateNoSymbols   bool
	generateNoNumbers   bool
	generateNoUppercase bool
	generateNoLowercase bool
	generateExclude     string
	generateCopy        bool
	generateStrength    bool
)

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().IntVarP(&generateLength, "length", "l", generator.DefaultLength, "Password length (8-256)")
	generateCmd.Flags().IntVarP(&generateCount, "count", "n", defaultPasswordCount, "Number of passwords to generate (1-100)")
	generateCmd.Flags().BoolVar(&generateNoSymbols, "no-symbols", false, "Exclude symbols")
	generateCmd.Flags().BoolVar(&generateNoNumbers, "no-numbers", false, "Exclude numbers")
	generateCmd.Flags().BoolVar(&generateNoUppercase, "no-uppercase", false, "Exclude uppercase letters")
	generateCmd.Flags().BoolVar(&generateNoLowercase, "no-lowercase", false, "Exclude lowercase letters")
	generateCmd.Flags().StringVar(&generateExclude, "exclude", "", "Characters to exclude")
	generateCmd.Flags().BoolVarP(&generateCopy, "copy", "c", false, "Copy first password to clipboard (accessible to all processes)")
	generateCmd.Flags().BoolVarP(&generateStrength, "strength", "s", false, "Print the strength rating after each password")
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate secure random passwords",
	Long: `Generate cryptographically secure random passwords. Every enabled
character class appears at least once. No login is needed.

Examples:
  # Generate a 24-character password (default)
  locksy generate

  # Generate a 32-character password without symbols
  locksy generate -l 32 --no-symbols

  # Generate 5 passwords
  locksy generate -n 5

  # Generate and copy to clipboard
  locksy generate -c

  # Generate password excluding ambiguous characters
  locksy generate --exclude "0O1lI"`,
	Args: cobra.NoArgs,
	RunE: executeGenerate,
}

func executeGenerate(cmd *cobra.Command, args []string) error {
	opts := generateOptions()
	if err := validateGenerateFlags(opts); err != nil {
		return err
	}

	passwords, err := generator.GenerateN(opts, generateCount)
	if err != nil {
		return fmt.Errorf("failed to generate password: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, password := range passwords {
		if generateStrength {
			fmt.Fprintf(out, "%s\t%s\n", password, security.CalculateStrength(password))
			continue
		}
		fmt.Fprintln(out, password)
	}

	if generateCopy && len(passwords) > 0 {
		if err := copyToClipboard(passwords[0]); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to copy to clipboard: %v\n", err)
		} else {
			fmt.Fprintln(cmd.ErrOrStderr(), "Password copied to clipboard")
		}
	}
	return nil
}

// generateOptions maps the command flags onto generator options.
func generateOptions() generator.Options {
	return generator.Options{
		Length:  generateLength,
		Lower:   !generateNoLowercase,
		Upper:   !generateNoUppercase,
		Digits:  !generateNoNumbers,
		Symbols: !generateNoSymbols,
		Exclude: generateExclude,
	}
}

// validateGenerateFlags validates the generate command flags
func validateGenerateFlags(opts generator.Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if generateCount < 1 {
		return fmt.Errorf("count must be at least 1")
	}
	if generateCount > maxPasswordCount {
		return fmt.Errorf("count must be at most %d", maxPasswordCount)
	}
	return nil
}

// copyToClipboard copies text to the system clipboard
func copyToClipboard(text string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "linux":
		// Try wl-copy, then xclip, then xsel
		if _, err := exec.LookPath("wl-copy"); err == nil {
			cmd = exec.Command("wl-copy")
		} else if _, err := exec.LookPath("xclip"); err == nil {
			cmd = exec.Command("xclip", "-selection", "clipboard")
		} else if _, err := exec.LookPath("xsel"); err == nil {
			cmd = exec.Command("xsel", "--clipboard", "--input")
		} else {
			return fmt.Errorf("clipboard tool not found: install wl-clipboard, xclip or xsel")
		}
	case "windows":
		cmd = exec.Command("clip")
	default:
		return fmt.Errorf("clipboard not supported on %s", runtime.GOOS)
	}

	cmd.Stdin = strings.NewReader(text)
	return cmd.Run()
}
