package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forest6511/locksy/internal/cli"
	"github.com/forest6511/locksy/pkg/audit"
)

var breachEntries []string

func init() {
	rootCmd.AddCommand(breachCmd)

	breachCmd.Flags().StringSliceVar(&breachEntries, "entries", nil, "Check stored entries matching these globs instead of a typed password")
}

// breachCmd looks passwords up in the breach corpus
var breachCmd = &cobra.Command{
	Use:   "breach",
	Short: "Check passwords against known breaches",
	Long: `Checks a password against the Pwned Passwords corpus. Only the first five
characters of the password's SHA-1 hash leave this machine.

Without flags the password is read from the terminal and no login is needed.
With --entries the matching stored entries are checked.

Examples:
  locksy breach
  locksy breach --entries 'work/*,bank'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(breachEntries) > 0 {
			return checkStoredEntries(cmd)
		}

		client, err := newClient(audit.SourceCLI)
		if err != nil {
			return err
		}
		defer client.Close()

		password, err := readPassword(cmd, "Password to check: ")
		if err != nil {
			return err
		}
		n, err := client.CheckPassword(cmd.Context(), password)
		if err != nil {
			return fmt.Errorf("breach check failed: %w", err)
		}
		printBreachResult(cmd, "Password", n)
		return nil
	},
}

func checkStoredEntries(cmd *cobra.Command) error {
	for _, p := range breachEntries {
		if err := cli.ValidatePattern(p); err != nil {
			return err
		}
	}

	client, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer closeSession(cmd, client)

	entries, err := client.ListPasswords(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list entries: %w", err)
	}
	names, err := cli.ExpandPatterns(breachEntries, entryNames(entries))
	if err != nil {
		return err
	}

	var errs []error
	for _, name := range cli.SortNames(names) {
		n, err := client.CheckEntryBreach(cmd.Context(), name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		printBreachResult(cmd, name, n)
	}
	if len(errs) > 0 {
		return fmt.Errorf("breach check failed: %w", errors.Join(errs...))
	}
	return nil
}

func printBreachResult(cmd *cobra.Command, label string, n int) {
	if n > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "✗ %s: found %d times in known breaches\n", label, n)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s: not found in known breaches\n", label)
}
