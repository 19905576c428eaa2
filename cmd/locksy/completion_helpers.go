package main

import (
	"context"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/forest6511/locksy/internal/mcp"
	"github.com/forest6511/locksy/pkg/audit"
	"github.com/forest6511/locksy/pkg/importer"
)

const (
	completionEnv     = "LOCKSY_COMPLETION_ENABLED"
	completionTimeout = 5 * time.Second
)

// isDynamicCompletionEnabled checks if dynamic completion is opt-in enabled.
// Dynamic completion is disabled by default because it logs in on every
// key press.
func isDynamicCompletionEnabled() bool {
	return os.Getenv(completionEnv) == "1"
}

// completionCredentials returns the non-interactive credentials, if any.
// Completion never prompts.
func completionCredentials() (string, string, bool) {
	email := flagEmail
	if email == "" {
		email = os.Getenv(mcp.EmailEnv)
	}
	password := os.Getenv(mcp.PasswordEnv)
	return email, password, email != "" && password != ""
}

// completeEntryNames provides entry name completion (opt-in only).
// Returns an empty list if:
// - Dynamic completion is disabled (default)
// - No credentials are available without prompting
// - The entry name has already been given
func completeEntryNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if !isDynamicCompletionEnabled() || len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	email, password, ok := completionCredentials()
	if !ok {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	if cfg == nil {
		if err := loadConfig(cmd); err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	names, err := entryNamesForCompletion(ctx, email, password, toComplete)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

// entryNamesForCompletion logs in, returns the sorted unique entry names
// starting with prefix (case-insensitive), and logs out.
func entryNamesForCompletion(ctx context.Context, email, password, prefix string) ([]string, error) {
	client, err := newClient(audit.SourceCLI)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	if err := client.Login(ctx, email, password); err != nil {
		return nil, err
	}
	defer client.Logout(context.Background())

	entries, err := client.ListPasswords(ctx)
	if err != nil {
		return nil, err
	}

	var filtered []string
	lowerPrefix := strings.ToLower(prefix)
	for _, name := range entryNames(entries) {
		if strings.HasPrefix(strings.ToLower(name), lowerPrefix) {
			filtered = append(filtered, name)
		}
	}
	slices.Sort(filtered)
	return slices.Compact(filtered), nil
}

// registerCompletionFunctions registers ValidArgsFunction for commands that support
// dynamic completion.
func registerCompletionFunctions() {
	getCmd.ValidArgsFunction = completeEntryNames
	editCmd.ValidArgsFunction = completeEntryNames
	deleteCmd.ValidArgsFunction = completeEntryNames

	_ = breachCmd.RegisterFlagCompletionFunc("entries", completeEntryNames)
	_ = importCmd.RegisterFlagCompletionFunc("from", cobra.FixedCompletions(importer.ValidSources(), cobra.ShellCompDirectiveNoFileComp))
	_ = importCmd.RegisterFlagCompletionFunc("conflict", cobra.FixedCompletions(
		[]string{conflictSkip, conflictOverwrite, conflictError}, cobra.ShellCompDirectiveNoFileComp))
}
