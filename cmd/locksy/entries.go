package main

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/locksy/internal/cli"
	"github.com/forest6511/locksy/pkg/generator"
	"github.com/forest6511/locksy/pkg/locksy"
	"github.com/forest6511/locksy/pkg/security"
)

// Entry command flags
var (
	listPattern string

	getShow bool

	addUsername string
	addGenerate bool
	addLength   int

	editName     string
	editUsername string
	editPassword bool
	editGenerate bool
	editLength   int

	deleteForce bool
)

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(deleteCmd)

	listCmd.Flags().StringVarP(&listPattern, "pattern", "p", "", "Only list names matching a glob (e.g., 'work/*')")

	getCmd.Flags().BoolVar(&getShow, "show", false, "Print the password instead of hiding it")

	addCmd.Flags().StringVarP(&addUsername, "username", "u", "", "Username stored with the password")
	addCmd.Flags().BoolVarP(&addGenerate, "generate", "g", false, "Generate a random password instead of prompting")
	addCmd.Flags().IntVarP(&addLength, "length", "l", generator.DefaultLength, "Length of a generated password")

	editCmd.Flags().StringVar(&editName, "name", "", "Rename the entry")
	editCmd.Flags().StringVarP(&editUsername, "username", "u", "", "Change the username")
	editCmd.Flags().BoolVar(&editPassword, "password", false, "Prompt for a new password")
	editCmd.Flags().BoolVarP(&editGenerate, "generate", "g", false, "Replace the password with a generated one")
	editCmd.Flags().IntVarP(&editLength, "length", "l", generator.DefaultLength, "Length of a generated password")

	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation prompt")
}

// listCmd lists stored entries
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists stored entries",
	Long: `Lists the names and usernames of stored entries. Passwords are never
printed. Entries that cannot be decrypted are listed and marked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listPattern != "" {
			if err := cli.ValidatePattern(listPattern); err != nil {
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

		entries = filterEntries(entries, listPattern)
		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(out, "No entries found")
			return nil
		}
		if entries[0].Offline {
			fmt.Fprintln(cmd.ErrOrStderr(), "Server unreachable: showing the offline copy")
		}

		for _, e := range entries {
			line := e.Name
			if e.Username != "" {
				line += fmt.Sprintf(" (%s)", e.Username)
			}
			if e.DecryptErr != nil {
				line += " [unreadable]"
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

// filterEntries keeps the entries whose name matches pattern, sorted by name.
func filterEntries(entries []locksy.Entry, pattern string) []locksy.Entry {
	var out []locksy.Entry
	for _, e := range entries {
		if pattern != "" {
			if ok, _ := cli.Match(pattern, e.Name); !ok {
				continue
			}
		}
		out = append(out, e)
	}
	slices.SortStableFunc(out, func(a, b locksy.Entry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

func entryNames(entries []locksy.Entry) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names
}

// getCmd shows one entry
var getCmd = &cobra.Command{
	Use:   "get [name]",
	Short: "Shows an entry",
	Long:  `Shows an entry's username and password. The password is hidden unless --show is given.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer closeSession(cmd, client)

		entry, err := client.GetPassword(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get entry: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Name:     %s\n", entry.Name)
		if entry.Username != "" {
			fmt.Fprintf(out, "Username: %s\n", entry.Username)
		}
		if getShow {
			fmt.Fprintf(out, "Password: %s\n", entry.Password)
		} else {
			fmt.Fprintln(out, "Password: ******** (use --show to reveal)")
		}
		if entry.Offline {
			fmt.Fprintln(cmd.ErrOrStderr(), "Server unreachable: showing the offline copy")
		}
		return nil
	},
}

// addCmd stores a new entry
var addCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Stores a new entry",
	Long: `Stores a new entry. The password is read from the terminal, or generated
with --generate. Names may use '/' to group entries (e.g., work/github).

Examples:
  locksy add github -u octocat
  locksy add work/vpn --generate -l 32`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if strings.TrimSpace(name) == "" {
			return locksy.ErrEmptyName
		}

		password, generated, err := newEntryPassword(cmd, addGenerate, addLength)
		if err != nil {
			return err
		}

		client, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer closeSession(cmd, client)

		warnBreached(cmd, client, password, generated)

		if _, err := client.CreatePassword(cmd.Context(), name, addUsername, password); err != nil {
			return fmt.Errorf("failed to store entry: %w", err)
		}

		out := cmd.OutOrStdout()
		if generated {
			fmt.Fprintf(out, "Generated a %d-character password\n", len(password))
		} else {
			fmt.Fprintf(out, "Password strength: %s\n", security.CalculateStrength(password))
		}
		fmt.Fprintf(out, "Entry '%s' stored successfully\n", name)
		return nil
	},
}

// newEntryPassword generates a password or prompts for one twice.
func newEntryPassword(cmd *cobra.Command, generate bool, length int) (string, bool, error) {
	if generate {
		opts := generator.DefaultOptions()
		opts.Length = length
		pw, err := generator.Generate(opts)
		if err != nil {
			return "", false, err
		}
		return pw, true, nil
	}
	pw, err := readNewPassword(cmd, "password")
	if err != nil {
		return "", false, err
	}
	if pw == "" {
		return "", false, errors.New("password must not be empty")
	}
	return pw, false, nil
}

// warnBreached prints a warning for a typed password found in the breach
// corpus. Lookup failures only log.
func warnBreached(cmd *cobra.Command, client *locksy.Client, password string, generated bool) {
	if generated {
		return
	}
	n, err := client.CheckPassword(cmd.Context(), password)
	if err != nil {
		logger.Warn("breach check unavailable", slog.Any("error", err))
		return
	}
	if n > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: this password appears %d times in known breaches\n", n)
	}
}

// editCmd changes an entry
var editCmd = &cobra.Command{
	Use:   "edit [name]",
	Short: "Changes an entry",
	Long: `Changes an entry's name, username or password.

Examples:
  locksy edit github --username octocat
  locksy edit github --name work/github
  locksy edit github --generate`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch locksy.Patch
		if cmd.Flags().Changed("name") {
			patch.Name = &editName
		}
		if cmd.Flags().Changed("username") {
			patch.Username = &editUsername
		}
		if editPassword && editGenerate {
			return errors.New("--password and --generate cannot be combined")
		}

		var generated bool
		if editPassword || editGenerate {
			pw, gen, err := newEntryPassword(cmd, editGenerate, editLength)
			if err != nil {
				return err
			}
			patch.Password = &pw
			generated = gen
		}
		if patch.Name == nil && patch.Username == nil && patch.Password == nil {
			return errors.New("nothing to change: use --name, --username, --password or --generate")
		}

		client, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer closeSession(cmd, client)

		entry, err := client.GetPassword(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get entry: %w", err)
		}
		if patch.Password != nil {
			warnBreached(cmd, client, *patch.Password, generated)
		}

		if err := client.UpdatePassword(cmd.Context(), entry.ID, patch); err != nil {
			return fmt.Errorf("failed to update entry: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Entry '%s' updated successfully\n", args[0])
		return nil
	},
}

// deleteCmd deletes entries
var deleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Deletes entries",
	Long: `Deletes the entries with the given name, or every entry matching a glob.

Examples:
  locksy delete github
  locksy delete 'old/*' --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern := args[0]
		if err := cli.ValidatePattern(pattern); err != nil {
			return err
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
		if len(entries) > 0 && entries[0].Offline {
			return errors.New("server unreachable: cannot delete from the offline copy")
		}

		names, err := cli.ExpandPattern(pattern, entryNames(entries))
		if err != nil {
			return err
		}
		var targets []locksy.Entry
		for _, e := range entries {
			if slices.Contains(names, e.Name) {
				targets = append(targets, e)
			}
		}

		if !deleteForce {
			fmt.Fprintf(cmd.ErrOrStderr(), "This will delete %d entries:\n", len(targets))
			for _, e := range targets {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", e.Name)
			}
			if !confirm(cmd, "Are you sure?") {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
				return nil
			}
		}

		var errs []error
		for _, e := range targets {
			if err := client.DeletePassword(cmd.Context(), e.ID); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", e.Name, err))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Entry '%s' deleted successfully\n", e.Name)
		}
		if len(errs) > 0 {
			return fmt.Errorf("failed to delete entries: %w", errors.Join(errs...))
		}
		return nil
	},
}
