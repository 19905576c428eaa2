package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/locksy/internal/cli"
	"github.com/forest6511/locksy/pkg/importer"
	"github.com/forest6511/locksy/pkg/locksy"
)

// Import conflict handling modes
const (
	conflictSkip      = "skip"
	conflictOverwrite = "overwrite"
	conflictError     = "error"
)

// maxImportSize caps the export file read into memory.
const maxImportSize = 32 << 20

var (
	importFrom     string
	importConflict string
	importDryRun   bool
	importNames    []string
)

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importFrom, "from", "", "Export format: "+strings.Join(importer.ValidSources(), ", "))
	importCmd.Flags().StringVar(&importConflict, "conflict", conflictSkip, "When an entry name exists: skip, overwrite, error")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Show what would be imported without logging in")
	importCmd.Flags().StringSliceVarP(&importNames, "name", "k", nil, "Only import these names (glob pattern supported)")
	_ = importCmd.MarkFlagRequired("from")
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import logins from another password manager",
	Long: `Import logins from a 1Password CSV, Bitwarden JSON or LastPass CSV export.

Each login becomes an entry with its name, username and password. Notes,
cards and identities are skipped. Every password is encrypted on this
machine before it is uploaded. Delete the export file afterwards: it holds
your passwords in plain text.

Examples:
  locksy import export.json --from bitwarden
  locksy import 1password.csv --from 1password --dry-run
  locksy import lastpass.csv --from lastpass -k "work/*" --conflict overwrite`,
	Args: cobra.ExactArgs(1),
	RunE: executeImport,
}

func executeImport(cmd *cobra.Command, args []string) error {
	if err := validateImportFlags(); err != nil {
		return err
	}
	parser, err := importer.GetParser(importer.Source(strings.ToLower(importFrom)))
	if err != nil {
		return fmt.Errorf("invalid --from value '%s': must be one of %v", importFrom, importer.ValidSources())
	}

	data, err := readImportFile(args[0])
	if err != nil {
		return err
	}
	result, err := parser.Parse(data)
	if err != nil {
		return fmt.Errorf("failed to parse %s file: %w", importFrom, err)
	}

	errOut := cmd.ErrOrStderr()
	for _, w := range result.Warnings {
		fmt.Fprintf(errOut, "Warning: %s\n", w)
	}
	for _, s := range result.Skipped {
		fmt.Fprintf(errOut, "Skipped: %s (%s)\n", s.OriginalName, s.Reason)
	}

	items, err := filterImportItems(result.Items, importNames)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, "No logins found in file")
		return nil
	}

	if importDryRun {
		fmt.Fprintf(out, "Would import %d entries:\n", len(items))
		for _, it := range items {
			fmt.Fprintf(out, "  %s\n", describeImportItem(it))
		}
		return nil
	}

	client, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer closeSession(cmd, client)

	return processImport(cmd, client, items)
}

func validateImportFlags() error {
	importConflict = strings.ToLower(importConflict)
	switch importConflict {
	case conflictSkip, conflictOverwrite, conflictError:
		return nil
	}
	return fmt.Errorf("invalid conflict mode '%s': must be 'skip', 'overwrite', or 'error'", importConflict)
}

// readImportFile reads an export file. Symlinks and oversized files are
// refused.
func readImportFile(path string) ([]byte, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	info, err := os.Lstat(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to access file: %w", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("security: refusing to read symlink: %s", absPath)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	if info.Size() > maxImportSize {
		return nil, fmt.Errorf("file too large: %d bytes (limit %d)", info.Size(), maxImportSize)
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxImportSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) > maxImportSize {
		return nil, fmt.Errorf("file too large (limit %d bytes)", maxImportSize)
	}
	return data, nil
}

// filterImportItems keeps the items whose name matches one of patterns.
// No patterns keeps everything.
func filterImportItems(items []*importer.Item, patterns []string) ([]*importer.Item, error) {
	if len(patterns) == 0 {
		return items, nil
	}
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Name
	}
	matched, err := cli.ExpandPatterns(patterns, names)
	if err != nil {
		return nil, fmt.Errorf("in import file: %w", err)
	}
	var out []*importer.Item
	for _, it := range items {
		if slices.Contains(matched, it.Name) {
			out = append(out, it)
		}
	}
	return out, nil
}

func describeImportItem(it *importer.Item) string {
	if it.Username == "" {
		return it.Name
	}
	return fmt.Sprintf("%s (%s)", it.Name, it.Username)
}

// processImport stores items one by one. Failures are collected so one bad
// entry does not stop the rest.
func processImport(cmd *cobra.Command, client *locksy.Client, items []*importer.Item) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	entries, err := client.ListPasswords(ctx)
	if err != nil {
		return fmt.Errorf("failed to list entries: %w", err)
	}
	if len(entries) > 0 && entries[0].Offline {
		return errors.New("server unreachable: cannot import into the offline copy")
	}
	existing := make(map[string]locksy.Entry, len(entries))
	for _, e := range entries {
		existing[e.Name] = e
	}

	if importConflict == conflictError {
		var clashes []string
		for _, it := range items {
			if _, ok := existing[it.Name]; ok {
				clashes = append(clashes, it.Name)
			}
		}
		if len(clashes) > 0 {
			return fmt.Errorf("entries already exist: %s", strings.Join(cli.SortNames(clashes), ", "))
		}
	}

	var imported, updated, skipped int
	var errs []error
	for _, it := range items {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		prev, exists := existing[it.Name]
		switch {
		case exists && importConflict == conflictSkip:
			skipped++
			fmt.Fprintf(cmd.ErrOrStderr(), "Exists, skipped: %s\n", it.Name)
		case exists:
			username, password := it.Username, it.Password
			if err := client.UpdatePassword(ctx, prev.ID, locksy.Patch{Username: &username, Password: &password}); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", it.Name, err))
				continue
			}
			updated++
		default:
			if _, err := client.CreatePassword(ctx, it.Name, it.Username, it.Password); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", it.Name, err))
				continue
			}
			imported++
		}
	}

	fmt.Fprintf(out, "Imported %d entries", imported)
	if updated > 0 {
		fmt.Fprintf(out, ", updated %d", updated)
	}
	if skipped > 0 {
		fmt.Fprintf(out, ", skipped %d existing", skipped)
	}
	fmt.Fprintln(out)

	if len(errs) > 0 {
		return fmt.Errorf("%d entries failed to import: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
