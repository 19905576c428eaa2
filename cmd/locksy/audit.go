package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/forest6511/locksy/internal/config"
	"github.com/forest6511/locksy/pkg/audit"
	"github.com/forest6511/locksy/pkg/locksy"
)

// Audit flags
var (
	auditLimit int
	auditSince string
)

// Audit export flags
var (
	auditExportFormat string
	auditExportSince  string
	auditExportUntil  string
	auditExportOutput string
)

// Audit prune flags
var (
	auditPruneOlderThan string
	auditPruneDryRun    bool
	auditPruneForce     bool
)

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditExportCmd)
	auditCmd.AddCommand(auditPruneCmd)

	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum number of events to show")
	auditListCmd.Flags().StringVar(&auditSince, "since", "", "Show events since duration (e.g., 24h)")

	auditExportCmd.Flags().StringVar(&auditExportFormat, "format", "json", "Output format: json, csv")
	auditExportCmd.Flags().StringVar(&auditExportSince, "since", "", "Export events since duration (e.g., 30d)")
	auditExportCmd.Flags().StringVar(&auditExportUntil, "until", "", "Export events until date (RFC 3339)")
	auditExportCmd.Flags().StringVarP(&auditExportOutput, "output", "o", "", "Output file path (default: stdout)")

	auditPruneCmd.Flags().StringVar(&auditPruneOlderThan, "older-than", "", "Delete logs older than duration (e.g., 12m for 12 months)")
	auditPruneCmd.Flags().BoolVar(&auditPruneDryRun, "dry-run", false, "Show what would be deleted without deleting")
	auditPruneCmd.Flags().BoolVarP(&auditPruneForce, "force", "f", false, "Skip confirmation prompt")
}

// auditCmd is the parent command for audit operations
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Activity log operations",
	Long: `Reads and maintains the account's local activity log.

Every command logs in first: the log is chained with a key derived from the
master password, and entry names are stored only as keyed hashes.`,
}

// openAudit logs in and returns the account's activity log.
func openAudit(cmd *cobra.Command) (*locksy.Client, *audit.Logger, error) {
	client, err := openSession(cmd)
	if err != nil {
		return nil, nil, err
	}
	l := client.Audit()
	if l == nil {
		closeSession(cmd, client)
		return nil, nil, errors.New("activity log requires a data directory")
	}
	return client, l, nil
}

// auditListCmd lists audit log entries
var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List activity log entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var since time.Time
		if auditSince != "" {
			duration, err := parseDuration(auditSince)
			if err != nil {
				return fmt.Errorf("invalid since format: %w", err)
			}
			since = time.Now().Add(-duration)
		}

		client, l, err := openAudit(cmd)
		if err != nil {
			return err
		}
		defer closeSession(cmd, client)

		events, err := l.ListEvents(auditLimit, since)
		if err != nil {
			return fmt.Errorf("failed to list audit events: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(events) == 0 {
			fmt.Fprintln(out, "No audit events found")
			return nil
		}

		for _, event := range events {
			// Format: TIMESTAMP OPERATION RESULT SOURCE [ENTRY] [ERROR]
			line := fmt.Sprintf("%s %s %s %s", event.Timestamp, event.Operation, event.Result, event.Actor.Source)
			if event.Entry != "" {
				entry := event.Entry
				if len(entry) > 16 {
					entry = entry[:16] + "..."
				}
				line += fmt.Sprintf(" entry:%s", entry)
			}
			if event.Error != nil {
				line += fmt.Sprintf(" error:%s", event.Error.Code)
			}
			fmt.Fprintln(out, line)
		}

		fmt.Fprintf(out, "\nTotal: %d events\n", len(events))
		return nil
	},
}

// auditVerifyCmd verifies audit log integrity
var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the activity log HMAC chain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, l, err := openAudit(cmd)
		if err != nil {
			return err
		}
		defer closeSession(cmd, client)

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Verifying activity log integrity...")

		result, err := l.Verify()
		if err != nil {
			return fmt.Errorf("failed to verify audit log: %w", err)
		}

		if !result.Valid {
			fmt.Fprintf(out, "✗ Activity log verification FAILED\n")
			fmt.Fprintf(out, "  Records total: %d\n", result.RecordsTotal)
			fmt.Fprintf(out, "  Records verified: %d\n", result.RecordsVerified)
			fmt.Fprintln(out, "  Errors:")
			for _, e := range result.Errors {
				fmt.Fprintf(out, "    - %s\n", e)
			}
			return errors.New("activity log integrity check failed")
		}

		fmt.Fprintf(out, "✓ Activity log verified: %d records, chain intact\n", result.RecordsTotal)
		if result.Pruned > 0 {
			fmt.Fprintf(out, "  %d records pruned before the chain anchor\n", result.Pruned)
		}

		jsonResult, _ := json.Marshal(result)
		fmt.Fprintf(out, "\nJSON: %s\n", string(jsonResult))
		return nil
	},
}

// auditExportCmd exports audit logs
var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the activity log to JSON or CSV",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if auditExportFormat != "json" && auditExportFormat != "csv" {
			return fmt.Errorf("invalid format: %s (use 'json' or 'csv')", auditExportFormat)
		}

		var since, until time.Time
		if auditExportSince != "" {
			duration, err := parseDuration(auditExportSince)
			if err != nil {
				return fmt.Errorf("invalid since format: %w", err)
			}
			since = time.Now().Add(-duration)
		}
		if auditExportUntil != "" {
			var err error
			until, err = time.Parse(time.RFC3339, auditExportUntil)
			if err != nil {
				return fmt.Errorf("invalid until format (use RFC 3339): %w", err)
			}
		}

		var outPath string
		if auditExportOutput != "" {
			var err error
			if outPath, err = validateOutputPath(auditExportOutput); err != nil {
				return err
			}
		}

		client, l, err := openAudit(cmd)
		if err != nil {
			return err
		}
		defer closeSession(cmd, client)

		data, err := l.Export(auditExportFormat, since, until)
		if err != nil {
			return fmt.Errorf("failed to export audit logs: %w", err)
		}

		if outPath == "" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		if err := config.WritePrivateFile(outPath, data); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: exported logs contain entry hashes and operation metadata.\n")
		fmt.Fprintf(cmd.ErrOrStderr(), "Activity log exported to %s\n", outPath)
		return nil
	},
}

// validateOutputPath keeps exports inside the working directory, the home
// directory or the temp directory.
func validateOutputPath(p string) (string, error) {
	absPath, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("invalid output path: %w", err)
	}

	var prefixes []string
	if cwd, err := os.Getwd(); err == nil {
		prefixes = append(prefixes, cwd)
	}
	if home, err := os.UserHomeDir(); err == nil {
		prefixes = append(prefixes, home)
	}
	prefixes = append(prefixes, os.TempDir())

	for _, prefix := range prefixes {
		rel, err := filepath.Rel(prefix, absPath)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return absPath, nil
		}
	}
	return "", errors.New("output path must be within current directory, home directory, or the temp directory")
}

// auditPruneCmd deletes old audit logs
var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old activity log entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if auditPruneOlderThan == "" {
			return errors.New("--older-than flag is required")
		}
		duration, err := parseDuration(auditPruneOlderThan)
		if err != nil {
			return fmt.Errorf("invalid older-than format: %w", err)
		}

		client, l, err := openAudit(cmd)
		if err != nil {
			return err
		}
		defer closeSession(cmd, client)

		out := cmd.OutOrStdout()
		count, err := l.PrunePreview(duration)
		if err != nil {
			return fmt.Errorf("failed to preview prune: %w", err)
		}

		if auditPruneDryRun {
			fmt.Fprintf(out, "Would delete %d audit log entries older than %s\n", count, auditPruneOlderThan)
			return nil
		}
		if count == 0 {
			fmt.Fprintln(out, "No audit log entries to delete")
			return nil
		}

		if !auditPruneForce {
			fmt.Fprintf(cmd.ErrOrStderr(), "This will delete %d audit log entries older than %s.\n", count, auditPruneOlderThan)
			if !confirm(cmd, "Are you sure?") {
				fmt.Fprintln(out, "Aborted")
				return nil
			}
		}

		deleted, err := l.Prune(duration)
		if err != nil {
			return fmt.Errorf("failed to prune audit logs: %w", err)
		}
		fmt.Fprintf(out, "Deleted %d audit log entries\n", deleted)
		return nil
	},
}
