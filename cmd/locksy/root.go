package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/forest6511/locksy/internal/config"
	"github.com/forest6511/locksy/internal/mcp"
	"github.com/forest6511/locksy/pkg/api"
	"github.com/forest6511/locksy/pkg/audit"
	"github.com/forest6511/locksy/pkg/breach"
	"github.com/forest6511/locksy/pkg/crypto"
	"github.com/forest6511/locksy/pkg/locksy"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configDir string
	flagEmail string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "locksy",
	Short: "locksy is a zero-knowledge password manager",
	Long: `A password manager client that encrypts everything locally.

The server only ever stores sealed envelopes. The master password and the
keys derived from it never leave this process.`,
	Version:      version,
	SilenceUsage: true,
	// PersistentPreRunE loads the configuration for every subcommand.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Configuration directory (default: $LOCKSY_CONFIG_DIR or ~/.locksy)")
	rootCmd.PersistentFlags().StringVarP(&flagEmail, "email", "e", "", "Account email (default: $LOCKSY_EMAIL)")

	rootCmd.AddCommand(registerCmd)
}

// loadConfig resolves the config directory and builds the logger.
func loadConfig(cmd *cobra.Command) error {
	dir := configDir
	if dir == "" {
		var err error
		if dir, err = config.DefaultDir(); err != nil {
			return err
		}
	}
	c, err := config.Load(dir)
	if err != nil {
		return err
	}
	configDir = dir
	cfg = c
	logger = config.NewLogger(cfg, cmd.ErrOrStderr())
	return nil
}

// newClient builds a client from the loaded configuration.
func newClient(source string) (*locksy.Client, error) {
	if err := cfg.RequireAPI(); err != nil {
		return nil, err
	}
	apiClient, err := api.NewClient(cfg.APIURL,
		api.WithTimeout(cfg.HTTPTimeout),
		api.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	breachOpts := []breach.Option{
		breach.WithTimeout(cfg.BreachTimeout),
		breach.WithLogger(logger),
	}
	if cfg.BreachURL != "" {
		breachOpts = append(breachOpts, breach.WithBaseURL(cfg.BreachURL))
	}

	return locksy.New(apiClient,
		locksy.WithLogger(logger),
		locksy.WithBreachChecker(breach.New(breachOpts...)),
		locksy.WithBreachPolicy(locksy.BreachPolicy(cfg.BreachPolicy)),
		locksy.WithDataDir(cfg.DataDir),
		locksy.WithOfflineFallback(cfg.OfflineCache),
		locksy.WithAuditSource(source),
	), nil
}

// openSession builds a client and logs in, prompting for whatever the flags
// and environment do not provide.
func openSession(cmd *cobra.Command) (*locksy.Client, error) {
	client, err := newClient(audit.SourceCLI)
	if err != nil {
		return nil, err
	}

	email, err := resolveEmail(cmd)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	password, err := readPassword(cmd, "Enter master password: ")
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	if err := client.Login(cmd.Context(), email, password); err != nil {
		_ = client.Close()
		if errors.Is(err, locksy.ErrCooldownActive) {
			return nil, fmt.Errorf("too many failed attempts, try again later: %w", err)
		}
		return nil, fmt.Errorf("login failed: %w", err)
	}
	return client, nil
}

// closeSession logs out and releases the account's files.
func closeSession(cmd *cobra.Command, client *locksy.Client) {
	_ = client.Logout(cmd.Context())
	if err := client.Close(); err != nil {
		logger.Warn("failed to close client", slog.Any("error", err))
	}
}

// resolveEmail returns --email, then $LOCKSY_EMAIL, then asks.
func resolveEmail(cmd *cobra.Command) (string, error) {
	if flagEmail != "" {
		return flagEmail, nil
	}
	if email := os.Getenv(mcp.EmailEnv); email != "" {
		return email, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Email: ")
	email, err := readLine(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read email: %w", err)
	}
	if email == "" {
		return "", errors.New("email is required")
	}
	return email, nil
}

// readPassword prompts on stderr and reads from the terminal without echo.
// Tests replace it.
var readPassword = func(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	defer crypto.SecureWipe(pw)
	return string(pw), nil
}

// readNewPassword asks twice and requires both answers to match.
func readNewPassword(cmd *cobra.Command, what string) (string, error) {
	first, err := readPassword(cmd, "Enter "+what+": ")
	if err != nil {
		return "", err
	}
	second, err := readPassword(cmd, "Confirm "+what+": ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passwords do not match")
	}
	return first, nil
}

// readLine reads one line a byte at a time so nothing past the newline is
// consumed from r.
func readLine(r io.Reader) (string, error) {
	var line strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				break
			}
			line.WriteByte(buf[0])
		}
		if err != nil {
			if errors.Is(err, io.EOF) && line.Len() > 0 {
				break
			}
			return "", err
		}
	}
	return strings.TrimSpace(line.String()), nil
}

// confirm asks a yes/no question. Anything but y or Y, including a read
// error, is no.
func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.ErrOrStderr(), "%s [y/N]: ", question)
	answer, err := readLine(cmd.InOrStdin())
	if err != nil {
		return false
	}
	return answer == "y" || answer == "Y"
}

// registerCmd creates an account
var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Creates a new account",
	Long: `Creates a new account on the configured server.

The master password is checked against the breach corpus while the key is
derived. With breach_policy: block a breached password is refused.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(audit.SourceCLI)
		if err != nil {
			return err
		}
		defer client.Close()

		email, err := resolveEmail(cmd)
		if err != nil {
			return err
		}
		password, err := readNewPassword(cmd, "master password")
		if err != nil {
			return err
		}

		result, err := client.Register(cmd.Context(), email, password)
		if err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Password strength: %s\n", result.Strength)
		for _, warning := range result.Warnings {
			fmt.Fprintf(out, "Warning: %s\n", warning)
		}
		switch result.Breach {
		case locksy.BreachFound:
			fmt.Fprintf(out, "Warning: this password appears %d times in known breaches\n", result.BreachCount)
		case locksy.BreachUnavailable:
			fmt.Fprintln(out, "Warning: breach check unavailable")
		}
		fmt.Fprintf(out, "Account %s registered\n", result.Email)
		return nil
	},
}

// parseDuration parses a duration string like "30d", "1y", "24h"
func parseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("duration too short: %s", s)
	}

	unit := s[len(s)-1]
	valueStr := s[:len(s)-1]

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Compound Go durations such as "1h30m"
		return time.ParseDuration(s)
	}
	if value < 0 {
		return 0, fmt.Errorf("duration must not be negative: %s", s)
	}

	switch unit {
	case 'h':
		return time.Duration(value) * time.Hour, nil
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(value) * 7 * 24 * time.Hour, nil
	case 'm':
		return time.Duration(value) * 30 * 24 * time.Hour, nil
	case 'y':
		return time.Duration(value) * 365 * 24 * time.Hour, nil
	default:
		return time.ParseDuration(s)
	}
}
