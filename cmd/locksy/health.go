package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/locksy/pkg/security"
)

// Health command flags
var (
	healthVerbose   bool
	healthJSON      bool
	healthShowNames bool
)

func init() {
	rootCmd.AddCommand(healthCmd)

	healthCmd.Flags().BoolVarP(&healthVerbose, "verbose", "v", false, "Show all details including suggestions")
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "Output in JSON format")
	healthCmd.Flags().BoolVar(&healthShowNames, "show-names", false, "Name the affected entries in each issue")
}

// healthCmd grades the stored passwords.
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Analyze password health",
	Long: `Analyze the stored passwords and get recommendations.

The score is calculated from:
  - Password Strength (0-25): Average strength of stored passwords
  - Uniqueness (0-25): Percentage of unique passwords
  - Breaches (0-25): Percentage of passwords absent from known breaches
  - Integrity (0-25): Percentage of entries that decrypt

Entry names are left out of the report unless --show-names is given.

Example:
  locksy health                 # Show score and top issues
  locksy health --verbose       # Show suggestions as well
  locksy health --json          # Output in JSON format`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer closeSession(cmd, client)

		report, err := client.Health(cmd.Context(), healthShowNames)
		if err != nil {
			return fmt.Errorf("failed to analyze passwords: %w", err)
		}

		if healthJSON {
			return outputHealthJSON(cmd.OutOrStdout(), report)
		}
		outputHealthText(cmd.OutOrStdout(), report, healthVerbose)
		return nil
	},
}

// outputHealthJSON outputs the report as JSON.
func outputHealthJSON(w io.Writer, report *security.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// outputHealthText outputs the report as formatted text.
func outputHealthText(w io.Writer, report *security.Report, verbose bool) {
	emoji := "🔒"
	var rating string
	switch {
	case report.Overall >= 90:
		rating = "Excellent"
	case report.Overall >= 70:
		rating = "Good"
	case report.Overall >= 50:
		emoji = "⚠️"
		rating = "Fair"
	default:
		emoji = "🚨"
		rating = "Needs Attention"
	}

	fmt.Fprintf(w, "%s Health Score: %d/100 (%s)\n\n", emoji, report.Overall, rating)

	c := report.Components
	fmt.Fprintln(w, "Components:")
	fmt.Fprintf(w, "  Password Strength: %d/25 %s\n", c.StrengthScore, progressBar(c.StrengthScore, 25))
	fmt.Fprintf(w, "  Uniqueness:        %d/25 %s\n", c.UniquenessScore, progressBar(c.UniquenessScore, 25))
	fmt.Fprintf(w, "  Breaches:          %d/25 %s\n", c.BreachScore, progressBar(c.BreachScore, 25))
	fmt.Fprintf(w, "  Integrity:         %d/25 %s\n", c.IntegrityScore, progressBar(c.IntegrityScore, 25))
	if report.BreachSkipped {
		fmt.Fprintln(w, "  (breach check unavailable, breach score not measured)")
	}
	fmt.Fprintln(w)

	if len(report.Issues) > 0 {
		fmt.Fprintf(w, "⚠️  Issues (%d):\n", len(report.Issues))
		for i, issue := range report.Issues {
			typeLabel := strings.ToUpper(string(issue.Type))
			nameInfo := ""
			if issue.Name != "" {
				nameInfo = fmt.Sprintf(" %q", issue.Name)
			} else if len(issue.Names) > 0 {
				nameInfo = " " + strings.Join(issue.Names, ", ")
			}
			fmt.Fprintf(w, "  %d. [%s]%s: %s\n", i+1, typeLabel, nameInfo, issue.Description)
		}
		fmt.Fprintln(w)
	}

	if len(report.Suggestions) > 0 && verbose {
		fmt.Fprintln(w, "💡 Suggestions:")
		for _, suggestion := range report.Suggestions {
			fmt.Fprintf(w, "  - %s\n", suggestion)
		}
		fmt.Fprintln(w)
	}
}

// progressBar creates a simple ASCII progress bar.
func progressBar(value, maxVal int) string {
	width := 20
	filled := value * width / maxVal
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}
