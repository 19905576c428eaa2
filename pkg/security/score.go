package security

import (
	"context"
	"strconv"

	"github.com/forest6511/locksy/pkg/crypto"
)

// Entry is one decrypted password as seen by the report. Unreadable marks
// an item that failed to decrypt; its Password is empty.
type Entry struct {
	Name       string
	Password   string
	Unreadable bool
}

// BreachFunc returns the breach count for a password.
type BreachFunc func(ctx context.Context, password string) (int, error)

// Report represents the overall health assessment of a vault.
type Report struct {
	// Overall is the total score (0-100).
	Overall int `json:"overall"`
	// Components breaks down the score into categories.
	Components ScoreComponents `json:"components"`
	// Issues contains the detected problems.
	Issues []Issue `json:"issues"`
	// Suggestions provides actionable recommendations.
	Suggestions []string `json:"suggestions"`
	// BreachSkipped is set when breach lookups were unavailable.
	BreachSkipped bool `json:"breach_skipped,omitempty"`
}

// ScoreComponents breaks down the score into categories.
// Each component contributes up to 25 points (total: 100).
type ScoreComponents struct {
	// StrengthScore is based on average password strength (0-25).
	StrengthScore int `json:"strength"`
	// UniquenessScore is based on percentage of unique passwords (0-25).
	UniquenessScore int `json:"uniqueness"`
	// BreachScore is based on percentage of passwords absent from breaches (0-25).
	BreachScore int `json:"breach"`
	// IntegrityScore is based on percentage of items that decrypt (0-25).
	IntegrityScore int `json:"integrity"`
}

// IssueType identifies the type of issue.
type IssueType string

const (
	IssueWeakPassword      IssueType = "weak"
	IssueDuplicatePassword IssueType = "duplicate"
	IssueBreachedPassword  IssueType = "breached"
	IssueUnreadable        IssueType = "unreadable"
)

// Severity indicates the urgency of an issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Issue represents a detected problem.
type Issue struct {
	Type        IssueType `json:"type"`
	Severity    Severity  `json:"severity"`
	Name        string    `json:"name,omitempty"`
	Names       []string  `json:"names,omitempty"`
	Description string    `json:"description"`
	Suggestion  string    `json:"suggestion,omitempty"`
}

// Calculator computes health reports.
type Calculator struct {
	breach  BreachFunc
	hmacKey []byte // Session-local key for duplicate detection
}

// NewCalculator creates a calculator. breach may be nil to skip lookups.
func NewCalculator(breach BreachFunc) *Calculator {
	return &Calculator{breach: breach}
}

// Close wipes the session-local duplicate key.
func (c *Calculator) Close() {
	if c.hmacKey != nil {
		crypto.SecureWipe(c.hmacKey)
		c.hmacKey = nil
	}
}

// Analyze scores entries. Entry names appear in issues only when
// includeNames is set.
func (c *Calculator) Analyze(ctx context.Context, entries []Entry, includeNames bool) (*Report, error) {
	if len(entries) == 0 {
		return &Report{
			Overall: 100,
			Components: ScoreComponents{
				StrengthScore:   25,
				UniquenessScore: 25,
				BreachScore:     25,
				IntegrityScore:  25,
			},
			Issues:      []Issue{},
			Suggestions: []string{},
		}, nil
	}

	readable := make([]Entry, 0, len(entries))
	var issues []Issue
	for _, e := range entries {
		if e.Unreadable {
			issues = append(issues, c.issue(Issue{
				Type:        IssueUnreadable,
				Severity:    SeverityCritical,
				Description: "Entry could not be decrypted",
				Suggestion:  "Check the entry was written by this account",
			}, e.Name, includeNames))
			continue
		}
		readable = append(readable, e)
	}
	integrityScore := len(readable) * 25 / len(entries)

	strengthScore, weakIssues := c.strengthScore(readable, includeNames)
	uniquenessScore, dupIssues, err := c.uniquenessScore(readable, includeNames)
	if err != nil {
		return nil, err
	}
	breachScore, breachIssues, skipped := c.breachScore(ctx, readable, includeNames)

	issues = append(issues, weakIssues...)
	issues = append(issues, dupIssues...)
	issues = append(issues, breachIssues...)
	if issues == nil {
		issues = []Issue{}
	}

	return &Report{
		Overall: strengthScore + uniquenessScore + breachScore + integrityScore,
		Components: ScoreComponents{
			StrengthScore:   strengthScore,
			UniquenessScore: uniquenessScore,
			BreachScore:     breachScore,
			IntegrityScore:  integrityScore,
		},
		Issues:        issues,
		Suggestions:   generateSuggestions(issues),
		BreachSkipped: skipped,
	}, nil
}

func (c *Calculator) issue(i Issue, name string, includeNames bool) Issue {
	if includeNames {
		i.Name = name
	}
	return i
}

// strengthScore averages strength points over non-empty passwords.
func (c *Calculator) strengthScore(entries []Entry, includeNames bool) (int, []Issue) {
	var issues []Issue
	total, count := 0, 0

	for _, e := range entries {
		if e.Password == "" {
			continue
		}
		count++
		strength := CalculateStrength(e.Password)
		total += strength.Points()

		if strength == PasswordWeak {
			issues = append(issues, c.issue(Issue{
				Type:        IssueWeakPassword,
				Severity:    SeverityWarning,
				Description: "Password has insufficient strength",
				Suggestion:  "Use a longer password (14+ characters recommended)",
			}, e.Name, includeNames))
		}
	}

	// No passwords: full score (N/A)
	if count == 0 {
		return 25, issues
	}
	score := total / count
	if score > 25 {
		score = 25
	}
	return score, issues
}

func (c *Calculator) uniquenessScore(entries []Entry, includeNames bool) (int, []Issue, error) {
	duplicates, err := c.FindDuplicates(entries, includeNames, 0)
	if err != nil {
		return 0, nil, err
	}

	unique := make(map[string]bool)
	total := 0
	for _, e := range entries {
		value := normalizeValue(e.Password)
		if value == "" {
			continue
		}
		total++
		unique[computeValueHash(value, c.hmacKey)] = true
	}
	if total == 0 {
		return 25, nil, nil
	}

	var issues []Issue
	for _, dup := range duplicates {
		issue := Issue{
			Type:        IssueDuplicatePassword,
			Severity:    SeverityWarning,
			Description: strconv.Itoa(dup.Count) + " entries share the same password",
			Suggestion:  "Use unique passwords for each entry",
		}
		if includeNames {
			issue.Names = dup.Names
		}
		issues = append(issues, issue)
	}
	return len(unique) * 25 / total, issues, nil
}

// breachScore looks up each password. The first unavailable lookup stops
// the pass and the component is reported as skipped with full score.
func (c *Calculator) breachScore(ctx context.Context, entries []Entry, includeNames bool) (int, []Issue, bool) {
	if c.breach == nil {
		return 25, nil, true
	}

	var issues []Issue
	checked, clean := 0, 0
	for _, e := range entries {
		if e.Password == "" {
			continue
		}
		count, err := c.breach(ctx, e.Password)
		if err != nil {
			return 25, nil, true
		}
		checked++
		if count == 0 {
			clean++
			continue
		}
		issues = append(issues, c.issue(Issue{
			Type:        IssueBreachedPassword,
			Severity:    SeverityCritical,
			Description: "Password appears in known breaches (" + strconv.Itoa(count) + " times)",
			Suggestion:  "Change this password now",
		}, e.Name, includeNames))
	}
	if checked == 0 {
		return 25, issues, false
	}
	return clean * 25 / checked, issues, false
}

// generateSuggestions creates actionable recommendations based on issues.
func generateSuggestions(issues []Issue) []string {
	seen := make(map[IssueType]bool)
	for _, issue := range issues {
		seen[issue.Type] = true
	}

	suggestions := []string{}
	if seen[IssueBreachedPassword] {
		suggestions = append(suggestions, "Change breached passwords immediately")
	}
	if seen[IssueWeakPassword] {
		suggestions = append(suggestions, "Update weak passwords with stronger alternatives (14+ characters)")
	}
	if seen[IssueDuplicatePassword] {
		suggestions = append(suggestions, "Replace duplicate passwords with unique values")
	}
	if seen[IssueUnreadable] {
		suggestions = append(suggestions, "Re-create entries that can no longer be decrypted")
	}
	return suggestions
}
