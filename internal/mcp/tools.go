package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/locksy/internal/cli"
	"github.com/forest6511/locksy/pkg/audit"
	"github.com/forest6511/locksy/pkg/generator"
	"github.com/forest6511/locksy/pkg/security"
)

// EntryListInput represents input for entry_list tool.
type EntryListInput struct {
	Pattern string `json:"pattern,omitempty"`
}

// EntryListOutput represents output for entry_list tool.
type EntryListOutput struct {
	Entries []EntryInfo `json:"entries"`
	Offline bool        `json:"offline,omitempty"`
}

// EntryInfo describes an entry without its password.
type EntryInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Username   string `json:"username,omitempty"`
	Unreadable bool   `json:"unreadable,omitempty"`
}

// EntryGetMaskedInput represents input for entry_get_masked tool.
type EntryGetMaskedInput struct {
	Name string `json:"name"`
}

// EntryGetMaskedOutput represents output for entry_get_masked tool.
type EntryGetMaskedOutput struct {
	Name           string `json:"name"`
	Username       string `json:"username,omitempty"`
	MaskedPassword string `json:"masked_password"`
	PasswordLength int    `json:"password_length"`
}

// BreachCheckInput represents input for breach_check tool.
type BreachCheckInput struct {
	Name string `json:"name"`
}

// BreachCheckOutput represents output for breach_check tool.
type BreachCheckOutput struct {
	Name     string `json:"name"`
	Breached bool   `json:"breached"`
	Count    int    `json:"count"`
}

// PasswordGenerateInput represents input for password_generate tool.
type PasswordGenerateInput struct {
	Length    int    `json:"length,omitempty"`
	NoSymbols bool   `json:"no_symbols,omitempty"`
	Exclude   string `json:"exclude,omitempty"`
}

// PasswordGenerateOutput represents output for password_generate tool.
type PasswordGenerateOutput struct {
	Password string `json:"password"`
	Length   int    `json:"length"`
	Strength string `json:"strength"`
}

// checkTool applies the tool policy and records a denial.
func (s *Server) checkTool(tool, op string) error {
	allowed, reason := s.policy.IsToolAllowed(tool)
	if allowed {
		return nil
	}
	s.client.RecordDenied(op, "", reason)
	return fmt.Errorf("tool not allowed by policy: %s", reason)
}

// checkEntry applies denied_entries and records a denial.
func (s *Server) checkEntry(name, op string) error {
	if name == "" {
		return errors.New("name is required")
	}
	allowed, reason := s.policy.IsEntryAllowed(name)
	if allowed {
		return nil
	}
	s.client.RecordDenied(op, name, reason)
	return fmt.Errorf("entry not allowed by policy: %s", reason)
}

// handleEntryList handles the entry_list tool call. Denied entries are
// left out of the result.
func (s *Server) handleEntryList(ctx context.Context, _ *mcp.CallToolRequest, input EntryListInput) (*mcp.CallToolResult, EntryListOutput, error) {
	if err := s.checkTool(ToolEntryList, audit.OpPasswordList); err != nil {
		return nil, EntryListOutput{}, err
	}
	if input.Pattern != "" {
		if err := cli.ValidatePattern(input.Pattern); err != nil {
			return nil, EntryListOutput{}, err
		}
	}

	entries, err := s.client.ListPasswords(ctx)
	if err != nil {
		return nil, EntryListOutput{}, fmt.Errorf("failed to list entries: %w", err)
	}

	output := EntryListOutput{Entries: make([]EntryInfo, 0, len(entries))}
	for _, e := range entries {
		if allowed, _ := s.policy.IsEntryAllowed(e.Name); !allowed {
			continue
		}
		if input.Pattern != "" {
			if ok, _ := cli.Match(input.Pattern, e.Name); !ok {
				continue
			}
		}
		output.Entries = append(output.Entries, EntryInfo{
			ID:         e.ID,
			Name:       e.Name,
			Username:   e.Username,
			Unreadable: e.DecryptErr != nil,
		})
		output.Offline = output.Offline || e.Offline
	}
	return nil, output, nil
}

// handleEntryGetMasked handles the entry_get_masked tool call.
func (s *Server) handleEntryGetMasked(ctx context.Context, _ *mcp.CallToolRequest, input EntryGetMaskedInput) (*mcp.CallToolResult, EntryGetMaskedOutput, error) {
	if err := s.checkTool(ToolEntryGetMasked, audit.OpPasswordGet); err != nil {
		return nil, EntryGetMaskedOutput{}, err
	}
	if err := s.checkEntry(input.Name, audit.OpPasswordGet); err != nil {
		return nil, EntryGetMaskedOutput{}, err
	}

	entry, err := s.client.GetPassword(ctx, input.Name)
	if err != nil {
		return nil, EntryGetMaskedOutput{}, fmt.Errorf("failed to get entry: %w", err)
	}

	return nil, EntryGetMaskedOutput{
		Name:           entry.Name,
		Username:       entry.Username,
		MaskedPassword: maskValue(entry.Password),
		PasswordLength: len([]rune(entry.Password)),
	}, nil
}

// maskValue masks a password by length in characters.
// | Length  | Format          | Example   |
// |---------|-----------------|-----------|
// | 1-4     | All *           | ****      |
// | 5-8     | Show last 2     | ******XY  |
// | 9+      | Show last 4     | ****WXYZ  |
func maskValue(value string) string {
	runes := []rune(value)
	length := len(runes)

	switch {
	case length == 0:
		return ""
	case length <= 4:
		return strings.Repeat("*", length)
	case length <= 8:
		return strings.Repeat("*", length-2) + string(runes[length-2:])
	default:
		return strings.Repeat("*", length-4) + string(runes[length-4:])
	}
}

// handleBreachCheck handles the breach_check tool call.
func (s *Server) handleBreachCheck(ctx context.Context, _ *mcp.CallToolRequest, input BreachCheckInput) (*mcp.CallToolResult, BreachCheckOutput, error) {
	if err := s.checkTool(ToolBreachCheck, audit.OpBreachCheck); err != nil {
		return nil, BreachCheckOutput{}, err
	}
	if err := s.checkEntry(input.Name, audit.OpBreachCheck); err != nil {
		return nil, BreachCheckOutput{}, err
	}

	n, err := s.client.CheckEntryBreach(ctx, input.Name)
	if err != nil {
		return nil, BreachCheckOutput{}, fmt.Errorf("breach check failed: %w", err)
	}
	return nil, BreachCheckOutput{Name: input.Name, Breached: n > 0, Count: n}, nil
}

// handlePasswordGenerate handles the password_generate tool call.
func (s *Server) handlePasswordGenerate(_ context.Context, _ *mcp.CallToolRequest, input PasswordGenerateInput) (*mcp.CallToolResult, PasswordGenerateOutput, error) {
	if err := s.checkTool(ToolPasswordGenerate, audit.OpPasswordGen); err != nil {
		return nil, PasswordGenerateOutput{}, err
	}

	opts := generator.DefaultOptions()
	if input.Length != 0 {
		opts.Length = input.Length
	}
	opts.Symbols = !input.NoSymbols
	opts.Exclude = input.Exclude

	pw, err := generator.Generate(opts)
	if err != nil {
		return nil, PasswordGenerateOutput{}, err
	}
	return nil, PasswordGenerateOutput{
		Password: pw,
		Length:   len([]rune(pw)),
		Strength: security.CalculateStrength(pw).String(),
	}, nil
}
