package mcp

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/forest6511/locksy/internal/cli"
	"github.com/forest6511/locksy/internal/config"
)

// Policy restricts which tools an MCP client may call and which entries
// those tools may touch.
type Policy struct {
	Version       int      `yaml:"version"`
	DefaultAction string   `yaml:"default_action"`
	DeniedTools   []string `yaml:"denied_tools"`
	AllowedTools  []string `yaml:"allowed_tools"`
	DeniedEntries []string `yaml:"denied_entries"`
}

// PolicyFileName is the name of the policy file
const PolicyFileName = "mcp-policy.yaml"

// Policy action constants
const (
	ActionAllow = "allow"
	ActionDeny  = "deny"
)

var (
	// ErrPolicyNotFound is returned when no policy file exists
	ErrPolicyNotFound = errors.New("mcp: policy file not found")
	// ErrInvalidPolicy is returned for a policy that fails validation
	ErrInvalidPolicy = errors.New("mcp: invalid policy")
)

// DefaultPolicy allows every tool on every entry.
func DefaultPolicy() *Policy {
	return &Policy{Version: 1, DefaultAction: ActionAllow}
}

// LoadPolicy loads dir/mcp-policy.yaml. The file must be a regular 0600
// file owned by the current user; symlinks are rejected.
func LoadPolicy(dir string) (*Policy, error) {
	path := filepath.Join(dir, PolicyFileName)

	content, err := config.ReadPrivateFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrPolicyNotFound
	}
	if err != nil {
		return nil, err
	}

	var policy Policy
	if err := yaml.Unmarshal(content, &policy); err != nil {
		return nil, fmt.Errorf("mcp: failed to parse policy file: %w", err)
	}

	// An allow list implies deny for everything else.
	if policy.DefaultAction == "" {
		policy.DefaultAction = ActionAllow
		if len(policy.AllowedTools) > 0 {
			policy.DefaultAction = ActionDeny
		}
	}

	if err := policy.ValidatePolicy(); err != nil {
		return nil, err
	}
	return &policy, nil
}

// ValidatePolicy validates the policy configuration
func (p *Policy) ValidatePolicy() error {
	if p.Version != 1 {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidPolicy, p.Version)
	}
	if p.DefaultAction != ActionDeny && p.DefaultAction != ActionAllow {
		return fmt.Errorf("%w: default_action %q (must be '%s' or '%s')", ErrInvalidPolicy, p.DefaultAction, ActionDeny, ActionAllow)
	}
	for _, list := range [][]string{p.DeniedTools, p.AllowedTools, p.DeniedEntries} {
		for _, pattern := range list {
			if err := cli.ValidatePattern(pattern); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
			}
		}
	}
	return nil
}

// IsToolAllowed checks a tool name.
// Evaluation order:
// 1. denied_tools → deny
// 2. allowed_tools → allow
// 3. default_action
func (p *Policy) IsToolAllowed(tool string) (allowed bool, reason string) {
	if pattern, ok := cli.MatchAny(p.DeniedTools, tool); ok {
		return false, fmt.Sprintf("tool '%s' matches denied pattern '%s'", tool, pattern)
	}
	if _, ok := cli.MatchAny(p.AllowedTools, tool); ok {
		return true, ""
	}
	if p.DefaultAction == ActionAllow {
		return true, ""
	}
	return false, fmt.Sprintf("tool '%s' not in allowed_tools list", tool)
}

// IsEntryAllowed checks an entry name against denied_entries.
func (p *Policy) IsEntryAllowed(name string) (allowed bool, reason string) {
	if pattern, ok := cli.MatchAny(p.DeniedEntries, name); ok {
		return false, fmt.Sprintf("entry matches denied pattern '%s'", pattern)
	}
	return true, ""
}
