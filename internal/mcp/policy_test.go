package mcp

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/forest6511/locksy/internal/config"
)

// createTestPolicy creates a test policy file
func createTestPolicy(t *testing.T, dir string, content string) {
	t.Helper()
	policyPath := filepath.Join(dir, PolicyFileName)
	if err := os.WriteFile(policyPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to create policy file: %v", err)
	}
}

func TestLoadPolicy_NotFound(t *testing.T) {
	_, err := LoadPolicy(t.TempDir())
	if !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("expected ErrPolicyNotFound, got %v", err)
	}
}

func TestLoadPolicy_Valid(t *testing.T) {
	dir := t.TempDir()
	createTestPolicy(t, dir, `version: 1
denied_tools:
  - breach_check
denied_entries:
  - "bank*"
  - "work/*"
`)

	policy, err := LoadPolicy(dir)
	if err != nil {
		t.Fatalf("LoadPolicy failed: %v", err)
	}
	if policy.DefaultAction != ActionAllow {
		t.Errorf("DefaultAction = %q, want allow without allowed_tools", policy.DefaultAction)
	}
	if len(policy.DeniedEntries) != 2 {
		t.Errorf("DeniedEntries = %v", policy.DeniedEntries)
	}
}

func TestLoadPolicy_AllowListDefaultsToDeny(t *testing.T) {
	dir := t.TempDir()
	createTestPolicy(t, dir, `version: 1
allowed_tools:
  - entry_list
`)

	policy, err := LoadPolicy(dir)
	if err != nil {
		t.Fatalf("LoadPolicy failed: %v", err)
	}
	if policy.DefaultAction != ActionDeny {
		t.Errorf("DefaultAction = %q, want deny", policy.DefaultAction)
	}
}

func TestLoadPolicy_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unsupported version", "version: 2\n"},
		{"bad default action", "version: 1\ndefault_action: maybe\n"},
		{"bad pattern", "version: 1\ndenied_entries: [\"[\"]\n"},
		{"not yaml", "version: [1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			createTestPolicy(t, dir, tt.content)
			if _, err := LoadPolicy(dir); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadPolicy_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on windows")
	}
	dir := t.TempDir()
	createTestPolicy(t, dir, "version: 1\n")
	if err := os.Chmod(filepath.Join(dir, PolicyFileName), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadPolicy(dir)
	if !errors.Is(err, config.ErrInsecureFile) {
		t.Errorf("expected ErrInsecureFile, got %v", err)
	}
}

func TestLoadPolicy_Symlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := t.TempDir()
	target := filepath.Join(t.TempDir(), "real.yaml")
	if err := os.WriteFile(target, []byte("version: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, filepath.Join(dir, PolicyFileName)); err != nil {
		t.Fatal(err)
	}

	_, err := LoadPolicy(dir)
	if !errors.Is(err, config.ErrSymlink) {
		t.Errorf("expected ErrSymlink, got %v", err)
	}
}

func TestIsToolAllowed(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		tool    string
		allowed bool
	}{
		{
			name:    "default allow",
			policy:  Policy{Version: 1, DefaultAction: ActionAllow},
			tool:    ToolEntryList,
			allowed: true,
		},
		{
			name:    "default deny",
			policy:  Policy{Version: 1, DefaultAction: ActionDeny},
			tool:    ToolEntryList,
			allowed: false,
		},
		{
			name:    "denied overrides allowed",
			policy:  Policy{Version: 1, DefaultAction: ActionAllow, DeniedTools: []string{"entry_*"}, AllowedTools: []string{ToolEntryList}},
			tool:    ToolEntryList,
			allowed: false,
		},
		{
			name:    "allow list",
			policy:  Policy{Version: 1, DefaultAction: ActionDeny, AllowedTools: []string{ToolPasswordGenerate}},
			tool:    ToolPasswordGenerate,
			allowed: true,
		},
		{
			name:    "not on allow list",
			policy:  Policy{Version: 1, DefaultAction: ActionDeny, AllowedTools: []string{ToolPasswordGenerate}},
			tool:    ToolBreachCheck,
			allowed: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, reason := tt.policy.IsToolAllowed(tt.tool)
			if allowed != tt.allowed {
				t.Errorf("IsToolAllowed(%q) = %v (%s), want %v", tt.tool, allowed, reason, tt.allowed)
			}
			if !allowed && reason == "" {
				t.Error("denial without a reason")
			}
		})
	}
}

func TestIsEntryAllowed(t *testing.T) {
	p := Policy{Version: 1, DefaultAction: ActionAllow, DeniedEntries: []string{"bank*", "work/*"}}

	tests := []struct {
		name    string
		allowed bool
	}{
		{"bank", false},
		{"bank-old", false},
		{"work/github", false},
		{"personal/mail", true},
		{"github", true},
	}
	for _, tt := range tests {
		if allowed, _ := p.IsEntryAllowed(tt.name); allowed != tt.allowed {
			t.Errorf("IsEntryAllowed(%q) = %v, want %v", tt.name, allowed, tt.allowed)
		}
	}
}
