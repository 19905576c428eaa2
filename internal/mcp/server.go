// Package mcp implements the MCP (Model Context Protocol) server for locksy.
// AI agents never receive a stored password: entries are listed by name,
// passwords are returned masked, and breach checks return only a count.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/locksy/pkg/locksy"
)

// Credential environment variables. Both are unset once read.
const (
	EmailEnv    = "LOCKSY_EMAIL"
	PasswordEnv = "LOCKSY_PASSWORD"
)

// Tool names.
const (
	ToolEntryList        = "entry_list"
	ToolEntryGetMasked   = "entry_get_masked"
	ToolBreachCheck      = "breach_check"
	ToolPasswordGenerate = "password_generate"
)

// ErrNoCredentials is returned when no email or password was supplied.
var ErrNoCredentials = errors.New("mcp: no credentials provided: set LOCKSY_EMAIL and LOCKSY_PASSWORD")

// Server represents the MCP server for locksy.
type Server struct {
	server *mcp.Server
	client *locksy.Client
	policy *Policy
	logger *slog.Logger
}

// ServerOptions contains configuration options for the MCP server.
type ServerOptions struct {
	// Client runs every vault operation. Required.
	Client *locksy.Client

	// PolicyDir holds mcp-policy.yaml. Empty means no policy file.
	PolicyDir string

	// Email and Password log the client in. Empty values are read from
	// LOCKSY_EMAIL and LOCKSY_PASSWORD.
	Email    string
	Password string

	Logger  *slog.Logger
	Version string
}

// NewServer loads the policy, logs in, and registers the tools.
func NewServer(ctx context.Context, opts *ServerOptions) (*Server, error) {
	if opts == nil || opts.Client == nil {
		return nil, errors.New("mcp: a client is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	policy := DefaultPolicy()
	if opts.PolicyDir != "" {
		p, err := LoadPolicy(opts.PolicyDir)
		switch {
		case err == nil:
			policy = p
		case errors.Is(err, ErrPolicyNotFound):
			logger.Debug("no MCP policy file, all tools allowed")
		default:
			// A policy that exists but cannot be trusted is fatal.
			return nil, fmt.Errorf("mcp: failed to load policy: %w", err)
		}
	}

	email, password := opts.Email, opts.Password
	if email == "" {
		email = os.Getenv(EmailEnv)
	}
	if password == "" {
		password = os.Getenv(PasswordEnv)
	}
	os.Unsetenv(EmailEnv)
	os.Unsetenv(PasswordEnv)

	if email == "" || password == "" {
		return nil, ErrNoCredentials
	}
	if err := opts.Client.Login(ctx, email, password); err != nil {
		return nil, fmt.Errorf("mcp: login failed: %w", err)
	}

	version := opts.Version
	if version == "" {
		version = "dev"
	}
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "locksy",
			Version: version,
		},
		nil,
	)

	s := &Server{
		server: mcpServer,
		client: opts.Client,
		policy: policy,
		logger: logger,
	}
	s.registerTools()

	return s, nil
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolEntryList,
		Description: "List stored password entries by id, name and username. Accepts an optional glob pattern. Does NOT return passwords.",
	}, s.handleEntryList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolEntryGetMasked,
		Description: "Get a masked version of a stored password (e.g., '****WXYZ') and its length. Useful for checking which password is stored without exposing it.",
	}, s.handleEntryGetMasked)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolBreachCheck,
		Description: "Check a stored password against the Pwned Passwords corpus. Returns only the breach count; the password never leaves this process unhashed.",
	}, s.handleBreachCheck)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolPasswordGenerate,
		Description: "Generate a new random password. The result is not stored.",
	}, s.handlePasswordGenerate)
}

// Run serves MCP over stdio until ctx ends, then logs out.
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()

	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close logs out and clears every key.
func (s *Server) Close() error {
	return s.client.Logout(context.Background())
}
