package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forest6511/locksy/internal/mcp"
	"github.com/forest6511/locksy/pkg/audit"
)

func init() {
	rootCmd.AddCommand(mcpServerCmd)
}

// mcpServerCmd starts the MCP server for AI coding assistant integration
var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Start the MCP server for AI coding assistant integration",
	Long: `Start the MCP server that gives AI coding assistants access to the vault
without ever handing them a plaintext password.

The server implements the Model Context Protocol (MCP) over stdio transport.

Available tools:
  - entry_list:        List entry names and usernames (no passwords)
  - entry_get_masked:  Get a masked password (e.g., "********WXYZ")
  - breach_check:      Check a stored password against known breaches
  - password_generate: Generate a random password

Authentication:
  Set LOCKSY_EMAIL and LOCKSY_PASSWORD before starting the server. Both are
  read once and immediately cleared from the environment.

  SECURITY NOTE: On Linux, the environment variables may briefly be visible
  via /proc/<pid>/environ before they are cleared.

Policy:
  Create mcp-policy.yaml in the config directory to deny tools or entries.
  Without a policy file every tool is allowed. Denied calls are recorded in
  the activity log.

Example MCP configuration:
  {
    "mcpServers": {
      "locksy": {
        "type": "stdio",
        "command": "/path/to/locksy",
        "args": ["mcp-server"],
        "env": {
          "LOCKSY_EMAIL": "you@example.com",
          "LOCKSY_PASSWORD": "your-master-password"
        }
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCPServer,
}

func runMCPServer(cmd *cobra.Command, args []string) error {
	client, err := newClient(audit.SourceMCP)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx := cmd.Context()
	server, err := mcp.NewServer(ctx, &mcp.ServerOptions{
		Client:    client,
		PolicyDir: configDir,
		Email:     flagEmail,
		Logger:    logger,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	if err := server.Run(ctx); err != nil {
		// Don't report context canceled as an error
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
