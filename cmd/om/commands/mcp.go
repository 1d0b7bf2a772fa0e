// ABOUTME: MCP command starts Model Context Protocol server
// ABOUTME: Enables LLM agents to read streaks, profiles and history via stdio
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/harper/om/internal/mcp"
)

// NewMCPCmd creates the MCP command
func NewMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for LLM agents",
		Long: `Start MCP server for LLM agents

Runs om as an MCP (Model Context Protocol) server, enabling LLM agents
to check streaks, complete profiles and hold guidance conversations via
stdio. Tools act for --user / OM_USER_ID unless a call passes user_id.`,
		Args: cobra.NoArgs,
		RunE: runMCP,
		Example: `  # Start MCP server (typically called by an MCP client)
  om mcp --user seeker

  # Configure in claude_desktop_config.json:
  # {
  #   "mcpServers": {
  #     "om": {
  #       "command": "om",
  #       "args": ["mcp"],
  #       "env": {"OM_USER_ID": "seeker"}
  #     }
  #   }
  # }`,
	}

	return cmd
}

// runMCP starts the MCP server
func runMCP(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	defaultUser := userFlag
	if defaultUser == "" {
		defaultUser = a.Config.UserID
	}

	server := mcpserver.NewMCPServer(
		"om",
		versionInfo.Version,
		mcpserver.WithToolCapabilities(true),
	)
	mcp.RegisterTools(server, a.Engine, a.Sessions, defaultUser, a.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.Log.Info().Str("user", defaultUser).Msg("om MCP server starting on stdio")

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpserver.ServeStdio(server)
	}()

	select {
	case <-ctx.Done():
		a.Log.Info().Msg("shutdown signal received, flushing remote writes")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}
	return nil
}
