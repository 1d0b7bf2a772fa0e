// ABOUTME: MCP tool definitions and registration for the om server
// ABOUTME: Exposes streak, profile and history operations as six MCP tools
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/harper/om/internal/core"
)

var userIDProperty = map[string]interface{}{
	"type":        "string",
	"description": "User to act for (default: the server's configured user)",
}

// RegisterTools registers all MCP tools with the server
func RegisterTools(server *mcpserver.MCPServer, engine *core.Engine, sessions *core.Sessions, defaultUser string, log zerolog.Logger) *Handlers {
	handlers := NewHandlers(engine, sessions, defaultUser, log)

	// 1. get_streak - Today's consecutive-day count
	server.AddTool(mcp.Tool{
		Name:        "get_streak",
		Description: "Get the user's consecutive-day engagement streak. Counts today as a visit.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": userIDProperty,
			},
		},
	}, handlers.GetStreak)

	// 2. load_profile - Onboarding record
	server.AddTool(mcp.Tool{
		Name:        "load_profile",
		Description: "Load the user's onboarding profile. Returns onboarded=false when no profile exists.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": userIDProperty,
				"refresh": map[string]interface{}{
					"type":        "boolean",
					"description": "Reconcile with the remote store even when a local copy exists",
					"default":     false,
				},
			},
		},
	}, handlers.LoadProfile)

	// 3. complete_profile - Merge onboarding answers
	server.AddTool(mcp.Tool{
		Name:        "complete_profile",
		Description: "Merge onboarding answers into the user's profile. Fields not supplied are kept.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": userIDProperty,
				"fields": map[string]interface{}{
					"type":                 "object",
					"additionalProperties": map[string]interface{}{"type": "string"},
					"description":          "Profile attributes to set (e.g., {\"deity\": \"Krishna\"})",
				},
			},
			Required: []string{"fields"},
		},
	}, handlers.CompleteProfile)

	// 4. load_history - Ordered conversation turns
	server.AddTool(mcp.Tool{
		Name:        "load_history",
		Description: "Load the user's guidance conversation, merged with the remote copy once per session.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": userIDProperty,
				"local_only": map[string]interface{}{
					"type":        "boolean",
					"description": "Return the local copy without contacting the remote store",
					"default":     false,
				},
			},
		},
	}, handlers.LoadHistory)

	// 5. ask_guidance - Record a question and its reply
	server.AddTool(mcp.Tool{
		Name:        "ask_guidance",
		Description: "Ask for spiritual guidance. Records the question and the reply in the user's history.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": userIDProperty,
				"message": map[string]interface{}{
					"type":        "string",
					"description": "The seeker's question",
				},
			},
			Required: []string{"message"},
		},
	}, handlers.AskGuidance)

	// 6. delete_entry - Remove a turn and its pair
	server.AddTool(mcp.Tool{
		Name:        "delete_entry",
		Description: "Delete a history entry. Deleting a guidance reply also deletes the question it answered.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": userIDProperty,
				"entry_id": map[string]interface{}{
					"type":        "string",
					"description": "History entry ID to delete",
				},
			},
			Required: []string{"entry_id"},
		},
	}, handlers.DeleteEntry)

	return handlers
}
