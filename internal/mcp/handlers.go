// ABOUTME: MCP tool handler implementations for the om server
// ABOUTME: Resolves the caller's session and maps engine errors to tool errors
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/harper/om/internal/core"
	"github.com/harper/om/internal/models"
)

// Handlers contains the handler functions for all MCP tools
type Handlers struct {
	engine      *core.Engine
	sessions    *core.Sessions
	defaultUser string
	log         zerolog.Logger
}

// NewHandlers builds handlers without registering them
func NewHandlers(engine *core.Engine, sessions *core.Sessions, defaultUser string, log zerolog.Logger) *Handlers {
	return &Handlers{
		engine:      engine,
		sessions:    sessions,
		defaultUser: defaultUser,
		log:         log.With().Str("component", "mcp").Logger(),
	}
}

// GetStreak handles the get_streak tool
func (h *Handlers) GetStreak(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errResult := h.session(request)
	if errResult != nil {
		return errResult, nil
	}

	count, err := h.engine.GetStreak(ctx, sess)
	if err != nil {
		return h.failure("get streak", err), nil
	}

	return jsonResult(map[string]interface{}{
		"user_id": sess.UserID(),
		"streak":  count,
	})
}

// LoadProfile handles the load_profile tool
func (h *Handlers) LoadProfile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errResult := h.session(request)
	if errResult != nil {
		return errResult, nil
	}

	var (
		profile *models.Profile
		err     error
	)
	if request.GetBool("refresh", false) {
		profile, err = h.engine.RefreshProfile(ctx, sess)
	} else {
		profile, err = h.engine.LoadProfile(ctx, sess)
	}
	if err != nil {
		return h.failure("load profile", err), nil
	}

	return jsonResult(map[string]interface{}{
		"user_id":   sess.UserID(),
		"onboarded": profile != nil,
		"profile":   profile,
	})
}

// CompleteProfile handles the complete_profile tool
func (h *Handlers) CompleteProfile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errResult := h.session(request)
	if errResult != nil {
		return errResult, nil
	}

	fields, err := stringMap(request, "fields")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	profile, err := h.engine.CompleteProfile(ctx, sess, fields)
	if err != nil {
		return h.failure("complete profile", err), nil
	}

	return jsonResult(map[string]interface{}{
		"success": true,
		"profile": profile,
	})
}

// LoadHistory handles the load_history tool
func (h *Handlers) LoadHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errResult := h.session(request)
	if errResult != nil {
		return errResult, nil
	}

	var (
		entries []models.Entry
		err     error
	)
	if request.GetBool("local_only", false) {
		entries, err = h.engine.LocalHistory(sess)
	} else {
		entries, err = h.engine.LoadHistory(ctx, sess)
	}
	if err != nil {
		return h.failure("load history", err), nil
	}

	return jsonResult(map[string]interface{}{
		"user_id": sess.UserID(),
		"entries": entries,
	})
}

// AskGuidance handles the ask_guidance tool
func (h *Handlers) AskGuidance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError("message argument is required and must be a string"), nil
	}
	sess, errResult := h.session(request)
	if errResult != nil {
		return errResult, nil
	}

	exchange, err := h.engine.Ask(ctx, sess, message)
	if err != nil {
		return h.failure("ask guidance", err), nil
	}

	return jsonResult(map[string]interface{}{
		"user":     exchange.User,
		"guidance": exchange.Guidance,
	})
}

// DeleteEntry handles the delete_entry tool
func (h *Handlers) DeleteEntry(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entryID, err := request.RequireString("entry_id")
	if err != nil {
		return mcp.NewToolResultError("entry_id argument is required and must be a string"), nil
	}
	sess, errResult := h.session(request)
	if errResult != nil {
		return errResult, nil
	}

	removed, err := h.engine.DeleteEntry(ctx, sess, entryID)
	if err != nil {
		return h.failure("delete entry", err), nil
	}

	ids := make([]string, 0, len(removed))
	for _, e := range removed {
		ids = append(ids, e.ID)
	}
	return jsonResult(map[string]interface{}{
		"success": true,
		"removed": ids,
	})
}

func (h *Handlers) session(request mcp.CallToolRequest) (*core.Session, *mcp.CallToolResult) {
	userID := request.GetString("user_id", h.defaultUser)
	sess, err := h.sessions.Get(userID)
	if err != nil {
		return nil, mcp.NewToolResultError("user_id is required (pass user_id or configure OM_USER_ID)")
	}
	return sess, nil
}

// failure turns engine errors into tool errors the agent can act on
func (h *Handlers) failure(op string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, core.ErrUnavailable):
		return mcp.NewToolResultError(op + ": remote unavailable and nothing stored locally, try again later")
	case errors.Is(err, core.ErrEntryNotFound),
		errors.Is(err, core.ErrEmptyMessage),
		errors.Is(err, core.ErrEmptyProfile):
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", op, err))
	}
	h.log.Error().Err(err).Str("op", op).Msg("tool failed")
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", op, err))
}

func jsonResult(response map[string]interface{}) (*mcp.CallToolResult, error) {
	responseJSON, err := json.Marshal(response)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(responseJSON)), nil
}

// stringMap extracts an object argument whose values are strings
func stringMap(request mcp.CallToolRequest, key string) (map[string]string, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s argument is required and must be an object", key)
	}
	raw, ok := args[key].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s argument is required and must be an object", key)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64, bool:
			out[k] = fmt.Sprint(val)
		default:
			return nil, fmt.Errorf("%s.%s must be a string", key, k)
		}
	}
	return out, nil
}
