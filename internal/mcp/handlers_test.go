// ABOUTME: Tests for the MCP tool handlers
// ABOUTME: Calls tools directly with mcp-go request values
package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/harper/om/internal/core"
	"github.com/harper/om/internal/guidance"
	"github.com/harper/om/internal/localstore"
	"github.com/harper/om/internal/remote"
	"github.com/harper/om/internal/remote/sqlstore"
)

func newTestHandlers(t *testing.T, rem remote.Store) *Handlers {
	t.Helper()
	if rem == nil {
		store, err := sqlstore.OpenSQLite(context.Background(), ":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		rem = store
	}
	engine := core.New(localstore.NewMemory(), rem, core.WithResponder(guidance.DefaultTable()))
	t.Cleanup(func() { _ = engine.Close() })
	return NewHandlers(engine, core.NewSessions(engine), "seeker", zerolog.Nop())
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func decode(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotNil(t, result)
	require.False(t, result.IsError, "tool returned error: %v", result.Content)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func errorText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.True(t, result.IsError)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestGetStreak(t *testing.T) {
	h := newTestHandlers(t, nil)

	result, err := h.GetStreak(context.Background(), call(nil))
	require.NoError(t, err)
	out := decode(t, result)
	require.Equal(t, "seeker", out["user_id"])
	require.EqualValues(t, 1, out["streak"])

	result, err = h.GetStreak(context.Background(), call(map[string]any{"user_id": "other"}))
	require.NoError(t, err)
	require.Equal(t, "other", decode(t, result)["user_id"])
}

func TestProfileTools(t *testing.T) {
	h := newTestHandlers(t, nil)
	ctx := context.Background()

	result, err := h.LoadProfile(ctx, call(nil))
	require.NoError(t, err)
	out := decode(t, result)
	require.Equal(t, false, out["onboarded"])
	require.Nil(t, out["profile"])

	result, err = h.CompleteProfile(ctx, call(map[string]any{
		"fields": map[string]any{"deity": "Krishna", "age": float64(30)},
	}))
	require.NoError(t, err)
	out = decode(t, result)
	profile := out["profile"].(map[string]any)
	attrs := profile["attributes"].(map[string]any)
	require.Equal(t, "Krishna", attrs["deity"])
	require.Equal(t, "30", attrs["age"])

	result, err = h.LoadProfile(ctx, call(map[string]any{"refresh": true}))
	require.NoError(t, err)
	require.Equal(t, true, decode(t, result)["onboarded"])
}

func TestCompleteProfile_BadArguments(t *testing.T) {
	h := newTestHandlers(t, nil)
	ctx := context.Background()

	result, err := h.CompleteProfile(ctx, call(nil))
	require.NoError(t, err)
	require.Contains(t, errorText(t, result), "fields")

	result, err = h.CompleteProfile(ctx, call(map[string]any{"fields": map[string]any{"x": []any{"y"}}}))
	require.NoError(t, err)
	require.Contains(t, errorText(t, result), "fields.x")

	result, err = h.CompleteProfile(ctx, call(map[string]any{"fields": map[string]any{}}))
	require.NoError(t, err)
	require.Contains(t, errorText(t, result), core.ErrEmptyProfile.Error())
}

func TestAskLoadDelete(t *testing.T) {
	h := newTestHandlers(t, nil)
	ctx := context.Background()

	result, err := h.AskGuidance(ctx, call(map[string]any{"message": "What is my duty?"}))
	require.NoError(t, err)
	out := decode(t, result)
	reply := out["guidance"].(map[string]any)
	require.Contains(t, reply["text"], "Lord Krishna says:")
	require.Equal(t, out["user"].(map[string]any)["exchange_id"], reply["exchange_id"])

	result, err = h.LoadHistory(ctx, call(map[string]any{"local_only": true}))
	require.NoError(t, err)
	require.Len(t, decode(t, result)["entries"], 2)

	result, err = h.DeleteEntry(ctx, call(map[string]any{"entry_id": reply["id"]}))
	require.NoError(t, err)
	require.Len(t, decode(t, result)["removed"], 2)

	// the remote insert and delete must land before the session's first merge
	sess, err := h.sessions.Get("seeker")
	require.NoError(t, err)
	require.NoError(t, h.engine.Flush(ctx, sess))

	result, err = h.LoadHistory(ctx, call(nil))
	require.NoError(t, err)
	require.Empty(t, decode(t, result)["entries"])
}

func TestAskGuidance_RequiresMessage(t *testing.T) {
	h := newTestHandlers(t, nil)

	result, err := h.AskGuidance(context.Background(), call(nil))
	require.NoError(t, err)
	require.Contains(t, errorText(t, result), "message")

	result, err = h.AskGuidance(context.Background(), call(map[string]any{"message": "   "}))
	require.NoError(t, err)
	require.Contains(t, errorText(t, result), core.ErrEmptyMessage.Error())
}

func TestDeleteEntry_Unknown(t *testing.T) {
	h := newTestHandlers(t, nil)

	result, err := h.DeleteEntry(context.Background(), call(map[string]any{"entry_id": "nope"}))
	require.NoError(t, err)
	require.Contains(t, errorText(t, result), core.ErrEntryNotFound.Error())
}

func TestOfflineWithoutLocalIsUnavailable(t *testing.T) {
	h := newTestHandlers(t, remote.Offline{})

	result, err := h.LoadProfile(context.Background(), call(nil))
	require.NoError(t, err)
	require.Contains(t, errorText(t, result), "remote unavailable")
}

func TestMissingUser(t *testing.T) {
	h := newTestHandlers(t, nil)
	h.defaultUser = ""

	result, err := h.GetStreak(context.Background(), call(nil))
	require.NoError(t, err)
	require.Contains(t, errorText(t, result), "user_id is required")
}

func TestRegisterTools(t *testing.T) {
	server := mcpserver.NewMCPServer("om-test", "0.0.0", mcpserver.WithToolCapabilities(true))
	h := newTestHandlers(t, nil)

	handlers := RegisterTools(server, h.engine, h.sessions, "seeker", zerolog.Nop())
	require.NotNil(t, handlers)
}
