package mcptool

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/profilex/history"
	"github.com/hazyhaar/profilex/idgen"
	"github.com/hazyhaar/profilex/internal/dbopen"
	"github.com/hazyhaar/profilex/pipeline"
	"github.com/hazyhaar/profilex/profile"
	"github.com/hazyhaar/profilex/service"
)

var testMCPImpl = &mcp.Implementation{Name: "profilex-test", Version: "0.1.0"}

type handleAdapter struct{}

func (handleAdapter) Name() string                        { return "code" }
func (handleAdapter) Applicable(id profile.Identity) bool { return id.Username != "" }
func (handleAdapter) FetchProfile(_ context.Context, id profile.Identity) (profile.Fragment, profile.SourceRunReport) {
	f := profile.NewFragment("code")
	f.Basic.Name = "@" + id.Username
	f.Mark(profile.SectionBasic, profile.Partial)
	return f, profile.SourceRunReport{Source: "code", Status: profile.StatusPartial}
}

func mcpSession(t *testing.T) *mcp.ClientSession {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	p, err := pipeline.New(pipeline.Config{Logger: log}, pipeline.WithAdapters(handleAdapter{}), pipeline.WithIDs(idgen.Sequence("run")))
	require.NoError(t, err)
	store, err := history.New(dbopen.OpenMemory(t))
	require.NoError(t, err)

	srv := mcp.NewServer(testMCPImpl, nil)
	Register(srv, service.New(p, store, log))

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	session, err := mcp.NewClient(testMCPImpl, nil).Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected TextContent")
	return tc.Text, result.IsError
}

func TestExtractProfile(t *testing.T) {
	session := mcpSession(t)

	text, isErr := callTool(t, session, "extract_profile", map[string]any{"name": "Ada", "username": "ada"})
	require.False(t, isErr, text)
	var resp service.ExtractResponse
	require.NoError(t, json.Unmarshal([]byte(text), &resp))
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, "@ada", resp.Profile.Basic.Name)
	assert.Equal(t, profile.Partial, resp.Profile.Completeness[profile.SectionBasic])

	text, isErr = callTool(t, session, "list_runs", map[string]any{})
	require.False(t, isErr, text)
	assert.Contains(t, text, `"run_id":"run-1"`)
}

func TestExtractProfile_EmptyIdentityIsToolError(t *testing.T) {
	text, isErr := callTool(t, mcpSession(t), "extract_profile", map[string]any{})
	assert.True(t, isErr)
	assert.Contains(t, text, "identity")
}

func TestToolErrors_CarryKind(t *testing.T) {
	// WHAT: Tool error text starts with the error kind.
	// WHY: MCP clients only see text; the kind tells a bad request from an outage.
	session := mcpSession(t)

	text, isErr := callTool(t, session, "extract_profile", map[string]any{})
	assert.True(t, isErr)
	assert.True(t, strings.HasPrefix(text, "config: "), "text: %s", text)

	text, isErr = callTool(t, session, "list_runs", map[string]any{"limit": 5, "since": "yesterday"})
	assert.True(t, isErr)
	assert.True(t, strings.HasPrefix(text, "config: invalid arguments"), "text: %s", text)
}
