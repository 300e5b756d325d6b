// Package mcptool registers the extract_profile and list_runs MCP tools.
package mcptool

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/profilex/kit"
	"github.com/hazyhaar/profilex/service"
)

// Register adds the profilex tools to srv.
func Register(srv *mcp.Server, svc *service.Service) {
	registerExtract(srv, svc)
	registerListRuns(srv, svc)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func registerExtract(srv *mcp.Server, svc *service.Service) {
	tool := &mcp.Tool{
		Name:        "extract_profile",
		Description: "Aggregate a person's public profile from the social site and the code host. Returns the canonical profile with per-source reports.",
		InputSchema: inputSchema(map[string]any{
			"name":        map[string]any{"type": "string", "description": "Display name of the person"},
			"profile_url": map[string]any{"type": "string", "description": "Social profile URL"},
			"username":    map[string]any{"type": "string", "description": "Code host login"},
		}, nil),
	}
	kit.RegisterMCPTool(srv, tool, svc.ExtractEndpoint(), kit.DecodeJSON[service.ExtractRequest])
}

type listReq struct {
	Limit int `json:"limit"`
}

func registerListRuns(srv *mcp.Server, svc *service.Service) {
	tool := &mcp.Tool{
		Name:        "list_runs",
		Description: "List archived extraction runs, newest first.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Maximum runs to return (default 50)"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		runs, err := svc.Runs(ctx, req.(*listReq).Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"runs": runs}, nil
	}
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeJSON[listReq])
}
