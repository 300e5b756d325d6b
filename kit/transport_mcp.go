package kit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/profilex/fault"
)

// MCPDecoder turns raw tool arguments into an endpoint request.
type MCPDecoder func(*mcp.CallToolRequest) (any, error)

// DecodeJSON decodes the arguments into a *T. Missing arguments give a
// zero T; unknown fields are rejected.
func DecodeJSON[T any](req *mcp.CallToolRequest) (any, error) {
	v := new(T)
	if len(req.Params.Arguments) == 0 {
		return v, nil
	}
	dec := json.NewDecoder(bytes.NewReader(req.Params.Arguments))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return nil, err
	}
	return v, nil
}

// RegisterMCPTool exposes endpoint as an MCP tool. The response is returned
// as JSON text. Failures become tool errors whose text starts with the
// error kind ("config: ...", "timeout: ..."), so clients can tell a bad
// identity from a source outage.
func RegisterMCPTool(srv *mcp.Server, tool *mcp.Tool, endpoint Endpoint, decode MCPDecoder) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		in, err := decode(req)
		if err != nil {
			return toolError(fault.KindConfig, fmt.Errorf("invalid arguments: %w", err)), nil
		}
		resp, err := endpoint(WithTransport(ctx, "mcp"), in)
		if err != nil {
			return toolError(fault.KindOf(err), err), nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			return toolError(fault.KindInternal, fmt.Errorf("marshal: %w", err)), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func toolError(kind fault.Kind, err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(fmt.Errorf("%s: %s", kind, err.Error()))
	return &res
}
