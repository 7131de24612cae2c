package tools

import (
	"context"
	"net/url"

	"github.com/mark3labs/mcp-go/mcp"
)

// GetHandler reads one resource addressed by an identifier argument, e.g.
// /api/v2/campaigns/{id}.
type GetHandler struct {
	Resource string
	IDArg    string
	Service  Getter
}

func (h *GetHandler) ToolAdapter(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := parseStringArgument(req.GetArguments(), h.IDArg)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if id == "" {
		return mcp.NewToolResultError(h.IDArg + " parameter is required"), nil
	}

	body, err := h.Service.Get(ctx, "/api/v2/"+h.Resource+"/"+url.PathEscape(id), nil)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}
