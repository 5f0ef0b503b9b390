/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/PivotLLM/LedgerMCP/global"
)

// AddTools registers the tools exposed by each provider with the MCP server.
func (s *MCPServer) AddTools() {
	for _, provider := range s.toolProviders {
		for _, tool := range provider.RegisterTools() {
			var opts []mcp.ToolOption
			opts = append(opts, mcp.WithDescription(tool.Description))

			for _, p := range tool.Parameters {
				var propOpts []mcp.PropertyOption
				propOpts = append(propOpts, mcp.Description(p.EnhancedDescription()))
				if p.Required {
					propOpts = append(propOpts, mcp.Required())
				}

				switch p.Type {
				case "number", "integer":
					opts = append(opts, mcp.WithNumber(p.Name, propOpts...))
				case "boolean":
					opts = append(opts, mcp.WithBoolean(p.Name, propOpts...))
				case "array":
					opts = append(opts, mcp.WithArray(p.Name, propOpts...))
				case "object":
					opts = append(opts, mcp.WithObject(p.Name, propOpts...))
				default:
					opts = append(opts, mcp.WithString(p.Name, propOpts...))
				}
			}

			s.srv.AddTool(
				mcp.NewTool(tool.Name, opts...),
				s.wrapHandler(tool.Name, tool.Handler))
		}
	}
}

// wrapHandler adapts a global.ToolHandler to the mcp-go handler signature.
func (s *MCPServer) wrapHandler(name string, handler global.ToolHandler) func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		options := request.GetArguments()
		if options == nil {
			options = make(map[string]any)
		}

		// Make the request context available to handlers that honor deadlines
		ctx = context.WithValue(ctx, global.ToolNameKey, name)
		options["__mcp_context"] = ctx

		result, err := handler(options)
		if err != nil {
			s.logger.Errorf("Tool %s failed: %v", name, err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(result), nil
	}
}
