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

//goland:noinspection GoUnusedParameter
func (s *MCPServer) hookAfterListTools(ctx context.Context, id any, request *mcp.ListToolsRequest, result *mcp.ListToolsResult) {
	if //goland:noinspection GoBoolExpressions
	global.DumpTools && s.debug {
		s.logger.Debugf("%s: %v", request.Request.Method, result.Tools)
	} else {
		s.logger.Infof("%s: %d tools returned", request.Request.Method, len(result.Tools))
	}
}

//goland:noinspection GoUnusedParameter
func (s *MCPServer) hookAfterCallTool(ctx context.Context, id any, request *mcp.CallToolRequest, result *mcp.CallToolResult) {
	// Calculate response size
	var responseSize int
	if result != nil {
		for _, content := range result.Content {
			switch c := content.(type) {
			case mcp.TextContent:
				responseSize += len(c.Text)
			case *mcp.TextContent:
				responseSize += len(c.Text)
			}
		}
	}

	toolName := request.Params.Name
	group, _, err := global.ParseToolName(toolName)
	if err != nil {
		group = toolName
	}

	if result != nil && result.IsError {
		s.logger.Infof("tools/call: %s (%s) returned an error (%d bytes)", toolName, group, responseSize)
		return
	}

	if s.debug {
		s.logger.Debugf("tools/call: %s (%s) completed, response size: %d bytes", toolName, group, responseSize)
	} else {
		s.logger.Infof("tools/call: %s (%s) completed (%d bytes)", toolName, group, responseSize)
	}
}
