// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerInfoTools() {
	s.addTool(mcp.Tool{
		Name:        "get_webapi_info",
		Description: "Report the connected WebAPI instance's version information.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleGetWebAPIInfo)

	s.addTool(mcp.Tool{
		Name:        "check_webapi_health",
		Description: "Check that the WebAPI instance is reachable and responding.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleCheckWebAPIHealth)
}

func (s *Server) handleGetWebAPIInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	info, err := s.webapi.Info(ctx)
	if err != nil {
		return errorFrom(err), nil
	}
	return jsonResponse(map[string]any{
		"base_url": s.webapi.BaseURL(),
		"info":     info,
	}), nil
}

func (s *Server) handleCheckWebAPIHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.webapi.Healthy(ctx); err != nil {
		return errorResponse(fmt.Sprintf("WebAPI at %s is not healthy: %v", s.webapi.BaseURL(), err)), nil
	}
	return textResponse(fmt.Sprintf("WebAPI at %s is healthy", s.webapi.BaseURL())), nil
}
