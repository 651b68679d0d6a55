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

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerSourceTools() {
	s.addTool(mcp.Tool{
		Name:        "list_data_sources",
		Description: "List the CDM data sources configured in the WebAPI instance.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleListDataSources)

	s.addTool(mcp.Tool{
		Name:        "get_source_details",
		Description: "Get the details of one CDM data source by its source key.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"source_key": map[string]interface{}{
					"type":        "string",
					"description": "Source key (defaults to the server's configured source)",
				},
			},
		},
	}, s.handleGetSourceDetails)
}

func (s *Server) handleListDataSources(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sources, err := s.webapi.ListSources(ctx)
	if err != nil {
		return errorFrom(err), nil
	}
	return jsonResponse(sources), nil
}

func (s *Server) handleGetSourceDetails(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceKey := request.GetString("source_key", s.sourceKey)
	if sourceKey == "" {
		return errorResponse("No 'source_key' given and no default source configured"), nil
	}

	source, err := s.webapi.GetSource(ctx, sourceKey)
	if err != nil {
		return errorFrom(err), nil
	}
	return jsonResponse(source), nil
}
