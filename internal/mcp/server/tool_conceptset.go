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

	"github.com/cohortbridge/cohortbridge/pkg/cohort"
)

func (s *Server) registerConceptSetTools() {
	s.addTool(mcp.Tool{
		Name:        "create_concept_set",
		Description: "Build a concept set from explicit concept ids and attach it to the session's cohort definition. Ids that do not resolve are reported as unresolved, not fatal.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session id from start_cohort_definition",
				},
				"local_id": map[string]interface{}{
					"type":        "string",
					"description": "Local identifier for this concept set (referenced by criteria)",
				},
				"concept_ids": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "integer"},
					"description": "OMOP concept ids to include",
				},
				"include_descendants": map[string]interface{}{
					"type":        "boolean",
					"description": "Include descendant concepts (default: true)",
					"default":     true,
				},
				"include_mapped": map[string]interface{}{
					"type":        "boolean",
					"description": "Include source concepts mapped to these (default: false)",
				},
			},
			Required: []string{"session_id", "local_id", "concept_ids"},
		},
	}, s.handleCreateConceptSet)

	s.addTool(mcp.Tool{
		Name:        "create_concept_set_from_search",
		Description: "Search the vocabulary and build a concept set from the top results, attaching it to the session's cohort definition. An empty search yields an empty concept set.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session id from start_cohort_definition",
				},
				"local_id": map[string]interface{}{
					"type":        "string",
					"description": "Local identifier for this concept set",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Vocabulary search term",
				},
				"domain": map[string]interface{}{
					"type":        "string",
					"description": "Filter by OMOP domain",
				},
				"vocabulary": map[string]interface{}{
					"type":        "string",
					"description": "Filter by vocabulary id",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": fmt.Sprintf("Maximum search results to include (default %d)", defaultSearchLimit),
				},
				"include_descendants": map[string]interface{}{
					"type":        "boolean",
					"description": "Include descendant concepts (default: true)",
					"default":     true,
				},
			},
			Required: []string{"session_id", "local_id", "query"},
		},
	}, s.handleCreateConceptSetFromSearch)
}

func (s *Server) handleCreateConceptSet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return errorResponse("Missing or invalid 'session_id' argument"), nil
	}
	localID, err := request.RequireString("local_id")
	if err != nil {
		return errorResponse("Missing or invalid 'local_id' argument"), nil
	}
	conceptIDs, err := intSliceArg(request, "concept_ids")
	if err != nil {
		return errorFrom(err), nil
	}

	def, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return errorFrom(err), nil
	}

	includeDescendants := request.GetBool("include_descendants", true)
	includeMapped := request.GetBool("include_mapped", false)

	expr, err := cohort.BuildFromIDs(ctx, s.webapi, conceptIDs, includeDescendants, includeMapped)
	if err != nil {
		return errorFrom(err), nil
	}

	updated, err := def.AttachConceptSet(localID, expr)
	if err != nil {
		return errorFrom(err), nil
	}
	if err := s.sessions.Put(ctx, sessionID, updated); err != nil {
		return errorFrom(err), nil
	}

	return jsonResponse(map[string]any{
		"session_id":     sessionID,
		"local_id":       localID,
		"included_count": expr.IncludedCount(),
		"unresolved_ids": expr.UnresolvedIDs,
		"expression":     expr,
	}), nil
}

func (s *Server) handleCreateConceptSetFromSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return errorResponse("Missing or invalid 'session_id' argument"), nil
	}
	localID, err := request.RequireString("local_id")
	if err != nil {
		return errorResponse("Missing or invalid 'local_id' argument"), nil
	}
	query, err := request.RequireString("query")
	if err != nil {
		return errorResponse("Missing or invalid 'query' argument"), nil
	}

	def, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return errorFrom(err), nil
	}

	filters := cohort.SearchFilters{
		Domain:     request.GetString("domain", ""),
		Vocabulary: request.GetString("vocabulary", ""),
	}
	limit := request.GetInt("limit", defaultSearchLimit)
	includeDescendants := request.GetBool("include_descendants", true)

	expr, err := cohort.BuildFromSearch(ctx, s.webapi, query, filters, limit, includeDescendants, false)
	if err != nil {
		return errorFrom(err), nil
	}

	updated, err := def.AttachConceptSet(localID, expr)
	if err != nil {
		return errorFrom(err), nil
	}
	if err := s.sessions.Put(ctx, sessionID, updated); err != nil {
		return errorFrom(err), nil
	}

	return jsonResponse(map[string]any{
		"session_id":     sessionID,
		"local_id":       localID,
		"query":          query,
		"included_count": expr.IncludedCount(),
		"expression":     expr,
	}), nil
}
