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

func (s *Server) registerPersistenceTools() {
	s.addTool(mcp.Tool{
		Name:        "save_cohort_definition",
		Description: "Save the session's cohort definition to the WebAPI instance. The definition is validated first; a definition with violations is not saved.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session id from start_cohort_definition",
				},
				"description": map[string]interface{}{
					"type":        "string",
					"description": "Optional description stored alongside the definition",
				},
			},
			Required: []string{"session_id"},
		},
	}, s.handleSaveCohortDefinition)

	s.addTool(mcp.Tool{
		Name:        "load_existing_cohort",
		Description: "Load a cohort definition stored in the WebAPI instance into a new session for inspection or modification.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"cohort_id": map[string]interface{}{
					"type":        "integer",
					"description": "WebAPI cohort definition id",
				},
			},
			Required: []string{"cohort_id"},
		},
	}, s.handleLoadExistingCohort)

	s.addTool(mcp.Tool{
		Name:        "list_cohorts",
		Description: "List the cohort definitions stored in the WebAPI instance.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleListCohorts)
}

func (s *Server) handleSaveCohortDefinition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return errorResponse("Missing or invalid 'session_id' argument"), nil
	}

	def, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return errorFrom(err), nil
	}

	result, err := cohort.Validate(def)
	if err != nil {
		return errorFrom(err), nil
	}
	if !result.Valid {
		return jsonResponse(map[string]any{
			"saved":  false,
			"errors": result.Errors,
		}), nil
	}

	saved, err := s.webapi.CreateCohort(ctx, def.Name, request.GetString("description", ""), def)
	if err != nil {
		return errorFrom(err), nil
	}

	return jsonResponse(map[string]any{
		"saved":     true,
		"cohort_id": saved.ID,
		"name":      saved.Name,
	}), nil
}

func (s *Server) handleLoadExistingCohort(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cohortID, err := request.RequireInt("cohort_id")
	if err != nil {
		return errorResponse("Missing or invalid 'cohort_id' argument"), nil
	}

	resource, err := s.webapi.GetCohort(ctx, cohortID)
	if err != nil {
		return errorFrom(err), nil
	}

	def, err := resource.Definition()
	if err != nil {
		return errorFrom(fmt.Errorf("cohort %d has an unreadable expression: %w", cohortID, err)), nil
	}

	sessionID, err := s.sessions.Create(ctx, def)
	if err != nil {
		return errorFrom(err), nil
	}
	s.metrics.SetActiveSessions(s.sessions.Len())

	return jsonResponse(map[string]any{
		"session_id": sessionID,
		"cohort_id":  cohortID,
		"definition": def,
	}), nil
}

func (s *Server) handleListCohorts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cohorts, err := s.webapi.ListCohorts(ctx)
	if err != nil {
		return errorFrom(err), nil
	}
	return jsonResponse(map[string]any{
		"count":   len(cohorts),
		"cohorts": cohorts,
	}), nil
}
