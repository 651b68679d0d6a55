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

func (s *Server) registerJobTools() {
	s.addTool(mcp.Tool{
		Name:        "get_job_status",
		Description: "Get the status of a WebAPI job execution (e.g. a cohort generation) by execution id.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"execution_id": map[string]interface{}{
					"type":        "integer",
					"description": "Job execution id",
				},
			},
			Required: []string{"execution_id"},
		},
	}, s.handleGetJobStatus)

	s.addTool(mcp.Tool{
		Name:        "list_recent_jobs",
		Description: "List recent WebAPI job executions, newest first.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum jobs to return (default 20)",
				},
			},
		},
	}, s.handleListRecentJobs)

	s.addTool(mcp.Tool{
		Name:        "cancel_job",
		Description: "Request cancellation of a running WebAPI job execution.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"execution_id": map[string]interface{}{
					"type":        "integer",
					"description": "Job execution id",
				},
			},
			Required: []string{"execution_id"},
		},
	}, s.handleCancelJob)
}

func (s *Server) handleGetJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	executionID, err := request.RequireInt("execution_id")
	if err != nil {
		return errorResponse("Missing or invalid 'execution_id' argument"), nil
	}

	job, err := s.webapi.JobStatus(ctx, int64(executionID))
	if err != nil {
		return errorFrom(err), nil
	}
	return jsonResponse(job), nil
}

func (s *Server) handleListRecentJobs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", 20)

	jobs, err := s.webapi.RecentJobs(ctx, limit)
	if err != nil {
		return errorFrom(err), nil
	}
	return jsonResponse(map[string]any{
		"count": len(jobs),
		"jobs":  jobs,
	}), nil
}

func (s *Server) handleCancelJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	executionID, err := request.RequireInt("execution_id")
	if err != nil {
		return errorResponse("Missing or invalid 'execution_id' argument"), nil
	}

	if err := s.webapi.CancelJob(ctx, int64(executionID)); err != nil {
		return errorFrom(err), nil
	}
	return textResponse(fmt.Sprintf("Cancellation requested for job execution %d", executionID)), nil
}
