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

const defaultSearchLimit = 20

func (s *Server) registerVocabularyTools() {
	s.addTool(mcp.Tool{
		Name:        "search_concepts",
		Description: "Search the OMOP vocabulary for clinical concepts by keyword. Returns concepts in relevance order with their ids, domains, and standard-concept flags.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search term, e.g. 'type 2 diabetes'",
				},
				"domain": map[string]interface{}{
					"type":        "string",
					"description": "Filter by OMOP domain (Condition, Drug, Procedure, Observation, Measurement, Visit, Device)",
				},
				"vocabulary": map[string]interface{}{
					"type":        "string",
					"description": "Filter by vocabulary id (e.g. 'SNOMED', 'RxNorm')",
				},
				"concept_class": map[string]interface{}{
					"type":        "string",
					"description": "Filter by concept class (e.g. 'Clinical Finding')",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": fmt.Sprintf("Maximum results to return (default %d, max %d)", defaultSearchLimit, cohort.MaxSearchLimit),
				},
			},
			Required: []string{"query"},
		},
	}, s.handleSearchConcepts)

	s.addTool(mcp.Tool{
		Name:        "get_concept_details",
		Description: "Fetch the full vocabulary record for a single concept id, including concept class, vocabulary, and standard-concept standing.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"concept_id": map[string]interface{}{
					"type":        "integer",
					"description": "OMOP concept id, e.g. 201826",
				},
			},
			Required: []string{"concept_id"},
		},
	}, s.handleGetConceptDetails)

	s.addTool(mcp.Tool{
		Name:        "list_domains",
		Description: "List the OMOP domains known to the connected WebAPI instance.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleListDomains)

	s.addTool(mcp.Tool{
		Name:        "list_vocabularies",
		Description: "List the vocabularies installed in the connected WebAPI instance.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleListVocabularies)

	s.addTool(mcp.Tool{
		Name:        "browse_concept_hierarchy",
		Description: "List the descendant concepts of a concept in the vocabulary hierarchy. Useful for checking what include_descendants would pull in.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"concept_id": map[string]interface{}{
					"type":        "integer",
					"description": "OMOP concept id to expand",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum descendants to return (default 50)",
				},
			},
			Required: []string{"concept_id"},
		},
	}, s.handleBrowseHierarchy)
}

func (s *Server) handleSearchConcepts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return errorResponse("Missing or invalid 'query' argument"), nil
	}

	filters := cohort.SearchFilters{
		Domain:       request.GetString("domain", ""),
		Vocabulary:   request.GetString("vocabulary", ""),
		ConceptClass: request.GetString("concept_class", ""),
	}
	limit := request.GetInt("limit", defaultSearchLimit)
	if limit < 1 || limit > cohort.MaxSearchLimit {
		return errorResponse(fmt.Sprintf("'limit' must be between 1 and %d", cohort.MaxSearchLimit)), nil
	}

	concepts, err := s.webapi.SearchConcepts(ctx, query, filters, limit)
	if err != nil {
		return errorFrom(err), nil
	}

	return jsonResponse(map[string]any{
		"query":    query,
		"count":    len(concepts),
		"concepts": concepts,
	}), nil
}

func (s *Server) handleGetConceptDetails(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conceptID, err := request.RequireInt("concept_id")
	if err != nil {
		return errorResponse("Missing or invalid 'concept_id' argument"), nil
	}

	concept, err := s.webapi.GetConcept(ctx, conceptID)
	if err != nil {
		return errorFrom(err), nil
	}

	return jsonResponse(concept), nil
}

func (s *Server) handleListDomains(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	domains, err := s.webapi.ListDomains(ctx)
	if err != nil {
		return errorFrom(err), nil
	}
	return jsonResponse(domains), nil
}

func (s *Server) handleListVocabularies(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vocabularies, err := s.webapi.ListVocabularies(ctx)
	if err != nil {
		return errorFrom(err), nil
	}
	return jsonResponse(vocabularies), nil
}

func (s *Server) handleBrowseHierarchy(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conceptID, err := request.RequireInt("concept_id")
	if err != nil {
		return errorResponse("Missing or invalid 'concept_id' argument"), nil
	}
	limit := request.GetInt("limit", 50)

	descendants, err := s.webapi.DescendantConcepts(ctx, conceptID)
	if err != nil {
		return errorFrom(err), nil
	}

	total := len(descendants)
	if limit > 0 && total > limit {
		descendants = descendants[:limit]
	}

	return jsonResponse(map[string]any{
		"concept_id":  conceptID,
		"total":       total,
		"descendants": descendants,
	}), nil
}
