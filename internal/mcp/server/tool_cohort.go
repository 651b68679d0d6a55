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
	"sort"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cohortbridge/cohortbridge/pkg/cohort"
)

func (s *Server) registerCohortTools() {
	s.addTool(mcp.Tool{
		Name:        "start_cohort_definition",
		Description: "Start a new in-progress cohort definition and return the session id that subsequent building tools operate on.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Human-readable cohort name, e.g. 'New users of metformin'",
				},
			},
			Required: []string{"name"},
		},
	}, s.handleStartCohortDefinition)

	s.addTool(mcp.Tool{
		Name:        "define_primary_criteria",
		Description: "Define the index event of the cohort: the domain event, drawn from an attached concept set, whose occurrence makes a person enter the cohort. Calling this again replaces the previous primary criteria.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session id from start_cohort_definition",
				},
				"concept_set_id": map[string]interface{}{
					"type":        "string",
					"description": "Local id of an attached concept set",
				},
				"domain": map[string]interface{}{
					"type":        "string",
					"description": "Event domain: Condition, Drug, Procedure, Observation, Measurement, Visit, or Device",
				},
				"occurrence_type": map[string]interface{}{
					"type":        "string",
					"description": "Which occurrence indexes the person: First, Any, or Last (default: First)",
				},
				"observation_window_start": map[string]interface{}{
					"type":        "integer",
					"description": "Required prior observation in days before index (omit for unbounded)",
				},
				"observation_window_end": map[string]interface{}{
					"type":        "integer",
					"description": "Required observation in days after index (omit for unbounded)",
				},
			},
			Required: []string{"session_id", "concept_set_id", "domain"},
		},
	}, s.handleDefinePrimaryCriteria)

	s.addTool(mcp.Tool{
		Name:        "add_inclusion_rule",
		Description: "Append an inclusion rule to the cohort definition. Rules filter the index population by requiring (or forbidding) events from a concept set within a window relative to the index date.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session id from start_cohort_definition",
				},
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Rule name, unique within the definition",
				},
				"concept_set_id": map[string]interface{}{
					"type":        "string",
					"description": "Local id of an attached concept set",
				},
				"occurrence_count": map[string]interface{}{
					"type":        "integer",
					"description": "Event count the rule tests against (default: 1; 0 with operator '=' expresses absence)",
				},
				"occurrence_operator": map[string]interface{}{
					"type":        "string",
					"description": "Comparison operator: >=, <=, =, >, < (default: >=)",
				},
				"window_start_days": map[string]interface{}{
					"type":        "integer",
					"description": "Window start in days relative to index, negative for before (omit for unbounded)",
				},
				"window_end_days": map[string]interface{}{
					"type":        "integer",
					"description": "Window end in days relative to index (omit for unbounded)",
				},
			},
			Required: []string{"session_id", "name", "concept_set_id"},
		},
	}, s.handleAddInclusionRule)

	s.addTool(mcp.Tool{
		Name:        "validate_cohort_definition",
		Description: "Validate the session's cohort definition and report every violation at once: missing primary criteria, dangling concept set references, empty referenced sets, duplicate rule names, and bad windows.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session id from start_cohort_definition",
				},
			},
			Required: []string{"session_id"},
		},
	}, s.handleValidateCohortDefinition)

	s.addTool(mcp.Tool{
		Name:        "estimate_cohort_size",
		Description: "Summarize how the session's cohort definition will constrain its population without generating it: concept counts per attached set, inclusion rule count, and whether the index event is defined. Heuristic only; run a generation against the source for real counts.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session id from start_cohort_definition",
				},
				"source_key": map[string]interface{}{
					"type":        "string",
					"description": "CDM source the estimate is scoped to (default: the configured source)",
				},
			},
			Required: []string{"session_id"},
		},
	}, s.handleEstimateCohortSize)

	s.addTool(mcp.Tool{
		Name:        "get_cohort_definition",
		Description: "Return the session's current cohort definition as JSON.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session id from start_cohort_definition",
				},
			},
			Required: []string{"session_id"},
		},
	}, s.handleGetCohortDefinition)

	s.addTool(mcp.Tool{
		Name:        "compare_cohorts",
		Description: "Compare two in-progress cohort definitions field by field. Reports differing names, primary criteria, concept sets (by local id), and inclusion rules (matched by name).",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id_a": map[string]interface{}{
					"type":        "string",
					"description": "First session id",
				},
				"session_id_b": map[string]interface{}{
					"type":        "string",
					"description": "Second session id",
				},
			},
			Required: []string{"session_id_a", "session_id_b"},
		},
	}, s.handleCompareCohorts)

	s.addTool(mcp.Tool{
		Name:        "clone_cohort",
		Description: "Clone the session's cohort definition under a new name into a fresh session, so a variant can be built without touching the original.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session id of the definition to clone",
				},
				"new_name": map[string]interface{}{
					"type":        "string",
					"description": "Name of the clone; must differ from the original",
				},
			},
			Required: []string{"session_id", "new_name"},
		},
	}, s.handleCloneCohort)
}

func (s *Server) handleStartCohortDefinition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return errorResponse("Missing or invalid 'name' argument"), nil
	}

	def, err := cohort.Start(name)
	if err != nil {
		return errorFrom(err), nil
	}

	sessionID, err := s.sessions.Create(ctx, def)
	if err != nil {
		return errorFrom(err), nil
	}
	s.metrics.SetActiveSessions(s.sessions.Len())

	return jsonResponse(map[string]any{
		"session_id": sessionID,
		"definition": def,
	}), nil
}

// windowFromArgs builds a criterion window from optional day-offset
// arguments. Omitted bounds stay nil (unbounded).
func windowFromArgs(request mcp.CallToolRequest, startKey, endKey string) (cohort.CriterionWindow, error) {
	start, err := optionalIntArg(request, startKey)
	if err != nil {
		return cohort.CriterionWindow{}, err
	}
	end, err := optionalIntArg(request, endKey)
	if err != nil {
		return cohort.CriterionWindow{}, err
	}
	return cohort.CriterionWindow{StartDays: start, EndDays: end}, nil
}

func (s *Server) handleDefinePrimaryCriteria(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return errorResponse("Missing or invalid 'session_id' argument"), nil
	}
	conceptSetID, err := request.RequireString("concept_set_id")
	if err != nil {
		return errorResponse("Missing or invalid 'concept_set_id' argument"), nil
	}
	domainArg, err := request.RequireString("domain")
	if err != nil {
		return errorResponse("Missing or invalid 'domain' argument"), nil
	}

	domain, err := cohort.ParseDomain(domainArg)
	if err != nil {
		return errorFrom(err), nil
	}
	occurrence, err := cohort.ParseOccurrenceType(request.GetString("occurrence_type", string(cohort.OccurrenceFirst)))
	if err != nil {
		return errorFrom(err), nil
	}
	window, err := windowFromArgs(request, "observation_window_start", "observation_window_end")
	if err != nil {
		return errorFrom(err), nil
	}

	def, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return errorFrom(err), nil
	}

	criteria, err := cohort.DefinePrimaryCriteria(conceptSetID, domain, occurrence, window)
	if err != nil {
		return errorFrom(err), nil
	}

	updated, err := def.SetPrimaryCriteria(criteria)
	if err != nil {
		return errorFrom(err), nil
	}
	if err := s.sessions.Put(ctx, sessionID, updated); err != nil {
		return errorFrom(err), nil
	}

	return jsonResponse(map[string]any{
		"session_id":       sessionID,
		"primary_criteria": updated.PrimaryCriteria,
	}), nil
}

func (s *Server) handleAddInclusionRule(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return errorResponse("Missing or invalid 'session_id' argument"), nil
	}
	name, err := request.RequireString("name")
	if err != nil {
		return errorResponse("Missing or invalid 'name' argument"), nil
	}
	conceptSetID, err := request.RequireString("concept_set_id")
	if err != nil {
		return errorResponse("Missing or invalid 'concept_set_id' argument"), nil
	}

	operator, err := cohort.ParseOperator(request.GetString("occurrence_operator", string(cohort.OpAtLeast)))
	if err != nil {
		return errorFrom(err), nil
	}
	window, err := windowFromArgs(request, "window_start_days", "window_end_days")
	if err != nil {
		return errorFrom(err), nil
	}

	def, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return errorFrom(err), nil
	}

	updated, err := def.AppendInclusionRule(cohort.InclusionRule{
		Name:               name,
		ConceptSetID:       conceptSetID,
		OccurrenceCount:    request.GetInt("occurrence_count", 1),
		OccurrenceOperator: operator,
		Window:             window,
	})
	if err != nil {
		return errorFrom(err), nil
	}
	if err := s.sessions.Put(ctx, sessionID, updated); err != nil {
		return errorFrom(err), nil
	}

	return jsonResponse(map[string]any{
		"session_id":      sessionID,
		"rule_count":      len(updated.InclusionRules),
		"inclusion_rules": updated.InclusionRules,
	}), nil
}

func (s *Server) handleValidateCohortDefinition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
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

	return jsonResponse(result), nil
}

func (s *Server) handleEstimateCohortSize(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return errorResponse("Missing or invalid 'session_id' argument"), nil
	}
	sourceKey := request.GetString("source_key", s.sourceKey)
	if sourceKey == "" {
		return errorResponse("No source key: pass 'source_key' or configure a default CDM source"), nil
	}

	def, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return errorFrom(err), nil
	}

	localIDs := make([]string, 0, len(def.ConceptSets))
	for id := range def.ConceptSets {
		localIDs = append(localIDs, id)
	}
	sort.Strings(localIDs)

	sets := make([]map[string]any, 0, len(localIDs))
	totalConcepts := 0
	for _, id := range localIDs {
		n := def.ConceptSets[id].IncludedCount()
		totalConcepts += n
		sets = append(sets, map[string]any{
			"local_id":      id,
			"concept_count": n,
		})
	}

	return jsonResponse(map[string]any{
		"session_id":               sessionID,
		"source_key":               sourceKey,
		"concept_sets":             sets,
		"total_concepts":           totalConcepts,
		"inclusion_rule_count":     len(def.InclusionRules),
		"primary_criteria_defined": def.PrimaryCriteria != nil,
		"note":                     "Heuristic summary only. Broader windows and more concepts widen the cohort; each inclusion rule narrows it. For real counts, generate the cohort against the source.",
	}), nil
}

func (s *Server) handleGetCohortDefinition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return errorResponse("Missing or invalid 'session_id' argument"), nil
	}

	def, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return errorFrom(err), nil
	}

	return jsonResponse(def), nil
}

func (s *Server) handleCompareCohorts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionA, err := request.RequireString("session_id_a")
	if err != nil {
		return errorResponse("Missing or invalid 'session_id_a' argument"), nil
	}
	sessionB, err := request.RequireString("session_id_b")
	if err != nil {
		return errorResponse("Missing or invalid 'session_id_b' argument"), nil
	}

	defA, err := s.sessions.Get(ctx, sessionA)
	if err != nil {
		return errorFrom(err), nil
	}
	defB, err := s.sessions.Get(ctx, sessionB)
	if err != nil {
		return errorFrom(err), nil
	}

	diffs, err := cohort.Compare(defA, defB)
	if err != nil {
		return errorFrom(err), nil
	}

	return jsonResponse(map[string]any{
		"identical":  len(diffs) == 0,
		"diff_count": len(diffs),
		"diffs":      diffs,
	}), nil
}

func (s *Server) handleCloneCohort(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return errorResponse("Missing or invalid 'session_id' argument"), nil
	}
	newName, err := request.RequireString("new_name")
	if err != nil {
		return errorResponse("Missing or invalid 'new_name' argument"), nil
	}

	def, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return errorFrom(err), nil
	}

	clone, err := cohort.Clone(def, newName)
	if err != nil {
		return errorFrom(err), nil
	}

	cloneSession, err := s.sessions.Create(ctx, clone)
	if err != nil {
		return errorFrom(err), nil
	}
	s.metrics.SetActiveSessions(s.sessions.Len())

	return jsonResponse(map[string]any{
		"session_id": cloneSession,
		"definition": clone,
	}), nil
}
