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
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortbridge/cohortbridge/pkg/httpclient"
	"github.com/cohortbridge/cohortbridge/pkg/webapi"
)

// fakeWebAPI serves a tiny slice of the WebAPI surface: a vocabulary with a
// few known concepts and a cohort definition store.
func fakeWebAPI(t *testing.T) *httptest.Server {
	t.Helper()

	concepts := map[int]webapi.Concept{
		201826: {ConceptID: 201826, ConceptName: "Type 2 diabetes mellitus", DomainID: "Condition", VocabularyID: "SNOMED", StandardConcept: "S"},
		1503297: {ConceptID: 1503297, ConceptName: "metformin", DomainID: "Drug", VocabularyID: "RxNorm", StandardConcept: "S"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/vocabulary/concept/", func(w http.ResponseWriter, r *http.Request) {
		var id int
		if _, err := fmt.Sscanf(r.URL.Path, "/vocabulary/concept/%d", &id); err != nil {
			http.NotFound(w, r)
			return
		}
		concept, ok := concepts[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(concept)
	})
	mux.HandleFunc("/vocabulary/search", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]webapi.Concept{concepts[201826]})
	})
	mux.HandleFunc("/cohortdefinition", func(w http.ResponseWriter, r *http.Request) {
		var payload webapi.CohortResource
		json.NewDecoder(r.Body).Decode(&payload)
		payload.ID = 42
		json.NewEncoder(w).Encode(payload)
	})
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(webapi.Info{Version: "2.14.0"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	upstream := fakeWebAPI(t)

	httpCfg := httpclient.DefaultConfig()
	httpCfg.RetryAttempts = 0
	httpCfg.Timeout = 5 * time.Second
	client, err := webapi.New(webapi.Config{BaseURL: upstream.URL, HTTP: httpCfg})
	require.NoError(t, err)

	s, err := NewServer(ServerConfig{WebAPI: client})
	require.NoError(t, err)
	return s
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

// resultJSON decodes the text content of a successful tool result.
func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotNil(t, result)
	require.False(t, result.IsError, "unexpected tool error: %s", resultText(t, result))

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	return out
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func TestNewServer_RequiresWebAPI(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	require.Error(t, err)
}

func TestBuildDiabetesCohortFlow(t *testing.T) {
	s := newTestServer(t)
	ctx := t.Context()

	// Start a definition.
	result, err := s.handleStartCohortDefinition(ctx, callRequest("start_cohort_definition", map[string]any{
		"name": "Diabetes Cohort",
	}))
	require.NoError(t, err)
	started := resultJSON(t, result)
	sessionID := started["session_id"].(string)
	require.NotEmpty(t, sessionID)

	// Attach a concept set from explicit ids, one of them unresolvable.
	result, err = s.handleCreateConceptSet(ctx, callRequest("create_concept_set", map[string]any{
		"session_id":  sessionID,
		"local_id":    "t2d",
		"concept_ids": []any{float64(201826), float64(999999999)},
	}))
	require.NoError(t, err)
	created := resultJSON(t, result)
	assert.Equal(t, float64(1), created["included_count"])
	assert.Len(t, created["unresolved_ids"], 1)

	// Index event: first condition occurrence.
	result, err = s.handleDefinePrimaryCriteria(ctx, callRequest("define_primary_criteria", map[string]any{
		"session_id":               sessionID,
		"concept_set_id":           "t2d",
		"domain":                   "Condition",
		"observation_window_start": float64(-365),
		"observation_window_end":   float64(0),
	}))
	require.NoError(t, err)
	resultJSON(t, result)

	// One inclusion rule.
	result, err = s.handleAddInclusionRule(ctx, callRequest("add_inclusion_rule", map[string]any{
		"session_id":        sessionID,
		"name":              "Prior observation",
		"concept_set_id":    "t2d",
		"window_start_days": float64(-365),
		"window_end_days":   float64(0),
	}))
	require.NoError(t, err)
	added := resultJSON(t, result)
	assert.Equal(t, float64(1), added["rule_count"])

	// The definition validates cleanly.
	result, err = s.handleValidateCohortDefinition(ctx, callRequest("validate_cohort_definition", map[string]any{
		"session_id": sessionID,
	}))
	require.NoError(t, err)
	validation := resultJSON(t, result)
	assert.Equal(t, true, validation["valid"])

	// And saves to the upstream.
	result, err = s.handleSaveCohortDefinition(ctx, callRequest("save_cohort_definition", map[string]any{
		"session_id": sessionID,
	}))
	require.NoError(t, err)
	saved := resultJSON(t, result)
	assert.Equal(t, true, saved["saved"])
	assert.Equal(t, float64(42), saved["cohort_id"])
}

func TestEstimateCohortSize(t *testing.T) {
	s := newTestServer(t)
	ctx := t.Context()

	result, err := s.handleStartCohortDefinition(ctx, callRequest("start_cohort_definition", map[string]any{
		"name": "Diabetes Cohort",
	}))
	require.NoError(t, err)
	sessionID := resultJSON(t, result)["session_id"].(string)

	result, err = s.handleCreateConceptSet(ctx, callRequest("create_concept_set", map[string]any{
		"session_id":  sessionID,
		"local_id":    "t2d",
		"concept_ids": []any{float64(201826)},
	}))
	require.NoError(t, err)
	resultJSON(t, result)

	// No configured default source, so the key must be passed.
	result, err = s.handleEstimateCohortSize(ctx, callRequest("estimate_cohort_size", map[string]any{
		"session_id": sessionID,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "source key")

	result, err = s.handleEstimateCohortSize(ctx, callRequest("estimate_cohort_size", map[string]any{
		"session_id": sessionID,
		"source_key": "EUNOMIA",
	}))
	require.NoError(t, err)
	estimate := resultJSON(t, result)
	assert.Equal(t, "EUNOMIA", estimate["source_key"])
	assert.Equal(t, float64(1), estimate["total_concepts"])
	assert.Equal(t, float64(0), estimate["inclusion_rule_count"])
	assert.Equal(t, false, estimate["primary_criteria_defined"])

	sets := estimate["concept_sets"].([]any)
	require.Len(t, sets, 1)
	set := sets[0].(map[string]any)
	assert.Equal(t, "t2d", set["local_id"])
	assert.Equal(t, float64(1), set["concept_count"])
}

func TestAddInclusionRule_BeforePrimaryCriteriaFails(t *testing.T) {
	s := newTestServer(t)
	ctx := t.Context()

	result, err := s.handleStartCohortDefinition(ctx, callRequest("start_cohort_definition", map[string]any{
		"name": "Rule first",
	}))
	require.NoError(t, err)
	sessionID := resultJSON(t, result)["session_id"].(string)

	result, err = s.handleCreateConceptSet(ctx, callRequest("create_concept_set", map[string]any{
		"session_id":  sessionID,
		"local_id":    "t2d",
		"concept_ids": []any{float64(201826)},
	}))
	require.NoError(t, err)
	resultJSON(t, result)

	result, err = s.handleAddInclusionRule(ctx, callRequest("add_inclusion_rule", map[string]any{
		"session_id":     sessionID,
		"name":           "Too early",
		"concept_set_id": "t2d",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "primary criteria")
}

func TestSaveInvalidDefinitionReportsErrors(t *testing.T) {
	s := newTestServer(t)
	ctx := t.Context()

	result, err := s.handleStartCohortDefinition(ctx, callRequest("start_cohort_definition", map[string]any{
		"name": "Empty",
	}))
	require.NoError(t, err)
	sessionID := resultJSON(t, result)["session_id"].(string)

	result, err = s.handleSaveCohortDefinition(ctx, callRequest("save_cohort_definition", map[string]any{
		"session_id": sessionID,
	}))
	require.NoError(t, err)
	saved := resultJSON(t, result)
	assert.Equal(t, false, saved["saved"])
	assert.NotEmpty(t, saved["errors"])
}

func TestCloneAndCompare(t *testing.T) {
	s := newTestServer(t)
	ctx := t.Context()

	result, err := s.handleStartCohortDefinition(ctx, callRequest("start_cohort_definition", map[string]any{
		"name": "Original",
	}))
	require.NoError(t, err)
	original := resultJSON(t, result)["session_id"].(string)

	result, err = s.handleCloneCohort(ctx, callRequest("clone_cohort", map[string]any{
		"session_id": original,
		"new_name":   "Variant",
	}))
	require.NoError(t, err)
	clone := resultJSON(t, result)["session_id"].(string)
	require.NotEqual(t, original, clone)

	result, err = s.handleCompareCohorts(ctx, callRequest("compare_cohorts", map[string]any{
		"session_id_a": original,
		"session_id_b": clone,
	}))
	require.NoError(t, err)
	compared := resultJSON(t, result)
	assert.Equal(t, false, compared["identical"])
	assert.Equal(t, float64(1), compared["diff_count"])
}

func TestUnknownSession(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleGetCohortDefinition(t.Context(), callRequest("get_cohort_definition", map[string]any{
		"session_id": "nope",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.True(t, strings.Contains(resultText(t, result), "not found"))
}

func TestSearchConcepts(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleSearchConcepts(t.Context(), callRequest("search_concepts", map[string]any{
		"query": "diabetes",
	}))
	require.NoError(t, err)
	found := resultJSON(t, result)
	assert.Equal(t, float64(1), found["count"])
}

func TestSearchConcepts_RejectsBadLimit(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleSearchConcepts(t.Context(), callRequest("search_concepts", map[string]any{
		"query": "diabetes",
		"limit": float64(5000),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestGetConceptDetails(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleGetConceptDetails(t.Context(), callRequest("get_concept_details", map[string]any{
		"concept_id": float64(201826),
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Type 2 diabetes mellitus")
}

func TestCheckWebAPIHealth(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleCheckWebAPIHealth(t.Context(), callRequest("check_webapi_health", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "healthy")
}
