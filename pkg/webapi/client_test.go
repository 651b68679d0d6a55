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

package webapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortbridge/cohortbridge/pkg/cohort"
	"github.com/cohortbridge/cohortbridge/pkg/errors"
	"github.com/cohortbridge/cohortbridge/pkg/httpclient"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := httpclient.DefaultConfig()
	cfg.RetryAttempts = 0
	cfg.Timeout = 5 * time.Second
	client, err := New(Config{BaseURL: srv.URL, HTTP: cfg})
	require.NoError(t, err)
	return client, srv
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	var cfgErr *errors.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestLookupConcept(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/vocabulary/concept/201826", r.URL.Path)
		json.NewEncoder(w).Encode(Concept{
			ConceptID:       201826,
			ConceptName:     "Type 2 diabetes mellitus",
			DomainID:        "Condition",
			VocabularyID:    "SNOMED",
			StandardConcept: "S",
		})
	}))

	ref, err := client.LookupConcept(context.Background(), 201826)
	require.NoError(t, err)
	assert.Equal(t, 201826, ref.ConceptID)
	assert.Equal(t, cohort.Standard, ref.StandardConcept)
}

func TestLookupConcept_NotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	_, err := client.LookupConcept(context.Background(), 999999999)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestSearchConcepts_TruncatesToLimit(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/vocabulary/search", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req conceptSearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "diabetes", req.Query)
		assert.Equal(t, []string{"Condition"}, req.DomainID)

		concepts := make([]Concept, 5)
		for i := range concepts {
			concepts[i] = Concept{ConceptID: i + 1, ConceptName: "diabetes"}
		}
		json.NewEncoder(w).Encode(concepts)
	}))

	refs, err := client.SearchConcepts(context.Background(), "diabetes", cohort.SearchFilters{Domain: "Condition"}, 3)
	require.NoError(t, err)
	assert.Len(t, refs, 3)
}

func TestCreateCohort_WrapsExpressionInEnvelope(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload CohortResource
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "SIMPLE_EXPRESSION", payload.ExpressionType)
		assert.Equal(t, "Diabetes Cohort", payload.Name)

		var def cohort.CohortDefinition
		require.NoError(t, json.Unmarshal(payload.Expression, &def))
		assert.Equal(t, "Diabetes Cohort", def.Name)

		payload.ID = 42
		json.NewEncoder(w).Encode(payload)
	}))

	def, err := cohort.Start("Diabetes Cohort")
	require.NoError(t, err)

	saved, err := client.CreateCohort(context.Background(), "Diabetes Cohort", "test", def)
	require.NoError(t, err)
	assert.Equal(t, 42, saved.ID)
}

func TestGetCohort_RoundTripsDefinition(t *testing.T) {
	def, err := cohort.Start("Diabetes Cohort")
	require.NoError(t, err)
	expression, err := json.Marshal(def)
	require.NoError(t, err)

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(CohortResource{
			ID:             7,
			Name:           "Diabetes Cohort",
			ExpressionType: "SIMPLE_EXPRESSION",
			Expression:     expression,
		})
	}))

	resource, err := client.GetCohort(context.Background(), 7)
	require.NoError(t, err)

	loaded, err := resource.Definition()
	require.NoError(t, err)
	assert.Equal(t, "Diabetes Cohort", loaded.Name)
	assert.NotNil(t, loaded.ConceptSets)
	assert.NotNil(t, loaded.InclusionRules)
}

func TestServerErrorIsUpstream(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := client.Info(context.Background())
	require.Error(t, err)
	var upstream *errors.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusInternalServerError, upstream.StatusCode)
}

func TestGetSource_CaseInsensitiveKey(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Source{
			{SourceID: 1, SourceKey: "SYNPUF", SourceName: "SynPUF 5%"},
		})
	}))

	source, err := client.GetSource(context.Background(), "synpuf")
	require.NoError(t, err)
	assert.Equal(t, "SYNPUF", source.SourceKey)

	_, err = client.GetSource(context.Background(), "missing")
	assert.True(t, errors.IsNotFound(err))
}
