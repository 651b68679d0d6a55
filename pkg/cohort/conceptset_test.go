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

package cohort

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortbridge/cohortbridge/pkg/errors"
)

// fakeVocabulary serves canned concepts and records calls.
type fakeVocabulary struct {
	concepts map[int]ConceptReference
	results  []ConceptReference
	fail     error
}

func (f *fakeVocabulary) LookupConcept(_ context.Context, conceptID int) (*ConceptReference, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	ref, ok := f.concepts[conceptID]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "concept", ID: fmt.Sprintf("%d", conceptID)}
	}
	return &ref, nil
}

func (f *fakeVocabulary) SearchConcepts(_ context.Context, query string, filters SearchFilters, limit int) ([]ConceptReference, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	var out []ConceptReference
	for _, ref := range f.results {
		if strings.Contains(strings.ToLower(ref.ConceptName), strings.ToLower(query)) {
			out = append(out, ref)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func t2dConcept() ConceptReference {
	return ConceptReference{
		ConceptID:       201826,
		ConceptName:     "Type 2 diabetes mellitus",
		DomainID:        "Condition",
		VocabularyID:    "SNOMED",
		StandardConcept: Standard,
	}
}

func TestBuildFromIDs(t *testing.T) {
	vocab := &fakeVocabulary{concepts: map[int]ConceptReference{201826: t2dConcept()}}

	expr, err := BuildFromIDs(context.Background(), vocab, []int{201826}, true, false)
	require.NoError(t, err)
	require.Len(t, expr.Items, 1)
	assert.Equal(t, 201826, expr.Items[0].Concept.ConceptID)
	assert.True(t, expr.Items[0].IncludeDescendants)
	assert.False(t, expr.Items[0].IncludeMapped)
	assert.False(t, expr.Items[0].IsExcluded)
	assert.Empty(t, expr.UnresolvedIDs)
}

func TestBuildFromIDs_EmptyInput(t *testing.T) {
	vocab := &fakeVocabulary{}

	_, err := BuildFromIDs(context.Background(), vocab, nil, true, false)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))
}

func TestBuildFromIDs_NonPositiveID(t *testing.T) {
	vocab := &fakeVocabulary{concepts: map[int]ConceptReference{201826: t2dConcept()}}

	_, err := BuildFromIDs(context.Background(), vocab, []int{201826, -4}, true, false)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))
}

func TestBuildFromIDs_PartialResolution(t *testing.T) {
	vocab := &fakeVocabulary{concepts: map[int]ConceptReference{201826: t2dConcept()}}

	expr, err := BuildFromIDs(context.Background(), vocab, []int{201826, 999999999}, true, false)
	require.NoError(t, err, "an unresolvable id must not fail the batch")
	require.Len(t, expr.Items, 1)
	assert.Equal(t, []int{999999999}, expr.UnresolvedIDs)
}

func TestBuildFromIDs_DeduplicatesInput(t *testing.T) {
	vocab := &fakeVocabulary{concepts: map[int]ConceptReference{201826: t2dConcept()}}

	expr, err := BuildFromIDs(context.Background(), vocab, []int{201826, 201826, 201826}, true, false)
	require.NoError(t, err)
	assert.Len(t, expr.Items, 1)
}

func TestBuildFromIDs_UpstreamFailureIsFatal(t *testing.T) {
	vocab := &fakeVocabulary{fail: &errors.UpstreamError{Endpoint: "/vocabulary/concept", Message: "unavailable"}}

	_, err := BuildFromIDs(context.Background(), vocab, []int{201826}, true, false)
	require.Error(t, err)
	assert.True(t, errors.IsUpstream(err))
}

func TestBuildFromSearch(t *testing.T) {
	vocab := &fakeVocabulary{results: []ConceptReference{
		t2dConcept(),
		{ConceptID: 4193704, ConceptName: "Type 2 diabetes mellitus without complication", DomainID: "Condition", VocabularyID: "SNOMED"},
	}}

	expr, err := BuildFromSearch(context.Background(), vocab, "diabetes", SearchFilters{Domain: "Condition"}, 20, true, false)
	require.NoError(t, err)
	assert.Len(t, expr.Items, 2)
}

func TestBuildFromSearch_EmptyQuery(t *testing.T) {
	_, err := BuildFromSearch(context.Background(), &fakeVocabulary{}, "", SearchFilters{}, 20, true, false)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))
}

func TestBuildFromSearch_LimitRange(t *testing.T) {
	for _, limit := range []int{0, -1, MaxSearchLimit + 1} {
		_, err := BuildFromSearch(context.Background(), &fakeVocabulary{}, "diabetes", SearchFilters{}, limit, true, false)
		if !errors.IsInvalidInput(err) {
			t.Errorf("limit %d: expected InvalidInputError, got %v", limit, err)
		}
	}
}

func TestBuildFromSearch_NoMatchesIsEmptyNotError(t *testing.T) {
	vocab := &fakeVocabulary{results: []ConceptReference{t2dConcept()}}

	expr, err := BuildFromSearch(context.Background(), vocab, "xyzzy", SearchFilters{}, 20, true, false)
	require.NoError(t, err)
	assert.Empty(t, expr.Items)
	assert.Empty(t, expr.UnresolvedIDs)
}

func TestBuildFromSearch_DeduplicatesResults(t *testing.T) {
	vocab := &fakeVocabulary{results: []ConceptReference{t2dConcept(), t2dConcept()}}

	expr, err := BuildFromSearch(context.Background(), vocab, "diabetes", SearchFilters{}, 20, true, false)
	require.NoError(t, err)
	assert.Len(t, expr.Items, 1)
}
