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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortbridge/cohortbridge/pkg/errors"
)

func TestValidate_CompleteDefinitionPasses(t *testing.T) {
	def := buildBaseDefinition(t)

	result, err := Validate(def)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidate_NilDefinition(t *testing.T) {
	_, err := Validate(nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))
}

func TestValidate_MissingPrimaryCriteria(t *testing.T) {
	def, err := Start("Diabetes Cohort")
	require.NoError(t, err)

	result, err := Validate(def)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "primary criteria")
}

// Validation never early-exits: a definition with several independent
// violations reports all of them in one pass.
func TestValidate_CollectsAllViolations(t *testing.T) {
	def := &CohortDefinition{
		Name: "Broken",
		ConceptSets: map[string]*ConceptSetExpression{
			// Only excluded items: counts as empty for validation.
			"excluded-only": {Items: []ConceptSetItem{
				{Concept: t2dConcept(), IsExcluded: true},
			}},
		},
		PrimaryCriteria: &PrimaryCriteria{
			ConceptSetID:      "missing",
			Domain:            DomainCondition,
			OccurrenceType:    OccurrenceFirst,
			ObservationWindow: Window(10, -10),
		},
		InclusionRules: []InclusionRule{
			{Name: "dup", ConceptSetID: "excluded-only", OccurrenceCount: 1, OccurrenceOperator: OpAtLeast},
			{Name: "DUP", ConceptSetID: "also-missing", OccurrenceCount: 1, OccurrenceOperator: OpAtLeast},
		},
	}

	result, err := Validate(def)
	require.NoError(t, err)
	assert.False(t, result.Valid)

	// Violations: primary references unknown set, rule references unknown
	// set, excluded-only set empty, duplicate rule name, bad window bounds.
	assert.Len(t, result.Errors, 5)

	joined := strings.Join(result.Errors, "\n")
	assert.Contains(t, joined, `unknown concept set "missing"`)
	assert.Contains(t, joined, `unknown concept set "also-missing"`)
	assert.Contains(t, joined, "no non-excluded concepts")
	assert.Contains(t, joined, "duplicates the name")
	assert.Contains(t, joined, "start_days (10) must be <= end_days (-10)")
}

func TestValidate_WindowBoundInvariant(t *testing.T) {
	tests := []struct {
		name   string
		window CriterionWindow
		valid  bool
	}{
		{name: "start before end", window: Window(-365, 0), valid: true},
		{name: "start equals end", window: Window(0, 0), valid: true},
		{name: "start after end", window: Window(1, 0), valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := buildBaseDefinition(t)
			def = def.copy()
			def.PrimaryCriteria.ObservationWindow = tt.window

			result, err := Validate(def)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, result.Valid)
		})
	}
}

func TestValidate_RuleWindowChecked(t *testing.T) {
	def := buildBaseDefinition(t)
	def = def.copy()
	def.InclusionRules = []InclusionRule{
		{Name: "bad window", ConceptSetID: "t2d", OccurrenceCount: 1, OccurrenceOperator: OpAtLeast, Window: Window(5, 2)},
	}

	result, err := Validate(def)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `inclusion rule "bad window"`)
}

func TestValidate_SharedEmptySetReportedOnce(t *testing.T) {
	def := buildBaseDefinition(t)
	def = def.copy()
	def.ConceptSets["empty"] = &ConceptSetExpression{Items: []ConceptSetItem{}}
	def.InclusionRules = []InclusionRule{
		{Name: "a", ConceptSetID: "empty", OccurrenceCount: 1, OccurrenceOperator: OpAtLeast},
		{Name: "b", ConceptSetID: "empty", OccurrenceCount: 1, OccurrenceOperator: OpAtLeast},
	}

	result, err := Validate(def)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1, "one empty set is one violation, not one per reference")
}
