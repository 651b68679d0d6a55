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
	"fmt"
	"strings"

	"github.com/cohortbridge/cohortbridge/pkg/errors"
)

// Start creates a new, empty in-progress cohort definition.
func Start(name string) (*CohortDefinition, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &errors.InvalidInputError{
			Field:   "name",
			Message: "cohort definition name must not be empty",
		}
	}
	now := timeNow().UTC()
	return &CohortDefinition{
		Name:           name,
		ConceptSets:    map[string]*ConceptSetExpression{},
		InclusionRules: []InclusionRule{},
		CreatedAt:      now,
		ModifiedAt:     now,
	}, nil
}

// AttachConceptSet registers an expression under a local id and returns the
// updated definition. Re-attaching a structurally identical expression under
// the same id is a no-op; attaching a different expression under an existing
// id is an error, since criteria may already reference it.
func (d *CohortDefinition) AttachConceptSet(localID string, expr *ConceptSetExpression) (*CohortDefinition, error) {
	if strings.TrimSpace(localID) == "" {
		return nil, &errors.InvalidInputError{
			Field:   "local_id",
			Message: "concept set local id must not be empty",
		}
	}
	if expr == nil {
		return nil, &errors.InvalidInputError{
			Field:   "expression",
			Message: "concept set expression must not be nil",
		}
	}
	if existing, ok := d.ConceptSets[localID]; ok {
		if existing.Equal(expr) {
			return d, nil
		}
		return nil, &errors.ValidationError{
			Field:      fmt.Sprintf("conceptSets[%s]", localID),
			Message:    fmt.Sprintf("concept set %q is already attached with a different expression", localID),
			Suggestion: "attach the replacement under a new local id",
		}
	}

	out := d.copy()
	out.ConceptSets[localID] = expr.Clone()
	out.ModifiedAt = timeNow().UTC()
	return out, nil
}

// SetPrimaryCriteria installs the index-event criteria and returns the
// updated definition. An existing primary criteria is silently replaced:
// a definition has at most one, and the last write wins.
func (d *CohortDefinition) SetPrimaryCriteria(criteria *PrimaryCriteria) (*CohortDefinition, error) {
	if criteria == nil {
		return nil, &errors.InvalidInputError{
			Field:   "criteria",
			Message: "primary criteria must not be nil",
		}
	}
	if _, ok := d.ConceptSets[criteria.ConceptSetID]; !ok {
		return nil, &errors.ValidationError{
			Field:      "primaryCriteria.conceptSetId",
			Message:    fmt.Sprintf("concept set %q is not attached to this definition", criteria.ConceptSetID),
			Suggestion: "attach the concept set before referencing it",
		}
	}

	out := d.copy()
	out.PrimaryCriteria = criteria.Clone()
	out.ModifiedAt = timeNow().UTC()
	return out, nil
}

// AppendInclusionRule adds a rule to the end of the rule sequence and returns
// the updated definition. Rules may not precede the primary criteria: their
// windows are anchored to the index date it defines.
func (d *CohortDefinition) AppendInclusionRule(rule InclusionRule) (*CohortDefinition, error) {
	if d.PrimaryCriteria == nil {
		return nil, &errors.ValidationError{
			Field:      "primaryCriteria",
			Message:    "inclusion rules require a primary criteria to anchor their windows",
			Suggestion: "define the primary criteria before adding inclusion rules",
		}
	}
	if _, ok := d.ConceptSets[rule.ConceptSetID]; !ok {
		return nil, &errors.ValidationError{
			Field:      fmt.Sprintf("inclusionRules[%s].conceptSetId", rule.Name),
			Message:    fmt.Sprintf("concept set %q is not attached to this definition", rule.ConceptSetID),
			Suggestion: "attach the concept set before referencing it",
		}
	}

	rules, err := AddInclusionRule(d.InclusionRules, rule.Name, rule.ConceptSetID, rule.OccurrenceCount, rule.OccurrenceOperator, rule.Window)
	if err != nil {
		return nil, err
	}

	out := d.copy()
	out.InclusionRules = rules
	out.ModifiedAt = timeNow().UTC()
	return out, nil
}
