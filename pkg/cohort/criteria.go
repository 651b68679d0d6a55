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

// DefinePrimaryCriteria constructs the index-event criteria for a cohort.
// The concept set reference is resolved against a definition later, when the
// criteria is attached; here only the shape is checked.
func DefinePrimaryCriteria(conceptSetID string, domain Domain, occurrence OccurrenceType, observationWindow CriterionWindow) (*PrimaryCriteria, error) {
	if !domain.Valid() {
		return nil, &errors.ValidationError{
			Field:      "domain",
			Message:    fmt.Sprintf("unrecognized domain %q", domain),
			Suggestion: "supported domains: " + strings.Join(DomainNames(), ", "),
		}
	}
	if !occurrence.Valid() {
		return nil, &errors.ValidationError{
			Field:      "occurrence_type",
			Message:    fmt.Sprintf("unrecognized occurrence type %q", occurrence),
			Suggestion: "supported occurrence types: First, Any, Last",
		}
	}
	if err := observationWindow.CheckBounds(); err != nil {
		return nil, &errors.ValidationError{
			Field:   "observation_window",
			Message: err.Error(),
		}
	}
	return &PrimaryCriteria{
		ConceptSetID:      conceptSetID,
		Domain:            domain,
		OccurrenceType:    occurrence,
		ObservationWindow: observationWindow.Clone(),
	}, nil
}

// AddInclusionRule appends a new rule to a rule sequence. The input slice is
// not mutated; rule order is preserved exactly as rules were added.
//
// Rule names must be unique case-insensitively: loaded definitions are
// matched by name during comparison, so "Prior Metformin" and
// "prior metformin" would be indistinguishable.
func AddInclusionRule(existing []InclusionRule, name, conceptSetID string, occurrenceCount int, operator Operator, window CriterionWindow) ([]InclusionRule, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &errors.ValidationError{
			Field:   "name",
			Message: "inclusion rule name must not be empty",
		}
	}
	for _, r := range existing {
		if strings.EqualFold(r.Name, name) {
			return nil, &errors.ValidationError{
				Field:      "name",
				Message:    fmt.Sprintf("an inclusion rule named %q already exists", r.Name),
				Suggestion: "give each inclusion rule a distinct name",
			}
		}
	}
	if occurrenceCount < 0 {
		return nil, &errors.ValidationError{
			Field:   "occurrence_count",
			Message: fmt.Sprintf("occurrence count must be >= 0, got %d", occurrenceCount),
		}
	}
	if !operator.Valid() {
		return nil, &errors.ValidationError{
			Field:      "occurrence_operator",
			Message:    fmt.Sprintf("unrecognized occurrence operator %q", operator),
			Suggestion: "supported operators: >=, <=, =, >, <",
		}
	}
	if err := window.CheckBounds(); err != nil {
		return nil, &errors.ValidationError{
			Field:   "window",
			Message: err.Error(),
		}
	}

	out := make([]InclusionRule, 0, len(existing)+1)
	for _, r := range existing {
		out = append(out, r.Clone())
	}
	out = append(out, InclusionRule{
		Name:               name,
		ConceptSetID:       conceptSetID,
		OccurrenceCount:    occurrenceCount,
		OccurrenceOperator: operator,
		Window:             window.Clone(),
	})
	return out, nil
}
