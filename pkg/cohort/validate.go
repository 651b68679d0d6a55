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

// ValidationResult collects every structural violation found in a
// definition. Errors appear in check order so the first entry points at the
// most fundamental problem.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Validate checks a definition for structural completeness and referential
// consistency. It never stops at the first violation: the full list comes
// back in one pass so an interactive caller is not fixing one error per
// round trip. Only a nil definition is rejected outright.
//
// Checks, in order: primary criteria present, concept set references
// resolve, referenced sets have at least one non-excluded item, rule names
// unique (case-insensitive), window bounds hold.
func Validate(def *CohortDefinition) (ValidationResult, error) {
	if def == nil {
		return ValidationResult{}, &errors.InvalidInputError{
			Field:   "definition",
			Message: "cohort definition must not be nil",
		}
	}

	result := ValidationResult{Errors: []string{}}

	// 1. Primary criteria present.
	if def.PrimaryCriteria == nil {
		result.Errors = append(result.Errors, "missing primary criteria: the cohort has no index event")
	}

	// 2. Every referenced concept set exists.
	// 3. Every referenced concept set has at least one non-excluded item.
	// An empty set is one violation no matter how many criteria reference it.
	emptyReported := map[string]bool{}
	for _, ref := range referencedSets(def) {
		expr, ok := def.ConceptSets[ref.setID]
		if !ok {
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s references unknown concept set %q", ref.path, ref.setID))
			continue
		}
		if expr.IncludedCount() == 0 && !emptyReported[ref.setID] {
			emptyReported[ref.setID] = true
			result.Errors = append(result.Errors,
				fmt.Sprintf("concept set %q (referenced by %s) has no non-excluded concepts", ref.setID, ref.path))
		}
	}

	// 4. Rule names unique, case-insensitively. The builder enforces this
	// too, but definitions loaded from the WebAPI bypass the builder.
	seen := map[string]string{}
	for i, rule := range def.InclusionRules {
		key := strings.ToLower(rule.Name)
		if first, dup := seen[key]; dup {
			result.Errors = append(result.Errors,
				fmt.Sprintf("inclusion rule %d duplicates the name %q", i, first))
			continue
		}
		seen[key] = rule.Name
	}

	// 5. Window bound invariants.
	if def.PrimaryCriteria != nil {
		if err := def.PrimaryCriteria.ObservationWindow.CheckBounds(); err != nil {
			result.Errors = append(result.Errors, "primary criteria observation window: "+err.Error())
		}
	}
	for _, rule := range def.InclusionRules {
		if err := rule.Window.CheckBounds(); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("inclusion rule %q window: %s", rule.Name, err.Error()))
		}
	}

	result.Valid = len(result.Errors) == 0
	return result, nil
}

type setReference struct {
	path  string
	setID string
}

// referencedSets lists every concept-set reference in the definition with a
// display path, in deterministic order: primary criteria first, then rules
// in sequence order.
func referencedSets(def *CohortDefinition) []setReference {
	var refs []setReference
	if def.PrimaryCriteria != nil {
		refs = append(refs, setReference{path: "primaryCriteria", setID: def.PrimaryCriteria.ConceptSetID})
	}
	for _, rule := range def.InclusionRules {
		refs = append(refs, setReference{path: fmt.Sprintf("inclusionRules[%s]", rule.Name), setID: rule.ConceptSetID})
	}
	return refs
}
