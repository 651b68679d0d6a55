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
	"sort"
	"strings"

	"github.com/cohortbridge/cohortbridge/pkg/errors"
)

// FieldDiff reports one mismatched or one-sided entry between two
// definitions. An absent side carries a nil value.
type FieldDiff struct {
	FieldPath string `json:"fieldPath"`
	ValueA    any    `json:"valueA,omitempty"`
	ValueB    any    `json:"valueB,omitempty"`
}

// Compare performs a structural diff of two definitions over name, primary
// criteria, concept sets, and inclusion rules. Identical entries are
// omitted. Concept sets are matched by local id and inclusion rules by name
// rather than position: reordering rules with unchanged content is not a
// semantic change. Output order is deterministic: fields in declaration
// order, then map and sequence entries sorted by key.
func Compare(a, b *CohortDefinition) ([]FieldDiff, error) {
	if a == nil || b == nil {
		return nil, &errors.InvalidInputError{
			Field:   "definition",
			Message: "both definitions are required for comparison",
		}
	}

	diffs := []FieldDiff{}

	if a.Name != b.Name {
		diffs = append(diffs, FieldDiff{FieldPath: "name", ValueA: a.Name, ValueB: b.Name})
	}

	if !a.PrimaryCriteria.Equal(b.PrimaryCriteria) {
		diffs = append(diffs, FieldDiff{
			FieldPath: "primaryCriteria",
			ValueA:    primaryValue(a.PrimaryCriteria),
			ValueB:    primaryValue(b.PrimaryCriteria),
		})
	}

	for _, id := range unionKeys(a.ConceptSets, b.ConceptSets) {
		exprA, okA := a.ConceptSets[id]
		exprB, okB := b.ConceptSets[id]
		switch {
		case okA && !okB:
			diffs = append(diffs, FieldDiff{FieldPath: "conceptSets[" + id + "]", ValueA: exprA.Clone()})
		case !okA && okB:
			diffs = append(diffs, FieldDiff{FieldPath: "conceptSets[" + id + "]", ValueB: exprB.Clone()})
		case !exprA.Equal(exprB):
			diffs = append(diffs, FieldDiff{
				FieldPath: "conceptSets[" + id + "]",
				ValueA:    exprA.Clone(),
				ValueB:    exprB.Clone(),
			})
		}
	}

	rulesA := rulesByName(a.InclusionRules)
	rulesB := rulesByName(b.InclusionRules)
	for _, name := range unionRuleNames(rulesA, rulesB) {
		ruleA, okA := rulesA[name]
		ruleB, okB := rulesB[name]
		path := fmt.Sprintf("inclusionRules[%s]", name)
		switch {
		case okA && !okB:
			diffs = append(diffs, FieldDiff{FieldPath: path, ValueA: ruleA.Clone()})
		case !okA && okB:
			diffs = append(diffs, FieldDiff{FieldPath: path, ValueB: ruleB.Clone()})
		case !ruleA.Equal(ruleB):
			diffs = append(diffs, FieldDiff{FieldPath: path, ValueA: ruleA.Clone(), ValueB: ruleB.Clone()})
		}
	}

	return diffs, nil
}

// Clone deep-copies a definition under a new name. The clone has no id and
// fresh timestamps; it is a new in-progress definition, not a reference to
// the source. The new name must differ so the two are distinguishable.
func Clone(def *CohortDefinition, newName string) (*CohortDefinition, error) {
	if def == nil {
		return nil, &errors.InvalidInputError{
			Field:   "definition",
			Message: "cohort definition must not be nil",
		}
	}
	if strings.TrimSpace(newName) == "" {
		return nil, &errors.InvalidInputError{
			Field:   "new_name",
			Message: "clone name must not be empty",
		}
	}
	if newName == def.Name {
		return nil, &errors.InvalidInputError{
			Field:      "new_name",
			Message:    fmt.Sprintf("clone name %q is identical to the source definition's name", newName),
			Suggestion: "pick a name that distinguishes the clone from its source",
		}
	}

	out := def.copy()
	out.ID = ""
	out.Name = newName
	now := timeNow().UTC()
	out.CreatedAt = now
	out.ModifiedAt = now
	return out, nil
}

func primaryValue(p *PrimaryCriteria) any {
	if p == nil {
		return nil
	}
	return p.Clone()
}

func unionKeys(a, b map[string]*ConceptSetExpression) []string {
	seen := map[string]bool{}
	var keys []string
	for id := range a {
		if !seen[id] {
			seen[id] = true
			keys = append(keys, id)
		}
	}
	for id := range b {
		if !seen[id] {
			seen[id] = true
			keys = append(keys, id)
		}
	}
	sort.Strings(keys)
	return keys
}

func rulesByName(rules []InclusionRule) map[string]InclusionRule {
	out := make(map[string]InclusionRule, len(rules))
	for _, r := range rules {
		out[r.Name] = r
	}
	return out
}

func unionRuleNames(a, b map[string]InclusionRule) []string {
	seen := map[string]bool{}
	var names []string
	for name := range a {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for name := range b {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
