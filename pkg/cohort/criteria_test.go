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
	"testing"

	"github.com/cohortbridge/cohortbridge/pkg/errors"
)

func TestDefinePrimaryCriteria(t *testing.T) {
	pc, err := DefinePrimaryCriteria("t2d", DomainCondition, OccurrenceFirst, Window(-365, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pc.ConceptSetID != "t2d" || pc.Domain != DomainCondition || pc.OccurrenceType != OccurrenceFirst {
		t.Errorf("unexpected criteria: %+v", pc)
	}
	if *pc.ObservationWindow.StartDays != -365 || *pc.ObservationWindow.EndDays != 0 {
		t.Errorf("window not preserved: %s", pc.ObservationWindow)
	}
}

func TestDefinePrimaryCriteria_RejectsUnknownDomain(t *testing.T) {
	_, err := DefinePrimaryCriteria("t2d", Domain("Exposure"), OccurrenceFirst, CriterionWindow{})
	if !errors.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestDefinePrimaryCriteria_RejectsUnknownOccurrence(t *testing.T) {
	_, err := DefinePrimaryCriteria("t2d", DomainCondition, OccurrenceType("Earliest"), CriterionWindow{})
	if !errors.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestDefinePrimaryCriteria_WindowBounds(t *testing.T) {
	tests := []struct {
		name    string
		window  CriterionWindow
		wantErr bool
	}{
		{name: "start after end", window: Window(30, -30), wantErr: true},
		{name: "start equals end", window: Window(0, 0), wantErr: false},
		{name: "unbounded start", window: CriterionWindow{EndDays: Days(0)}, wantErr: false},
		{name: "unbounded end", window: CriterionWindow{StartDays: Days(-30)}, wantErr: false},
		{name: "fully unbounded", window: CriterionWindow{}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DefinePrimaryCriteria("t2d", DomainCondition, OccurrenceFirst, tt.window)
			if tt.wantErr && !errors.IsValidation(err) {
				t.Errorf("expected ValidationError, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestAddInclusionRule_OrderPreserved(t *testing.T) {
	var rules []InclusionRule
	var err error
	for i := 0; i < 5; i++ {
		rules, err = AddInclusionRule(rules, fmt.Sprintf("rule %d", i), "cs", 1, OpAtLeast, Window(-30, 0))
		if err != nil {
			t.Fatalf("adding rule %d: %v", i, err)
		}
	}
	for i, r := range rules {
		if want := fmt.Sprintf("rule %d", i); r.Name != want {
			t.Errorf("position %d holds %q, want %q", i, r.Name, want)
		}
	}
}

func TestAddInclusionRule_DoesNotMutateInput(t *testing.T) {
	first, err := AddInclusionRule(nil, "first", "cs", 1, OpAtLeast, CriterionWindow{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := AddInclusionRule(first, "second", "cs", 1, OpAtLeast, CriterionWindow{})
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 {
		t.Errorf("input slice was mutated: len=%d", len(first))
	}
	if len(second) != 2 {
		t.Errorf("result slice wrong length: len=%d", len(second))
	}
}

func TestAddInclusionRule_ClonesExistingWindows(t *testing.T) {
	first, err := AddInclusionRule(nil, "prior metformin", "cs", 1, OpAtLeast, Window(-365, 0))
	if err != nil {
		t.Fatal(err)
	}
	second, err := AddInclusionRule(first, "no insulin", "cs", 0, OpExactly, CriterionWindow{})
	if err != nil {
		t.Fatal(err)
	}

	*first[0].Window.StartDays = -9999
	if *second[0].Window.StartDays != -365 {
		t.Errorf("prior rule shares window bounds with input slice: got %d", *second[0].Window.StartDays)
	}
}

func TestAddInclusionRule_DuplicateNameCaseInsensitive(t *testing.T) {
	rules, err := AddInclusionRule(nil, "Prior Metformin", "cs", 1, OpAtLeast, CriterionWindow{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = AddInclusionRule(rules, "prior metformin", "cs", 1, OpAtLeast, CriterionWindow{})
	if !errors.IsValidation(err) {
		t.Fatalf("expected ValidationError for case-insensitive duplicate, got %v", err)
	}
}

func TestAddInclusionRule_NegativeCount(t *testing.T) {
	_, err := AddInclusionRule(nil, "rule", "cs", -1, OpAtLeast, CriterionWindow{})
	if !errors.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestAddInclusionRule_RejectsUnknownOperator(t *testing.T) {
	_, err := AddInclusionRule(nil, "rule", "cs", 1, Operator("!="), CriterionWindow{})
	if !errors.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestParseDomain(t *testing.T) {
	tests := []struct {
		in      string
		want    Domain
		wantErr bool
	}{
		{in: "Condition", want: DomainCondition},
		{in: "condition", want: DomainCondition},
		{in: "ConditionOccurrence", want: DomainCondition},
		{in: "DrugExposure", want: DomainDrug},
		{in: "Visit", want: DomainVisit},
		{in: "Cost", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseDomain(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDomain(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseDomain(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestParseOccurrenceType_LegacyAlias(t *testing.T) {
	got, err := ParseOccurrenceType("All")
	if err != nil || got != OccurrenceAny {
		t.Errorf("ParseOccurrenceType(All) = %q, %v; want Any", got, err)
	}
}

func TestParseOperator(t *testing.T) {
	got, err := ParseOperator("==")
	if err != nil || got != OpExactly {
		t.Errorf("ParseOperator(==) = %q, %v; want =", got, err)
	}
	if _, err := ParseOperator("between"); err == nil {
		t.Error("ParseOperator(between): expected error")
	}
}
