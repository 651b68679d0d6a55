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

// Package cohort assembles, validates, compares, and clones clinical cohort
// definitions in the shape the OHDSI WebAPI expects.
//
// A cohort definition is built up incrementally: concept sets are attached
// under local ids, a primary criteria names the index event, and inclusion
// rules narrow the population relative to the index date. Every mutation
// returns a new definition value (copy-on-write); callers holding older
// handles never observe in-flight edits.
package cohort

import (
	"fmt"
	"strings"
	"time"
)

// timeNow is swapped out in tests to make timestamps deterministic.
var timeNow = time.Now

// StandardConcept classifies a concept's standing in the OMOP vocabulary.
type StandardConcept string

const (
	Standard       StandardConcept = "S"
	Classification StandardConcept = "C"
	NonStandard    StandardConcept = "N"
	// Unspecified is used when the vocabulary reports no standing.
	Unspecified StandardConcept = ""
)

// Domain identifies the OMOP domain a criteria draws events from.
// The set is closed: unrecognized values are rejected at the boundary.
type Domain string

const (
	DomainCondition   Domain = "Condition"
	DomainDrug        Domain = "Drug"
	DomainProcedure   Domain = "Procedure"
	DomainObservation Domain = "Observation"
	DomainMeasurement Domain = "Measurement"
	DomainVisit       Domain = "Visit"
	DomainDevice      Domain = "Device"
)

// criteriaTypes maps each domain to the criteria type name used by the
// WebAPI cohort expression format.
var criteriaTypes = map[Domain]string{
	DomainCondition:   "ConditionOccurrence",
	DomainDrug:        "DrugExposure",
	DomainProcedure:   "ProcedureOccurrence",
	DomainObservation: "Observation",
	DomainMeasurement: "Measurement",
	DomainVisit:       "VisitOccurrence",
	DomainDevice:      "DeviceExposure",
}

// ParseDomain resolves a domain name, accepting both the short form
// ("Condition") and the WebAPI criteria type form ("ConditionOccurrence").
func ParseDomain(s string) (Domain, error) {
	for d, ct := range criteriaTypes {
		if strings.EqualFold(s, string(d)) || strings.EqualFold(s, ct) {
			return d, nil
		}
	}
	return "", fmt.Errorf("unsupported domain: %q (supported: %s)", s, strings.Join(DomainNames(), ", "))
}

// DomainNames returns the supported domain names in stable order.
func DomainNames() []string {
	return []string{
		string(DomainCondition), string(DomainDrug), string(DomainProcedure),
		string(DomainObservation), string(DomainMeasurement), string(DomainVisit),
		string(DomainDevice),
	}
}

// CriteriaType returns the WebAPI criteria type name for the domain,
// or "" for an unrecognized domain.
func (d Domain) CriteriaType() string {
	return criteriaTypes[d]
}

// Valid reports whether the domain is one of the recognized values.
func (d Domain) Valid() bool {
	_, ok := criteriaTypes[d]
	return ok
}

// OccurrenceType selects which qualifying event anchors the index date.
type OccurrenceType string

const (
	OccurrenceFirst OccurrenceType = "First"
	OccurrenceAny   OccurrenceType = "Any"
	OccurrenceLast  OccurrenceType = "Last"
)

// ParseOccurrenceType resolves an occurrence type name, case-insensitively.
// "All" is accepted as a legacy alias for "Any".
func ParseOccurrenceType(s string) (OccurrenceType, error) {
	switch strings.ToLower(s) {
	case "first":
		return OccurrenceFirst, nil
	case "any", "all":
		return OccurrenceAny, nil
	case "last":
		return OccurrenceLast, nil
	}
	return "", fmt.Errorf("unsupported occurrence type: %q (supported: First, Any, Last)", s)
}

// Valid reports whether the occurrence type is one of the recognized values.
func (o OccurrenceType) Valid() bool {
	switch o {
	case OccurrenceFirst, OccurrenceAny, OccurrenceLast:
		return true
	}
	return false
}

// Operator compares an observed occurrence count against a rule's threshold.
type Operator string

const (
	OpAtLeast Operator = ">="
	OpAtMost  Operator = "<="
	OpExactly Operator = "="
	OpMore    Operator = ">"
	OpLess    Operator = "<"
)

// ParseOperator resolves an occurrence operator.
func ParseOperator(s string) (Operator, error) {
	switch Operator(strings.TrimSpace(s)) {
	case OpAtLeast, OpAtMost, OpExactly, OpMore, OpLess:
		return Operator(strings.TrimSpace(s)), nil
	case "==":
		return OpExactly, nil
	}
	return "", fmt.Errorf("unsupported occurrence operator: %q (supported: >=, <=, =, >, <)", s)
}

// Valid reports whether the operator is one of the recognized values.
func (op Operator) Valid() bool {
	switch op {
	case OpAtLeast, OpAtMost, OpExactly, OpMore, OpLess:
		return true
	}
	return false
}

// ConceptReference identifies a coded medical term in a standardized
// vocabulary. References are immutable once fetched from the vocabulary.
type ConceptReference struct {
	ConceptID       int             `json:"conceptId"`
	ConceptName     string          `json:"conceptName"`
	ConceptCode     string          `json:"conceptCode,omitempty"`
	ConceptClassID  string          `json:"conceptClassId,omitempty"`
	DomainID        string          `json:"domainId"`
	VocabularyID    string          `json:"vocabularyId"`
	StandardConcept StandardConcept `json:"standardConcept,omitempty"`
	InvalidReason   string          `json:"invalidReason,omitempty"`
}

// ConceptSetItem pairs a concept with its hierarchy-expansion and
// inclusion/exclusion flags.
type ConceptSetItem struct {
	Concept            ConceptReference `json:"concept"`
	IncludeDescendants bool             `json:"includeDescendants"`
	IncludeMapped      bool             `json:"includeMapped"`
	IsExcluded         bool             `json:"isExcluded"`
}

// ConceptSetExpression is a normalized collection of concept set items.
//
// UnresolvedIDs carries concept ids that failed lookup while the expression
// was assembled. A partially resolved set is still usable; the caller decides
// whether to retry or drop the unresolved ids.
type ConceptSetExpression struct {
	Items         []ConceptSetItem `json:"items"`
	UnresolvedIDs []int            `json:"unresolvedIds,omitempty"`
}

// Clone returns a deep copy of the expression.
func (e *ConceptSetExpression) Clone() *ConceptSetExpression {
	if e == nil {
		return nil
	}
	out := &ConceptSetExpression{}
	if e.Items != nil {
		out.Items = make([]ConceptSetItem, len(e.Items))
		copy(out.Items, e.Items)
	}
	if e.UnresolvedIDs != nil {
		out.UnresolvedIDs = make([]int, len(e.UnresolvedIDs))
		copy(out.UnresolvedIDs, e.UnresolvedIDs)
	}
	return out
}

// Equal reports whether two expressions are structurally identical,
// including item order.
func (e *ConceptSetExpression) Equal(other *ConceptSetExpression) bool {
	if e == nil || other == nil {
		return e == other
	}
	if len(e.Items) != len(other.Items) || len(e.UnresolvedIDs) != len(other.UnresolvedIDs) {
		return false
	}
	for i := range e.Items {
		if e.Items[i] != other.Items[i] {
			return false
		}
	}
	for i := range e.UnresolvedIDs {
		if e.UnresolvedIDs[i] != other.UnresolvedIDs[i] {
			return false
		}
	}
	return true
}

// IncludedCount returns the number of non-excluded items.
func (e *ConceptSetExpression) IncludedCount() int {
	if e == nil {
		return 0
	}
	n := 0
	for _, item := range e.Items {
		if !item.IsExcluded {
			n++
		}
	}
	return n
}

// CriterionWindow is a relative time window in days, anchored to an index
// date. Negative days are before the index, positive after. A nil bound is
// unbounded in that direction.
type CriterionWindow struct {
	StartDays   *int `json:"startDays"`
	EndDays     *int `json:"endDays"`
	UseIndexEnd bool `json:"useIndexEnd"`
}

// Days is a convenience for constructing window bounds.
func Days(n int) *int {
	return &n
}

// Window constructs a bounded criterion window.
func Window(startDays, endDays int) CriterionWindow {
	return CriterionWindow{StartDays: Days(startDays), EndDays: Days(endDays)}
}

// CheckBounds verifies the window invariant: when both bounds are set,
// the start must not be after the end.
func (w CriterionWindow) CheckBounds() error {
	if w.StartDays != nil && w.EndDays != nil && *w.StartDays > *w.EndDays {
		return fmt.Errorf("window start_days (%d) must be <= end_days (%d)", *w.StartDays, *w.EndDays)
	}
	return nil
}

// Clone returns a copy of the window with its own bound pointers.
func (w CriterionWindow) Clone() CriterionWindow {
	out := CriterionWindow{UseIndexEnd: w.UseIndexEnd}
	if w.StartDays != nil {
		out.StartDays = Days(*w.StartDays)
	}
	if w.EndDays != nil {
		out.EndDays = Days(*w.EndDays)
	}
	return out
}

// Equal reports whether two windows are identical.
func (w CriterionWindow) Equal(other CriterionWindow) bool {
	if w.UseIndexEnd != other.UseIndexEnd {
		return false
	}
	return intPtrEqual(w.StartDays, other.StartDays) && intPtrEqual(w.EndDays, other.EndDays)
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// String renders the window for display, e.g. "[-365, 0]" or "[-365, +inf)".
func (w CriterionWindow) String() string {
	start, end := "-inf", "+inf"
	if w.StartDays != nil {
		start = fmt.Sprintf("%d", *w.StartDays)
	}
	if w.EndDays != nil {
		end = fmt.Sprintf("%d", *w.EndDays)
	}
	anchor := "index start"
	if w.UseIndexEnd {
		anchor = "index end"
	}
	return fmt.Sprintf("[%s, %s] days from %s", start, end, anchor)
}

// PrimaryCriteria defines the index event for cohort entry. A definition has
// exactly one; inclusion rules anchor their windows against it.
type PrimaryCriteria struct {
	ConceptSetID      string          `json:"conceptSetId"`
	Domain            Domain          `json:"domain"`
	OccurrenceType    OccurrenceType  `json:"occurrenceType"`
	ObservationWindow CriterionWindow `json:"observationWindow"`
}

// Clone returns a deep copy of the criteria.
func (p *PrimaryCriteria) Clone() *PrimaryCriteria {
	if p == nil {
		return nil
	}
	out := *p
	out.ObservationWindow = p.ObservationWindow.Clone()
	return &out
}

// Equal reports whether two primary criteria are identical.
func (p *PrimaryCriteria) Equal(other *PrimaryCriteria) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.ConceptSetID == other.ConceptSetID &&
		p.Domain == other.Domain &&
		p.OccurrenceType == other.OccurrenceType &&
		p.ObservationWindow.Equal(other.ObservationWindow)
}

// InclusionRule is an additional filter narrowing the cohort after the index
// event. Rules are logically ANDed; their order matters only for display.
type InclusionRule struct {
	Name               string          `json:"name"`
	ConceptSetID       string          `json:"conceptSetId"`
	OccurrenceCount    int             `json:"occurrenceCount"`
	OccurrenceOperator Operator        `json:"occurrenceOperator"`
	Window             CriterionWindow `json:"window"`
}

// Clone returns a deep copy of the rule.
func (r InclusionRule) Clone() InclusionRule {
	out := r
	out.Window = r.Window.Clone()
	return out
}

// Equal reports whether two rules are identical.
func (r InclusionRule) Equal(other InclusionRule) bool {
	return r.Name == other.Name &&
		r.ConceptSetID == other.ConceptSetID &&
		r.OccurrenceCount == other.OccurrenceCount &&
		r.OccurrenceOperator == other.OccurrenceOperator &&
		r.Window.Equal(other.Window)
}

// CohortDefinition is a declarative specification of a patient population:
// concept sets, an index event, and inclusion rules. The zero id marks an
// in-progress definition; ids are assigned by the WebAPI on save.
//
// A definition exclusively owns its concept-set map and rule slice. Cloning
// always deep-copies; expressions are never shared across definitions.
type CohortDefinition struct {
	ID              string                           `json:"id,omitempty"`
	Name            string                           `json:"name"`
	ConceptSets     map[string]*ConceptSetExpression `json:"conceptSets"`
	PrimaryCriteria *PrimaryCriteria                 `json:"primaryCriteria"`
	InclusionRules  []InclusionRule                  `json:"inclusionRules"`
	CreatedAt       time.Time                        `json:"createdAt"`
	ModifiedAt      time.Time                        `json:"modifiedAt"`
}

// copy returns a deep copy of the definition. All mutating operations go
// through here first so callers holding the old handle are unaffected.
func (d *CohortDefinition) copy() *CohortDefinition {
	out := &CohortDefinition{
		ID:         d.ID,
		Name:       d.Name,
		CreatedAt:  d.CreatedAt,
		ModifiedAt: d.ModifiedAt,
	}
	out.ConceptSets = make(map[string]*ConceptSetExpression, len(d.ConceptSets))
	for id, expr := range d.ConceptSets {
		out.ConceptSets[id] = expr.Clone()
	}
	out.PrimaryCriteria = d.PrimaryCriteria.Clone()
	out.InclusionRules = make([]InclusionRule, 0, len(d.InclusionRules))
	for _, r := range d.InclusionRules {
		out.InclusionRules = append(out.InclusionRules, r.Clone())
	}
	return out
}

// Complete reports whether the definition has reached the stage where it can
// be validated and persisted: the primary criteria is set.
func (d *CohortDefinition) Complete() bool {
	return d != nil && d.PrimaryCriteria != nil
}
