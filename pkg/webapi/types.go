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
	"encoding/json"

	"github.com/cohortbridge/cohortbridge/pkg/cohort"
)

// Concept is a vocabulary concept as the WebAPI serializes it. The WebAPI
// uses upper-snake keys for vocabulary resources; Reference converts to the
// internal representation.
type Concept struct {
	ConceptID       int    `json:"CONCEPT_ID"`
	ConceptName     string `json:"CONCEPT_NAME"`
	ConceptCode     string `json:"CONCEPT_CODE"`
	ConceptClassID  string `json:"CONCEPT_CLASS_ID"`
	DomainID        string `json:"DOMAIN_ID"`
	VocabularyID    string `json:"VOCABULARY_ID"`
	StandardConcept string `json:"STANDARD_CONCEPT"`
	InvalidReason   string `json:"INVALID_REASON"`
}

// Reference converts the WebAPI representation to a cohort.ConceptReference.
func (c Concept) Reference() cohort.ConceptReference {
	return cohort.ConceptReference{
		ConceptID:       c.ConceptID,
		ConceptName:     c.ConceptName,
		ConceptCode:     c.ConceptCode,
		ConceptClassID:  c.ConceptClassID,
		DomainID:        c.DomainID,
		VocabularyID:    c.VocabularyID,
		StandardConcept: cohort.StandardConcept(c.StandardConcept),
		InvalidReason:   c.InvalidReason,
	}
}

// Domain is an OMOP domain as listed by the WebAPI.
type Domain struct {
	DomainID   string `json:"DOMAIN_ID"`
	DomainName string `json:"DOMAIN_NAME"`
}

// VocabularyInfo describes one installed vocabulary.
type VocabularyInfo struct {
	VocabularyID      string `json:"VOCABULARY_ID"`
	VocabularyName    string `json:"VOCABULARY_NAME"`
	VocabularyVersion string `json:"VOCABULARY_VERSION"`
}

// CohortSummary is the WebAPI's listing view of a saved cohort definition.
type CohortSummary struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	CreatedDate  string `json:"createdDate,omitempty"`
	ModifiedDate string `json:"modifiedDate,omitempty"`
}

// CohortResource is a saved cohort definition with its expression payload.
// The expression is kept raw here; Definition decodes it.
type CohortResource struct {
	ID             int             `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	ExpressionType string          `json:"expressionType"`
	Expression     json.RawMessage `json:"expression"`
}

// Definition decodes the expression payload into a cohort definition.
func (r *CohortResource) Definition() (*cohort.CohortDefinition, error) {
	var def cohort.CohortDefinition
	if err := json.Unmarshal(r.Expression, &def); err != nil {
		return nil, err
	}
	if def.ConceptSets == nil {
		def.ConceptSets = map[string]*cohort.ConceptSetExpression{}
	}
	if def.InclusionRules == nil {
		def.InclusionRules = []cohort.InclusionRule{}
	}
	return &def, nil
}

// Source is a configured CDM data source.
type Source struct {
	SourceID          int    `json:"sourceId"`
	SourceName        string `json:"sourceName"`
	SourceKey         string `json:"sourceKey"`
	SourceDialect     string `json:"sourceDialect,omitempty"`
	CDMVersion        string `json:"cdmVersion,omitempty"`
	VocabularyVersion string `json:"vocabularyVersion,omitempty"`
	Priority          int    `json:"priority,omitempty"`
}

// JobExecution reports the state of a WebAPI batch job.
type JobExecution struct {
	ExecutionID int64  `json:"executionId"`
	JobName     string `json:"name"`
	Status      string `json:"status"`
	ExitStatus  string `json:"exitStatus,omitempty"`
	StartDate   int64  `json:"startDate,omitempty"`
	EndDate     int64  `json:"endDate,omitempty"`
}

// Info is the WebAPI's self-description.
type Info struct {
	Version string `json:"version"`
}
