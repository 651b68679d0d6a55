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
	"fmt"

	"github.com/cohortbridge/cohortbridge/pkg/cohort"
	"github.com/cohortbridge/cohortbridge/pkg/errors"
)

// conceptSearchRequest is the WebAPI vocabulary search payload.
type conceptSearchRequest struct {
	Query          string   `json:"QUERY"`
	DomainID       []string `json:"DOMAIN_ID,omitempty"`
	VocabularyID   []string `json:"VOCABULARY_ID,omitempty"`
	ConceptClassID []string `json:"CONCEPT_CLASS_ID,omitempty"`
}

// LookupConcept fetches a single concept by id. Implements
// cohort.Vocabulary.
func (c *Client) LookupConcept(ctx context.Context, conceptID int) (*cohort.ConceptReference, error) {
	var concept Concept
	err := c.get(ctx, fmt.Sprintf("/vocabulary/concept/%d", conceptID), &concept)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, &errors.NotFoundError{Resource: "concept", ID: fmt.Sprintf("%d", conceptID)}
		}
		return nil, err
	}
	ref := concept.Reference()
	return &ref, nil
}

// GetConcept fetches the full vocabulary record for a concept, including
// class and validity dates.
func (c *Client) GetConcept(ctx context.Context, conceptID int) (*Concept, error) {
	var concept Concept
	err := c.get(ctx, fmt.Sprintf("/vocabulary/concept/%d", conceptID), &concept)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, &errors.NotFoundError{Resource: "concept", ID: fmt.Sprintf("%d", conceptID)}
		}
		return nil, err
	}
	return &concept, nil
}

// SearchConcepts searches the vocabulary. Results preserve the WebAPI's
// relevance order and are truncated to limit. Implements cohort.Vocabulary.
func (c *Client) SearchConcepts(ctx context.Context, query string, filters cohort.SearchFilters, limit int) ([]cohort.ConceptReference, error) {
	req := conceptSearchRequest{Query: query}
	if filters.Domain != "" {
		req.DomainID = []string{filters.Domain}
	}
	if filters.Vocabulary != "" {
		req.VocabularyID = []string{filters.Vocabulary}
	}
	if filters.ConceptClass != "" {
		req.ConceptClassID = []string{filters.ConceptClass}
	}

	var concepts []Concept
	if err := c.post(ctx, "/vocabulary/search", req, &concepts); err != nil {
		return nil, err
	}

	if limit > 0 && len(concepts) > limit {
		concepts = concepts[:limit]
	}
	refs := make([]cohort.ConceptReference, 0, len(concepts))
	for _, concept := range concepts {
		refs = append(refs, concept.Reference())
	}
	return refs, nil
}

// DescendantConcepts lists the descendants of a concept in the vocabulary
// hierarchy.
func (c *Client) DescendantConcepts(ctx context.Context, conceptID int) ([]cohort.ConceptReference, error) {
	var concepts []Concept
	err := c.get(ctx, fmt.Sprintf("/vocabulary/concept/%d/descendants", conceptID), &concepts)
	if err != nil {
		return nil, err
	}
	refs := make([]cohort.ConceptReference, 0, len(concepts))
	for _, concept := range concepts {
		refs = append(refs, concept.Reference())
	}
	return refs, nil
}

// ListDomains lists the OMOP domains known to this WebAPI instance.
func (c *Client) ListDomains(ctx context.Context) ([]Domain, error) {
	var domains []Domain
	if err := c.get(ctx, "/vocabulary/domains", &domains); err != nil {
		return nil, err
	}
	return domains, nil
}

// ListVocabularies lists the installed vocabularies.
func (c *Client) ListVocabularies(ctx context.Context) ([]VocabularyInfo, error) {
	var vocabularies []VocabularyInfo
	if err := c.get(ctx, "/vocabulary/vocabularies", &vocabularies); err != nil {
		return nil, err
	}
	return vocabularies, nil
}
