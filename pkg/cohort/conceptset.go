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

	"github.com/cohortbridge/cohortbridge/pkg/errors"
)

// SearchFilters narrows a concept search.
type SearchFilters struct {
	Domain       string
	Vocabulary   string
	ConceptClass string
}

// Vocabulary is the external collaborator that resolves and searches
// concepts. Implementations are expected to perform their own retry and
// backoff; an exhausted failure surfaces as *errors.UpstreamError and a
// missing concept as *errors.NotFoundError.
type Vocabulary interface {
	LookupConcept(ctx context.Context, conceptID int) (*ConceptReference, error)
	SearchConcepts(ctx context.Context, query string, filters SearchFilters, limit int) ([]ConceptReference, error)
}

// MaxSearchLimit caps the number of concepts a single search may return.
const MaxSearchLimit = 1000

// BuildFromIDs assembles a concept set expression from explicit concept ids.
//
// Lookup is best-effort per id: ids the vocabulary cannot resolve are
// collected in the expression's UnresolvedIDs rather than failing the batch.
// Only an upstream failure (as opposed to a not-found) aborts the whole call.
// Duplicate ids contribute a single item.
func BuildFromIDs(ctx context.Context, vocab Vocabulary, conceptIDs []int, includeDescendants, includeMapped bool) (*ConceptSetExpression, error) {
	if len(conceptIDs) == 0 {
		return nil, &errors.InvalidInputError{
			Field:      "concept_ids",
			Message:    "at least one concept id is required",
			Suggestion: "search for concepts first, then pass their ids",
		}
	}
	for _, id := range conceptIDs {
		if id <= 0 {
			return nil, &errors.InvalidInputError{
				Field:   "concept_ids",
				Message: fmt.Sprintf("concept id must be positive, got %d", id),
			}
		}
	}

	expr := &ConceptSetExpression{Items: []ConceptSetItem{}}
	seen := make(map[int]bool, len(conceptIDs))
	for _, id := range conceptIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		ref, err := vocab.LookupConcept(ctx, id)
		if err != nil {
			if errors.IsNotFound(err) {
				expr.UnresolvedIDs = append(expr.UnresolvedIDs, id)
				continue
			}
			return nil, errors.Wrapf(err, "looking up concept %d", id)
		}
		expr.Items = append(expr.Items, ConceptSetItem{
			Concept:            *ref,
			IncludeDescendants: includeDescendants,
			IncludeMapped:      includeMapped,
		})
	}
	return expr, nil
}

// BuildFromSearch assembles a concept set expression from a vocabulary
// search. An empty result is a valid, empty expression, not an error.
// Concepts returned more than once contribute a single item.
func BuildFromSearch(ctx context.Context, vocab Vocabulary, query string, filters SearchFilters, limit int, includeDescendants, includeMapped bool) (*ConceptSetExpression, error) {
	if query == "" {
		return nil, &errors.InvalidInputError{
			Field:   "query",
			Message: "search query must not be empty",
		}
	}
	if limit < 1 || limit > MaxSearchLimit {
		return nil, &errors.InvalidInputError{
			Field:   "limit",
			Message: fmt.Sprintf("limit must be between 1 and %d, got %d", MaxSearchLimit, limit),
		}
	}

	refs, err := vocab.SearchConcepts(ctx, query, filters, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "searching concepts for %q", query)
	}

	expr := &ConceptSetExpression{Items: []ConceptSetItem{}}
	seen := make(map[int]bool, len(refs))
	for _, ref := range refs {
		if seen[ref.ConceptID] {
			continue
		}
		seen[ref.ConceptID] = true
		expr.Items = append(expr.Items, ConceptSetItem{
			Concept:            ref,
			IncludeDescendants: includeDescendants,
			IncludeMapped:      includeMapped,
		})
	}
	return expr, nil
}
