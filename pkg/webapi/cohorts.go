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
	"encoding/json"
	"fmt"

	"github.com/cohortbridge/cohortbridge/pkg/cohort"
	"github.com/cohortbridge/cohortbridge/pkg/errors"
)

// ListCohorts lists saved cohort definitions.
func (c *Client) ListCohorts(ctx context.Context) ([]CohortSummary, error) {
	var summaries []CohortSummary
	if err := c.get(ctx, "/cohortdefinition", &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

// GetCohort fetches a saved cohort definition, expression included.
func (c *Client) GetCohort(ctx context.Context, id int) (*CohortResource, error) {
	var resource CohortResource
	err := c.get(ctx, fmt.Sprintf("/cohortdefinition/%d", id), &resource)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, &errors.NotFoundError{Resource: "cohort", ID: fmt.Sprintf("%d", id)}
		}
		return nil, err
	}
	return &resource, nil
}

// CreateCohort persists a cohort definition and returns the saved resource
// with its assigned id. The definition document travels opaque inside the
// WebAPI save envelope.
func (c *Client) CreateCohort(ctx context.Context, name, description string, def *cohort.CohortDefinition) (*CohortResource, error) {
	if def == nil {
		return nil, &errors.InvalidInputError{Field: "definition", Message: "cohort definition must not be nil"}
	}
	expression, err := json.Marshal(def)
	if err != nil {
		return nil, errors.Wrap(err, "encoding cohort expression")
	}

	payload := CohortResource{
		Name:           name,
		Description:    description,
		ExpressionType: "SIMPLE_EXPRESSION",
		Expression:     expression,
	}
	var saved CohortResource
	if err := c.post(ctx, "/cohortdefinition", payload, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}
