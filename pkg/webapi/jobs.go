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

	"github.com/cohortbridge/cohortbridge/pkg/errors"
)

// jobPage is the WebAPI's paginated job listing envelope.
type jobPage struct {
	Content []JobExecution `json:"content"`
}

// JobStatus fetches the state of one batch job execution.
func (c *Client) JobStatus(ctx context.Context, executionID int64) (*JobExecution, error) {
	var job JobExecution
	err := c.get(ctx, fmt.Sprintf("/job/execution/%d", executionID), &job)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, &errors.NotFoundError{Resource: "job execution", ID: fmt.Sprintf("%d", executionID)}
		}
		return nil, err
	}
	return &job, nil
}

// RecentJobs lists recent batch job executions, most recent first.
func (c *Client) RecentJobs(ctx context.Context, limit int) ([]JobExecution, error) {
	if limit <= 0 {
		limit = 20
	}
	var page jobPage
	if err := c.get(ctx, fmt.Sprintf("/job?pageSize=%d", limit), &page); err != nil {
		return nil, err
	}
	return page.Content, nil
}

// CancelJob asks the WebAPI to stop a running job execution.
func (c *Client) CancelJob(ctx context.Context, executionID int64) error {
	err := c.do(ctx, "DELETE", fmt.Sprintf("/job/execution/%d", executionID), nil, nil)
	if errors.IsNotFound(err) {
		return &errors.NotFoundError{Resource: "job execution", ID: fmt.Sprintf("%d", executionID)}
	}
	return err
}
