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
	"strings"

	"github.com/cohortbridge/cohortbridge/pkg/errors"
)

// ListSources lists the configured CDM data sources.
func (c *Client) ListSources(ctx context.Context) ([]Source, error) {
	var sources []Source
	if err := c.get(ctx, "/source/sources", &sources); err != nil {
		return nil, err
	}
	return sources, nil
}

// GetSource finds a data source by key, case-insensitively.
func (c *Client) GetSource(ctx context.Context, sourceKey string) (*Source, error) {
	sources, err := c.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	for _, source := range sources {
		if strings.EqualFold(source.SourceKey, sourceKey) {
			return &source, nil
		}
	}
	return nil, &errors.NotFoundError{Resource: "source", ID: sourceKey}
}
