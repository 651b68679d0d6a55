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

package server

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// intSliceArg extracts an integer array argument. JSON numbers arrive as
// float64, so each element is converted and checked for integrality.
func intSliceArg(request mcp.CallToolRequest, key string) ([]int, error) {
	raw, ok := request.GetArguments()[key]
	if !ok {
		return nil, fmt.Errorf("missing required argument %q", key)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("argument %q must be an array of integers", key)
	}

	out := make([]int, 0, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case float64:
			if v != float64(int(v)) {
				return nil, fmt.Errorf("argument %q[%d] must be an integer, got %v", key, i, v)
			}
			out = append(out, int(v))
		case int:
			out = append(out, v)
		default:
			return nil, fmt.Errorf("argument %q[%d] must be an integer", key, i)
		}
	}
	return out, nil
}

// optionalIntArg returns a pointer to the integer argument if present, or
// nil when the caller omitted it. Used for nullable window bounds.
func optionalIntArg(request mcp.CallToolRequest, key string) (*int, error) {
	raw, ok := request.GetArguments()[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != float64(int(v)) {
			return nil, fmt.Errorf("argument %q must be an integer, got %v", key, v)
		}
		n := int(v)
		return &n, nil
	case int:
		n := v
		return &n, nil
	default:
		return nil, fmt.Errorf("argument %q must be an integer", key)
	}
}
