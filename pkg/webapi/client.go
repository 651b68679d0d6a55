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

// Package webapi is a client for the OHDSI WebAPI: vocabulary search and
// lookup, cohort definition persistence, data sources, batch jobs, and
// instance info.
//
// The client retries transient failures internally (see pkg/httpclient);
// an exhausted failure surfaces as *errors.UpstreamError and a missing
// resource as *errors.NotFoundError, so callers never need to inspect HTTP
// status codes.
package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/cohortbridge/cohortbridge/pkg/errors"
	"github.com/cohortbridge/cohortbridge/pkg/httpclient"
)

// Config configures the WebAPI client.
type Config struct {
	// BaseURL is the WebAPI root, e.g. "https://atlas.example.org/WebAPI".
	// Required.
	BaseURL string

	// HTTP configures the underlying HTTP client. Zero value means
	// httpclient.DefaultConfig().
	HTTP httpclient.Config

	// RequestsPerSecond limits outgoing request rate. Zero disables
	// client-side limiting.
	RequestsPerSecond float64
}

// Client talks to one WebAPI instance. Safe for concurrent use.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	limiter *rate.Limiter
	tracer  trace.Tracer
}

// New creates a WebAPI client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, &errors.ConfigError{Key: "webapi.base_url", Reason: "must be set"}
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, &errors.ConfigError{Key: "webapi.base_url", Reason: "not a valid URL", Cause: err}
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, &errors.ConfigError{Key: "webapi.base_url", Reason: fmt.Sprintf("unsupported scheme %q", base.Scheme)}
	}

	httpCfg := cfg.HTTP
	if httpCfg == (httpclient.Config{}) {
		httpCfg = httpclient.DefaultConfig()
	}
	client, err := httpclient.New(httpCfg)
	if err != nil {
		return nil, errors.Wrap(err, "building http client")
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1)
	}

	return &Client{
		baseURL: base,
		http:    client,
		limiter: limiter,
		tracer:  otel.Tracer("webapi"),
	}, nil
}

// BaseURL returns the configured WebAPI root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// get issues a GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// post issues a POST with a JSON body and decodes the response into out.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, span := c.tracer.Start(ctx, "webapi "+method+" "+path,
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("webapi.path", path),
		))
	defer span.End()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			span.SetStatus(codes.Error, "rate limit wait cancelled")
			return errors.Wrap(err, "waiting for rate limit")
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		reader = bytes.NewReader(payload)
	}

	ctx = httpclient.WithCorrelationID(ctx, uuid.NewString())
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return &errors.UpstreamError{
			Endpoint: path,
			Message:  "request failed after retries",
			Cause:    err,
		}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &errors.NotFoundError{Resource: "webapi resource", ID: path}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		span.SetStatus(codes.Error, resp.Status)
		return &errors.UpstreamError{
			Endpoint:   path,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(snippet)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &errors.UpstreamError{
			Endpoint: path,
			Message:  "undecodable response body",
			Cause:    err,
		}
	}
	return nil
}
