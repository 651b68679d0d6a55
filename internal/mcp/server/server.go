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

// Package server implements an MCP server that exposes cohort-building
// tools backed by an OHDSI WebAPI instance.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cohortbridge/cohortbridge/internal/drafts"
	cblog "github.com/cohortbridge/cohortbridge/internal/log"
	"github.com/cohortbridge/cohortbridge/pkg/errors"
	"github.com/cohortbridge/cohortbridge/pkg/webapi"
)

// Server wraps the MCP server and provides cohort-building tools.
type Server struct {
	mcpServer   *server.MCPServer
	name        string
	version     string
	rateLimiter *RateLimiter
	logger      *slog.Logger
	webapi      *webapi.Client
	sessions    *sessionStore
	metrics     *Metrics
	sourceKey   string
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	// Name is the server name (default: "cohortbridge")
	Name string

	// Version is the cohortbridge version
	Version string

	// Logger receives structured logs. Defaults to a stderr logger built
	// from the environment.
	Logger *slog.Logger

	// WebAPI is the upstream OHDSI WebAPI client. Required.
	WebAPI *webapi.Client

	// Drafts optionally persists session drafts across restarts.
	Drafts *drafts.Store

	// DefaultSourceKey is the CDM source used when a tool call omits one.
	DefaultSourceKey string

	// ToolCallsPerMinute limits tool invocations across all sessions.
	// Zero selects the default of 240.
	ToolCallsPerMinute int
}

// NewServer creates a new MCP server instance.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Name == "" {
		cfg.Name = "cohortbridge"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.WebAPI == nil {
		return nil, &errors.ConfigError{Key: "webapi", Reason: "WebAPI client is required"}
	}
	if cfg.ToolCallsPerMinute == 0 {
		cfg.ToolCallsPerMinute = 240
	}

	logger := cfg.Logger
	if logger == nil {
		logger = cblog.New(cblog.FromEnv())
	}

	s := &Server{
		mcpServer:   server.NewMCPServer(cfg.Name, cfg.Version),
		name:        cfg.Name,
		version:     cfg.Version,
		rateLimiter: NewRateLimiter(cfg.ToolCallsPerMinute),
		logger:      logger,
		webapi:      cfg.WebAPI,
		sessions:    newSessionStore(cfg.Drafts),
		metrics:     NewMetrics(),
		sourceKey:   cfg.DefaultSourceKey,
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all cohortbridge tools with the MCP server.
func (s *Server) registerTools() {
	s.registerVocabularyTools()
	s.registerConceptSetTools()
	s.registerCohortTools()
	s.registerPersistenceTools()
	s.registerSourceTools()
	s.registerJobTools()
	s.registerInfoTools()
}

// addTool registers a tool with rate limiting, logging, and metrics applied
// around the handler.
func (s *Server) addTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !s.rateLimiter.AllowCall() {
			s.metrics.ObserveCall(tool.Name, "rate_limited", 0)
			return errorResponse("Rate limit exceeded. Please try again later."), nil
		}

		start := time.Now()
		result, err := handler(ctx, request)
		elapsed := time.Since(start)

		status := "ok"
		if err != nil || (result != nil && result.IsError) {
			status = "error"
		}
		s.metrics.ObserveCall(tool.Name, status, elapsed)
		s.logger.Debug("tool call",
			slog.String(cblog.ToolKey, tool.Name),
			slog.String("status", status),
			slog.Int64(cblog.DurationKey, elapsed.Milliseconds()),
		)
		return result, err
	})
}

// Run starts the MCP server using stdio transport. It blocks until the
// client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting cohortbridge MCP server",
		slog.String("version", s.version),
		slog.String("webapi", s.webapi.BaseURL()),
	)

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}

	return nil
}

// RunHTTP starts the MCP server on the streamable HTTP transport at addr.
// It blocks until ctx is cancelled or the listener fails.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	s.logger.Info("starting cohortbridge MCP server",
		slog.String("version", s.version),
		slog.String("addr", addr),
		slog.String("webapi", s.webapi.BaseURL()),
	)

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start(addr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("MCP server error: %w", err)
		}
		return nil
	}
}

// MetricsHandler exposes the server's Prometheus metrics for an external
// listener.
func (s *Server) MetricsHandler() *Metrics {
	return s.metrics
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down cohortbridge MCP server")
	return nil
}

// errorResponse creates an error tool result. Upstream and validation
// errors keep their suggestion text so the client can self-correct.
func errorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

// errorFrom renders a Go error as a tool error result.
func errorFrom(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

// textResponse creates a success response with plain text content.
func textResponse(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// jsonResponse marshals v and returns it as text content.
func jsonResponse(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResponse(fmt.Sprintf("Failed to encode result: %v", err))
	}
	return textResponse(string(data))
}
